package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
)

const rawFileColumns = `id, user_id, period, source, mime, checksum, uri, filename, size_bytes, uploaded_at`

// SaveImport stores a raw file record and its entries atomically, returning
// the new entry IDs in input order. A nil file stores entries without a file.
func (s *SQLiteStorage) SaveImport(ctx context.Context, file *model.RawFile, entries []model.NormalizedEntry) ([]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if file != nil {
		if err := validateRawFile(file); err != nil {
			return nil, err
		}
	}
	for i := range entries {
		if err := validateEntry(&entries[i]); err != nil {
			return nil, fmt.Errorf("entry at index %d: %w", i, err)
		}
	}

	ids := make([]int64, 0, len(entries))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if file != nil {
			if file.UploadedAt.IsZero() {
				file.UploadedAt = time.Now()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO raw_files (`+rawFileColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				file.ID, file.UserID, file.Period, file.Source, file.MIME,
				file.Checksum, file.URI, file.Filename, file.SizeBytes, file.UploadedAt,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("file with checksum %s: %w", file.Checksum, common.ErrDuplicateEntry)
				}
				return fmt.Errorf("failed to insert raw file: %w", err)
			}
		}

		for i := range entries {
			if file != nil {
				entries[i].FileID = file.ID
			}
			if err := insertEntryTx(ctx, tx, &entries[i]); err != nil {
				return fmt.Errorf("entry at index %d: %w", i, err)
			}
			ids = append(ids, entries[i].ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// GetRawFile retrieves a raw file record by ID.
func (s *SQLiteStorage) GetRawFile(ctx context.Context, id string) (*model.RawFile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getRawFile(ctx, `SELECT `+rawFileColumns+` FROM raw_files WHERE id = ?`, id)
}

// GetRawFileByChecksum finds a previously imported file by content checksum.
func (s *SQLiteStorage) GetRawFileByChecksum(ctx context.Context, checksum string) (*model.RawFile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(checksum, "checksum"); err != nil {
		return nil, err
	}
	return s.getRawFile(ctx, `SELECT `+rawFileColumns+` FROM raw_files WHERE checksum = ?`, checksum)
}

func (s *SQLiteStorage) getRawFile(ctx context.Context, query string, arg string) (*model.RawFile, error) {
	var f model.RawFile
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&f.ID, &f.UserID, &f.Period, &f.Source, &f.MIME,
		&f.Checksum, &f.URI, &f.Filename, &f.SizeBytes, &f.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("raw file %s: %w", arg, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw file: %w", err)
	}
	return &f, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
