package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
)

// SaveClassification upserts the classification for an entry, replacing any
// previous one.
func (s *SQLiteStorage) SaveClassification(ctx context.Context, classification *model.ClassifiedEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateClassification(classification); err != nil {
		return err
	}

	if classification.UpdatedAt.IsZero() {
		classification.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classified_entries (
			entry_id, account_code, tax_type, confidence,
			model_used, reason, flags, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			account_code = excluded.account_code,
			tax_type = excluded.tax_type,
			confidence = excluded.confidence,
			model_used = excluded.model_used,
			reason = excluded.reason,
			flags = excluded.flags,
			updated_at = excluded.updated_at
	`,
		classification.EntryID,
		classification.AccountCode,
		string(classification.TaxType),
		formatConfidence(classification.Confidence),
		classification.ModelUsed,
		classification.Reason,
		classification.FlagsJSON(),
		classification.UpdatedAt,
	)
	if err != nil {
		return common.NewKindError(common.KindPersistenceFailure, "save classification",
			fmt.Errorf("%w: %w", common.ErrPersistence, err))
	}

	return nil
}

// GetClassification retrieves the classification for an entry.
func (s *SQLiteStorage) GetClassification(ctx context.Context, entryID int64) (*model.ClassifiedEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var nc nullClassification
	err := s.db.QueryRowContext(ctx, `SELECT `+classificationColumns+`
		FROM classified_entries c WHERE c.entry_id = ?`, entryID).Scan(nc.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("classification for entry %d: %w", entryID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}

	return nc.value(), nil
}
