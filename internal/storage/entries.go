package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
)

const entryColumns = `e.id, e.user_id, COALESCE(e.file_id, ''), e.period, e.trx_date, e.vendor,
	e.amount, e.vat, e.memo, e.source, e.raw_line, e.created_at, e.updated_at`

const classificationColumns = `c.entry_id, c.account_code, c.tax_type, c.confidence,
	c.model_used, c.reason, c.flags, c.updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// entryWhere builds the WHERE clause for filter. The period is matched as a
// prefix of the transaction date when it has at least four characters.
func entryWhere(filter model.EntryFilter) (string, []any) {
	var clauses []string
	var args []any

	if len(filter.Period) >= 4 {
		clauses = append(clauses, "substr(e.trx_date, 1, ?) = ?")
		args = append(args, len([]rune(filter.Period)), filter.Period)
	}
	if filter.UserID != "" {
		clauses = append(clauses, "e.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.FileID != "" {
		clauses = append(clauses, "e.file_id = ?")
		args = append(args, filter.FileID)
	}
	if len(filter.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")
		clauses = append(clauses, "e.id IN ("+placeholders+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func pageClause(filter model.EntryFilter) string {
	switch {
	case filter.Limit > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
	case filter.Offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}
	return ""
}

func scanEntry(row rowScanner, extra ...any) (model.NormalizedEntry, error) {
	var entry model.NormalizedEntry
	dest := []any{
		&entry.ID, &entry.UserID, &entry.FileID, &entry.Period, &entry.TrxDate, &entry.Vendor,
		&entry.Amount, &entry.VAT, &entry.Memo, &entry.Source, &entry.RawLine,
		&entry.CreatedAt, &entry.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.NormalizedEntry{}, err
	}
	return entry, nil
}

// CreateEntry inserts a single entry and sets its ID and timestamps.
func (s *SQLiteStorage) CreateEntry(ctx context.Context, entry *model.NormalizedEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEntry(entry); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertEntryTx(ctx, tx, entry)
	})
}

func insertEntryTx(ctx context.Context, tx *sql.Tx, entry *model.NormalizedEntry) error {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = entry.CreatedAt

	var fileID any
	if entry.FileID != "" {
		fileID = entry.FileID
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO normalized_entries (
			user_id, file_id, period, trx_date, vendor, amount, vat,
			memo, source, raw_line, fingerprint, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.UserID, fileID, entry.Period, entry.TrxDate, entry.Vendor,
		entry.Amount.String(), entry.VAT.String(), entry.Memo, entry.Source,
		entry.RawLine, entry.Fingerprint(), entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get entry ID: %w", err)
	}
	entry.ID = id
	return nil
}

// UpdateEntry overwrites the editable fields of an existing entry.
func (s *SQLiteStorage) UpdateEntry(ctx context.Context, entry *model.NormalizedEntry) error {
	return s.updateEntry(ctx, entry, false)
}

// UpdateEntryResetClassification overwrites the entry and drops its
// classification in one transaction, so a changed amount never keeps a stale
// classification.
func (s *SQLiteStorage) UpdateEntryResetClassification(ctx context.Context, entry *model.NormalizedEntry) error {
	return s.updateEntry(ctx, entry, true)
}

func (s *SQLiteStorage) updateEntry(ctx context.Context, entry *model.NormalizedEntry, reset bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEntry(entry); err != nil {
		return err
	}

	updatedAt := time.Now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE normalized_entries SET
				period = ?, trx_date = ?, vendor = ?, amount = ?, vat = ?,
				memo = ?, fingerprint = ?, updated_at = ?
			WHERE id = ?
		`,
			entry.Period, entry.TrxDate, entry.Vendor, entry.Amount.String(), entry.VAT.String(),
			entry.Memo, entry.Fingerprint(), updatedAt, entry.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}
		if err := requireAffected(result, "entry", entry.ID); err != nil {
			return err
		}

		if reset {
			if _, err := tx.ExecContext(ctx, `DELETE FROM classified_entries WHERE entry_id = ?`, entry.ID); err != nil {
				return fmt.Errorf("failed to delete classification: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	entry.UpdatedAt = updatedAt
	return nil
}

// DeleteEntry removes an entry and its classification.
func (s *SQLiteStorage) DeleteEntry(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM classified_entries WHERE entry_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete classification: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM normalized_entries WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		return requireAffected(result, "entry", id)
	})
}

// GetEntry retrieves a single entry by ID.
func (s *SQLiteStorage) GetEntry(ctx context.Context, id int64) (*model.NormalizedEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM normalized_entries e WHERE e.id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return &entry, nil
}

// ListEntries returns entries matching filter ordered by date then ID.
func (s *SQLiteStorage) ListEntries(ctx context.Context, filter model.EntryFilter) ([]model.NormalizedEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args := entryWhere(filter)
	query := `SELECT ` + entryColumns + ` FROM normalized_entries e` + where +
		` ORDER BY e.trx_date, e.id` + pageClause(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.NormalizedEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListEntriesWithClassification returns every matching entry with its
// classification, which is nil for unclassified entries.
func (s *SQLiteStorage) ListEntriesWithClassification(ctx context.Context, filter model.EntryFilter) ([]model.EntryWithClassification, error) {
	return s.listJoined(ctx, filter, "LEFT JOIN")
}

// ListClassifiedEntries returns only matching entries that have a classification.
func (s *SQLiteStorage) ListClassifiedEntries(ctx context.Context, filter model.EntryFilter) ([]model.EntryWithClassification, error) {
	return s.listJoined(ctx, filter, "JOIN")
}

func (s *SQLiteStorage) listJoined(ctx context.Context, filter model.EntryFilter, join string) ([]model.EntryWithClassification, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args := entryWhere(filter)
	query := `SELECT ` + entryColumns + `, ` + classificationColumns +
		` FROM normalized_entries e ` + join + ` classified_entries c ON c.entry_id = e.id` +
		where + ` ORDER BY e.trx_date, e.id` + pageClause(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.EntryWithClassification
	for rows.Next() {
		var nc nullClassification
		entry, err := scanEntry(rows, nc.dest()...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		results = append(results, model.EntryWithClassification{
			Entry:          entry,
			Classification: nc.value(),
		})
	}
	return results, rows.Err()
}

// HasMemoContaining reports whether any entry matching filter has marker in its memo.
func (s *SQLiteStorage) HasMemoContaining(ctx context.Context, marker string, filter model.EntryFilter) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(marker, "marker"); err != nil {
		return false, err
	}

	where, args := entryWhere(filter)
	if where == "" {
		where = " WHERE instr(e.memo, ?) > 0"
	} else {
		where += " AND instr(e.memo, ?) > 0"
	}
	args = append(args, marker)

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM normalized_entries e`+where+`)`, args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to search memos: %w", err)
	}
	return exists, nil
}

// HasDateOutsidePeriod reports whether any stored entry is dated outside
// the YYYY-MM period.
func (s *SQLiteStorage) HasDateOutsidePeriod(ctx context.Context, period string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validatePeriod(period); err != nil {
		return false, err
	}

	prefix := period + "-"
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM normalized_entries WHERE substr(trx_date, 1, ?) <> ?)
	`, len(prefix), prefix).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check entry dates: %w", err)
	}
	return exists, nil
}

// nullClassification scans the nullable side of an outer join.
type nullClassification struct {
	updatedAt   sql.NullTime
	entryID     sql.NullInt64
	accountCode sql.NullString
	taxType     sql.NullString
	confidence  sql.NullString
	modelUsed   sql.NullString
	reason      sql.NullString
	flags       sql.NullString
}

func (n *nullClassification) dest() []any {
	return []any{
		&n.entryID, &n.accountCode, &n.taxType, &n.confidence,
		&n.modelUsed, &n.reason, &n.flags, &n.updatedAt,
	}
}

func (n *nullClassification) value() *model.ClassifiedEntry {
	if !n.entryID.Valid {
		return nil
	}
	return &model.ClassifiedEntry{
		EntryID:   n.entryID.Int64,
		ModelUsed: n.modelUsed.String,
		UpdatedAt: n.updatedAt.Time,
		Classification: model.Classification{
			AccountCode: n.accountCode.String,
			TaxType:     model.TaxType(n.taxType.String),
			Confidence:  parseConfidence(n.confidence.String),
			Reason:      n.reason.String,
			Flags:       model.ParseFlags(n.flags.String),
		},
	}
}

// parseConfidence reads the stored string form; unreadable values count as 0.
func parseConfidence(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func formatConfidence(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func requireAffected(result sql.Result, what string, id any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, common.ErrNotFound)
	}
	return nil
}
