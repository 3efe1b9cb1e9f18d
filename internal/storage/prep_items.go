package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/vatflow/internal/model"
)

// SavePrepItems inserts checklist items and returns how many were stored.
// IDs are written back into items.
func (s *SQLiteStorage) SavePrepItems(ctx context.Context, items []model.PrepItem) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	for i := range items {
		if err := validatePrepItem(&items[i]); err != nil {
			return 0, fmt.Errorf("prep item at index %d: %w", i, err)
		}
	}
	if len(items) == 0 {
		return 0, nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO prep_items (user_id, period, type, target_ref, status, fix_hint, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now()
		for i := range items {
			item := &items[i]
			if item.Status == "" {
				item.Status = model.PrepStatusOpen
			}
			item.UpdatedAt = now

			result, err := stmt.ExecContext(ctx,
				item.UserID, item.Period, item.Type, item.TargetRef,
				item.Status, item.FixHint, item.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert prep item: %w", err)
			}
			if item.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get prep item ID: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(items), nil
}

// ListPrepItems returns checklist items for a period, oldest first. An empty
// period lists every item.
func (s *SQLiteStorage) ListPrepItems(ctx context.Context, period string) ([]model.PrepItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, period, type, target_ref, status, fix_hint, updated_at FROM prep_items`
	var args []any
	if period != "" {
		query += ` WHERE period = ?`
		args = append(args, period)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prep items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.PrepItem
	for rows.Next() {
		var item model.PrepItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.Period, &item.Type,
			&item.TargetRef, &item.Status, &item.FixHint, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prep item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
