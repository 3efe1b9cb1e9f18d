package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS raw_files (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL DEFAULT '',
					period TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL,
					mime TEXT NOT NULL DEFAULT '',
					checksum TEXT NOT NULL,
					uri TEXT NOT NULL DEFAULT '',
					filename TEXT NOT NULL DEFAULT '',
					size_bytes INTEGER NOT NULL DEFAULT 0,
					uploaded_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS normalized_entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL DEFAULT '',
					file_id TEXT REFERENCES raw_files(id) ON DELETE CASCADE,
					period TEXT NOT NULL DEFAULT '',
					trx_date TEXT NOT NULL,
					vendor TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL DEFAULT '0',
					vat TEXT NOT NULL DEFAULT '0',
					memo TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL,
					raw_line INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS classified_entries (
					entry_id INTEGER PRIMARY KEY REFERENCES normalized_entries(id) ON DELETE CASCADE,
					account_code TEXT NOT NULL,
					tax_type TEXT NOT NULL,
					confidence TEXT NOT NULL,
					model_used TEXT NOT NULL,
					reason TEXT NOT NULL DEFAULT '',
					flags TEXT NOT NULL DEFAULT '[]',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS prep_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL DEFAULT '',
					period TEXT NOT NULL,
					type TEXT NOT NULL,
					target_ref TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					fix_hint TEXT NOT NULL DEFAULT '',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add lookup indexes",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE UNIQUE INDEX idx_raw_files_checksum ON raw_files(checksum)`,
				`CREATE INDEX idx_entries_trx_date ON normalized_entries(trx_date)`,
				`CREATE INDEX idx_entries_file ON normalized_entries(file_id)`,
				`CREATE INDEX idx_entries_user ON normalized_entries(user_id)`,
				`CREATE INDEX idx_prep_items_period ON prep_items(period)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Track entry fingerprints and updated_at triggers",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`ALTER TABLE normalized_entries ADD COLUMN fingerprint TEXT NOT NULL DEFAULT ''`,
				`CREATE INDEX idx_entries_fingerprint ON normalized_entries(fingerprint)`,
				`CREATE TRIGGER update_entries_updated_at
				AFTER UPDATE ON normalized_entries
				FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
				BEGIN
					UPDATE normalized_entries SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
				END`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
