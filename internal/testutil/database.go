// Package testutil provides shared test helpers for vatflow packages.
package testutil

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new migrated in-memory database that is closed when
// the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// Entry builds an entry for tests. Amount and VAT are signed.
func Entry(date, vendor, memo string, amount, vat int64) model.NormalizedEntry {
	period := date
	if len(period) > 7 {
		period = period[:7]
	}
	return model.NormalizedEntry{
		TrxDate: date,
		Vendor:  vendor,
		Memo:    memo,
		Amount:  decimal.NewFromInt(amount),
		VAT:     decimal.NewFromInt(vat),
		Source:  model.SourceCSV,
		Period:  period,
	}
}

// Seed stores entries without a file and returns them with IDs assigned.
func (db *TestDB) Seed(entries ...model.NormalizedEntry) []model.NormalizedEntry {
	db.t.Helper()
	if _, err := db.Storage.SaveImport(context.Background(), nil, entries); err != nil {
		db.t.Fatalf("failed to seed entries: %v", err)
	}
	return entries
}

// Classify stores a classification for entry.
func (db *TestDB) Classify(entry model.NormalizedEntry, taxType model.TaxType, account string) {
	db.t.Helper()
	err := db.Storage.SaveClassification(context.Background(), &model.ClassifiedEntry{
		EntryID:   entry.ID,
		ModelUsed: "rules-v0.2",
		Classification: model.Classification{
			AccountCode: account,
			TaxType:     taxType,
			Confidence:  0.7,
			Flags:       []string{},
		},
	})
	if err != nil {
		db.t.Fatalf("failed to classify entry %d: %v", entry.ID, err)
	}
}
