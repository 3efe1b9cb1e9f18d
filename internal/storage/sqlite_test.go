package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func testEntry(date, vendor, memo string, amount, vat int64) model.NormalizedEntry {
	return model.NormalizedEntry{
		TrxDate: date,
		Vendor:  vendor,
		Memo:    memo,
		Amount:  decimal.NewFromInt(amount),
		VAT:     decimal.NewFromInt(vat),
		Source:  model.SourceCSV,
		Period:  date[:7],
	}
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	if !errors.Is(err, ErrEmptyString) {
		t.Errorf("NewSQLiteStorage() error = %v, want ErrEmptyString", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("SchemaVersion() = %d, want %d", version, ExpectedSchemaVersion)
	}

	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_entries_fingerprint'
	`).Scan(&indexCount)
	if err != nil {
		t.Fatalf("Failed to check index: %v", err)
	}
	if indexCount != 1 {
		t.Error("fingerprint index was not created")
	}
}

func TestSaveImport(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	file := &model.RawFile{
		ID:       "file-1",
		Period:   "2025-09",
		Source:   model.SourceCSV,
		Checksum: "abc123",
		Filename: "hometax.csv",
	}
	entries := []model.NormalizedEntry{
		testEntry("2025-09-01", "알파문구", "사무용품 구입", -33000, -3000),
		testEntry("2025-09-02", "고객사", "매출 용역제공", 110000, 10000),
	}

	ids, err := store.SaveImport(ctx, file, entries)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "file-1", entries[0].FileID)

	got, err := store.GetRawFileByChecksum(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "hometax.csv", got.Filename)
	assert.False(t, got.UploadedAt.IsZero())

	listed, err := store.ListEntries(ctx, model.EntryFilter{FileID: "file-1"})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "알파문구", listed[0].Vendor)
	assert.True(t, listed[0].Amount.Equal(decimal.NewFromInt(-33000)))
	assert.True(t, listed[1].VAT.Equal(decimal.NewFromInt(10000)))

	t.Run("duplicate checksum rejected", func(t *testing.T) {
		_, err := store.SaveImport(ctx, &model.RawFile{ID: "file-2", Source: model.SourceCSV, Checksum: "abc123"}, entries[:1])
		assert.ErrorIs(t, err, common.ErrDuplicateEntry)

		all, err := store.ListEntries(ctx, model.EntryFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2, "failed import must roll back")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := store.GetRawFile(ctx, "nope")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestEntryCRUD(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	entry := testEntry("2025-09-05", "", "카페 커피", -5500, -500)
	entry.Source = model.SourceDirect
	require.NoError(t, store.CreateEntry(ctx, &entry))
	require.NotZero(t, entry.ID)
	assert.Empty(t, entry.FileID)

	got, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "카페 커피", got.Memo)
	assert.Equal(t, "", got.FileID)

	got.Memo = "팀 회식"
	got.Amount = decimal.NewFromInt(-88000)
	require.NoError(t, store.UpdateEntry(ctx, got))

	updated, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "팀 회식", updated.Memo)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(-88000)))

	require.NoError(t, store.SaveClassification(ctx, &model.ClassifiedEntry{
		EntryID:        entry.ID,
		ModelUsed:      "rules-v0.2",
		Classification: model.Classification{AccountCode: "복리후생비", TaxType: model.TaxTypeTaxable, Confidence: 0.7},
	}))

	require.NoError(t, store.DeleteEntry(ctx, entry.ID))
	_, err = store.GetEntry(ctx, entry.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = store.GetClassification(ctx, entry.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, store.DeleteEntry(ctx, entry.ID), common.ErrNotFound)
	missing := testEntry("2025-09-05", "", "", 1, 0)
	missing.ID = 999
	assert.ErrorIs(t, store.UpdateEntry(ctx, &missing), common.ErrNotFound)
}

func seedEntries(t *testing.T, store *SQLiteStorage, entries ...model.NormalizedEntry) []int64 {
	t.Helper()
	ids, err := store.SaveImport(context.Background(), nil, entries)
	require.NoError(t, err)
	return ids
}

func TestListEntries_Filters(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	a := testEntry("2025-08-31", "A", "", -1000, -100)
	b := testEntry("2025-09-01", "B", "", -2000, -200)
	b.UserID = "u1"
	c := testEntry("2025-09-15", "C", "", 3000, 300)
	c.UserID = "u2"
	ids := seedEntries(t, store, c, a, b)

	tests := []struct {
		name   string
		filter model.EntryFilter
		want   []string
	}{
		{name: "all ordered by date", filter: model.EntryFilter{}, want: []string{"A", "B", "C"}},
		{name: "month", filter: model.EntryFilter{Period: "2025-09"}, want: []string{"B", "C"}},
		{name: "year", filter: model.EntryFilter{Period: "2025"}, want: []string{"A", "B", "C"}},
		{name: "short period ignored", filter: model.EntryFilter{Period: "20"}, want: []string{"A", "B", "C"}},
		{name: "user", filter: model.EntryFilter{UserID: "u1"}, want: []string{"B"}},
		{name: "ids", filter: model.EntryFilter{IDs: []int64{ids[0], ids[1]}}, want: []string{"A", "C"}},
		{name: "limit offset", filter: model.EntryFilter{Limit: 1, Offset: 1}, want: []string{"B"}},
		{name: "offset only", filter: model.EntryFilter{Offset: 2}, want: []string{"C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := store.ListEntries(ctx, tt.filter)
			require.NoError(t, err)
			var vendors []string
			for _, e := range entries {
				vendors = append(vendors, e.Vendor)
			}
			assert.Equal(t, tt.want, vendors)
		})
	}
}

func TestMemoAndPeriodChecks(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	seedEntries(t, store,
		testEntry("2025-09-01", "A", "현금영수증 발급", -1000, -100),
		testEntry("2025-09-02", "B", "카드", -1000, -100),
	)

	found, err := store.HasMemoContaining(ctx, "현금영수증", model.EntryFilter{})
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.HasMemoContaining(ctx, "현금영수증", model.EntryFilter{Period: "2025-10"})
	require.NoError(t, err)
	assert.False(t, found)

	outside, err := store.HasDateOutsidePeriod(ctx, "2025-09")
	require.NoError(t, err)
	assert.False(t, outside)

	outside, err = store.HasDateOutsidePeriod(ctx, "2025-08")
	require.NoError(t, err)
	assert.True(t, outside)

	_, err = store.HasDateOutsidePeriod(ctx, "bad")
	assert.Error(t, err)
}

func TestSaveImport_EmptyDateCountsAsOutsidePeriod(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	dateless := testEntry("2025-09-01", "B", "", -1000, -100)
	dateless.TrxDate = ""
	ids := seedEntries(t, store, testEntry("2025-09-01", "A", "", -1000, -100), dateless)
	require.Len(t, ids, 2)

	got, err := store.GetEntry(ctx, ids[1])
	require.NoError(t, err)
	assert.Empty(t, got.TrxDate)
	assert.Equal(t, "2025-09", got.Period)

	outside, err := store.HasDateOutsidePeriod(ctx, "2025-09")
	require.NoError(t, err)
	assert.True(t, outside)
}
