package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/engine"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/rules"
	"github.com/Veraticus/vatflow/internal/service"
	"github.com/Veraticus/vatflow/internal/testutil"
)

const sampleCSV = "date,vendor,amount,vat,memo\n" +
	"2025-09-01,오피스디포,-33000,-3000,사무용품 구입\n" +
	"2025-09-02,고객사,110000,10000,매출 용역\n" +
	"2025-09-03,한식당,-88000,-8000,거래처 접대\n"

type fakeClassifier struct {
	err    error
	fileID string
	count  int
}

func (f *fakeClassifier) ClassifyFile(_ context.Context, fileID string) (int, error) {
	f.fileID = fileID
	return f.count, f.err
}

func TestImporter_ImportCSV(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	classifier := &fakeClassifier{count: 3}

	im := NewImporter(db.Storage, classifier, "", nil)
	im.now = func() time.Time { return time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC) }

	result, err := im.Import(ctx, "hometax.csv", []byte(sampleCSV), FormatCSV, Options{Period: "2025-09", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, 3, result.Classified)
	assert.NoError(t, result.ClassifyErr)
	assert.Equal(t, result.File.ID, classifier.fileID)
	assert.Len(t, result.File.Checksum, 64)
	assert.Equal(t, model.SourceCSV, result.File.Source)
	assert.Equal(t, int64(len(sampleCSV)), result.File.SizeBytes)

	stored, err := db.Storage.GetRawFile(ctx, result.File.ID)
	require.NoError(t, err)
	assert.Equal(t, "hometax.csv", stored.Filename)
	assert.Equal(t, "2025-09", stored.Period)

	entries, err := db.Storage.ListEntries(ctx, model.EntryFilter{FileID: result.File.ID})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "u1", e.UserID)
		assert.Equal(t, result.File.ID, e.FileID)
	}
}

func TestImporter_Duplicate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	im := NewImporter(db.Storage, nil, "", nil)

	first, err := im.Import(ctx, "a.csv", []byte(sampleCSV), FormatCSV, Options{})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := im.Import(ctx, "b.csv", []byte(sampleCSV), FormatCSV, Options{})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.File.ID, second.File.ID)
	assert.Equal(t, "a.csv", second.File.Filename)
	assert.Zero(t, second.Stored)

	entries, err := db.Storage.ListEntries(ctx, model.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

// checksumStore fails or misses checksum lookups on demand.
type checksumStore struct {
	service.Storage
	lookupErr error
	misses    int
}

func (c *checksumStore) GetRawFileByChecksum(ctx context.Context, checksum string) (*model.RawFile, error) {
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	if c.misses > 0 {
		c.misses--
		return nil, common.ErrNotFound
	}
	return c.Storage.GetRawFileByChecksum(ctx, checksum)
}

func TestImporter_DuplicateDetectedOnSave(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	first, err := NewImporter(db.Storage, nil, "", nil).Import(ctx, "a.csv", []byte(sampleCSV), FormatCSV, Options{})
	require.NoError(t, err)

	store := &checksumStore{Storage: db.Storage, misses: 1}
	second, err := NewImporter(store, nil, "", nil).Import(ctx, "b.csv", []byte(sampleCSV), FormatCSV, Options{})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.File.ID, second.File.ID)
}

func TestImporter_ChecksumLookupFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := &checksumStore{Storage: db.Storage, lookupErr: common.ErrPersistence}

	_, err := NewImporter(store, nil, "", nil).Import(context.Background(), "a.csv", []byte(sampleCSV), FormatCSV, Options{})
	assert.ErrorIs(t, err, common.ErrPersistence)

	entries, err := db.Storage.ListEntries(context.Background(), model.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImporter_ClassificationFailureKeepsUpload(t *testing.T) {
	db := testutil.SetupTestDB(t)
	classifier := &fakeClassifier{count: 1, err: errors.New("database is locked")}
	im := NewImporter(db.Storage, classifier, "", nil)

	result, err := im.Import(context.Background(), "x.csv", []byte(sampleCSV), FormatCSV, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, 1, result.Classified)
	assert.Error(t, result.ClassifyErr)
}

func TestImporter_Rejects(t *testing.T) {
	db := testutil.SetupTestDB(t)
	im := NewImporter(db.Storage, nil, "", nil)
	ctx := context.Background()

	tests := []struct {
		wantErr  error
		name     string
		filename string
		data     []byte
		format   Format
	}{
		{name: "empty", filename: "a.csv", data: nil, format: FormatCSV, wantErr: ErrEmptyFile},
		{name: "wrong extension", filename: "a.xlsx", data: []byte("x"), format: FormatCSV, wantErr: ErrUnsupportedFile},
		{name: "csv as ofx", filename: "a.csv", data: []byte("x"), format: FormatOFX, wantErr: ErrUnsupportedFile},
		{name: "unknown format", filename: "a.csv", data: []byte("x"), format: Format("pdf"), wantErr: ErrUnsupportedFile},
		{name: "too large", filename: "a.csv", data: make([]byte, MaxFileSize+1), format: FormatCSV, wantErr: ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Import(ctx, tt.filename, tt.data, tt.format, Options{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestImporter_UnparseableOFXStillRecorded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	classifier := &fakeClassifier{}
	im := NewImporter(db.Storage, classifier, "", nil)

	result, err := im.Import(context.Background(), "broken.qfx", []byte("garbage"), FormatOFX, Options{Period: "2025-09"})
	require.NoError(t, err)
	assert.Zero(t, result.Stored)
	assert.Empty(t, classifier.fileID, "nothing to classify")

	_, err = db.Storage.GetRawFile(context.Background(), result.File.ID)
	assert.NoError(t, err)
}

func TestImporter_ImportFileKeepsCopy(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "statement.ofx")
	require.NoError(t, os.WriteFile(path, []byte(sampleBankOFX), 0o600))

	dataDir := filepath.Join(dir, "data")
	im := NewImporter(db.Storage, nil, dataDir, nil)

	result, err := im.ImportFile(context.Background(), path, FormatOFX, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, model.SourceOFX, result.File.Source)
	assert.Equal(t, filepath.Join(dataDir, result.File.Checksum+"_statement.ofx"), result.File.URI)

	kept, err := os.ReadFile(result.File.URI)
	require.NoError(t, err)
	assert.Equal(t, sampleBankOFX, string(kept))

	_, err = im.ImportFile(context.Background(), filepath.Join(dir, "missing.ofx"), FormatOFX, Options{})
	assert.Error(t, err)
}

func TestImporter_WithClassificationEngine(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	eng := engine.New(db.Storage, rules.NewEngine(rules.Default()), nil, nil)
	im := NewImporter(db.Storage, eng, "", nil)

	result, err := im.Import(ctx, "hometax.csv", []byte(sampleCSV), FormatCSV, Options{Period: "2025-09"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Classified)

	rows, err := db.Storage.ListClassifiedEntries(ctx, model.EntryFilter{FileID: result.File.ID})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.NotNil(t, row.Classification)
		assert.True(t, row.Classification.TaxType.Valid())
	}
}

func TestImporter_KeepsRowsWithoutDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	im := NewImporter(db.Storage, nil, "", nil)

	data := "date,vendor,amount,vat,memo\n2025-09-01,A,-1000,-100,x\n,B,-2000,-200,y\n"
	result, err := im.Import(ctx, "gap.csv", []byte(data), FormatCSV, Options{Period: "2025-09"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)

	entries, err := db.Storage.ListEntries(ctx, model.EntryFilter{FileID: result.File.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].TrxDate, "empty dates sort first")
}
