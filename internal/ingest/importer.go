package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/service"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 10 * 1024 * 1024

// Import errors.
var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// Format is an input document format.
type Format string

// Supported formats.
const (
	FormatCSV Format = "csv"
	FormatOFX Format = "ofx"
)

var formatExtensions = map[Format][]string{
	FormatCSV: {".csv"},
	FormatOFX: {".ofx", ".qfx"},
}

// FileClassifier classifies the entries of one imported file.
type FileClassifier interface {
	ClassifyFile(ctx context.Context, fileID string) (int, error)
}

// Options describe one upload.
type Options struct {
	Period string
	Source string
	UserID string
}

// Result reports what an import stored.
type Result struct {
	ClassifyErr error
	File        model.RawFile
	Stored      int
	Classified  int
	// Duplicate is set when identical bytes were imported before. File is
	// then the earlier upload and nothing new is stored.
	Duplicate bool
}

// Importer stores uploaded documents and their entries, then classifies them.
type Importer struct {
	storage    service.Storage
	classifier FileClassifier
	ofx        *OFXParser
	logger     *slog.Logger
	now        func() time.Time
	dataDir    string
}

// NewImporter creates an importer. A nil classifier skips classification;
// an empty dataDir keeps no copy of the uploaded bytes.
func NewImporter(storage service.Storage, classifier FileClassifier, dataDir string, logger *slog.Logger) *Importer {
	logger = common.LoggerOrDefault(logger)
	return &Importer{
		storage:    storage,
		classifier: classifier,
		ofx:        NewOFXParser(logger),
		logger:     logger,
		now:        time.Now,
		dataDir:    dataDir,
	}
}

// ImportFile reads path and imports it in the given format.
func (im *Importer) ImportFile(ctx context.Context, path string, format Format, opts Options) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > MaxFileSize {
		return Result{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return im.Import(ctx, filepath.Base(path), data, format, opts)
}

// Import stores data as a raw file with its parsed entries and then
// classifies the file. A document that fails to parse is still recorded with
// the rows read so far. Classification failures are reported in
// Result.ClassifyErr and never fail the import. Re-uploading identical bytes
// stores nothing and reports the earlier file with Result.Duplicate set.
func (im *Importer) Import(ctx context.Context, filename string, data []byte, format Format, opts Options) (Result, error) {
	if err := checkExtension(filename, format); err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{}, ErrEmptyFile
	}
	if len(data) > MaxFileSize {
		return Result{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), MaxFileSize)
	}

	source := opts.Source
	if source == "" {
		source = defaultSource(format)
	}

	entries, parseErr := im.parse(data, format, opts.Period, source)
	if parseErr != nil {
		im.logger.Warn("Failed to parse upload, storing the file with the rows read so far",
			"filename", filename,
			"entries", len(entries),
			"error", parseErr)
	}
	for i := range entries {
		entries[i].UserID = opts.UserID
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(data))
	if existing, err := im.storage.GetRawFileByChecksum(ctx, checksum); err == nil {
		return im.duplicate(filename, existing), nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return Result{}, fmt.Errorf("failed to look up %s: %w", filename, err)
	}

	file := model.RawFile{
		ID:         uuid.New().String(),
		UserID:     opts.UserID,
		Period:     opts.Period,
		Source:     source,
		MIME:       http.DetectContentType(data),
		Checksum:   checksum,
		Filename:   filename,
		SizeBytes:  int64(len(data)),
		UploadedAt: im.now(),
	}

	if im.dataDir != "" {
		uri, err := im.keepCopy(checksum, filename, data)
		if err != nil {
			return Result{}, err
		}
		file.URI = uri
	}

	if _, err := im.storage.SaveImport(ctx, &file, entries); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			if existing, lookupErr := im.storage.GetRawFileByChecksum(ctx, checksum); lookupErr == nil {
				return im.duplicate(filename, existing), nil
			}
		}
		return Result{}, fmt.Errorf("failed to store %s: %w", filename, err)
	}

	result := Result{File: file, Stored: len(entries)}
	im.logger.Info("Stored upload",
		"file_id", file.ID,
		"filename", filename,
		"entries", result.Stored)

	if im.classifier == nil || result.Stored == 0 {
		return result, nil
	}

	classified, err := im.classifier.ClassifyFile(ctx, file.ID)
	result.Classified = classified
	if err != nil {
		result.ClassifyErr = err
		im.logger.Warn("Automatic classification failed, upload kept",
			"file_id", file.ID,
			"classified", classified,
			"error", err)
	}

	return result, nil
}

func (im *Importer) duplicate(filename string, existing *model.RawFile) Result {
	im.logger.Info("Upload already imported, skipping",
		"filename", filename,
		"file_id", existing.ID,
		"first_filename", existing.Filename)
	return Result{File: *existing, Duplicate: true}
}

func (im *Importer) parse(data []byte, format Format, period, source string) ([]model.NormalizedEntry, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(data, period, source)
	case FormatOFX:
		entries, err := im.ofx.Parse(data, period)
		for i := range entries {
			entries[i].Source = source
		}
		return entries, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, format)
	}
}

func (im *Importer) keepCopy(checksum, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(im.dataDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(im.dataDir, checksum+"_"+filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to keep upload copy: %w", err)
	}
	return path, nil
}

func checkExtension(filename string, format Format) error {
	allowed, ok := formatExtensions[format]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, format)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFile, ext, strings.Join(allowed, ", "))
}

func defaultSource(format Format) string {
	if format == FormatOFX {
		return model.SourceOFX
	}
	return model.SourceCSV
}
