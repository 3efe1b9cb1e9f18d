// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/vatflow/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Raw file operations
	SaveImport(ctx context.Context, file *model.RawFile, entries []model.NormalizedEntry) ([]int64, error)
	GetRawFile(ctx context.Context, id string) (*model.RawFile, error)
	GetRawFileByChecksum(ctx context.Context, checksum string) (*model.RawFile, error)

	// Entry operations
	CreateEntry(ctx context.Context, entry *model.NormalizedEntry) error
	UpdateEntry(ctx context.Context, entry *model.NormalizedEntry) error
	UpdateEntryResetClassification(ctx context.Context, entry *model.NormalizedEntry) error
	DeleteEntry(ctx context.Context, id int64) error
	GetEntry(ctx context.Context, id int64) (*model.NormalizedEntry, error)
	ListEntries(ctx context.Context, filter model.EntryFilter) ([]model.NormalizedEntry, error)
	ListEntriesWithClassification(ctx context.Context, filter model.EntryFilter) ([]model.EntryWithClassification, error)
	ListClassifiedEntries(ctx context.Context, filter model.EntryFilter) ([]model.EntryWithClassification, error)
	HasMemoContaining(ctx context.Context, marker string, filter model.EntryFilter) (bool, error)
	HasDateOutsidePeriod(ctx context.Context, period string) (bool, error)

	// Classification operations
	SaveClassification(ctx context.Context, classification *model.ClassifiedEntry) error
	GetClassification(ctx context.Context, entryID int64) (*model.ClassifiedEntry, error)

	// Checklist operations
	SavePrepItems(ctx context.Context, items []model.PrepItem) (int, error)
	ListPrepItems(ctx context.Context, period string) ([]model.PrepItem, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Linear waits InitialDelay × attempt instead of growing by Multiplier.
	Linear bool
	// Jitter spreads each delay by ±Jitter of its length (0 disables).
	Jitter float64
}
