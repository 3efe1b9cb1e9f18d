package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/service"
)

// Direct entry limits.
const (
	MaxVendorLength = 500
	MaxMemoLength   = 1000
	dateLayout      = "2006-01-02"
)

// ErrInvalidInput marks a direct entry request that failed validation.
var ErrInvalidInput = errors.New("invalid entry input")

// EntryClassifier classifies specific entries.
type EntryClassifier interface {
	ClassifyEntries(ctx context.Context, ids []int64) (int, error)
}

// DirectInput is a hand-typed transaction. Amount and VAT are magnitudes;
// the sign comes from Type.
type DirectInput struct {
	Amount  decimal.Decimal
	VAT     decimal.Decimal
	TrxDate string
	Vendor  string
	Memo    string
	UserID  string
	Type    model.Direction
}

// DirectUpdate carries the fields to change. Nil fields are left alone.
type DirectUpdate struct {
	Amount  *decimal.Decimal
	VAT     *decimal.Decimal
	TrxDate *string
	Vendor  *string
	Memo    *string
	Type    *model.Direction
}

// UpdateResult reports an updated entry and whether its classification was
// discarded.
type UpdateResult struct {
	Entry       model.NormalizedEntry
	Invalidated bool
}

// EntryService manages directly entered transactions.
type EntryService struct {
	storage    service.Storage
	classifier EntryClassifier
	logger     *slog.Logger
}

// NewEntryService creates an entry service. A nil classifier leaves new and
// invalidated entries unclassified.
func NewEntryService(storage service.Storage, classifier EntryClassifier, logger *slog.Logger) *EntryService {
	return &EntryService{storage: storage, classifier: classifier, logger: common.LoggerOrDefault(logger)}
}

// Create validates and stores a direct entry, then classifies it.
func (s *EntryService) Create(ctx context.Context, in DirectInput) (model.NormalizedEntry, error) {
	if err := validateDirect(in); err != nil {
		return model.NormalizedEntry{}, err
	}

	entry := model.NormalizedEntry{
		UserID:  in.UserID,
		Period:  in.TrxDate[:7],
		TrxDate: in.TrxDate,
		Vendor:  strings.TrimSpace(in.Vendor),
		Memo:    in.Memo,
		Source:  model.SourceDirect,
	}
	entry.Amount, entry.VAT = signed(in.Type, in.Amount, in.VAT)

	if err := s.storage.CreateEntry(ctx, &entry); err != nil {
		return model.NormalizedEntry{}, fmt.Errorf("failed to create entry: %w", err)
	}

	s.classify(ctx, entry.ID)
	return entry, nil
}

// Update applies changes to an entry. When the direction flips or the amount
// or VAT changes, the stored classification is deleted and the entry is
// classified again.
func (s *EntryService) Update(ctx context.Context, id int64, upd DirectUpdate) (UpdateResult, error) {
	current, err := s.storage.GetEntry(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}

	in := DirectInput{
		Amount:  current.Amount.Abs(),
		VAT:     current.VAT.Abs(),
		TrxDate: current.TrxDate,
		Vendor:  current.Vendor,
		Memo:    current.Memo,
		UserID:  current.UserID,
		Type:    current.Direction(),
	}
	if upd.Amount != nil {
		in.Amount = *upd.Amount
	}
	if upd.VAT != nil {
		in.VAT = *upd.VAT
	}
	if upd.TrxDate != nil {
		in.TrxDate = *upd.TrxDate
	}
	if upd.Vendor != nil {
		in.Vendor = *upd.Vendor
	}
	if upd.Memo != nil {
		in.Memo = *upd.Memo
	}
	if upd.Type != nil {
		in.Type = *upd.Type
	}
	if err := validateDirect(in); err != nil {
		return UpdateResult{}, err
	}

	updated := *current
	updated.TrxDate = in.TrxDate
	updated.Period = in.TrxDate[:7]
	updated.Vendor = strings.TrimSpace(in.Vendor)
	updated.Memo = in.Memo
	updated.Amount, updated.VAT = signed(in.Type, in.Amount, in.VAT)

	invalidated := updated.Direction() != current.Direction() ||
		!updated.Amount.Equal(current.Amount) ||
		!updated.VAT.Equal(current.VAT)

	if !invalidated {
		if err := s.storage.UpdateEntry(ctx, &updated); err != nil {
			return UpdateResult{}, fmt.Errorf("failed to update entry: %w", err)
		}
		return UpdateResult{Entry: updated}, nil
	}

	if err := s.storage.UpdateEntryResetClassification(ctx, &updated); err != nil {
		return UpdateResult{}, fmt.Errorf("failed to update entry: %w", err)
	}
	s.logger.Debug("Invalidated classification after amount change", "entry_id", id)
	s.classify(ctx, id)

	return UpdateResult{Entry: updated, Invalidated: invalidated}, nil
}

// Delete removes an entry and its classification.
func (s *EntryService) Delete(ctx context.Context, id int64) error {
	return s.storage.DeleteEntry(ctx, id)
}

// List returns entries joined with their classifications.
func (s *EntryService) List(ctx context.Context, filter model.EntryFilter) ([]model.EntryWithClassification, error) {
	return s.storage.ListEntriesWithClassification(ctx, filter)
}

func (s *EntryService) classify(ctx context.Context, id int64) {
	if s.classifier == nil {
		return
	}
	if _, err := s.classifier.ClassifyEntries(ctx, []int64{id}); err != nil {
		s.logger.Warn("Failed to classify entry",
			"entry_id", id,
			"error", err)
	}
}

func signed(direction model.Direction, amount, vat decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if direction == model.DirectionExpense {
		return amount.Neg(), vat.Neg()
	}
	return amount, vat
}

func validateDirect(in DirectInput) error {
	if _, err := time.Parse(dateLayout, in.TrxDate); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrInvalidInput, in.TrxDate)
	}
	vendor := strings.TrimSpace(in.Vendor)
	if vendor == "" || utf8.RuneCountInString(vendor) > MaxVendorLength {
		return fmt.Errorf("%w: vendor must be 1-%d characters", ErrInvalidInput, MaxVendorLength)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: transaction type must be income or expense, got %q", ErrInvalidInput, in.Type)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}
	if in.VAT.IsNegative() {
		return fmt.Errorf("%w: VAT must not be negative", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Memo) > MaxMemoLength {
		return fmt.Errorf("%w: memo exceeds %d characters", ErrInvalidInput, MaxMemoLength)
	}
	return nil
}
