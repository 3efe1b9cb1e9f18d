// Package prep detects pre-filing checklist signals and records them as
// open checklist items.
package prep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/service"
)

// CashReceiptMarker is the memo text that marks a cash-receipt record.
const CashReceiptMarker = "현금영수증"

// Signal descriptions.
const (
	DescNoCashReceipt  = "현금영수증 내역 없음"
	DescPeriodMismatch = "선택한 과세기간과 다른 월 자료 포함 가능"
)

// CashReceiptScope selects which entries are searched for a cash-receipt memo.
type CashReceiptScope string

// Cash-receipt scopes.
const (
	// ScopeCorpus searches every stored entry regardless of period.
	ScopeCorpus CashReceiptScope = "corpus"
	// ScopePeriod searches only entries dated within the requested period.
	ScopePeriod CashReceiptScope = "period"
)

// ParseCashReceiptScope validates a configured scope name. Empty means corpus.
func ParseCashReceiptScope(s string) (CashReceiptScope, error) {
	switch CashReceiptScope(s) {
	case "", ScopeCorpus:
		return ScopeCorpus, nil
	case ScopePeriod:
		return ScopePeriod, nil
	}
	return "", fmt.Errorf("%w: cash receipt scope %q", common.ErrInvalidConfig, s)
}

// DefaultSignals is the pair substituted when detection fails.
func DefaultSignals() []model.ChecklistSignal {
	return []model.ChecklistSignal{
		{Code: model.SignalNoCashReceipt, Description: DescNoCashReceipt},
		{Code: model.SignalPeriodMismatch, Description: DescPeriodMismatch},
	}
}

// Detector evaluates checklist signals over stored entries.
type Detector struct {
	storage service.Storage
	logger  *slog.Logger
	scope   CashReceiptScope
}

// NewDetector creates a detector. An empty scope searches the whole corpus.
func NewDetector(storage service.Storage, scope CashReceiptScope, logger *slog.Logger) *Detector {
	if scope == "" {
		scope = ScopeCorpus
	}
	return &Detector{
		storage: storage,
		scope:   scope,
		logger:  common.LoggerOrDefault(logger),
	}
}

// Detect returns the signals found for period, in a fixed order.
func (d *Detector) Detect(ctx context.Context, period string) ([]model.ChecklistSignal, error) {
	signals := []model.ChecklistSignal{}

	filter := model.EntryFilter{}
	if d.scope == ScopePeriod {
		filter.Period = period
	}

	hasCash, err := d.storage.HasMemoContaining(ctx, CashReceiptMarker, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to check cash receipts: %w", err)
	}
	if !hasCash {
		signals = append(signals, model.ChecklistSignal{Code: model.SignalNoCashReceipt, Description: DescNoCashReceipt})
	}

	if len(period) == 7 {
		mismatch, err := d.storage.HasDateOutsidePeriod(ctx, period)
		if err != nil {
			return nil, fmt.Errorf("failed to check period dates: %w", err)
		}
		if mismatch {
			signals = append(signals, model.ChecklistSignal{Code: model.SignalPeriodMismatch, Description: DescPeriodMismatch})
		}
	}

	d.logger.Debug("Detected checklist signals", "period", period, "count", len(signals))
	return signals, nil
}
