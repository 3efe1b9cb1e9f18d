package tax

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/service"
)

// Aggregator reads entries from storage and computes both tax views.
type Aggregator struct {
	storage service.Storage
	logger  *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(storage service.Storage, logger *slog.Logger) *Aggregator {
	return &Aggregator{storage: storage, logger: common.LoggerOrDefault(logger)}
}

// Estimate returns the classification view for period, optionally limited to
// one user. A storage failure is logged and yields zero totals.
func (a *Aggregator) Estimate(ctx context.Context, period, userID string) model.TaxEstimate {
	rows, err := a.storage.ListClassifiedEntries(ctx, model.EntryFilter{Period: period, UserID: userID})
	if err != nil {
		a.logger.Error("Failed to load classified entries, reporting zero totals",
			"period", period,
			"error", err)
		rows = nil
	}
	return Estimate(period, rows)
}

// Summary returns the sign view for period, optionally limited to one user.
// A storage failure is logged and yields zero totals.
func (a *Aggregator) Summary(ctx context.Context, period, userID string) model.SignSummary {
	entries, err := a.storage.ListEntries(ctx, model.EntryFilter{Period: period, UserID: userID})
	if err != nil {
		a.logger.Error("Failed to load entries, reporting zero totals",
			"period", period,
			"error", err)
		entries = nil
	}
	return SignSummary(entries)
}

// IsZero reports whether an estimate has no activity.
func IsZero(e model.TaxEstimate) bool {
	return e.SalesVAT.Equal(decimal.Zero) &&
		e.PurchaseVAT.Equal(decimal.Zero) &&
		e.NonDeductibleVAT.Equal(decimal.Zero)
}
