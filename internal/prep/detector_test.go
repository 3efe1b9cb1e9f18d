package prep

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/service"
	"github.com/Veraticus/vatflow/internal/testutil"
)

func codes(signals []model.ChecklistSignal) []string {
	out := []string{}
	for _, s := range signals {
		out = append(out, s.Code)
	}
	return out
}

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name    string
		period  string
		scope   CashReceiptScope
		entries []model.NormalizedEntry
		want    []string
	}{
		{
			name:   "clean period",
			period: "2025-09",
			entries: []model.NormalizedEntry{
				testutil.Entry("2025-09-01", "A", "현금영수증 발급", -1000, -100),
				testutil.Entry("2025-09-20", "B", "카드", -2000, -200),
			},
			want: []string{},
		},
		{
			name:   "no cash receipt anywhere",
			period: "2025-09",
			entries: []model.NormalizedEntry{
				testutil.Entry("2025-09-01", "A", "카드", -1000, -100),
			},
			want: []string{model.SignalNoCashReceipt},
		},
		{
			name:   "other month present",
			period: "2025-09",
			entries: []model.NormalizedEntry{
				testutil.Entry("2025-09-01", "A", "현금영수증", -1000, -100),
				testutil.Entry("2025-08-31", "B", "카드", -1000, -100),
			},
			want: []string{model.SignalPeriodMismatch},
		},
		{
			name:   "both signals in order",
			period: "2025-09",
			entries: []model.NormalizedEntry{
				testutil.Entry("2025-10-01", "A", "카드", -1000, -100),
			},
			want: []string{model.SignalNoCashReceipt, model.SignalPeriodMismatch},
		},
		{
			name:   "year period skips mismatch check",
			period: "2025",
			entries: []model.NormalizedEntry{
				testutil.Entry("2024-12-01", "A", "현금영수증", -1000, -100),
			},
			want: []string{},
		},
		{
			name:   "corpus scope sees receipts in other months",
			period: "2025-09",
			entries: []model.NormalizedEntry{
				testutil.Entry("2025-09-01", "A", "카드", -1000, -100),
				testutil.Entry("2025-08-01", "B", "현금영수증", -1000, -100),
			},
			want: []string{model.SignalPeriodMismatch},
		},
		{
			name:   "period scope ignores receipts in other months",
			period: "2025-09",
			scope:  ScopePeriod,
			entries: []model.NormalizedEntry{
				testutil.Entry("2025-09-01", "A", "카드", -1000, -100),
				testutil.Entry("2025-08-01", "B", "현금영수증", -1000, -100),
			},
			want: []string{model.SignalNoCashReceipt, model.SignalPeriodMismatch},
		},
		{
			name:   "empty database",
			period: "2025-09",
			want:   []string{model.SignalNoCashReceipt},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			if len(tt.entries) > 0 {
				db.Seed(tt.entries...)
			}

			signals, err := NewDetector(db.Storage, tt.scope, nil).Detect(context.Background(), tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(signals))
		})
	}
}

func TestParseCashReceiptScope(t *testing.T) {
	scope, err := ParseCashReceiptScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeCorpus, scope)

	scope, err = ParseCashReceiptScope("period")
	require.NoError(t, err)
	assert.Equal(t, ScopePeriod, scope)

	_, err = ParseCashReceiptScope("galaxy")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

// brokenStore fails every memo lookup.
type brokenStore struct {
	service.Storage
}

func (brokenStore) HasMemoContaining(context.Context, string, model.EntryFilter) (bool, error) {
	return false, errors.New("database is locked")
}

func TestDetector_StorageError(t *testing.T) {
	_, err := NewDetector(brokenStore{}, ScopeCorpus, nil).Detect(context.Background(), "2025-09")
	assert.Error(t, err)
}
