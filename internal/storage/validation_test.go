package storage

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/vatflow/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		entry   *model.NormalizedEntry
		wantErr error
		name    string
	}{
		{
			name:  "valid entry",
			entry: &model.NormalizedEntry{TrxDate: "2025-09-01", Source: model.SourceCSV, Amount: decimal.NewFromInt(1000)},
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantErr: ErrNilParameter,
		},
		{
			name:  "empty date accepted",
			entry: &model.NormalizedEntry{Source: model.SourceCSV},
		},
		{
			name:    "missing source",
			entry:   &model.NormalizedEntry{TrxDate: "2025-09-01"},
			wantErr: ErrInvalidEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEntry(tt.entry)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateEntry() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateEntry() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClassification(t *testing.T) {
	valid := func() *model.ClassifiedEntry {
		return &model.ClassifiedEntry{
			EntryID: 1,
			Classification: model.Classification{
				AccountCode: "소모품비",
				TaxType:     model.TaxTypeTaxable,
				Confidence:  0.68,
			},
		}
	}

	tests := []struct {
		mutate  func(*model.ClassifiedEntry)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*model.ClassifiedEntry) {}},
		{name: "missing entry", mutate: func(c *model.ClassifiedEntry) { c.EntryID = 0 }, wantErr: true},
		{name: "unknown tax type", mutate: func(c *model.ClassifiedEntry) { c.TaxType = "영세" }, wantErr: true},
		{name: "confidence above one", mutate: func(c *model.ClassifiedEntry) { c.Confidence = 1.01 }, wantErr: true},
		{name: "negative confidence", mutate: func(c *model.ClassifiedEntry) { c.Confidence = -0.1 }, wantErr: true},
		{name: "NaN confidence", mutate: func(c *model.ClassifiedEntry) { c.Confidence = math.NaN() }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := validateClassification(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateClassification() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := validateClassification(nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("validateClassification(nil) error = %v, want ErrNilParameter", err)
	}
}

func TestValidatePeriod(t *testing.T) {
	for _, period := range []string{"2025", "2025-09"} {
		if err := validatePeriod(period); err != nil {
			t.Errorf("validatePeriod(%q) unexpected error = %v", period, err)
		}
	}
	for _, period := range []string{"", "25-09", "2025-9", "2025-09-01", "2025/09"} {
		if err := validatePeriod(period); err == nil {
			t.Errorf("validatePeriod(%q) expected error", period)
		}
	}
}
