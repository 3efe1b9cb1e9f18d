package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Checklist signal codes.
const (
	SignalNoCashReceipt  = "NO_CASH_RECEIPT"
	SignalPeriodMismatch = "PERIOD_MISMATCH"
)

// PrepItem status values. Only OPEN is produced by the checklist.
const (
	PrepStatusOpen = "OPEN"
)

// ChecklistSignal is a detected gap or anomaly in a period's data.
type ChecklistSignal struct {
	Code        string `json:"code"`
	Description string `json:"desc"`
}

// PrepItem is a persisted checklist entry awaiting manual resolution.
type PrepItem struct {
	UpdatedAt time.Time
	UserID    string
	Period    string
	Type      string
	TargetRef string
	Status    string
	FixHint   string
	ID        int64
}

// TaxEstimate is the classification-based VAT view of a period.
type TaxEstimate struct {
	Period           string
	SalesVAT         decimal.Decimal
	PurchaseVAT      decimal.Decimal
	NonDeductibleVAT decimal.Decimal
	PayableVAT       decimal.Decimal
}

// SignSummary is the sign-based view: income and expense buckets split by amount sign.
type SignSummary struct {
	SalesTax     decimal.Decimal
	PurchaseTax  decimal.Decimal
	PayableTax   decimal.Decimal
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	NetProfit    decimal.Decimal
	EntryCount   int
}
