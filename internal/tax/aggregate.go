// Package tax computes VAT estimates from stored entries.
package tax

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/vatflow/internal/model"
)

// SalesMarker identifies sales entries in the classification view.
const SalesMarker = "매출"

const places = 2

// Estimate is the classification view. Non-deductible entries only count
// toward NonDeductibleVAT; otherwise entries whose memo carries the sales
// marker add their signed VAT to SalesVAT and the rest add |VAT| to
// PurchaseVAT. Refund positions are reported as a payable of zero. Rows
// without a classification are ignored.
func Estimate(period string, rows []model.EntryWithClassification) model.TaxEstimate {
	sales := decimal.Zero
	purchase := decimal.Zero
	nonDeductible := decimal.Zero

	for _, row := range rows {
		if row.Classification == nil {
			continue
		}
		vat := row.Entry.VAT

		switch {
		case row.Classification.TaxType == model.TaxTypeNonDeductible:
			nonDeductible = nonDeductible.Add(vat.Abs())
		case strings.Contains(row.Entry.Memo, SalesMarker):
			sales = sales.Add(vat)
		default:
			purchase = purchase.Add(vat.Abs())
		}
	}

	return model.TaxEstimate{
		Period:           period,
		SalesVAT:         sales.Round(places),
		PurchaseVAT:      purchase.Round(places),
		NonDeductibleVAT: nonDeductible.Round(places),
		PayableVAT:       clampZero(sales.Sub(purchase)).Round(places),
	}
}

// SignSummary is the sign view: entries with a positive amount are income
// and count toward sales tax, everything else is expense and counts toward
// purchase tax. Classification is not consulted.
func SignSummary(entries []model.NormalizedEntry) model.SignSummary {
	var s model.SignSummary
	s.SalesTax = decimal.Zero
	s.PurchaseTax = decimal.Zero
	s.TotalIncome = decimal.Zero
	s.TotalExpense = decimal.Zero

	for _, e := range entries {
		if e.Amount.IsPositive() {
			s.TotalIncome = s.TotalIncome.Add(e.Amount)
			s.SalesTax = s.SalesTax.Add(e.VAT.Abs())
		} else {
			s.TotalExpense = s.TotalExpense.Add(e.Amount.Abs())
			s.PurchaseTax = s.PurchaseTax.Add(e.VAT.Abs())
		}
	}

	s.PayableTax = clampZero(s.SalesTax.Sub(s.PurchaseTax))
	s.NetProfit = s.TotalIncome.Sub(s.TotalExpense)
	s.EntryCount = len(entries)
	return s
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
