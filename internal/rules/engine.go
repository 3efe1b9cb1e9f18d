package rules

import (
	"strings"

	"github.com/Veraticus/vatflow/internal/model"
)

// Rule confidences by stage.
const (
	ConfidenceVendorHint    = 0.80
	ConfidenceNonDeductible = 0.78
	ConfidenceZeroRated     = 0.72
	ConfidenceExempt        = 0.72
	ConfidenceSales         = 0.70
	ConfidencePurchase      = 0.68
	ConfidenceDefault       = 0.55
)

// Reasons attached by each stage.
const (
	ReasonVendorHint    = "업체 힌트 매칭"
	ReasonNonDeductible = "불공제"
	ReasonZeroRated     = "영세율 후보"
	ReasonExempt        = "면세 키워드"
	ReasonSales         = "매출 키워드"
	ReasonPurchase      = "매입 키워드"
	ReasonDefault       = "규칙 불일치 기본값"
)

// purchaseMappingKey is the account_mapping key consulted for purchase matches.
const purchaseMappingKey = "소모품"

// Engine classifies entries against a rule table. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	table *Table
}

// NewEngine creates an engine over table. A nil table uses the built-in rules.
func NewEngine(table *Table) *Engine {
	if table == nil {
		table = Default()
	}
	return &Engine{table: table}
}

// Version is the classifier provenance tag for rule-only results.
func (e *Engine) Version() string {
	return "rules-" + e.table.Version
}

// Summary is the short rule description embedded in model prompts.
func (e *Engine) Summary() string {
	return "룰셋 " + e.table.Version + " 적용"
}

// Table returns the rule table the engine was built with.
func (e *Engine) Table() *Table {
	return e.table
}

// Classify returns a candidate classification for entry. The first matching
// stage wins: vendor hint, non-deductible keyword, zero-rated, exempt, sales,
// purchase, then the low-confidence default. Matching is plain substring
// containment on the raw memo.
func (e *Engine) Classify(entry model.NormalizedEntry) model.Classification {
	memo := entry.Memo
	t := e.table

	if hint, ok := t.VendorHints[entry.Vendor]; ok {
		account := hint.DefaultAccount
		if account == "" {
			account = model.AccountOther
		}
		taxType := model.TaxType(hint.DefaultTaxType)
		if !taxType.Valid() {
			taxType = model.TaxTypeTaxable
		}
		return model.Classification{
			AccountCode: account,
			TaxType:     taxType,
			Confidence:  ConfidenceVendorHint,
			Reason:      ReasonVendorHint,
			Flags:       []string{},
		}
	}

	for _, cat := range t.NonDeductible.Keywords {
		if len(cat.Keywords) == 0 || !containsAny(memo, cat.Keywords) {
			continue
		}
		reason, ok := t.NonDeductible.ReasonMap[cat.Name]
		if !ok {
			reason = ReasonNonDeductible
		}
		return model.Classification{
			AccountCode: e.mapAccount(cat.Keywords[0], model.AccountOther),
			TaxType:     model.TaxTypeNonDeductible,
			Confidence:  ConfidenceNonDeductible,
			Reason:      reason,
			Flags:       []string{model.FlagNonDeductible},
		}
	}

	hints := t.ClassifyHints
	switch {
	case containsAny(memo, hints.ZeroRatedKeywords):
		return model.Classification{
			AccountCode: model.AccountSales,
			TaxType:     model.TaxTypeTaxable,
			Confidence:  ConfidenceZeroRated,
			Reason:      ReasonZeroRated,
			Flags:       []string{model.FlagZeroRatedCandidate},
		}
	case containsAny(memo, hints.ExemptKeywords):
		return model.Classification{
			AccountCode: model.AccountSales,
			TaxType:     model.TaxTypeExempt,
			Confidence:  ConfidenceExempt,
			Reason:      ReasonExempt,
			Flags:       []string{model.FlagExempt},
		}
	case containsAny(memo, hints.SalesKeywords):
		return model.Classification{
			AccountCode: model.AccountSales,
			TaxType:     model.TaxTypeTaxable,
			Confidence:  ConfidenceSales,
			Reason:      ReasonSales,
			Flags:       []string{},
		}
	case containsAny(memo, hints.PurchaseKeywords):
		return model.Classification{
			AccountCode: e.mapAccount(purchaseMappingKey, model.AccountSupplies),
			TaxType:     model.TaxTypeTaxable,
			Confidence:  ConfidencePurchase,
			Reason:      ReasonPurchase,
			Flags:       []string{},
		}
	}

	return DefaultClassification()
}

// DefaultClassification is the result when no rule matches.
func DefaultClassification() model.Classification {
	return model.Classification{
		AccountCode: model.AccountOther,
		TaxType:     model.TaxTypeTaxable,
		Confidence:  ConfidenceDefault,
		Reason:      ReasonDefault,
		Flags:       []string{model.FlagLowConfidence},
	}
}

func (e *Engine) mapAccount(key, fallback string) string {
	if account, ok := e.table.AccountMapping[key]; ok && account != "" {
		return account
	}
	return fallback
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
