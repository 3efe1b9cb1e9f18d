package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/vatflow/internal/model"
)

const testTableJSON = `{
  "vendor_hints": {
    "KT": {"default_account": "통신비", "default_tax_type": "과세"},
    "교보문고": {"default_account": "도서인쇄비", "default_tax_type": "면세"},
    "빈힌트": {}
  },
  "non_deductible": {
    "keywords": {
      "접대비": ["접대", "골프"],
      "사업무관": ["개인용도"]
    },
    "reason_map": {"접대비": "접대비 불공제"}
  },
  "account_mapping": {"접대": "접대비", "소모품": "사무소모품"},
  "classify_hints": {
    "zero_rated_keywords": ["수출"],
    "exempt_keywords": ["도서"],
    "sales_keywords": ["매출"],
    "purchase_keywords": ["매입", "구입"]
  }
}`

func testEngine(t *testing.T) *Engine {
	t.Helper()
	table, err := Parse([]byte(testTableJSON))
	require.NoError(t, err)
	return NewEngine(table)
}

func entry(vendor, memo string) model.NormalizedEntry {
	return model.NormalizedEntry{
		ID:      1,
		TrxDate: "2025-09-01",
		Vendor:  vendor,
		Memo:    memo,
		Amount:  decimal.NewFromInt(-11000),
		VAT:     decimal.NewFromInt(-1000),
	}
}

func TestEngine_Classify(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		name  string
		entry model.NormalizedEntry
		want  model.Classification
	}{
		{
			name:  "vendor hint",
			entry: entry("KT", "인터넷 요금"),
			want: model.Classification{
				AccountCode: "통신비", TaxType: model.TaxTypeTaxable,
				Confidence: 0.8, Reason: ReasonVendorHint, Flags: []string{},
			},
		},
		{
			name:  "vendor hint with exempt tax type",
			entry: entry("교보문고", ""),
			want: model.Classification{
				AccountCode: "도서인쇄비", TaxType: model.TaxTypeExempt,
				Confidence: 0.8, Reason: ReasonVendorHint, Flags: []string{},
			},
		},
		{
			name:  "vendor hint with missing fields uses defaults",
			entry: entry("빈힌트", ""),
			want: model.Classification{
				AccountCode: model.AccountOther, TaxType: model.TaxTypeTaxable,
				Confidence: 0.8, Reason: ReasonVendorHint, Flags: []string{},
			},
		},
		{
			name:  "non-deductible keyword with configured reason",
			entry: entry("식당", "거래처 접대 식사"),
			want: model.Classification{
				AccountCode: "접대비", TaxType: model.TaxTypeNonDeductible,
				Confidence: 0.78, Reason: "접대비 불공제", Flags: []string{model.FlagNonDeductible},
			},
		},
		{
			name:  "non-deductible second keyword maps through first keyword",
			entry: entry("골프장", "골프 라운딩"),
			want: model.Classification{
				AccountCode: "접대비", TaxType: model.TaxTypeNonDeductible,
				Confidence: 0.78, Reason: "접대비 불공제", Flags: []string{model.FlagNonDeductible},
			},
		},
		{
			name:  "non-deductible without reason or mapping",
			entry: entry("마트", "개인용도 장보기"),
			want: model.Classification{
				AccountCode: model.AccountOther, TaxType: model.TaxTypeNonDeductible,
				Confidence: 0.78, Reason: ReasonNonDeductible, Flags: []string{model.FlagNonDeductible},
			},
		},
		{
			name:  "zero-rated beats exempt and sales",
			entry: entry("바이어", "수출 매출 도서"),
			want: model.Classification{
				AccountCode: model.AccountSales, TaxType: model.TaxTypeTaxable,
				Confidence: 0.72, Reason: ReasonZeroRated, Flags: []string{model.FlagZeroRatedCandidate},
			},
		},
		{
			name:  "exempt beats sales",
			entry: entry("서점", "도서 매출"),
			want: model.Classification{
				AccountCode: model.AccountSales, TaxType: model.TaxTypeExempt,
				Confidence: 0.72, Reason: ReasonExempt, Flags: []string{model.FlagExempt},
			},
		},
		{
			name:  "sales keyword",
			entry: entry("고객사", "9월 매출"),
			want: model.Classification{
				AccountCode: model.AccountSales, TaxType: model.TaxTypeTaxable,
				Confidence: 0.70, Reason: ReasonSales, Flags: []string{},
			},
		},
		{
			name:  "purchase keyword uses mapped supplies account",
			entry: entry("문구점", "사무용품 구입"),
			want: model.Classification{
				AccountCode: "사무소모품", TaxType: model.TaxTypeTaxable,
				Confidence: 0.68, Reason: ReasonPurchase, Flags: []string{},
			},
		},
		{
			name:  "no match falls back to default",
			entry: entry("스타벅스 강남점", "커피 구매"),
			want:  DefaultClassification(),
		},
		{
			name:  "matching is case sensitive",
			entry: entry("kt", "메모 없음"),
			want:  DefaultClassification(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Classify(tt.entry)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_VendorHintBeatsKeywords(t *testing.T) {
	e := testEngine(t)

	got := e.Classify(entry("KT", "거래처 접대 골프 수출 매출"))
	assert.Equal(t, "통신비", got.AccountCode)
	assert.Equal(t, model.TaxTypeTaxable, got.TaxType)
	assert.Equal(t, ReasonVendorHint, got.Reason)
	assert.False(t, got.HasFlag(model.FlagNonDeductible))
}

func TestEngine_PurchaseFallsBackToSuppliesAccount(t *testing.T) {
	table, err := Parse([]byte(`{"classify_hints": {"purchase_keywords": ["매입"]}}`))
	require.NoError(t, err)

	got := NewEngine(table).Classify(entry("도매상", "원자재 매입"))
	assert.Equal(t, model.AccountSupplies, got.AccountCode)
}

func TestEngine_CoffeeScenario(t *testing.T) {
	starbucks := model.NormalizedEntry{
		Vendor: "스타벅스 강남점",
		Memo:   "커피 구매",
		Amount: decimal.NewFromInt(-5500),
		VAT:    decimal.NewFromInt(-500),
	}

	t.Run("without coffee keyword", func(t *testing.T) {
		got := testEngine(t).Classify(starbucks)
		assert.Equal(t, model.AccountOther, got.AccountCode)
		assert.Equal(t, model.TaxTypeTaxable, got.TaxType)
		assert.InDelta(t, 0.55, got.Confidence, 1e-9)
		assert.Equal(t, []string{model.FlagLowConfidence}, got.Flags)
	})

	t.Run("with coffee as non-deductible keyword", func(t *testing.T) {
		table, err := Parse([]byte(`{
			"non_deductible": {
				"keywords": {"복리후생": ["커피", "간식"]},
				"reason_map": {"복리후생": "복리후생 불공제"}
			},
			"account_mapping": {"커피": "복리후생비"}
		}`))
		require.NoError(t, err)

		got := NewEngine(table).Classify(starbucks)
		assert.Equal(t, "복리후생비", got.AccountCode)
		assert.Equal(t, model.TaxTypeNonDeductible, got.TaxType)
		assert.InDelta(t, 0.78, got.Confidence, 1e-9)
		assert.Equal(t, "복리후생 불공제", got.Reason)
	})
}

func TestEngine_NonDeductibleDocumentOrder(t *testing.T) {
	table, err := Parse([]byte(`
non_deductible:
  keywords:
    zeta: ["공통"]
    alpha: ["공통"]
  reason_map:
    zeta: first
    alpha: second
`))
	require.NoError(t, err)
	require.Len(t, table.NonDeductible.Keywords, 2)
	assert.Equal(t, "zeta", table.NonDeductible.Keywords[0].Name)

	got := NewEngine(table).Classify(entry("", "공통 지출"))
	assert.Equal(t, "first", got.Reason)
}

func TestEngine_Invariants(t *testing.T) {
	e := NewEngine(nil)
	memos := []string{"", "접대", "수출", "면세", "매출", "매입", "주유", "random", "개인용도 가사"}
	vendors := []string{"", "KT", "한국전력공사", "unknown"}

	for _, v := range vendors {
		for _, m := range memos {
			in := entry(v, m)
			first := e.Classify(in)
			second := e.Classify(in)

			assert.Equal(t, first, second, "classification must be deterministic for %q/%q", v, m)
			assert.GreaterOrEqual(t, first.Confidence, 0.0)
			assert.LessOrEqual(t, first.Confidence, 1.0)
			assert.True(t, first.TaxType.Valid(), "tax type %q", first.TaxType)
			assert.NotEmpty(t, first.AccountCode)
		}
	}
}

func TestEngine_VersionAndSummary(t *testing.T) {
	e := testEngine(t)
	assert.Equal(t, "rules-v0.2", e.Version())
	assert.Equal(t, "룰셋 v0.2 적용", e.Summary())
}
