package model

import (
	"encoding/json"
	"slices"
	"time"
)

// TaxType is the VAT treatment assigned to an entry. Values are the labels
// used by the rule tables and the model prompts.
type TaxType string

// Tax type constants. Zero-rated entries are TaxTypeTaxable with FlagZeroRatedCandidate.
const (
	TaxTypeTaxable       TaxType = "과세"
	TaxTypeExempt        TaxType = "면세"
	TaxTypeNonDeductible TaxType = "불공제"
)

// Valid reports whether t is one of the enumerated tax types.
func (t TaxType) Valid() bool {
	switch t {
	case TaxTypeTaxable, TaxTypeExempt, TaxTypeNonDeductible:
		return true
	}
	return false
}

// Classification flags.
const (
	FlagNonDeductible      = "NON_DEDUCTIBLE"
	FlagLowConfidence      = "LOW_CONFIDENCE"
	FlagZeroRatedCandidate = "ZERO_RATED_CANDIDATE"
	FlagExempt             = "EXEMPT"
)

// Account labels used by the built-in rules.
const (
	AccountSales    = "매출"
	AccountSupplies = "소모품비"
	AccountWelfare  = "복리후생비"
	AccountTelecom  = "통신비"
	AccountRent     = "임차료"
	AccountOther    = "기타비용"
)

// Classification is a candidate accounting category and tax treatment.
type Classification struct {
	AccountCode string
	TaxType     TaxType
	Reason      string
	Flags       []string
	Confidence  float64
}

// HasFlag reports whether the classification carries flag.
func (c Classification) HasFlag(flag string) bool {
	return slices.Contains(c.Flags, flag)
}

// Clone returns a copy that shares no slices with c.
func (c Classification) Clone() Classification {
	out := c
	out.Flags = slices.Clone(c.Flags)
	return out
}

// FlagsJSON serializes flags to the stored string form. Nil flags encode as "[]".
func (c Classification) FlagsJSON() string {
	flags := c.Flags
	if flags == nil {
		flags = []string{}
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// ParseFlags decodes the stored string form of flags. Malformed input yields nil.
func ParseFlags(s string) []string {
	if s == "" {
		return nil
	}
	var flags []string
	if err := json.Unmarshal([]byte(s), &flags); err != nil {
		return nil
	}
	return flags
}

// ClassifiedEntry is the persisted classification of exactly one entry.
type ClassifiedEntry struct {
	UpdatedAt time.Time
	ModelUsed string
	Classification
	EntryID int64
}
