// Package rules implements the deterministic keyword rule engine that assigns
// an account and tax treatment to an entry from its vendor and memo text.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/vatflow/internal/common"
)

//go:embed default_rules.json
var defaultRules []byte

const defaultVersion = "v0.2"

// VendorHint is the default classification for an exact vendor name.
type VendorHint struct {
	DefaultAccount string `yaml:"default_account"`
	DefaultTaxType string `yaml:"default_tax_type"`
}

// KeywordCategory is one non-deductible category and its keywords. The first
// keyword is the representative used for account lookup.
type KeywordCategory struct {
	Name     string
	Keywords []string
}

// KeywordCategories keeps non-deductible categories in document order.
type KeywordCategories []KeywordCategory

// UnmarshalYAML decodes a mapping of category → keywords, preserving key order.
func (k *KeywordCategories) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("non_deductible.keywords: expected mapping, got %s", nodeKind(node))
	}

	out := make(KeywordCategories, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("non_deductible.keywords: %w", err)
		}
		var keywords []string
		if err := node.Content[i+1].Decode(&keywords); err != nil {
			return fmt.Errorf("non_deductible.keywords[%s]: %w", name, err)
		}
		out = append(out, KeywordCategory{Name: name, Keywords: keywords})
	}
	*k = out
	return nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "mapping"
	}
}

// NonDeductible groups the non-deductible keyword categories and their reasons.
type NonDeductible struct {
	ReasonMap map[string]string `yaml:"reason_map"`
	Keywords  KeywordCategories `yaml:"keywords"`
}

// ClassifyHints holds the keyword lists for the remaining rule stages.
type ClassifyHints struct {
	ZeroRatedKeywords []string `yaml:"zero_rated_keywords"`
	ExemptKeywords    []string `yaml:"exempt_keywords"`
	SalesKeywords     []string `yaml:"sales_keywords"`
	PurchaseKeywords  []string `yaml:"purchase_keywords"`
}

// Table is the rule document. It is loaded once and must not be mutated
// after it is handed to an Engine.
type Table struct {
	VendorHints    map[string]VendorHint `yaml:"vendor_hints"`
	AccountMapping map[string]string     `yaml:"account_mapping"`
	Version        string                `yaml:"version"`
	NonDeductible  NonDeductible         `yaml:"non_deductible"`
	ClassifyHints  ClassifyHints         `yaml:"classify_hints"`
}

// Parse decodes a rule table from JSON or YAML.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: rule table: %w", common.ErrInvalidConfig, err)
	}
	if t.Version == "" {
		t.Version = defaultVersion
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads a rule table from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule table %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in rule table.
func Default() *Table {
	t, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("built-in rule table is invalid: %v", err))
	}
	return t
}

// LoadOrDefault loads path, or returns the built-in table when path is empty.
func LoadOrDefault(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects empty keywords, which would match every memo.
func (t *Table) Validate() error {
	check := func(where string, keywords []string) error {
		for i, kw := range keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("%w: rule table %s[%d] is empty", common.ErrInvalidConfig, where, i)
			}
		}
		return nil
	}

	for _, cat := range t.NonDeductible.Keywords {
		if err := check("non_deductible.keywords."+cat.Name, cat.Keywords); err != nil {
			return err
		}
	}
	lists := []struct {
		name     string
		keywords []string
	}{
		{"classify_hints.zero_rated_keywords", t.ClassifyHints.ZeroRatedKeywords},
		{"classify_hints.exempt_keywords", t.ClassifyHints.ExemptKeywords},
		{"classify_hints.sales_keywords", t.ClassifyHints.SalesKeywords},
		{"classify_hints.purchase_keywords", t.ClassifyHints.PurchaseKeywords},
	}
	for _, l := range lists {
		if err := check(l.name, l.keywords); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes the table for diagnostics.
type Stats struct {
	Version                 string
	VendorHints             int
	NonDeductibleCategories int
	NonDeductibleKeywords   int
	AccountMappings         int
	ZeroRatedKeywords       int
	ExemptKeywords          int
	SalesKeywords           int
	PurchaseKeywords        int
}

// Stats counts the table's entries.
func (t *Table) Stats() Stats {
	s := Stats{
		Version:                 t.Version,
		VendorHints:             len(t.VendorHints),
		NonDeductibleCategories: len(t.NonDeductible.Keywords),
		AccountMappings:         len(t.AccountMapping),
		ZeroRatedKeywords:       len(t.ClassifyHints.ZeroRatedKeywords),
		ExemptKeywords:          len(t.ClassifyHints.ExemptKeywords),
		SalesKeywords:           len(t.ClassifyHints.SalesKeywords),
		PurchaseKeywords:        len(t.ClassifyHints.PurchaseKeywords),
	}
	for _, cat := range t.NonDeductible.Keywords {
		s.NonDeductibleKeywords += len(cat.Keywords)
	}
	return s
}
