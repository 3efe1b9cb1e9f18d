package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/vatflow/internal/common"
)

func TestDefault(t *testing.T) {
	table := Default()

	stats := table.Stats()
	assert.Equal(t, "v0.2", stats.Version)
	assert.Positive(t, stats.VendorHints)
	assert.Positive(t, stats.NonDeductibleCategories)
	assert.Positive(t, stats.PurchaseKeywords)
	assert.Equal(t, "접대비", table.NonDeductible.Keywords[0].Name)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed", data: `{"vendor_hints": [`},
		{name: "keywords not a mapping", data: `{"non_deductible": {"keywords": ["a"]}}`},
		{name: "empty non-deductible keyword", data: `{"non_deductible": {"keywords": {"x": [""]}}}`},
		{name: "blank sales keyword", data: `{"classify_hints": {"sales_keywords": ["  "]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: v0.3
vendor_hints:
  쿠팡:
    default_account: 소모품비
    default_tax_type: 과세
`), 0o600))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "v0.3", table.Version)
	assert.Equal(t, "소모품비", table.VendorHints["쿠팡"].DefaultAccount)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	table, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default().Stats(), table.Stats())
}
