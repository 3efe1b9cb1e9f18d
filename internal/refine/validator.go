// Package refine repairs and validates model classification output and
// merges it with the rule-based guess.
package refine

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Veraticus/vatflow/internal/model"
)

var requiredKeys = []string{"account_code", "tax_type", "confidence"}

// Validate checks a decoded classification payload. Only the required keys,
// the tax type enumeration, and the confidence range are checked.
func Validate(obj any) (bool, string) {
	payload, ok := obj.(map[string]any)
	if !ok || payload == nil {
		return false, "not a JSON object"
	}

	for _, key := range requiredKeys {
		if _, ok := payload[key]; !ok {
			return false, "missing key: " + key
		}
	}

	taxType, ok := payload["tax_type"].(string)
	if !ok || !model.TaxType(taxType).Valid() {
		return false, "invalid tax_type"
	}

	confidence, ok := toFloat(payload["confidence"])
	if !ok {
		return false, "confidence not a number"
	}
	if !(confidence >= 0 && confidence <= 1) {
		return false, "confidence out of range"
	}

	return true, ""
}

// toFloat accepts JSON numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
