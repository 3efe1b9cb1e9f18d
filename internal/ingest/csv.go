// Package ingest turns uploaded statements into normalized entries.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/vatflow/internal/model"
)

// CSV column names.
const (
	ColumnDate   = "date"
	ColumnVendor = "vendor"
	ColumnAmount = "amount"
	ColumnVAT    = "vat"
	ColumnMemo   = "memo"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV reads a headered CSV document (date,vendor,amount,vat,memo in any
// order). Invalid UTF-8 bytes are dropped, unparseable numbers become zero and
// missing columns are empty. The date is kept verbatim, even when empty, so
// every data row yields one entry. Rows parsed before a malformed line are
// returned together with the error.
func ParseCSV(data []byte, period, source string) ([]model.NormalizedEntry, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	text := strings.ToValidUTF8(string(data), "")

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}
	field := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var entries []model.NormalizedEntry
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}

		date := field(record, ColumnDate)
		entries = append(entries, model.NormalizedEntry{
			RawLine: line,
			Period:  periodOf(period, date),
			TrxDate: date,
			Vendor:  field(record, ColumnVendor),
			Amount:  parseNumber(field(record, ColumnAmount)),
			VAT:     parseNumber(field(record, ColumnVAT)),
			Memo:    field(record, ColumnMemo),
			Source:  source,
		})
	}

	return entries, nil
}

func parseNumber(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// periodOf returns period, or the YYYY-MM prefix of date when period is empty.
func periodOf(period, date string) string {
	if period != "" || len(date) < 7 {
		return period
	}
	return date[:7]
}
