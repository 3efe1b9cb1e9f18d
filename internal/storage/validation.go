// Package storage provides the data persistence layer for vatflow.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/vatflow/internal/model"
)

// Validation errors.
var (
	ErrNilContext            = errors.New("context cannot be nil")
	ErrEmptyString           = errors.New("string parameter cannot be empty")
	ErrNilParameter          = errors.New("parameter cannot be nil")
	ErrInvalidEntry          = errors.New("invalid entry")
	ErrInvalidClassification = errors.New("invalid classification")
	ErrInvalidPrepItem       = errors.New("invalid prep item")
	ErrInvalidFile           = errors.New("invalid raw file")
)

var periodPattern = regexp.MustCompile(`^\d{4}(-\d{2})?$`)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateEntry validates a single entry. Transaction dates are free-form
// and may be empty for imported rows.
func validateEntry(entry *model.NormalizedEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if strings.TrimSpace(entry.Source) == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidEntry)
	}
	return nil
}

// validateRawFile validates a raw file record.
func validateRawFile(file *model.RawFile) error {
	if file == nil {
		return fmt.Errorf("%w: raw file", ErrNilParameter)
	}
	if strings.TrimSpace(file.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidFile)
	}
	if strings.TrimSpace(file.Checksum) == "" {
		return fmt.Errorf("%w: missing checksum", ErrInvalidFile)
	}
	return nil
}

// validateClassification validates a classification.
func validateClassification(classification *model.ClassifiedEntry) error {
	if classification == nil {
		return fmt.Errorf("%w: classification", ErrNilParameter)
	}
	if classification.EntryID <= 0 {
		return fmt.Errorf("%w: missing entry ID", ErrInvalidClassification)
	}
	if !classification.TaxType.Valid() {
		return fmt.Errorf("%w: tax type %q", ErrInvalidClassification, classification.TaxType)
	}
	if !(classification.Confidence >= 0 && classification.Confidence <= 1) {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidClassification)
	}
	return nil
}

// validatePrepItem validates a checklist item.
func validatePrepItem(item *model.PrepItem) error {
	if strings.TrimSpace(item.Type) == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidPrepItem)
	}
	if strings.TrimSpace(item.Period) == "" {
		return fmt.Errorf("%w: missing period", ErrInvalidPrepItem)
	}
	return nil
}

// validatePeriod accepts YYYY and YYYY-MM periods.
func validatePeriod(period string) error {
	if !periodPattern.MatchString(period) {
		return fmt.Errorf("%w: period %q must be YYYY or YYYY-MM", ErrInvalidEntry, period)
	}
	return nil
}
