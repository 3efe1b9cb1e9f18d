// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether an entry brings money in or sends it out.
type Direction string

// Direction constants.
const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIncome || d == DirectionExpense
}

// Entry sources.
const (
	SourceCSV    = "hometax_csv"
	SourceOFX    = "ofx"
	SourceDirect = "direct_input"
)

// NormalizedEntry is one bookkeeping transaction line. Amount and VAT are
// signed: positive for income, negative for expense.
type NormalizedEntry struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Amount    decimal.Decimal
	VAT       decimal.Decimal
	UserID    string
	FileID    string
	Period    string
	TrxDate   string // free-form, usually YYYY-MM-DD
	Vendor    string
	Memo      string
	Source    string
	ID        int64
	RawLine   int
}

// Direction derives the transaction direction from the amount sign.
func (e NormalizedEntry) Direction() Direction {
	if e.Amount.IsPositive() {
		return DirectionIncome
	}
	return DirectionExpense
}

// Fingerprint identifies an entry's content for duplicate detection on import.
func (e NormalizedEntry) Fingerprint() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		strings.TrimSpace(e.TrxDate),
		e.Amount.StringFixed(2),
		e.VAT.StringFixed(2),
		strings.TrimSpace(e.Vendor),
		strings.TrimSpace(e.Memo))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// EntryWithClassification joins an entry with its classification, if any.
type EntryWithClassification struct {
	Classification *ClassifiedEntry
	Entry          NormalizedEntry
}

// EntryFilter narrows entry queries. Zero values mean "no filter".
type EntryFilter struct {
	Period string // matched as a prefix of the transaction date when len >= 4
	UserID string
	FileID string
	IDs    []int64
	Limit  int
	Offset int
}

// RawFile records an uploaded source document.
type RawFile struct {
	UploadedAt time.Time
	ID         string
	UserID     string
	Period     string
	Source     string
	MIME       string
	Checksum   string
	URI        string
	Filename   string
	SizeBytes  int64
}
