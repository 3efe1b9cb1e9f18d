package ingest

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/vatflow/internal/common"
	"github.com/Veraticus/vatflow/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// merchantPrefixes are card network noise stripped from transaction names.
var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
	"체크카드 ",
	"신용카드 ",
}

var genericNames = map[string]bool{
	"DEBIT":           true,
	"CREDIT":          true,
	"PURCHASE":        true,
	"PAYMENT":         true,
	"POS TRANSACTION": true,
	"CARD PURCHASE":   true,
}

// OFXParser converts OFX/QFX bank and card statements into entries. OFX
// carries no VAT, so every entry has a zero VAT amount.
type OFXParser struct {
	logger *slog.Logger
}

// NewOFXParser creates an OFX parser.
func NewOFXParser(logger *slog.Logger) *OFXParser {
	return &OFXParser{logger: common.LoggerOrDefault(logger)}
}

// Parse parses an OFX document. Amounts keep the statement sign: debits are
// negative and become expenses.
func (p *OFXParser) Parse(data []byte, period string) ([]model.NormalizedEntry, error) {
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(data))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var entries []model.NormalizedEntry
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			if stmt.BankTranList != nil {
				entries = p.appendTransactions(entries, stmt.BankTranList.Transactions, period)
			}
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			if stmt.BankTranList != nil {
				entries = p.appendTransactions(entries, stmt.BankTranList.Transactions, period)
			}
		}
	}

	p.logger.Info("Parsed OFX file",
		"total_entries", len(entries),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return entries, nil
}

func (p *OFXParser) appendTransactions(entries []model.NormalizedEntry, txns []ofxgo.Transaction, period string) []model.NormalizedEntry {
	for _, tx := range txns {
		amount, err := decimal.NewFromString(tx.TrnAmt.FloatString(2))
		if err != nil {
			p.logger.Warn("Skipping OFX transaction with unreadable amount",
				"fitid", string(tx.FiTID),
				"error", err)
			continue
		}

		date := tx.DtPosted.Format("2006-01-02")
		entries = append(entries, model.NormalizedEntry{
			RawLine: len(entries) + 1,
			Period:  periodOf(period, date),
			TrxDate: date,
			Vendor:  merchantName(tx),
			Amount:  amount,
			VAT:     decimal.Zero,
			Memo:    memoOf(tx),
			Source:  model.SourceOFX,
		})
	}
	return entries
}

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be upper case
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML files sometimes drop the closing bracket of a bare tag
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func memoOf(tx ofxgo.Transaction) string {
	if memo := strings.TrimSpace(string(tx.Memo)); memo != "" {
		return memo
	}
	return strings.TrimSpace(string(tx.Name))
}

// merchantName picks the cleanest counterparty name available.
func merchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && genericNames[strings.ToUpper(name)] {
		name = strings.TrimSpace(string(tx.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// leading "MM/DD "
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}
