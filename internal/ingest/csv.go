// Package ingest implements the deterministic, non-AI extraction paths:
// CSV exports, JSON backups, and PDF statements.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// Header aliases accepted for each column. Matching is case-insensitive
// after trimming.
var (
	dateHeaders     = []string{"date", "transaction date", "posted date", "posting date"}
	descHeaders     = []string{"description", "memo", "payee", "details", "name", "narrative"}
	amountHeaders   = []string{"amount", "value", "transaction amount"}
	typeHeaders     = []string{"type", "transaction type", "debit/credit", "dr/cr"}
	currencyHeaders = []string{"currency", "ccy"}
)

// dateLayouts are tried in order when parsing the date column.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"02 Jan 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// CSVParser parses bank and card CSV exports. Column positions are
// discovered from the header row, so differently ordered exports all
// parse without per-bank configuration.
type CSVParser struct{}

// NewCSVParser creates a CSV parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

type csvColumns struct {
	date     int
	desc     int
	amount   int
	txnType  int
	currency int
}

// Parse reads a CSV export and returns raw transactions. The first row
// must be a header naming at least date, description, and amount
// columns.
func (p *CSVParser) Parse(r io.Reader) ([]model.RawTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, err
	}

	var txns []model.RawTransaction
	for i, rec := range records[1:] {
		if isBlankRow(rec) {
			continue
		}
		txn, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func mapColumns(header []string) (csvColumns, error) {
	cols := csvColumns{date: -1, desc: -1, amount: -1, txnType: -1, currency: -1}
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case cols.date < 0 && contains(dateHeaders, name):
			cols.date = i
		case cols.desc < 0 && contains(descHeaders, name):
			cols.desc = i
		case cols.amount < 0 && contains(amountHeaders, name):
			cols.amount = i
		case cols.txnType < 0 && contains(typeHeaders, name):
			cols.txnType = i
		case cols.currency < 0 && contains(currencyHeaders, name):
			cols.currency = i
		}
	}

	var missing []string
	if cols.date < 0 {
		missing = append(missing, "date")
	}
	if cols.desc < 0 {
		missing = append(missing, "description")
	}
	if cols.amount < 0 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("CSV header missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(rec []string, cols csvColumns) (model.RawTransaction, error) {
	if cols.date >= len(rec) || cols.desc >= len(rec) || cols.amount >= len(rec) {
		return model.RawTransaction{}, fmt.Errorf("too few fields (%d)", len(rec))
	}

	date, err := parseDate(rec[cols.date])
	if err != nil {
		return model.RawTransaction{}, err
	}

	amount, err := parseAmount(rec[cols.amount])
	if err != nil {
		return model.RawTransaction{}, err
	}

	txn := model.RawTransaction{
		Date:        date,
		Description: strings.TrimSpace(rec[cols.desc]),
		Currency:    "USD",
		Amount:      amount.Abs(),
		Confidence:  1.0,
		Source:      model.SourceLocal,
	}

	// Sign carries direction unless an explicit type column overrides.
	txn.Type = model.TypeExpense
	if amount.IsPositive() {
		txn.Type = model.TypeIncome
	}
	if cols.txnType >= 0 && cols.txnType < len(rec) {
		if t, ok := parseType(rec[cols.txnType]); ok {
			txn.Type = t
		}
	}

	if cols.currency >= 0 && cols.currency < len(rec) {
		if ccy := strings.ToUpper(strings.TrimSpace(rec[cols.currency])); ccy != "" {
			txn.Currency = ccy
		}
	}
	return txn, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q: unrecognized format", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	// Accounting-style negatives: (12.34)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.Trim(s, "()")
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return amount, nil
}

func parseType(s string) (model.TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit", "cr", "deposit", "income":
		return model.TypeIncome, true
	case "debit", "dr", "withdrawal", "expense", "sale", "payment":
		return model.TypeExpense, true
	default:
		return "", false
	}
}

func contains(aliases []string, name string) bool {
	for _, a := range aliases {
		if a == name {
			return true
		}
	}
	return false
}

func isBlankRow(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
