package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// backupFile is the application's own export format. Amounts are strings
// so exports survive round-tripping without float drift.
type backupFile struct {
	Version      int                 `json:"version"`
	ExportedAt   time.Time           `json:"exported_at"`
	Transactions []backupTransaction `json:"transactions"`
}

type backupTransaction struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	CategoryID  string `json:"category_id,omitempty"`
}

// backupVersion is the highest export format version this build reads.
const backupVersion = 1

// JSONParser parses the application's backup export files.
type JSONParser struct{}

// NewJSONParser creates a JSON backup parser.
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Parse reads a backup file and returns its transactions.
func (p *JSONParser) Parse(r io.Reader) ([]model.RawTransaction, error) {
	var file backupFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding backup: %w", err)
	}
	if file.Version > backupVersion {
		return nil, fmt.Errorf("backup version %d is newer than this build supports (%d)", file.Version, backupVersion)
	}

	txns := make([]model.RawTransaction, 0, len(file.Transactions))
	for i, bt := range file.Transactions {
		txn, err := bt.toRaw()
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (bt backupTransaction) toRaw() (model.RawTransaction, error) {
	date, err := parseDate(bt.Date)
	if err != nil {
		return model.RawTransaction{}, err
	}

	amount, err := decimal.NewFromString(bt.Amount)
	if err != nil {
		return model.RawTransaction{}, fmt.Errorf("parsing amount %q: %w", bt.Amount, err)
	}

	txnType := model.TransactionType(bt.Type)
	if txnType != model.TypeIncome && txnType != model.TypeExpense {
		return model.RawTransaction{}, fmt.Errorf("unknown transaction type %q", bt.Type)
	}

	currency := bt.Currency
	if currency == "" {
		currency = "USD"
	}

	return model.RawTransaction{
		Date:        date,
		Description: bt.Description,
		Currency:    currency,
		Type:        txnType,
		Amount:      amount.Abs(),
		Confidence:  1.0,
		Source:      model.SourceLocal,
	}, nil
}
