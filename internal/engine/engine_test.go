package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmarsh-dev/ledgerflow/internal/extract"
	"github.com/pmarsh-dev/ledgerflow/internal/merge"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// fakeLedger is an in-memory ledger with scriptable commit failures.
type fakeLedger struct {
	snapshot []model.LedgerEntry
	commits  []model.LedgerEntry
	records  []model.ImportHistoryRecord
	commitFn func(model.LedgerEntry) error
}

func (l *fakeLedger) Snapshot(context.Context) ([]model.LedgerEntry, error) {
	return l.snapshot, nil
}

func (l *fakeLedger) Commit(_ context.Context, entry model.LedgerEntry) error {
	if l.commitFn != nil {
		if err := l.commitFn(entry); err != nil {
			return err
		}
	}
	l.commits = append(l.commits, entry)
	return nil
}

func (l *fakeLedger) SaveImportRecord(_ context.Context, record model.ImportHistoryRecord) error {
	l.records = append(l.records, record)
	return nil
}

// fixedCategorizer always answers with the same suggestion.
type fixedCategorizer struct {
	suggestion service.CategorySuggestion
	err        error
}

func (c *fixedCategorizer) Suggest(context.Context, string) (service.CategorySuggestion, error) {
	return c.suggestion, c.err
}

func newOrchestrator(ledger *fakeLedger, categorizer service.Categorizer) *Orchestrator {
	if categorizer == nil {
		categorizer = &fixedCategorizer{suggestion: service.CategorySuggestion{CategoryID: "dining", Confidence: 0.9}}
	}
	return New(Config{Ledger: ledger, Categorizer: categorizer})
}

// taxCloudStub answers multi-image extraction with a fixed item list.
type taxCloudStub struct {
	txns []model.MultiImageTransaction
}

func (c *taxCloudStub) ParseReceipt(context.Context, []byte, string) (extract.ReceiptSummary, error) {
	return extract.ReceiptSummary{}, nil
}

func (c *taxCloudStub) ExtractFromImage(context.Context, []byte, string) ([]model.RawTransaction, error) {
	return nil, nil
}

func (c *taxCloudStub) ExtractFromPDF(context.Context, string) ([]model.RawTransaction, error) {
	return nil, nil
}

func (c *taxCloudStub) ExtractFromImages(context.Context, [][]byte, string) ([]model.MultiImageTransaction, error) {
	return c.txns, nil
}

func (c *taxCloudStub) Categorize(context.Context, []string, []string) ([]service.CategorySuggestion, error) {
	return nil, nil
}

func (c *taxCloudStub) IsAvailable() bool { return true }

const csvFixture = "date,description,amount\n" +
	"2024-01-15,STARBUCKS #4521,-50.00\n" +
	"2024-01-16,Payroll,2500.00\n"

func csvRequest(body string) ImportRequest {
	return ImportRequest{
		FileName: "export.csv",
		MimeType: "text/csv",
		Payloads: [][]byte{[]byte(body)},
	}
}

func TestProcess_CSVPath(t *testing.T) {
	ledger := &fakeLedger{}
	o := newOrchestrator(ledger, nil)

	result, err := o.Process(context.Background(), csvRequest(csvFixture))
	require.NoError(t, err)

	assert.Equal(t, "generic_csv", result.FileType)
	assert.Equal(t, model.SourceLocal, result.Source)
	require.Len(t, result.Transactions, 2)

	for _, txn := range result.Transactions {
		assert.NotEmpty(t, txn.ID)
		assert.Equal(t, "dining", txn.SuggestedCategoryID)
		assert.True(t, txn.Selected)
		assert.False(t, txn.IsDuplicate)
	}
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.Empty(t, result.Warnings)
}

func TestProcess_MarksAndDeselectsDuplicates(t *testing.T) {
	ledger := &fakeLedger{snapshot: []model.LedgerEntry{{
		ID:          "existing-1",
		Date:        time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
		Description: "Starbucks Coffee",
		Type:        model.TypeExpense,
		Amount:      decimal.NewFromFloat(50.00),
	}}}
	o := newOrchestrator(ledger, nil)

	result, err := o.Process(context.Background(), csvRequest(csvFixture))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)

	dup := result.Transactions[0]
	assert.True(t, dup.IsDuplicate)
	assert.False(t, dup.Selected)
	assert.Equal(t, "existing-1", dup.DuplicateOf)

	assert.False(t, result.Transactions[1].IsDuplicate)

	require.Len(t, result.Duplicates, 2)
	assert.Equal(t, model.MatchExact, result.Duplicates[0].MatchType)

	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, model.WarningDuplicate, result.Warnings[0].Type)
}

func TestProcess_LowConfidenceWarning(t *testing.T) {
	ledger := &fakeLedger{}
	o := newOrchestrator(ledger, &fixedCategorizer{
		suggestion: service.CategorySuggestion{CategoryID: "uncategorized", Confidence: 0.1},
	})

	result, err := o.Process(context.Background(), csvRequest(csvFixture))
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, model.WarningLowConfidence, result.Warnings[0].Type)
}

func TestProcess_CategorizerErrorDegradesToDefault(t *testing.T) {
	ledger := &fakeLedger{}
	o := newOrchestrator(ledger, &fixedCategorizer{err: errors.New("provider down")})

	result, err := o.Process(context.Background(), csvRequest(csvFixture))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, "uncategorized", result.Transactions[0].SuggestedCategoryID)
	assert.Zero(t, result.Transactions[0].CategoryConfidence)
}

func TestProcess_SpreadsheetUnsupported(t *testing.T) {
	o := newOrchestrator(&fakeLedger{}, nil)

	result, err := o.Process(context.Background(), ImportRequest{
		FileName: "budget.xlsx",
		Payloads: [][]byte{{1, 2, 3}},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Transactions)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, model.WarningUnsupported, result.Warnings[0].Type)
}

func TestProcess_MultiImageCarriesTaxInfo(t *testing.T) {
	// Extractor-supplied tax figures survive the fold into import
	// candidates instead of being dropped with the image annotations.
	tax := &model.TaxInfo{
		TaxCategory:  "reduced",
		TaxRate:      decimal.NewFromFloat(0.07),
		TaxAmount:    decimal.NewFromFloat(0.22),
		PreTaxAmount: decimal.NewFromFloat(3.07),
	}
	cloud := &taxCloudStub{txns: []model.MultiImageTransaction{{
		RawTransaction: model.RawTransaction{
			Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Description: "Milk",
			Currency:    "USD",
			TaxInfo:     tax,
			Type:        model.TypeExpense,
			Amount:      decimal.NewFromFloat(3.29),
			Confidence:  0.92,
			Source:      model.SourceCloud,
		},
		ImageIndex: 0,
		Position:   model.PositionTop,
	}}}

	ledger := &fakeLedger{}
	o := New(Config{
		Ledger:      ledger,
		Categorizer: &fixedCategorizer{suggestion: service.CategorySuggestion{CategoryID: "groceries", Confidence: 0.9}},
		Merger:      merge.NewMerger(cloud),
	})

	result, err := o.Process(context.Background(), ImportRequest{
		FileName: "receipt.jpg",
		MimeType: "image/jpeg",
		Payloads: [][]byte{{0xff}, {0xd8}},
	})
	require.NoError(t, err)

	require.Len(t, result.Transactions, 1)
	require.NotNil(t, result.Transactions[0].TaxInfo)
	assert.Equal(t, "reduced", result.Transactions[0].TaxInfo.TaxCategory)
	assert.True(t, tax.PreTaxAmount.Equal(result.Transactions[0].TaxInfo.PreTaxAmount))
	assert.Equal(t, model.SourceCloud, result.Source)
}

func TestProcess_JSONBackupPath(t *testing.T) {
	o := newOrchestrator(&fakeLedger{}, nil)

	body := `{"version": 1, "transactions": [
		{"date": "2025-05-30", "description": "Coffee", "type": "expense", "amount": "4.50"}
	]}`
	result, err := o.Process(context.Background(), ImportRequest{
		FileName: "backup.json",
		MimeType: "application/json",
		Payloads: [][]byte{[]byte(body)},
	})
	require.NoError(t, err)

	assert.Equal(t, "backup_json", result.FileType)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "Coffee", result.Transactions[0].Description)
}

func TestProcess_EmptyRequest(t *testing.T) {
	o := newOrchestrator(&fakeLedger{}, nil)
	_, err := o.Process(context.Background(), ImportRequest{FileName: "x.csv"})
	require.Error(t, err)
}

func importTxn(id, desc string, amount float64, txnType model.TransactionType, selected bool) model.ImportTransaction {
	return model.ImportTransaction{
		RawTransaction: model.RawTransaction{
			Date:        time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			Description: desc,
			Currency:    "USD",
			Type:        txnType,
			Amount:      decimal.NewFromFloat(amount),
			Confidence:  0.9,
		},
		ID:                  id,
		SuggestedCategoryID: "dining",
		Selected:            selected,
	}
}

func TestConfirm_PartialFailure(t *testing.T) {
	// Three selected rows where the second fails: the loop finishes,
	// totals cover the other two, and the history record is completed.
	ledger := &fakeLedger{commitFn: func(entry model.LedgerEntry) error {
		if entry.Description == "Doomed" {
			return errors.New("constraint violation")
		}
		return nil
	}}
	o := newOrchestrator(ledger, nil)

	result := model.ImportResult{
		FileName: "export.csv",
		FileType: "generic_csv",
		Transactions: []model.ImportTransaction{
			importTxn("a", "Coffee", 4.50, model.TypeExpense, true),
			importTxn("b", "Doomed", 10.00, model.TypeExpense, true),
			importTxn("c", "Payroll", 2500.00, model.TypeIncome, true),
		},
	}

	stats, err := o.Confirm(context.Background(), result, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 1, stats.ErrorCount)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, 2, stats.Errors[0].Row)
	assert.Equal(t, "Doomed", stats.Errors[0].OriginalValue)

	assert.True(t, stats.TotalExpenses.Equal(decimal.NewFromFloat(4.50)))
	assert.True(t, stats.TotalIncome.Equal(decimal.NewFromFloat(2500)))

	require.Len(t, ledger.records, 1)
	assert.Equal(t, model.ImportCompleted, ledger.records[0].Status)
}

func TestConfirm_SkipsUnselectedAndCountsDuplicates(t *testing.T) {
	ledger := &fakeLedger{}
	o := newOrchestrator(ledger, nil)

	dup := importTxn("d", "Seen before", 9.99, model.TypeExpense, false)
	dup.IsDuplicate = true

	result := model.ImportResult{
		Transactions: []model.ImportTransaction{
			importTxn("a", "Coffee", 4.50, model.TypeExpense, true),
			dup,
		},
	}

	stats, err := o.Confirm(context.Background(), result, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.DuplicatesSkipped)
	require.Len(t, ledger.commits, 1)
	assert.Equal(t, "Coffee", ledger.commits[0].Description)
}

func TestConfirm_NormalizesZeroDates(t *testing.T) {
	ledger := &fakeLedger{}
	o := newOrchestrator(ledger, nil)

	txn := importTxn("a", "Undated", 1.00, model.TypeExpense, true)
	txn.Date = time.Time{}

	before := time.Now().UTC()
	_, err := o.Confirm(context.Background(), model.ImportResult{
		Transactions: []model.ImportTransaction{txn},
	}, nil)
	require.NoError(t, err)

	require.Len(t, ledger.commits, 1)
	assert.False(t, ledger.commits[0].Date.IsZero())
	assert.False(t, ledger.commits[0].Date.Before(before))
}

func TestConfirm_AbortedLoopRecordsFailed(t *testing.T) {
	ledger := &fakeLedger{}
	o := newOrchestrator(ledger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := model.ImportResult{
		Transactions: []model.ImportTransaction{
			importTxn("a", "Coffee", 4.50, model.TypeExpense, true),
		},
	}
	_, err := o.Confirm(ctx, result, nil)
	require.Error(t, err)

	require.Len(t, ledger.records, 1)
	assert.Equal(t, model.ImportFailed, ledger.records[0].Status)
}

func TestConfirm_Progress(t *testing.T) {
	ledger := &fakeLedger{}
	o := newOrchestrator(ledger, nil)

	result := model.ImportResult{
		Transactions: []model.ImportTransaction{
			importTxn("a", "One", 1, model.TypeExpense, true),
			importTxn("b", "Two", 2, model.TypeExpense, true),
		},
	}

	var percents []int
	_, err := o.Confirm(context.Background(), result, func(p int) { percents = append(percents, p) })
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, percents)
}
