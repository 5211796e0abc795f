package extract

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

func TestParseRawTransactions(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		content := `[
			{"description": "Coffee", "amount": 4.50, "date": "2024-01-15", "currency": "usd", "type": "expense", "confidence": 0.9},
			{"description": "Refund", "amount": 12.00, "date": "2024-01-16", "currency": "EUR", "type": "income", "confidence": 0.8}
		]`

		txns, err := parseRawTransactions("test", content, model.SourceCloud)
		require.NoError(t, err)
		require.Len(t, txns, 2)

		assert.Equal(t, "Coffee", txns[0].Description)
		assert.True(t, decimal.NewFromFloat(4.50).Equal(txns[0].Amount))
		assert.Equal(t, "USD", txns[0].Currency)
		assert.Equal(t, model.TypeExpense, txns[0].Type)
		assert.Equal(t, model.SourceCloud, txns[0].Source)
		assert.Equal(t, 2024, txns[0].Date.Year())

		assert.Equal(t, model.TypeIncome, txns[1].Type)
		assert.Equal(t, "EUR", txns[1].Currency)
	})

	t.Run("markdown fence is stripped", func(t *testing.T) {
		content := "```json\n[{\"description\": \"Tea\", \"amount\": 2, \"date\": \"2024-02-01\", \"type\": \"expense\", \"confidence\": 0.5}]\n```"
		txns, err := parseRawTransactions("test", content, model.SourceCloud)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, "Tea", txns[0].Description)
	})

	t.Run("negative amount normalizes to unsigned expense", func(t *testing.T) {
		content := `[{"description": "Groceries", "amount": -20.00, "date": "2024-01-15", "confidence": 0.9}]`
		txns, err := parseRawTransactions("test", content, model.SourceCloud)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, model.TypeExpense, txns[0].Type)
		assert.False(t, txns[0].Amount.IsNegative())
	})

	t.Run("missing type with positive amount is income", func(t *testing.T) {
		content := `[{"description": "Paycheck", "amount": 1500, "date": "2024-01-15", "confidence": 0.9}]`
		txns, err := parseRawTransactions("test", content, model.SourceCloud)
		require.NoError(t, err)
		assert.Equal(t, model.TypeIncome, txns[0].Type)
	})

	t.Run("tax figures carry through", func(t *testing.T) {
		content := `[{"description": "Milk", "amount": 3.29, "date": "2024-03-01", "type": "expense", "confidence": 0.9,
			"taxInfo": {"taxRate": 0.07, "taxAmount": 0.22, "taxCategory": "reduced", "preTaxAmount": 3.07, "discountApplied": false, "originalAmount": 3.29}}]`
		txns, err := parseRawTransactions("test", content, model.SourceCloud)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		require.NotNil(t, txns[0].TaxInfo)
		assert.True(t, decimal.NewFromFloat(0.22).Equal(txns[0].TaxInfo.TaxAmount))
	})

	t.Run("malformed JSON is an ExtractionError", func(t *testing.T) {
		_, err := parseRawTransactions("test", "not json at all", model.SourceCloud)
		var extErr *common.ExtractionError
		require.True(t, errors.As(err, &extErr))
		assert.Equal(t, "test", extErr.Provider)
	})

	t.Run("confidence is clamped", func(t *testing.T) {
		content := `[{"description": "X", "amount": 1, "date": "2024-01-15", "type": "expense", "confidence": 1.7}]`
		txns, err := parseRawTransactions("test", content, model.SourceCloud)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, txns[0].Confidence, 1e-9)
	})
}

func TestParseMultiImageTransactions(t *testing.T) {
	content := `[
		{"description": "Milk", "amount": 3.29, "date": "2024-03-01", "type": "expense", "confidence": 0.92,
		 "imageIndex": 1, "positionInImage": "top", "wasMerged": true, "mergedFromImages": [0, 1],
		 "taxInfo": {"taxRate": 0.07, "taxAmount": 0.22, "taxCategory": "reduced", "preTaxAmount": 3.07, "discountApplied": false, "originalAmount": 3.29}}
	]`

	txns, err := parseMultiImageTransactions("test", content)
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, 1, txn.ImageIndex)
	assert.Equal(t, model.PositionTop, txn.Position)
	assert.True(t, txn.WasMerged)
	assert.Equal(t, []int{0, 1}, txn.MergedFromImages)

	require.NotNil(t, txn.TaxInfo)
	assert.True(t, decimal.NewFromFloat(0.07).Equal(txn.TaxInfo.TaxRate))
	assert.True(t, decimal.NewFromFloat(3.07).Equal(txn.TaxInfo.PreTaxAmount))
	assert.Equal(t, "reduced", txn.TaxInfo.TaxCategory)
}

func TestParseCategorySuggestions(t *testing.T) {
	t.Run("count must match", func(t *testing.T) {
		_, err := parseCategorySuggestions("test", `[{"categoryId": "food", "confidence": 0.8}]`, 2)
		var extErr *common.ExtractionError
		require.True(t, errors.As(err, &extErr))
	})

	t.Run("valid", func(t *testing.T) {
		got, err := parseCategorySuggestions("test", `[{"categoryId": "food", "confidence": 0.8}, {"categoryId": "transport", "confidence": 0.6}]`, 2)
		require.NoError(t, err)
		assert.Equal(t, "food", got[0].CategoryID)
		assert.InDelta(t, 0.6, got[1].Confidence, 1e-9)
	})
}

func TestImagePosition(t *testing.T) {
	assert.Equal(t, model.PositionTop, imagePosition("TOP"))
	assert.Equal(t, model.PositionBottom, imagePosition("bottom"))
	assert.Equal(t, model.PositionMiddle, imagePosition("middle"))
	assert.Equal(t, model.PositionMiddle, imagePosition(""))
}
