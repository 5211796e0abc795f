package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

func TestCSVParser_Parse(t *testing.T) {
	t.Run("chase-style export", func(t *testing.T) {
		input := strings.Join([]string{
			"Posting Date,Description,Amount,Type",
			"01/03/2025,GITHUB INC,-10.00,Sale",
			"01/05/2025,PAYROLL DEPOSIT,2500.00,Deposit",
		}, "\n")

		txns, err := NewCSVParser().Parse(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, txns, 2)

		assert.Equal(t, "GITHUB INC", txns[0].Description)
		assert.Equal(t, model.TypeExpense, txns[0].Type)
		assert.Equal(t, "10", txns[0].Amount.String())
		assert.Equal(t, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), txns[0].Date)
		assert.Equal(t, "USD", txns[0].Currency)
		assert.Equal(t, model.SourceLocal, txns[0].Source)

		assert.Equal(t, model.TypeIncome, txns[1].Type)
		assert.Equal(t, "2500", txns[1].Amount.String())
	})

	t.Run("header order does not matter", func(t *testing.T) {
		input := strings.Join([]string{
			"Amount,Memo,Date,Currency",
			"-4.50,Coffee,2025-02-14,EUR",
		}, "\n")

		txns, err := NewCSVParser().Parse(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, txns, 1)

		assert.Equal(t, "Coffee", txns[0].Description)
		assert.Equal(t, "EUR", txns[0].Currency)
		assert.Equal(t, model.TypeExpense, txns[0].Type)
	})

	t.Run("sign decides type without a type column", func(t *testing.T) {
		input := strings.Join([]string{
			"date,description,amount",
			"2025-01-01,Refund,12.00",
			"2025-01-02,Groceries,-55.20",
		}, "\n")

		txns, err := NewCSVParser().Parse(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, txns, 2)
		assert.Equal(t, model.TypeIncome, txns[0].Type)
		assert.Equal(t, model.TypeExpense, txns[1].Type)
	})

	t.Run("accounting negatives and thousands separators", func(t *testing.T) {
		input := strings.Join([]string{
			"date,description,amount",
			`2025-01-01,Rent,"(1,850.00)"`,
		}, "\n")

		txns, err := NewCSVParser().Parse(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, model.TypeExpense, txns[0].Type)
		assert.Equal(t, "1850", txns[0].Amount.String())
	})

	t.Run("blank rows are skipped", func(t *testing.T) {
		input := "date,description,amount\n2025-01-01,Coffee,-4.50\n,,\n"

		txns, err := NewCSVParser().Parse(strings.NewReader(input))
		require.NoError(t, err)
		assert.Len(t, txns, 1)
	})

	t.Run("missing required columns", func(t *testing.T) {
		input := "date,description\n2025-01-01,Coffee\n"

		_, err := NewCSVParser().Parse(strings.NewReader(input))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount")
	})

	t.Run("bad date reports the row", func(t *testing.T) {
		input := "date,description,amount\nnot-a-date,Coffee,-4.50\n"

		_, err := NewCSVParser().Parse(strings.NewReader(input))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 2")
	})
}
