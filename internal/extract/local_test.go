package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

const sampleReceiptText = `CORNER GROCERY
2024-03-05
MILK 2% ........ 3.29
BREAD WHOLE ........ 2.49
REFUND BOTTLE DEPOSIT ........ -0.25
SUBTOTAL ........ 5.53
TAX ........ 0.39
TOTAL ........ 5.92`

func fixedRecognizer(text string) TextRecognizer {
	return func(_ context.Context, _ []byte) (string, error) {
		return text, nil
	}
}

func TestRuleParser_ProcessReceipt(t *testing.T) {
	parser := NewRuleParser(fixedRecognizer(sampleReceiptText))
	require.True(t, parser.IsReady())

	result, err := parser.ProcessReceipt(context.Background(), []byte("img"))
	require.NoError(t, err)

	require.Len(t, result.Transactions, 3, "summary lines must be skipped")
	assert.NotEmpty(t, result.RawText)

	milk := result.Transactions[0]
	assert.Equal(t, "MILK 2%", milk.Description)
	assert.Equal(t, model.TypeExpense, milk.Type)
	assert.Equal(t, model.SourceLocal, milk.Source)
	assert.Equal(t, 0, milk.ImageIndex)
	assert.Equal(t, 2024, milk.Date.Year())

	refund := result.Transactions[2]
	assert.Equal(t, model.TypeIncome, refund.Type)
	assert.False(t, refund.Amount.IsNegative())

	assert.Greater(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestRuleParser_ProcessImages_AnnotatesIndex(t *testing.T) {
	calls := 0
	parser := NewRuleParser(func(_ context.Context, _ []byte) (string, error) {
		calls++
		if calls == 1 {
			return "ITEM ONE ........ 1.00", nil
		}
		return "ITEM TWO ........ 2.00", nil
	})

	result, err := parser.ProcessImages(context.Background(), [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, 0, result.Transactions[0].ImageIndex)
	assert.Equal(t, 1, result.Transactions[1].ImageIndex)
}

func TestRuleParser_NotReady(t *testing.T) {
	parser := NewRuleParser(nil)
	assert.False(t, parser.IsReady())

	_, err := parser.ProcessReceipt(context.Background(), []byte("img"))
	var cfgErr *common.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestRuleParser_OCRFailure(t *testing.T) {
	parser := NewRuleParser(func(_ context.Context, _ []byte) (string, error) {
		return "", errors.New("camera gremlins")
	})

	_, err := parser.ProcessReceipt(context.Background(), []byte("img"))
	var extErr *common.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "local", extErr.Provider)
}

func TestPositionForLine(t *testing.T) {
	assert.Equal(t, model.PositionTop, positionForLine(0, 9))
	assert.Equal(t, model.PositionMiddle, positionForLine(4, 9))
	assert.Equal(t, model.PositionBottom, positionForLine(8, 9))
}
