package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// wireTransaction is the JSON shape every provider is prompted to emit.
type wireTransaction struct {
	Description      string   `json:"description"`
	Date             string   `json:"date"`
	Currency         string   `json:"currency"`
	Type             string   `json:"type"`
	Position         string   `json:"positionInImage,omitempty"`
	MergedFromImages []int    `json:"mergedFromImages,omitempty"`
	Amount           float64  `json:"amount"`
	Confidence       float64  `json:"confidence"`
	ImageIndex       int      `json:"imageIndex,omitempty"`
	WasMerged        bool     `json:"wasMerged,omitempty"`
	Tax              *wireTax `json:"taxInfo,omitempty"`
}

type wireTax struct {
	TaxCategory     string  `json:"taxCategory"`
	TaxRate         float64 `json:"taxRate"`
	TaxAmount       float64 `json:"taxAmount"`
	PreTaxAmount    float64 `json:"preTaxAmount"`
	OriginalAmount  float64 `json:"originalAmount"`
	DiscountApplied bool    `json:"discountApplied"`
}

const wireDateFormat = "2006-01-02"

// cleanMarkdownWrapper strips a ```json fence if the model wrapped its
// answer in one.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// parseRawTransactions decodes a provider response into RawTransactions.
// A malformed payload is an ExtractionError; callers recover by
// substituting defaults rather than aborting the batch.
func parseRawTransactions(provider, content string, source model.ExtractionSource) ([]model.RawTransaction, error) {
	wire, err := decodeWire(provider, content)
	if err != nil {
		return nil, err
	}

	txns := make([]model.RawTransaction, 0, len(wire))
	for _, w := range wire {
		txns = append(txns, w.toRaw(source))
	}
	return txns, nil
}

// parseMultiImageTransactions decodes a position-annotated provider
// response.
func parseMultiImageTransactions(provider, content string) ([]model.MultiImageTransaction, error) {
	wire, err := decodeWire(provider, content)
	if err != nil {
		return nil, err
	}

	txns := make([]model.MultiImageTransaction, 0, len(wire))
	for _, w := range wire {
		txns = append(txns, model.MultiImageTransaction{
			RawTransaction:   w.toRaw(model.SourceCloud),
			ImageIndex:       w.ImageIndex,
			Position:         imagePosition(w.Position),
			WasMerged:        w.WasMerged,
			MergedFromImages: w.MergedFromImages,
		})
	}
	return txns, nil
}

func decodeWire(provider, content string) ([]wireTransaction, error) {
	content = cleanMarkdownWrapper(content)

	var wire []wireTransaction
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, &common.ExtractionError{Provider: provider, Err: err}
	}
	return wire, nil
}

func (w wireTransaction) toRaw(source model.ExtractionSource) model.RawTransaction {
	amount := decimal.NewFromFloat(w.Amount)
	txType := model.TransactionType(strings.ToLower(w.Type))
	if txType != model.TypeIncome && txType != model.TypeExpense {
		// Some providers encode direction in the sign instead of the
		// type field; normalize to unsigned amount + explicit type.
		if amount.IsNegative() {
			txType = model.TypeExpense
		} else {
			txType = model.TypeIncome
		}
	}

	date, err := time.Parse(wireDateFormat, w.Date)
	if err != nil {
		date = time.Time{}
	}

	currency := strings.ToUpper(w.Currency)
	if currency == "" {
		currency = "USD"
	}

	raw := model.RawTransaction{
		Description: strings.TrimSpace(w.Description),
		Amount:      amount.Abs(),
		Date:        date,
		Currency:    currency,
		Type:        txType,
		Confidence:  clampConfidence(w.Confidence),
		Source:      source,
	}
	if w.Tax != nil {
		// Tax figures come straight from the extractor and are
		// preserved verbatim, never recomputed.
		raw.TaxInfo = &model.TaxInfo{
			TaxCategory:     w.Tax.TaxCategory,
			TaxRate:         decimal.NewFromFloat(w.Tax.TaxRate),
			TaxAmount:       decimal.NewFromFloat(w.Tax.TaxAmount),
			PreTaxAmount:    decimal.NewFromFloat(w.Tax.PreTaxAmount),
			OriginalAmount:  decimal.NewFromFloat(w.Tax.OriginalAmount),
			DiscountApplied: w.Tax.DiscountApplied,
		}
	}
	return raw
}

// parseCategorySuggestions decodes a categorization response. The
// provider must answer with exactly one suggestion per description.
func parseCategorySuggestions(provider, content string, want int) ([]service.CategorySuggestion, error) {
	content = cleanMarkdownWrapper(content)

	var wire []struct {
		CategoryID string  `json:"categoryId"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, &common.ExtractionError{Provider: provider, Err: err}
	}
	if len(wire) != want {
		return nil, &common.ExtractionError{
			Provider: provider,
			Err:      fmt.Errorf("expected %d suggestions, got %d", want, len(wire)),
		}
	}

	suggestions := make([]service.CategorySuggestion, len(wire))
	for i, w := range wire {
		suggestions[i] = service.CategorySuggestion{
			CategoryID: w.CategoryID,
			Confidence: clampConfidence(w.Confidence),
		}
	}
	return suggestions, nil
}

func imagePosition(s string) model.ImagePosition {
	switch strings.ToLower(s) {
	case "top":
		return model.PositionTop
	case "bottom":
		return model.PositionBottom
	default:
		return model.PositionMiddle
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
