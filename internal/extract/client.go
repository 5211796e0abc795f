// Package extract defines the extraction adapter contracts and the cloud
// provider clients that implement them.
package extract

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// Per-call extraction budgets. These bound the whole adapter call; the
// context deadline propagates into the HTTP request so a timed-out call
// is actually cancelled rather than left running.
const (
	SingleCallTimeout = 60 * time.Second
	MultiImageTimeout = 90 * time.Second
)

// ReceiptSummary is the one-line answer for a quick receipt parse.
type ReceiptSummary struct {
	Date       time.Time
	Merchant   string
	Currency   string
	Amount     decimal.Decimal
	Confidence float64
}

// CloudClient is the capability interface every remote provider
// implements. Unavailability is reported through IsAvailable rather than
// by failing calls, so the strategy selector can branch cheaply.
type CloudClient interface {
	// ParseReceipt extracts the headline merchant/amount/date from a
	// single receipt image.
	ParseReceipt(ctx context.Context, image []byte, mimeType string) (ReceiptSummary, error)

	// ExtractFromImage extracts all transactions from one image.
	ExtractFromImage(ctx context.Context, image []byte, mimeType string) ([]model.RawTransaction, error)

	// ExtractFromPDF extracts transactions from already-extracted PDF
	// text (multi-page bank statements).
	ExtractFromPDF(ctx context.Context, text string) ([]model.RawTransaction, error)

	// ExtractFromImages performs position-aware extraction across an
	// ordered top-to-bottom photo sequence of one receipt. Items come
	// back annotated with image index, position, and any merges the
	// provider detected itself.
	ExtractFromImages(ctx context.Context, images [][]byte, mimeType string) ([]model.MultiImageTransaction, error)

	// Categorize maps transaction descriptions to category suggestions,
	// one per input, given the allowed category ids.
	Categorize(ctx context.Context, descriptions []string, categories []string) ([]service.CategorySuggestion, error)

	// IsAvailable reports whether the provider is configured with
	// credentials. It never blocks and never returns an error.
	IsAvailable() bool
}

// Config holds configuration for a cloud provider client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	RateLimit   int
}

// LocalResult is what the on-device adapter returns for a receipt.
type LocalResult struct {
	RawText          string
	Transactions     []model.MultiImageTransaction
	Confidence       float64
	ProcessingTimeMs int64
}

// LocalAdapter is the on-device extraction collaborator: OCR plus a rule
// parser, no network.
type LocalAdapter interface {
	// IsReady reports whether the on-device model is loaded.
	IsReady() bool

	// ProcessReceipt extracts transactions from one receipt image.
	ProcessReceipt(ctx context.Context, image []byte) (LocalResult, error)

	// ProcessImages extracts transactions from an ordered photo
	// sequence of one receipt.
	ProcessImages(ctx context.Context, images [][]byte) (LocalResult, error)
}
