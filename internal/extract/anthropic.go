package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// anthropicClient implements CloudClient against the Anthropic API.
type anthropicClient struct {
	client      anthropic.Client
	rateLimiter *rateLimiter
	apiKey      string
	model       string
	maxTokens   int64
}

// newAnthropicClient creates a new Anthropic provider client. A missing
// API key is not an error at construction; the client just reports
// unavailable.
func newAnthropicClient(cfg Config) (CloudClient, error) {
	m := cfg.Model
	if m == "" {
		m = "claude-sonnet-4-5"
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &anthropicClient{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		rateLimiter: newRateLimiter(cfg.RateLimit),
		apiKey:      cfg.APIKey,
		model:       m,
		maxTokens:   maxTokens,
	}, nil
}

func (c *anthropicClient) IsAvailable() bool {
	return c.apiKey != ""
}

func (c *anthropicClient) ParseReceipt(ctx context.Context, image []byte, mimeType string) (ReceiptSummary, error) {
	content, err := c.complete(ctx,
		anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(image)),
		anthropic.NewTextBlock(receiptPrompt()))
	if err != nil {
		return ReceiptSummary{}, err
	}

	var resp struct {
		Merchant   string  `json:"merchant"`
		Currency   string  `json:"currency"`
		Date       string  `json:"date"`
		Amount     float64 `json:"amount"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &resp); err != nil {
		return ReceiptSummary{}, &common.ExtractionError{Provider: "anthropic", Err: err}
	}

	date, _ := time.Parse(wireDateFormat, resp.Date)
	return ReceiptSummary{
		Merchant:   resp.Merchant,
		Amount:     decimal.NewFromFloat(resp.Amount).Abs(),
		Currency:   resp.Currency,
		Date:       date,
		Confidence: clampConfidence(resp.Confidence),
	}, nil
}

func (c *anthropicClient) ExtractFromImage(ctx context.Context, image []byte, mimeType string) ([]model.RawTransaction, error) {
	content, err := c.complete(ctx,
		anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(image)),
		anthropic.NewTextBlock(imageExtractionPrompt()))
	if err != nil {
		return nil, err
	}
	return parseRawTransactions("anthropic", content, model.SourceCloud)
}

func (c *anthropicClient) ExtractFromPDF(ctx context.Context, text string) ([]model.RawTransaction, error) {
	content, err := c.complete(ctx, anthropic.NewTextBlock(pdfExtractionPrompt(text)))
	if err != nil {
		return nil, err
	}
	return parseRawTransactions("anthropic", content, model.SourceCloud)
}

func (c *anthropicClient) ExtractFromImages(ctx context.Context, images [][]byte, mimeType string) ([]model.MultiImageTransaction, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(img)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(multiImagePrompt(len(images))))

	content, err := c.complete(ctx, blocks...)
	if err != nil {
		return nil, err
	}
	return parseMultiImageTransactions("anthropic", content)
}

func (c *anthropicClient) Categorize(ctx context.Context, descriptions []string, categories []string) ([]service.CategorySuggestion, error) {
	content, err := c.complete(ctx, anthropic.NewTextBlock(categorizePrompt(descriptions, categories)))
	if err != nil {
		return nil, err
	}
	return parseCategorySuggestions("anthropic", content, len(descriptions))
}

// complete sends one user message and returns the concatenated text
// content of the reply.
func (c *anthropicClient) complete(ctx context.Context, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	if !c.IsAvailable() {
		return "", &common.ConfigError{Detail: "anthropic API key not configured"}
	}
	if err := c.rateLimiter.wait(ctx); err != nil {
		return "", err
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	if len(message.Content) == 0 {
		return "", &common.ExtractionError{Provider: "anthropic", Err: fmt.Errorf("empty response")}
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
