package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// openAIClient implements CloudClient against the OpenAI API.
type openAIClient struct {
	httpClient  *http.Client
	rateLimiter *rateLimiter
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// newOpenAIClient creates a new OpenAI provider client.
func newOpenAIClient(cfg Config) (CloudClient, error) {
	m := cfg.Model
	if m == "" {
		m = "gpt-4o"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &openAIClient{
		apiKey:      cfg.APIKey,
		model:       m,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		temperature: temperature,
		maxTokens:   maxTokens,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (c *openAIClient) IsAvailable() bool {
	return c.apiKey != ""
}

func (c *openAIClient) ParseReceipt(ctx context.Context, image []byte, mimeType string) (ReceiptSummary, error) {
	content, err := c.complete(ctx, receiptPrompt(), [][]byte{image}, mimeType)
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
		return ReceiptSummary{}, &common.ExtractionError{Provider: "openai", Err: err}
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

func (c *openAIClient) ExtractFromImage(ctx context.Context, image []byte, mimeType string) ([]model.RawTransaction, error) {
	content, err := c.complete(ctx, imageExtractionPrompt(), [][]byte{image}, mimeType)
	if err != nil {
		return nil, err
	}
	return parseRawTransactions("openai", content, model.SourceCloud)
}

func (c *openAIClient) ExtractFromPDF(ctx context.Context, text string) ([]model.RawTransaction, error) {
	content, err := c.complete(ctx, pdfExtractionPrompt(text), nil, "")
	if err != nil {
		return nil, err
	}
	return parseRawTransactions("openai", content, model.SourceCloud)
}

func (c *openAIClient) ExtractFromImages(ctx context.Context, images [][]byte, mimeType string) ([]model.MultiImageTransaction, error) {
	content, err := c.complete(ctx, multiImagePrompt(len(images)), images, mimeType)
	if err != nil {
		return nil, err
	}
	return parseMultiImageTransactions("openai", content)
}

func (c *openAIClient) Categorize(ctx context.Context, descriptions []string, categories []string) ([]service.CategorySuggestion, error) {
	content, err := c.complete(ctx, categorizePrompt(descriptions, categories), nil, "")
	if err != nil {
		return nil, err
	}
	return parseCategorySuggestions("openai", content, len(descriptions))
}

// complete sends one chat completion request, attaching any images as
// data URLs, and returns the first choice's content.
func (c *openAIClient) complete(ctx context.Context, prompt string, images [][]byte, mimeType string) (string, error) {
	if !c.IsAvailable() {
		return "", &common.ConfigError{Detail: "openai API key not configured"}
	}
	if err := c.rateLimiter.wait(ctx); err != nil {
		return "", err
	}

	parts := []map[string]any{
		{"type": "text", "text": prompt},
	}
	for _, img := range images {
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]string{
				"url": fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img)),
			},
		})
	}

	requestBody := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{
				"role":    "system",
				"content": "You are a financial document extraction engine. You MUST respond with ONLY valid JSON, no markdown and no commentary.",
			},
			{
				"role":    "user",
				"content": parts,
			},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", common.ErrRateLimit
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenAI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &common.ExtractionError{Provider: "openai", Err: err}
	}
	if len(response.Choices) == 0 {
		return "", &common.ExtractionError{Provider: "openai", Err: fmt.Errorf("no completion choices returned")}
	}

	return response.Choices[0].Message.Content, nil
}
