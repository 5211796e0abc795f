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

// geminiClient implements CloudClient against the Gemini API.
type geminiClient struct {
	httpClient  *http.Client
	rateLimiter *rateLimiter
	apiKey      string
	model       string
	baseURL     string
}

// newGeminiClient creates a new Gemini provider client.
func newGeminiClient(cfg Config) (CloudClient, error) {
	m := cfg.Model
	if m == "" {
		m = "gemini-2.0-flash"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	return &geminiClient{
		apiKey:      cfg.APIKey,
		model:       m,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
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

func (c *geminiClient) IsAvailable() bool {
	return c.apiKey != ""
}

func (c *geminiClient) ParseReceipt(ctx context.Context, image []byte, mimeType string) (ReceiptSummary, error) {
	content, err := c.generate(ctx, receiptPrompt(), [][]byte{image}, mimeType)
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
		return ReceiptSummary{}, &common.ExtractionError{Provider: "gemini", Err: err}
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

func (c *geminiClient) ExtractFromImage(ctx context.Context, image []byte, mimeType string) ([]model.RawTransaction, error) {
	content, err := c.generate(ctx, imageExtractionPrompt(), [][]byte{image}, mimeType)
	if err != nil {
		return nil, err
	}
	return parseRawTransactions("gemini", content, model.SourceCloud)
}

func (c *geminiClient) ExtractFromPDF(ctx context.Context, text string) ([]model.RawTransaction, error) {
	content, err := c.generate(ctx, pdfExtractionPrompt(text), nil, "")
	if err != nil {
		return nil, err
	}
	return parseRawTransactions("gemini", content, model.SourceCloud)
}

func (c *geminiClient) ExtractFromImages(ctx context.Context, images [][]byte, mimeType string) ([]model.MultiImageTransaction, error) {
	content, err := c.generate(ctx, multiImagePrompt(len(images)), images, mimeType)
	if err != nil {
		return nil, err
	}
	return parseMultiImageTransactions("gemini", content)
}

func (c *geminiClient) Categorize(ctx context.Context, descriptions []string, categories []string) ([]service.CategorySuggestion, error) {
	content, err := c.generate(ctx, categorizePrompt(descriptions, categories), nil, "")
	if err != nil {
		return nil, err
	}
	return parseCategorySuggestions("gemini", content, len(descriptions))
}

// generate calls generateContent with the prompt and any inline images
// and returns the first candidate's text.
func (c *geminiClient) generate(ctx context.Context, prompt string, images [][]byte, mimeType string) (string, error) {
	if !c.IsAvailable() {
		return "", &common.ConfigError{Detail: "gemini API key not configured"}
	}
	if err := c.rateLimiter.wait(ctx); err != nil {
		return "", err
	}

	parts := []map[string]any{
		{"text": prompt},
	}
	for _, img := range images {
		parts = append(parts, map[string]any{
			"inline_data": map[string]string{
				"mime_type": mimeType,
				"data":      base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	requestBody := map[string]any{
		"contents": []map[string]any{
			{"parts": parts},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &common.ExtractionError{Provider: "gemini", Err: err}
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", &common.ExtractionError{Provider: "gemini", Err: fmt.Errorf("no candidates returned")}
	}

	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}
