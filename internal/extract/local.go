package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// TextRecognizer is the on-device OCR collaborator: it turns an image
// into text. The OCR engine itself is outside this package; the rule
// parser only consumes its output.
type TextRecognizer func(ctx context.Context, image []byte) (string, error)

// RuleParser is the on-device extraction adapter: OCR text in, rule-based
// transaction parsing out. It produces lower-confidence results than the
// cloud path but works offline.
type RuleParser struct {
	recognize TextRecognizer
}

// NewRuleParser creates a local adapter around the given recognizer.
func NewRuleParser(recognize TextRecognizer) *RuleParser {
	return &RuleParser{recognize: recognize}
}

// IsReady reports whether an OCR engine was wired in.
func (p *RuleParser) IsReady() bool {
	return p.recognize != nil
}

// ProcessReceipt runs OCR on one image and parses line items from the text.
func (p *RuleParser) ProcessReceipt(ctx context.Context, image []byte) (LocalResult, error) {
	return p.process(ctx, [][]byte{image})
}

// ProcessImages runs OCR on an ordered photo sequence of one receipt.
// Each image's items are annotated with the image index; position within
// the image is estimated from the line offset in the OCR text.
func (p *RuleParser) ProcessImages(ctx context.Context, images [][]byte) (LocalResult, error) {
	return p.process(ctx, images)
}

func (p *RuleParser) process(ctx context.Context, images [][]byte) (LocalResult, error) {
	if !p.IsReady() {
		return LocalResult{}, &common.ConfigError{Detail: "no OCR engine configured for local extraction"}
	}

	start := time.Now()
	var allText strings.Builder
	var txns []model.MultiImageTransaction

	for idx, image := range images {
		text, err := p.recognize(ctx, image)
		if err != nil {
			return LocalResult{}, &common.ExtractionError{Provider: "local", Err: err}
		}
		allText.WriteString(text)
		allText.WriteString("\n")

		txns = append(txns, parseReceiptText(text, idx)...)
	}

	return LocalResult{
		Transactions:     txns,
		Confidence:       model.MeanConfidence(txns),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		RawText:          allText.String(),
	}, nil
}

var (
	// Line items look like "DESCRIPTION ....... 12.34" with an optional
	// currency symbol and an optional trailing minus.
	lineItemRe = regexp.MustCompile(`^(.{2,}?)[\s.]{2,}[$€£]?\s*(-?\d{1,6}[.,]\d{2})-?\s*$`)
	dateRe     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})|(\d{1,2})/(\d{1,2})/(\d{4})`)

	incomeKeywords = []string{"refund", "deposit", "credit", "cashback", "reimburs"}
	skipKeywords   = []string{"subtotal", "total", "tax", "change", "cash", "visa", "mastercard", "balance"}
)

// parseReceiptText applies the line-item rules to one image's OCR text.
// The receipt date, when found anywhere in the text, is applied to every
// item from that image.
func parseReceiptText(text string, imageIndex int) []model.MultiImageTransaction {
	lines := strings.Split(text, "\n")
	date := findDate(text)

	type parsed struct {
		txn  model.MultiImageTransaction
		line int
	}
	var items []parsed

	for lineNo, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || isSummaryLine(line) {
			continue
		}

		m := lineItemRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		amount, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", "."))
		if err != nil {
			continue
		}

		desc := strings.TrimSpace(strings.Trim(m[1], ". "))
		txType := model.TypeExpense
		if isIncomeLine(desc) || amount.IsNegative() {
			txType = model.TypeIncome
		}

		items = append(items, parsed{
			line: lineNo,
			txn: model.MultiImageTransaction{
				RawTransaction: model.RawTransaction{
					Description: desc,
					Amount:      amount.Abs(),
					Date:        date,
					Currency:    "USD",
					Type:        txType,
					Confidence:  localLineConfidence(desc),
					Source:      model.SourceLocal,
				},
				ImageIndex: imageIndex,
			},
		})
	}

	// Position annotation splits the image into thirds by line offset.
	total := len(lines)
	out := make([]model.MultiImageTransaction, len(items))
	for i, item := range items {
		item.txn.Position = positionForLine(item.line, total)
		out[i] = item.txn
	}
	return out
}

func positionForLine(line, total int) model.ImagePosition {
	if total == 0 {
		return model.PositionMiddle
	}
	switch {
	case line*3 < total:
		return model.PositionTop
	case line*3 >= 2*total:
		return model.PositionBottom
	default:
		return model.PositionMiddle
	}
}

func findDate(text string) time.Time {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}
	}
	if m[1] != "" {
		t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
		if err == nil {
			return t
		}
	}
	if m[4] != "" {
		t, err := time.Parse("1/2/2006", m[4]+"/"+m[5]+"/"+m[6])
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

func isSummaryLine(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range skipKeywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

func isIncomeLine(desc string) bool {
	lower := strings.ToLower(desc)
	for _, kw := range incomeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// localLineConfidence is a crude quality signal: longer, letter-rich
// descriptions parse more reliably than OCR debris.
func localLineConfidence(desc string) float64 {
	letters := 0
	for _, r := range desc {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	if len(desc) == 0 {
		return 0.1
	}
	ratio := float64(letters) / float64(len(desc))
	confidence := 0.3 + 0.4*ratio
	if len(desc) >= 6 {
		confidence += 0.1
	}
	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}
