package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ledongthuc/pdf"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/extract"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

const (
	// maxPDFTextBytes caps extracted text so a pathological statement
	// cannot blow out the downstream prompt.
	maxPDFTextBytes = 100 * 1024

	// scannedThreshold is the chars-per-page floor below which a PDF is
	// treated as a scanned image with no usable text layer.
	scannedThreshold = 50
)

// PDFIngester extracts the text layer of a PDF statement and hands it to
// the cloud adapter for transaction extraction. Scanned PDFs have no
// text layer and are rejected rather than sent as garbage.
type PDFIngester struct {
	cloud extract.CloudClient
}

// NewPDFIngester creates a PDF ingester on top of a cloud client.
func NewPDFIngester(cloud extract.CloudClient) *PDFIngester {
	return &PDFIngester{cloud: cloud}
}

// Extract pulls transactions out of a PDF bank statement.
func (p *PDFIngester) Extract(ctx context.Context, data []byte) ([]model.RawTransaction, error) {
	if p.cloud == nil || !p.cloud.IsAvailable() {
		return nil, &common.UnavailableError{Reason: "PDF extraction requires a cloud provider"}
	}

	text, pages, err := ExtractText(data)
	if err != nil {
		return nil, &common.ExtractionError{Err: err, Provider: "pdf", Retryable: false}
	}
	if isLikelyScanned(text, pages) {
		return nil, &common.ExtractionError{
			Err:       fmt.Errorf("PDF has no extractable text layer (%d pages)", pages),
			Provider:  "pdf",
			Retryable: false,
		}
	}

	slog.Debug("Extracted PDF text layer", "pages", pages, "chars", len(text))

	ctx, cancel := context.WithTimeout(ctx, extract.SingleCallTimeout)
	defer cancel()

	txns, err := p.cloud.ExtractFromPDF(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &common.TimeoutError{Operation: "PDF extraction", Err: err}
		}
		return nil, err
	}
	return txns, nil
}

// ExtractText returns the concatenated text layer and page count of a
// PDF. The pdf library panics on some malformed files, so the whole call
// runs under a recover guard and reports those as plain errors.
func ExtractText(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("opening PDF: %w", err)
	}

	pages = reader.NumPage()
	if pages < 1 {
		pages = 1
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", pages, fmt.Errorf("extracting PDF text: %w", err)
	}

	raw, err := io.ReadAll(io.LimitReader(plain, maxPDFTextBytes))
	if err != nil {
		return "", pages, fmt.Errorf("reading PDF text: %w", err)
	}
	return string(raw), pages, nil
}

func isLikelyScanned(text string, pages int) bool {
	if pages <= 0 {
		pages = 1
	}
	return len(text)/pages < scannedThreshold
}
