// Package engine implements the import orchestrator: it sequences
// classification, extraction, categorization, and duplicate detection
// into an ImportResult, and runs the user-triggered confirm/commit step.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/dedup"
	"github.com/pmarsh-dev/ledgerflow/internal/filetype"
	"github.com/pmarsh-dev/ledgerflow/internal/ingest"
	"github.com/pmarsh-dev/ledgerflow/internal/merge"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
	"github.com/pmarsh-dev/ledgerflow/internal/strategy"
)

// lowConfidenceFloor is the category confidence below which a
// low_confidence warning is attached to the result.
const lowConfidenceFloor = 0.5

// ImageQueuer persists receipt images that could not be extracted so a
// later drain can retry them.
type ImageQueuer interface {
	QueueImage(ctx context.Context, fileName, mimeType string, payload []byte) (string, error)
}

// ImportRequest describes one file to import. Payloads holds one entry
// per photo for multi-photo receipt captures and exactly one entry for
// everything else.
type ImportRequest struct {
	FileName   string
	MimeType   string
	Payloads   [][]byte
	Conditions strategy.Conditions
}

// Orchestrator sequences one import from file bytes to an ImportResult,
// and commits confirmed selections to the ledger.
type Orchestrator struct {
	selector    *strategy.Selector
	merger      *merge.Merger
	pdf         *ingest.PDFIngester
	csv         *ingest.CSVParser
	json        *ingest.JSONParser
	dedup       *dedup.Engine
	ledger      service.Ledger
	categorizer service.Categorizer
	imageQueue  ImageQueuer
}

// Config wires the orchestrator's collaborators. Ledger and Categorizer
// are required; extraction paths may be nil when the corresponding file
// types are not used.
type Config struct {
	Selector    *strategy.Selector
	Merger      *merge.Merger
	PDF         *ingest.PDFIngester
	Ledger      service.Ledger
	Categorizer service.Categorizer
	ImageQueue  ImageQueuer
}

// New creates an import orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		selector:    cfg.Selector,
		merger:      cfg.Merger,
		pdf:         cfg.PDF,
		csv:         ingest.NewCSVParser(),
		json:        ingest.NewJSONParser(),
		dedup:       dedup.NewEngine(),
		ledger:      cfg.Ledger,
		categorizer: cfg.Categorizer,
		imageQueue:  cfg.ImageQueue,
	}
}

// Process runs the import pipeline for one file: classify, extract along
// the matching path, categorize, dedup against one ledger snapshot, and
// assemble the result.
func (o *Orchestrator) Process(ctx context.Context, req ImportRequest) (model.ImportResult, error) {
	if len(req.Payloads) == 0 {
		return model.ImportResult{}, &common.UserError{UserMessage: "no file data provided"}
	}

	ft, _ := filetype.Classify(req.FileName, req.MimeType)
	result := model.ImportResult{
		FileType: string(ft),
		FileName: req.FileName,
		FileSize: totalSize(req.Payloads),
	}

	if !filetype.Supported(ft) {
		result.Warnings = append(result.Warnings, model.Warning{
			Type:    model.WarningUnsupported,
			Message: fmt.Sprintf("%s files are not supported; export as CSV instead", ft),
		})
		return result, nil
	}

	extracted, err := o.extract(ctx, ft, req, &result)
	if err != nil {
		return model.ImportResult{}, err
	}

	candidates := o.normalize(ctx, extracted)

	snapshot, err := o.ledger.Snapshot(ctx)
	if err != nil {
		return model.ImportResult{}, err
	}
	checks := o.dedup.CheckAll(candidates, snapshot)
	result.Transactions = o.dedup.MarkDuplicates(candidates, checks)
	result.Duplicates = checks
	result.Confidence = meanImportConfidence(result.Transactions)
	o.addWarnings(&result, checks)

	slog.Info("Import processed",
		"file", req.FileName,
		"type", ft,
		"transactions", len(result.Transactions),
		"duplicates", countDuplicates(checks),
		"confidence", result.Confidence)
	return result, nil
}

// extract routes to the per-file-type extraction path. CSV and JSON
// never touch the strategy selector; they are not AI-routed.
func (o *Orchestrator) extract(ctx context.Context, ft filetype.FileType, req ImportRequest, result *model.ImportResult) ([]model.RawTransaction, error) {
	switch ft {
	case filetype.ReceiptImage:
		return o.extractImages(ctx, req, result)

	case filetype.BankPDF:
		if o.pdf == nil {
			return nil, &common.UnavailableError{Reason: "PDF extraction is not configured"}
		}
		result.Source = model.SourceCloud
		return o.pdf.Extract(ctx, req.Payloads[0])

	case filetype.BackupJSON:
		result.Source = model.SourceLocal
		return o.json.Parse(bytes.NewReader(req.Payloads[0]))

	default:
		result.Source = model.SourceLocal
		return o.csv.Parse(bytes.NewReader(req.Payloads[0]))
	}
}

func (o *Orchestrator) extractImages(ctx context.Context, req ImportRequest, result *model.ImportResult) ([]model.RawTransaction, error) {
	if len(req.Payloads) > 1 {
		if o.merger == nil {
			return nil, &common.UnavailableError{Reason: "multi-image extraction is not configured"}
		}
		merged, err := o.merger.Extract(ctx, req.Payloads, req.MimeType)
		if err != nil {
			return nil, o.queueOnFailure(ctx, req, err)
		}
		result.Source = model.SourceCloud
		result.MultiImage = &model.MultiImageMetadata{
			TotalImages: len(req.Payloads),
			ItemsMerged: merged.ItemsMerged,
		}
		return flatten(merged.Transactions), nil
	}

	if o.selector == nil {
		return nil, &common.UnavailableError{Reason: "image extraction is not configured"}
	}
	processed, err := o.selector.ProcessReceipt(ctx, req.Payloads[0], req.MimeType, req.Conditions)
	if err != nil {
		return nil, o.queueOnFailure(ctx, req, err)
	}
	result.Source = processed.Source
	return flatten(processed.Transactions), nil
}

// queueOnFailure durably queues the failed image (when a queue is wired)
// so a later drain can retry, then propagates the original error.
func (o *Orchestrator) queueOnFailure(ctx context.Context, req ImportRequest, cause error) error {
	if o.imageQueue == nil {
		return cause
	}
	for _, payload := range req.Payloads {
		id, qErr := o.imageQueue.QueueImage(ctx, req.FileName, req.MimeType, payload)
		if qErr != nil {
			slog.Warn("Failed to queue image after extraction failure", "error", qErr)
			continue
		}
		slog.Info("Queued image for later processing", "image_id", id, "cause", cause)
	}
	return cause
}

// normalize turns raw extractions into categorized candidates with
// stable ids. Categorization failures degrade to the chain's fixed
// default and never abort the batch.
func (o *Orchestrator) normalize(ctx context.Context, raw []model.RawTransaction) []model.ImportTransaction {
	candidates := make([]model.ImportTransaction, 0, len(raw))
	for _, r := range raw {
		txn := model.ImportTransaction{
			RawTransaction: r,
			ID:             uuid.NewString(),
			Selected:       true,
		}

		suggestion, err := o.categorizer.Suggest(ctx, r.Description)
		if err != nil {
			slog.Debug("Categorization failed, using default", "error", err)
			suggestion = service.CategorySuggestion{CategoryID: "uncategorized"}
		}
		txn.SuggestedCategoryID = suggestion.CategoryID
		txn.CategoryConfidence = suggestion.Confidence

		candidates = append(candidates, txn)
	}
	return candidates
}

func (o *Orchestrator) addWarnings(result *model.ImportResult, checks []model.DuplicateCheck) {
	if n := countDuplicates(checks); n > 0 {
		result.Warnings = append(result.Warnings, model.Warning{
			Type:    model.WarningDuplicate,
			Message: fmt.Sprintf("%d transaction(s) look like existing ledger entries and were deselected", n),
		})
	}
	for _, txn := range result.Transactions {
		if txn.CategoryConfidence < lowConfidenceFloor {
			result.Warnings = append(result.Warnings, model.Warning{
				Type:    model.WarningLowConfidence,
				Message: "some category suggestions have low confidence; review before committing",
			})
			break
		}
	}
}

// Confirm commits the selected transactions sequentially. Row failures
// are recorded and the loop continues; the import-history record is
// completed unless the loop itself was aborted.
func (o *Orchestrator) Confirm(ctx context.Context, result model.ImportResult, progress service.ProgressFunc) (model.ConfirmStats, error) {
	started := time.Now().UTC()
	var stats model.ConfirmStats

	var selected []model.ImportTransaction
	for _, txn := range result.Transactions {
		if txn.Selected {
			selected = append(selected, txn)
		} else if txn.IsDuplicate {
			stats.DuplicatesSkipped++
		}
	}

	loopErr := o.commitLoop(ctx, selected, &stats, progress)

	status := model.ImportCompleted
	if loopErr != nil {
		status = model.ImportFailed
	}
	record := model.ImportHistoryRecord{
		ID:         uuid.NewString(),
		FileName:   result.FileName,
		FileType:   result.FileType,
		Status:     status,
		Stats:      stats,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if err := o.ledger.SaveImportRecord(ctx, record); err != nil {
		return stats, err
	}

	slog.Info("Import confirmed",
		"status", status,
		"success", stats.SuccessCount,
		"errors", stats.ErrorCount,
		"duplicates_skipped", stats.DuplicatesSkipped)
	return stats, loopErr
}

func (o *Orchestrator) commitLoop(ctx context.Context, selected []model.ImportTransaction, stats *model.ConfirmStats, progress service.ProgressFunc) error {
	for i, txn := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}

		date := txn.Date
		if date.IsZero() {
			// Unparseable dates are replaced rather than aborting.
			date = time.Now().UTC()
		}

		entry := model.LedgerEntry{
			ID:          txn.ID,
			Date:        date,
			Description: txn.Description,
			Currency:    txn.Currency,
			Type:        txn.Type,
			Amount:      txn.Amount,
			CategoryID:  txn.SuggestedCategoryID,
		}

		if err := o.ledger.Commit(ctx, entry); err != nil {
			stats.Errors = append(stats.Errors, model.CommitError{
				Row:           i + 1,
				Message:       err.Error(),
				OriginalValue: txn.Description,
			})
			stats.ErrorCount++
		} else {
			stats.SuccessCount++
			if txn.Type == model.TypeIncome {
				stats.TotalIncome = stats.TotalIncome.Add(txn.Amount)
			} else {
				stats.TotalExpenses = stats.TotalExpenses.Add(txn.Amount)
			}
		}

		if progress != nil && len(selected) > 0 {
			progress((i + 1) * 100 / len(selected))
		}
	}
	return nil
}

func flatten(txns []model.MultiImageTransaction) []model.RawTransaction {
	raw := make([]model.RawTransaction, len(txns))
	for i, t := range txns {
		raw[i] = t.RawTransaction
	}
	return raw
}

func totalSize(payloads [][]byte) int64 {
	var size int64
	for _, p := range payloads {
		size += int64(len(p))
	}
	return size
}

func meanImportConfidence(txns []model.ImportTransaction) float64 {
	if len(txns) == 0 {
		return 0
	}
	var sum float64
	for _, t := range txns {
		sum += t.Confidence
	}
	return sum / float64(len(txns))
}

func countDuplicates(checks []model.DuplicateCheck) int {
	n := 0
	for _, c := range checks {
		if c.IsDuplicate {
			n++
		}
	}
	return n
}
