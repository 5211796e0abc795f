// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// Ledger is the persistence contract the pipeline depends on: a snapshot
// read for duplicate comparison and a single-item commit for confirmed
// transactions. Both may fail with common.PersistenceError.
type Ledger interface {
	// Snapshot returns the current confirmed transactions in ledger
	// order. Callers take exactly one snapshot per import batch so
	// duplicate decisions stay consistent within the batch.
	Snapshot(ctx context.Context) ([]model.LedgerEntry, error)

	// Commit writes one confirmed transaction.
	Commit(ctx context.Context, entry model.LedgerEntry) error

	// SaveImportRecord persists the audit record of a confirm/commit run.
	SaveImportRecord(ctx context.Context, record model.ImportHistoryRecord) error
}

// CategorySuggestion is a categorizer's answer for one description.
type CategorySuggestion struct {
	CategoryID string
	Confidence float64
}

// Categorizer maps a free-text transaction description to a category id.
// Implementations degrade to a fixed default category rather than failing
// the pipeline.
type Categorizer interface {
	Suggest(ctx context.Context, description string) (CategorySuggestion, error)
}

// Checkpoint identifies a progress notification emitted by the pipeline.
type Checkpoint string

// Pipeline checkpoints.
const (
	CheckpointStrategyChosen     Checkpoint = "strategy_chosen"
	CheckpointExtractionStarted  Checkpoint = "extraction_started"
	CheckpointExtractionFinished Checkpoint = "extraction_finished"
)

// Notifier receives fire-and-forget progress notifications. It must not
// influence control flow; a nil Notifier is always safe to call through
// Notify.
type Notifier func(checkpoint Checkpoint, detail string)

// Notify invokes n if it is non-nil.
func (n Notifier) Notify(checkpoint Checkpoint, detail string) {
	if n != nil {
		n(checkpoint, detail)
	}
}

// ImageProcessRequest is the hand-off event the queue emits for a stored
// image: the queue is a resource manager, not a processor, so extraction
// is performed by whoever subscribes to these events.
type ImageProcessRequest struct {
	ImageID  string
	FileName string
	MimeType string
	Payload  []byte
}

// ImageProcessor consumes queued-image hand-off events during a drain.
type ImageProcessor func(ctx context.Context, req ImageProcessRequest) error

// SyncRegistrar requests a platform-level background sync wake-up.
// Registration is best-effort; absence of the capability is not an error.
type SyncRegistrar interface {
	RegisterBackgroundSync() error
}

// ProgressFunc reports running drain progress as a percentage of
// processed items this run.
type ProgressFunc func(percent int)

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
