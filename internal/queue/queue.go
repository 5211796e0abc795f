package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// Sync-log actions.
const (
	actionImageQueued          = "image_queued"
	actionTransactionQueued    = "transaction_queued"
	actionImageProcessed       = "image_processed"
	actionImageFailed          = "image_failed"
	actionTransactionCommitted = "transaction_committed"
	actionTransactionFailed    = "transaction_failed"
	actionMaxRetries           = "max_retries_exceeded"
	actionSyncStarted          = "sync_started"
	actionSyncCompleted        = "sync_completed"
)

// maxRetriesMessage is the permanent-failure marker recorded on items
// whose retry budget is spent.
const maxRetriesMessage = "max retries exceeded"

// Config wires the queue's collaborators. Ledger is required for
// transaction drains; the rest are optional.
type Config struct {
	Ledger    service.Ledger
	Processor service.ImageProcessor
	Registrar service.SyncRegistrar
	Online    func() bool
}

// Queue is the offline durable queue service: enqueue operations, the
// guarded drain, and maintenance.
type Queue struct {
	store     *Store
	ledger    service.Ledger
	processor service.ImageProcessor
	registrar service.SyncRegistrar
	online    func() bool
	syncing   atomic.Bool
}

// New creates a queue service over an opened store.
func New(store *Store, cfg Config) *Queue {
	online := cfg.Online
	if online == nil {
		online = func() bool { return true }
	}
	return &Queue{
		store:     store,
		ledger:    cfg.Ledger,
		processor: cfg.Processor,
		registrar: cfg.Registrar,
		online:    online,
	}
}

// QueueImage persists a receipt photo for a later drain and returns its
// queue id.
func (q *Queue) QueueImage(ctx context.Context, fileName, mimeType string, payload []byte) (string, error) {
	img := model.QueuedImage{
		ID:        model.NewImageID(),
		FileName:  fileName,
		MimeType:  mimeType,
		Payload:   payload,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.store.insertImage(ctx, img); err != nil {
		return "", err
	}
	q.log(ctx, actionImageQueued, img.ID, fileName)
	q.requestBackgroundSync()
	return img.ID, nil
}

// QueueTransaction persists an extracted transaction that could not be
// committed and returns its queue id.
func (q *Queue) QueueTransaction(ctx context.Context, entry model.LedgerEntry) (string, error) {
	txn := model.QueuedTransaction{
		ID:          model.NewTransactionID(),
		Date:        entry.Date,
		Description: entry.Description,
		Currency:    entry.Currency,
		Type:        entry.Type,
		Amount:      entry.Amount.String(),
		CategoryID:  entry.CategoryID,
		Status:      model.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := q.store.insertTransaction(ctx, txn); err != nil {
		return "", err
	}
	q.log(ctx, actionTransactionQueued, txn.ID, entry.Description)
	q.requestBackgroundSync()
	return txn.ID, nil
}

// SyncQueue drains pending items and failed items whose retry budget is
// not yet spent. Only one drain runs at a time;
// concurrent triggers collapse into a no-op. Offline, the drain is a
// no-op as well. Each pending item gets at most one attempt per drain;
// an item whose retry budget is already spent is marked permanently
// failed without another attempt.
func (q *Queue) SyncQueue(ctx context.Context, progress service.ProgressFunc) (model.SyncResult, error) {
	if !q.syncing.CompareAndSwap(false, true) {
		slog.Debug("Sync already in flight, collapsing trigger")
		return model.SyncResult{}, nil
	}
	defer q.syncing.Store(false)

	if !q.online() {
		slog.Debug("Offline, skipping queue drain")
		return model.SyncResult{}, nil
	}

	images, err := q.store.drainableImages(ctx)
	if err != nil {
		return model.SyncResult{}, err
	}
	txns, err := q.store.drainableTransactions(ctx)
	if err != nil {
		return model.SyncResult{}, err
	}

	total := len(images) + len(txns)
	if total == 0 {
		return model.SyncResult{}, nil
	}

	q.log(ctx, actionSyncStarted, "", fmt.Sprintf("%d items", total))

	var result model.SyncResult
	processed := 0
	report := func() {
		processed++
		if progress != nil {
			progress(processed * 100 / total)
		}
	}

	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		q.drainImage(ctx, img, &result)
		report()
	}
	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		q.drainTransaction(ctx, txn, &result)
		report()
	}

	q.log(ctx, actionSyncCompleted, "", fmt.Sprintf("success=%d failed=%d", result.Success, result.Failed))
	slog.Info("Queue drain finished", "success", result.Success, "failed", result.Failed)
	return result, nil
}

func (q *Queue) drainImage(ctx context.Context, img model.QueuedImage, result *model.SyncResult) {
	if img.RetryCount >= model.MaxRetryCount {
		_ = q.store.failImagePermanently(ctx, img.ID, maxRetriesMessage)
		q.log(ctx, actionMaxRetries, img.ID, maxRetriesMessage)
		result.Failed++
		return
	}
	if q.processor == nil {
		// No subscriber for image hand-off this run; leave it queued.
		return
	}

	_ = q.store.setImageStatus(ctx, img.ID, model.StatusProcessing, "")

	err := q.processor(ctx, service.ImageProcessRequest{
		ImageID:  img.ID,
		FileName: img.FileName,
		MimeType: img.MimeType,
		Payload:  img.Payload,
	})
	if err != nil {
		_ = q.store.incrementImageRetry(ctx, img.ID)
		_ = q.store.setImageStatus(ctx, img.ID, model.StatusFailed, err.Error())
		q.log(ctx, actionImageFailed, img.ID, err.Error())
		result.Failed++
		return
	}

	_ = q.store.setImageStatus(ctx, img.ID, model.StatusCompleted, "")
	q.log(ctx, actionImageProcessed, img.ID, img.FileName)
	result.Success++
}

func (q *Queue) drainTransaction(ctx context.Context, txn model.QueuedTransaction, result *model.SyncResult) {
	if txn.RetryCount >= model.MaxRetryCount {
		_ = q.store.failTransactionPermanently(ctx, txn.ID, maxRetriesMessage)
		q.log(ctx, actionMaxRetries, txn.ID, maxRetriesMessage)
		result.Failed++
		return
	}

	entry, err := txn.ToLedgerEntry()
	if err != nil {
		// Unparseable stored amount will never succeed; retire it now.
		_ = q.store.failTransactionPermanently(ctx, txn.ID, err.Error())
		q.log(ctx, actionTransactionFailed, txn.ID, err.Error())
		result.Failed++
		return
	}

	_ = q.store.setTransactionStatus(ctx, txn.ID, model.StatusProcessing, "")

	// The drain's own retry budget is retry_count across runs, so each
	// run gets a single commit attempt.
	err = common.WithRetry(ctx, func() error {
		return q.ledger.Commit(ctx, entry)
	}, service.RetryOptions{MaxAttempts: 1})
	if err != nil {
		_ = q.store.incrementTransactionRetry(ctx, txn.ID)
		_ = q.store.setTransactionStatus(ctx, txn.ID, model.StatusFailed, err.Error())
		q.log(ctx, actionTransactionFailed, txn.ID, err.Error())
		result.Failed++
		return
	}

	_ = q.store.setTransactionStatus(ctx, txn.ID, model.StatusCompleted, "")
	q.log(ctx, actionTransactionCommitted, txn.ID, entry.Description)
	result.Success++
}

// Stats reports queue health.
func (q *Queue) Stats(ctx context.Context) (model.QueueStats, error) {
	return q.store.Stats(ctx)
}

// ClearCompleted removes completed items.
func (q *Queue) ClearCompleted(ctx context.Context) error {
	return q.store.ClearCompleted(ctx)
}

// ClearFailed removes permanently failed items.
func (q *Queue) ClearFailed(ctx context.Context) error {
	return q.store.ClearFailed(ctx)
}

// ClearAll empties the queue.
func (q *Queue) ClearAll(ctx context.Context) error {
	return q.store.ClearAll(ctx)
}

// ClearOldLogs prunes sync-log entries older than the given age in days.
func (q *Queue) ClearOldLogs(ctx context.Context, olderThanDays int) (int64, error) {
	return q.store.ClearOldLogs(ctx, olderThanDays)
}

// log appends a sync-log entry, logging rather than failing when the
// append itself cannot be written.
func (q *Queue) log(ctx context.Context, action, itemID, details string) {
	if err := q.store.appendLog(ctx, action, itemID, details); err != nil {
		slog.Warn("Failed to append sync log", "action", action, "error", err)
	}
}

// requestBackgroundSync asks the platform for a wake-up. Best effort.
func (q *Queue) requestBackgroundSync() {
	if q.registrar == nil {
		return
	}
	if err := q.registrar.RegisterBackgroundSync(); err != nil {
		slog.Debug("Background sync registration unavailable", "error", err)
	}
}
