package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QueueStatus is the lifecycle state of a durable queue item.
type QueueStatus string

// Queue status constants. Items move pending -> processing ->
// {completed|failed}, or straight to failed once the retry budget is spent.
const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
)

// MaxRetryCount is the retry budget for queued work. An item whose
// retryCount has reached this value is marked permanently failed instead
// of being attempted again.
const MaxRetryCount = 3

// QueuedImage is a receipt photo that could not be processed and was
// persisted for a later drain.
type QueuedImage struct {
	CreatedAt  time.Time
	ID         string
	FileName   string
	MimeType   string
	LastError  string
	Payload    []byte
	Status     QueueStatus
	RetryCount int
}

// QueuedTransaction is an extracted transaction that could not be
// committed to the ledger and was persisted for a later drain.
type QueuedTransaction struct {
	CreatedAt   time.Time
	SyncedAt    *time.Time
	ID          string
	Description string
	Currency    string
	CategoryID  string
	LastError   string
	Date        time.Time
	Type        TransactionType
	Amount      string
	Status      QueueStatus
	RetryCount  int
}

// ToLedgerEntry converts a queued transaction back into the ledger entry
// it was created from. The stored amount string must parse.
func (t QueuedTransaction) ToLedgerEntry() (LedgerEntry, error) {
	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("parsing queued amount %q: %w", t.Amount, err)
	}
	return LedgerEntry{
		ID:          t.ID,
		Date:        t.Date,
		Description: t.Description,
		Currency:    t.Currency,
		Type:        t.Type,
		Amount:      amount,
		CategoryID:  t.CategoryID,
	}, nil
}

// SyncLogEntry is an append-only audit record of queue activity. Entries
// are never mutated and are removed only by age-based pruning.
type SyncLogEntry struct {
	Timestamp time.Time
	ID        string
	Action    string
	ItemID    string
	Details   string
}

// NewImageID generates a queue id of the form img_<unixms>_<rand>.
func NewImageID() string {
	return newQueueID("img")
}

// NewTransactionID generates a queue id of the form tx_<unixms>_<rand>.
func NewTransactionID() string {
	return newQueueID("tx")
}

// NewLogID generates a sync-log id of the form log_<unixms>_<rand>.
func NewLogID() string {
	return newQueueID("log")
}

func newQueueID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// SyncResult reports the outcome of one queue drain.
type SyncResult struct {
	Success int
	Failed  int
}

// QueueStats is a derived snapshot of queue health.
type QueueStats struct {
	LastSyncedAt        *time.Time
	PendingImages       int
	PendingTransactions int
	FailedItems         int
}
