package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// recordingLedger counts commits and fails on demand.
type recordingLedger struct {
	mu       sync.Mutex
	commits  []model.LedgerEntry
	commitFn func(model.LedgerEntry) error
}

func (l *recordingLedger) Snapshot(context.Context) ([]model.LedgerEntry, error) { return nil, nil }

func (l *recordingLedger) Commit(_ context.Context, entry model.LedgerEntry) error {
	l.mu.Lock()
	l.commits = append(l.commits, entry)
	fn := l.commitFn
	l.mu.Unlock()
	if fn != nil {
		return fn(entry)
	}
	return nil
}

func (l *recordingLedger) SaveImportRecord(context.Context, model.ImportHistoryRecord) error {
	return nil
}

func (l *recordingLedger) commitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commits)
}

func testEntry(desc string) model.LedgerEntry {
	return model.LedgerEntry{
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Currency:    "USD",
		Type:        model.TypeExpense,
		Amount:      decimal.NewFromFloat(12.50),
	}
}

func TestQueueTransaction_AndDrain(t *testing.T) {
	store := newTestStore(t)
	ledger := &recordingLedger{}
	q := New(store, Config{Ledger: ledger})

	ctx := context.Background()
	id, err := q.QueueTransaction(ctx, testEntry("Coffee"))
	require.NoError(t, err)
	assert.Regexp(t, `^tx_\d+_[0-9a-f]{8}$`, id)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingTransactions)
	assert.Nil(t, stats.LastSyncedAt)

	result, err := q.SyncQueue(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SyncResult{Success: 1, Failed: 0}, result)
	assert.Equal(t, 1, ledger.commitCount())

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingTransactions)
	require.NotNil(t, stats.LastSyncedAt)
	assert.WithinDuration(t, time.Now().UTC(), *stats.LastSyncedAt, time.Minute)
}

func TestQueueImage_AndDrain(t *testing.T) {
	store := newTestStore(t)

	var processed []service.ImageProcessRequest
	processor := func(_ context.Context, req service.ImageProcessRequest) error {
		processed = append(processed, req)
		return nil
	}
	q := New(store, Config{Ledger: &recordingLedger{}, Processor: processor})

	ctx := context.Background()
	id, err := q.QueueImage(ctx, "receipt.jpg", "image/jpeg", []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Regexp(t, `^img_\d+_[0-9a-f]{8}$`, id)

	result, err := q.SyncQueue(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)

	require.Len(t, processed, 1)
	assert.Equal(t, id, processed[0].ImageID)
	assert.Equal(t, "receipt.jpg", processed[0].FileName)
	assert.Equal(t, []byte{0xff, 0xd8}, processed[0].Payload)
}

func TestSyncQueue_OfflineIsNoop(t *testing.T) {
	store := newTestStore(t)
	ledger := &recordingLedger{}
	q := New(store, Config{Ledger: ledger, Online: func() bool { return false }})

	ctx := context.Background()
	_, err := q.QueueTransaction(ctx, testEntry("Coffee"))
	require.NoError(t, err)

	result, err := q.SyncQueue(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SyncResult{}, result)
	assert.Zero(t, ledger.commitCount())

	// Item is still pending for the next online drain.
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingTransactions)
}

func TestSyncQueue_RetryExhaustion(t *testing.T) {
	// A transaction that fails commit on successive drains is attempted
	// three times, then permanently failed without another attempt.
	store := newTestStore(t)
	ledger := &recordingLedger{commitFn: func(model.LedgerEntry) error {
		return errors.New("ledger unavailable")
	}}
	q := New(store, Config{Ledger: ledger})

	ctx := context.Background()
	_, err := q.QueueTransaction(ctx, testEntry("Coffee"))
	require.NoError(t, err)

	for i := 0; i < model.MaxRetryCount; i++ {
		result, syncErr := q.SyncQueue(ctx, nil)
		require.NoError(t, syncErr)
		assert.Equal(t, 1, result.Failed)
	}
	attemptsAfterBudget := ledger.commitCount()

	// Fourth drain: no further commit attempt, item moves to failed.
	result, err := q.SyncQueue(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, attemptsAfterBudget, ledger.commitCount())

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingTransactions)
	assert.Equal(t, 1, stats.FailedItems)

	// A fifth drain finds nothing pending at all.
	result, err = q.SyncQueue(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SyncResult{}, result)
}

func TestSyncQueue_FailedItemCountedAndStillDrainable(t *testing.T) {
	// A failure under the retry budget marks the item failed so stats
	// count it, but the next drain still picks it up.
	store := newTestStore(t)
	ledger := &recordingLedger{commitFn: func(model.LedgerEntry) error {
		return errors.New("ledger unavailable")
	}}
	q := New(store, Config{Ledger: ledger})

	ctx := context.Background()
	_, err := q.QueueTransaction(ctx, testEntry("Coffee"))
	require.NoError(t, err)

	_, err = q.SyncQueue(ctx, nil)
	require.NoError(t, err)

	drainable, err := store.drainableTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, drainable, 1)
	assert.Equal(t, model.StatusFailed, drainable[0].Status)
	assert.Equal(t, 1, drainable[0].RetryCount)
	assert.Contains(t, drainable[0].LastError, "ledger unavailable")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingTransactions)
	assert.Equal(t, 1, stats.FailedItems)

	// The second drain retries the same item.
	_, err = q.SyncQueue(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.commitCount())
}

func TestSyncQueue_Progress(t *testing.T) {
	store := newTestStore(t)
	q := New(store, Config{Ledger: &recordingLedger{}})

	ctx := context.Background()
	_, err := q.QueueTransaction(ctx, testEntry("One"))
	require.NoError(t, err)
	_, err = q.QueueTransaction(ctx, testEntry("Two"))
	require.NoError(t, err)

	var percents []int
	_, err = q.SyncQueue(ctx, func(p int) { percents = append(percents, p) })
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, percents)
}

func TestSyncQueue_ConcurrentTriggersCollapse(t *testing.T) {
	store := newTestStore(t)

	release := make(chan struct{})
	ledger := &recordingLedger{commitFn: func(model.LedgerEntry) error {
		<-release
		return nil
	}}
	q := New(store, Config{Ledger: ledger})

	ctx := context.Background()
	_, err := q.QueueTransaction(ctx, testEntry("Coffee"))
	require.NoError(t, err)

	done := make(chan model.SyncResult, 1)
	go func() {
		result, _ := q.SyncQueue(ctx, nil)
		done <- result
	}()

	// Wait until the first drain is inside the commit, then trigger a
	// second drain. It must collapse to a no-op immediately.
	require.Eventually(t, func() bool { return ledger.commitCount() == 1 }, time.Second, 5*time.Millisecond)
	second, err := q.SyncQueue(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SyncResult{}, second)

	close(release)
	first := <-done
	assert.Equal(t, model.SyncResult{Success: 1}, first)
}

func TestMaintenance(t *testing.T) {
	store := newTestStore(t)
	failing := &recordingLedger{commitFn: func(model.LedgerEntry) error {
		return errors.New("down")
	}}
	q := New(store, Config{Ledger: failing})

	ctx := context.Background()
	_, err := q.QueueTransaction(ctx, testEntry("Doomed"))
	require.NoError(t, err)

	// Exhaust the budget so the item lands in failed.
	for i := 0; i < model.MaxRetryCount+1; i++ {
		_, err = q.SyncQueue(ctx, nil)
		require.NoError(t, err)
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FailedItems)

	require.NoError(t, q.ClearFailed(ctx))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.FailedItems)

	// ClearAll leaves the log; pruning is age-based only.
	_, err = q.QueueTransaction(ctx, testEntry("Another"))
	require.NoError(t, err)
	require.NoError(t, q.ClearAll(ctx))

	logs, err := store.Logs(ctx, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)

	removed, err := q.ClearOldLogs(ctx, 0)
	require.NoError(t, err)
	assert.Positive(t, removed)
}
