package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

func newTestStore(t *testing.T) *LedgerStore {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}

func TestLedger_CommitAndSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []model.LedgerEntry{
		{
			ID:          uuid.NewString(),
			Date:        time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
			Description: "Starbucks Coffee",
			Currency:    "USD",
			Type:        model.TypeExpense,
			Amount:      decimal.NewFromFloat(4.50),
			CategoryID:  "dining",
		},
		{
			ID:          uuid.NewString(),
			Date:        time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
			Description: "Payroll",
			Currency:    "USD",
			Type:        model.TypeIncome,
			Amount:      decimal.NewFromFloat(2500),
			CategoryID:  "income",
		},
	}
	for _, e := range entries {
		require.NoError(t, store.Commit(ctx, e))
	}

	got, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Snapshot preserves confirmation order.
	assert.Equal(t, "Starbucks Coffee", got[0].Description)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromFloat(4.50)))
	assert.Equal(t, model.TypeExpense, got[0].Type)
	assert.Equal(t, "dining", got[0].CategoryID)
	assert.Equal(t, "Payroll", got[1].Description)
}

func TestLedger_CommitDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := model.LedgerEntry{
		ID:          "fixed-id",
		Date:        time.Now().UTC(),
		Description: "Coffee",
		Currency:    "USD",
		Type:        model.TypeExpense,
		Amount:      decimal.NewFromFloat(4.50),
	}
	require.NoError(t, store.Commit(ctx, entry))
	require.Error(t, store.Commit(ctx, entry))
}

func TestImportHistory_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := model.ImportHistoryRecord{
		ID:        uuid.NewString(),
		FileName:  "statement.csv",
		FileType:  "generic_csv",
		Status:    model.ImportCompleted,
		StartedAt: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 2, 1, 10, 0, 5, 0, time.UTC),
		Stats: model.ConfirmStats{
			SuccessCount:      2,
			ErrorCount:        1,
			DuplicatesSkipped: 1,
			TotalIncome:       decimal.NewFromFloat(2500),
			TotalExpenses:     decimal.NewFromFloat(4.50),
			Errors: []model.CommitError{
				{Row: 2, Message: "commit failed", OriginalValue: "Groceries"},
			},
		},
	}
	require.NoError(t, store.SaveImportRecord(ctx, record))

	records, err := store.ImportHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, model.ImportCompleted, got.Status)
	assert.Equal(t, 2, got.Stats.SuccessCount)
	assert.Equal(t, 1, got.Stats.ErrorCount)
	require.Len(t, got.Stats.Errors, 1)
	assert.Equal(t, 2, got.Stats.Errors[0].Row)
	assert.True(t, got.Stats.TotalIncome.Equal(decimal.NewFromFloat(2500)))
}

func TestCategories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.CategoryIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "uncategorized")
	assert.Contains(t, ids, "dining")

	require.NoError(t, store.AddCategory(ctx, "pets", "Pets"))
	require.NoError(t, store.AddCategory(ctx, "pets", "Pets"))

	ids, err = store.CategoryIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "pets")
}

func TestCategorizedHistory_ExcludesUncategorized(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commit := func(desc, category string) {
		require.NoError(t, store.Commit(ctx, model.LedgerEntry{
			ID:          uuid.NewString(),
			Date:        time.Now().UTC(),
			Description: desc,
			Currency:    "USD",
			Type:        model.TypeExpense,
			Amount:      decimal.NewFromFloat(1),
			CategoryID:  category,
		}))
	}
	commit("Coffee", "dining")
	commit("Mystery", "uncategorized")
	commit("Unlabeled", "")

	history, err := store.CategorizedHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Coffee", history[0].Description)
}
