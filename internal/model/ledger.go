package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is a confirmed transaction as persisted in the ledger. The
// duplicate engine compares import candidates against a snapshot of these.
type LedgerEntry struct {
	Date        time.Time
	ID          string
	Description string
	CategoryID  string
	Currency    string
	Type        TransactionType
	Amount      decimal.Decimal
}

// CommitError records a single failed row during confirm/commit. Row is
// the 1-based position within the selected set.
type CommitError struct {
	Message       string
	OriginalValue string
	Row           int
}

// ConfirmStats accumulates the running totals of a confirm/commit pass.
type ConfirmStats struct {
	TotalIncome       decimal.Decimal
	TotalExpenses     decimal.Decimal
	Errors            []CommitError
	SuccessCount      int
	ErrorCount        int
	DuplicatesSkipped int
}

// ImportStatus is the final state of an import-history record.
type ImportStatus string

// Import status constants. An import that ran to completion is completed
// even when individual rows failed; failed means the commit loop itself
// was aborted.
const (
	ImportCompleted ImportStatus = "completed"
	ImportFailed    ImportStatus = "failed"
)

// ImportHistoryRecord is the persisted audit record of one confirm/commit.
type ImportHistoryRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time
	ID         string
	FileName   string
	FileType   string
	Status     ImportStatus
	Stats      ConfirmStats
}
