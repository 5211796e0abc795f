package storage

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// Snapshot returns all confirmed transactions in ledger order (insertion
// order of confirmation). The import pipeline takes exactly one snapshot
// per batch.
func (s *LedgerStore) Snapshot(ctx context.Context) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, description, currency, type, amount, COALESCE(category_id, '')
		 FROM ledger_entries ORDER BY rowid`)
	if err != nil {
		return nil, &common.PersistenceError{Err: err, Operation: "ledger snapshot"}
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var txnType, amount string
		if err := rows.Scan(&e.ID, &e.Date, &e.Description, &e.Currency, &txnType, &amount, &e.CategoryID); err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "scan ledger entry"}
		}
		e.Type = model.TransactionType(txnType)
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "parse ledger amount"}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Commit writes one confirmed transaction to the ledger.
func (s *LedgerStore) Commit(ctx context.Context, entry model.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, date, description, currency, type, amount, category_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Date, entry.Description, entry.Currency, string(entry.Type),
		entry.Amount.String(), entry.CategoryID)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "commit ledger entry"}
	}
	return nil
}

// SaveImportRecord persists the audit record of one confirm/commit run.
func (s *LedgerStore) SaveImportRecord(ctx context.Context, record model.ImportHistoryRecord) error {
	var errorsJSON []byte
	if len(record.Stats.Errors) > 0 {
		var err error
		errorsJSON, err = json.Marshal(record.Stats.Errors)
		if err != nil {
			return &common.PersistenceError{Err: err, Operation: "encode import errors"}
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_history
		 (id, file_name, file_type, status, success_count, error_count, duplicates_skipped,
		  total_income, total_expenses, errors, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.FileName, record.FileType, string(record.Status),
		record.Stats.SuccessCount, record.Stats.ErrorCount, record.Stats.DuplicatesSkipped,
		record.Stats.TotalIncome.String(), record.Stats.TotalExpenses.String(),
		string(errorsJSON), record.StartedAt, record.FinishedAt)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "save import record"}
	}
	return nil
}

// ImportHistory returns past import records, newest first.
func (s *LedgerStore) ImportHistory(ctx context.Context, limit int) ([]model.ImportHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(file_name, ''), COALESCE(file_type, ''), status,
		        success_count, error_count, duplicates_skipped, total_income, total_expenses,
		        COALESCE(errors, ''), started_at, finished_at
		 FROM import_history ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &common.PersistenceError{Err: err, Operation: "load import history"}
	}
	defer func() { _ = rows.Close() }()

	var records []model.ImportHistoryRecord
	for rows.Next() {
		var r model.ImportHistoryRecord
		var status, income, expenses, errorsJSON string
		if err := rows.Scan(&r.ID, &r.FileName, &r.FileType, &status,
			&r.Stats.SuccessCount, &r.Stats.ErrorCount, &r.Stats.DuplicatesSkipped,
			&income, &expenses, &errorsJSON, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "scan import record"}
		}
		r.Status = model.ImportStatus(status)
		if r.Stats.TotalIncome, err = decimal.NewFromString(income); err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "parse import totals"}
		}
		if r.Stats.TotalExpenses, err = decimal.NewFromString(expenses); err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "parse import totals"}
		}
		if errorsJSON != "" {
			if err := json.Unmarshal([]byte(errorsJSON), &r.Stats.Errors); err != nil {
				return nil, &common.PersistenceError{Err: err, Operation: "decode import errors"}
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
