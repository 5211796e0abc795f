// Package queue implements the offline durable queue: SQLite-backed
// storage for work that could not complete while offline, a guarded
// drain, and an append-only sync log.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// expectedSchemaVersion is the schema version this build requires.
const expectedSchemaVersion = 1

type migration struct {
	up          func(*sql.Tx) error
	description string
	version     int
}

var migrations = []migration{
	{
		version:     1,
		description: "Queue tables and sync log",
		up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS queued_images (
					id TEXT PRIMARY KEY,
					file_name TEXT NOT NULL,
					mime_type TEXT NOT NULL,
					payload BLOB NOT NULL,
					status TEXT NOT NULL,
					retry_count INTEGER NOT NULL DEFAULT 0,
					last_error TEXT,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_queued_images_status ON queued_images(status)`,

				`CREATE TABLE IF NOT EXISTS queued_transactions (
					id TEXT PRIMARY KEY,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					currency TEXT NOT NULL,
					type TEXT NOT NULL,
					amount TEXT NOT NULL,
					category_id TEXT,
					status TEXT NOT NULL,
					retry_count INTEGER NOT NULL DEFAULT 0,
					last_error TEXT,
					created_at DATETIME NOT NULL,
					synced_at DATETIME
				)`,
				`CREATE INDEX idx_queued_transactions_status ON queued_transactions(status)`,

				`CREATE TABLE IF NOT EXISTS sync_log (
					id TEXT PRIMARY KEY,
					action TEXT NOT NULL,
					item_id TEXT,
					details TEXT,
					timestamp DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_sync_log_timestamp ON sync_log(timestamp)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Store is the SQLite persistence layer of the durable queue.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the queue database and brings
// its schema up to date.
func OpenStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, &common.ConfigError{Detail: "queue database path is empty"}
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}
		if upErr := m.up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, upErr)
		}
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, commitErr)
		}

		slog.Info("Applied queue migration", "version", m.version, "description", m.description)
	}

	var finalVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != expectedSchemaVersion {
		return fmt.Errorf("queue schema version mismatch: expected %d, got %d", expectedSchemaVersion, finalVersion)
	}
	return nil
}

func (s *Store) insertImage(ctx context.Context, img model.QueuedImage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queued_images (id, file_name, mime_type, payload, status, retry_count, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.FileName, img.MimeType, img.Payload, string(img.Status), img.RetryCount, img.LastError, img.CreatedAt)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "queue image"}
	}
	return nil
}

func (s *Store) insertTransaction(ctx context.Context, txn model.QueuedTransaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queued_transactions (id, date, description, currency, type, amount, category_id, status, retry_count, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.Date, txn.Description, txn.Currency, string(txn.Type), txn.Amount, txn.CategoryID,
		string(txn.Status), txn.RetryCount, txn.LastError, txn.CreatedAt)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "queue transaction"}
	}
	return nil
}

// drainableImages selects pending images plus previously-failed ones
// whose retry budget is not yet spent. Permanently retired items carry a
// retry_count past the budget and are excluded.
func (s *Store) drainableImages(ctx context.Context) ([]model.QueuedImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, mime_type, payload, status, retry_count, COALESCE(last_error, ''), created_at
		 FROM queued_images WHERE status = ? OR (status = ? AND retry_count <= ?) ORDER BY created_at`,
		string(model.StatusPending), string(model.StatusFailed), model.MaxRetryCount)
	if err != nil {
		return nil, &common.PersistenceError{Err: err, Operation: "load pending images"}
	}
	defer func() { _ = rows.Close() }()

	var images []model.QueuedImage
	for rows.Next() {
		var img model.QueuedImage
		var status string
		if err := rows.Scan(&img.ID, &img.FileName, &img.MimeType, &img.Payload, &status, &img.RetryCount, &img.LastError, &img.CreatedAt); err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "scan pending image"}
		}
		img.Status = model.QueueStatus(status)
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *Store) drainableTransactions(ctx context.Context) ([]model.QueuedTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, description, currency, type, amount, COALESCE(category_id, ''), status, retry_count, COALESCE(last_error, ''), created_at, synced_at
		 FROM queued_transactions WHERE status = ? OR (status = ? AND retry_count <= ?) ORDER BY created_at`,
		string(model.StatusPending), string(model.StatusFailed), model.MaxRetryCount)
	if err != nil {
		return nil, &common.PersistenceError{Err: err, Operation: "load pending transactions"}
	}
	defer func() { _ = rows.Close() }()

	var txns []model.QueuedTransaction
	for rows.Next() {
		var txn model.QueuedTransaction
		var status, txnType string
		if err := rows.Scan(&txn.ID, &txn.Date, &txn.Description, &txn.Currency, &txnType, &txn.Amount,
			&txn.CategoryID, &status, &txn.RetryCount, &txn.LastError, &txn.CreatedAt, &txn.SyncedAt); err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "scan pending transaction"}
		}
		txn.Status = model.QueueStatus(status)
		txn.Type = model.TransactionType(txnType)
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (s *Store) setImageStatus(ctx context.Context, id string, status model.QueueStatus, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queued_images SET status = ?, last_error = ? WHERE id = ?`,
		string(status), lastError, id)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "update image status"}
	}
	return nil
}

func (s *Store) setTransactionStatus(ctx context.Context, id string, status model.QueueStatus, lastError string) error {
	var err error
	if status == model.StatusCompleted {
		_, err = s.db.ExecContext(ctx,
			`UPDATE queued_transactions SET status = ?, last_error = ?, synced_at = ? WHERE id = ?`,
			string(status), lastError, time.Now().UTC(), id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE queued_transactions SET status = ?, last_error = ? WHERE id = ?`,
			string(status), lastError, id)
	}
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "update transaction status"}
	}
	return nil
}

// failImagePermanently retires an image from automatic retry by pushing
// its retry_count past the budget.
func (s *Store) failImagePermanently(ctx context.Context, id, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queued_images SET status = ?, last_error = ?, retry_count = ? WHERE id = ?`,
		string(model.StatusFailed), lastError, model.MaxRetryCount+1, id)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "retire image"}
	}
	return nil
}

func (s *Store) failTransactionPermanently(ctx context.Context, id, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queued_transactions SET status = ?, last_error = ?, retry_count = ? WHERE id = ?`,
		string(model.StatusFailed), lastError, model.MaxRetryCount+1, id)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "retire transaction"}
	}
	return nil
}

func (s *Store) incrementImageRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE queued_images SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "increment image retry"}
	}
	return nil
}

func (s *Store) incrementTransactionRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE queued_transactions SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "increment transaction retry"}
	}
	return nil
}

func (s *Store) appendLog(ctx context.Context, action, itemID, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, action, item_id, details, timestamp) VALUES (?, ?, ?, ?, ?)`,
		model.NewLogID(), action, itemID, details, time.Now().UTC())
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "append sync log"}
	}
	return nil
}

// Logs returns the most recent sync-log entries, newest first.
func (s *Store) Logs(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, COALESCE(item_id, ''), COALESCE(details, ''), timestamp
		 FROM sync_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &common.PersistenceError{Err: err, Operation: "load sync log"}
	}
	defer func() { _ = rows.Close() }()

	var entries []model.SyncLogEntry
	for rows.Next() {
		var e model.SyncLogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.ItemID, &e.Details, &e.Timestamp); err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "scan sync log"}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearCompleted removes completed items from both queue tables.
func (s *Store) ClearCompleted(ctx context.Context) error {
	return s.clearByStatus(ctx, model.StatusCompleted)
}

// ClearFailed removes permanently failed items from both queue tables.
func (s *Store) ClearFailed(ctx context.Context) error {
	return s.clearByStatus(ctx, model.StatusFailed)
}

func (s *Store) clearByStatus(ctx context.Context, status model.QueueStatus) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_images WHERE status = ?`, string(status)); err != nil {
		return &common.PersistenceError{Err: err, Operation: "clear images"}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_transactions WHERE status = ?`, string(status)); err != nil {
		return &common.PersistenceError{Err: err, Operation: "clear transactions"}
	}
	return nil
}

// ClearAll empties both queue tables regardless of status. The sync log
// is kept; it is pruned only by age.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_images`); err != nil {
		return &common.PersistenceError{Err: err, Operation: "clear all images"}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_transactions`); err != nil {
		return &common.PersistenceError{Err: err, Operation: "clear all transactions"}
	}
	return nil
}

// ClearOldLogs prunes sync-log entries older than the given number of
// days and returns how many were removed.
func (s *Store) ClearOldLogs(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, &common.PersistenceError{Err: err, Operation: "prune sync log"}
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, &common.PersistenceError{Err: err, Operation: "prune sync log"}
	}
	return removed, nil
}

// Stats derives queue health counts. It reads only and has no side
// effects.
func (s *Store) Stats(ctx context.Context) (model.QueueStats, error) {
	var stats model.QueueStats

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_images WHERE status = ?`, string(model.StatusPending)).Scan(&stats.PendingImages)
	if err != nil {
		return stats, &common.PersistenceError{Err: err, Operation: "count pending images"}
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_transactions WHERE status = ?`, string(model.StatusPending)).Scan(&stats.PendingTransactions)
	if err != nil {
		return stats, &common.PersistenceError{Err: err, Operation: "count pending transactions"}
	}

	var failedImages, failedTxns int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_images WHERE status = ?`, string(model.StatusFailed)).Scan(&failedImages)
	if err != nil {
		return stats, &common.PersistenceError{Err: err, Operation: "count failed images"}
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_transactions WHERE status = ?`, string(model.StatusFailed)).Scan(&failedTxns)
	if err != nil {
		return stats, &common.PersistenceError{Err: err, Operation: "count failed transactions"}
	}
	stats.FailedItems = failedImages + failedTxns

	// Select the declared timestamp column directly; an aggregate
	// expression has no declared type and the driver will not
	// time-parse it.
	var lastSync time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM sync_log WHERE action = ? ORDER BY timestamp DESC LIMIT 1`,
		actionSyncCompleted).Scan(&lastSync)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Never synced.
	case err != nil:
		return stats, &common.PersistenceError{Err: err, Operation: "find last sync"}
	default:
		stats.LastSyncedAt = &lastSync
	}
	return stats, nil
}
