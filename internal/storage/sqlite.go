// Package storage implements the ledger collaborator on SQLite: the
// confirmed-transaction ledger, categories, and import history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/pmarsh-dev/ledgerflow/internal/common"
)

// expectedSchemaVersion is the latest schema version this build expects.
const expectedSchemaVersion = 2

// LedgerStore is the SQLite-backed ledger.
type LedgerStore struct {
	db     *sql.DB
	dbPath string
}

// Open opens (and if needed creates) the ledger database and brings its
// schema up to date.
func Open(dbPath string) (*LedgerStore, error) {
	if dbPath == "" {
		return nil, &common.ConfigError{Detail: "ledger database path is empty"}
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

	store := &LedgerStore{db: db, dbPath: dbPath}
	if err := store.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}

// Migrate applies any pending schema migrations.
func (s *LedgerStore) Migrate(ctx context.Context) error {
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

		slog.Info("Applied migration", "version", m.version, "description", m.description)
	}

	var finalVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != expectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", expectedSchemaVersion, finalVersion)
	}
	return nil
}
