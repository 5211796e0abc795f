package storage

import (
	"database/sql"
	"fmt"
)

type migration struct {
	up          func(*sql.Tx) error
	description string
	version     int
}

var migrations = []migration{
	{
		version:     1,
		description: "Ledger, categories, import history",
		up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS ledger_entries (
					id TEXT PRIMARY KEY,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					currency TEXT NOT NULL,
					type TEXT NOT NULL,
					amount TEXT NOT NULL,
					category_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_ledger_entries_date ON ledger_entries(date)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS import_history (
					id TEXT PRIMARY KEY,
					file_name TEXT,
					file_type TEXT,
					status TEXT NOT NULL,
					success_count INTEGER NOT NULL DEFAULT 0,
					error_count INTEGER NOT NULL DEFAULT 0,
					duplicates_skipped INTEGER NOT NULL DEFAULT 0,
					total_income TEXT NOT NULL DEFAULT '0',
					total_expenses TEXT NOT NULL DEFAULT '0',
					errors TEXT,
					started_at DATETIME NOT NULL,
					finished_at DATETIME NOT NULL
				)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		version:     2,
		description: "Seed default categories",
		up: func(tx *sql.Tx) error {
			seed := []struct{ id, name string }{
				{"uncategorized", "Uncategorized"},
				{"dining", "Dining & Restaurants"},
				{"groceries", "Groceries"},
				{"transport", "Transport & Fuel"},
				{"utilities", "Utilities"},
				{"entertainment", "Entertainment"},
				{"health", "Health & Pharmacy"},
				{"shopping", "Shopping"},
				{"travel", "Travel"},
				{"income", "Income"},
			}
			for _, c := range seed {
				if _, err := tx.Exec(
					`INSERT OR IGNORE INTO categories (id, name) VALUES (?, ?)`, c.id, c.name); err != nil {
					return fmt.Errorf("failed to seed category %s: %w", c.id, err)
				}
			}
			return nil
		},
	},
}
