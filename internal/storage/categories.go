package storage

import (
	"context"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// Category is a user-visible spending category.
type Category struct {
	ID   string
	Name string
}

// Categories returns all categories in id order.
func (s *LedgerStore) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, &common.PersistenceError{Err: err, Operation: "load categories"}
	}
	defer func() { _ = rows.Close() }()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, &common.PersistenceError{Err: err, Operation: "scan category"}
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CategoryIDs returns just the category ids, the form the categorizers
// consume.
func (s *LedgerStore) CategoryIDs(ctx context.Context) ([]string, error) {
	categories, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	return ids, nil
}

// AddCategory inserts a category if it does not already exist.
func (s *LedgerStore) AddCategory(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (id, name) VALUES (?, ?)`, id, name)
	if err != nil {
		return &common.PersistenceError{Err: err, Operation: "add category"}
	}
	return nil
}

// CategorizedHistory returns the ledger entries that carry a category,
// the training set for the offline categorizer.
func (s *LedgerStore) CategorizedHistory(ctx context.Context) ([]model.LedgerEntry, error) {
	entries, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var categorized []model.LedgerEntry
	for _, e := range entries {
		if e.CategoryID != "" && e.CategoryID != "uncategorized" {
			categorized = append(categorized, e)
		}
	}
	return categorized, nil
}
