package categorize

import (
	"context"
	"log/slog"

	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// DefaultCategoryID is assigned when every categorizer in the chain
// declines. Categorization failures never fail an import.
const DefaultCategoryID = "uncategorized"

// Chain tries categorizers in order and falls back to the fixed default
// when all of them fail. Its Suggest never returns an error.
type Chain struct {
	categorizers []service.Categorizer
}

// NewChain creates a categorizer chain. Nil members are skipped.
func NewChain(categorizers ...service.Categorizer) *Chain {
	var active []service.Categorizer
	for _, c := range categorizers {
		if c != nil {
			active = append(active, c)
		}
	}
	return &Chain{categorizers: active}
}

// Suggest returns the first successful suggestion, or the default
// category with zero confidence when the whole chain declines.
func (c *Chain) Suggest(ctx context.Context, description string) (service.CategorySuggestion, error) {
	for _, categorizer := range c.categorizers {
		suggestion, err := categorizer.Suggest(ctx, description)
		if err != nil {
			slog.Debug("Categorizer declined, trying next", "error", err)
			continue
		}
		if suggestion.CategoryID != "" {
			return suggestion, nil
		}
	}
	return service.CategorySuggestion{CategoryID: DefaultCategoryID, Confidence: 0}, nil
}
