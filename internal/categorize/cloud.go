// Package categorize implements the categorization collaborators: a
// cloud-backed categorizer, an offline bayesian fallback trained from
// ledger history, and a chain that degrades between them.
package categorize

import (
	"context"
	"fmt"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/extract"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// CloudCategorizer asks the cloud provider to map descriptions onto the
// configured category set.
type CloudCategorizer struct {
	cloud      extract.CloudClient
	categories []string
}

// NewCloudCategorizer creates a categorizer backed by a cloud client,
// constrained to the given category ids.
func NewCloudCategorizer(cloud extract.CloudClient, categories []string) *CloudCategorizer {
	return &CloudCategorizer{cloud: cloud, categories: categories}
}

// Suggest returns the provider's category suggestion for one description.
func (c *CloudCategorizer) Suggest(ctx context.Context, description string) (service.CategorySuggestion, error) {
	if c.cloud == nil || !c.cloud.IsAvailable() {
		return service.CategorySuggestion{}, &common.UnavailableError{Reason: "cloud categorization requires a configured provider"}
	}

	suggestions, err := c.cloud.Categorize(ctx, []string{description}, c.categories)
	if err != nil {
		return service.CategorySuggestion{}, err
	}
	if len(suggestions) != 1 {
		return service.CategorySuggestion{}, fmt.Errorf("expected 1 suggestion, got %d", len(suggestions))
	}
	return suggestions[0], nil
}
