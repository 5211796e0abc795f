package categorize

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jbrukh/bayesian"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// minTrainingClasses is the minimum number of distinct categories needed
// to train a classifier at all.
const minTrainingClasses = 2

// BayesianCategorizer is the offline fallback: a TF-IDF naive bayes
// classifier trained from the user's own confirmed ledger history. No
// network, no model files, just past decisions.
type BayesianCategorizer struct {
	classifier *bayesian.Classifier
	classes    []bayesian.Class
}

// TrainBayesian builds a classifier from confirmed ledger entries. It
// fails when the history holds fewer than two distinct categories, since
// a single-class classifier cannot discriminate.
func TrainBayesian(entries []model.LedgerEntry) (*BayesianCategorizer, error) {
	byCategory := make(map[string]bool)
	for _, e := range entries {
		if e.CategoryID != "" {
			byCategory[e.CategoryID] = true
		}
	}
	if len(byCategory) < minTrainingClasses {
		return nil, fmt.Errorf("need at least %d categories in history, have %d", minTrainingClasses, len(byCategory))
	}

	classes := make([]bayesian.Class, 0, len(byCategory))
	for id := range byCategory {
		classes = append(classes, bayesian.Class(id))
	}

	classifier := bayesian.NewClassifierTfIdf(classes...)
	for _, e := range entries {
		if e.CategoryID == "" {
			continue
		}
		terms := tokenize(e.Description)
		if len(terms) == 0 {
			continue
		}
		classifier.Learn(terms, bayesian.Class(e.CategoryID))
	}
	classifier.ConvertTermsFreqToTfIdf()

	return &BayesianCategorizer{classifier: classifier, classes: classes}, nil
}

// Suggest classifies one description against the trained history.
func (b *BayesianCategorizer) Suggest(_ context.Context, description string) (service.CategorySuggestion, error) {
	terms := tokenize(description)
	if len(terms) == 0 {
		return service.CategorySuggestion{}, fmt.Errorf("no classifiable terms in %q", description)
	}

	scores, best, _ := b.classifier.LogScores(terms)
	return service.CategorySuggestion{
		CategoryID: string(b.classes[best]),
		Confidence: softmaxConfidence(scores, best),
	}, nil
}

// softmaxConfidence turns log scores into a posterior for the winning
// class. Scores are shifted by the max before exponentiation so large
// negative log likelihoods do not underflow to zero.
func softmaxConfidence(scores []float64, best int) float64 {
	max := scores[best]
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - max)
	}
	if sum == 0 {
		return 0
	}
	return 1 / sum
}

// tokenize lowercases a description and splits it into classifier terms,
// dropping punctuation-only noise.
func tokenize(desc string) []string {
	desc = strings.ToLower(desc)
	desc = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return ' '
	}, desc)
	return strings.Fields(desc)
}
