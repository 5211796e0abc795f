package dedup

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// amountTolerance is the absolute tolerance for amount equality.
var amountTolerance = decimal.NewFromFloat(0.01)

// Engine classifies import candidates against a ledger snapshot.
type Engine struct{}

// NewEngine creates a duplicate detection engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Check classifies one candidate into exactly one match tier. Ledger
// entries are scanned in order three times, strictest tier first, and the
// first entry satisfying a tier wins. This is deliberately first-match,
// not best-match: the engine does not keep looking for a closer entry
// once a tier is satisfied.
func (e *Engine) Check(candidate model.ImportTransaction, snapshot []model.LedgerEntry) model.DuplicateCheck {
	check := model.DuplicateCheck{
		TransactionID: candidate.ID,
		MatchType:     model.MatchNone,
	}

	for _, entry := range snapshot {
		if isExactMatch(candidate, entry) {
			check.MatchType = model.MatchExact
			check.ExistingID = entry.ID
			break
		}
	}

	if check.MatchType == model.MatchNone {
		for _, entry := range snapshot {
			if isLikelyMatch(candidate, entry) {
				check.MatchType = model.MatchLikely
				check.ExistingID = entry.ID
				break
			}
		}
	}

	if check.MatchType == model.MatchNone {
		for _, entry := range snapshot {
			if isPossibleMatch(candidate, entry) {
				check.MatchType = model.MatchPossible
				check.ExistingID = entry.ID
				break
			}
		}
	}

	check.Confidence = check.MatchType.Confidence()
	check.IsDuplicate = check.MatchType != model.MatchNone
	return check
}

// CheckAll runs Check for every candidate against one shared snapshot.
func (e *Engine) CheckAll(candidates []model.ImportTransaction, snapshot []model.LedgerEntry) []model.DuplicateCheck {
	checks := make([]model.DuplicateCheck, len(candidates))
	for i, candidate := range candidates {
		checks[i] = e.Check(candidate, snapshot)
	}
	return checks
}

// MarkDuplicates applies duplicate verdicts to the candidate list,
// returning a new slice; flagged transactions are deselected by default
// but the user may re-include them.
func (e *Engine) MarkDuplicates(candidates []model.ImportTransaction, checks []model.DuplicateCheck) []model.ImportTransaction {
	byID := make(map[string]model.DuplicateCheck, len(checks))
	for _, check := range checks {
		byID[check.TransactionID] = check
	}

	marked := make([]model.ImportTransaction, len(candidates))
	for i, candidate := range candidates {
		if check, ok := byID[candidate.ID]; ok && check.IsDuplicate {
			candidate.IsDuplicate = true
			candidate.DuplicateOf = check.ExistingID
			candidate.Selected = false
			slog.Debug("Marked duplicate candidate",
				"transaction_id", candidate.ID,
				"match_type", check.MatchType,
				"existing_id", check.ExistingID)
		}
		marked[i] = candidate
	}
	return marked
}

// isExactMatch: same calendar day, amounts within tolerance, similar
// descriptions.
func isExactMatch(candidate model.ImportTransaction, entry model.LedgerEntry) bool {
	return sameCalendarDay(candidate, entry) &&
		amountsEqual(candidate.Amount, entry.Amount) &&
		Similar(candidate.Description, entry.Description)
}

// isLikelyMatch: same calendar day, amounts within tolerance, same type.
// The description is ignored at this tier.
func isLikelyMatch(candidate model.ImportTransaction, entry model.LedgerEntry) bool {
	return sameCalendarDay(candidate, entry) &&
		amountsEqual(candidate.Amount, entry.Amount) &&
		candidate.Type == entry.Type
}

// isPossibleMatch: dates within one calendar day, amounts within
// tolerance, same type.
func isPossibleMatch(candidate model.ImportTransaction, entry model.LedgerEntry) bool {
	return daysApart(candidate, entry) <= 1 &&
		amountsEqual(candidate.Amount, entry.Amount) &&
		candidate.Type == entry.Type
}

func sameCalendarDay(candidate model.ImportTransaction, entry model.LedgerEntry) bool {
	y1, m1, d1 := candidate.Date.Date()
	y2, m2, d2 := entry.Date.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func daysApart(candidate model.ImportTransaction, entry model.LedgerEntry) int {
	a := truncateToDay(candidate.Date)
	b := truncateToDay(entry.Date)
	diff := int(a.Sub(b).Hours() / 24)
	if diff < 0 {
		diff = -diff
	}
	return diff
}

// truncateToDay drops the time-of-day component so date comparisons work
// on calendar days regardless of timestamps or zones on either side.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func amountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(amountTolerance)
}
