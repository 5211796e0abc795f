// Package dedup implements duplicate detection for imported transactions:
// a three-tier fuzzy match against the existing ledger and the string
// similarity measure shared with the multi-image merger.
package dedup

import (
	"strings"
	"unicode"
)

// similarityThreshold is the minimum Dice coefficient for two normalized
// descriptions to count as similar.
const similarityThreshold = 0.7

// Normalize lowercases a description and strips every non-alphanumeric
// character.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similar reports whether two descriptions refer to the same merchant or
// line item. Equality after normalization and substring containment are
// checked before falling back to bigram similarity. Strings shorter than
// two characters after normalization are compared for exact equality only.
func Similar(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)

	if na == nb {
		return na != ""
	}
	if len(na) < 2 || len(nb) < 2 {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	if DiceCoefficient(na, nb) >= similarityThreshold {
		return true
	}

	// Receipt descriptions often differ only by a store or reference
	// number ("STARBUCKS #4521"). Retry containment with digits removed
	// so that numeric noise does not defeat an otherwise clear match.
	la, lb := stripDigits(na), stripDigits(nb)
	if len(la) < 2 || len(lb) < 2 {
		return false
	}
	return la == lb || strings.Contains(la, lb) || strings.Contains(lb, la)
}

func stripDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DiceCoefficient computes the Sørensen–Dice coefficient over character
// bigrams of two already-normalized strings:
// 2*|bigrams(a) ∩ bigrams(b)| / (|bigrams(a)| + |bigrams(b)|).
func DiceCoefficient(a, b string) float64 {
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	var shared int
	for bg := range ba {
		if bb[bg] {
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(ba)+len(bb))
}

func bigrams(s string) map[string]bool {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	set := make(map[string]bool, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		set[string(runes[i:i+2])] = true
	}
	return set
}
