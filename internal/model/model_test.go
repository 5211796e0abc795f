package model

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchType_Confidence(t *testing.T) {
	tests := []struct {
		name  string
		match MatchType
		want  float64
	}{
		{name: "exact is 1.0", match: MatchExact, want: 1.0},
		{name: "likely is 0.8", match: MatchLikely, want: 0.8},
		{name: "possible is 0.5", match: MatchPossible, want: 0.5},
		{name: "none is 0", match: MatchNone, want: 0},
		{name: "unknown tier is 0", match: MatchType("bogus"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.match.Confidence(), 1e-9)
		})
	}
}

func TestMeanConfidence(t *testing.T) {
	assert.Zero(t, MeanConfidence(nil))
	assert.Zero(t, MeanConfidence([]MultiImageTransaction{}))

	txns := []MultiImageTransaction{
		{RawTransaction: RawTransaction{Confidence: 0.9}},
		{RawTransaction: RawTransaction{Confidence: 0.5}},
		{RawTransaction: RawTransaction{Confidence: 0.7}},
	}
	assert.InDelta(t, 0.7, MeanConfidence(txns), 1e-9)
}

func TestQueueIDs(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{name: "image id", gen: NewImageID, prefix: "img"},
		{name: "transaction id", gen: NewTransactionID, prefix: "tx"},
		{name: "log id", gen: NewLogID, prefix: "log"},
	}

	pattern := regexp.MustCompile(`^(img|tx|log)_\d+_[0-9a-f]{8}$`)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.gen()
			require.Regexp(t, pattern, id)
			assert.Contains(t, id, tt.prefix+"_")

			// Ids must be unique across calls.
			assert.NotEqual(t, id, tt.gen())
		})
	}
}

func TestDefaultPreferences(t *testing.T) {
	prefs := DefaultPreferences()
	assert.Equal(t, ModeAuto, prefs.Mode)
	assert.Equal(t, StrategySpeed, prefs.Strategy)
	assert.False(t, prefs.PrivacyMode)
	assert.InDelta(t, 0.7, prefs.ConfidenceThreshold, 1e-9)
}
