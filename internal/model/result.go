package model

// MatchType ranks how confident the duplicate engine is that an imported
// item already exists in the ledger, ordered by strictness.
type MatchType string

// Match tier constants.
const (
	MatchNone     MatchType = "none"
	MatchPossible MatchType = "possible"
	MatchLikely   MatchType = "likely"
	MatchExact    MatchType = "exact"
)

// Confidence maps a match tier to its fixed confidence score.
func (m MatchType) Confidence() float64 {
	switch m {
	case MatchExact:
		return 1.0
	case MatchLikely:
		return 0.8
	case MatchPossible:
		return 0.5
	default:
		return 0
	}
}

// DuplicateCheck is the duplicate engine's verdict for one candidate.
type DuplicateCheck struct {
	TransactionID string
	MatchType     MatchType
	ExistingID    string
	Confidence    float64
	IsDuplicate   bool
}

// ProcessingResult is the outcome of one extraction call.
type ProcessingResult struct {
	Source           ExtractionSource
	Transactions     []MultiImageTransaction
	Confidence       float64
	ProcessingTimeMs int64
	UsedFallback     bool
}

// MeanConfidence returns the arithmetic mean of the member confidences,
// or 0 for an empty list.
func MeanConfidence(txns []MultiImageTransaction) float64 {
	if len(txns) == 0 {
		return 0
	}
	var sum float64
	for _, t := range txns {
		sum += t.Confidence
	}
	return sum / float64(len(txns))
}

// WarningType classifies an import warning.
type WarningType string

// Warning type constants.
const (
	WarningDuplicate     WarningType = "duplicate"
	WarningLowConfidence WarningType = "low_confidence"
	WarningUnsupported   WarningType = "unsupported"
)

// Warning is a non-fatal condition detected while assembling an import.
type Warning struct {
	Type    WarningType
	Message string
}

// MultiImageMetadata summarizes a multi-photo capture after merging.
type MultiImageMetadata struct {
	ImageIDs    []string
	TotalImages int
	ItemsMerged int
}

// ImportResult is everything the caller needs to present an import for
// confirmation.
type ImportResult struct {
	Source       ExtractionSource
	FileType     string
	FileName     string
	Transactions []ImportTransaction
	Warnings     []Warning
	Duplicates   []DuplicateCheck
	MultiImage   *MultiImageMetadata
	FileSize     int64
	Confidence   float64
}
