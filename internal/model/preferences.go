package model

// AIMode selects which extraction adapters the user allows.
type AIMode string

// AI mode constants.
const (
	ModeAuto      AIMode = "auto"
	ModeLocalOnly AIMode = "local_only"
	ModeCloudOnly AIMode = "cloud_only"
)

// AIStrategy expresses the user's optimization preference when more than
// one adapter could serve a request.
type AIStrategy string

// AI strategy constants.
const (
	StrategySpeed    AIStrategy = "speed"
	StrategyAccuracy AIStrategy = "accuracy"
	StrategyPrivacy  AIStrategy = "privacy"
)

// AIPreferences is the user-facing knob set consumed by the strategy
// selector.
type AIPreferences struct {
	Mode                AIMode
	Strategy            AIStrategy
	PrivacyMode         bool
	ConfidenceThreshold float64
}

// DefaultPreferences returns the out-of-the-box preference set.
func DefaultPreferences() AIPreferences {
	return AIPreferences{
		Mode:                ModeAuto,
		Strategy:            StrategySpeed,
		ConfidenceThreshold: 0.7,
	}
}
