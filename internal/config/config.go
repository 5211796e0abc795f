package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// Viper keys for AI routing preferences.
const (
	keyAIMode      = "ai.mode"
	keyAIStrategy  = "ai.strategy"
	keyAIPrivacy   = "ai.privacy_mode"
	keyAIThreshold = "ai.confidence_threshold"
)

// LoadPreferences reads AI routing preferences from viper, falling back
// to defaults for anything unset or out of range.
func LoadPreferences() model.AIPreferences {
	prefs := model.DefaultPreferences()

	if viper.IsSet(keyAIMode) {
		switch mode := model.AIMode(viper.GetString(keyAIMode)); mode {
		case model.ModeAuto, model.ModeLocalOnly, model.ModeCloudOnly:
			prefs.Mode = mode
		}
	}
	if viper.IsSet(keyAIStrategy) {
		switch strategy := model.AIStrategy(viper.GetString(keyAIStrategy)); strategy {
		case model.StrategySpeed, model.StrategyAccuracy, model.StrategyPrivacy:
			prefs.Strategy = strategy
		}
	}
	if viper.IsSet(keyAIPrivacy) {
		prefs.PrivacyMode = viper.GetBool(keyAIPrivacy)
	}
	if viper.IsSet(keyAIThreshold) {
		if t := viper.GetFloat64(keyAIThreshold); t >= 0 && t <= 1 {
			prefs.ConfidenceThreshold = t
		}
	}
	return prefs
}

// LedgerDBPath returns the configured ledger database path, defaulting
// under the user data directory.
func LedgerDBPath() string {
	if p := viper.GetString("storage.ledger_db"); p != "" {
		return ExpandPath(p)
	}
	return filepath.Join(dataDir(), "ledger.db")
}

// QueueDBPath returns the configured queue database path.
func QueueDBPath() string {
	if p := viper.GetString("storage.queue_db"); p != "" {
		return ExpandPath(p)
	}
	return filepath.Join(dataDir(), "queue.db")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "ledgerflow")
}
