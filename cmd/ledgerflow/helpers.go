package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/spf13/viper"

	"github.com/pmarsh-dev/ledgerflow/internal/categorize"
	"github.com/pmarsh-dev/ledgerflow/internal/config"
	"github.com/pmarsh-dev/ledgerflow/internal/engine"
	"github.com/pmarsh-dev/ledgerflow/internal/extract"
	"github.com/pmarsh-dev/ledgerflow/internal/ingest"
	"github.com/pmarsh-dev/ledgerflow/internal/merge"
	"github.com/pmarsh-dev/ledgerflow/internal/queue"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
	"github.com/pmarsh-dev/ledgerflow/internal/storage"
	"github.com/pmarsh-dev/ledgerflow/internal/strategy"
)

func openLedger() (*storage.LedgerStore, error) {
	return storage.Open(config.LedgerDBPath())
}

func openQueue(ledger service.Ledger, online func() bool, processor service.ImageProcessor) (*queue.Queue, *queue.Store, error) {
	store, err := queue.OpenStore(config.QueueDBPath())
	if err != nil {
		return nil, nil, err
	}
	return queue.New(store, queue.Config{Ledger: ledger, Online: online, Processor: processor}), store, nil
}

// buildCloud constructs the configured cloud provider client, or nil
// when no provider is configured. A nil client simply makes the cloud
// path unavailable.
func buildCloud() extract.CloudClient {
	cfg := extract.Config{
		Provider:    viper.GetString("provider.name"),
		APIKey:      viper.GetString("provider.api_key"),
		Model:       viper.GetString("provider.model"),
		BaseURL:     viper.GetString("provider.base_url"),
		MaxTokens:   viper.GetInt("provider.max_tokens"),
		Temperature: viper.GetFloat64("provider.temperature"),
		RateLimit:   viper.GetInt("provider.rate_limit"),
	}
	if cfg.Provider == "" {
		return nil
	}
	client, err := extract.New(cfg)
	if err != nil {
		slog.Warn("Cloud provider not usable", "provider", cfg.Provider, "error", err)
		return nil
	}
	return client
}

// buildCategorizer assembles the degradation chain: cloud first, then
// the bayesian classifier trained from ledger history, then the fixed
// default inside the chain itself.
func buildCategorizer(ctx context.Context, ledger *storage.LedgerStore, cloud extract.CloudClient) service.Categorizer {
	var members []service.Categorizer

	if cloud != nil {
		ids, err := ledger.CategoryIDs(ctx)
		if err != nil {
			slog.Warn("Could not load categories for cloud categorizer", "error", err)
		} else {
			members = append(members, categorize.NewCloudCategorizer(cloud, ids))
		}
	}

	history, err := ledger.CategorizedHistory(ctx)
	if err == nil {
		if bayes, trainErr := categorize.TrainBayesian(history); trainErr == nil {
			members = append(members, bayes)
		} else {
			slog.Debug("Bayesian categorizer not trained", "reason", trainErr)
		}
	}

	return categorize.NewChain(members...)
}

// buildLocal wires the on-device extraction path. OCR itself is an
// external command (configured as ocr.command, e.g. tesseract); without
// one the local adapter reports not ready and routing skips it.
func buildLocal() extract.LocalAdapter {
	command := viper.GetString("ocr.command")
	if command == "" {
		return extract.NewRuleParser(nil)
	}

	return extract.NewRuleParser(func(ctx context.Context, image []byte) (string, error) {
		cmd := exec.CommandContext(ctx, command, "stdin", "stdout") // #nosec G204 -- command comes from the user's own config
		cmd.Stdin = bytes.NewReader(image)
		out, err := cmd.Output()
		if err != nil {
			return "", fmt.Errorf("ocr command failed: %w", err)
		}
		return string(out), nil
	})
}

func buildOrchestrator(ctx context.Context, ledger *storage.LedgerStore, q *queue.Queue, local extract.LocalAdapter, cloud extract.CloudClient) *engine.Orchestrator {
	prefs := config.LoadPreferences()

	notifier := service.Notifier(func(checkpoint service.Checkpoint, detail string) {
		slog.Debug("Pipeline checkpoint", "checkpoint", checkpoint, "detail", detail)
	})

	var imageQueue engine.ImageQueuer
	if q != nil {
		imageQueue = q
	}

	return engine.New(engine.Config{
		Selector:    strategy.NewSelector(local, cloud, prefs, notifier),
		Merger:      merge.NewMerger(cloud),
		PDF:         ingest.NewPDFIngester(cloud),
		Ledger:      ledger,
		Categorizer: buildCategorizer(ctx, ledger, cloud),
		ImageQueue:  imageQueue,
	})
}

func conditions(offline bool, local extract.LocalAdapter, cloud extract.CloudClient) strategy.Conditions {
	return strategy.Conditions{
		Online:         !offline,
		LocalReady:     local != nil && local.IsReady(),
		CloudAvailable: !offline && cloud != nil && cloud.IsAvailable(),
	}
}
