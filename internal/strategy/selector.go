// Package strategy decides, per extraction request, whether the local
// adapter, a cloud provider, or the hybrid local-then-cloud protocol
// handles the work.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/extract"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
	"github.com/pmarsh-dev/ledgerflow/internal/service"
)

// Route is the strategy selector's verdict.
type Route string

// Route constants.
const (
	RouteLocal  Route = "local"
	RouteCloud  Route = "cloud"
	RouteHybrid Route = "hybrid"
)

// Conditions captures the runtime facts the decision table consumes.
type Conditions struct {
	Online         bool
	LocalReady     bool
	CloudAvailable bool
}

// Selector routes extraction work between the local and cloud adapters.
type Selector struct {
	local    extract.LocalAdapter
	cloud    extract.CloudClient
	notifier service.Notifier
	prefs    model.AIPreferences
}

// NewSelector creates a strategy selector. The notifier may be nil.
func NewSelector(local extract.LocalAdapter, cloud extract.CloudClient, prefs model.AIPreferences, notifier service.Notifier) *Selector {
	return &Selector{
		local:    local,
		cloud:    cloud,
		prefs:    prefs,
		notifier: notifier,
	}
}

// Decide evaluates the decision table in order and returns the chosen
// route. A forced cloud-only mode with no cloud available is an
// UnavailableError rather than a silent downgrade.
func Decide(prefs model.AIPreferences, cond Conditions) (Route, error) {
	switch {
	case prefs.Mode == model.ModeLocalOnly || prefs.PrivacyMode:
		return RouteLocal, nil
	case prefs.Mode == model.ModeCloudOnly:
		if !cond.CloudAvailable {
			return "", &common.UnavailableError{
				Reason: "cloud extraction was requested but no cloud provider is configured or reachable",
			}
		}
		return RouteCloud, nil
	case !cond.Online:
		return RouteLocal, nil
	case prefs.Strategy == model.StrategyPrivacy:
		return RouteLocal, nil
	case prefs.Strategy == model.StrategyAccuracy && cond.CloudAvailable:
		return RouteCloud, nil
	default:
		return RouteHybrid, nil
	}
}

// ProcessReceipt runs one receipt image through the chosen route.
func (s *Selector) ProcessReceipt(ctx context.Context, image []byte, mimeType string, cond Conditions) (model.ProcessingResult, error) {
	route, err := Decide(s.prefs, cond)
	if err != nil {
		return model.ProcessingResult{}, err
	}
	s.notifier.Notify(service.CheckpointStrategyChosen, string(route))
	slog.Debug("Extraction route chosen", "route", route, "online", cond.Online, "cloud_available", cond.CloudAvailable)

	s.notifier.Notify(service.CheckpointExtractionStarted, string(route))
	start := time.Now()

	var result model.ProcessingResult
	switch route {
	case RouteLocal:
		result, err = s.runLocal(ctx, image)
	case RouteCloud:
		result, err = s.runCloud(ctx, image, mimeType)
	default:
		result, err = s.runHybrid(ctx, image, mimeType, cond)
	}
	if err != nil {
		return model.ProcessingResult{}, err
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	s.notifier.Notify(service.CheckpointExtractionFinished, string(result.Source))
	return result, nil
}

// runHybrid implements the fallback protocol: local first; if the local
// result's aggregate confidence clears the threshold it wins as-is.
// Otherwise the cloud result, when cloud is reachable, replaces it
// outright; confidences are never blended. With no cloud to fall back
// to, the low-confidence local result is returned unmodified.
func (s *Selector) runHybrid(ctx context.Context, image []byte, mimeType string, cond Conditions) (model.ProcessingResult, error) {
	localResult, localErr := s.runLocal(ctx, image)
	if localErr == nil && localResult.Confidence >= s.prefs.ConfidenceThreshold {
		return localResult, nil
	}

	if !cond.CloudAvailable {
		if localErr != nil {
			return model.ProcessingResult{}, localErr
		}
		return localResult, nil
	}

	if localErr != nil {
		slog.Warn("Local extraction failed, falling back to cloud", "error", localErr)
	} else {
		slog.Debug("Local confidence below threshold, falling back to cloud",
			"confidence", localResult.Confidence,
			"threshold", s.prefs.ConfidenceThreshold)
	}

	cloudResult, cloudErr := s.runCloud(ctx, image, mimeType)
	if cloudErr != nil {
		if localErr != nil {
			return model.ProcessingResult{}, localErr
		}
		return localResult, nil
	}

	cloudResult.Source = model.SourceHybrid
	cloudResult.UsedFallback = true
	return cloudResult, nil
}

func (s *Selector) runLocal(ctx context.Context, image []byte) (model.ProcessingResult, error) {
	if s.local == nil || !s.local.IsReady() {
		return model.ProcessingResult{}, &common.UnavailableError{Reason: "on-device extraction is not ready"}
	}

	ctx, cancel := context.WithTimeout(ctx, extract.SingleCallTimeout)
	defer cancel()

	local, err := s.local.ProcessReceipt(ctx, image)
	if err != nil {
		return model.ProcessingResult{}, wrapTimeout(err, "local extraction")
	}

	return model.ProcessingResult{
		Transactions: local.Transactions,
		Source:       model.SourceLocal,
		Confidence:   local.Confidence,
	}, nil
}

func (s *Selector) runCloud(ctx context.Context, image []byte, mimeType string) (model.ProcessingResult, error) {
	if s.cloud == nil || !s.cloud.IsAvailable() {
		return model.ProcessingResult{}, &common.UnavailableError{Reason: "no cloud provider is configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, extract.SingleCallTimeout)
	defer cancel()

	raw, err := s.cloud.ExtractFromImage(ctx, image, mimeType)
	if err != nil {
		return model.ProcessingResult{}, wrapTimeout(err, "cloud extraction")
	}

	txns := make([]model.MultiImageTransaction, len(raw))
	for i, r := range raw {
		txns[i] = model.MultiImageTransaction{RawTransaction: r, Position: model.PositionMiddle}
	}

	return model.ProcessingResult{
		Transactions: txns,
		Source:       model.SourceCloud,
		Confidence:   model.MeanConfidence(txns),
	}, nil
}

// wrapTimeout converts a deadline expiry into the TimeoutError callers
// branch on. The context deadline has already cancelled the underlying
// request at this point.
func wrapTimeout(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &common.TimeoutError{Operation: operation, Err: err}
	}
	return fmt.Errorf("%s: %w", operation, err)
}
