// Package merge turns overlapping top-to-bottom photos of one receipt
// into a single deduplicated item list.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pmarsh-dev/ledgerflow/internal/common"
	"github.com/pmarsh-dev/ledgerflow/internal/dedup"
	"github.com/pmarsh-dev/ledgerflow/internal/extract"
	"github.com/pmarsh-dev/ledgerflow/internal/model"
)

// amountRelTolerance is the relative tolerance for two overlap-zone items
// to count as the same amount.
var amountRelTolerance = decimal.NewFromFloat(0.01)

// Merger runs the position-aware cloud extraction and the overlap-zone
// safety net.
type Merger struct {
	cloud extract.CloudClient
}

// NewMerger creates a multi-image merger on top of a cloud client.
func NewMerger(cloud extract.CloudClient) *Merger {
	return &Merger{cloud: cloud}
}

// Result is the merged item list plus merge statistics.
type Result struct {
	Transactions []model.MultiImageTransaction
	ItemsMerged  int
}

// Extract runs the primary position-aware extraction, then the mandatory
// overlap-zone dedup pass. The provider may already have merged
// cross-image duplicates itself; the secondary pass is a safety net, not
// an optimization.
func (m *Merger) Extract(ctx context.Context, images [][]byte, mimeType string) (Result, error) {
	if m.cloud == nil || !m.cloud.IsAvailable() {
		return Result{}, &common.UnavailableError{Reason: "multi-image extraction requires a cloud provider"}
	}

	var txns []model.MultiImageTransaction
	var err error

	if len(images) == 1 {
		// Single photo degenerates to the plain extraction call with
		// default annotations.
		ctx, cancel := context.WithTimeout(ctx, extract.SingleCallTimeout)
		defer cancel()

		var raw []model.RawTransaction
		raw, err = m.cloud.ExtractFromImage(ctx, images[0], mimeType)
		if err == nil {
			txns = make([]model.MultiImageTransaction, len(raw))
			for i, r := range raw {
				txns[i] = model.MultiImageTransaction{RawTransaction: r, Position: model.PositionMiddle}
			}
		}
	} else {
		ctx, cancel := context.WithTimeout(ctx, extract.MultiImageTimeout)
		defer cancel()
		txns, err = m.cloud.ExtractFromImages(ctx, images, mimeType)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, &common.TimeoutError{Operation: "multi-image extraction", Err: err}
		}
		return Result{}, fmt.Errorf("multi-image extraction: %w", err)
	}

	merged, count := DedupOverlap(txns)
	if count > 0 {
		slog.Debug("Overlap-zone dedup removed items", "items_merged", count)
	}
	return Result{Transactions: merged, ItemsMerged: count}, nil
}

// DedupOverlap removes items that appear twice because they sit in the
// overlap zone of two sequential photos. Only adjacent-image pairs are
// considered, and only when the lower-indexed item sits at the bottom of
// its photo and the higher-indexed item at the top of its photo. Merges
// chain transitively: an item surviving one merge keeps competing with
// later images, and the kept item accumulates the union of source image
// indices.
func DedupOverlap(txns []model.MultiImageTransaction) ([]model.MultiImageTransaction, int) {
	if len(txns) < 2 {
		return txns, 0
	}

	kept := make([]model.MultiImageTransaction, len(txns))
	copy(kept, txns)
	dropped := make([]bool, len(kept))
	merges := 0

	for i := 0; i < len(kept); i++ {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(kept); j++ {
			if dropped[j] {
				continue
			}
			if !overlapEligible(kept[i], kept[j]) {
				continue
			}
			if !dedup.Similar(kept[i].Description, kept[j].Description) {
				continue
			}
			if !amountsClose(kept[i].Amount, kept[j].Amount) {
				continue
			}

			// Duplicate pair: keep the higher per-item confidence,
			// ties keep the first.
			keep, drop := i, j
			if kept[j].Confidence > kept[i].Confidence {
				keep, drop = j, i
			}

			kept[keep].WasMerged = true
			kept[keep].MergedFromImages = unionIndices(kept[keep], kept[drop])
			dropped[drop] = true
			merges++

			if keep == j {
				// The survivor is the later item; stop scanning
				// against the dropped one.
				break
			}
		}
	}

	out := make([]model.MultiImageTransaction, 0, len(kept))
	for idx, txn := range kept {
		if !dropped[idx] {
			out = append(out, txn)
		}
	}
	return out, merges
}

// overlapEligible: only items from adjacent images can overlap, and only
// in the bottom-of-earlier / top-of-later configuration.
func overlapEligible(a, b model.MultiImageTransaction) bool {
	lower, higher := a, b
	if b.ImageIndex < a.ImageIndex {
		lower, higher = b, a
	}
	if higher.ImageIndex-lower.ImageIndex != 1 {
		return false
	}
	return lower.Position == model.PositionBottom && higher.Position == model.PositionTop
}

// amountsClose applies a 1% relative tolerance. Two zero amounts are
// equal; a zero and a non-zero amount are not.
func amountsClose(a, b decimal.Decimal) bool {
	if a.IsZero() && b.IsZero() {
		return true
	}
	if a.IsZero() || b.IsZero() {
		return false
	}

	larger := a.Abs()
	if b.Abs().GreaterThan(larger) {
		larger = b.Abs()
	}
	return a.Sub(b).Abs().LessThanOrEqual(larger.Mul(amountRelTolerance))
}

func unionIndices(keep, drop model.MultiImageTransaction) []int {
	seen := make(map[int]bool)
	var union []int
	add := func(idx int) {
		if !seen[idx] {
			seen[idx] = true
			union = append(union, idx)
		}
	}

	for _, idx := range keep.MergedFromImages {
		add(idx)
	}
	add(keep.ImageIndex)
	for _, idx := range drop.MergedFromImages {
		add(idx)
	}
	add(drop.ImageIndex)
	return union
}
