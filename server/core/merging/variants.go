package merging

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/encoding"
	"github.com/legendsaurav/scramer/server/core/segments"
	"golang.org/x/sync/errgroup"
)

// DefaultTempoLimit is the largest factor a single atempo filter is trusted with
const DefaultTempoLimit = 2.0

// VariantPlan is the encoder recipe for one speed multiplier
type VariantPlan struct {
	Multiplier  int
	Label       string
	OutputName  string
	VideoFilter string
	AudioFilter string
	DropAudio   bool
}

// PlanVariant derives the recipe for multiplier. Video timestamps are scaled
// by 1/multiplier. Audio is tempo-adjusted while the multiplier stays within
// tempoLimit and dropped above it, rather than chaining tempo filters.
func PlanVariant(multiplier int, tempoLimit float64) VariantPlan {
	plan := VariantPlan{
		Multiplier:  multiplier,
		Label:       segments.VariantLabel(multiplier),
		OutputName:  segments.VariantOutputName(multiplier),
		VideoFilter: "setpts=PTS/" + strconv.Itoa(multiplier),
	}

	if float64(multiplier) <= tempoLimit {
		plan.AudioFilter = "atempo=" + strconv.Itoa(multiplier)
	} else {
		plan.DropAudio = true
	}
	return plan
}

// VariantOutcome is the result of generating one variant. Path is set on
// success, Err on failure.
type VariantOutcome struct {
	Multiplier int
	Label      string
	Path       string
	Err        error
}

// VariantGenerator derives speed renditions from a base output
type VariantGenerator struct {
	logger     logging.Logger
	encoder    encoding.Encoder
	prober     encoding.Prober
	profile    encoding.Profile
	tempoLimit float64
	workers    int
}

// NewVariantGenerator creates a generator running at most workers encoder
// invocations at once. prober is optional; when set, a base output without
// audio produces silent variants without attempting tempo filters.
func NewVariantGenerator(logger logging.Logger, encoder encoding.Encoder, prober encoding.Prober, profile encoding.Profile, tempoLimit float64, workers int) *VariantGenerator {
	if logger == nil {
		logger = logging.NopLogger
	}
	if tempoLimit <= 0 {
		tempoLimit = DefaultTempoLimit
	}
	if workers <= 0 {
		workers = 1
	}

	return &VariantGenerator{
		logger:     logger,
		encoder:    encoder,
		prober:     prober,
		profile:    profile,
		tempoLimit: tempoLimit,
		workers:    workers,
	}
}

// Generate writes one variant per multiplier next to base. Each variant is
// independent: a failure only affects its own outcome and its own temp file.
// Outcomes are returned in the order of multipliers.
func (g *VariantGenerator) Generate(ctx context.Context, base string, multipliers []int) []VariantOutcome {
	outcomes := make([]VariantOutcome, len(multipliers))
	if len(multipliers) == 0 {
		return outcomes
	}

	baseHasAudio := g.baseHasAudio(base)

	var group errgroup.Group
	group.SetLimit(g.workers)

	for i, multiplier := range multipliers {
		plan := PlanVariant(multiplier, g.tempoLimit)
		if !baseHasAudio {
			plan.DropAudio = true
		}

		group.Go(func() error {
			outcomes[i] = g.generate(ctx, base, plan)
			return nil
		})
	}

	_ = group.Wait()
	return outcomes
}

func (g *VariantGenerator) generate(ctx context.Context, base string, plan VariantPlan) VariantOutcome {
	outcome := VariantOutcome{Multiplier: plan.Multiplier, Label: plan.Label}
	if err := ctx.Err(); err != nil {
		outcome.Err = err
		return outcome
	}

	dir := filepath.Dir(base)
	final := filepath.Join(dir, plan.OutputName)
	tmp := tempOutputPath(dir, plan.OutputName)

	err := g.encoder.Reencode(ctx, encoding.ReencodeJob{
		Input:       base,
		Output:      tmp,
		Profile:     g.profile,
		VideoFilter: plan.VideoFilter,
		AudioFilter: plan.AudioFilter,
		DropAudio:   plan.DropAudio,
	})
	if err != nil {
		os.Remove(tmp)
		g.logger.Warn("Variant generation failed", "variant", plan.Label, "base", base, "error", err)
		outcome.Err = err
		return outcome
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		outcome.Err = segments.NewStorageFailure("publish variant", final, err)
		return outcome
	}

	g.logger.Info("Generated variant", "variant", plan.Label, "output", final, "silent", plan.DropAudio)
	outcome.Path = final
	return outcome
}

func (g *VariantGenerator) baseHasAudio(base string) bool {
	if g.prober == nil {
		return true
	}

	info, err := g.prober.Probe(base)
	if err != nil {
		// let the encoder decide; a tempo filter on a missing stream fails loudly
		g.logger.Warn("Failed to probe base output, assuming audio", "base", base, "error", err)
		return true
	}
	return info.HasAudio
}
