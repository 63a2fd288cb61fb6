package merging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/encoding"
	"github.com/legendsaurav/scramer/server/core/segments"
)

// Strategy names the way a base output was produced
type Strategy string

const (
	StrategyStreamCopy Strategy = "stream_copy"
	StrategyReencode   Strategy = "reencode"
)

// Attempt is the outcome of one concatenation strategy: on success Path is
// set and Err is nil, on failure Err carries the cause.
type Attempt struct {
	Strategy Strategy
	Path     string
	Err      error
}

// Succeeded reports whether the attempt produced an output
func (a Attempt) Succeeded() bool {
	return a.Err == nil && a.Path != ""
}

// ConcatResult records the fast path and, if it was needed, the fallback
type ConcatResult struct {
	Output   string
	FastPath Attempt
	Fallback *Attempt
}

// Strategy returns the strategy that produced Output
func (r *ConcatResult) Strategy() Strategy {
	if r.Fallback != nil {
		return r.Fallback.Strategy
	}
	return r.FastPath.Strategy
}

// Concatenator joins the ordered segments of a bucket into final.mp4
type Concatenator struct {
	logger   logging.Logger
	encoder  encoding.Encoder
	prober   encoding.Prober
	profile  encoding.Profile
	validate bool
}

// NewConcatenator creates a concatenator. When prober is non-nil the
// stream-copy output is probed and rejected if it has no video stream.
func NewConcatenator(logger logging.Logger, encoder encoding.Encoder, prober encoding.Prober, profile encoding.Profile) *Concatenator {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &Concatenator{
		logger:   logger,
		encoder:  encoder,
		prober:   prober,
		profile:  profile,
		validate: prober != nil,
	}
}

// Concatenate merges paths, in the given order, into dir/final.mp4. It tries
// a stream copy first and re-encodes when that fails. A previous final.mp4 is
// only replaced once one of the attempts succeeded.
func (c *Concatenator) Concatenate(ctx context.Context, dir string, paths []string) (*ConcatResult, error) {
	if len(paths) == 0 {
		return nil, errors.New("concatenate requires at least one segment")
	}

	manifest, err := writeManifest(dir, paths)
	if err != nil {
		return nil, err
	}

	final := filepath.Join(dir, segments.BaseOutputName)
	result := &ConcatResult{}

	result.FastPath = c.attempt(ctx, dir, StrategyStreamCopy, func(tmp string) error {
		if err := c.encoder.StreamCopyConcat(ctx, manifest, tmp); err != nil {
			return err
		}
		return c.checkOutput(tmp)
	})

	winner := &result.FastPath
	if !result.FastPath.Succeeded() {
		c.logger.Warn("Stream copy concat failed, re-encoding", "dir", dir, "segments", len(paths), "error", result.FastPath.Err)

		fallback := c.attempt(ctx, dir, StrategyReencode, func(tmp string) error {
			return c.encoder.Reencode(ctx, encoding.ReencodeJob{
				Input:           manifest,
				InputIsManifest: true,
				Output:          tmp,
				Profile:         c.profile,
			})
		})
		result.Fallback = &fallback

		if !fallback.Succeeded() {
			return result, encoding.NewEncodingFailureError("concat",
				fmt.Errorf("stream copy: %v; re-encode: %w", result.FastPath.Err, fallback.Err))
		}
		winner = result.Fallback
	}

	if err := os.Rename(winner.Path, final); err != nil {
		os.Remove(winner.Path)
		return result, segments.NewStorageFailure("publish output", final, err)
	}
	winner.Path = final
	result.Output = final

	c.logger.Info("Concatenated segments", "output", final, "segments", len(paths), "strategy", string(winner.Strategy))
	return result, nil
}

// attempt runs one strategy into a hidden temp file. A failed attempt leaves
// nothing behind.
func (c *Concatenator) attempt(ctx context.Context, dir string, strategy Strategy, run func(tmp string) error) Attempt {
	tmp := tempOutputPath(dir, segments.BaseOutputName)

	if err := ctx.Err(); err != nil {
		return Attempt{Strategy: strategy, Err: err}
	}

	if err := run(tmp); err != nil {
		os.Remove(tmp)
		return Attempt{Strategy: strategy, Err: err}
	}

	if _, err := os.Stat(tmp); err != nil {
		return Attempt{Strategy: strategy, Err: fmt.Errorf("encoder produced no output: %w", err)}
	}

	return Attempt{Strategy: strategy, Path: tmp}
}

// checkOutput rejects a stream-copy result that ffmpeg accepted but that
// carries no decodable video stream.
func (c *Concatenator) checkOutput(path string) error {
	if !c.validate {
		return nil
	}

	info, err := c.prober.Probe(path)
	if err != nil {
		return fmt.Errorf("stream copy output unreadable: %w", err)
	}
	if !info.HasVideo {
		return errors.New("stream copy output has no video stream")
	}
	return nil
}
