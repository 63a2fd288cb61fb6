package merging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/segments"
)

// DefaultMultipliers are the speed variants produced when none are configured
var DefaultMultipliers = []int{2, 5, 10}

// MergeResult describes the renditions produced by one merge. Outputs maps a
// variant label to its public path and only holds renditions that exist.
type MergeResult struct {
	RunID      string            `json:"runId"`
	Bucket     segments.Bucket   `json:"bucket"`
	Strategy   Strategy          `json:"strategy"`
	Outputs    map[string]string `json:"outputs"`
	Failed     map[string]string `json:"failed,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// ServiceOptions configures a merge Service
type ServiceOptions struct {
	Multipliers  []int
	PublicPrefix string
}

// Service runs the full merge of a bucket: concatenation, then speed variants
type Service struct {
	logger      logging.Logger
	store       segments.Store
	concat      *Concatenator
	variants    *VariantGenerator
	locker      *BucketLocker
	history     HistoryRepository
	multipliers []int
	prefix      string
	now         func() time.Time
}

// NewService creates a merge service. history may be nil, in which case runs
// are not recorded.
func NewService(logger logging.Logger, store segments.Store, concat *Concatenator, variants *VariantGenerator, locker *BucketLocker, history HistoryRepository, opts ServiceOptions) *Service {
	if logger == nil {
		logger = logging.NopLogger
	}
	if locker == nil {
		locker = NewBucketLocker()
	}

	multipliers := opts.Multipliers
	if multipliers == nil {
		multipliers = DefaultMultipliers
	}

	return &Service{
		logger:      logger,
		store:       store,
		concat:      concat,
		variants:    variants,
		locker:      locker,
		history:     history,
		multipliers: multipliers,
		prefix:      opts.PublicPrefix,
		now:         time.Now,
	}
}

// Merge concatenates the segments of b into the base rendition and derives
// the configured speed variants from it. Merges of the same bucket are
// serialized.
//
// When some variants fail the result is still returned, holding every
// rendition that was produced, together with a *VariantsFailedError.
func (s *Service) Merge(ctx context.Context, b segments.Bucket) (*MergeResult, error) {
	if !b.IsComplete() {
		return nil, NewNoSegmentsFoundError(b)
	}

	paths, err := s.store.ListSegments(b)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, NewNoSegmentsFoundError(b)
	}

	dir := s.store.BucketDir(b)
	unlock, err := s.locker.Lock(ctx, b, dir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// a concurrent merge or upload may have changed the bucket while we waited
	paths, err = s.store.ListSegments(b)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, NewNoSegmentsFoundError(b)
	}

	run := &MergeRun{
		ID:        uuid.New().String(),
		Bucket:    b,
		StartedAt: s.now(),
	}

	s.logger.Info("Merging bucket", "bucket", b.String(), "segments", len(paths), "run", run.ID)

	concatResult, err := s.concat.Concatenate(ctx, dir, paths)
	if err != nil {
		if concatResult != nil {
			run.Strategy = concatResult.Strategy()
		}
		run.Status = RunFailed
		run.Error = err.Error()
		s.record(ctx, run)

		s.logger.Error("Merge failed", "bucket", b.String(), "run", run.ID, "error", err)
		return nil, err
	}

	result := &MergeResult{
		RunID:     run.ID,
		Bucket:    b,
		Strategy:  concatResult.Strategy(),
		Outputs:   map[string]string{segments.BaseLabel: segments.PublicPath(s.prefix, b, segments.BaseOutputName)},
		StartedAt: run.StartedAt,
	}

	var failed map[string]error
	for _, outcome := range s.variants.Generate(ctx, concatResult.Output, s.multipliers) {
		if outcome.Err != nil {
			if failed == nil {
				failed = make(map[string]error)
				result.Failed = make(map[string]string)
			}
			failed[outcome.Label] = outcome.Err
			result.Failed[outcome.Label] = outcome.Err.Error()
			continue
		}
		result.Outputs[outcome.Label] = segments.PublicPath(s.prefix, b, segments.VariantOutputName(outcome.Multiplier))
	}

	result.FinishedAt = s.now()

	run.Strategy = result.Strategy
	run.Outputs = result.Outputs
	run.FinishedAt = result.FinishedAt
	run.Status = RunSucceeded

	if failed != nil {
		err = NewVariantsFailedError(failed)
		run.Status = RunPartial
		run.Error = err.Error()
	}
	s.record(ctx, run)

	s.logger.Info("Merged bucket", "bucket", b.String(), "run", run.ID, "strategy", string(result.Strategy),
		"outputs", len(result.Outputs), "failed", len(failed), "elapsed", result.FinishedAt.Sub(result.StartedAt).String())

	return result, err
}

// History returns recorded merge runs of project, newest first
func (s *Service) History(ctx context.Context, project string, limit int) ([]*MergeRun, error) {
	if s.history == nil {
		return []*MergeRun{}, nil
	}
	return s.history.ListByProject(ctx, segments.SanitizeComponent(project), limit)
}

func (s *Service) record(ctx context.Context, run *MergeRun) {
	if s.history == nil {
		return
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now()
	}

	if err := s.history.Add(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("Failed to record merge run", "run", run.ID, "error", err)
	}
}
