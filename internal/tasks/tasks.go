package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/segments"
	"github.com/desertthunder/ytclip/internal/services"
	"github.com/desertthunder/ytclip/internal/shared"
)

// Store is the subset of the completion store the pipeline drives.
type Store interface {
	Has(ctx context.Context, id string) (bool, error)
	MarkFetched(ctx context.Context, id, title string) error
	Plan(ctx context.Context, id string) ([]models.Segment, bool, error)
	PlanSegments(ctx context.Context, id string, segs []models.Segment) ([]models.Segment, error)
	MarkSegmentDone(ctx context.Context, id string, ordinal int) error
	IsSegmentDone(ctx context.Context, id string, ordinal int) (bool, error)
	MarkPermanentlyFailed(ctx context.Context, id, reason string) error
	RecordAttempt(ctx context.Context, id, reason string) error
	OutputPathTaken(ctx context.Context, path string) (bool, error)
}

// EngineOpts contains the collaborators and run settings of an [Engine].
type EngineOpts struct {
	Store      Store
	Fetcher    services.Fetcher
	Transcoder services.Transcoder
	Parser     *segments.Parser // nil uses the default rules
	Logger     *log.Logger      // nil writes to stderr
	Progress   chan<- ProgressUpdate

	OutputDir string
	TempDir   string // raw downloads; must not be OutputDir
	Ext       string // output extension with leading dot

	Split         bool // split items on description timestamps
	Shuffle       bool
	FallbackWhole bool // render the whole item when splitting finds nothing

	Workers       int // render pool size, default 1
	Bitrate       int // kbit/s, default 96
	FetchRetries  int
	FetchBackoff  time.Duration // doubled per attempt, capped at MaxBackoff
	FetchRate     float64       // fetch starts per second, 0 for unlimited
	RenderRetries int
	RenderBackoff time.Duration
}

// MaxBackoff caps the delay between retries.
const MaxBackoff = 30 * time.Second

// RunResult summarizes one pipeline run.
type RunResult struct {
	Listed             int // items resolved from the inputs
	Skipped            int // items already done or permanently failed
	Fetched            int
	Unavailable        int // items marked permanently failed this run
	TransientExhausted int // items left pending after exhausting retries
	ZeroSegmentItems   int // split items where no segment was detected
	SegmentsRendered   int
	SegmentsSkipped    int // already rendered in an earlier run
	SegmentsFailed     int // placeholder written
	PeakArtifacts      int // most raw downloads alive at once
	Duration           time.Duration
}

type counters struct {
	listed, skipped, fetched, unavailable, exhausted, zeroSegments atomic.Int64
	rendered, segSkipped, segFailed                                atomic.Int64
}

// Engine runs the pipeline. An Engine may be reused for several runs, but not concurrently.
type Engine struct {
	opts      EngineOpts
	logger    *log.Logger
	parser    *segments.Parser
	limiter   *rate.Limiter
	artifacts *artifactRegistry
	stats     *counters
}

// NewEngine validates opts and fills in defaults.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: completion store is required", shared.ErrInvalidArgument)
	}
	if opts.Fetcher == nil || opts.Transcoder == nil {
		return nil, fmt.Errorf("%w: fetcher and transcoder are required", shared.ErrInvalidArgument)
	}
	if opts.OutputDir == "" || opts.TempDir == "" {
		return nil, fmt.Errorf("%w: output and temp directories are required", shared.ErrInvalidArgument)
	}
	if filepath.Clean(opts.OutputDir) == filepath.Clean(opts.TempDir) {
		return nil, fmt.Errorf("%w: temp directory must differ from the output directory", shared.ErrInvalidArgument)
	}
	if opts.Ext == "" || !strings.HasPrefix(opts.Ext, ".") || opts.Ext == shared.PlaceholderExt {
		return nil, fmt.Errorf("%w: output extension %q", shared.ErrInvalidArgument, opts.Ext)
	}

	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Parser == nil {
		opts.Parser = segments.NewParser(segments.ParserOpts{})
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Bitrate <= 0 {
		opts.Bitrate = 96
	}
	opts.FetchRetries = max(opts.FetchRetries, 0)
	opts.RenderRetries = max(opts.RenderRetries, 0)

	limit := rate.Inf
	if opts.FetchRate > 0 {
		limit = rate.Limit(opts.FetchRate)
	}

	return &Engine{
		opts:    opts,
		logger:  opts.Logger,
		parser:  opts.Parser,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(update ProgressUpdate) {
	if e.opts.Progress == nil {
		return
	}
	select {
	case e.opts.Progress <- update:
	default:
	}
}

// Run processes ids (playlists or single items) until every resolved item has been handled.
//
// It returns an error only for fatal conditions: cancellation, a missing executable or an
// unusable store or output directory. Item and segment failures are recorded in the store,
// logged and counted in the result.
func (e *Engine) Run(ctx context.Context, ids []string) (*RunResult, error) {
	started := time.Now()
	e.artifacts = newArtifactRegistry()
	e.stats = &counters{}

	for _, dir := range []string{e.opts.OutputDir, e.opts.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	e.sweepLeftovers()
	defer func() {
		if n := e.artifacts.Live(); n > 0 {
			e.logger.Debug("removing raw downloads of unfinished items", "count", n)
		}
		e.artifacts.cleanup()
	}()

	runID := shared.ShortID()
	e.logger.Info("starting run", "run", runID, "inputs", len(ids), "workers", e.opts.Workers, "split", e.opts.Split)

	items := make(chan string)
	raws := make(chan *RawArtifact)
	jobs := make(chan RenderJob)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(items)
		return e.list(gctx, ids, items)
	})
	g.Go(func() error {
		defer close(raws)
		return e.fetchStage(gctx, items, raws)
	})
	g.Go(func() error {
		defer close(jobs)
		return e.segmentStage(gctx, raws, jobs)
	})
	for i := range e.opts.Workers {
		g.Go(func() error {
			return e.renderWorker(gctx, i, jobs)
		})
	}

	err := g.Wait()
	result := e.result(time.Since(started))
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			e.logger.Warn("run interrupted", "run", runID)
		}
		return result, err
	}

	e.logger.Info("run finished", "run", runID,
		"fetched", result.Fetched, "rendered", result.SegmentsRendered,
		"failed", result.SegmentsFailed, "unavailable", result.Unavailable,
		"pending", result.TransientExhausted, "elapsed", result.Duration.Round(time.Millisecond))
	e.sendProgress(finishedUpdate(result))
	return result, nil
}

func (e *Engine) result(elapsed time.Duration) *RunResult {
	s := e.stats
	return &RunResult{
		Listed:             int(s.listed.Load()),
		Skipped:            int(s.skipped.Load()),
		Fetched:            int(s.fetched.Load()),
		Unavailable:        int(s.unavailable.Load()),
		TransientExhausted: int(s.exhausted.Load()),
		ZeroSegmentItems:   int(s.zeroSegments.Load()),
		SegmentsRendered:   int(s.rendered.Load()),
		SegmentsSkipped:    int(s.segSkipped.Load()),
		SegmentsFailed:     int(s.segFailed.Load()),
		PeakArtifacts:      e.artifacts.Peak(),
		Duration:           elapsed,
	}
}

// sweepLeftovers removes raw downloads, intermediate clips and partial outputs left behind by an
// interrupted run.
// The caller holds the cache lock, so nothing else owns these files.
func (e *Engine) sweepLeftovers() {
	patterns := []string{
		filepath.Join(e.opts.TempDir, rawPrefix+"*"),
		filepath.Join(e.opts.TempDir, services.ClipPattern),
		filepath.Join(e.opts.OutputDir, partialPrefix+"*"),
	}
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, path := range matches {
			if err := os.Remove(path); err == nil {
				e.logger.Debug("removed leftover temp file", "path", path)
			}
		}
	}
}

// storeErr marks a completion store failure as fatal for the run.
func storeErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
}

// outputErr marks a failure to write into the output directory as fatal for the run.
func outputErr(err error) error {
	return services.NewFailure(services.Fatal, "output directory", fmt.Errorf("%w: %w", shared.ErrOutputUnavailable, err))
}

// fatal reports whether err must stop the pipeline.
func fatal(err error) bool {
	return errors.Is(err, shared.ErrStoreUnavailable) || services.OutcomeOf(err) == services.Fatal
}
