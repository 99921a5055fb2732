package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/bcal/internal/config"
	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/lidar/l2tiles"
	"github.com/banshee-data/bcal/internal/lidar/l3bins"
	sqlite "github.com/banshee-data/bcal/internal/lidar/storage/sqlite"
	"github.com/banshee-data/bcal/internal/timeutil"
)

// SourceOpener returns a point source for the exclusive use of one tile.
// If the returned source implements io.Closer it is closed when the tile is
// done.
type SourceOpener func(ctx context.Context) (l1points.PointSource, error)

// Runner partitions a point source and processes the tiles in parallel.
type Runner struct {
	Config *config.FilterConfig // nil means defaults

	// Source is shared by every tile behind a mutex. It is also used for
	// the dataset extent when set.
	Source l1points.PointSource

	// Open, when set, gives each tile its own source and no lock is held.
	// Takes precedence over Source for extraction.
	Open SourceOpener

	Consumer Consumer     // nil means DiscardConsumer
	Recorder TileRecorder // optional run ledger

	// SourcePath is stored with the run for reference.
	SourcePath string

	// RunID names an existing run for RunTiles. Run ignores it.
	RunID string

	// Clock times each tile. nil means timeutil.RealClock.
	Clock timeutil.Clock
}

func (r *Runner) config() *config.FilterConfig {
	if r.Config == nil {
		return config.EmptyFilterConfig()
	}
	return r.Config
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}

func (r *Runner) consumer() Consumer {
	if r.Consumer == nil {
		return DiscardConsumer
	}
	return r.Consumer
}

// Run partitions the source extent into tiles and processes all of them.
//
// The returned error is non-nil only when nothing could be tiled: invalid
// configuration, an unreadable extent, a failed partition, or a recorder
// that cannot start the run. Per-tile failures are carried in the Report;
// see Report.Err.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	cfg := r.config()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter config: %w", err)
	}
	if r.Source == nil && r.Open == nil {
		return nil, fmt.Errorf("%w: runner has no source", l1points.ErrSourceOpen)
	}

	env, err := r.extent(ctx)
	if err != nil {
		return nil, err
	}
	d, err := l2tiles.Partition(env, cfg.GetJobs())
	if err != nil {
		return nil, fmt.Errorf("partition %v: %w", env, err)
	}
	diagf("source %v: %d tiles for %d jobs, spacing=%g merge_buffer=%g", env, d.Len(), cfg.GetJobs(), cfg.GetSpacing(), cfg.GetMergeBuffer())
	if mb := cfg.GetMemLimitMB(); mb > 0 {
		diagf("mem_limit_mb=%d is recorded but not enforced", mb)
	}

	runID := ""
	if r.Recorder != nil {
		run := &sqlite.FilterRun{
			SourcePath: r.SourcePath,
			ConfigJSON: cfg.JSON(),
			Envelope:   env,
			Jobs:       cfg.GetJobs(),
			Side:       d.Side,
		}
		if err := r.Recorder.StartRun(ctx, run); err != nil {
			return nil, fmt.Errorf("start run: %w", err)
		}
		runID = run.RunID
	}

	rep := r.runTiles(ctx, runID, d, d.Tiles)
	if err := r.finish(ctx, rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// RunTiles processes only the tiles of d with the given indices, recording
// them under r.RunID. It is used to retry failed tiles of an earlier run.
func (r *Runner) RunTiles(ctx context.Context, d *l2tiles.Decomposition, indices []int) (*Report, error) {
	if err := r.config().Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter config: %w", err)
	}
	if r.Source == nil && r.Open == nil {
		return nil, fmt.Errorf("%w: runner has no source", l1points.ErrSourceOpen)
	}
	tiles, err := d.Subset(indices)
	if err != nil {
		return nil, err
	}
	return r.runTiles(ctx, r.RunID, d, tiles), nil
}

// Retry re-runs the failed tiles of prev, folds the new results into prev
// and updates the run status. It returns the retry's own report.
func (r *Runner) Retry(ctx context.Context, prev *Report) (*Report, error) {
	failed := prev.Failed()
	if len(failed) == 0 {
		return &Report{RunID: prev.RunID, Decomposition: prev.Decomposition}, nil
	}
	tiles, err := prev.Decomposition.Subset(failed)
	if err != nil {
		return nil, err
	}
	diagf("retrying %d failed tiles of run %q: %v", len(tiles), prev.RunID, failed)
	rep := r.runTiles(ctx, prev.RunID, prev.Decomposition, tiles)
	prev.Merge(rep)
	return rep, r.finish(ctx, prev)
}

func (r *Runner) extent(ctx context.Context) (l1points.Envelope, error) {
	if r.Source != nil {
		return r.Source.Extent(ctx)
	}
	src, release, err := r.openSource(ctx)
	if err != nil {
		return l1points.Envelope{}, err
	}
	defer release()
	return src.Extent(ctx)
}

func (r *Runner) finish(ctx context.Context, rep *Report) error {
	if r.Recorder == nil || rep.RunID == "" {
		return nil
	}
	if err := r.Recorder.FinishRun(ctx, rep.RunID, rep.Status()); err != nil {
		return fmt.Errorf("finish run %s: %w", rep.RunID, err)
	}
	return nil
}

func (r *Runner) workers(tiles int) int {
	cfg := r.config()
	n := cfg.GetWorkers()
	if n == 0 {
		n = int(cfg.GetJobs())
	}
	n = min(n, tiles)
	return max(n, 1)
}

// runTiles fans tiles out over at most workers goroutines. Every goroutine
// returns nil; failures land in the tile's result slot.
func (r *Runner) runTiles(ctx context.Context, runID string, d *l2tiles.Decomposition, tiles []l2tiles.Tile) *Report {
	rep := &Report{
		RunID:         runID,
		Decomposition: d,
		Results:       make([]TileResult, len(tiles)),
	}

	var lock sync.Locker
	if r.Open == nil {
		lock = &sync.Mutex{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers(len(tiles)))
	for i, tile := range tiles {
		g.Go(func() error {
			rep.Results[i] = r.runTile(gctx, tile, lock)
			r.record(gctx, runID, rep.Results[i])
			return nil
		})
	}
	_ = g.Wait()

	if failed := rep.Failed(); len(failed) > 0 {
		opsf("%d of %d tiles failed: %v", len(failed), len(tiles), failed)
	}
	diagf("processed %d tiles, %d points", len(tiles), rep.PointCount())
	return rep
}

func (r *Runner) runTile(ctx context.Context, tile l2tiles.Tile, lock sync.Locker) TileResult {
	clock := r.clock()
	start := clock.Now()
	res := TileResult{Tile: tile}
	fail := func(err error) TileResult {
		res.Duration = clock.Since(start)
		res.Err = &TileError{Index: tile.Index, Envelope: tile.Envelope, Err: err}
		opsf("tile %d %v failed: %v", tile.Index, tile.Envelope, err)
		return res
	}

	cfg := r.config()
	src := r.Source
	if r.Open != nil {
		s, release, err := r.openSource(ctx)
		if err != nil {
			return fail(err)
		}
		defer release()
		src = s
	}

	ex := l2tiles.Extractor{Lock: lock, CapacityHint: cfg.GetCapacityHint()}
	if cfg.GetDedupeBoundaries() {
		ex.Keep = tile.Owns
	}
	pts, err := ex.Extract(ctx, tile.Envelope, src)
	if err != nil {
		return fail(err)
	}

	ws := l3bins.NewWorkingSet(tile, pts, cfg.GetSpacing(), cfg.GetMergeBuffer())
	l3bins.BinAndSort(ws)
	res.Summary = l3bins.Summarize(ws)

	if err := r.consumer().Consume(ctx, ws); err != nil {
		return fail(fmt.Errorf("consume: %w", err))
	}

	res.Duration = clock.Since(start)
	tracef("tile %d %v: %d points in %d bins (%v)", tile.Index, tile.Envelope, res.Summary.Points, res.Summary.OccupiedBins, res.Duration)
	return res
}

func (r *Runner) openSource(ctx context.Context) (l1points.PointSource, func(), error) {
	src, err := r.Open(ctx)
	if err != nil {
		if errors.Is(err, l1points.ErrSourceOpen) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", l1points.ErrSourceOpen, err)
	}
	release := func() {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				diagf("closing tile source: %v", err)
			}
		}
	}
	return src, release, nil
}

// record writes res to the recorder. Recorder failures are logged and do not
// change the tile's outcome.
func (r *Runner) record(ctx context.Context, runID string, res TileResult) {
	if r.Recorder == nil || runID == "" {
		return
	}
	if err := r.Recorder.RecordTile(ctx, res.record(runID)); err != nil {
		opsf("recording tile %d of run %s: %v", res.Tile.Index, runID, err)
	}
}
