package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/bcal/internal/config"
	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/lidar/l2tiles"
	"github.com/banshee-data/bcal/internal/lidar/monitor"
	"github.com/banshee-data/bcal/internal/lidar/pipeline"
	sqlite "github.com/banshee-data/bcal/internal/lidar/storage/sqlite"
	"github.com/banshee-data/bcal/internal/monitoring"
)

type filterFlags struct {
	dbPath     string
	configPath string
	jobs       uint
	spacing    float64
	buffer     float64
	workers    int
	memLimitMB int
	dedupe     bool
	plotDir    string
	retries    int
	resume     string
	failOnTile bool
	debug      bool
}

func parseFilterFlags(args []string, stderr io.Writer) (*filterFlags, *config.FilterConfig, error) {
	f := &filterFlags{}
	fs := newFlagSet("filter", stderr)
	fs.StringVar(&f.dbPath, "db", "points.db", "Point database to read (see bcal import)")
	fs.StringVar(&f.configPath, "config", "", "Filter config file (.json, .yaml or .yml)")
	fs.UintVar(&f.jobs, "jobs", config.DefaultJobs, "Target parallelism; the grid has ceil(sqrt(jobs))^2 tiles")
	fs.Float64Var(&f.spacing, "spacing", config.DefaultSpacing, "Canopy bin spacing in map units")
	fs.Float64Var(&f.buffer, "buffer", config.DefaultMergeBuffer, "Merge buffer carried with each tile (reserved)")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent tiles (0 = one per job)")
	fs.IntVar(&f.memLimitMB, "mem-limit", 0, "Memory budget per job in MB (reserved, 0 = all)")
	fs.BoolVar(&f.dedupe, "dedupe-boundaries", true, "Assign points on shared tile edges to a single tile")
	fs.StringVar(&f.plotDir, "plot-dir", "", "Write decomposition and per-tile plots to this directory")
	fs.IntVar(&f.retries, "retry", 0, "Retry failed tiles up to this many times")
	fs.StringVar(&f.resume, "resume", "", "Re-run the failed tiles of a stored run `id`")
	fs.BoolVar(&f.failOnTile, "fail-on-tile-error", true, "Exit with status 2 when any tile fails")
	fs.BoolVar(&f.debug, "debug", false, "Enable diagnostic and trace logging")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, err
		}
		return nil, nil, errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "filter: unexpected arguments %v\n", fs.Args())
		return nil, nil, errUsage
	}

	cfg := config.EmptyFilterConfig()
	if f.configPath != "" {
		loaded, err := config.LoadFilterConfig(f.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	// Flags given on the command line override the file.
	var overrideErr error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "jobs":
			if f.jobs > math.MaxUint32 {
				overrideErr = fmt.Errorf("jobs %d exceeds %d", f.jobs, uint32(math.MaxUint32))
				return
			}
			jobs := uint32(f.jobs)
			cfg.Jobs = &jobs
		case "spacing":
			cfg.Spacing = &f.spacing
		case "buffer":
			cfg.MergeBuffer = &f.buffer
		case "workers":
			cfg.Workers = &f.workers
		case "mem-limit":
			cfg.MemLimitMB = &f.memLimitMB
		case "dedupe-boundaries":
			cfg.DedupeBoundaries = &f.dedupe
		}
	})
	if overrideErr != nil {
		return nil, nil, overrideErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return f, cfg, nil
}

func runFilter(args []string, stdout, stderr io.Writer) int {
	f, cfg, err := parseFilterFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitCode(stderr, err)
	}
	setupLogging(stderr, f.debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := filter(ctx, f, cfg)
	if err != nil {
		return exitCode(stderr, err)
	}

	printReport(stdout, rep)
	if failed := rep.Failed(); len(failed) > 0 {
		for _, res := range rep.Results {
			if res.Err != nil {
				fmt.Fprintf(stderr, "bcal: %v\n", res.Err)
			}
		}
		if f.failOnTile {
			return exitTileFailure
		}
	}
	return exitOK
}

// filter runs or resumes a tiling run and writes plots when asked. The
// error is non-nil only for fatal preconditions.
func filter(ctx context.Context, f *filterFlags, cfg *config.FilterConfig) (*pipeline.Report, error) {
	store, err := sqlite.OpenPointStore(f.dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	runs := sqlite.NewRunStore(store.DB())

	if f.plotDir != "" {
		if err := os.MkdirAll(f.plotDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create plot dir: %w", err)
		}
	}

	runner := &pipeline.Runner{
		Config: cfg,
		Open: func(context.Context) (l1points.PointSource, error) {
			return store.Session(), nil
		},
		Consumer:   &tileReporter{plotDir: f.plotDir},
		Recorder:   runs,
		SourcePath: f.dbPath,
	}

	var rep *pipeline.Report
	if f.resume != "" {
		rep, err = resumeRun(ctx, runner, runs, f.resume)
	} else {
		rep, err = runner.Run(ctx)
	}
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= f.retries && len(rep.Failed()) > 0; attempt++ {
		monitoring.Logf("retry %d/%d: %d failed tiles", attempt, f.retries, len(rep.Failed()))
		if _, err := runner.Retry(ctx, rep); err != nil {
			return nil, err
		}
	}

	if f.resume != "" {
		if err := finishResumed(ctx, runs, rep); err != nil {
			return nil, err
		}
	}

	if f.plotDir != "" {
		path := filepath.Join(f.plotDir, "tiles.png")
		if err := monitor.PlotDecomposition(rep.Decomposition, rep.Results, path); err != nil {
			monitoring.Logf("decomposition plot: %v", err)
		}
	}
	return rep, nil
}

// resumeRun re-partitions a stored run with its stored configuration and
// re-runs only the tiles that recorded an error.
func resumeRun(ctx context.Context, runner *pipeline.Runner, runs *sqlite.RunStore, runID string) (*pipeline.Report, error) {
	run, err := runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	stored := config.EmptyFilterConfig()
	if err := json.Unmarshal(run.ConfigJSON, stored); err != nil {
		return nil, fmt.Errorf("stored config for run %s: %w", runID, err)
	}
	runner.Config = stored
	runner.RunID = runID

	d, err := l2tiles.Partition(run.Envelope, run.Jobs)
	if err != nil {
		return nil, fmt.Errorf("partition %v: %w", run.Envelope, err)
	}
	failed, err := runs.FailedTiles(ctx, runID)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("resuming run %s: %d of %d tiles failed previously", runID, len(failed), d.Len())
	if len(failed) == 0 {
		return &pipeline.Report{RunID: runID, Decomposition: d}, nil
	}
	return runner.RunTiles(ctx, d, failed)
}

// finishResumed sets the run status from every stored tile, not only the
// tiles re-run in this process.
func finishResumed(ctx context.Context, runs *sqlite.RunStore, rep *pipeline.Report) error {
	remaining, err := runs.FailedTiles(ctx, rep.RunID)
	if err != nil {
		return err
	}
	status := sqlite.RunStatusCompleted
	switch {
	case len(remaining) == rep.Decomposition.Len():
		status = sqlite.RunStatusFailed
	case len(remaining) > 0:
		status = sqlite.RunStatusPartial
	}
	return runs.FinishRun(ctx, rep.RunID, status)
}

func printReport(w io.Writer, rep *pipeline.Report) {
	d := rep.Decomposition
	fmt.Fprintf(w, "run %s: %d tiles (%dx%d) over %v\n", rep.RunID, d.Len(), d.Side, d.Side, d.Source)
	for _, res := range rep.Results {
		status := "ok"
		if res.Failed() {
			status = "FAILED"
		}
		fmt.Fprintf(w, "  tile %3d %-24v points=%-8d bins=%-8d %v %s\n",
			res.Tile.Index, res.Tile.Envelope, res.Summary.Points, res.Summary.OccupiedBins, res.Duration.Round(time.Millisecond), status)
	}
	fmt.Fprintf(w, "points=%d failed=%d\n", rep.PointCount(), len(rep.Failed()))
}
