package pipeline

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/lidar/l2tiles"
	"github.com/banshee-data/bcal/internal/lidar/l3bins"
	sqlite "github.com/banshee-data/bcal/internal/lidar/storage/sqlite"
)

// TileError is the failure of a single tile. Sibling tiles are unaffected.
type TileError struct {
	Index    int
	Envelope l1points.Envelope
	Err      error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %d %v: %v", e.Index, e.Envelope, e.Err)
}

func (e *TileError) Unwrap() error { return e.Err }

// TileResult is the outcome of one tile.
type TileResult struct {
	Tile     l2tiles.Tile
	Summary  l3bins.Summary
	Duration time.Duration
	Err      error // *TileError, nil on success
}

// Failed reports whether the tile failed.
func (r TileResult) Failed() bool { return r.Err != nil }

// record converts r to the stored form.
func (r TileResult) record(runID string) *sqlite.TileRecord {
	rec := &sqlite.TileRecord{
		RunID:        runID,
		Index:        r.Tile.Index,
		Row:          r.Tile.Row,
		Col:          r.Tile.Col,
		Envelope:     r.Tile.Envelope,
		PointCount:   r.Summary.Points,
		OccupiedBins: r.Summary.OccupiedBins,
		Duration:     r.Duration,
	}
	if r.Summary.Points > 0 {
		mean := r.Summary.MeanZ
		rec.MeanZ = &mean
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Report collects the results of a run, ordered by tile index.
type Report struct {
	RunID         string
	Decomposition *l2tiles.Decomposition
	Results       []TileResult
}

// Failed returns the indices of failed tiles in ascending order.
func (r *Report) Failed() []int {
	var out []int
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res.Tile.Index)
		}
	}
	return out
}

// Err joins the errors of every failed tile. It is nil when all tiles
// succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// PointCount returns the number of points extracted across all successful
// tiles.
func (r *Report) PointCount() int {
	n := 0
	for _, res := range r.Results {
		if !res.Failed() {
			n += res.Summary.Points
		}
	}
	return n
}

// Status returns the run status to store for this report.
func (r *Report) Status() string {
	failed := len(r.Failed())
	switch {
	case failed == 0:
		return sqlite.RunStatusCompleted
	case failed == len(r.Results):
		return sqlite.RunStatusFailed
	default:
		return sqlite.RunStatusPartial
	}
}

// Merge replaces results in r with the results in o for the same tile
// index, and appends any others. Used to fold a retry into the earlier run.
func (r *Report) Merge(o *Report) {
	if o == nil {
		return
	}
	for _, res := range o.Results {
		i := slices.IndexFunc(r.Results, func(x TileResult) bool { return x.Tile.Index == res.Tile.Index })
		if i >= 0 {
			r.Results[i] = res
			continue
		}
		r.Results = append(r.Results, res)
	}
	slices.SortFunc(r.Results, func(a, b TileResult) int { return cmp.Compare(a.Tile.Index, b.Tile.Index) })
}
