package l2tiles

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
)

const (
	// DefaultCapacityHint sizes the initial buffer when the source cannot
	// estimate the tile's point count.
	DefaultCapacityHint = 1024

	// maxCapacityHint caps how much a count estimate may preallocate.
	maxCapacityHint = 1 << 24

	// ctxCheckInterval is how many records are read between context checks.
	ctxCheckInterval = 4096
)

// Extractor collects the points of one tile from a PointSource.
// The zero value is ready to use.
type Extractor struct {
	// Lock, when set, is held for the whole set-filter, iterate and
	// clear-filter sequence. Use it when several goroutines share a source.
	Lock sync.Locker

	// Keep, when set, drops records for which it returns false. The
	// pipeline uses it to apply Tile.Owns so edge points land in one tile.
	Keep func(x, y float64) bool

	// CapacityHint overrides DefaultCapacityHint when the source gives no
	// usable estimate.
	CapacityHint int
}

// Extract returns every point the source matches inside env, using a zero
// Extractor.
func Extract(ctx context.Context, env l1points.Envelope, src l1points.PointSource) ([]l1points.Point, error) {
	return Extractor{}.Extract(ctx, env, src)
}

// Extract queries src for the points inside env and returns them in cursor
// order, in a slice whose capacity equals its length. An empty tile yields
// an empty slice and no error. Source failures are wrapped with
// l1points.ErrSourceQuery.
//
// The source's spatial filter is always cleared before Extract returns.
func (e Extractor) Extract(ctx context.Context, env l1points.Envelope, src l1points.PointSource) (pts []l1points.Point, err error) {
	if e.Lock != nil {
		e.Lock.Lock()
		defer e.Lock.Unlock()
	}

	if err := src.SetSpatialFilter(TilePolygon(env)); err != nil {
		// Some backends keep a partial filter on failure.
		src.ClearSpatialFilter()
		opsf("spatial filter rejected for %v: %v", env, err)
		return nil, fmt.Errorf("%w: set filter for %v: %w", l1points.ErrSourceQuery, env, err)
	}
	defer src.ClearSpatialFilter()

	buf := newPointBuffer(e.initialCapacity(ctx, src, env))

	cur, err := src.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open cursor for %v: %w", l1points.ErrSourceQuery, env, err)
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil && err == nil {
			pts = nil
			err = fmt.Errorf("%w: close cursor for %v: %w", l1points.ErrSourceQuery, env, cerr)
		}
	}()

	read := 0
	for cur.Next() {
		read++
		if read%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v: %w", l1points.ErrSourceQuery, env, err)
			}
		}
		rec := cur.Record()
		if e.Keep != nil && !e.Keep(rec.X, rec.Y) {
			continue
		}
		buf.push(rec.Point())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %v: %w", l1points.ErrSourceQuery, env, err)
	}

	tracef("extracted %d of %d records for %v (grew %d times)", buf.len(), read, env, buf.grows)
	return buf.shrink(), nil
}

func (e Extractor) initialCapacity(ctx context.Context, src l1points.PointSource, env l1points.Envelope) int {
	fallback := DefaultCapacityHint
	if e.CapacityHint > 0 {
		fallback = e.CapacityHint
	}
	n, err := src.EstimateCount(ctx, true)
	if err != nil {
		diagf("count estimate unavailable for %v, using %d: %v", env, fallback, err)
		return fallback
	}
	if n == 0 {
		return fallback
	}
	if n > maxCapacityHint {
		return maxCapacityHint
	}
	return int(n)
}

// pointBuffer is a growable point slice that grows by 1.5x and is trimmed
// to its exact length when done.
type pointBuffer struct {
	pts   []l1points.Point
	grows int
}

func newPointBuffer(capacity int) *pointBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &pointBuffer{pts: make([]l1points.Point, 0, capacity)}
}

func (b *pointBuffer) len() int { return len(b.pts) }

func (b *pointBuffer) push(p l1points.Point) {
	if len(b.pts) == cap(b.pts) {
		b.grow()
	}
	b.pts = append(b.pts, p)
}

func (b *pointBuffer) grow() {
	next := make([]l1points.Point, len(b.pts), growCapacity(cap(b.pts)))
	copy(next, b.pts)
	b.pts = next
	b.grows++
}

// shrink returns the collected points with no spare capacity.
func (b *pointBuffer) shrink() []l1points.Point {
	if len(b.pts) == cap(b.pts) {
		return b.pts
	}
	out := make([]l1points.Point, len(b.pts))
	copy(out, b.pts)
	b.pts = out
	return out
}

// growCapacity returns 1.5x c, and never less than c+1.
func growCapacity(c int) int {
	n := c + c/2
	if n < c+1 {
		n = c + 1
	}
	return n
}
