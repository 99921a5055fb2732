package l1points

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// MemorySource is an in-memory PointSource over a fixed record slice.
// The record slice is never modified, so several MemorySource values may
// share it through Clone.
type MemorySource struct {
	records []Record
	filter  orb.Polygon

	// QueryErr, when set, is returned by Cursor while a filter is active.
	// Tests use it to simulate a failing backend.
	QueryErr error

	// queries counts Cursor calls.
	queries atomic.Int64
}

// NewMemorySource wraps records in a PointSource.
func NewMemorySource(records []Record) *MemorySource {
	return &MemorySource{records: records}
}

// Clone returns an independent source over the same records with no filter.
func (m *MemorySource) Clone() *MemorySource {
	return &MemorySource{records: m.records, QueryErr: m.QueryErr}
}

// Len returns the number of records in the source.
func (m *MemorySource) Len() int { return len(m.records) }

// Queries returns how many cursors have been opened.
func (m *MemorySource) Queries() int64 { return m.queries.Load() }

// Filtered reports whether a spatial filter is active.
func (m *MemorySource) Filtered() bool { return m.filter != nil }

// Extent implements PointSource.
func (m *MemorySource) Extent(ctx context.Context) (Envelope, error) {
	if len(m.records) == 0 {
		return Envelope{}, fmt.Errorf("%w: source is empty", ErrInvalidEnvelope)
	}
	e := Envelope{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
	}
	for _, r := range m.records {
		e.MinX = math.Min(e.MinX, r.X)
		e.MaxX = math.Max(e.MaxX, r.X)
		e.MinY = math.Min(e.MinY, r.Y)
		e.MaxY = math.Max(e.MaxY, r.Y)
	}
	return e, nil
}

// SetSpatialFilter implements PointSource.
func (m *MemorySource) SetSpatialFilter(poly orb.Polygon) error {
	if len(poly) == 0 || len(poly[0]) < 4 {
		return fmt.Errorf("%w: polygon needs a closed outer ring", ErrSourceQuery)
	}
	m.filter = poly
	return nil
}

// ClearSpatialFilter implements PointSource.
func (m *MemorySource) ClearSpatialFilter() { m.filter = nil }

// EstimateCount implements PointSource. The count is exact.
func (m *MemorySource) EstimateCount(ctx context.Context, filtered bool) (uint64, error) {
	if !filtered || m.filter == nil {
		return uint64(len(m.records)), nil
	}
	var n uint64
	for _, r := range m.records {
		if m.match(r) {
			n++
		}
	}
	return n, nil
}

// Cursor implements PointSource.
func (m *MemorySource) Cursor(ctx context.Context) (Cursor, error) {
	m.queries.Add(1)
	if m.QueryErr != nil && m.filter != nil {
		return nil, m.QueryErr
	}
	return &memoryCursor{ctx: ctx, src: m, filter: m.filter, idx: -1}, nil
}

func (m *MemorySource) match(r Record) bool {
	return matchPolygon(m.filter, r)
}

func matchPolygon(poly orb.Polygon, r Record) bool {
	if poly == nil {
		return true
	}
	return planar.PolygonContains(poly, orb.Point{r.X, r.Y})
}

type memoryCursor struct {
	ctx    context.Context
	src    *MemorySource
	filter orb.Polygon
	idx    int
	err    error
}

func (c *memoryCursor) Next() bool {
	if c.err != nil {
		return false
	}
	for c.idx+1 < len(c.src.records) {
		c.idx++
		if err := c.ctx.Err(); err != nil {
			c.err = err
			return false
		}
		if matchPolygon(c.filter, c.src.records[c.idx]) {
			return true
		}
	}
	return false
}

func (c *memoryCursor) Record() Record { return c.src.records[c.idx] }

func (c *memoryCursor) Err() error { return c.err }

func (c *memoryCursor) Close() error { return nil }
