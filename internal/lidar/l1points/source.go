package l1points

import (
	"context"

	"github.com/paulmach/orb"
)

// PointSource is the external collaborator that answers spatially filtered
// point queries over the full dataset.
//
// A PointSource carries mutable filter state. Callers that share one source
// across goroutines must hold a lock around the set-filter, iterate and
// clear-filter sequence, or give each goroutine its own source.
type PointSource interface {
	// Extent returns the bounding envelope of the whole dataset.
	Extent(ctx context.Context) (Envelope, error)

	// SetSpatialFilter restricts subsequent cursors to points inside poly.
	SetSpatialFilter(poly orb.Polygon) error

	// ClearSpatialFilter removes any active spatial filter.
	ClearSpatialFilter()

	// EstimateCount returns a point count hint, for the filtered set when
	// filtered is true. It may be approximate.
	EstimateCount(ctx context.Context, filtered bool) (uint64, error)

	// Cursor starts a new iteration from the first matching record.
	Cursor(ctx context.Context) (Cursor, error)
}

// Cursor iterates records in the style of sql.Rows.
type Cursor interface {
	Next() bool
	Record() Record
	Err() error
	Close() error
}
