package l3bins

import (
	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/lidar/l2tiles"
)

// WorkingSet is one tile's points, ready for a ground-classification
// consumer once BinAndSort has run. It is owned by the task that built it.
type WorkingSet struct {
	Tile     l2tiles.Tile
	Envelope l1points.Envelope
	Points   []l1points.Point
	Spacing  float64

	// MergeBuffer is the configured overlap margin for a later merge step.
	// It is carried for consumers and has no effect on tiling or binning.
	MergeBuffer float64

	// Sorted is set by BinAndSort.
	Sorted bool
}

// NewWorkingSet builds a working set for tile.
func NewWorkingSet(tile l2tiles.Tile, pts []l1points.Point, spacing, mergeBuffer float64) *WorkingSet {
	return &WorkingSet{
		Tile:        tile,
		Envelope:    tile.Envelope,
		Points:      pts,
		Spacing:     spacing,
		MergeBuffer: mergeBuffer,
	}
}

// Len returns the number of points.
func (ws *WorkingSet) Len() int { return len(ws.Points) }
