package l3bins

import (
	"cmp"
	"math"
	"slices"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
)

// maxBin is the largest assignable bin; BinUnset is reserved.
const maxBin = l1points.BinUnset - 1

// GridDims is the bin grid laid over one tile envelope. Row 0 is at MaxY.
type GridDims struct {
	NX, NY  int
	Spacing float64
}

// Cells returns NX * NY.
func (g GridDims) Cells() uint64 { return uint64(g.NX) * uint64(g.NY) }

// Grid returns the bin grid for env at the given spacing:
// NX = ceil(width/spacing) and NY = ceil(height/spacing), at least 1 each.
// Points on the far right or bottom edge fold into the last column or row.
func Grid(env l1points.Envelope, spacing float64) GridDims {
	return GridDims{
		NX:      cellCount(env.Width(), spacing),
		NY:      cellCount(env.Height(), spacing),
		Spacing: spacing,
	}
}

func cellCount(extent, spacing float64) int {
	if spacing <= 0 || extent <= 0 || math.IsNaN(extent) {
		return 1
	}
	n := math.Ceil(extent / spacing)
	if n < 1 {
		return 1
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// BinIndex returns the bin of (x, y): row*NX + col with
// col = floor((x-MinX)/spacing) and row = floor((MaxY-y)/spacing), each
// clamped into the grid. A point on a bin boundary goes to the bin on its
// right or below it, per floor. Grids larger than uint32 saturate.
func BinIndex(g GridDims, env l1points.Envelope, x, y float64) uint32 {
	col := clampCell(math.Floor((x-env.MinX)/g.Spacing), g.NX)
	row := clampCell(math.Floor((env.MaxY-y)/g.Spacing), g.NY)
	bin := uint64(row)*uint64(g.NX) + uint64(col)
	if bin > maxBin {
		return maxBin
	}
	return uint32(bin)
}

func clampCell(v float64, n int) int {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > float64(n-1) {
		return n - 1
	}
	return int(v)
}

// BinAndSort assigns a bin to every point of ws and stable-sorts the points
// by ascending bin, in place. Points in the same bin keep their input order,
// so the result is reproducible for identical input.
func BinAndSort(ws *WorkingSet) {
	g := Grid(ws.Envelope, ws.Spacing)
	for i := range ws.Points {
		p := &ws.Points[i]
		p.Bin = BinIndex(g, ws.Envelope, p.X, p.Y)
	}
	slices.SortStableFunc(ws.Points, func(a, b l1points.Point) int {
		return cmp.Compare(a.Bin, b.Bin)
	})
	ws.Sorted = true
	tracef("tile %d: binned %d points into %dx%d grid", ws.Tile.Index, len(ws.Points), g.NX, g.NY)
}

// BinRange is the half-open index range [Start, End) of one bin's points
// in a sorted working set.
type BinRange struct {
	Bin        uint32
	Start, End int
}

// Len returns End - Start.
func (r BinRange) Len() int { return r.End - r.Start }

// Ranges splits sorted points into one BinRange per occupied bin, in bin
// order. The points must already be sorted by bin.
func Ranges(pts []l1points.Point) []BinRange {
	var out []BinRange
	for i := 0; i < len(pts); {
		j := i + 1
		for j < len(pts) && pts[j].Bin == pts[i].Bin {
			j++
		}
		out = append(out, BinRange{Bin: pts[i].Bin, Start: i, End: j})
		i = j
	}
	return out
}
