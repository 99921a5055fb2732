package l2tiles

import (
	"fmt"
	"sort"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
)

// Tile is one cell of a Decomposition. Index is Row*Side + Col, with row 0
// at the top (MaxY) of the source envelope.
type Tile struct {
	Index    int
	Row, Col int
	Side     int
	Envelope l1points.Envelope
}

// Owns reports whether (x, y) belongs to this tile under the boundary
// ownership rule: X is half-open [MinX, MaxX) and Y is half-open
// (MinY, MaxY], except that the last column keeps its right edge and the
// last row keeps its bottom edge. A point on an edge shared by two tiles is
// owned by the tile with the larger column or row, matching floor binning.
func (t Tile) Owns(x, y float64) bool {
	e := t.Envelope
	inX := x >= e.MinX && (x < e.MaxX || (t.Col == t.Side-1 && x == e.MaxX))
	inY := y <= e.MaxY && (y > e.MinY || (t.Row == t.Side-1 && y == e.MinY))
	return inX && inY
}

// Decomposition is the grid partition of a source envelope.
type Decomposition struct {
	Source l1points.Envelope
	Side   int
	Tiles  []Tile

	// xs runs left to right and ys top to bottom; both have Side+1 entries.
	xs []float64
	ys []float64
}

// Len returns the number of tiles.
func (d *Decomposition) Len() int { return len(d.Tiles) }

// Owner returns the index of the tile that owns (x, y). ok is false when
// the point lies outside the source envelope.
func (d *Decomposition) Owner(x, y float64) (index int, ok bool) {
	if !d.Source.Contains(x, y) {
		return 0, false
	}
	interior := d.Side - 1
	col := sort.Search(interior, func(i int) bool { return d.xs[i+1] > x })
	row := sort.Search(interior, func(i int) bool { return d.ys[i+1] < y })
	return row*d.Side + col, true
}

// Partition divides env into a Side x Side grid of tiles, where Side is the
// smallest integer whose square is at least jobs. The achieved tile count
// is therefore >= jobs. jobs == 1 returns env itself.
//
// Each grid edge is computed once and shared by the tiles on either side of
// it, so the tiles cover env with no gap and no overlap.
func Partition(env l1points.Envelope, jobs uint32) (*Decomposition, error) {
	if jobs == 0 {
		return nil, l1points.ErrZeroJobs
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	side := ceilSqrt(uint64(jobs))
	d := &Decomposition{
		Source: env,
		Side:   side,
		Tiles:  make([]Tile, side*side),
		xs:     make([]float64, side+1),
		ys:     make([]float64, side+1),
	}

	dx := env.Width() / float64(side)
	dy := env.Height() / float64(side)
	diagf("partitioning %v into %dx%d tiles (dx=%g dy=%g) for %d jobs", env, side, side, dx, dy, jobs)

	for i := 0; i <= side; i++ {
		d.xs[i] = env.MinX + float64(i)*dx
		d.ys[i] = env.MaxY - float64(i)*dy
	}
	// Pin the outer edges so the grid reproduces env exactly.
	d.xs[0], d.xs[side] = env.MinX, env.MaxX
	d.ys[0], d.ys[side] = env.MaxY, env.MinY

	for row := 0; row < side; row++ {
		for col := 0; col < side; col++ {
			idx := row*side + col
			d.Tiles[idx] = Tile{
				Index: idx,
				Row:   row,
				Col:   col,
				Side:  side,
				Envelope: l1points.Envelope{
					MinX: d.xs[col],
					MaxX: d.xs[col+1],
					MinY: d.ys[row+1],
					MaxY: d.ys[row],
				},
			}
			tracef("tile %d (row %d, col %d): %v", idx, row, col, d.Tiles[idx].Envelope)
		}
	}
	return d, nil
}

// Subset returns the tiles with the given indices, in the order given.
func (d *Decomposition) Subset(indices []int) ([]Tile, error) {
	out := make([]Tile, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(d.Tiles) {
			return nil, fmt.Errorf("tile index %d out of range [0,%d)", i, len(d.Tiles))
		}
		out = append(out, d.Tiles[i])
	}
	return out, nil
}

// ceilSqrt returns the smallest s >= 1 with s*s >= n.
func ceilSqrt(n uint64) int {
	s := uint64(1)
	for s*s < n {
		s++
	}
	return int(s)
}
