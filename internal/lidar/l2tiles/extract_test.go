package l2tiles

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource is a PointSource whose cursor fails after a set number of
// records and which tracks filter state for assertions.
type scriptedSource struct {
	records   []l1points.Record
	failAfter int // <0 never fails
	estimate  uint64
	estErr    error
	filterErr error
	closeErr  error

	filtered    bool
	filterSets  int
	filterClrs  int
	lastPolygon orb.Polygon
}

func (s *scriptedSource) Extent(context.Context) (l1points.Envelope, error) {
	return l1points.Envelope{}, errors.New("not used")
}

func (s *scriptedSource) SetSpatialFilter(p orb.Polygon) error {
	s.filterSets++
	s.lastPolygon = p
	if s.filterErr != nil {
		return s.filterErr
	}
	s.filtered = true
	return nil
}

func (s *scriptedSource) ClearSpatialFilter() {
	s.filterClrs++
	s.filtered = false
}

func (s *scriptedSource) EstimateCount(context.Context, bool) (uint64, error) {
	return s.estimate, s.estErr
}

func (s *scriptedSource) Cursor(context.Context) (l1points.Cursor, error) {
	return &scriptedCursor{src: s, idx: -1}, nil
}

type scriptedCursor struct {
	src *scriptedSource
	idx int
	err error
}

func (c *scriptedCursor) Next() bool {
	if c.src.failAfter >= 0 && c.idx+1 >= c.src.failAfter {
		c.err = errors.New("read error")
		return false
	}
	c.idx++
	return c.idx < len(c.src.records)
}

func (c *scriptedCursor) Record() l1points.Record { return c.src.records[c.idx] }
func (c *scriptedCursor) Err() error              { return c.err }
func (c *scriptedCursor) Close() error            { return c.src.closeErr }

func gridRecords(n int) []l1points.Record {
	out := make([]l1points.Record, n)
	for i := range out {
		out[i] = l1points.Record{FeatureID: int64(i), X: float64(i % 10), Y: float64(i / 10), Z: float64(i)}
	}
	return out
}

func TestTilePolygon_ClosedCounterClockwise(t *testing.T) {
	poly := TilePolygon(l1points.Envelope{MinX: 1, MaxX: 3, MinY: -2, MaxY: 5})
	require.Len(t, poly, 1)
	ring := poly[0]
	require.Len(t, ring, 5)
	assert.True(t, ring.Closed(), "ring must repeat its first vertex")
	assert.Equal(t, orb.CCW, ring.Orientation())
	assert.Equal(t, orb.Bound{Min: orb.Point{1, -2}, Max: orb.Point{3, 5}}, poly.Bound())
}

func TestExtract_EmptyTile(t *testing.T) {
	src := l1points.NewMemorySource(gridRecords(20))
	pts, err := Extract(context.Background(), l1points.Envelope{MinX: 100, MaxX: 101, MinY: 100, MaxY: 101}, src)
	require.NoError(t, err)
	assert.NotNil(t, pts)
	assert.Empty(t, pts)
	assert.False(t, src.Filtered(), "filter must be cleared")
}

func TestExtract_CollectsAndTrims(t *testing.T) {
	src := l1points.NewMemorySource(gridRecords(100))
	env := l1points.Envelope{MinX: 0, MaxX: 4.5, MinY: 0, MaxY: 2.5}
	pts, err := Extract(context.Background(), env, src)
	require.NoError(t, err)

	// x in 0..4, y in 0..2
	require.Len(t, pts, 15)
	assert.Equal(t, len(pts), cap(pts), "no trailing capacity")
	for i, p := range pts {
		assert.True(t, env.Contains(p.X, p.Y), "point %d outside tile", i)
		assert.Equal(t, uint32(l1points.BinUnset), p.Bin)
	}
	assert.Equal(t, int64(0), pts[0].ID)
	assert.Equal(t, int64(24), pts[len(pts)-1].ID, "cursor order preserved")
	assert.False(t, src.Filtered())
}

func TestExtract_GrowsFromSmallHint(t *testing.T) {
	src := &scriptedSource{records: gridRecords(50), failAfter: -1, estErr: errors.New("no estimate")}
	pts, err := Extractor{CapacityHint: 2}.Extract(context.Background(), l1points.Envelope{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}, src)
	require.NoError(t, err)
	assert.Len(t, pts, 50)
	assert.Equal(t, 50, cap(pts))
	assert.Equal(t, 1, src.filterSets)
	assert.Equal(t, 1, src.filterClrs)
}

func TestExtract_ClearsFilterOnFailure(t *testing.T) {
	env := l1points.Envelope{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}

	t.Run("cursor error", func(t *testing.T) {
		src := &scriptedSource{records: gridRecords(10), failAfter: 3}
		pts, err := Extract(context.Background(), env, src)
		assert.Nil(t, pts)
		assert.ErrorIs(t, err, l1points.ErrSourceQuery)
		assert.False(t, src.filtered)
	})

	t.Run("filter rejected", func(t *testing.T) {
		src := &scriptedSource{failAfter: -1, filterErr: errors.New("bad ring")}
		_, err := Extract(context.Background(), env, src)
		assert.ErrorIs(t, err, l1points.ErrSourceQuery)
		assert.Equal(t, 1, src.filterClrs)
	})

	t.Run("close error", func(t *testing.T) {
		src := &scriptedSource{records: gridRecords(2), failAfter: -1, closeErr: errors.New("close")}
		pts, err := Extract(context.Background(), env, src)
		assert.Nil(t, pts)
		assert.ErrorIs(t, err, l1points.ErrSourceQuery)
		assert.False(t, src.filtered)
	})
}

func TestExtract_KeepPredicate(t *testing.T) {
	src := l1points.NewMemorySource(gridRecords(100))
	d, err := Partition(l1points.Envelope{MinX: 0, MaxX: 9, MinY: 0, MaxY: 9}, 4)
	require.NoError(t, err)

	total := 0
	for _, tile := range d.Tiles {
		ex := Extractor{Keep: tile.Owns}
		pts, err := ex.Extract(context.Background(), tile.Envelope, src)
		require.NoError(t, err)
		total += len(pts)
	}
	assert.Equal(t, 100, total, "each point should be owned by exactly one tile")
}

func TestExtract_SharedSourceWithLock(t *testing.T) {
	src := l1points.NewMemorySource(gridRecords(100))
	d, err := Partition(l1points.Envelope{MinX: 0, MaxX: 9, MinY: 0, MaxY: 9}, 9)
	require.NoError(t, err)

	var mu sync.Mutex
	counts := make([]int, d.Len())
	var wg sync.WaitGroup
	for _, tile := range d.Tiles {
		wg.Add(1)
		go func(tile Tile) {
			defer wg.Done()
			pts, err := Extractor{Lock: &mu, Keep: tile.Owns}.Extract(context.Background(), tile.Envelope, src)
			if err != nil {
				t.Errorf("tile %d: %v", tile.Index, err)
				return
			}
			for _, p := range pts {
				if idx, _ := d.Owner(p.X, p.Y); idx != tile.Index {
					t.Errorf("tile %d got point owned by %d", tile.Index, idx)
				}
			}
			counts[tile.Index] = len(pts)
		}(tile)
	}
	wg.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 100, total)
	assert.False(t, src.Filtered())
}

func TestGrowCapacity(t *testing.T) {
	tests := map[int]int{0: 1, 1: 2, 2: 3, 3: 4, 4: 6, 10: 15, 1024: 1536}
	for in, want := range tests {
		assert.Equal(t, want, growCapacity(in), "growCapacity(%d)", in)
	}
}

func TestPointBuffer_GrowthAndShrink(t *testing.T) {
	b := newPointBuffer(0)
	for i := 0; i < 10; i++ {
		b.push(l1points.Point{ID: int64(i)})
	}
	// 1 -> 2 -> 3 -> 4 -> 6 -> 9 -> 13
	assert.Equal(t, 6, b.grows)
	assert.Equal(t, 13, cap(b.pts))
	out := b.shrink()
	assert.Len(t, out, 10)
	assert.Equal(t, 10, cap(out))
	for i, p := range out {
		assert.Equal(t, int64(i), p.ID)
	}
}
