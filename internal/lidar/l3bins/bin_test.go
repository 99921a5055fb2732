package l3bins

import (
	"math"
	"testing"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/lidar/l2tiles"
	"github.com/google/go-cmp/cmp"
)

func tenByTen() *WorkingSet {
	env := l1points.Envelope{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10}
	return &WorkingSet{
		Tile:     l2tiles.Tile{Envelope: env, Side: 1},
		Envelope: env,
		Spacing:  1.0,
	}
}

func TestBinAndSort_Scenario(t *testing.T) {
	ws := tenByTen()
	ws.Points = []l1points.Point{
		{ID: 3, X: 0.5, Y: 0.5},
		{ID: 1, X: 0.5, Y: 9.5},
		{ID: 2, X: 9.5, Y: 9.5},
	}
	if g := Grid(ws.Envelope, ws.Spacing); g.NX != 10 || g.NY != 10 {
		t.Fatalf("grid = %dx%d, want 10x10", g.NX, g.NY)
	}

	BinAndSort(ws)

	gotIDs := []int64{ws.Points[0].ID, ws.Points[1].ID, ws.Points[2].ID}
	gotBins := []uint32{ws.Points[0].Bin, ws.Points[1].Bin, ws.Points[2].Bin}
	if diff := cmp.Diff([]int64{1, 2, 3}, gotIDs); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{0, 9, 90}, gotBins); diff != "" {
		t.Errorf("bins mismatch (-want +got):\n%s", diff)
	}
	if !ws.Sorted {
		t.Error("Sorted flag not set")
	}
}

func TestBinAndSort_Stable(t *testing.T) {
	ws := tenByTen()
	// IDs 10..14 share a bin and are interleaved with other bins.
	ws.Points = []l1points.Point{
		{ID: 10, X: 5.2, Y: 5.2},
		{ID: 1, X: 0.1, Y: 9.9},
		{ID: 11, X: 5.2, Y: 5.2},
		{ID: 2, X: 9.9, Y: 0.1},
		{ID: 12, X: 5.2, Y: 5.2},
		{ID: 13, X: 5.7, Y: 5.7},
		{ID: 14, X: 5.2, Y: 5.2},
	}
	BinAndSort(ws)

	var same []int64
	for _, p := range ws.Points {
		if p.ID >= 10 {
			same = append(same, p.ID)
		}
	}
	if diff := cmp.Diff([]int64{10, 11, 12, 13, 14}, same); diff != "" {
		t.Errorf("equal-bin points reordered (-want +got):\n%s", diff)
	}
	if ws.Points[0].ID != 1 || ws.Points[len(ws.Points)-1].ID != 2 {
		t.Errorf("unexpected order: first=%d last=%d", ws.Points[0].ID, ws.Points[len(ws.Points)-1].ID)
	}
}

func TestBinAndSort_Idempotent(t *testing.T) {
	ws := tenByTen()
	for i := 0; i < 200; i++ {
		x := math.Mod(float64(i)*3.7, 10)
		y := math.Mod(float64(i)*7.3, 10)
		ws.Points = append(ws.Points, l1points.Point{ID: int64(i), X: x, Y: y})
	}
	BinAndSort(ws)
	first := append([]l1points.Point(nil), ws.Points...)
	BinAndSort(ws)
	if diff := cmp.Diff(first, ws.Points); diff != "" {
		t.Errorf("second sort changed the sequence (-first +second):\n%s", diff)
	}
	for i := 1; i < len(ws.Points); i++ {
		if ws.Points[i-1].Bin > ws.Points[i].Bin {
			t.Fatalf("points not in ascending bin order at %d", i)
		}
	}
}

func TestBinIndex_TranslationInvariant(t *testing.T) {
	env := l1points.Envelope{MinX: 0, MaxX: 8, MinY: 0, MaxY: 6}
	g := Grid(env, 0.5)
	shifts := [][2]float64{{1024, -2048}, {-64, 4096}, {481000, 4810000}}
	for _, s := range shifts {
		moved := l1points.Envelope{MinX: env.MinX + s[0], MaxX: env.MaxX + s[0], MinY: env.MinY + s[1], MaxY: env.MaxY + s[1]}
		mg := Grid(moved, 0.5)
		if mg != g {
			t.Fatalf("grid changed under shift %v: %+v vs %+v", s, mg, g)
		}
		for x := 0.25; x < 8; x += 0.5 {
			for y := 0.25; y < 6; y += 0.5 {
				a := BinIndex(g, env, x, y)
				b := BinIndex(mg, moved, x+s[0], y+s[1])
				if a != b {
					t.Errorf("shift %v: bin(%g,%g) = %d, shifted = %d", s, x, y, a, b)
				}
			}
		}
	}
}

func TestBinIndex_Boundaries(t *testing.T) {
	env := l1points.Envelope{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10}
	g := Grid(env, 1)
	tests := []struct {
		name string
		x, y float64
		want uint32
	}{
		{"top-left corner", 0, 10, 0},
		{"on column edge", 1, 9.5, 1},
		{"on row edge", 0.5, 9, 10},
		{"right edge folds into last column", 10, 9.5, 9},
		{"bottom edge folds into last row", 0.5, 0, 90},
		{"bottom-right corner", 10, 0, 99},
		{"left of tile clamps", -3, 9.5, 0},
		{"above tile clamps", 0.5, 12, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BinIndex(g, env, tt.x, tt.y); got != tt.want {
				t.Errorf("BinIndex(%g,%g) = %d, want %d", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestGrid_NonIntegralExtent(t *testing.T) {
	g := Grid(l1points.Envelope{MinX: 0, MaxX: 10.5, MinY: 0, MaxY: 3.2}, 1)
	if g.NX != 11 || g.NY != 4 {
		t.Errorf("grid = %dx%d, want 11x4", g.NX, g.NY)
	}
	if g.Cells() != 44 {
		t.Errorf("Cells = %d", g.Cells())
	}
}

func TestBinIndex_Saturates(t *testing.T) {
	env := l1points.Envelope{MinX: 0, MaxX: 1e6, MinY: 0, MaxY: 1e6}
	g := Grid(env, 1e-2)
	if got := BinIndex(g, env, 1e6, 0); got != maxBin {
		t.Errorf("BinIndex = %d, want saturation at %d", got, uint32(maxBin))
	}
}

func TestBinAndSort_Empty(t *testing.T) {
	ws := tenByTen()
	BinAndSort(ws)
	if ws.Len() != 0 || !ws.Sorted {
		t.Errorf("empty set: len=%d sorted=%v", ws.Len(), ws.Sorted)
	}
}

func TestRanges(t *testing.T) {
	pts := []l1points.Point{{Bin: 0}, {Bin: 0}, {Bin: 3}, {Bin: 7}, {Bin: 7}, {Bin: 7}}
	want := []BinRange{{Bin: 0, Start: 0, End: 2}, {Bin: 3, Start: 2, End: 3}, {Bin: 7, Start: 3, End: 6}}
	if diff := cmp.Diff(want, Ranges(pts)); diff != "" {
		t.Errorf("Ranges mismatch (-want +got):\n%s", diff)
	}
	if Ranges(nil) != nil {
		t.Error("Ranges(nil) should be nil")
	}
}
