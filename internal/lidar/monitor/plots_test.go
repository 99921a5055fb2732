package monitor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/lidar/l2tiles"
	"github.com/banshee-data/bcal/internal/lidar/l3bins"
	"github.com/banshee-data/bcal/internal/lidar/pipeline"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func testWorkingSet(t *testing.T, n int) *l3bins.WorkingSet {
	t.Helper()
	d, err := l2tiles.Partition(l1points.Envelope{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10}, 1)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	pts := make([]l1points.Point, n)
	for i := range pts {
		// Skewed so bins hold different counts.
		x := float64(i%10) * float64(i%3) / 3
		y := float64((i*7)%10) + 0.5
		pts[i] = l1points.Point{ID: int64(i), X: x, Y: y, Z: float64(i % 5), Bin: l1points.BinUnset}
	}
	ws := l3bins.NewWorkingSet(d.Tiles[0], pts, 1.0, 0)
	l3bins.BinAndSort(ws)
	return ws
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected plot at %s: %v", path, err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Errorf("%s is not a PNG", path)
	}
}

func TestPlotDecomposition(t *testing.T) {
	d, err := l2tiles.Partition(l1points.Envelope{MinX: 0, MaxX: 100, MinY: 0, MaxY: 50}, 4)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	results := []pipeline.TileResult{
		{Tile: d.Tiles[0], Summary: l3bins.Summary{Points: 12}},
		{Tile: d.Tiles[1], Err: &pipeline.TileError{Index: 1, Envelope: d.Tiles[1].Envelope, Err: errors.New("boom")}},
	}

	path := filepath.Join(t.TempDir(), "nested", "tiles.png")
	if err := PlotDecomposition(d, results, path); err != nil {
		t.Fatalf("PlotDecomposition: %v", err)
	}
	assertPNG(t, path)
}

func TestPlotDecomposition_Empty(t *testing.T) {
	if err := PlotDecomposition(nil, nil, filepath.Join(t.TempDir(), "x.png")); !errors.Is(err, ErrNothingToPlot) {
		t.Errorf("expected ErrNothingToPlot, got %v", err)
	}
}

func TestPlotBinOccupancy(t *testing.T) {
	ws := testWorkingSet(t, 200)
	path := filepath.Join(t.TempDir(), "occupancy.png")
	if err := PlotBinOccupancy(ws, path); err != nil {
		t.Fatalf("PlotBinOccupancy: %v", err)
	}
	assertPNG(t, path)
}

func TestPlotBinOccupancy_SingleBin(t *testing.T) {
	d, err := l2tiles.Partition(l1points.Envelope{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10}, 1)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	pts := []l1points.Point{{ID: 1, X: 0.5, Y: 0.5, Z: 2, Bin: l1points.BinUnset}}
	ws := l3bins.NewWorkingSet(d.Tiles[0], pts, 1.0, 0)
	l3bins.BinAndSort(ws)

	path := filepath.Join(t.TempDir(), "occupancy.png")
	if err := PlotBinOccupancy(ws, path); err != nil {
		t.Fatalf("PlotBinOccupancy: %v", err)
	}
	assertPNG(t, path)
}

func TestOccupancyBins(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{9, 3},
		{10, 4},
		{100, 10},
	}
	for _, tt := range tests {
		if got := occupancyBins(tt.n); got != tt.want {
			t.Errorf("occupancyBins(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestPlotBinOccupancy_Empty(t *testing.T) {
	ws := testWorkingSet(t, 0)
	path := filepath.Join(t.TempDir(), "occupancy.png")
	if err := PlotBinOccupancy(ws, path); !errors.Is(err, ErrNothingToPlot) {
		t.Errorf("expected ErrNothingToPlot, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("no file should be written for an empty tile")
	}
}

func TestRenderBinScatter(t *testing.T) {
	ws := testWorkingSet(t, 100)

	var buf bytes.Buffer
	if err := RenderBinScatter(&buf, ws, 10); err != nil {
		t.Fatalf("RenderBinScatter: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "echarts") {
		t.Error("expected echarts script in output")
	}
	if !strings.Contains(html, "shown=10 stride=10") {
		t.Error("expected the point cap to be applied")
	}
}

func TestRenderBinScatter_DefaultCap(t *testing.T) {
	ws := testWorkingSet(t, 5)

	var buf bytes.Buffer
	if err := RenderBinScatter(&buf, ws, 0); err != nil {
		t.Fatalf("RenderBinScatter: %v", err)
	}
	if !strings.Contains(buf.String(), "shown=5 stride=1") {
		t.Error("expected every point to be drawn")
	}
}

func TestGenerateColors(t *testing.T) {
	if got := generateColors(0); got != nil {
		t.Errorf("generateColors(0) = %v, want nil", got)
	}
	colors := generateColors(6)
	if len(colors) != 6 {
		t.Fatalf("len = %d, want 6", len(colors))
	}
	if colors[0] == colors[3] {
		t.Error("expected distinct colors")
	}
}
