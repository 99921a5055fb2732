// Package monitor renders diagnostic plots of tiling runs: the tile
// decomposition, per-tile bin occupancy, and an interactive scatter of a
// tile's binned points.
package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/lidar/l2tiles"
	"github.com/banshee-data/bcal/internal/lidar/l3bins"
	"github.com/banshee-data/bcal/internal/lidar/pipeline"
)

// ErrNothingToPlot is returned when the input has no data to draw.
var ErrNothingToPlot = errors.New("nothing to plot")

var failedColor = color.RGBA{R: 220, G: 30, B: 30, A: 255}

// PlotDecomposition writes a PNG of the tile outlines of d to path. Each tile
// is labelled with its index and, when results holds an entry for it, its
// point count or "failed".
func PlotDecomposition(d *l2tiles.Decomposition, results []pipeline.TileResult, path string) error {
	if d == nil || d.Len() == 0 {
		return ErrNothingToPlot
	}
	byIndex := make(map[int]pipeline.TileResult, len(results))
	for _, r := range results {
		byIndex[r.Tile.Index] = r
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Tile decomposition: %d tiles (%dx%d)", d.Len(), d.Side, d.Side)
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	colors := generateColors(d.Len())
	centres := make(plotter.XYs, 0, d.Len())
	labels := make([]string, 0, d.Len())

	for i, tile := range d.Tiles {
		outline, err := plotter.NewLine(envelopeRing(tile.Envelope))
		if err != nil {
			return err
		}
		outline.Color = colors[i]
		outline.Width = vg.Points(1.5)

		label := fmt.Sprintf("#%d", tile.Index)
		if r, ok := byIndex[tile.Index]; ok {
			if r.Failed() {
				label += " failed"
				outline.Color = failedColor
				outline.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			} else {
				label += fmt.Sprintf(" %d pts", r.Summary.Points)
			}
		}
		p.Add(outline)

		e := tile.Envelope
		centres = append(centres, plotter.XY{X: (e.MinX + e.MaxX) / 2, Y: (e.MinY + e.MaxY) / 2})
		labels = append(labels, label)
	}

	names, err := plotter.NewLabels(plotter.XYLabels{XYs: centres, Labels: labels})
	if err != nil {
		return err
	}
	p.Add(names)

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save decomposition plot: %w", err)
	}
	return nil
}

// PlotBinOccupancy writes a PNG histogram of points per occupied bin for a
// sorted working set.
func PlotBinOccupancy(ws *l3bins.WorkingSet, path string) error {
	sum := l3bins.Summarize(ws)
	if len(sum.BinOccupancies) == 0 {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Tile %d: %d points in %d of %d bins", ws.Tile.Index, sum.Points, sum.OccupiedBins, sum.GridCells)
	p.X.Label.Text = "Points per bin"
	p.Y.Label.Text = "Bins"

	hist, err := plotter.NewHist(plotter.Values(sum.BinOccupancies), occupancyBins(len(sum.BinOccupancies)))
	if err != nil {
		return err
	}
	hist.FillColor = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	p.Add(hist)

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save occupancy plot: %w", err)
	}
	return nil
}

// occupancyBins picks a histogram bin count for n occupied bins. NewHist
// rejects counts below one.
func occupancyBins(n int) int {
	return max(1, int(math.Ceil(math.Sqrt(float64(n)))))
}

// envelopeRing returns the closed outline of e.
func envelopeRing(e l1points.Envelope) plotter.XYs {
	return plotter.XYs{
		{X: e.MinX, Y: e.MinY},
		{X: e.MaxX, Y: e.MinY},
		{X: e.MaxX, Y: e.MaxY},
		{X: e.MinX, Y: e.MaxY},
		{X: e.MinX, Y: e.MinY},
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	return nil
}

// generateColors creates a palette of distinct colors for tile outlines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t += 1
	case t > 1:
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
