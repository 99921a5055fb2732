package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/bcal/internal/lidar/l3bins"
	"github.com/banshee-data/bcal/internal/lidar/monitor"
	"github.com/banshee-data/bcal/internal/monitoring"
)

// tileReporter is the consumer used by the CLI in place of a ground
// classifier. It logs each tile's summary and optionally writes per-tile
// plots.
type tileReporter struct {
	plotDir string
}

func (r *tileReporter) Consume(ctx context.Context, ws *l3bins.WorkingSet) error {
	s := l3bins.Summarize(ws)
	monitoring.Logf("tile %d %v: %d points in %d/%d bins, z=[%.2f, %.2f] mean=%.2f, per bin mean=%.1f median=%.1f max=%d",
		ws.Tile.Index, ws.Envelope, s.Points, s.OccupiedBins, s.GridCells,
		s.MinZ, s.MaxZ, s.MeanZ, s.MeanPerBin, s.MedianPerBin, s.MaxPerBin)

	if r.plotDir == "" || ws.Len() == 0 {
		return nil
	}

	occupancy := filepath.Join(r.plotDir, fmt.Sprintf("tile_%03d_occupancy.png", ws.Tile.Index))
	if err := monitor.PlotBinOccupancy(ws, occupancy); err != nil && !errors.Is(err, monitor.ErrNothingToPlot) {
		return err
	}

	f, err := os.Create(filepath.Join(r.plotDir, fmt.Sprintf("tile_%03d_bins.html", ws.Tile.Index)))
	if err != nil {
		return fmt.Errorf("create scatter: %w", err)
	}
	if err := monitor.RenderBinScatter(f, ws, monitor.DefaultScatterPoints); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
