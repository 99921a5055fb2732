package l3bins

import (
	"testing"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	ws := tenByTen()
	ws.Points = []l1points.Point{
		{X: 0.5, Y: 9.5, Z: 100},
		{X: 0.6, Y: 9.4, Z: 102},
		{X: 0.7, Y: 9.3, Z: 104},
		{X: 5.5, Y: 5.5, Z: 110},
		{X: 9.5, Y: 0.5, Z: 98},
	}
	BinAndSort(ws)
	s := Summarize(ws)

	assert.Equal(t, 5, s.Points)
	assert.Equal(t, 3, s.OccupiedBins)
	assert.Equal(t, uint64(100), s.GridCells)
	assert.Equal(t, 98.0, s.MinZ)
	assert.Equal(t, 110.0, s.MaxZ)
	assert.InDelta(t, 102.8, s.MeanZ, 1e-9)
	assert.Equal(t, 3, s.MaxPerBin)
	assert.InDelta(t, 5.0/3.0, s.MeanPerBin, 1e-9)
	assert.Equal(t, 1.0, s.MedianPerBin)
	assert.Equal(t, []float64{3, 1, 1}, s.BinOccupancies)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(tenByTen())
	assert.Equal(t, 0, s.Points)
	assert.Equal(t, uint64(100), s.GridCells)
	assert.Nil(t, s.BinOccupancies)
}
