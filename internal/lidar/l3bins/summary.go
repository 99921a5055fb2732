package l3bins

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a binned working set for logs, the run ledger and plots.
type Summary struct {
	Points         int
	OccupiedBins   int
	GridCells      uint64
	MinZ, MaxZ     float64
	MeanZ          float64
	MeanPerBin     float64
	MaxPerBin      int
	MedianPerBin   float64
	BinOccupancies []float64 // points per occupied bin, in bin order
}

// Summarize computes a Summary for a sorted working set. An empty set
// returns a zero Summary with GridCells filled in.
func Summarize(ws *WorkingSet) Summary {
	s := Summary{
		Points:    len(ws.Points),
		GridCells: Grid(ws.Envelope, ws.Spacing).Cells(),
	}
	if len(ws.Points) == 0 {
		return s
	}

	z := make([]float64, len(ws.Points))
	for i, p := range ws.Points {
		z[i] = p.Z
	}
	s.MinZ = floats.Min(z)
	s.MaxZ = floats.Max(z)
	s.MeanZ = stat.Mean(z, nil)

	ranges := Ranges(ws.Points)
	s.OccupiedBins = len(ranges)
	s.BinOccupancies = make([]float64, len(ranges))
	for i, r := range ranges {
		s.BinOccupancies[i] = float64(r.Len())
		if r.Len() > s.MaxPerBin {
			s.MaxPerBin = r.Len()
		}
	}
	s.MeanPerBin = stat.Mean(s.BinOccupancies, nil)

	sorted := make([]float64, len(s.BinOccupancies))
	copy(sorted, s.BinOccupancies)
	sort.Float64s(sorted)
	s.MedianPerBin = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return s
}
