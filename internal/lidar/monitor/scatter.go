package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/bcal/internal/lidar/l1points"
	"github.com/banshee-data/bcal/internal/lidar/l3bins"
)

// DefaultScatterPoints caps how many points RenderBinScatter draws.
const DefaultScatterPoints = 20000

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderBinScatter writes an HTML scatter of the working set's points to w,
// coloured by bin index. At most maxPoints are drawn, taken at an even
// stride; maxPoints <= 0 uses DefaultScatterPoints.
func RenderBinScatter(w io.Writer, ws *l3bins.WorkingSet, maxPoints int) error {
	if maxPoints <= 0 {
		maxPoints = DefaultScatterPoints
	}
	n := len(ws.Points)
	stride := 1
	if n > maxPoints {
		stride = (n + maxPoints - 1) / maxPoints
	}

	data := make([]opts.ScatterData, 0, n/stride+1)
	var maxBin uint32
	for i := 0; i < n; i += stride {
		p := ws.Points[i]
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Bin}})
		if p.Bin != l1points.BinUnset && p.Bin > maxBin {
			maxBin = p.Bin
		}
	}

	e := ws.Envelope
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("Tile %d bins", ws.Tile.Index), Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Tile %d", ws.Tile.Index), Subtitle: fmt.Sprintf("points=%d shown=%d stride=%d spacing=%g", n, len(data), stride, ws.Spacing)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: e.MinX, Max: e.MaxX, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: e.MinY, Max: e.MaxY, Name: "Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxBin),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render bin scatter: %w", err)
	}
	return nil
}
