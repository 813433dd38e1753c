package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/talgya/hamlet/internal/engine"
)

// ErrNoData is returned when there is nothing to chart or export.
var ErrNoData = errors.New("no tick records")

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 4 * vg.Inch
)

type series struct {
	name  string
	value func(engine.TickRecord) float64
}

type chartDef struct {
	file   string
	title  string
	ylabel string
	lines  []series
}

var charts = []chartDef{
	{
		file:   "population.png",
		title:  "Population",
		ylabel: "people",
		lines: []series{
			{"population", func(r engine.TickRecord) float64 { return float64(r.Population) }},
			{"workers", func(r engine.TickRecord) float64 { return float64(r.Workers) }},
		},
	},
	{
		file:   "food.png",
		title:  "Food stock",
		ylabel: "units",
		lines: []series{
			{"food", func(r engine.TickRecord) float64 { return r.Food }},
		},
	},
	{
		file:   "demography.png",
		title:  "Births and deaths per tick",
		ylabel: "people",
		lines: []series{
			{"births", func(r engine.TickRecord) float64 { return float64(r.Births) }},
			{"deaths", func(r engine.TickRecord) float64 { return float64(r.Deaths) }},
		},
	},
}

// WriteCharts renders one PNG per chart into dir and returns their paths.
// The x axis is simulated years.
func WriteCharts(dir string, ticks []engine.TickRecord) ([]string, error) {
	if len(ticks) == 0 {
		return nil, ErrNoData
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var paths []string
	for _, c := range charts {
		p, err := c.render(ticks)
		if err != nil {
			return paths, fmt.Errorf("%s: %w", c.file, err)
		}
		path := filepath.Join(dir, c.file)
		if err := p.Save(chartWidth, chartHeight, path); err != nil {
			return paths, fmt.Errorf("%s: %w", c.file, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (c chartDef) render(ticks []engine.TickRecord) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = c.title
	p.X.Label.Text = "year"
	p.Y.Label.Text = c.ylabel
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	for i, s := range c.lines {
		pts := make(plotter.XYs, len(ticks))
		for j, rec := range ticks {
			pts[j].X = float64(rec.TickIndex) / engine.YearLength
			pts[j].Y = s.value(rec)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	return p, nil
}
