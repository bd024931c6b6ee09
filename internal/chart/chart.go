// Package chart draws grids of measurement series against time or drive
// frequency.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/roman-kulish/wpt-rig/internal/measure"
	"github.com/roman-kulish/wpt-rig/internal/record"
)

const (
	DefaultWidth  = 10 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

// ErrNoData is returned when none of the panels has a point to draw
var ErrNoData = errors.New("no data to chart")

// Colors of the panels, in order
var palette = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}, // blue
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}, // orange
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}, // green
	color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 0xff}, // purple
}

// Columns charted by default, the force column is found by its label
var defaultColumns = []string{
	"RX Voltage RMS (V)",
	"TX Voltage Peak-to-Peak (V)",
	"TX Current Peak-to-Peak (A)",
}

// Panel is one series of the chart
type Panel struct {
	Title  string
	YLabel string
	X, Y   []float64
}

// Chart is a grid of panels sharing the X axis
type Chart struct {
	Title  string
	XLabel string
	Points bool // Mark every point, for sparse series such as sweeps

	Panels []Panel
}

// Columns returns the columns charted for a log with the given header: the
// force, the RX voltage and the TX swings. Missing columns are left out.
func Columns(header []string) []string {
	var columns []string
	for _, name := range header {
		if strings.HasPrefix(name, measure.ForceLabel+" (") {
			columns = append(columns, name)
			break
		}
	}

	for _, name := range defaultColumns {
		for _, h := range header {
			if h == name {
				columns = append(columns, name)
				break
			}
		}
	}
	return columns
}

// FromTable builds a chart of columns against xColumn
func FromTable(t *record.Table, title, xColumn string, columns []string) (*Chart, error) {
	x, err := t.Column(xColumn)
	if err != nil {
		return nil, err
	}

	c := Chart{Title: title, XLabel: xColumn}
	for _, name := range columns {
		if !t.Has(name) {
			continue
		}

		y, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		c.Add(name, x, y)
	}
	return &c, nil
}

// FromRows builds a chart of columns against xColumn from in-memory rows
func FromRows(rows []record.Row, title, xColumn string, columns []string) *Chart {
	c := Chart{Title: title, XLabel: xColumn}

	for _, name := range columns {
		x := make([]float64, 0, len(rows))
		y := make([]float64, 0, len(rows))
		for _, row := range rows {
			xv, okx := row.Get(xColumn)
			yv, oky := row.Get(name)
			if okx && oky {
				x = append(x, xv)
				y = append(y, yv)
			}
		}
		if len(y) > 0 {
			c.Add(name, x, y)
		}
	}
	return &c
}

// Add appends a panel for the named column. The panel title is the column
// name without its unit.
func (c *Chart) Add(column string, x, y []float64) {
	title := column
	if i := strings.LastIndex(column, " ("); i > 0 {
		title = column[:i]
	}
	c.Panels = append(c.Panels, Panel{Title: title, YLabel: column, X: x, Y: y})
}

// Save renders the chart to a PNG file
func (c *Chart) Save(path string, width, height vg.Length) error {
	img, err := c.Draw(width, height)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing chart: %w", err)
	}
	return f.Close()
}

// Draw renders the chart onto a new image canvas
func (c *Chart) Draw(width, height vg.Length) (*vgimg.Canvas, error) {
	var plots []*plot.Plot
	for i, panel := range c.Panels {
		p, err := c.plot(panel, palette[i%len(palette)])
		if err != nil {
			return nil, fmt.Errorf("plotting %s: %w", panel.Title, err)
		}
		if p != nil {
			plots = append(plots, p)
		}
	}
	if len(plots) == 0 {
		return nil, ErrNoData
	}

	rows, cols := layout(len(plots))
	grid := make([][]*plot.Plot, rows)
	for j := range grid {
		grid[j] = plots[j*cols : (j+1)*cols]
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows:      rows,
		Cols:      cols,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 10,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 4,
	}

	canvases := plot.Align(grid, tiles, dc)
	for j := range grid {
		for i := range grid[j] {
			grid[j][i].Draw(canvases[j][i])
		}
	}

	if c.Title != "" {
		sty := plots[0].Title.TextStyle
		sty.Font.Size = vg.Points(14)
		sty.XAlign = text.XCenter
		sty.YAlign = text.YTop
		dc.FillText(sty, vg.Point{X: width / 2, Y: height - vg.Millimeter*2}, c.Title)
	}

	return img, nil
}

// plot returns nil when the panel has no finite point
func (c *Chart) plot(panel Panel, lineColor color.Color) (*plot.Plot, error) {
	xys := make(plotter.XYs, 0, len(panel.Y))
	for i := range panel.Y {
		if i >= len(panel.X) {
			break
		}
		x, y := panel.X[i], panel.Y[i]
		if !finite(x) || !finite(y) {
			continue
		}
		xys = append(xys, plotter.XY{X: x, Y: y})
	}
	if len(xys) == 0 {
		return nil, nil
	}

	p := plot.New()
	p.Title.Text = panel.Title
	p.X.Label.Text = c.XLabel
	p.Y.Label.Text = panel.YLabel
	p.Add(plotter.NewGrid())

	if c.Points {
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, err
		}
		line.Color = lineColor
		points.Color = lineColor
		points.Shape = draw.CircleGlyph{}
		points.Radius = vg.Points(1.5)
		p.Add(line, points)
		return p, nil
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.Color = lineColor
	p.Add(line)

	return p, nil
}

// layout returns the grid for n panels, 2x2 for the usual four
func layout(n int) (rows, cols int) {
	switch {
	case n == 1 || n == 3:
		return n, 1
	case n%2 == 0:
		return n / 2, 2
	default:
		return n, 1
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
