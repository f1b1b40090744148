package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/san-kum/trajopt/internal/trajectory"
)

var (
	pathColor     = color.RGBA{R: 0xB6, G: 0x59, B: 0x4C, A: 0xff}
	headingColor  = color.RGBA{R: 0x90, G: 0xAE, B: 0xB2, A: 0xff}
	speedColor    = color.RGBA{R: 0x37, G: 0x51, B: 0x4D, A: 0xff}
	steeringColor = color.RGBA{R: 0xDD, G: 0x8E, B: 0x75, A: 0xff}
)

// FigurePNG lays out the path, heading, speed and steering panels on a
// 2×2 grid and writes the result as PNG.
func FigurePNG(w io.Writer, t *trajectory.Trajectory, width, height vg.Length) error {
	if t == nil || len(t.X) < 2 {
		return errors.New("export: trajectory has no path to draw")
	}
	speed, steering := t.AlignedControls()

	path, err := linePlot("path", "x", "y", t.X, t.Y, pathColor)
	if err != nil {
		return err
	}
	heading, err := linePlot("heading", "time", "rad", t.Time, t.Heading, headingColor)
	if err != nil {
		return err
	}
	sp, err := linePlot("speed", "time", "v", t.Time, speed, speedColor)
	if err != nil {
		return err
	}
	st, err := linePlot("steering", "time", "rad", t.Time, steering, steeringColor)
	if err != nil {
		return err
	}

	ends, err := plotter.NewScatter(plotter.XYs{{X: t.X[0], Y: t.Y[0]}, {X: t.X[len(t.X)-1], Y: t.Y[len(t.Y)-1]}})
	if err != nil {
		return err
	}
	ends.GlyphStyle.Shape = draw.CircleGlyph{}
	ends.GlyphStyle.Radius = vg.Points(3)
	path.Add(ends)
	path.X.Min, path.X.Max, path.Y.Min, path.Y.Max = squareRange(path)

	panels := [][]*plot.Plot{{path, heading}, {sp, st}}

	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(150))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 2, Cols: 2,
		PadX: vg.Millimeter, PadY: vg.Millimeter,
		PadTop: vg.Points(2), PadBottom: vg.Points(2),
		PadLeft: vg.Points(2), PadRight: vg.Points(2),
	}
	canvases := plot.Align(panels, tiles, dc)
	for i := range panels {
		for j, p := range panels[i] {
			p.Draw(canvases[i][j])
		}
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("export: write png: %w", err)
	}
	return nil
}

// linePlot draws ys against xs, skipping NaN samples.
func linePlot(title, xlabel, ylabel string, xs, ys []float64, c color.Color) (*plot.Plot, error) {
	pts := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if i >= len(ys) || math.IsNaN(ys[i]) || math.IsNaN(xs[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("export: %s has no samples", title)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Color = c
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	return p, nil
}

// squareRange widens the shorter axis so x and y share one scale.
func squareRange(p *plot.Plot) (xmin, xmax, ymin, ymax float64) {
	xmin, xmax, ymin, ymax = p.X.Min, p.X.Max, p.Y.Min, p.Y.Max
	span := math.Max(xmax-xmin, ymax-ymin)
	if span == 0 {
		span = 1
	}
	cx, cy := (xmin+xmax)/2, (ymin+ymax)/2
	return cx - span/2, cx + span/2, cy - span/2, cy + span/2
}
