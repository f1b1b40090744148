package viz

import "math"

// Scale maps world coordinates onto a canvas' sub-pixel grid. Both axes
// share one scale so the drawn path keeps its shape.
type Scale struct {
	minX, minY float64
	perUnit    float64
	rows       int
}

// Fit returns a Scale that frames every point with a small margin.
func Fit(c *Canvas, xs, ys []float64) Scale {
	minX, maxX := bounds(xs)
	minY, maxY := bounds(ys)

	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	pad := span * 0.05
	span += 2 * pad

	w := float64(c.Width*2 - 1)
	h := float64(c.Height*4 - 1)
	return Scale{
		minX:    minX - pad,
		minY:    minY - pad,
		perUnit: math.Min(w, h) / span,
		rows:    c.Height*4 - 1,
	}
}

func (s Scale) Point(x, y float64) (int, int) {
	px := int(math.Round((x - s.minX) * s.perUnit))
	py := s.rows - int(math.Round((y-s.minY)*s.perUnit))
	return px, py
}

// DrawPath joins consecutive points with straight segments.
func (c *Canvas) DrawPath(s Scale, xs, ys []float64) {
	for i := 1; i < len(xs) && i < len(ys); i++ {
		x0, y0 := s.Point(xs[i-1], ys[i-1])
		x1, y1 := s.Point(xs[i], ys[i])
		c.DrawLine(x0, y0, x1, y1)
	}
	if len(xs) == 1 && len(ys) == 1 {
		c.Set(s.Point(xs[0], ys[0]))
	}
}

// PlotPath renders the planar path (xs[i], ys[i]) on a w×h cell canvas
// with both endpoints marked.
func PlotPath(xs, ys []float64, w, h int) string {
	c := NewCanvas(w, h)
	n := min(len(xs), len(ys))
	if n == 0 {
		return c.String()
	}
	s := Fit(c, xs, ys)
	c.DrawPath(s, xs, ys)
	c.Mark(s.Point(xs[0], ys[0]))
	c.Mark(s.Point(xs[n-1], ys[n-1]))
	return c.String()
}

func bounds(v []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if math.IsNaN(x) {
			continue
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}
