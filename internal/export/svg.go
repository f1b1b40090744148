// Package export renders a trajectory as standalone SVG figures and a
// four-panel PNG summary.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/trajopt/internal/trajectory"
)

type point struct{ X, Y float64 }

// PathSVG draws the planned x-y path with start and goal markers. Both
// axes share one scale.
func PathSVG(t *trajectory.Trajectory, width, height int, strokeColor string) string {
	points := make([]point, len(t.X))
	for i := range t.X {
		points[i] = point{t.X[i], t.Y[i]}
	}
	return polyline(points, width, height, strokeColor, true, true)
}

// SeriesSVG draws one time series against the trajectory's time grid.
// NaN samples break the line, so aligned controls start at the second
// grid point.
func SeriesSVG(time, values []float64, width, height int, strokeColor string) string {
	points := make([]point, 0, len(values))
	for i, v := range values {
		points = append(points, point{time[i], v})
	}
	return polyline(points, width, height, strokeColor, false, false)
}

func polyline(points []point, width, height int, strokeColor string, square, markers bool) string {
	if len(points) < 2 {
		return ""
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	if math.IsInf(minX, 1) {
		return ""
	}

	// Add padding
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	if square {
		rangeX = math.Max(rangeX, rangeY)
		rangeY = rangeX
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	project := func(p point) (float64, float64) {
		x := (p.X - minX) / rangeX * float64(width)
		y := float64(height) - (p.Y-minY)/rangeY*float64(height)
		return x, y
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="`,
		width, height, width, height, strokeColor))

	pen := false
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			pen = false
			continue
		}
		x, y := project(p)
		if !pen {
			sb.WriteString(fmt.Sprintf("M%.1f,%.1f", x, y))
			pen = true
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}
	sb.WriteString(`"/>
`)

	if markers {
		sx, sy := project(points[0])
		gx, gy := project(points[len(points)-1])
		sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="4" fill="#00ff88"/>
<circle cx="%.1f" cy="%.1f" r="4" fill="#ff4444"/>
`, sx, sy, gx, gy))
	}

	sb.WriteString(`</svg>`)
	return sb.String()
}

// Figures returns the four panels of a solved maneuver keyed by file
// name: the path, heading over time, and the aligned speed and steering
// commands.
func Figures(t *trajectory.Trajectory, width, height int) map[string]string {
	speed, steering := t.AlignedControls()
	return map[string]string{
		"path.svg":     PathSVG(t, width, height, "#B6594C"),
		"heading.svg":  SeriesSVG(t.Time, t.Heading, width, height, "#90AEB2"),
		"speed.svg":    SeriesSVG(t.Time, speed, width, height, "#37514D"),
		"steering.svg": SeriesSVG(t.Time, steering, width, height, "#DD8E75"),
	}
}
