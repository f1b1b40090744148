package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/plot/vg"

	"github.com/san-kum/trajopt/internal/trajectory"
)

func TestPathSVG(t *testing.T) {
	traj := &trajectory.Trajectory{
		Steps: 2,
		X:     []float64{0, 0.1, 0.25},
		Y:     []float64{0, 0.2, 0.25},
	}

	svg := PathSVG(traj, 200, 200, "#B6594C")
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatal("expected a complete svg document")
	}
	if strings.Count(svg, " L") != 2 {
		t.Errorf("expected 2 line segments, got %d", strings.Count(svg, " L"))
	}
	if strings.Count(svg, "<circle") != 2 {
		t.Error("expected start and goal markers")
	}
}

func TestSeriesSVGBreaksAtNaN(t *testing.T) {
	svg := SeriesSVG([]float64{0, 1, 2, 3}, []float64{math.NaN(), 1, -1, 1}, 100, 50, "#37514D")

	if strings.Count(svg, "M") != 1 {
		t.Errorf("expected one subpath, got %d", strings.Count(svg, "M"))
	}
	if strings.Count(svg, " L") != 2 {
		t.Errorf("expected 2 segments, got %d", strings.Count(svg, " L"))
	}
	if strings.Contains(svg, "NaN") {
		t.Error("NaN leaked into the svg")
	}
}

func TestPolylineTooShort(t *testing.T) {
	if svg := SeriesSVG([]float64{0}, []float64{1}, 10, 10, "#fff"); svg != "" {
		t.Error("expected empty output for a single point")
	}
}

func TestFigures(t *testing.T) {
	traj := &trajectory.Trajectory{
		Steps:    2,
		Time:     []float64{0, 0.5, 1},
		X:        []float64{0, 0.1, 0.25},
		Y:        []float64{0, 0.2, 0.25},
		Heading:  []float64{0, 0.1, 0.2},
		Speed:    []float64{1, -1},
		Steering: []float64{0.2, -0.2},
	}

	figs := Figures(traj, 120, 80)
	for _, name := range []string{"path.svg", "heading.svg", "speed.svg", "steering.svg"} {
		if figs[name] == "" {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestFigurePNG(t *testing.T) {
	traj := &trajectory.Trajectory{
		Steps:    2,
		Horizon:  1,
		Time:     []float64{0, 0.5, 1},
		X:        []float64{0, 0.1, 0.25},
		Y:        []float64{0, 0.2, 0.25},
		Heading:  []float64{0, 0.1, 0.2},
		Speed:    []float64{1, -1},
		Steering: []float64{0.2, -0.2},
	}

	var buf bytes.Buffer
	if err := FigurePNG(&buf, traj, 4*vg.Inch, 3*vg.Inch); err != nil {
		t.Fatalf("FigurePNG: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("expected a png signature")
	}
}

func TestFigurePNGNeedsPath(t *testing.T) {
	var buf bytes.Buffer
	if err := FigurePNG(&buf, &trajectory.Trajectory{X: []float64{0}, Y: []float64{0}}, vg.Inch, vg.Inch); err == nil {
		t.Error("expected an error for a single-point trajectory")
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written on error")
	}
}
