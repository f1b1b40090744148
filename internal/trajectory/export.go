package trajectory

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

var csvHeader = []string{"time", "x", "y", "heading", "speed", "steering"}

// WriteJSON encodes the unaligned series.
func (t *Trajectory) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

func ReadJSON(r io.Reader) (*Trajectory, error) {
	var t Trajectory
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("trajectory: decode: %w", err)
	}
	if t.Steps <= 0 {
		return nil, fmt.Errorf("trajectory: decode: steps must be positive, got %d", t.Steps)
	}
	series := []struct {
		name string
		got  int
		want int
	}{
		{"time", len(t.Time), t.Steps + 1},
		{"x", len(t.X), t.Steps + 1},
		{"y", len(t.Y), t.Steps + 1},
		{"heading", len(t.Heading), t.Steps + 1},
		{"speed", len(t.Speed), t.Steps},
		{"steering", len(t.Steering), t.Steps},
	}
	for _, s := range series {
		if s.got != s.want {
			return nil, fmt.Errorf("trajectory: decode: %s has %d samples, want %d for %d steps", s.name, s.got, s.want, t.Steps)
		}
	}
	return &t, nil
}

// WriteCSV writes one row per grid point with the aligned controls; the
// control cells of the first row are empty.
func (t *Trajectory) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	speed, steering := t.AlignedControls()
	for k := 0; k <= t.Steps; k++ {
		row := []string{
			formatFloat(t.Time[k]),
			formatFloat(t.X[k]),
			formatFloat(t.Y[k]),
			formatFloat(t.Heading[k]),
			formatFloat(speed[k]),
			formatFloat(steering[k]),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
