package metrics

import (
	"math"

	"github.com/san-kum/trajopt/internal/dynamo"
	"github.com/san-kum/trajopt/internal/models"
)

// PathLength sums the planar distance between consecutive samples.
type PathLength struct {
	name   string
	length float64
	last   dynamo.State
}

func NewPathLength() *PathLength {
	return &PathLength{name: "path_length"}
}

func (p *PathLength) Name() string { return p.name }

func (p *PathLength) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if p.last != nil {
		p.length += math.Hypot(x[models.X]-p.last[models.X], x[models.Y]-p.last[models.Y])
	}
	p.last = x.Clone()
}

func (p *PathLength) Value() float64 { return p.length }

func (p *PathLength) Reset() {
	p.length = 0
	p.last = nil
}

// Reversals counts direction changes of the speed command. Speeds with
// magnitude below deadband carry the previous direction.
type Reversals struct {
	name     string
	deadband float64
	dir      float64
	count    int
}

func NewReversals(deadband float64) *Reversals {
	return &Reversals{name: "reversals", deadband: deadband}
}

func (r *Reversals) Name() string { return r.name }

func (r *Reversals) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(u) == 0 || math.Abs(u[models.Speed]) <= r.deadband {
		return
	}
	dir := math.Copysign(1, u[models.Speed])
	if r.dir != 0 && dir != r.dir {
		r.count++
	}
	r.dir = dir
}

func (r *Reversals) Value() float64 { return float64(r.count) }

func (r *Reversals) Reset() {
	r.dir = 0
	r.count = 0
}

// TotalTurn accumulates the absolute heading change.
type TotalTurn struct {
	name  string
	total float64
	last  float64
	seen  bool
}

func NewTotalTurn() *TotalTurn {
	return &TotalTurn{name: "total_turn"}
}

func (h *TotalTurn) Name() string { return h.name }

func (h *TotalTurn) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if h.seen {
		h.total += math.Abs(x[models.Heading] - h.last)
	}
	h.last = x[models.Heading]
	h.seen = true
}

func (h *TotalTurn) Value() float64 { return h.total }

func (h *TotalTurn) Reset() {
	h.total = 0
	h.seen = false
}
