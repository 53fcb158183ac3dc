package metrics

import (
	"math"

	"github.com/san-kum/dyadsim/internal/dynamo"
)

// TrackingError is the RMS distance between an entity and the current
// sample of a reference trajectory.
type TrackingError struct {
	entity     string
	trajectory string
	sumSq      float64
	samples    int
}

func NewTrackingError(entity, trajectory string) *TrackingError {
	return &TrackingError{entity: entity, trajectory: trajectory}
}

func (m *TrackingError) Name() string {
	return "tracking_error_" + m.entity
}

func (m *TrackingError) Observe(v dynamo.View) {
	e, ok := v.Entities[m.entity]
	if !ok {
		return
	}
	tr, ok := v.Trajectories[m.trajectory]
	if !ok {
		return
	}
	d := e.State.Position - tr.Now
	m.sumSq += d * d
	m.samples++
}

func (m *TrackingError) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sumSq / float64(m.samples))
}

func (m *TrackingError) Reset() {
	m.sumSq = 0
	m.samples = 0
}

// PathLength is the total distance an entity travelled.
type PathLength struct {
	entity string
	total  float64
	last   float64
	seen   bool
}

func NewPathLength(entity string) *PathLength {
	return &PathLength{entity: entity}
}

func (p *PathLength) Name() string { return "path_length_" + p.entity }

func (p *PathLength) Observe(v dynamo.View) {
	e, ok := v.Entities[p.entity]
	if !ok {
		return
	}
	if p.seen {
		p.total += math.Abs(e.State.Position - p.last)
	}
	p.last = e.State.Position
	p.seen = true
}

func (p *PathLength) Value() float64 { return p.total }

func (p *PathLength) Reset() {
	p.total = 0
	p.last = 0
	p.seen = false
}
