package dynamo

import "math"

// TimeEpsilon absorbs floating point error when comparing elapsed time
// against durations expressed in seconds.
const TimeEpsilon = 1e-9

type State struct {
	Position     float64 `json:"position" yaml:"position"`
	Velocity     float64 `json:"velocity" yaml:"velocity"`
	Acceleration float64 `json:"acceleration" yaml:"acceleration"`
}

func (s State) IsValid() bool {
	for _, v := range [3]float64{s.Position, s.Velocity, s.Acceleration} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Negate mirrors the state through the origin.
func (s State) Negate() State {
	return State{Position: -s.Position, Velocity: -s.Velocity, Acceleration: -s.Acceleration}
}

// Appearance is display metadata. The engine passes it through untouched;
// holders must treat it as read-only.
type Appearance map[string]any

// WriteKind describes how a constraint mutates its target.
type WriteKind int

const (
	// WriteForce accumulates force; any number of force writers compose.
	WriteForce WriteKind = iota
	// WriteOverride replaces the position and pins the entity for the tick.
	WriteOverride
	// WriteClamp restricts an already written position.
	WriteClamp
)

func (k WriteKind) String() string {
	switch k {
	case WriteForce:
		return "force"
	case WriteOverride:
		return "override"
	case WriteClamp:
		return "clamp"
	default:
		return "unknown"
	}
}

type Constraint interface {
	Apply()
	Target() *Entity
	References() []*Entity
	Writes() WriteKind
}

// Condition is checked once per tick with the tick interval.
type Condition interface {
	Check(dt float64) bool
	Entities() []*Entity
}

// Resetter is implemented by conditions that carry history between ticks.
type Resetter interface {
	Reset()
}
