package dynamo

import "github.com/san-kum/dyadsim/internal/integrators"

// Entity is a simulated point. Entities with positive mass integrate their
// queued force every step; entities with zero or negative mass are never
// integrated and only move when a constraint or role writes them.
type Entity struct {
	name       string
	mass       float64
	appearance Appearance
	record     bool

	initial State
	state   State
	force   float64
	pinned  bool
}

type EntityOption func(*Entity)

func WithInitialState(s State) EntityOption {
	return func(e *Entity) { e.initial = s }
}

func WithInitialPosition(p float64) EntityOption {
	return func(e *Entity) { e.initial.Position = p }
}

func WithAppearance(a Appearance) EntityOption {
	return func(e *Entity) { e.appearance = a }
}

// WithoutRecording keeps the entity out of persisted rows. It still
// appears in views.
func WithoutRecording() EntityOption {
	return func(e *Entity) { e.record = false }
}

func NewEntity(name string, mass float64, opts ...EntityOption) *Entity {
	e := &Entity{name: name, mass: mass, record: true}
	for _, opt := range opts {
		opt(e)
	}
	e.Reset()
	return e
}

func (e *Entity) Name() string           { return e.name }
func (e *Entity) Mass() float64          { return e.mass }
func (e *Entity) Appearance() Appearance { return e.appearance }
func (e *Entity) Recorded() bool         { return e.record }
func (e *Entity) State() State           { return e.state }
func (e *Entity) Position() float64      { return e.state.Position }
func (e *Entity) Velocity() float64      { return e.state.Velocity }

// QueuedForce is the force accumulated since the last step.
func (e *Entity) QueuedForce() float64 { return e.force }

// Integrated reports whether Step ever computes an acceleration.
func (e *Entity) Integrated() bool { return e.mass > 0 }

// Pinned reports whether the position was overridden this tick.
func (e *Entity) Pinned() bool { return e.pinned }

func (e *Entity) Reset() {
	e.state = e.initial
	e.force = 0
	e.pinned = false
}

func (e *Entity) AddForce(f float64) {
	e.force += f
}

// ClearForce empties the accumulator without integrating it.
func (e *Entity) ClearForce() {
	e.force = 0
}

// Pin overrides the position for the current tick. The next Step leaves
// the entity where it was put.
func (e *Entity) Pin(position float64) {
	e.state.Position = position
	e.pinned = true
}

// Clamp writes a position without pinning; integration still follows.
func (e *Entity) Clamp(position float64) {
	e.state.Position = position
}

func (e *Entity) SetAcceleration(a float64) {
	e.state.Acceleration = a
}

// Step consumes the queued force and advances the state by dt.
func (e *Entity) Step(dt float64) {
	force := e.force
	e.force = 0

	if e.pinned {
		e.pinned = false
		return
	}
	if e.mass <= 0 {
		return
	}

	e.state.Acceleration = force / e.mass
	e.state.Position, e.state.Velocity = integrators.SemiImplicitEuler(
		e.state.Position, e.state.Velocity, e.state.Acceleration, dt)
}

func (e *Entity) View() EntityView {
	return EntityView{State: e.state, Appearance: e.appearance}
}
