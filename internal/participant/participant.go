// Package participant provides participants that do not need a physical
// haptic device: a static handle, a PID-driven scripted agent and a
// keyboard-driven handle for the terminal view.
package participant

import (
	"math/rand"
	"sort"

	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/integrators"
)

// Static holds its handle at a fixed position and remembers the forces it
// was sent.
type Static struct {
	name     string
	Position float64
	Forces   []float64
	Views    int
}

func NewStatic(name string, pos float64) *Static {
	return &Static{name: name, Position: pos}
}

func (s *Static) Name() string { return s.name }

func (s *Static) Action(dynamo.View)      { s.Views++ }
func (s *Static) HandlePosition() float64 { return s.Position }

func (s *Static) SendHandleForce(f float64) {
	s.Forces = append(s.Forces, f)
}

// Target picks what a scripted agent tries to follow in its view: the
// named trajectory, else the named entity, else the first trajectory in
// name order, else Home.
type Target struct {
	Trajectory string
	Entity     string
	Offset     float64
	Home       float64
}

func (t Target) resolve(v dynamo.View) float64 {
	if tr, ok := v.Trajectories[t.Trajectory]; ok && t.Trajectory != "" {
		return tr.Now + t.Offset
	}
	if e, ok := v.Entities[t.Entity]; ok && t.Entity != "" {
		return e.State.Position + t.Offset
	}
	if len(v.Trajectories) > 0 {
		names := make([]string, 0, len(v.Trajectories))
		for name := range v.Trajectories {
			names = append(names, name)
		}
		sort.Strings(names)
		return v.Trajectories[names[0]].Now + t.Offset
	}
	return t.Home
}

// Bot is a scripted participant with a simulated handle. Each tick it reads
// its target from the view and drives the handle with a PID actuator
// against the force fed back by the task.
type Bot struct {
	name    string
	target  Target
	pid     *PID
	mass    float64
	damping float64
	dt      float64
	noise   float64
	rng     *rand.Rand

	pos      float64
	vel      float64
	feedback float64
	lastTime float64
}

type BotConfig struct {
	Target   Target
	Kp       float64
	Ki       float64
	Kd       float64
	Mass     float64
	Damping  float64
	Noise    float64
	Timestep float64
	Start    float64
}

func NewBot(name string, cfg BotConfig, rng *rand.Rand) *Bot {
	if cfg.Mass <= 0 {
		cfg.Mass = 1
	}
	return &Bot{
		name:    name,
		target:  cfg.Target,
		pid:     NewPID(cfg.Kp, cfg.Ki, cfg.Kd),
		mass:    cfg.Mass,
		damping: cfg.Damping,
		dt:      cfg.Timestep,
		noise:   cfg.Noise,
		rng:     rng,
		pos:     cfg.Start,
	}
}

func (b *Bot) Name() string { return b.name }

// HandlePosition is the simulated handle position in the bot's own frame.
func (b *Bot) HandlePosition() float64 { return b.pos }

func (b *Bot) Action(v dynamo.View) {
	// Task time restarts with every task; the handle itself carries over.
	if v.TaskTime < b.lastTime {
		b.pid.Reset()
	}
	b.lastTime = v.TaskTime

	force := b.feedback - b.damping*b.vel
	force += b.pid.Compute(b.target.resolve(v), b.pos, v.TaskTime)
	if b.noise > 0 && b.rng != nil {
		force += b.rng.NormFloat64() * b.noise
	}
	b.pos, b.vel = integrators.SemiImplicitEuler(b.pos, b.vel, force/b.mass, b.dt)
}

func (b *Bot) SendHandleForce(f float64) {
	b.feedback = f
}

// Manual is moved by discrete nudges, e.g. from key presses.
type Manual struct {
	name     string
	pos      float64
	step     float64
	limit    float64
	Force    float64
	LastView dynamo.View
}

func NewManual(name string, step, limit float64) *Manual {
	return &Manual{name: name, step: step, limit: limit}
}

func (m *Manual) Name() string            { return m.name }
func (m *Manual) HandlePosition() float64 { return m.pos }

// Nudge moves the handle by n steps, staying within the travel limit.
func (m *Manual) Nudge(n int) {
	m.pos += float64(n) * m.step
	if m.limit > 0 {
		if m.pos > m.limit {
			m.pos = m.limit
		} else if m.pos < -m.limit {
			m.pos = -m.limit
		}
	}
}

func (m *Manual) Action(v dynamo.View) { m.LastView = v }

func (m *Manual) SendHandleForce(f float64) {
	m.Force = f
}
