// Package task runs one deterministic mechanical simulation: entities
// coupled by constraints, driven by participants through roles, and ended
// by a duration or by end conditions.
package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/logging"
	"github.com/san-kum/dyadsim/internal/metrics"
	"github.com/san-kum/dyadsim/internal/role"
	"github.com/san-kum/dyadsim/internal/trajectory"
)

type Task struct {
	name     string
	timestep float64
	duration float64
	message  string
	params   map[string]any
	logger   *slog.Logger

	entities      []*dynamo.Entity
	pre           []dynamo.Constraint
	constraints   []dynamo.Constraint
	trajectories  []*trajectory.Reference
	endConditions []dynamo.Condition
	roles         []*role.Role
	metrics       []metrics.Metric

	status   Status
	ticks    int
	now      float64
	snapshot dynamo.View
	recorder Recorder
}

type Option func(*Task)

// WithDuration ends the task once that many seconds have elapsed. Zero
// leaves the task to its end conditions.
func WithDuration(d float64) Option {
	return func(t *Task) { t.duration = d }
}

func WithMessage(msg string) Option {
	return func(t *Task) { t.message = msg }
}

func WithParams(p map[string]any) Option {
	return func(t *Task) { t.params = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Task) {
		if l != nil {
			t.logger = l
		}
	}
}

func New(name string, timestep float64, opts ...Option) *Task {
	t := &Task{
		name:     name,
		timestep: timestep,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("task", name)
	return t
}

func (t *Task) Name() string           { return t.name }
func (t *Task) Timestep() float64      { return t.timestep }
func (t *Task) Duration() float64      { return t.duration }
func (t *Task) Message() string        { return t.message }
func (t *Task) Params() map[string]any { return t.params }
func (t *Task) Status() Status         { return t.status }
func (t *Task) Ticks() int             { return t.ticks }

// Elapsed is the task-local time: ticks times the timestep.
func (t *Task) Elapsed() float64 { return float64(t.ticks) * t.timestep }

func (t *Task) Entities() []*dynamo.Entity            { return t.entities }
func (t *Task) Trajectories() []*trajectory.Reference { return t.trajectories }
func (t *Task) Roles() []*role.Role                   { return t.roles }
func (t *Task) Metrics() []metrics.Metric             { return t.metrics }

// Entity returns the owned entity with that name, or nil.
func (t *Task) Entity(name string) *dynamo.Entity {
	for _, e := range t.entities {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// Trajectory returns the owned reference with that name, or nil.
func (t *Task) Trajectory(name string) *trajectory.Reference {
	for _, r := range t.trajectories {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

func (t *Task) AddEntity(es ...*dynamo.Entity) {
	t.entities = append(t.entities, es...)
}

// AddPreConstraint appends to the pass that runs before the main sweep.
func (t *Task) AddPreConstraint(cs ...dynamo.Constraint) {
	t.pre = append(t.pre, cs...)
}

func (t *Task) AddConstraint(cs ...dynamo.Constraint) {
	t.constraints = append(t.constraints, cs...)
}

func (t *Task) AddTrajectory(rs ...*trajectory.Reference) {
	t.trajectories = append(t.trajectories, rs...)
}

// AddEndCondition registers a condition that completes the task when true.
func (t *Task) AddEndCondition(cs ...dynamo.Condition) {
	t.endConditions = append(t.endConditions, cs...)
}

// AddRole binds a handle entity through a perspective. Participants are
// assigned later, in the order roles were added.
func (t *Task) AddRole(rs ...*role.Role) {
	t.roles = append(t.roles, rs...)
}

func (t *Task) AddMetric(ms ...metrics.Metric) {
	t.metrics = append(t.metrics, ms...)
}

// Reset returns every entity and stateful condition to its initial state
// and the task to WAITING.
func (t *Task) Reset() {
	for _, e := range t.entities {
		e.Reset()
	}
	for _, c := range t.endConditions {
		if r, ok := c.(dynamo.Resetter); ok {
			r.Reset()
		}
	}
	for _, m := range t.metrics {
		m.Reset()
	}
	for _, r := range t.trajectories {
		r.Update(0)
	}
	t.ticks = 0
	t.now = 0
	t.status = Waiting
	t.snapshot = t.View()
}

// Start resets the task and opens its output stream. A nil recorder runs
// the task without persistence.
func (t *Task) Start(rec Recorder) error {
	t.Reset()
	t.recorder = rec
	if rec == nil {
		return nil
	}
	if err := rec.Begin(t.name, t.Header()); err != nil {
		t.recorder = nil
		return fmt.Errorf("begin %s: %w", t.name, err)
	}
	return nil
}

// Close ends the output stream of the current run.
func (t *Task) Close() error {
	if t.logger.Enabled(context.Background(), slog.LevelInfo) && len(t.metrics) > 0 {
		t.logger.Info("task closed", "status", t.status, "ticks", t.ticks, "metrics", metrics.Summary(t.metrics))
	}
	if t.recorder == nil {
		return nil
	}
	err := t.recorder.Close()
	t.recorder = nil
	return err
}

// Header is the persisted field set: metadata, then position, velocity and
// acceleration of every recorded entity, then the current value of every
// trajectory.
func (t *Task) Header() []string {
	h := append([]string(nil), MetaColumns...)
	for _, e := range t.entities {
		if e.Recorded() {
			h = append(h, entityColumns(e.Name())...)
		}
	}
	for _, r := range t.trajectories {
		h = append(h, trajectoryColumn(r.Name()))
	}
	return h
}

// Snapshot is the view taken on the last tick, before constraints ran.
func (t *Task) Snapshot() dynamo.View { return t.snapshot }

// View builds a snapshot of the current state.
func (t *Task) View() dynamo.View {
	v := dynamo.View{
		Task:           t.name,
		Status:         t.status.String(),
		TaskTime:       t.Elapsed(),
		ExperimentTime: t.now,
		Message:        t.message,
		Entities:       make(map[string]dynamo.EntityView, len(t.entities)),
		Trajectories:   make(map[string]dynamo.TrajectoryView, len(t.trajectories)),
	}
	for _, e := range t.entities {
		v.Entities[e.Name()] = e.View()
	}
	for _, r := range t.trajectories {
		v.Trajectories[r.Name()] = r.View()
	}
	return v
}

// Step runs one tick at experiment time now and reports the task status.
// A returned error is fatal to the run and leaves the task FAILED.
func (t *Task) Step(now float64) (Status, error) {
	if t.status == Failed {
		return Failed, nil
	}

	t.ticks++
	t.now = now
	elapsed := t.Elapsed()

	t.setStatus(t.evaluate(elapsed))

	for _, r := range t.trajectories {
		r.Update(elapsed)
	}

	t.snapshot = t.View()

	for _, r := range t.roles {
		if err := r.Gather(t.snapshot); err != nil {
			return t.fail(err)
		}
	}

	for _, c := range t.pre {
		c.Apply()
	}
	for _, c := range t.constraints {
		c.Apply()
	}

	for _, r := range t.roles {
		r.Scatter()
	}

	for _, e := range t.entities {
		e.Step(t.timestep)
		if !e.State().IsValid() {
			return t.fail(fmt.Errorf("%s: %w", e.Name(), dynamo.ErrInvalidState))
		}
	}

	if len(t.metrics) > 0 {
		after := t.View()
		for _, m := range t.metrics {
			m.Observe(after)
		}
	}

	if t.recorder != nil {
		if err := t.recorder.Record(t.row()); err != nil {
			return t.fail(fmt.Errorf("record: %w", err))
		}
	}

	if t.logger.Enabled(context.Background(), logging.LevelTrace) {
		t.logger.Log(context.Background(), logging.LevelTrace, "tick", "tick", t.ticks, "time", elapsed, "status", t.status)
	}

	return t.status, nil
}

// evaluate checks the duration and every end condition. All conditions are
// checked so that stateful ones keep accumulating.
func (t *Task) evaluate(elapsed float64) Status {
	done := t.duration > 0 && elapsed+dynamo.TimeEpsilon >= t.duration
	for _, c := range t.endConditions {
		if c.Check(t.timestep) {
			done = true
		}
	}
	if done {
		return Completed
	}
	return Running
}

func (t *Task) setStatus(s Status) {
	if s != t.status {
		t.logger.Debug("status", "from", t.status, "to", s, "time", t.Elapsed())
	}
	t.status = s
}

func (t *Task) fail(err error) (Status, error) {
	t.setStatus(Failed)
	t.snapshot.Status = Failed.String()
	if t.recorder != nil {
		_ = t.recorder.Record(t.row())
	}
	return Failed, &dynamo.TickError{Task: t.name, Tick: t.ticks, Time: t.Elapsed(), Wrapped: err}
}

func (t *Task) row() Row {
	var values []float64
	for _, e := range t.entities {
		if !e.Recorded() {
			continue
		}
		s := t.snapshot.Entities[e.Name()].State
		values = append(values, s.Position, s.Velocity, s.Acceleration)
	}
	for _, r := range t.trajectories {
		values = append(values, t.snapshot.Trajectories[r.Name()].Now)
	}
	return Row{
		Task:           t.name,
		Status:         t.status,
		TaskTime:       t.snapshot.TaskTime,
		ExperimentTime: t.snapshot.ExperimentTime,
		Values:         values,
	}
}
