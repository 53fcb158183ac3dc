// Package experiment runs a procedure: an ordered list of trials, each a
// group of tasks stepped in lockstep under one clock.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/dyadsim/internal/logging"
	"github.com/san-kum/dyadsim/internal/metrics"
	"github.com/san-kum/dyadsim/internal/role"
	"github.com/san-kum/dyadsim/internal/task"
)

var (
	ErrEmptyProcedure        = errors.New("experiment: procedure has no trials")
	ErrEmptyTrial            = errors.New("experiment: trial has no tasks")
	ErrDuplicateTask         = errors.New("experiment: duplicate task name")
	ErrNotEnoughParticipants = errors.New("experiment: not enough participants for trial")
	ErrExperimentDone        = errors.New("experiment: already complete")
)

// Trial is a group of tasks that start together and share a clock.
type Trial []*task.Task

// Sink opens the output stream for one task run. It is the persistence
// boundary of the experiment.
type Sink interface {
	Open(t *task.Task) (task.Recorder, error)
}

// Result summarises one finished task run.
type Result struct {
	Trial   int                `json:"trial"`
	Task    string             `json:"task"`
	Status  string             `json:"status"`
	Ticks   int                `json:"ticks"`
	Elapsed float64            `json:"elapsed"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

type Experiment struct {
	name         string
	trials       []Trial
	participants []role.Participant
	timestep     float64
	sink         Sink
	logger       *slog.Logger
	events       *logging.EventLog
	onComplete   []func(*Experiment)

	started bool
	done    bool
	active  int
	ticks   int
	time    float64
	results []Result
	err     error
}

type Option func(*Experiment)

func WithSink(s Sink) Option {
	return func(e *Experiment) { e.sink = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithEventLog(l *logging.EventLog) Option {
	return func(e *Experiment) { e.events = l }
}

// WithTimestep sets the interval Run advances by. It defaults to the
// timestep of the first task.
func WithTimestep(dt float64) Option {
	return func(e *Experiment) { e.timestep = dt }
}

// OnComplete registers a hook called once, after the last trial closes.
func OnComplete(fn func(*Experiment)) Option {
	return func(e *Experiment) { e.onComplete = append(e.onComplete, fn) }
}

// New checks the procedure and returns an experiment ready to start.
// Participants are handed out per trial in the order tasks and their roles
// were registered.
func New(name string, trials []Trial, participants []role.Participant, opts ...Option) (*Experiment, error) {
	e := &Experiment{
		name:         name,
		trials:       trials,
		participants: participants,
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	if e.timestep <= 0 {
		e.timestep = trials[0][0].Timestep()
	}
	return e, nil
}

func (e *Experiment) validate() error {
	if len(e.trials) == 0 {
		return ErrEmptyProcedure
	}
	var errs []error
	names := make(map[string]bool)
	for i, trial := range e.trials {
		if len(trial) == 0 {
			errs = append(errs, fmt.Errorf("trial %d: %w", i, ErrEmptyTrial))
			continue
		}
		roles := 0
		for _, t := range trial {
			if names[t.Name()] {
				errs = append(errs, fmt.Errorf("trial %d: %w: %q", i, ErrDuplicateTask, t.Name()))
			}
			names[t.Name()] = true
			roles += len(t.Roles())
			if err := t.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
		if roles > len(e.participants) {
			errs = append(errs, fmt.Errorf("trial %d needs %d, have %d: %w",
				i, roles, len(e.participants), ErrNotEnoughParticipants))
		}
	}
	return errors.Join(errs...)
}

func (e *Experiment) Name() string                     { return e.name }
func (e *Experiment) Trials() []Trial                  { return e.trials }
func (e *Experiment) Participants() []role.Participant { return e.participants }
func (e *Experiment) Timestep() float64                { return e.timestep }
func (e *Experiment) Time() float64                    { return e.time }
func (e *Experiment) Ticks() int                       { return e.ticks }
func (e *Experiment) Done() bool                       { return e.done }
func (e *Experiment) Results() []Result                { return e.results }

// Err is the error that stopped the experiment, if any.
func (e *Experiment) Err() error { return e.err }

// ActiveIndex is the index of the running trial; it equals the number of
// trials once the experiment is done.
func (e *Experiment) ActiveIndex() int { return e.active }

// Active returns the running trial, or nil once the experiment is done.
func (e *Experiment) Active() Trial {
	if e.done || e.active >= len(e.trials) {
		return nil
	}
	return e.trials[e.active]
}

// Start assigns participants to the first trial and opens its streams.
// Step calls it when needed.
func (e *Experiment) Start() error {
	if e.started {
		return nil
	}
	e.started = true
	e.logger.Info("experiment started", "name", e.name, "trials", len(e.trials), "participants", len(e.participants))
	e.events.Log(map[string]any{"event": "experiment_start", "name": e.name})
	if err := e.startTrial(0); err != nil {
		return e.stop(err)
	}
	return nil
}

// Step advances the experiment clock by dt and steps every task of the
// active trial once. When all of them report COMPLETED on the same tick,
// the trial is closed and the next one started.
func (e *Experiment) Step(dt float64) error {
	if e.done {
		if e.err != nil {
			return e.err
		}
		return ErrExperimentDone
	}
	if err := e.Start(); err != nil {
		return err
	}

	e.ticks++
	e.time += dt

	trial := e.trials[e.active]
	completed := 0
	for _, t := range trial {
		st, err := t.Step(e.time)
		if err != nil {
			return e.stop(err)
		}
		if st == task.Completed {
			completed++
		}
	}
	if completed < len(trial) {
		return nil
	}

	if err := e.closeTrial(e.active); err != nil {
		return e.stop(err)
	}
	e.active++
	if e.active < len(e.trials) {
		if err := e.startTrial(e.active); err != nil {
			return e.stop(err)
		}
		return nil
	}
	e.finish()
	return nil
}

// Run steps the experiment until it is done. With a nil tick channel it
// runs as fast as it can; otherwise it waits for a tick before each step.
// Cancellation is only observed between ticks.
func (e *Experiment) Run(ctx context.Context, tick <-chan time.Time) error {
	for !e.done {
		if tick == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		if err := e.Step(e.timestep); err != nil {
			return err
		}
	}
	return e.err
}

func (e *Experiment) startTrial(i int) error {
	trial := e.trials[i]
	assignments := make(map[string]string)
	next := 0
	for _, t := range trial {
		for _, r := range t.Roles() {
			p := e.participants[next]
			next++
			r.Assign(p)
			assignments[t.Name()+"/"+r.Handle().Name()] = p.Name()
		}
	}
	e.logger.Info("trial started", "trial", i, "tasks", trial.names())
	e.logger.Debug("assignments", "trial", i, "roles", assignments)
	e.events.Log(map[string]any{"event": "trial_start", "trial": i, "tasks": trial.names(), "assignments": assignments})

	for _, t := range trial {
		var rec task.Recorder
		if e.sink != nil {
			var err error
			if rec, err = e.sink.Open(t); err != nil {
				return fmt.Errorf("open %s: %w", t.Name(), err)
			}
		}
		if err := t.Start(rec); err != nil {
			return err
		}
	}
	return nil
}

func (e *Experiment) closeTrial(i int) error {
	var errs []error
	for _, t := range e.trials[i] {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.Name(), err))
		}
		e.results = append(e.results, Result{
			Trial:   i,
			Task:    t.Name(),
			Status:  t.Status().String(),
			Ticks:   t.Ticks(),
			Elapsed: t.Elapsed(),
			Metrics: metrics.Summary(t.Metrics()),
		})
	}
	e.logger.Info("trial complete", "trial", i, "time", e.time)
	e.events.Log(map[string]any{"event": "trial_complete", "trial": i, "time": e.time})
	return errors.Join(errs...)
}

// stop ends the experiment after a fatal error, closing the streams of the
// active trial.
func (e *Experiment) stop(err error) error {
	e.logger.Error("experiment stopped", "trial", e.active, "err", err)
	e.events.Log(map[string]any{"event": "experiment_failed", "trial": e.active, "error": err.Error()})
	if e.active < len(e.trials) {
		if cerr := e.closeTrial(e.active); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	e.err = err
	e.finish()
	return err
}

func (e *Experiment) finish() {
	e.done = true
	if e.err == nil {
		e.logger.Info("experiment complete", "name", e.name, "ticks", e.ticks, "time", e.time)
		e.events.Log(map[string]any{"event": "experiment_complete", "ticks": e.ticks})
	}
	for _, fn := range e.onComplete {
		fn(e)
	}
}

func (tr Trial) names() []string {
	names := make([]string, len(tr))
	for i, t := range tr {
		names[i] = t.Name()
	}
	return names
}
