// Package trajectory provides reference signals sampled over a sliding
// time window around the task clock.
package trajectory

import (
	"math"

	"github.com/san-kum/dyadsim/internal/dynamo"
)

const (
	DefaultPast     = -1.0
	DefaultFuture   = 1.0
	DefaultStep     = 0.1
	DefaultTimeAxis = "x"
)

// Signal is a pure function of task time.
type Signal interface {
	At(t float64) float64
}

// SignalFunc adapts a plain function.
type SignalFunc func(t float64) float64

func (f SignalFunc) At(t float64) float64 { return f(t) }

// Reference samples a signal over [t+Past, t+Future] every Step seconds.
type Reference struct {
	name       string
	signal     Signal
	past       float64
	future     float64
	step       float64
	appearance dynamo.Appearance

	time          float64
	pastSamples   []float64
	now           float64
	futureSamples []float64
	full          []float64
	timesteps     []float64
}

type Option func(*Reference)

// WithWindow sets how far back (negative) and forward the window reaches.
func WithWindow(past, future float64) Option {
	return func(r *Reference) {
		r.past = past
		r.future = future
	}
}

func WithStep(step float64) Option {
	return func(r *Reference) { r.step = step }
}

func WithAppearance(a dynamo.Appearance) Option {
	return func(r *Reference) { r.appearance = a }
}

func New(name string, signal Signal, opts ...Option) *Reference {
	r := &Reference{
		name:       name,
		signal:     signal,
		past:       DefaultPast,
		future:     DefaultFuture,
		step:       DefaultStep,
		appearance: dynamo.Appearance{"time_axis": DefaultTimeAxis},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Update(0)
	return r
}

func (r *Reference) Name() string      { return r.name }
func (r *Reference) Signal() Signal    { return r.signal }
func (r *Reference) Time() float64     { return r.time }
func (r *Reference) Now() float64      { return r.now }
func (r *Reference) Past() []float64   { return r.pastSamples }
func (r *Reference) Future() []float64 { return r.futureSamples }
func (r *Reference) Full() []float64   { return r.full }
func (r *Reference) Times() []float64  { return r.timesteps }

// Update resamples the window around t.
func (r *Reference) Update(t float64) {
	r.time = t
	nPast := windowCount(-r.past, r.step)
	nFuture := windowCount(r.future, r.step)

	r.pastSamples = make([]float64, 0, nPast)
	r.futureSamples = make([]float64, 0, nFuture)
	r.full = make([]float64, 0, nPast+1+nFuture)
	r.timesteps = make([]float64, 0, nPast+1+nFuture)

	for i := 0; i < nPast; i++ {
		ts := t + r.past + float64(i)*r.step
		v := r.signal.At(ts)
		r.pastSamples = append(r.pastSamples, v)
		r.full = append(r.full, v)
		r.timesteps = append(r.timesteps, ts)
	}

	r.now = r.signal.At(t)
	r.full = append(r.full, r.now)
	r.timesteps = append(r.timesteps, t)

	for i := 1; i <= nFuture; i++ {
		ts := t + float64(i)*r.step
		v := r.signal.At(ts)
		r.futureSamples = append(r.futureSamples, v)
		r.full = append(r.full, v)
		r.timesteps = append(r.timesteps, ts)
	}
}

// View copies the current window.
func (r *Reference) View() dynamo.TrajectoryView {
	return dynamo.TrajectoryView{
		Samples:    append([]float64(nil), r.full...),
		Times:      append([]float64(nil), r.timesteps...),
		Now:        r.now,
		Appearance: r.appearance,
	}
}

func windowCount(span, step float64) int {
	if span <= 0 || step <= 0 {
		return 0
	}
	return int(math.Round(span / step))
}
