// Package tasks holds the task templates used by the slider experiments
// and the custom template assembled from a declarative task spec.
package tasks

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/metrics"
	"github.com/san-kum/dyadsim/internal/task"
	"github.com/san-kum/dyadsim/internal/trajectory"
)

// Env carries what every template needs from the experiment.
type Env struct {
	Timestep float64
	Rand     *rand.Rand
	Logger   *slog.Logger
}

func (e Env) rng() *rand.Rand {
	if e.Rand == nil {
		return rand.New(rand.NewSource(1))
	}
	return e.Rand
}

// Template builds a validated task from its spec.
type Template func(spec config.TaskSpec, env Env) (*task.Task, error)

const (
	objRadius = 0.05

	sosZeroStart = 2.0
	sosSoftStart = 5.0
)

const (
	cursorColor = "#dcdcdc"
	selfColor   = "#0000ff"
	otherColor  = "#ff00ff"
	linkColor   = "#004080"
)

func circle(radius float64, color string) dynamo.Appearance {
	return dynamo.Appearance{"shape": "circle", "radius": radius, "color": color}
}

func newTask(spec config.TaskSpec, env Env, message string) *task.Task {
	if spec.Message != "" {
		message = spec.Message
	}
	params := make(map[string]any, len(spec.Params)+1)
	for k, v := range spec.Params {
		params[k] = v
	}
	params["template"] = spec.Template
	return task.New(spec.Name, env.Timestep,
		task.WithDuration(spec.Duration),
		task.WithMessage(message),
		task.WithParams(params),
		task.WithLogger(env.Logger),
	)
}

// finish adds the metrics declared in the task config and validates the task.
func finish(t *task.Task, spec config.TaskSpec) (*task.Task, error) {
	for _, ms := range spec.Metrics {
		m, err := metricFromSpec(ms)
		if err != nil {
			return nil, &dynamo.ConfigError{Task: spec.Name, Subject: "metric", Wrapped: err}
		}
		t.AddMetric(m)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func metricFromSpec(ms config.MetricSpec) (metrics.Metric, error) {
	switch ms.Type {
	case "tracking_error":
		return metrics.NewTrackingError(ms.Entity, ms.Trajectory), nil
	case "stability":
		return metrics.NewStability(ms.Threshold), nil
	case "path_length":
		return metrics.NewPathLength(ms.Entity), nil
	default:
		return nil, fmt.Errorf("unknown metric: %s", ms.Type)
	}
}

func sos(env Env) *trajectory.Reference {
	sig := trajectory.GenerateSumOfSines(env.rng(), trajectory.DefaultFrequencies, sosZeroStart, sosSoftStart)
	return trajectory.New("sos", sig)
}
