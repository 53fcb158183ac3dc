// Package config reads and writes experiment files.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/dyadsim/internal/trajectory"
)

const (
	DefaultTimestep = 1.0 / 70.0
	DefaultDataDir  = "data"
	DefaultLogLevel = "info"
	DefaultSink     = "csv"
	DefaultSeed     = 1
)

type Config struct {
	Name         string              `yaml:"name"`
	Timestep     float64             `yaml:"timestep"`
	Seed         int64               `yaml:"seed"`
	DataDir      string              `yaml:"data_dir"`
	LogLevel     string              `yaml:"log_level"`
	Realtime     bool                `yaml:"realtime"`
	Sink         string              `yaml:"sink"`
	Participants []ParticipantConfig `yaml:"participants"`
	Procedure    [][]TaskSpec        `yaml:"procedure"`
}

// ParticipantConfig describes who holds a handle. Kind is bot, static or
// manual. Bots follow Track (a trajectory) or Follow (an entity).
type ParticipantConfig struct {
	Name   string             `yaml:"name"`
	Kind   string             `yaml:"kind"`
	Track  string             `yaml:"track,omitempty"`
	Follow string             `yaml:"follow,omitempty"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// TaskSpec declares one task of a trial. Template selects a built-in task;
// the custom template is assembled from the declarative fields.
type TaskSpec struct {
	Template       string             `yaml:"template"`
	Name           string             `yaml:"name"`
	Duration       float64            `yaml:"duration,omitempty"`
	Message        string             `yaml:"message,omitempty"`
	Params         map[string]float64 `yaml:"params,omitempty"`
	Entities       []EntitySpec       `yaml:"entities,omitempty"`
	PreConstraints []ConstraintSpec   `yaml:"pre_constraints,omitempty"`
	Constraints    []ConstraintSpec   `yaml:"constraints,omitempty"`
	EndConditions  []ConditionSpec    `yaml:"end_conditions,omitempty"`
	Roles          []RoleSpec         `yaml:"roles,omitempty"`
	Trajectories   []TrajectorySpec   `yaml:"trajectories,omitempty"`
	Metrics        []MetricSpec       `yaml:"metrics,omitempty"`
}

type EntitySpec struct {
	Name       string         `yaml:"name"`
	Mass       float64        `yaml:"mass"`
	Position   float64        `yaml:"position,omitempty"`
	Velocity   float64        `yaml:"velocity,omitempty"`
	Record     *bool          `yaml:"record,omitempty"`
	Appearance map[string]any `yaml:"appearance,omitempty"`
}

// ConstraintSpec covers every constraint type: damping, compression_spring,
// tension_spring, spring_law_solid, bind_position and position_limits.
type ConstraintSpec struct {
	Type       string   `yaml:"type"`
	Target     string   `yaml:"target"`
	Ref        string   `yaml:"ref,omitempty"`
	K          float64  `yaml:"k,omitempty"`
	B          float64  `yaml:"b,omitempty"`
	Rest       float64  `yaml:"rest,omitempty"`
	Offset     float64  `yaml:"offset,omitempty"`
	Proportion *float64 `yaml:"proportion,omitempty"`
	Upper      *float64 `yaml:"upper,omitempty"`
	Lower      *float64 `yaml:"lower,omitempty"`
}

// ConditionSpec covers position_threshold, in_range, and, or.
type ConditionSpec struct {
	Type     string          `yaml:"type"`
	Target   string          `yaml:"target,omitempty"`
	Ref      string          `yaml:"ref,omitempty"`
	Offset   float64         `yaml:"offset,omitempty"`
	Greater  bool            `yaml:"greater,omitempty"`
	Upper    float64         `yaml:"upper,omitempty"`
	Lower    float64         `yaml:"lower,omitempty"`
	Duration float64         `yaml:"duration,omitempty"`
	Of       []ConditionSpec `yaml:"of,omitempty"`
}

type RoleSpec struct {
	Handle string   `yaml:"handle"`
	Flip   bool     `yaml:"flip,omitempty"`
	Hide   []string `yaml:"hide,omitempty"`
}

// TrajectorySpec covers flat, constant and sos references. An sos without
// components is drawn from the experiment seed.
type TrajectorySpec struct {
	Name       string                 `yaml:"name"`
	Kind       string                 `yaml:"kind"`
	Value      float64                `yaml:"value,omitempty"`
	ZeroStart  float64                `yaml:"zero_start,omitempty"`
	SoftStart  float64                `yaml:"soft_start,omitempty"`
	Components []trajectory.Component `yaml:"components,omitempty"`
	Past       float64                `yaml:"past,omitempty"`
	Future     float64                `yaml:"future,omitempty"`
	Step       float64                `yaml:"step,omitempty"`
}

// MetricSpec covers tracking_error, stability and path_length.
type MetricSpec struct {
	Type       string  `yaml:"type"`
	Entity     string  `yaml:"entity,omitempty"`
	Trajectory string  `yaml:"trajectory,omitempty"`
	Threshold  float64 `yaml:"threshold,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:     "experiment",
		Timestep: DefaultTimestep,
		Seed:     DefaultSeed,
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
		Sink:     DefaultSink,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var (
	ErrNoTimestep      = errors.New("config: timestep must be positive")
	ErrNoProcedure     = errors.New("config: procedure is empty")
	ErrEmptyTrial      = errors.New("config: trial has no tasks")
	ErrUnknownKind     = errors.New("config: unknown participant kind")
	ErrUnknownSink     = errors.New("config: unknown sink")
	ErrMissingName     = errors.New("config: missing name")
	ErrMissingTemplate = errors.New("config: task has no template")
)

// Validate checks the shape of the file. Task contents are checked when
// the tasks are built.
func (c *Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, fmt.Errorf("experiment: %w", ErrMissingName))
	}
	if !(c.Timestep > 0) {
		errs = append(errs, ErrNoTimestep)
	}
	switch c.Sink {
	case "csv", "sqlite", "none":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownSink, c.Sink))
	}
	for i, p := range c.Participants {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("participant %d: %w", i, ErrMissingName))
		}
		switch p.Kind {
		case "bot", "static", "manual":
		default:
			errs = append(errs, fmt.Errorf("participant %q: %w: %q", p.Name, ErrUnknownKind, p.Kind))
		}
	}
	if len(c.Procedure) == 0 {
		errs = append(errs, ErrNoProcedure)
	}
	for i, trial := range c.Procedure {
		if len(trial) == 0 {
			errs = append(errs, fmt.Errorf("trial %d: %w", i, ErrEmptyTrial))
		}
		for j, ts := range trial {
			if ts.Name == "" {
				errs = append(errs, fmt.Errorf("trial %d task %d: %w", i, j, ErrMissingName))
			}
			if ts.Template == "" {
				errs = append(errs, fmt.Errorf("trial %d task %q: %w", i, ts.Name, ErrMissingTemplate))
			}
		}
	}
	return errors.Join(errs...)
}

// Param returns a task parameter or def when it is not set.
func (s TaskSpec) Param(key string, def float64) float64 {
	if v, ok := s.Params[key]; ok {
		return v
	}
	return def
}

// Param returns a participant parameter or def when it is not set.
func (p ParticipantConfig) Param(key string, def float64) float64 {
	if v, ok := p.Params[key]; ok {
		return v
	}
	return def
}
