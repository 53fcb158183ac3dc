package experiment

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/san-kum/dyadsim/internal/config"
	"github.com/san-kum/dyadsim/internal/logging"
	"github.com/san-kum/dyadsim/internal/participant"
	"github.com/san-kum/dyadsim/internal/role"
	"github.com/san-kum/dyadsim/internal/tasks"
)

// ParticipantFactory builds a participant from its config entry.
type ParticipantFactory func(pc config.ParticipantConfig, timestep float64, rng *rand.Rand) role.Participant

type Registry struct {
	templates    map[string]tasks.Template
	participants map[string]ParticipantFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		templates:    make(map[string]tasks.Template),
		participants: make(map[string]ParticipantFactory),
	}

	r.templates["blank"] = tasks.Blank
	r.templates["message"] = tasks.Message
	r.templates["reset-handle"] = tasks.ResetHandle
	r.templates["center"] = tasks.Center
	r.templates["solo-asym"] = tasks.SoloAsym
	r.templates["dyad-asym"] = tasks.DyadAsym
	r.templates["spring-pair"] = tasks.SpringPair
	r.templates["custom"] = tasks.Custom

	r.participants["static"] = func(pc config.ParticipantConfig, _ float64, _ *rand.Rand) role.Participant {
		return participant.NewStatic(pc.Name, pc.Param("position", 0))
	}
	r.participants["bot"] = func(pc config.ParticipantConfig, dt float64, rng *rand.Rand) role.Participant {
		return participant.NewBot(pc.Name, participant.BotConfig{
			Target: participant.Target{
				Trajectory: pc.Track,
				Entity:     pc.Follow,
				Offset:     pc.Param("offset", 0),
				Home:       pc.Param("home", 0),
			},
			Kp:       pc.Param("kp", 40),
			Ki:       pc.Param("ki", 0),
			Kd:       pc.Param("kd", 5),
			Mass:     pc.Param("mass", 1),
			Damping:  pc.Param("damping", 4),
			Noise:    pc.Param("noise", 0),
			Timestep: dt,
			Start:    pc.Param("start", 0),
		}, rng)
	}
	r.participants["manual"] = func(pc config.ParticipantConfig, _ float64, _ *rand.Rand) role.Participant {
		return participant.NewManual(pc.Name, pc.Param("step", 0.02), pc.Param("limit", 1))
	}

	return r
}

// Register adds or replaces a task template.
func (r *Registry) Register(name string, tpl tasks.Template) {
	r.templates[name] = tpl
}

func (r *Registry) GetTemplate(name string) (tasks.Template, error) {
	fn, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template: %s", name)
	}
	return fn, nil
}

func (r *Registry) GetParticipant(pc config.ParticipantConfig, timestep float64, rng *rand.Rand) (role.Participant, error) {
	fn, ok := r.participants[pc.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown participant kind: %s", pc.Kind)
	}
	return fn(pc, timestep, rng), nil
}

func (r *Registry) ListTemplates() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build turns a config into an experiment. Reference trajectories and bot
// noise are drawn from one source seeded by cfg.Seed, so a config and seed
// always produce the same run.
func Build(cfg *config.Config, reg *Registry, logger *slog.Logger, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	participants := make([]role.Participant, 0, len(cfg.Participants))
	for _, pc := range cfg.Participants {
		p, err := reg.GetParticipant(pc, cfg.Timestep, rng)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	env := tasks.Env{Timestep: cfg.Timestep, Rand: rng, Logger: logger}
	trials := make([]Trial, 0, len(cfg.Procedure))
	for i, specs := range cfg.Procedure {
		trial := make(Trial, 0, len(specs))
		for _, spec := range specs {
			tpl, err := reg.GetTemplate(spec.Template)
			if err != nil {
				return nil, fmt.Errorf("trial %d task %q: %w", i, spec.Name, err)
			}
			t, err := tpl(spec, env)
			if err != nil {
				return nil, fmt.Errorf("trial %d: %w", i, err)
			}
			trial = append(trial, t)
		}
		trials = append(trials, trial)
	}

	opts = append([]Option{WithLogger(logger), WithTimestep(cfg.Timestep)}, opts...)
	return New(cfg.Name, trials, participants, opts...)
}
