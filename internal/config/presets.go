package config

import (
	"sort"
	"strconv"
)

// Presets are complete experiments that run without hardware. Each call
// builds a fresh copy.
var Presets = map[string]func() *Config{
	"spring-pair": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "spring-pair"
		cfg.Timestep = 1.0 / 120.0
		cfg.Procedure = [][]TaskSpec{
			{{Template: "spring-pair", Name: "spring-pair", Duration: 10,
				Params: map[string]float64{"k": 10, "rest": 0.1, "b": 10}}},
		}
		return cfg
	},
	"solo-slider": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "solo-slider"
		cfg.Participants = []ParticipantConfig{bot("bot1", "sos")}
		cfg.Procedure = [][]TaskSpec{
			{{Template: "message", Name: "welcome", Duration: 2, Message: "Welcome to the experiment"}},
			{{Template: "reset-handle", Name: "0-reset"}},
			{{Template: "solo-asym", Name: "0-solo", Duration: 20,
				Params: map[string]float64{"k": 5, "push": 1, "pull": 1}}},
			{{Template: "message", Name: "done", Duration: 2, Message: "Experiment complete"}},
		}
		return cfg
	},
	"dyad-slider": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "dyad-slider"
		cfg.Participants = []ParticipantConfig{bot("player1", "sos"), bot("player2", "sos")}
		welcome := func(n int) TaskSpec {
			return TaskSpec{Template: "message", Name: "msgwelcome" + strconv.Itoa(n), Duration: 3,
				Message: "Welcome to the experiment"}
		}
		cfg.Procedure = [][]TaskSpec{
			{welcome(1), welcome(2)},
			{{Template: "center", Name: "1-reset"}},
			{{Template: "dyad-asym", Name: "1-dyad", Duration: 60,
				Params: map[string]float64{"k": 5, "p1_push": 1, "p1_pull": 1, "p2_push": 1, "p2_pull": 1}}},
			{{Template: "center", Name: "2-reset"}},
			{{Template: "dyad-asym", Name: "2-dyad", Duration: 60,
				Params: map[string]float64{"k": 5, "p1_push": 0.5, "p1_pull": 1, "p2_push": 0.5, "p2_pull": 1}}},
			{{Template: "center", Name: "3-reset"}},
			{{Template: "dyad-asym", Name: "3-dyad", Duration: 60,
				Params: map[string]float64{"k": 5, "p1_push": 1, "p1_pull": 0.5, "p2_push": 1, "p2_pull": 0.5}}},
		}
		return cfg
	},
	"two-trials": func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "two-trials"
		cfg.Timestep = 0.1
		cfg.Participants = []ParticipantConfig{{Name: "wall", Kind: "static"}}
		cfg.Procedure = [][]TaskSpec{
			{{Template: "blank", Name: "first", Duration: 1}},
			{{Template: "blank", Name: "second", Duration: 1}},
		}
		return cfg
	},
}

func bot(name, track string) ParticipantConfig {
	return ParticipantConfig{
		Name:  name,
		Kind:  "bot",
		Track: track,
		Params: map[string]float64{
			"kp": 40, "kd": 5, "mass": 1, "damping": 4, "home": -0.9,
		},
	}
}

func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
