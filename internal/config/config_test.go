package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timestep <= 0 {
		t.Error("timestep should be positive")
	}
	if cfg.Sink != "csv" {
		t.Errorf("expected csv sink, got %s", cfg.Sink)
	}
	if cfg.DataDir == "" {
		t.Error("data dir should be set")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("two-trials")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if len(cfg.Procedure) != 2 {
		t.Errorf("expected 2 trials, got %d", len(cfg.Procedure))
	}

	cfg.Procedure = nil
	if again := GetPreset("two-trials"); len(again.Procedure) != 2 {
		t.Error("presets should not share state between calls")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	if len(presets) != len(Presets) {
		t.Fatalf("expected %d presets, got %d", len(Presets), len(presets))
	}
	for i := 1; i < len(presets); i++ {
		if presets[i-1] > presets[i] {
			t.Errorf("presets not sorted: %v", presets)
		}
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, name := range ListPresets() {
		t.Run(name, func(t *testing.T) {
			if err := GetPreset(name).Validate(); err != nil {
				t.Errorf("preset %s invalid: %v", name, err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exp.yaml")
	cfg := GetPreset("solo-slider")
	upper := 0.5
	cfg.Procedure = append(cfg.Procedure, []TaskSpec{{
		Template: "custom",
		Name:     "declared",
		Entities: []EntitySpec{{Name: "ball", Mass: 1, Position: 0.2}},
		Constraints: []ConstraintSpec{
			{Type: "position_limits", Target: "ball", Upper: &upper},
		},
	}})
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != cfg.Name || got.Timestep != cfg.Timestep {
		t.Errorf("loaded %s/%f, want %s/%f", got.Name, got.Timestep, cfg.Name, cfg.Timestep)
	}
	last := got.Procedure[len(got.Procedure)-1][0]
	if last.Entities[0].Position != 0.2 || *last.Constraints[0].Upper != 0.5 {
		t.Errorf("declared task lost: %+v", last)
	}
	if last.Constraints[0].Lower != nil {
		t.Error("unset bound should stay nil")
	}
	if got.Participants[0].Param("kp", 0) != 40 {
		t.Errorf("participant params lost: %v", got.Participants[0].Params)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.yaml")
	data := []byte("name: tiny\nprocedure:\n  - - template: blank\n      name: only\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timestep != DefaultTimestep || cfg.Sink != DefaultSink {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("timestep: [1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no timestep", func(c *Config) { c.Timestep = 0 }, ErrNoTimestep},
		{"no procedure", func(c *Config) { c.Procedure = nil }, ErrNoProcedure},
		{"empty trial", func(c *Config) { c.Procedure = append(c.Procedure, nil) }, ErrEmptyTrial},
		{"bad sink", func(c *Config) { c.Sink = "parquet" }, ErrUnknownSink},
		{"bad kind", func(c *Config) { c.Participants[0].Kind = "robot" }, ErrUnknownKind},
		{"no template", func(c *Config) { c.Procedure[0][0].Template = "" }, ErrMissingTemplate},
		{"no task name", func(c *Config) { c.Procedure[0][0].Name = "" }, ErrMissingName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetPreset("two-trials")
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParam(t *testing.T) {
	ts := TaskSpec{Params: map[string]float64{"k": 5}}
	if ts.Param("k", 10) != 5 || ts.Param("push", 1) != 1 {
		t.Error("unexpected param lookup")
	}
}
