package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("../../config/experiment.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.Experiment.Method != "spo" || cfg.Experiment.Count != 3 {
		t.Errorf("Unexpected experiment %+v", cfg.Experiment)
	}
	if cfg.Problem.Grid != [2]int{5, 5} {
		t.Errorf("Expected grid 5x5, got %v", cfg.Problem.Grid)
	}
	if cfg.Data.Noise != 0.5 || cfg.Data.Degree != 2 {
		t.Errorf("Unexpected data %+v", cfg.Data)
	}
	if cfg.Training.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Training.Workers)
	}
	// Omitted fields keep their defaults.
	if cfg.Problem.Items != 48 || cfg.Problem.Formulation != "gg" {
		t.Errorf("Expected knapsack and tsp defaults, got %+v", cfg.Problem)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("Expected read error, got %v", err)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("experiment:\n  method: dbb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"method", func(c *Config) { c.Experiment.Method = "dbb" }, "method"},
		{"count", func(c *Config) { c.Experiment.Count = 0 }, "count"},
		{"language", func(c *Config) { c.Solver.Language = "cplex" }, "language"},
		{"noise", func(c *Config) { c.Data.Noise = 1 }, "noise"},
		{"problem", func(c *Config) { c.Problem.Type = "vrp" }, "type"},
		{"tsp nodes", func(c *Config) { c.Problem.Type = "tsp"; c.Problem.Nodes = 2 }, "nodes"},
		{"formulation", func(c *Config) { c.Problem.Type = "tsp"; c.Problem.Formulation = "x" }, "formulation"},
		{"knapsack", func(c *Config) { c.Problem.Type = "ks"; c.Problem.Capacity = 0 }, "capacity"},
		{"optimizer", func(c *Config) { c.Training.Optimizer = "rmsprop" }, "optimizer"},
		{"hidden", func(c *Config) { c.Training.Hidden = []int{4, 0} }, "hidden"},
		{"smoothing", func(c *Config) { c.Experiment.Method = "bb"; c.Training.Smoothing = 0 }, "smoothing"},
		{"workers", func(c *Config) { c.Training.Workers = 0 }, "workers"},
		{"forest with spo", func(c *Config) { c.Experiment.Predictor = "rf" }, "random forest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSolverAliases(t *testing.T) {
	if got := (Solver{Language: "gurobi"}).Backend(); got != "direct" {
		t.Errorf("Expected gurobi to map to direct, got %s", got)
	}
	if got := (Solver{Language: "pyomo"}).Backend(); got != "modeling" {
		t.Errorf("Expected pyomo to map to modeling, got %s", got)
	}
}

func TestSavePath(t *testing.T) {
	cfg := Default()
	cfg.Experiment.Path = "res"
	cfg.Problem.Grid = [2]int{5, 5}
	cfg.Training.Hidden = []int{16, 8}
	want := filepath.Join("res", "sp", "h5w5", "spo_n1000_p5_deg1_e0_direct_lr_net16-8_adam_lr0.001_bs32_l10_l20.csv")
	if got := cfg.SavePath(); got != want {
		t.Errorf("SavePath() = %s, want %s", got, want)
	}

	cfg.Experiment.Method = "2s"
	cfg.Experiment.Predictor = "rf"
	cfg.Training.Hidden = nil
	cfg.Problem.Type = "tsp"
	cfg.Problem.Nodes = 10
	cfg.Experiment.Relax = true
	want = filepath.Join("res", "tsp", "n10", "2s_n1000_p5_deg1_e0_direct_rf_rel_gg.csv")
	if got := cfg.SavePath(); got != want {
		t.Errorf("SavePath() = %s, want %s", got, want)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Training.Hidden = []int{32}
	data, err := MarshalYAML(cfg)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseConfigYAML(data)
	if err != nil {
		t.Fatalf("Failed to parse marshalled config: %v", err)
	}
	if back.Training.Hidden[0] != 32 || back.Problem.Grid != cfg.Problem.Grid {
		t.Errorf("Round trip lost fields: %+v", back)
	}
}
