package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", c.LogFormat)
	}

	if err := validateExperiment(&c.Experiment); err != nil {
		return fmt.Errorf("experiment validation failed: %w", err)
	}
	if err := validateSolver(&c.Solver); err != nil {
		return fmt.Errorf("solver validation failed: %w", err)
	}
	if err := validateData(&c.Data); err != nil {
		return fmt.Errorf("data validation failed: %w", err)
	}
	if err := validateProblem(&c.Problem); err != nil {
		return fmt.Errorf("problem validation failed: %w", err)
	}
	if err := validateTraining(&c.Training, c.Experiment.Method); err != nil {
		return fmt.Errorf("training validation failed: %w", err)
	}
	if c.Experiment.Predictor == "rf" && c.Experiment.Method != "2s" {
		return fmt.Errorf("random forest predictor only supports method 2s, got %s", c.Experiment.Method)
	}
	if c.Experiment.Predictor == "rf" && len(c.Training.Hidden) > 0 {
		return fmt.Errorf("random forest predictor takes no hidden layers")
	}
	return nil
}

func validateExperiment(e *Experiment) error {
	switch e.Method {
	case "2s", "spo", "bb":
	default:
		return fmt.Errorf("method must be 2s, spo or bb, got %q", e.Method)
	}
	switch e.Predictor {
	case "lr", "rf":
	default:
		return fmt.Errorf("predictor must be lr or rf, got %q", e.Predictor)
	}
	if e.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", e.Count)
	}
	if e.EvalEvery < 0 {
		return fmt.Errorf("eval_every cannot be negative")
	}
	if e.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

func validateSolver(s *Solver) error {
	switch s.Backend() {
	case "direct", "modeling":
	default:
		return fmt.Errorf("language must be direct, modeling, gurobi or pyomo, got %q", s.Language)
	}
	if s.Name == "" {
		return fmt.Errorf("solver name cannot be empty")
	}
	return nil
}

func validateData(d *Data) error {
	if d.Train <= 0 || d.Test <= 0 {
		return fmt.Errorf("train and test sizes must be positive, got %d and %d", d.Train, d.Test)
	}
	if d.Features <= 0 {
		return fmt.Errorf("features must be positive, got %d", d.Features)
	}
	if d.Degree <= 0 {
		return fmt.Errorf("degree must be positive, got %d", d.Degree)
	}
	if d.Noise < 0 || d.Noise >= 1 {
		return fmt.Errorf("noise half-width must be in [0, 1), got %g", d.Noise)
	}
	return nil
}

func validateProblem(p *Problem) error {
	switch p.Type {
	case "sp":
		if p.Grid[0] <= 0 || p.Grid[1] <= 0 || p.Grid[0]*p.Grid[1] < 2 {
			return fmt.Errorf("grid must have at least two nodes, got %dx%d", p.Grid[0], p.Grid[1])
		}
	case "ks":
		if p.Items <= 0 || p.Dim <= 0 {
			return fmt.Errorf("items and dim must be positive, got %d and %d", p.Items, p.Dim)
		}
		if p.Capacity <= 0 {
			return fmt.Errorf("capacity must be positive, got %d", p.Capacity)
		}
	case "tsp":
		if p.Nodes < 3 {
			return fmt.Errorf("nodes must be at least 3, got %d", p.Nodes)
		}
		switch p.Formulation {
		case "gg", "dfj", "mtz":
		default:
			return fmt.Errorf("formulation must be gg, dfj or mtz, got %q", p.Formulation)
		}
	default:
		return fmt.Errorf("type must be sp, ks or tsp, got %q", p.Type)
	}
	return nil
}

func validateTraining(t *Training, method string) error {
	if t.Batch <= 0 {
		return fmt.Errorf("batch must be positive, got %d", t.Batch)
	}
	if t.Epochs < 0 {
		return fmt.Errorf("epochs cannot be negative")
	}
	for _, h := range t.Hidden {
		if h <= 0 {
			return fmt.Errorf("hidden layer sizes must be positive, got %v", t.Hidden)
		}
	}
	if t.Optimizer != "sgd" && t.Optimizer != "adam" {
		return fmt.Errorf("optimizer must be sgd or adam, got %q", t.Optimizer)
	}
	if t.LR <= 0 {
		return fmt.Errorf("lr must be positive, got %g", t.LR)
	}
	if t.L1 < 0 || t.L2 < 0 {
		return fmt.Errorf("l1 and l2 cannot be negative")
	}
	if method == "bb" && t.Smoothing <= 0 {
		return fmt.Errorf("smoothing must be positive for bb, got %g", t.Smoothing)
	}
	if t.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", t.Workers)
	}
	return nil
}

// ProblemSize names the problem instance, e.g. h5w5 for a 5x5 grid.
func (c *Config) ProblemSize() string {
	p := c.Problem
	switch p.Type {
	case "ks":
		return fmt.Sprintf("i%dd%dc%d", p.Items, p.Dim, p.Capacity)
	case "tsp":
		return fmt.Sprintf("n%d", p.Nodes)
	default:
		return fmt.Sprintf("h%dw%d", p.Grid[0], p.Grid[1])
	}
}

// SavePath returns the results file for this configuration:
// <path>/<type>/<size>/<method>_<settings>.csv.
func (c *Config) SavePath() string {
	e, d, t := c.Experiment, c.Data, c.Training
	parts := []string{
		e.Method,
		"n" + strconv.Itoa(d.Train),
		"p" + strconv.Itoa(d.Features),
		"deg" + strconv.Itoa(d.Degree),
		"e" + formatFloat(d.Noise),
		c.Solver.Backend(),
		e.Predictor,
	}
	if e.Relax {
		parts = append(parts, "rel")
	}
	if c.Problem.Type == "tsp" {
		parts = append(parts, c.Problem.Formulation)
	}
	if e.Predictor == "lr" {
		hidden := make([]string, len(t.Hidden))
		for i, h := range t.Hidden {
			hidden[i] = strconv.Itoa(h)
		}
		if len(hidden) > 0 {
			parts = append(parts, "net"+strings.Join(hidden, "-"))
		}
		parts = append(parts,
			t.Optimizer,
			"lr"+formatFloat(t.LR),
			"bs"+strconv.Itoa(t.Batch),
			"l1"+formatFloat(t.L1),
			"l2"+formatFloat(t.L2),
		)
		if e.Method == "bb" {
			parts = append(parts, "smth"+formatFloat(t.Smoothing))
		}
	}
	name := strings.Join(parts, "_") + ".csv"
	return filepath.Join(e.Path, c.Problem.Type, c.ProblemSize(), name)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
