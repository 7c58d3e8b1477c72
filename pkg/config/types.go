package config

// Config is the full configuration of an experiment run.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or text
	// MetricsFile, when set, receives a Prometheus textfile after every experiment.
	MetricsFile string `yaml:"metrics_file,omitempty"`

	Experiment Experiment `yaml:"experiment"`
	Solver     Solver     `yaml:"solver"`
	Data       Data       `yaml:"data"`
	Problem    Problem    `yaml:"problem"`
	Training   Training   `yaml:"training"`
}

// Experiment controls repetitions and what is trained.
type Experiment struct {
	Method    string `yaml:"method"` // 2s, spo or bb
	Seed      int64  `yaml:"seed"`
	Count     int    `yaml:"count"`
	Relax     bool   `yaml:"relax"`     // train against the LP relaxation
	Predictor string `yaml:"predictor"` // lr or rf
	EvalEvery int    `yaml:"eval_every"`
	Path      string `yaml:"path"` // results root directory
}

// Solver selects the model backend.
type Solver struct {
	// Language is the backend variant: direct or modeling. The names gurobi
	// and pyomo are accepted as aliases.
	Language string `yaml:"language"`
	// Name is the registered solver used by the modeling backend.
	Name string `yaml:"name"`
}

// Data sizes the synthetic data.
type Data struct {
	Train    int     `yaml:"train"`
	Test     int     `yaml:"test"`
	Features int     `yaml:"features"`
	Degree   int     `yaml:"degree"`
	Noise    float64 `yaml:"noise"` // half-width
}

// Problem selects the optimization problem and its size.
type Problem struct {
	Type string `yaml:"type"` // sp, ks or tsp
	// Shortest path grid as rows, cols.
	Grid [2]int `yaml:"grid,flow"`
	// Knapsack.
	Items    int `yaml:"items"`
	Dim      int `yaml:"dim"`
	Capacity int `yaml:"capacity"`
	// TSP.
	Nodes       int    `yaml:"nodes"`
	Formulation string `yaml:"formulation"` // gg, dfj or mtz
}

// Training holds the learning hyperparameters.
type Training struct {
	Batch     int     `yaml:"batch"`
	Epochs    int     `yaml:"epochs"`
	Hidden    []int   `yaml:"hidden,flow"`
	Optimizer string  `yaml:"optimizer"` // sgd or adam
	LR        float64 `yaml:"lr"`
	L1        float64 `yaml:"l1"`
	L2        float64 `yaml:"l2"`
	Smoothing float64 `yaml:"smoothing"`
	Workers   int     `yaml:"workers"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Experiment: Experiment{
			Method:    "spo",
			Seed:      135,
			Count:     10,
			Predictor: "lr",
			Path:      "./res",
		},
		Solver: Solver{Language: "direct", Name: "simplex"},
		Data:   Data{Train: 1000, Test: 1000, Features: 5, Degree: 1},
		Problem: Problem{
			Type:        "sp",
			Grid:        [2]int{20, 20},
			Items:       48,
			Dim:         3,
			Capacity:    30,
			Nodes:       20,
			Formulation: "gg",
		},
		Training: Training{
			Batch:     32,
			Epochs:    100,
			Optimizer: "adam",
			LR:        1e-3,
			Smoothing: 10,
			Workers:   1,
		},
	}
}

// Backend returns the backend variant name with aliases resolved.
func (s Solver) Backend() string {
	switch s.Language {
	case "gurobi":
		return "direct"
	case "pyomo":
		return "modeling"
	}
	return s.Language
}
