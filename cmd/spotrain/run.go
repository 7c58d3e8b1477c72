package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/GoSim-25-26J-441/spotrain/internal/pipeline"
	"github.com/GoSim-25-26J-441/spotrain/internal/results"
	"github.com/GoSim-25-26J-441/spotrain/pkg/config"
	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
)

type runOptions struct {
	configPath string
	grid       []int
	// flags holds the flag values; only flags set on the command line are
	// copied onto the loaded configuration.
	flags *config.Config
}

func newRunCmd() *cobra.Command {
	o := &runOptions{flags: config.Default()}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run repeated experiments and append their regret to a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config(cmd.Flags())
			if err != nil {
				return err
			}
			log := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			logger.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			summary, err := pipeline.Run(ctx, cfg, pipeline.Options{
				Logger: log,
				OnExperiment: func(i int, row results.Row) {
					fmt.Fprintf(out, "experiment %d: true_spo=%.6f unamb_spo=%.6f elapsed=%.2fs\n", i, row.TrueSPO, row.UnambSPO, row.Elapsed)
				},
			})
			if summary != nil && len(summary.Rows) > 0 {
				fmt.Fprintf(out, "saved %d rows to %s\n", len(summary.Rows), summary.Path)
			}
			return err
		},
	}
	o.bindFlags(cmd.Flags())
	return cmd
}

func (o *runOptions) bindFlags(fs *pflag.FlagSet) {
	c := o.flags
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file; flags override its values")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (json, text)")
	fs.StringVar(&c.MetricsFile, "metrics-file", c.MetricsFile, "write a Prometheus textfile here after every experiment")

	fs.StringVar(&c.Experiment.Method, "mthd", c.Experiment.Method, "method (2s, spo, bb)")
	fs.Int64Var(&c.Experiment.Seed, "seed", c.Experiment.Seed, "random seed")
	fs.IntVar(&c.Experiment.Count, "expnum", c.Experiment.Count, "number of experiments")
	fs.BoolVar(&c.Experiment.Relax, "rel", c.Experiment.Relax, "train with the relaxation model")
	fs.StringVar(&c.Experiment.Predictor, "pred", c.Experiment.Predictor, "predictor of two-stage (lr, rf)")
	fs.IntVar(&c.Experiment.EvalEvery, "elog", c.Experiment.EvalEvery, "epochs between evaluation logs, 0 disables")
	fs.StringVar(&c.Problem.Formulation, "form", c.Problem.Formulation, "TSP formulation (gg, dfj, mtz)")
	fs.StringVar(&c.Experiment.Path, "path", c.Experiment.Path, "path to save results")

	fs.StringVar(&c.Solver.Language, "lan", c.Solver.Language, "model backend (direct, modeling; gurobi and pyomo are aliases)")
	fs.StringVar(&c.Solver.Name, "solver", c.Solver.Name, "solver for the modeling backend")

	fs.IntVar(&c.Data.Train, "data", c.Data.Train, "training data size")
	fs.IntVar(&c.Data.Test, "test", c.Data.Test, "test data size")
	fs.IntVar(&c.Data.Features, "feat", c.Data.Features, "feature size")
	fs.IntVar(&c.Data.Degree, "deg", c.Data.Degree, "features polynomial degree")
	fs.Float64Var(&c.Data.Noise, "noise", c.Data.Noise, "noise half-width")

	fs.StringVar(&c.Problem.Type, "prob", c.Problem.Type, "problem type (sp, ks, tsp)")
	fs.IntSliceVar(&o.grid, "grid", []int{c.Problem.Grid[0], c.Problem.Grid[1]}, "network grid for shortest path, as rows,cols")
	fs.IntVar(&c.Problem.Items, "items", c.Problem.Items, "number of items for knapsack")
	fs.IntVar(&c.Problem.Dim, "dim", c.Problem.Dim, "dimension for knapsack")
	fs.IntVar(&c.Problem.Capacity, "cap", c.Problem.Capacity, "capacity for knapsack")
	fs.IntVar(&c.Problem.Nodes, "nodes", c.Problem.Nodes, "number of nodes for TSP")

	fs.IntVar(&c.Training.Batch, "batch", c.Training.Batch, "batch size")
	fs.IntVar(&c.Training.Epochs, "epoch", c.Training.Epochs, "number of epochs")
	fs.IntSliceVar(&c.Training.Hidden, "net", c.Training.Hidden, "sizes of neural network hidden layers")
	fs.StringVar(&c.Training.Optimizer, "optm", c.Training.Optimizer, "optimizer (sgd, adam)")
	fs.Float64Var(&c.Training.LR, "lr", c.Training.LR, "learning rate")
	fs.Float64Var(&c.Training.L1, "l1", c.Training.L1, "l1 regularization parameter")
	fs.Float64Var(&c.Training.L2, "l2", c.Training.L2, "l2 regularization parameter")
	fs.Float64Var(&c.Training.Smoothing, "smth", c.Training.Smoothing, "smoothing parameter for Black-Box")
	fs.IntVar(&c.Training.Workers, "proc", c.Training.Workers, "number of workers for optimization")
}

// overrides copies one flag's value from the flag config onto the loaded one.
var overrides = map[string]func(dst, src *config.Config){
	"log-level":    func(d, s *config.Config) { d.LogLevel = s.LogLevel },
	"log-format":   func(d, s *config.Config) { d.LogFormat = s.LogFormat },
	"metrics-file": func(d, s *config.Config) { d.MetricsFile = s.MetricsFile },
	"mthd":         func(d, s *config.Config) { d.Experiment.Method = s.Experiment.Method },
	"seed":         func(d, s *config.Config) { d.Experiment.Seed = s.Experiment.Seed },
	"expnum":       func(d, s *config.Config) { d.Experiment.Count = s.Experiment.Count },
	"rel":          func(d, s *config.Config) { d.Experiment.Relax = s.Experiment.Relax },
	"pred":         func(d, s *config.Config) { d.Experiment.Predictor = s.Experiment.Predictor },
	"elog":         func(d, s *config.Config) { d.Experiment.EvalEvery = s.Experiment.EvalEvery },
	"form":         func(d, s *config.Config) { d.Problem.Formulation = s.Problem.Formulation },
	"path":         func(d, s *config.Config) { d.Experiment.Path = s.Experiment.Path },
	"lan":          func(d, s *config.Config) { d.Solver.Language = s.Solver.Language },
	"solver":       func(d, s *config.Config) { d.Solver.Name = s.Solver.Name },
	"data":         func(d, s *config.Config) { d.Data.Train = s.Data.Train },
	"test":         func(d, s *config.Config) { d.Data.Test = s.Data.Test },
	"feat":         func(d, s *config.Config) { d.Data.Features = s.Data.Features },
	"deg":          func(d, s *config.Config) { d.Data.Degree = s.Data.Degree },
	"noise":        func(d, s *config.Config) { d.Data.Noise = s.Data.Noise },
	"prob":         func(d, s *config.Config) { d.Problem.Type = s.Problem.Type },
	"grid":         func(d, s *config.Config) { d.Problem.Grid = s.Problem.Grid },
	"items":        func(d, s *config.Config) { d.Problem.Items = s.Problem.Items },
	"dim":          func(d, s *config.Config) { d.Problem.Dim = s.Problem.Dim },
	"cap":          func(d, s *config.Config) { d.Problem.Capacity = s.Problem.Capacity },
	"nodes":        func(d, s *config.Config) { d.Problem.Nodes = s.Problem.Nodes },
	"batch":        func(d, s *config.Config) { d.Training.Batch = s.Training.Batch },
	"epoch":        func(d, s *config.Config) { d.Training.Epochs = s.Training.Epochs },
	"net":          func(d, s *config.Config) { d.Training.Hidden = append([]int(nil), s.Training.Hidden...) },
	"optm":         func(d, s *config.Config) { d.Training.Optimizer = s.Training.Optimizer },
	"lr":           func(d, s *config.Config) { d.Training.LR = s.Training.LR },
	"l1":           func(d, s *config.Config) { d.Training.L1 = s.Training.L1 },
	"l2":           func(d, s *config.Config) { d.Training.L2 = s.Training.L2 },
	"smth":         func(d, s *config.Config) { d.Training.Smoothing = s.Training.Smoothing },
	"proc":         func(d, s *config.Config) { d.Training.Workers = s.Training.Workers },
}

// config builds the run configuration: defaults or the --config file, then
// every flag given on the command line.
func (o *runOptions) config(fs *pflag.FlagSet) (*config.Config, error) {
	if len(o.grid) != 2 {
		return nil, fmt.Errorf("--grid takes exactly two values, got %v", o.grid)
	}
	o.flags.Problem.Grid = [2]int{o.grid[0], o.grid[1]}

	cfg := o.flags
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		fs.Visit(func(f *pflag.Flag) {
			if apply, ok := overrides[f.Name]; ok {
				apply(loaded, o.flags)
			}
		})
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
