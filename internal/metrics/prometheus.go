package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
)

// Series names recorded by training and evaluation.
const (
	MetricTrainLoss = "train_loss"
	MetricTrueSPO   = "true_spo"
	MetricUnambSPO  = "unamb_spo"
)

// Label names.
const (
	ProblemLabel = "problem"
	MethodLabel  = "method"
	OutcomeLabel = "outcome"
	RegretLabel  = "regret"
)

// Solve outcomes.
const (
	Succeeded  = "succeeded"
	Infeasible = "infeasible"
	Unbounded  = "unbounded"
	Failed     = "failed"
)

// Registry owns the Prometheus metrics of one process or experiment.
type Registry struct {
	reg *prometheus.Registry

	solves      *prometheus.CounterVec
	solveTime   *prometheus.HistogramVec
	searchNodes *prometheus.HistogramVec
	epochLoss   *prometheus.GaugeVec
	regret      *prometheus.GaugeVec
	experiments *prometheus.CounterVec
}

// NewRegistry creates and registers the spotrain metrics. withProcess adds
// the Go runtime and process collectors, which the daemon exposes.
func NewRegistry(withProcess bool) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		solves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotrain_solves_total",
				Help: "Number of optimization model solves, by outcome",
			},
			[]string{ProblemLabel, OutcomeLabel},
		),
		solveTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spotrain_solve_duration_seconds",
				Help:    "Wall time of a single solve",
				Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
			},
			[]string{ProblemLabel},
		),
		searchNodes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spotrain_bnb_nodes",
				Help:    "Relaxations solved per branch-and-bound search",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{ProblemLabel},
		),
		epochLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotrain_epoch_loss",
				Help: "Mean training loss of the last finished epoch",
			},
			[]string{MethodLabel},
		),
		regret: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotrain_regret",
				Help: "Last evaluated normalized regret",
			},
			[]string{MethodLabel, RegretLabel},
		),
		experiments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotrain_experiments_total",
				Help: "Finished experiments, by outcome",
			},
			[]string{OutcomeLabel},
		),
	}
	r.reg.MustRegister(r.solves, r.solveTime, r.searchNodes, r.epochLoss, r.regret, r.experiments)
	if withProcess {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Gatherer exposes the underlying registry for promhttp and textfile export.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

// InstrumentSolve wraps solve so that every call is counted and timed.
func (r *Registry) InstrumentSolve(problem string, solve optmodel.SolveFunc) optmodel.SolveFunc {
	return func(m optmodel.Model) (*optmodel.Solution, error) {
		start := time.Now()
		sol, err := solve(m)
		r.solveTime.WithLabelValues(problem).Observe(time.Since(start).Seconds())
		r.solves.WithLabelValues(problem, outcome(err)).Inc()
		return sol, err
	}
}

// ObserveSearch records the size of one branch-and-bound search.
func (r *Registry) ObserveSearch(problem string, nodes int) {
	r.searchNodes.WithLabelValues(problem).Observe(float64(nodes))
}

// SetEpochLoss publishes the mean loss of the last epoch.
func (r *Registry) SetEpochLoss(method string, loss float64) {
	r.epochLoss.WithLabelValues(method).Set(loss)
}

// SetRegret publishes an evaluated regret; kind is MetricTrueSPO or MetricUnambSPO.
func (r *Registry) SetRegret(method, kind string, value float64) {
	r.regret.WithLabelValues(method, kind).Set(value)
}

// ExperimentDone counts a finished experiment.
func (r *Registry) ExperimentDone(err error) {
	if err != nil {
		r.experiments.WithLabelValues(Failed).Inc()
		return
	}
	r.experiments.WithLabelValues(Succeeded).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, optmodel.ErrInfeasible):
		return Infeasible
	case errors.Is(err, optmodel.ErrUnbounded):
		return Unbounded
	default:
		return Failed
	}
}
