package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
)

func TestInstrumentSolveCountsOutcomes(t *testing.T) {
	r := NewRegistry(false)
	calls := 0
	solve := r.InstrumentSolve("sp", func(optmodel.Model) (*optmodel.Solution, error) {
		calls++
		switch calls {
		case 1:
			return nil, nil
		case 2:
			return nil, optmodel.ErrInfeasible
		default:
			return nil, errors.New("boom")
		}
	})
	for i := 0; i < 3; i++ {
		_, _ = solve(nil)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(r.solves.WithLabelValues("sp", Succeeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.solves.WithLabelValues("sp", Infeasible)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.solves.WithLabelValues("sp", Failed)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.solveTime))
}

func TestGaugesAndTextfile(t *testing.T) {
	r := NewRegistry(false)
	r.SetEpochLoss("spo", 0.25)
	r.SetRegret("spo", MetricTrueSPO, 0.1)
	r.ObserveSearch("tsp", 17)
	r.ExperimentDone(nil)
	r.ExperimentDone(errors.New("x"))

	assert.Equal(t, 0.25, testutil.ToFloat64(r.epochLoss.WithLabelValues("spo")))
	assert.Equal(t, 0.1, testutil.ToFloat64(r.regret.WithLabelValues("spo", MetricTrueSPO)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.experiments.WithLabelValues(Failed)))

	path := filepath.Join(t.TempDir(), "spotrain.prom")
	require.NoError(t, r.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.Contains(text, `spotrain_epoch_loss{method="spo"} 0.25`), text)
	assert.True(t, strings.Contains(text, `spotrain_bnb_nodes_count{problem="tsp"} 1`), text)
}
