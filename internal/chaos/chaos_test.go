package chaos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"libracirc/internal/catalog"
	"libracirc/internal/circulation"
	"libracirc/internal/clock"
	"libracirc/internal/directory"
	"libracirc/internal/loan"
	"libracirc/internal/reservation"
	"libracirc/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTarget() Target {
	st := memory.New()
	clk := clock.NewFake(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	users := directory.NewStatic()
	cat := catalog.NewService(st, st, clk)
	ledger := loan.NewService(st, st, cat, users, clk, loan.DefaultPolicy())
	queue := reservation.NewService(st, st, cat, users, clk)
	return Target{
		Catalog: cat,
		Ledger:  ledger,
		Engine: circulation.NewService(circulation.Deps{
			Catalog:   cat,
			Ledger:    ledger,
			Queue:     queue,
			Directory: users,
			Clock:     clk,
			Logger:    quietLogger(),
		}),
		Users: users,
	}
}

func TestThresholdHolds(t *testing.T) {
	tests := []struct {
		op   string
		v    float64
		want bool
	}{
		{">", 2, true},
		{">", 1, false},
		{"<", 0, true},
		{">=", 1, true},
		{"<=", 2, false},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Threshold{Operator: tt.op, Value: 1}.Holds(tt.v), "%v %s 1", tt.v, tt.op)
	}
}

func TestRunExperimentAbortsOnInvalidSteadyState(t *testing.T) {
	e := NewEngine(quietLogger())
	injected := false
	res, err := e.RunExperiment(context.Background(), Experiment{
		Name: "broken",
		SteadyState: []Metric{{
			Name:      "errors",
			Query:     func(context.Context) (float64, error) { return 3, nil },
			Threshold: Threshold{Operator: "==", Value: 0},
		}},
		Method: []Action{{Execute: func(context.Context) error { injected = true; return nil }}},
	})
	require.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, injected)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, 3.0, res.Violations[0].Actual)
}

func TestRunExperimentRecordsMethodErrors(t *testing.T) {
	e := NewEngine(quietLogger())
	rolledBack := false
	res, err := e.RunExperiment(context.Background(), Experiment{
		Name: "failing-method",
		SteadyState: []Metric{{
			Name:      "zero",
			Query:     func(context.Context) (float64, error) { return 0, nil },
			Threshold: Threshold{Operator: "==", Value: 0},
		}},
		Method: []Action{{Target: "db", Execute: func(context.Context) error { return errors.New("injected") }}},
		Rollback: []Action{{Execute: func(context.Context) error {
			rolledBack = true
			return nil
		}}},
		Validation: []Assertion{{Metric: "zero", Condition: func(v float64) bool { return v == 0 }}},
	})
	require.NoError(t, err)
	assert.True(t, rolledBack)
	assert.True(t, res.SteadyStateValid)
	assert.False(t, res.HypothesisHeld)
	require.Len(t, res.ErrorEvents, 1)
	assert.Equal(t, "db", res.ErrorEvents[0].Component)
	assert.Len(t, e.Results(), 1)
}

func TestCirculationGameDay(t *testing.T) {
	target := newTarget()
	e := NewEngine(quietLogger())
	e.Register(Experiments(target, 25)...)

	err := e.ExecuteGameDay(context.Background(), GameDay{
		Name:      "test",
		Date:      time.Now(),
		Scenarios: e.Experiments(),
	})
	require.NoError(t, err)

	results := e.Results()
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.HypothesisHeld, "%s: %v", r.ExperimentName, r.FailedAssertions)
	}
	assert.Equal(t, 1.0, results[0].Observations["successful_issues"])
	assert.Equal(t, float64(loan.DefaultPolicy().MaxLoans), results[1].Observations["successful_issues"])

	// Rollback returned every loan.
	active, err := target.Ledger.ListActive(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGameDayReportsFailures(t *testing.T) {
	e := NewEngine(quietLogger())
	bad := Experiment{
		Name: "never-holds",
		Validation: []Assertion{{
			Metric:    "missing",
			Condition: func(float64) bool { return true },
			Message:   "metric was never observed",
		}},
	}
	err := e.ExecuteGameDay(context.Background(), GameDay{Name: "test", Scenarios: []Experiment{bad}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never-holds")
}
