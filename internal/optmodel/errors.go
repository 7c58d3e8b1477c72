package optmodel

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by models and solvers. Callers match them with errors.Is.
var (
	ErrDimension     = errors.New("optmodel: dimension mismatch")
	ErrInfeasible    = errors.New("optmodel: problem is infeasible")
	ErrUnbounded     = errors.New("optmodel: problem is unbounded")
	ErrSolverBackend = errors.New("optmodel: solver backend failure")
	ErrStaleSolution = errors.New("optmodel: solution is stale")
	ErrNoObjective   = errors.New("optmodel: objective not set")
	ErrUnknownSolver = errors.New("optmodel: unknown solver")
	ErrInvalidSpec   = errors.New("optmodel: invalid model spec")
)

// DimensionError reports a vector whose length does not match the model.
type DimensionError struct {
	Op   string
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("optmodel: %s: dimension mismatch: got %d, want %d", e.Op, e.Got, e.Want)
}

// Is makes a *DimensionError match ErrDimension.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimension
}

func checkDim(op string, got, want int) error {
	if got != want {
		return &DimensionError{Op: op, Got: got, Want: want}
	}
	return nil
}
