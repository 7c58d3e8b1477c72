package predictor

import (
	"fmt"
	"math"
	"strings"
)

// Optimizer applies one gradient step to a parameter vector in place.
type Optimizer interface {
	Step(params, grad []float64)
	LR() float64
	SetLR(lr float64)
}

// NewOptimizer returns "sgd" or "adam" with learning rate lr.
func NewOptimizer(name string, lr float64) (Optimizer, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("predictor: learning rate must be positive, got %g", lr)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sgd":
		return &SGD{lr: lr}, nil
	case "adam":
		return NewAdam(lr), nil
	default:
		return nil, fmt.Errorf("predictor: unknown optimizer %q", name)
	}
}

// SGD is plain gradient descent.
type SGD struct {
	lr float64
}

func (o *SGD) LR() float64      { return o.lr }
func (o *SGD) SetLR(lr float64) { o.lr = lr }

func (o *SGD) Step(params, grad []float64) {
	for i, g := range grad {
		params[i] -= o.lr * g
	}
}

// Adam implements the Adam optimizer with bias correction.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	m    []float64
	v    []float64
	step int
}

// NewAdam creates an Adam optimizer with the usual moment decay rates.
func NewAdam(lr float64) *Adam {
	return &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
	}
}

func (a *Adam) LR() float64      { return a.lr }
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// Step updates params from grad. The moment buffers are sized on first use
// and must see the same parameter vector afterwards.
func (a *Adam) Step(params, grad []float64) {
	if a.m == nil {
		a.m = make([]float64, len(params))
		a.v = make([]float64, len(params))
	}
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, g := range grad {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2
		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}
