package utils

import (
	"math/rand"
)

// RandSource is a seeded random number generator. Every consumer that needs
// randomness receives its own source; there is no package-level generator.
// A RandSource is not safe for concurrent use.
type RandSource struct {
	seed int64
	rng  *rand.Rand
}

// NewRandSource creates a random source with the given seed. Equal seeds
// produce equal streams.
func NewRandSource(seed int64) *RandSource {
	return &RandSource{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with.
func (r *RandSource) Seed() int64 { return r.seed }

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// Int63n returns a random int64 in [0, n)
func (r *RandSource) Int63n(n int64) int64 {
	return r.rng.Int63n(n)
}

// NormFloat64 returns a normally distributed random number with mean and stddev
func (r *RandSource) NormFloat64(mean, stddev float64) float64 {
	return r.rng.NormFloat64()*stddev + mean
}

// BernoulliFloat64 returns 1.0 with probability p, 0.0 otherwise
func (r *RandSource) BernoulliFloat64(p float64) float64 {
	if r.rng.Float64() < p {
		return 1.0
	}
	return 0.0
}

// UniformFloat64 returns a uniformly distributed random number in [min, max)
func (r *RandSource) UniformFloat64(min, max float64) float64 {
	return min + r.rng.Float64()*(max-min)
}

// Perm returns a random permutation of [0, n).
func (r *RandSource) Perm(n int) []int {
	return r.rng.Perm(n)
}

// Shuffle randomizes the order of n elements with the given swap function.
func (r *RandSource) Shuffle(n int, swap func(i, j int)) {
	r.rng.Shuffle(n, swap)
}

// Child derives an independent source from the next value of r, so that
// sub-tasks get reproducible streams without sharing one generator.
func (r *RandSource) Child() *RandSource {
	return NewRandSource(r.rng.Int63())
}
