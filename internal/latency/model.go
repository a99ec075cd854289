// Package latency implements the truncated-Gaussian latency sampler and
// the per-packet jitter draw.
package latency

import (
	"fmt"
	"math/rand"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
)

// DefaultMaxAttempts bounds consecutive rejected draws in Sample
const DefaultMaxAttempts = 10_000

// Sampler draws from Normal(Mu, Sigma) restricted to [Min, Max]
type Sampler struct {
	Mu          float64
	Sigma       float64
	Min         float64
	Max         float64
	MaxAttempts int
	rng         *rand.Rand
}

// NewSampler creates a sampler that draws from the run's random stream
func NewSampler(mu, sigma, lo, hi float64, rng *rand.Rand) (*Sampler, error) {
	if lo > hi {
		return nil, fmt.Errorf("%w: latency min %g > max %g", domain.ErrInvalidConfig, lo, hi)
	}
	if sigma < 0 {
		return nil, fmt.Errorf("%w: latency sigma %g < 0", domain.ErrInvalidConfig, sigma)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random stream", domain.ErrInvalidConfig)
	}
	return &Sampler{
		Mu:          mu,
		Sigma:       sigma,
		Min:         lo,
		Max:         hi,
		MaxAttempts: DefaultMaxAttempts,
		rng:         rng,
	}, nil
}

// Sample returns the next accepted value
func (s *Sampler) Sample() (float64, error) {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		v := s.Mu + s.Sigma*s.rng.NormFloat64()
		if v >= s.Min && v <= s.Max {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %d draws from N(%g, %g) outside [%g, %g]",
		domain.ErrSamplingExhausted, attempts, s.Mu, s.Sigma, s.Min, s.Max)
}

// Jitter returns a zero-mean Gaussian perturbation with the given sigma
func Jitter(rng *rand.Rand, sigma float64) float64 {
	if sigma <= 0 {
		return 0
	}
	return sigma * rng.NormFloat64()
}
