// Package network models single-hop wires, their composition into
// multi-hop paths, and packet transit across them.
package network

import (
	"fmt"
	"math"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
)

// Wire is one hop's propagation-delay distribution
type Wire struct {
	ID          int
	Layer       int
	Latency     float64 // nominal
	JitterSigma float64
}

// NewWire validates and returns a wire
func NewWire(id, layer int, latency, jitter float64) (Wire, error) {
	if latency < 0 || math.IsNaN(latency) {
		return Wire{}, fmt.Errorf("%w: wire %d latency %g < 0", domain.ErrInvalidConfig, id, latency)
	}
	if jitter < 0 || math.IsNaN(jitter) {
		return Wire{}, fmt.Errorf("%w: wire %d jitter %g < 0", domain.ErrInvalidConfig, id, jitter)
	}
	return Wire{ID: id, Layer: layer, Latency: latency, JitterSigma: jitter}, nil
}

// Path is an ordered chain of wires. A path owns its hop list; it is never
// mutated after construction.
type Path struct {
	ID       int
	hops     []Wire
	latency  float64
	variance float64
}

// FromWire returns a single-hop path
func FromWire(w Wire) *Path {
	return &Path{
		hops:     []Wire{w},
		latency:  w.Latency,
		variance: w.JitterSigma * w.JitterSigma,
	}
}

// Compose returns a new path traversing a's hops and then b's.
// The nominal latency of the result is exactly a.Latency() + b.Latency();
// jitter does not contribute. Neither input is modified.
func Compose(a, b *Path) *Path {
	hops := make([]Wire, 0, len(a.hops)+len(b.hops))
	hops = append(hops, a.hops...)
	hops = append(hops, b.hops...)
	return &Path{
		hops:     hops,
		latency:  a.latency + b.latency,
		variance: a.variance + b.variance,
	}
}

// Latency returns the nominal (mean) latency of the path
func (p *Path) Latency() float64 { return p.latency }

// JitterSigma returns the standard deviation of the path's total delay,
// treating hop perturbations as independent.
func (p *Path) JitterSigma() float64 { return math.Sqrt(p.variance) }

// Len returns the number of hops
func (p *Path) Len() int { return len(p.hops) }

// Hops returns a copy of the hop list
func (p *Path) Hops() []Wire {
	out := make([]Wire, len(p.hops))
	copy(out, p.hops)
	return out
}

func (p *Path) withID(id int) *Path {
	c := *p
	c.ID = id
	return &c
}

func (p *Path) String() string {
	return fmt.Sprintf("path#%d(hops=%d, latency=%.3f)", p.ID, len(p.hops), p.latency)
}
