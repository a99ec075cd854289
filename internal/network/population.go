package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
)

// MaxPopulation caps the unsampled cross product
const MaxPopulation = 1 << 22

// LatencySource yields per-hop nominal latencies
type LatencySource interface {
	Sample() (float64, error)
}

// BuildPopulation draws pathsPerLayer fresh wires for each of layers rounds
// and returns the full cross product of per-layer choices, ordered by
// (previous path, new wire). Every member's latency is the sum of its hops.
func BuildPopulation(src LatencySource, layers, pathsPerLayer int, jitter float64) ([]*Path, error) {
	if layers <= 0 {
		return nil, fmt.Errorf("%w: layers %d <= 0", domain.ErrInvalidConfig, layers)
	}
	if pathsPerLayer <= 0 {
		return nil, fmt.Errorf("%w: paths per layer %d <= 0", domain.ErrInvalidConfig, pathsPerLayer)
	}
	if size := math.Pow(float64(pathsPerLayer), float64(layers)); size > MaxPopulation {
		return nil, fmt.Errorf("%w: population %d^%d exceeds %d",
			domain.ErrInvalidConfig, pathsPerLayer, layers, MaxPopulation)
	}

	var paths []*Path
	for layer := 0; layer < layers; layer++ {
		wires := make([]*Path, pathsPerLayer)
		for j := range wires {
			lat, err := src.Sample()
			if err != nil {
				return nil, fmt.Errorf("layer %d wire %d: %w", layer, j, err)
			}
			w, err := NewWire(layer*pathsPerLayer+j, layer, lat, jitter)
			if err != nil {
				return nil, err
			}
			wires[j] = FromWire(w)
		}

		if paths == nil {
			paths = wires
			continue
		}
		next := make([]*Path, 0, len(paths)*len(wires))
		for _, p := range paths {
			for _, w := range wires {
				next = append(next, Compose(p, w))
			}
		}
		paths = next
	}

	for i, p := range paths {
		paths[i] = p.withID(i)
	}
	return paths, nil
}

// Stride returns the subsampling step for a population of n bounded to
// roughly target members.
func Stride(n, target int) int {
	if target <= 0 {
		return 1
	}
	k := n / target
	if k < 1 {
		k = 1
	}
	return k
}

// Subsample sorts paths by latency and keeps every k-th one, k = Stride.
// When the stride would skip the slowest path, the last kept slot takes it
// instead, so the result keeps both extremes and has ceil(n/k) members
// (a single-member result keeps only the fastest path).
// IDs are reassigned by latency rank. The input slice is not modified.
func Subsample(paths []*Path, target int) []*Path {
	n := len(paths)
	if n == 0 {
		return nil
	}

	sorted := make([]*Path, n)
	copy(sorted, paths)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Latency() < sorted[j].Latency()
	})

	k := Stride(n, target)
	kept := make([]*Path, 0, (n+k-1)/k)
	for i := 0; i < n; i += k {
		kept = append(kept, sorted[i])
	}
	if (n-1)%k != 0 && len(kept) > 1 {
		kept[len(kept)-1] = sorted[n-1]
	}

	for i, p := range kept {
		kept[i] = p.withID(i)
	}
	return kept
}

// LatencyBounds returns the smallest and largest latency in paths
func LatencyBounds(paths []*Path) (lo, hi float64) {
	if len(paths) == 0 {
		return 0, 0
	}
	lo, hi = paths[0].Latency(), paths[0].Latency()
	for _, p := range paths[1:] {
		if l := p.Latency(); l < lo {
			lo = l
		} else if l > hi {
			hi = l
		}
	}
	return lo, hi
}
