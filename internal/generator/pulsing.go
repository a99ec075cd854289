package generator

import (
	"sort"

	"go.uber.org/zap"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/network"
)

// Pulsing launches one packet per path, slowest path first, waiting the
// latency difference between consecutive paths. Ignoring jitter, every
// packet's send time plus nominal latency lands on the same instant.
type Pulsing struct {
	emitter
	assigned []*network.Path

	paths []*network.Path // sorted by descending latency once running
	gaps  []float64
	next  int
}

// NewPulsing creates a pulsing generator over the assigned paths
func NewPulsing(paths []*network.Path, t Transport, opts Options) *Pulsing {
	assigned := make([]*network.Path, len(paths))
	copy(assigned, paths)
	return &Pulsing{
		emitter:  newEmitter(t, opts),
		assigned: assigned,
	}
}

// PulseOrder returns paths sorted by descending latency and the gaps
// between consecutive latencies.
func PulseOrder(paths []*network.Path) ([]*network.Path, []float64) {
	sorted := make([]*network.Path, len(paths))
	copy(sorted, paths)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Latency() > sorted[j].Latency()
	})
	var gaps []float64
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i-1].Latency()-sorted[i].Latency())
	}
	return sorted, gaps
}

// Resume implements engine.Task
func (g *Pulsing) Resume(now float64) (float64, bool) {
	switch g.state {
	case Done:
		return 0, false
	case Created:
		g.paths, g.gaps = PulseOrder(g.assigned)
		g.state = Running
		g.log.Debug("pulsing generator started",
			zap.String("src", g.opts.Src),
			zap.Int("paths", len(g.paths)))
	}

	if now >= g.opts.finish() {
		g.finishRun("finish bound")
		return 0, false
	}
	if g.next >= len(g.paths) {
		g.finishRun("paths exhausted")
		return 0, false
	}

	path := g.paths[g.next]
	g.transport.Dispatch(path, g.packet(now))
	g.next++

	if g.next >= len(g.paths) {
		g.finishRun("paths exhausted")
		return 0, false
	}
	return now + g.gaps[g.next-1], true
}

// Gaps returns the inter-send gaps once the generator has started
func (g *Pulsing) Gaps() []float64 {
	out := make([]float64, len(g.gaps))
	copy(out, g.gaps)
	return out
}
