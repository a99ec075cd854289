package generator

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/network"
)

// SendPlanEntry is one planned emission
type SendPlanEntry struct {
	SendTime        float64
	Path            *network.Path
	ExtraDelay      float64
	ExpectedArrival float64
}

// Plan is the full schedule computed before any packet is sent
type Plan struct {
	Entries    []SendPlanEntry
	Target     float64 // common arrival instant
	MinLatency float64
	MaxLatency float64
	Budget     float64
	Window     float64
	Slots      int // candidate send times examined
	Skipped    int // candidate send times with no admissible path
}

// latencyBuckets maps truncated latency to the paths that have it
type latencyBuckets struct {
	byKey map[int64][]*network.Path
	keys  []int64 // ascending
}

func bucketize(paths []*network.Path) latencyBuckets {
	b := latencyBuckets{byKey: make(map[int64][]*network.Path)}
	for _, p := range paths {
		k := int64(math.Floor(p.Latency()))
		if _, ok := b.byKey[k]; !ok {
			b.keys = append(b.keys, k)
		}
		b.byKey[k] = append(b.byKey[k], p)
	}
	sort.Slice(b.keys, func(i, j int) bool { return b.keys[i] < b.keys[j] })
	return b
}

// span returns the index range [lo, hi) of keys within [floor(rMin), floor(rMax)]
func (b latencyBuckets) span(rMin, rMax float64) (int, int) {
	kMin := int64(math.Floor(rMin))
	kMax := int64(math.Floor(rMax))
	lo := sort.Search(len(b.keys), func(i int) bool { return b.keys[i] >= kMin })
	hi := sort.Search(len(b.keys), func(i int) bool { return b.keys[i] > kMax })
	return lo, hi
}

// BuildPlan computes, for every candidate send time t = 0, W, 2W, ... up to
// the target arrival, a path and extra wait such that
// t + latency + extra == target and 0 <= extra <= budget.
//
// The admissible latencies for t are
// [max(min, target-budget-t), min(max, target-t)]. Buckets in that window
// are visited in a uniformly random order and the first one holding an
// admissible path wins; a path is then drawn uniformly from it. Slots with
// no admissible path are skipped.
func BuildPlan(paths []*network.Path, budget, window float64, rng *rand.Rand) (*Plan, error) {
	if window <= 0 || math.IsNaN(window) {
		return nil, fmt.Errorf("%w: window granularity %g <= 0", domain.ErrInvalidConfig, window)
	}
	if budget < 0 || math.IsNaN(budget) {
		return nil, fmt.Errorf("%w: delay budget %g < 0", domain.ErrInvalidConfig, budget)
	}

	plan := &Plan{Budget: budget, Window: window}
	if len(paths) == 0 {
		return plan, nil
	}

	plan.MinLatency, plan.MaxLatency = network.LatencyBounds(paths)
	plan.Target = plan.MaxLatency + budget
	buckets := bucketize(paths)

	swaps := make(map[int]int)
	var admissible []*network.Path

	for i := 0; ; i++ {
		t := float64(i) * window
		if t > plan.Target {
			break
		}
		plan.Slots++

		rMin := math.Max(plan.MinLatency, plan.Target-budget-t)
		rMax := math.Min(plan.MaxLatency, plan.Target-t)
		if rMin > rMax {
			plan.Skipped++
			continue
		}

		// Lazy Fisher-Yates over the candidate keys: only the visited
		// prefix of the permutation is materialized.
		lo, hi := buckets.span(rMin, rMax)
		n := hi - lo
		clear(swaps)
		at := func(i int) int {
			if v, ok := swaps[i]; ok {
				return v
			}
			return i
		}

		var chosen *network.Path
		for j := 0; j < n && chosen == nil; j++ {
			r := j + rng.Intn(n-j)
			vj, vr := at(j), at(r)
			swaps[j], swaps[r] = vr, vj

			admissible = admissible[:0]
			for _, p := range buckets.byKey[buckets.keys[lo+vr]] {
				if l := p.Latency(); l >= rMin && l <= rMax {
					admissible = append(admissible, p)
				}
			}
			if len(admissible) > 0 {
				chosen = admissible[rng.Intn(len(admissible))]
			}
		}
		if chosen == nil {
			plan.Skipped++
			continue
		}

		// Clamp float rounding at the window edges
		extra := math.Min(budget, math.Max(0, plan.Target-chosen.Latency()-t))
		plan.Entries = append(plan.Entries, SendPlanEntry{
			SendTime:        t,
			Path:            chosen,
			ExtraDelay:      extra,
			ExpectedArrival: plan.Target,
		})
	}
	return plan, nil
}

// DeadlineSync replays a precomputed plan so that packets sent over paths
// of very different latency all arrive at the plan's target instant.
type DeadlineSync struct {
	emitter
	paths  []*network.Path
	budget float64
	window float64
	rng    *rand.Rand

	plan *Plan
	next int
}

// NewDeadlineSync validates the parameters and creates the generator. The
// plan is computed when the generator first runs.
func NewDeadlineSync(paths []*network.Path, t Transport, rng *rand.Rand, budget, window float64, opts Options) (*DeadlineSync, error) {
	if window <= 0 || math.IsNaN(window) {
		return nil, fmt.Errorf("%w: window granularity %g <= 0", domain.ErrInvalidConfig, window)
	}
	if budget < 0 || math.IsNaN(budget) {
		return nil, fmt.Errorf("%w: delay budget %g < 0", domain.ErrInvalidConfig, budget)
	}
	assigned := make([]*network.Path, len(paths))
	copy(assigned, paths)
	return &DeadlineSync{
		emitter: newEmitter(t, opts),
		paths:   assigned,
		budget:  budget,
		window:  window,
		rng:     rng,
	}, nil
}

// Resume implements engine.Task
func (g *DeadlineSync) Resume(now float64) (float64, bool) {
	switch g.state {
	case Done:
		return 0, false
	case Created:
		plan, err := BuildPlan(g.paths, g.budget, g.window, g.rng)
		if err != nil {
			// Parameters were validated in NewDeadlineSync
			g.log.Error("build plan", zap.Error(err))
			g.finishRun("plan error")
			return 0, false
		}
		g.plan = plan
		g.state = Running
		g.log.Debug("deadline plan built",
			zap.String("src", g.opts.Src),
			zap.Int("entries", len(plan.Entries)),
			zap.Int("skipped_slots", plan.Skipped),
			zap.Float64("target", plan.Target))
	}

	finish := g.opts.finish()
	entries := g.plan.Entries
	for g.next < len(entries) && entries[g.next].SendTime <= now {
		if now >= finish {
			g.finishRun("finish bound")
			return 0, false
		}
		e := entries[g.next]
		g.transport.DispatchPending(e.Path, domain.PendingPacket{
			Packet:     g.packet(now),
			ExtraDelay: e.ExtraDelay,
		})
		g.next++
	}

	if g.next >= len(entries) {
		g.finishRun("plan exhausted")
		return 0, false
	}
	if entries[g.next].SendTime >= finish {
		g.finishRun("finish bound")
		return 0, false
	}
	return entries[g.next].SendTime, true
}

// Plan returns the computed plan, or nil before the generator has run
func (g *DeadlineSync) Plan() *Plan { return g.plan }
