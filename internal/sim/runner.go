// Package sim wires together the path population, event loop, generator,
// dispatcher, sink, and event log into a complete simulation run.
package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/engine"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/eventlog"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/generator"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/latency"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/metrics"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/network"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/scenario"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/sink"
)

// Run directory layout
const (
	EventsFile  = "events.jsonl"
	ConfigFile  = "config.yaml"
	ResultFile  = "result.json"
	RunFile     = "run.json"
	LastRunFile = "last-run"
)

// RunResult holds the output of a simulation run
type RunResult struct {
	RunID          string           `json:"run_id"`
	Config         *scenario.Config `json:"config"`
	EventCount     uint64           `json:"event_count"` // loop events processed
	LoggedEvents   uint64           `json:"logged_events"`
	PopulationSize int              `json:"population_size"`
	PathCount      int              `json:"path_count"`
	PlanEntries    int              `json:"plan_entries,omitempty"`
	SkippedSlots   int              `json:"skipped_slots,omitempty"`
	PacketsSent    int              `json:"packets_sent"`
	PacketsArrived int              `json:"packets_arrived"`
	InFlight       int              `json:"in_flight"` // packets dispatched but not delivered by run_until
	Duration       time.Duration    `json:"wall_duration"`
	LogPath        string           `json:"log_path,omitempty"`
	LogHash        string           `json:"log_hash"`
	OutputDir      string           `json:"output_dir,omitempty"`

	Result  *domain.SimulateResult          `json:"-"`
	Metrics map[string]*metrics.FlowMetrics `json:"-"`
}

// emitter is what the runner needs from either generator
type emitter interface {
	engine.Task
	Sends() []float64
	PacketsSent() int
}

// Runner executes a simulation
type Runner struct {
	cfg       *scenario.Config
	log       *zap.Logger
	loop      *engine.EventLoop
	logWriter *eventlog.Writer
	collector *metrics.Collector
	sink      *sink.Sink
	writeErr  error

	// Empty for in-memory runs
	outputDir string
}

// NewRunner creates a simulation runner. With an empty baseOutputDir the run
// happens in memory and nothing is written to disk; the log hash is still
// computed.
func NewRunner(cfg *scenario.Config, baseOutputDir string, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		cfg:       cfg,
		log:       logger.With(zap.String("run", cfg.Name), zap.Int64("seed", cfg.Seed)),
		loop:      engine.NewEventLoop(),
		collector: metrics.NewCollector(metrics.DefaultWindow),
	}

	if baseOutputDir == "" {
		r.logWriter = eventlog.NewStreamWriter(io.Discard)
		return r, nil
	}

	r.outputDir = filepath.Join(baseOutputDir, fmt.Sprintf("%s_seed%d", cfg.Name, cfg.Seed))
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	w, err := eventlog.NewWriter(filepath.Join(r.outputDir, EventsFile))
	if err != nil {
		return nil, err
	}
	r.logWriter = w
	return r, nil
}

// Run executes the simulation and returns results
func (r *Runner) Run() (*RunResult, error) {
	startWall := time.Now()
	cfg := r.cfg
	res := &RunResult{RunID: fmt.Sprintf("%s_seed%d", cfg.Name, cfg.Seed), Config: cfg}

	// Every random draw of the run comes from this one stream
	rng := rand.New(rand.NewSource(cfg.Seed))

	sampler, err := latency.NewSampler(cfg.Latency.Mu, cfg.Latency.Sigma, cfg.Latency.Min, cfg.Latency.Max, rng)
	if err != nil {
		r.logWriter.Close()
		return nil, err
	}
	if cfg.Latency.MaxAttempts > 0 {
		sampler.MaxAttempts = cfg.Latency.MaxAttempts
	}

	population, err := network.BuildPopulation(sampler, cfg.Layers, cfg.PathsPerLayer, cfg.JitterSigma)
	if err != nil {
		r.logWriter.Close()
		return nil, fmt.Errorf("build population: %w", err)
	}
	paths := network.Subsample(population, cfg.TargetPaths)
	res.PopulationSize, res.PathCount = len(population), len(paths)
	lo, hi := network.LatencyBounds(paths)
	r.log.Info("path population built",
		zap.Int("population", len(population)),
		zap.Int("paths", len(paths)),
		zap.Int("stride", network.Stride(len(population), cfg.TargetPaths)),
		zap.Float64("min_latency", lo),
		zap.Float64("max_latency", hi))

	mode, _ := sink.ParseKeyMode(cfg.SinkKey)
	r.sink = sink.New(mode)
	r.sink.OnReceive = r.onReceive

	disp := network.NewDispatcher(r.loop, rng, r.sink)
	disp.JitterOnSynced = cfg.JitterOnSynced
	disp.OnTransmission = r.onTransmission

	opts := generator.Options{
		Src:    cfg.Source,
		FlowID: cfg.FlowID,
		Finish: cfg.Finish(),
		Size: func() int {
			return int(rng.ExpFloat64() * cfg.MeanPacketSize)
		},
		Logger: r.log,
	}

	var gen emitter
	var deadline *generator.DeadlineSync
	switch cfg.Generator {
	case scenario.GeneratorDeadline:
		deadline, err = generator.NewDeadlineSync(paths, disp, rng, cfg.MaxDelayBudget, cfg.WindowGranularity, opts)
		if err != nil {
			r.logWriter.Close()
			return nil, err
		}
		gen = deadline
	default:
		gen = generator.NewPulsing(paths, disp, opts)
	}

	r.logEvent(&domain.Event{Timestamp: 0, Type: domain.EventSimStart})

	r.loop.Register(gen)
	if r.loop.RunUntil(cfg.RunUntil) {
		r.log.Warn("run stopped with events still queued",
			zap.Float64("run_until", cfg.RunUntil),
			zap.Int("pending", r.loop.Pending()))
	}

	r.logEvent(&domain.Event{Timestamp: cfg.RunUntil, Type: domain.EventSimEnd})

	if err := r.logWriter.Close(); err != nil && r.writeErr == nil {
		r.writeErr = err
	}
	if r.writeErr != nil {
		return nil, fmt.Errorf("write event log: %w", r.writeErr)
	}

	if deadline != nil && deadline.Plan() != nil {
		res.PlanEntries = len(deadline.Plan().Entries)
		res.SkippedSlots = deadline.Plan().Skipped
		r.log.Info("deadline plan",
			zap.Int("entries", res.PlanEntries),
			zap.Int("skipped_slots", res.SkippedSlots),
			zap.Float64("target", deadline.Plan().Target))
	}

	// A pulsing run is marked by a zero budget whatever the config holds
	maxDelay := cfg.MaxDelayBudget
	if cfg.Generator == scenario.GeneratorPulsing {
		maxDelay = 0
	}
	res.Result = &domain.SimulateResult{
		Sends:    gen.Sends(),
		Recvs:    r.sink.Arrivals(cfg.RecordKey()),
		Sigma:    cfg.JitterSigma,
		Layers:   cfg.Layers,
		MaxDelay: maxDelay,
	}
	res.PacketsSent = gen.PacketsSent()
	for _, k := range r.sink.Keys() {
		res.PacketsArrived += r.sink.Count(k)
	}
	res.InFlight = res.PacketsSent - res.PacketsArrived
	res.EventCount = r.loop.EventsProcessed
	res.LoggedEvents = r.logWriter.Count()
	res.LogHash = r.logWriter.Hash()
	res.Metrics = r.collector.Compute()
	res.Duration = time.Since(startWall)

	r.log.Info("run complete",
		zap.Int("packets_sent", res.PacketsSent),
		zap.Int("packets_arrived", res.PacketsArrived),
		zap.Int("in_flight", res.InFlight),
		zap.Uint64("events", res.EventCount),
		zap.Duration("wall", res.Duration))

	if r.outputDir == "" {
		return res, nil
	}
	res.OutputDir = r.outputDir
	res.LogPath = filepath.Join(r.outputDir, EventsFile)
	if err := r.writeArtifacts(res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) writeArtifacts(res *RunResult) error {
	if err := scenario.WriteFile(filepath.Join(r.outputDir, ConfigFile), r.cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := writeJSON(filepath.Join(r.outputDir, ResultFile), res.Result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := writeJSON(filepath.Join(r.outputDir, RunFile), res); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	lastRunPath := filepath.Join(filepath.Dir(r.outputDir), LastRunFile)
	if err := os.WriteFile(lastRunPath, []byte(r.outputDir), 0644); err != nil {
		return fmt.Errorf("write last-run pointer: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (r *Runner) onTransmission(tx domain.Transmission) {
	pkt := tx.Packet
	r.logEvent(&domain.Event{
		Timestamp:   tx.SentTime,
		Type:        domain.EventPacketSent,
		Packet:      &pkt,
		Key:         r.sink.Key(pkt),
		PathID:      tx.PathID,
		PathLatency: tx.PathLatency,
		ExtraDelay:  tx.ExtraDelay,
		Synced:      tx.Synced,
	})
}

func (r *Runner) onReceive(key string, now float64, pkt domain.Packet) {
	r.logEvent(&domain.Event{
		Timestamp: now,
		Type:      domain.EventPacketArrived,
		Packet:    &pkt,
		Key:       key,
	})
}

// logEvent writes to the log and feeds the live metrics collector. The
// first write error is kept and reported when the run ends.
func (r *Runner) logEvent(event *domain.Event) {
	if r.writeErr != nil {
		return
	}
	if err := r.logWriter.Write(event); err != nil {
		r.writeErr = err
		return
	}
	r.collector.ProcessEvent(event)
}
