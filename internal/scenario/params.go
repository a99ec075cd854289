// Package scenario defines run parameters, named presets, and config files
package scenario

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/latency"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/sink"
)

// Generator names
const (
	GeneratorPulsing  = "pulsing"
	GeneratorDeadline = "deadline"
)

// Config holds all parameters for a simulation run
type Config struct {
	Name      string `json:"name" yaml:"name"`
	Seed      int64  `json:"seed" yaml:"seed"`
	Generator string `json:"generator" yaml:"generator"` // pulsing | deadline

	// Topology
	Layers        int           `json:"layers" yaml:"layers"`
	PathsPerLayer int           `json:"paths_per_layer" yaml:"paths_per_layer"`
	TargetPaths   int           `json:"target_paths" yaml:"target_paths"` // subsampling bound, 0 = keep all
	Latency       LatencyConfig `json:"latency" yaml:"latency"`
	JitterSigma   float64       `json:"jitter_sigma" yaml:"jitter_sigma"`

	// Deadline sync
	MaxDelayBudget    float64 `json:"max_delay_budget" yaml:"max_delay_budget"`
	WindowGranularity float64 `json:"window_granularity" yaml:"window_granularity"`
	JitterOnSynced    bool    `json:"jitter_on_synced" yaml:"jitter_on_synced"`

	// Time bounds
	RunUntil    float64  `json:"run_until" yaml:"run_until"`
	FinishBound *float64 `json:"finish_bound,omitempty" yaml:"finish_bound,omitempty"` // nil = unbounded

	// Traffic
	MeanPacketSize float64 `json:"mean_packet_size" yaml:"mean_packet_size"`
	FlowID         int     `json:"flow_id" yaml:"flow_id"`
	Source         string  `json:"source" yaml:"source"`
	SinkKey        string  `json:"sink_key" yaml:"sink_key"` // flow | source
}

// LatencyConfig parameterizes the per-hop truncated Gaussian
type LatencyConfig struct {
	Mu          float64 `json:"mu" yaml:"mu"`
	Sigma       float64 `json:"sigma" yaml:"sigma"`
	Min         float64 `json:"min" yaml:"min"`
	Max         float64 `json:"max" yaml:"max"`
	MaxAttempts int     `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// Validate rejects invalid parameters. Nothing is clamped
func (c *Config) Validate() error {
	switch {
	case c.Layers <= 0:
		return invalid("layers must be > 0, got %d", c.Layers)
	case c.PathsPerLayer <= 0:
		return invalid("paths_per_layer must be > 0, got %d", c.PathsPerLayer)
	case c.TargetPaths < 0:
		return invalid("target_paths must be >= 0, got %d", c.TargetPaths)
	case !(c.WindowGranularity > 0):
		return invalid("window_granularity must be > 0, got %g", c.WindowGranularity)
	case c.Latency.Min > c.Latency.Max:
		return invalid("latency.min %g > latency.max %g", c.Latency.Min, c.Latency.Max)
	case c.Latency.Sigma < 0:
		return invalid("latency.sigma must be >= 0, got %g", c.Latency.Sigma)
	case c.Latency.Min < 0:
		return invalid("latency.min must be >= 0, got %g", c.Latency.Min)
	case c.JitterSigma < 0:
		return invalid("jitter_sigma must be >= 0, got %g", c.JitterSigma)
	case c.MaxDelayBudget < 0:
		return invalid("max_delay_budget must be >= 0, got %g", c.MaxDelayBudget)
	case c.MeanPacketSize < 0:
		return invalid("mean_packet_size must be >= 0, got %g", c.MeanPacketSize)
	case math.IsNaN(c.RunUntil) || c.RunUntil <= 0:
		return invalid("run_until must be > 0, got %g", c.RunUntil)
	}
	if c.FinishBound != nil && (math.IsNaN(*c.FinishBound) || *c.FinishBound <= 0) {
		return invalid("finish_bound must be > 0 when set, got %g", *c.FinishBound)
	}
	if c.Generator != GeneratorPulsing && c.Generator != GeneratorDeadline {
		return invalid("unknown generator %q", c.Generator)
	}
	if _, ok := sink.ParseKeyMode(c.SinkKey); !ok {
		return invalid("unknown sink_key %q", c.SinkKey)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Finish returns the generator finish bound, +Inf when unbounded
func (c *Config) Finish() float64 {
	if c.FinishBound == nil {
		return math.Inf(1)
	}
	return *c.FinishBound
}

// DefaultPulsing returns the baseline pulsing configuration
func DefaultPulsing(seed int64) *Config {
	return &Config{
		Name:          "pulsing",
		Seed:          seed,
		Generator:     GeneratorPulsing,
		Layers:        5,
		PathsPerLayer: 10,
		TargetPaths:   10_000,
		Latency: LatencyConfig{
			Mu:          100,
			Sigma:       3000,
			Min:         10,
			Max:         3000,
			MaxAttempts: latency.DefaultMaxAttempts,
		},
		JitterSigma:       20,
		MaxDelayBudget:    0,
		WindowGranularity: 1,
		RunUntil:          30_000,
		MeanPacketSize:    100,
		FlowID:            0,
		Source:            "flow_1",
		SinkKey:           "source",
	}
}

// DefaultDeadline returns the deadline-sync configuration over the same topology
func DefaultDeadline(seed int64) *Config {
	cfg := DefaultPulsing(seed)
	cfg.Name = "deadline"
	cfg.Generator = GeneratorDeadline
	cfg.MaxDelayBudget = 9000
	return cfg
}

// DefaultSmoke returns a small configuration that runs in milliseconds
func DefaultSmoke(seed int64) *Config {
	cfg := DefaultPulsing(seed)
	cfg.Name = "smoke"
	cfg.Layers = 2
	cfg.PathsPerLayer = 6
	cfg.TargetPaths = 0
	cfg.Latency = LatencyConfig{Mu: 200, Sigma: 100, Min: 10, Max: 500, MaxAttempts: latency.DefaultMaxAttempts}
	cfg.JitterSigma = 2
	cfg.RunUntil = 5_000
	return cfg
}

// Presets lists the named configurations
func Presets() []string {
	return []string{"pulsing", "deadline", "smoke"}
}

// GetConfig returns the default config for a named preset
func GetConfig(name string, seed int64) *Config {
	switch name {
	case "pulsing":
		return DefaultPulsing(seed)
	case "deadline":
		return DefaultDeadline(seed)
	case "smoke":
		return DefaultSmoke(seed)
	default:
		return nil
	}
}

// LoadFile reads a YAML config. Fields absent from the file keep the
// pulsing defaults. The result is validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultPulsing(42)
	cfg.Name = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfig, path, err)
	}
	if cfg.Name == "" {
		cfg.Name = "custom"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteFile persists cfg as YAML
func WriteFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// RecordKey is the sink key the configured source's packets are filed under
func (c *Config) RecordKey() string {
	mode, _ := sink.ParseKeyMode(c.SinkKey)
	return sink.New(mode).Key(domain.Packet{FlowID: c.FlowID, Src: c.Source})
}
