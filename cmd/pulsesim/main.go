package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/eventlog"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/metrics"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/report"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/scenario"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/sim"
)

const defaultRunsDir = "runs"

// Options are shared by every command
type Options struct {
	Verbose bool `short:"v" long:"verbose" description:"Debug logging"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "pulsesim"

	parser.AddCommand("run", "Run a simulation",
		"Runs one preset or config file and writes the run directory and report.",
		&runCommand{global: &opts})
	parser.AddCommand("sweep", "Run a preset over several layer counts",
		"Runs one simulation per layer count and writes a comparison report.",
		&sweepCommand{global: &opts})
	parser.AddCommand("report", "Print a run's report",
		"Prints report.md and plots.txt of a run directory.",
		&reportCommand{})
	parser.AddCommand("replay", "Recompute metrics from an event log",
		"Recomputes metrics from events.jsonl and checks the recorded log hash.",
		&replayCommand{global: &opts})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

type runCommand struct {
	global *Options

	Preset    string   `short:"p" long:"preset" description:"Preset: pulsing, deadline, smoke"`
	Config    string   `short:"c" long:"config" description:"YAML config file (overrides --preset)"`
	Seed      *int64   `short:"s" long:"seed" description:"Random seed (default: 42, or the config file's)"`
	Out       string   `short:"o" long:"out" default:"runs" description:"Base output directory, empty for an in-memory run"`
	Generator string   `short:"g" long:"generator" description:"Override generator: pulsing or deadline"`
	Layers    int      `short:"l" long:"layers" description:"Override layer count"`
	MaxDelay  *float64 `short:"d" long:"max-delay" description:"Override max delay budget"`
}

func (c *runCommand) Execute(args []string) error {
	logger := newLogger(c.global.Verbose)
	defer logger.Sync()

	cfg, err := c.config()
	if err != nil {
		return err
	}

	fmt.Printf("Running %s (generator=%s, layers=%d, seed=%d)\n", cfg.Name, cfg.Generator, cfg.Layers, cfg.Seed)
	result, m, err := runAndReport(cfg, c.Out, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Simulation complete.\n")
	fmt.Printf("  Paths:            %d of %d\n", result.PathCount, result.PopulationSize)
	fmt.Printf("  Packets sent:     %d\n", result.PacketsSent)
	fmt.Printf("  Packets arrived:  %d\n", result.PacketsArrived)
	if cfg.Generator == scenario.GeneratorDeadline {
		fmt.Printf("  Plan entries:     %d (%d slots skipped)\n", result.PlanEntries, result.SkippedSlots)
	}
	fmt.Printf("  Events processed: %d\n", result.EventCount)
	fmt.Printf("  Wall time:        %v\n", result.Duration)
	fmt.Printf("  Log hash:         %s\n", result.LogHash[:16]+"...")
	if result.OutputDir != "" {
		fmt.Printf("  Output:           %s\n", result.OutputDir)
	}

	fmt.Println("\nMetrics Summary:")
	report.PrintSummary(cfg, m)
	if result.OutputDir != "" {
		fmt.Printf("\nReport written to: %s\n", filepath.Join(result.OutputDir, "report.md"))
	}
	return nil
}

func (c *runCommand) config() (*scenario.Config, error) {
	seed := int64(42)
	if c.Seed != nil {
		seed = *c.Seed
	}

	var cfg *scenario.Config
	switch {
	case c.Config != "":
		loaded, err := scenario.LoadFile(c.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case c.Preset != "":
		cfg = scenario.GetConfig(c.Preset, seed)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q (want one of %s)", c.Preset, strings.Join(scenario.Presets(), ", "))
		}
	default:
		return nil, errors.New("--preset or --config is required")
	}

	if c.Seed != nil {
		cfg.Seed = seed
	}
	if c.Generator != "" {
		cfg.Generator = c.Generator
	}
	if c.Layers != 0 {
		cfg.Layers = c.Layers
	}
	if c.MaxDelay != nil {
		cfg.MaxDelayBudget = *c.MaxDelay
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runAndReport runs cfg under outDir and writes the run's report
func runAndReport(cfg *scenario.Config, outDir string, logger *zap.Logger) (*sim.RunResult, map[string]*metrics.FlowMetrics, error) {
	runner, err := sim.NewRunner(cfg, outDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize %s: %w", cfg.Name, err)
	}
	result, err := runner.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("run %s: %w", cfg.Name, err)
	}
	if result.OutputDir == "" {
		return result, result.Metrics, nil
	}

	m, err := metrics.ComputeFromLog(result.LogPath, metrics.DefaultWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("compute metrics: %w", err)
	}
	if err := report.NewReport(cfg, m, result.OutputDir).Generate(); err != nil {
		return nil, nil, fmt.Errorf("generate report: %w", err)
	}
	return result, m, nil
}

type sweepCommand struct {
	global *Options

	Preset string `short:"p" long:"preset" default:"pulsing" description:"Preset to sweep"`
	Layers string `short:"l" long:"layers" default:"2,3,4,5" description:"Comma-separated layer counts"`
	Seed   int64  `short:"s" long:"seed" default:"42" description:"Random seed"`
	Out    string `short:"o" long:"out" default:"runs" description:"Base output directory"`
}

func (c *sweepCommand) Execute(args []string) error {
	logger := newLogger(c.global.Verbose)
	defer logger.Sync()

	layers, err := parseLayers(c.Layers)
	if err != nil {
		return err
	}
	if scenario.GetConfig(c.Preset, c.Seed) == nil {
		return fmt.Errorf("unknown preset %q", c.Preset)
	}

	var results []report.ScenarioResult
	for _, n := range layers {
		cfg := scenario.GetConfig(c.Preset, c.Seed)
		cfg.Name = fmt.Sprintf("%s_L%d", c.Preset, n)
		cfg.Layers = n
		if err := cfg.Validate(); err != nil {
			return err
		}

		fmt.Printf("Running %s (seed=%d)...\n", cfg.Name, cfg.Seed)
		result, m, err := runAndReport(cfg, c.Out, logger)
		if err != nil {
			return err
		}
		fmt.Printf("  %s: %d paths, %d sent, %d arrived, %v\n",
			cfg.Name, result.PathCount, result.PacketsSent, result.PacketsArrived, result.Duration)

		results = append(results, report.ScenarioResult{
			Config:  cfg,
			Metrics: m,
			RunDir:  result.OutputDir,
		})
	}

	report.PrintCrossSummary(results)

	if err := report.NewCrossReport(results, c.Out).Generate(); err != nil {
		return fmt.Errorf("sweep report: %w", err)
	}
	fmt.Printf("\nSweep report: %s\n", filepath.Join(c.Out, "sweep-report.md"))
	return nil
}

func parseLayers(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad layer count %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("--layers needs at least one count")
	}
	return out, nil
}

type reportCommand struct {
	LastRun bool   `long:"last-run" description:"Use the most recent run"`
	RunDir  string `long:"run-dir" description:"Path to a run directory"`
	Out     string `short:"o" long:"out" default:"runs" description:"Base output directory for --last-run"`
}

func (c *reportCommand) Execute(args []string) error {
	runDir, err := resolveRunDir(c.LastRun, c.RunDir, c.Out)
	if err != nil {
		return err
	}

	reportPath := filepath.Join(runDir, "report.md")
	if _, err := os.Stat(reportPath); errors.Is(err, os.ErrNotExist) {
		if err := regenerateReport(runDir); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	fmt.Println(string(data))

	if plots, err := os.ReadFile(filepath.Join(runDir, "plots.txt")); err == nil {
		fmt.Println(string(plots))
	}
	return nil
}

// regenerateReport rebuilds a run's report from its event log
func regenerateReport(runDir string) error {
	run, err := sim.LoadRun(runDir)
	if err != nil {
		return err
	}
	m, err := computeMetricsFromEventLog(run.LogPath, metrics.DefaultWindow)
	if err != nil {
		return fmt.Errorf("compute metrics: %w", err)
	}
	return report.NewReport(run.Config, m, runDir).Generate()
}

func resolveRunDir(lastRun bool, runDir, out string) (string, error) {
	if runDir != "" {
		return runDir, nil
	}
	if lastRun {
		return sim.LastRun(out)
	}
	return "", errors.New("--last-run or --run-dir required")
}

type replayCommand struct {
	global *Options

	LastRun bool    `long:"last-run" description:"Use the most recent run"`
	RunDir  string  `long:"run-dir" description:"Path to a run directory"`
	Out     string  `short:"o" long:"out" default:"runs" description:"Base output directory for --last-run"`
	Window  float64 `short:"w" long:"window" default:"10" description:"Peak-rate window"`
}

func (c *replayCommand) Execute(args []string) error {
	runDir, err := resolveRunDir(c.LastRun, c.RunDir, c.Out)
	if err != nil {
		return err
	}

	fmt.Printf("Replaying event log: %s\n", filepath.Join(runDir, sim.EventsFile))
	rr, err := sim.Replay(runDir, c.Window)
	if err != nil {
		return err
	}

	fmt.Println("\nMetrics Summary (Replay):")
	report.PrintSummary(rr.Run.Config, rr.Metrics)

	for _, m := range rr.Mismatches {
		fmt.Println("  mismatch:", m)
	}
	if rr.RecordedHash == rr.ComputedHash {
		fmt.Println("\nEvent log hash matches original: ", short(rr.ComputedHash), "...")
	} else {
		fmt.Println("\nEvent log hash MISMATCH!\nOriginal:", short(rr.RecordedHash), "...\nReplay:  ", short(rr.ComputedHash), "...")
	}
	if !rr.OK() {
		return errors.New("replay does not reproduce the recorded run")
	}
	return nil
}

func short(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

// computeMetricsFromEventLog reads a whole log into memory and computes
// metrics over it.
func computeMetricsFromEventLog(logPath string, window float64) (map[string]*metrics.FlowMetrics, error) {
	reader, err := eventlog.NewReader(logPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	return metrics.ComputeFromEvents(events, window), nil
}
