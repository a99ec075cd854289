package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/metrics"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/scenario"
)

// ScenarioResult bundles a config with its computed metrics
type ScenarioResult struct {
	Config  *scenario.Config
	Metrics map[string]*metrics.FlowMetrics
	RunDir  string
}

func (r ScenarioResult) flow() *metrics.FlowMetrics {
	return r.Metrics[r.Config.RecordKey()]
}

// CrossReport compares runs of one preset across layer counts
type CrossReport struct {
	results []ScenarioResult
	outDir  string
}

// NewCrossReport creates a sweep report
func NewCrossReport(results []ScenarioResult, outDir string) *CrossReport {
	return &CrossReport{results: results, outDir: outDir}
}

// Generate writes sweep-report.md and sweep-metrics.json
func (cr *CrossReport) Generate() error {
	if err := os.MkdirAll(cr.outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	reportPath := filepath.Join(cr.outDir, "sweep-report.md")
	if err := os.WriteFile(reportPath, []byte(cr.Markdown()), 0644); err != nil {
		return fmt.Errorf("write sweep report: %w", err)
	}

	data, err := json.MarshalIndent(cr.buildSummary(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode sweep metrics: %w", err)
	}
	return os.WriteFile(filepath.Join(cr.outDir, "sweep-metrics.json"), data, 0644)
}

type sweepSummary struct {
	Run       string               `json:"run"`
	Layers    int                  `json:"layers"`
	Generator string               `json:"generator"`
	RunDir    string               `json:"run_dir,omitempty"`
	Flow      *metrics.FlowMetrics `json:"flow"`
}

func (cr *CrossReport) buildSummary() []sweepSummary {
	var summaries []sweepSummary
	for _, r := range cr.results {
		var flow *metrics.FlowMetrics
		if f := r.flow(); f != nil {
			// Raw timestamps live in each run's metrics.json
			cp := *f
			cp.SendTimes, cp.ArrivalTimes = nil, nil
			flow = &cp
		}
		summaries = append(summaries, sweepSummary{
			Run:       r.Config.Name,
			Layers:    r.Config.Layers,
			Generator: r.Config.Generator,
			RunDir:    r.RunDir,
			Flow:      flow,
		})
	}
	return summaries
}

type rowDef struct {
	label string
	get   func(m *metrics.FlowMetrics) float64
	fmt   string
}

var sweepRows = []rowDef{
	{"Packets Sent", func(m *metrics.FlowMetrics) float64 { return float64(m.PacketsSent) }, "%.0f"},
	{"Packets Arrived", func(m *metrics.FlowMetrics) float64 { return float64(m.PacketsArrived) }, "%.0f"},
	{"Send Span", func(m *metrics.FlowMetrics) float64 { return m.SendSpan }, "%.1f"},
	{"Arrival Span", func(m *metrics.FlowMetrics) float64 { return m.ArrivalSpan }, "%.1f"},
	{"Peak Sends", func(m *metrics.FlowMetrics) float64 { return float64(m.PeakSendsPerWindow) }, "%.0f"},
	{"Peak Arrivals", func(m *metrics.FlowMetrics) float64 { return float64(m.PeakArrivalsPerWindow) }, "%.0f"},
	{"Magnification", func(m *metrics.FlowMetrics) float64 { return m.Magnification }, "%.2f"},
	{"Mean Extra Delay", func(m *metrics.FlowMetrics) float64 { return m.MeanExtraDelay }, "%.1f"},
}

// Markdown renders the sweep table
func (cr *CrossReport) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# Layer Sweep Comparison\n\n")
	if len(cr.results) == 0 {
		sb.WriteString("No runs to compare.\n")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("Generator **%s**, seed %d.\n\n", cr.results[0].Config.Generator, cr.results[0].Config.Seed))

	sb.WriteString("| Metric |")
	for _, r := range cr.results {
		sb.WriteString(fmt.Sprintf(" %d layers |", r.Config.Layers))
	}
	sb.WriteString("\n|--------|")
	for range cr.results {
		sb.WriteString("--------|")
	}
	sb.WriteString("\n")

	for _, row := range sweepRows {
		sb.WriteString(fmt.Sprintf("| %s |", row.label))
		for _, r := range cr.results {
			if f := r.flow(); f != nil {
				sb.WriteString(fmt.Sprintf(" "+row.fmt+" |", row.get(f)))
			} else {
				sb.WriteString(" N/A |")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Analysis\n\n")
	sb.WriteString(cr.analysis())
	return sb.String()
}

func (cr *CrossReport) analysis() string {
	var best *ScenarioResult
	for i := range cr.results {
		f := cr.results[i].flow()
		if f == nil {
			continue
		}
		if best == nil || f.Magnification > best.flow().Magnification {
			best = &cr.results[i]
		}
	}
	if best == nil {
		return "No flow data available for comparison.\n"
	}
	f := best.flow()
	return fmt.Sprintf("- The strongest concentration appears with **%d layers** (%.2fx peak arrivals over peak sends, %d of %d packets delivered).\n",
		best.Config.Layers, f.Magnification, f.PacketsArrived, f.PacketsSent)
}

// PrintCrossSummary prints a condensed sweep summary to stdout
func PrintCrossSummary(results []ScenarioResult) {
	fmt.Println("\n=== Layer Sweep ===")
	fmt.Println()
	fmt.Printf("  %-18s", "Metric")
	for _, r := range results {
		fmt.Printf(" %10s", fmt.Sprintf("L=%d", r.Config.Layers))
	}
	fmt.Println()
	fmt.Printf("  %-18s", strings.Repeat("-", 18))
	for range results {
		fmt.Printf(" %10s", strings.Repeat("-", 10))
	}
	fmt.Println()

	for _, row := range sweepRows {
		fmt.Printf("  %-18s", row.label)
		for _, r := range results {
			if f := r.flow(); f != nil {
				fmt.Printf(" %10s", fmt.Sprintf(row.fmt, row.get(f)))
			} else {
				fmt.Printf(" %10s", "N/A")
			}
		}
		fmt.Println()
	}
}
