// Package report renders run metrics as markdown and ASCII plots
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/metrics"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/scenario"
)

// histogramBins is the bar count used for send/arrival histograms
const histogramBins = 20

// Report generates and writes the per-run report
type Report struct {
	config *scenario.Config
	flows  []*metrics.FlowMetrics
	outDir string
}

// NewReport creates a report generator. Flows are rendered in key order
func NewReport(cfg *scenario.Config, metricsMap map[string]*metrics.FlowMetrics, outDir string) *Report {
	return &Report{
		config: cfg,
		flows:  sortedFlows(metricsMap),
		outDir: outDir,
	}
}

func sortedFlows(m map[string]*metrics.FlowMetrics) []*metrics.FlowMetrics {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*metrics.FlowMetrics, 0, len(keys))
	for _, k := range keys {
		if m[k] != nil {
			out = append(out, m[k])
		}
	}
	return out
}

// Generate writes metrics.json, report.md and plots.txt
func (r *Report) Generate() error {
	if err := os.MkdirAll(r.outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	byKey := make(map[string]*metrics.FlowMetrics, len(r.flows))
	for _, f := range r.flows {
		byKey[f.Key] = f
	}
	metricsData, err := json.MarshalIndent(byKey, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.outDir, "metrics.json"), metricsData, 0644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	if err := os.WriteFile(filepath.Join(r.outDir, "report.md"), []byte(r.Markdown()), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if err := os.WriteFile(filepath.Join(r.outDir, "plots.txt"), []byte(r.Plots()), 0644); err != nil {
		return fmt.Errorf("write plots: %w", err)
	}

	return nil
}

// Markdown renders report.md
func (r *Report) Markdown() string {
	var sb strings.Builder
	cfg := r.config

	sb.WriteString("# Pulsing Relay Report\n\n")
	sb.WriteString(fmt.Sprintf("**Run:** %s | **Seed:** %d | **Generator:** %s\n\n", cfg.Name, cfg.Seed, cfg.Generator))

	sb.WriteString("## Topology\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Layers | %d |\n", cfg.Layers))
	sb.WriteString(fmt.Sprintf("| Paths per layer | %d |\n", cfg.PathsPerLayer))
	sb.WriteString(fmt.Sprintf("| Target paths | %d |\n", cfg.TargetPaths))
	sb.WriteString(fmt.Sprintf("| Wire latency | μ=%g σ=%g in [%g, %g] |\n",
		cfg.Latency.Mu, cfg.Latency.Sigma, cfg.Latency.Min, cfg.Latency.Max))
	sb.WriteString(fmt.Sprintf("| Wire jitter σ | %g |\n", cfg.JitterSigma))
	if cfg.Generator == scenario.GeneratorDeadline {
		sb.WriteString(fmt.Sprintf("| Max delay budget | %g |\n", cfg.MaxDelayBudget))
		sb.WriteString(fmt.Sprintf("| Window granularity | %g |\n", cfg.WindowGranularity))
		sb.WriteString(fmt.Sprintf("| Jitter on synced | %t |\n", cfg.JitterOnSynced))
	}
	sb.WriteString("\n")

	if len(r.flows) == 0 {
		sb.WriteString("No packets were recorded.\n")
		return sb.String()
	}

	for _, f := range r.flows {
		sb.WriteString(fmt.Sprintf("## Flow `%s`\n\n", f.Key))
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		addRow(&sb, "Packets sent", "%d", f.PacketsSent)
		addRow(&sb, "Packets arrived", "%d", f.PacketsArrived)
		addRow(&sb, "Synced packets", "%d", f.SyncedPackets)
		addRow(&sb, "Send span", "%.2f", f.SendSpan)
		addRow(&sb, "Arrival span", "%.2f", f.ArrivalSpan)
		addRow(&sb, fmt.Sprintf("Peak sends / %g", f.Window), "%d", f.PeakSendsPerWindow)
		addRow(&sb, fmt.Sprintf("Peak arrivals / %g", f.Window), "%d", f.PeakArrivalsPerWindow)
		addRow(&sb, "Magnification", "%.2fx", f.Magnification)
		addRow(&sb, "Mean transit", "%.2f", f.MeanTransit)
		addRow(&sb, "Arrival std dev", "%.2f", f.StdDevArrival)
		addRow(&sb, "Mean extra delay", "%.2f", f.MeanExtraDelay)
		sb.WriteString("\n")

		sb.WriteString("| Percentile | Send | Arrival |\n")
		sb.WriteString("|------------|------|---------|\n")
		for _, p := range []float64{0.01, 0.25, 0.50, 0.75, 0.99} {
			sb.WriteString(fmt.Sprintf("| P%.0f | %.2f | %.2f |\n", p*100,
				metrics.Percentile(f.SendTimes, p), metrics.Percentile(f.ArrivalTimes, p)))
		}
		sb.WriteString("\n")
		sb.WriteString(explain(f))
	}

	return sb.String()
}

func addRow(sb *strings.Builder, label, format string, v any) {
	sb.WriteString(fmt.Sprintf("| %s | "+format+" |\n", label, v))
}

func explain(f *metrics.FlowMetrics) string {
	var sb strings.Builder
	switch {
	case f.PacketsArrived == 0:
		sb.WriteString("No packet reached the receiver before the run ended.\n\n")
	case f.Magnification > 1:
		sb.WriteString(fmt.Sprintf("Arrivals are **%.1fx** burstier than sends: %d packets sent over %.0f time units ",
			f.Magnification, f.PacketsSent, f.SendSpan))
		sb.WriteString(fmt.Sprintf("landed within %.0f time units at the receiver.\n\n", f.ArrivalSpan))
	default:
		sb.WriteString("Arrivals are no burstier than sends; the relays did not concentrate traffic.\n\n")
	}
	if lost := f.PacketsSent - f.PacketsArrived; lost > 0 {
		sb.WriteString(fmt.Sprintf("%d packets were still in flight when the run stopped.\n\n", lost))
	}
	return sb.String()
}

// Plots renders plots.txt
func (r *Report) Plots() string {
	var sb strings.Builder

	for _, f := range r.flows {
		sb.WriteString(fmt.Sprintf("=== Flow %s: Sends (ASCII Histogram) ===\n\n", f.Key))
		sb.WriteString(asciiHistogram(f.SendTimes, histogramBins))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("=== Flow %s: Arrivals (ASCII Histogram) ===\n\n", f.Key))
		sb.WriteString(asciiHistogram(f.ArrivalTimes, histogramBins))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("=== Flow %s: Arrival CDF (ASCII) ===\n\n", f.Key))
		sb.WriteString(asciiCDF(f.ArrivalTimes))
		sb.WriteString("\n")
	}

	return sb.String()
}

// asciiHistogram draws a simple text histogram
func asciiHistogram(values []float64, bins int) string {
	if len(values) == 0 {
		return "  (no data)\n"
	}

	minV, maxV := values[0], values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	if minV == maxV {
		return fmt.Sprintf("  all %d values = %.2f\n", len(values), minV)
	}

	binWidth := (maxV - minV) / float64(bins)
	counts := make([]int, bins)
	maxCount := 0

	for _, v := range values {
		idx := int((v - minV) / binWidth)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
		if counts[idx] > maxCount {
			maxCount = counts[idx]
		}
	}

	var sb strings.Builder
	barMax := 40
	for i, c := range counts {
		lo := minV + float64(i)*binWidth
		hi := lo + binWidth
		barLen := c * barMax / maxCount
		bar := strings.Repeat("█", barLen)
		sb.WriteString(fmt.Sprintf("  %10.2f to %10.2f | %s (%d)\n", lo, hi, bar, c))
	}
	return sb.String()
}

// asciiCDF draws a simple text CDF
func asciiCDF(sorted []float64) string {
	if len(sorted) == 0 {
		return "  (no data)\n"
	}

	var sb strings.Builder
	steps := 10
	for i := 1; i <= steps; i++ {
		p := float64(i) / float64(steps)
		val := metrics.Percentile(sorted, p)
		bar := strings.Repeat("▓", int(p*40))
		sb.WriteString(fmt.Sprintf("  P%3.0f: %10.2f | %s\n", p*100, val, bar))
	}
	return sb.String()
}

// PrintSummary writes a brief summary to stdout
func PrintSummary(cfg *scenario.Config, m map[string]*metrics.FlowMetrics) {
	flows := sortedFlows(m)
	if len(flows) == 0 {
		fmt.Println("  No flow metrics available.")
		return
	}

	fmt.Printf("  %-12s %8s %8s %10s %10s %8s %8s %8s\n",
		"Flow", "Sent", "Arrived", "SendSpan", "ArrSpan", "PeakS", "PeakA", "Mag")
	fmt.Printf("  %-12s %8s %8s %10s %10s %8s %8s %8s\n",
		strings.Repeat("-", 12), strings.Repeat("-", 8), strings.Repeat("-", 8),
		strings.Repeat("-", 10), strings.Repeat("-", 10), strings.Repeat("-", 8),
		strings.Repeat("-", 8), strings.Repeat("-", 8))
	for _, f := range flows {
		fmt.Printf("  %-12s %8d %8d %10.1f %10.1f %8d %8d %7.2fx\n",
			f.Key, f.PacketsSent, f.PacketsArrived, f.SendSpan, f.ArrivalSpan,
			f.PeakSendsPerWindow, f.PeakArrivalsPerWindow, f.Magnification)
	}
	fmt.Printf("  generator=%s layers=%d\n", cfg.Generator, cfg.Layers)
}
