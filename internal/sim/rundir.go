package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/eventlog"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/metrics"
)

// LastRun resolves the run directory recorded under baseDir
func LastRun(baseDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, LastRunFile))
	if err != nil {
		return "", fmt.Errorf("no last run found in %s: %w", baseDir, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// LoadRun reads the run summary and simulation result from a run directory
func LoadRun(dir string) (*RunResult, error) {
	var res RunResult
	if err := readJSON(filepath.Join(dir, RunFile), &res); err != nil {
		return nil, fmt.Errorf("read run summary: %w", err)
	}
	if res.Config == nil {
		return nil, fmt.Errorf("%w: run summary in %s has no config", domain.ErrInvalidConfig, dir)
	}
	var out domain.SimulateResult
	if err := readJSON(filepath.Join(dir, ResultFile), &out); err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	res.Result = &out
	res.OutputDir = dir
	res.LogPath = filepath.Join(dir, EventsFile)
	return &res, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ReplayResult compares a run's recorded summary with what its event log
// reproduces.
type ReplayResult struct {
	Run          *RunResult
	RecordedHash string
	ComputedHash string
	Metrics      map[string]*metrics.FlowMetrics
	Mismatches   []string
}

// OK reports whether the log reproduces the recorded run
func (rr *ReplayResult) OK() bool {
	return rr.RecordedHash == rr.ComputedHash && len(rr.Mismatches) == 0
}

// Replay recomputes metrics from a run directory's event log and checks
// them, and the log hash, against the recorded summary.
func Replay(dir string, window float64) (*ReplayResult, error) {
	run, err := LoadRun(dir)
	if err != nil {
		return nil, err
	}
	hash, err := eventlog.HashFile(run.LogPath)
	if err != nil {
		return nil, fmt.Errorf("hash log: %w", err)
	}
	m, err := metrics.ComputeFromLog(run.LogPath, window)
	if err != nil {
		return nil, fmt.Errorf("compute metrics: %w", err)
	}

	rr := &ReplayResult{
		Run:          run,
		RecordedHash: run.LogHash,
		ComputedHash: hash,
		Metrics:      m,
	}

	var sent, arrived int
	for _, f := range m {
		sent += f.PacketsSent
		arrived += f.PacketsArrived
	}
	if sent != run.PacketsSent {
		rr.Mismatches = append(rr.Mismatches, fmt.Sprintf("packets sent: log %d, recorded %d", sent, run.PacketsSent))
	}
	if arrived != run.PacketsArrived {
		rr.Mismatches = append(rr.Mismatches, fmt.Sprintf("packets arrived: log %d, recorded %d", arrived, run.PacketsArrived))
	}
	if f := m[run.Config.RecordKey()]; f != nil && len(run.Result.Recvs) != f.PacketsArrived {
		rr.Mismatches = append(rr.Mismatches, fmt.Sprintf("recvs: log %d, result %d", f.PacketsArrived, len(run.Result.Recvs)))
	}
	return rr, nil
}
