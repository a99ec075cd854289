package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/eventlog"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/scenario"
	"github.com/akshitanchan/pulsing-relay-simulator/internal/sim"
)

func TestComputeMetricsFromEventLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.jsonl")

	w, err := eventlog.NewWriter(logPath)
	require.NoError(t, err)

	pkt := &domain.Packet{ID: 1, FlowID: 0, Src: "flow_1"}
	events := []*domain.Event{
		{Timestamp: 0, Type: domain.EventSimStart},
		{Timestamp: 10, Type: domain.EventPacketSent, Packet: pkt, Key: "flow_1", PathLatency: 490},
		{Timestamp: 500, Type: domain.EventPacketArrived, Packet: pkt, Key: "flow_1"},
	}
	for _, event := range events {
		require.NoError(t, w.Write(event))
	}
	require.NoError(t, w.Close())

	m, err := computeMetricsFromEventLog(logPath, 10)
	require.NoError(t, err)

	f := m["flow_1"]
	require.NotNil(t, f)
	assert.Equal(t, 1, f.PacketsSent)
	assert.Equal(t, 1, f.PacketsArrived)
	assert.Equal(t, 490.0, f.MeanTransit)
}

func TestParseLayers(t *testing.T) {
	got, err := parseLayers("2, 3,4,,5")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, got)

	for _, bad := range []string{"", "2,x", "0", "-1"} {
		_, err := parseLayers(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunConfigOverrides(t *testing.T) {
	seed := int64(7)
	budget := 50.0
	c := &runCommand{Preset: "smoke", Seed: &seed, Generator: "deadline", Layers: 3, MaxDelay: &budget}
	cfg, err := c.config()
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, scenario.GeneratorDeadline, cfg.Generator)
	assert.Equal(t, 3, cfg.Layers)
	assert.Equal(t, 50.0, cfg.MaxDelayBudget)

	_, err = (&runCommand{}).config()
	assert.Error(t, err)
	_, err = (&runCommand{Preset: "nope"}).config()
	assert.Error(t, err)
	_, err = (&runCommand{Preset: "smoke", Generator: "nope"}).config()
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRunConfigFileKeepsItsSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: file\nseed: 99\n"), 0644))

	cfg, err := (&runCommand{Config: path}).config()
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Seed)
	assert.Equal(t, "file", cfg.Name)
}

func TestRunReportAndReplayCommands(t *testing.T) {
	out := t.TempDir()
	global := &Options{}

	run := &runCommand{global: global, Preset: "smoke", Out: out}
	require.NoError(t, run.Execute(nil))

	runDir, err := sim.LastRun(out)
	require.NoError(t, err)
	for _, f := range []string{"report.md", "plots.txt", "metrics.json"} {
		_, err := os.Stat(filepath.Join(runDir, f))
		assert.NoError(t, err, f)
	}

	// A missing report is rebuilt from the event log
	require.NoError(t, os.Remove(filepath.Join(runDir, "report.md")))
	require.NoError(t, (&reportCommand{LastRun: true, Out: out}).Execute(nil))
	_, err = os.Stat(filepath.Join(runDir, "report.md"))
	assert.NoError(t, err)

	require.NoError(t, (&replayCommand{global: global, RunDir: runDir, Window: 10}).Execute(nil))

	assert.Error(t, (&reportCommand{Out: out}).Execute(nil))
}

func TestSweepCommand(t *testing.T) {
	out := t.TempDir()
	c := &sweepCommand{global: &Options{}, Preset: "smoke", Layers: "1,2", Seed: 3, Out: out}
	require.NoError(t, c.Execute(nil))

	for _, f := range []string{"sweep-report.md", "sweep-metrics.json", "smoke_L1_seed3", "smoke_L2_seed3"} {
		_, err := os.Stat(filepath.Join(out, f))
		assert.NoError(t, err, f)
	}
}
