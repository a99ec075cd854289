package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
)

func TestPresetsAreValid(t *testing.T) {
	for _, name := range Presets() {
		cfg := GetConfig(name, 7)
		require.NotNil(t, cfg, name)
		assert.Equal(t, name, cfg.Name)
		assert.EqualValues(t, 7, cfg.Seed)
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.Nil(t, GetConfig("nope", 1))
}

func TestValidateRejectsInvalidConfig(t *testing.T) {
	neg := -5.0
	cases := map[string]func(c *Config){
		"zero layers":          func(c *Config) { c.Layers = 0 },
		"negative paths":       func(c *Config) { c.PathsPerLayer = -1 },
		"zero window":          func(c *Config) { c.WindowGranularity = 0 },
		"inverted latency":     func(c *Config) { c.Latency.Min, c.Latency.Max = 50, 10 },
		"negative jitter":      func(c *Config) { c.JitterSigma = -1 },
		"negative budget":      func(c *Config) { c.MaxDelayBudget = -1 },
		"zero horizon":         func(c *Config) { c.RunUntil = 0 },
		"negative finish":      func(c *Config) { c.FinishBound = &neg },
		"unknown generator":    func(c *Config) { c.Generator = "burst" },
		"unknown sink key":     func(c *Config) { c.SinkKey = "path" },
		"negative target size": func(c *Config) { c.TargetPaths = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultPulsing(1)
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
		})
	}
}

func TestValidateDoesNotClamp(t *testing.T) {
	cfg := DefaultPulsing(1)
	cfg.Layers = -3
	_ = cfg.Validate()
	assert.Equal(t, -3, cfg.Layers)
}

func TestFinishDefaultsToUnbounded(t *testing.T) {
	cfg := DefaultPulsing(1)
	assert.True(t, cfg.Finish() > 1e300)

	f := 250.0
	cfg.FinishBound = &f
	assert.Equal(t, 250.0, cfg.Finish())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: two-layer
seed: 99
generator: deadline
layers: 2
max_delay_budget: 500
latency:
  mu: 100
  sigma: 40
  min: 10
  max: 300
finish_bound: 1200
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "two-layer", cfg.Name)
	assert.EqualValues(t, 99, cfg.Seed)
	assert.Equal(t, GeneratorDeadline, cfg.Generator)
	assert.Equal(t, 2, cfg.Layers)
	assert.Equal(t, 10, cfg.PathsPerLayer) // default kept
	assert.Equal(t, 500.0, cfg.MaxDelayBudget)
	assert.Equal(t, 40.0, cfg.Latency.Sigma)
	require.NotNil(t, cfg.FinishBound)
	assert.Equal(t, 1200.0, cfg.Finish())
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("layers: 0\n"), 0644))

	_, err := LoadFile(path)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	require.NoError(t, os.WriteFile(path, []byte("layers: [oops\n"), 0644))
	_, err = LoadFile(path)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultDeadline(5)
	require.NoError(t, WriteFile(path, cfg))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestRecordKey(t *testing.T) {
	cfg := DefaultPulsing(1)
	assert.Equal(t, "flow_1", cfg.RecordKey())

	cfg.SinkKey = "flow"
	cfg.FlowID = 4
	assert.Equal(t, "4", cfg.RecordKey())
}
