package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestString verifies string extraction with defaults.
func TestString(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		key        string
		defaultVal string
		want       string
	}{
		{"key exists", map[string]any{"name": "alice"}, "name", "default", "alice"},
		{"key missing", map[string]any{"other": "value"}, "name", "default", "default"},
		{"empty string", map[string]any{"name": ""}, "name", "default", ""},
		{"wrong type int", map[string]any{"name": 123}, "name", "default", "default"},
		{"nil map", nil, "name", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.Equal(t, tt.want, cfg.String(tt.key, tt.defaultVal))
		})
	}
}

// TestDuration verifies duration extraction with various input types.
func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want time.Duration
	}{
		{"string duration", "30s", 30 * time.Second},
		{"string complex duration", "1h30m", 90 * time.Minute},
		{"int seconds", 60, 60 * time.Second},
		{"int64 seconds", int64(45), 45 * time.Second},
		{"float64 seconds", 30.5, 30*time.Second + 500*time.Millisecond},
		{"time.Duration directly", 5 * time.Minute, 5 * time.Minute},
		{"invalid string", "invalid", 10 * time.Second},
		{"wrong type bool", true, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"timeout": tt.val})
			assert.Equal(t, tt.want, cfg.Duration("timeout", 10*time.Second))
		})
	}

	assert.Equal(t, time.Second, config.New(nil).Duration("timeout", time.Second))
}

// TestNumbers verifies Int and Float coercion.
func TestNumbers(t *testing.T) {
	cfg := config.New(map[string]any{
		"int":        42,
		"int64":      int64(100),
		"whole":      50.0,
		"fractional": 50.5,
		"string":     "42",
	})

	assert.Equal(t, 42, cfg.Int("int", 0))
	assert.Equal(t, 100, cfg.Int("int64", 0))
	assert.Equal(t, 50, cfg.Int("whole", 0))
	assert.Equal(t, 99, cfg.Int("fractional", 99))
	assert.Equal(t, 99, cfg.Int("string", 99))
	assert.Equal(t, 99, cfg.Int("missing", 99))

	assert.InDelta(t, 50.5, cfg.Float("fractional", 0), 0.001)
	assert.InDelta(t, 42.0, cfg.Float("int", 0), 0.001)
	assert.InDelta(t, 9.99, cfg.Float("string", 9.99), 0.001)
}

// TestBoolAndSlices verifies Bool, StringSlice, Has and Raw.
func TestBoolAndSlices(t *testing.T) {
	data := map[string]any{
		"enabled": true,
		"tags":    []any{"x", "y"},
		"mixed":   []any{"a", 1},
		"nothing": nil,
	}
	cfg := config.New(data)

	assert.True(t, cfg.Bool("enabled", false))
	assert.True(t, cfg.Bool("missing", true))
	assert.Equal(t, []string{"x", "y"}, cfg.StringSlice("tags", nil))
	assert.Equal(t, []string{"default"}, cfg.StringSlice("mixed", []string{"default"}))
	assert.True(t, cfg.Has("nothing"))
	assert.False(t, cfg.Has("missing"))
	assert.Equal(t, data, cfg.Raw())
	assert.NotNil(t, config.New(nil).Raw())
}

// TestSection verifies nested mapping access.
func TestSection(t *testing.T) {
	cfg := config.New(map[string]any{
		"retry": map[string]any{"max_attempts": 5},
		"flat":  "value",
	})

	assert.Equal(t, 5, cfg.Section("retry").Int("max_attempts", 0))
	assert.Empty(t, cfg.Section("flat").Raw())
	assert.Empty(t, cfg.Section("missing").Raw())
}

// TestFromYAML verifies YAML parsing.
func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
name: alice
count: 42
enabled: true
nested:
  timeout: 5s
`))
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.String("name", ""))
	assert.Equal(t, 42, cfg.Int("count", 0))
	assert.True(t, cfg.Bool("enabled", false))
	assert.Equal(t, 5*time.Second, cfg.Section("nested").Duration("timeout", 0))

	_, err = config.FromYAML([]byte("key: [unclosed"))
	assert.Error(t, err)
}

// TestFromJSON verifies JSON parsing.
func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"name": "bob", "count": 7, "nested": {"rate": 0.5}}`))
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.String("name", ""))
	assert.Equal(t, 7, cfg.Int("count", 0))
	assert.InDelta(t, 0.5, cfg.Section("nested").Float("rate", 0), 0.001)

	_, err = config.FromJSON([]byte(`{invalid`))
	assert.Error(t, err)
}

// TestFromFile verifies format detection by extension.
func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "engine.YML")
	require.NoError(t, os.WriteFile(yamlPath, []byte("max_steps: 10\n"), 0o600))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Int("max_steps", 0))

	jsonPath := filepath.Join(dir, "engine.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"max_steps": 20}`), 0o600))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Int("max_steps", 0))

	tomlPath := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`max_steps = 1`), 0o600))
	_, err = config.FromFile(tomlPath)
	assert.ErrorContains(t, err, "unsupported config file extension")

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
