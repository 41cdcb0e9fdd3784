package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Backend.BaseURL)
	assert.Equal(t, 0, cfg.Backend.TimeoutSecs)
	assert.Equal(t, "geojson", cfg.Dataset.Format)
	assert.Equal(t, "ndi_o", cfg.Map.DefaultField)
	assert.Equal(t, 1024, cfg.Map.Width)
	assert.Equal(t, 768, cfg.Map.Height)
	assert.Equal(t, "activity", cfg.Export.StatsPreference)
	assert.Equal(t, 10, cfg.Export.HistogramBins)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.SessionTTLMins)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
backend:
  base_url: https://equity.example.org
log:
  level: debug
  format: console
server:
  port: 9090
export:
  stats_preference: residential
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://equity.example.org", cfg.Backend.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "residential", cfg.Export.StatsPreference)
	// Defaults still apply for unset values
	assert.Equal(t, 1024, cfg.Map.Width)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
map:
  default_field: uei_o
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("EQUITYMAP_MAP_DEFAULT_FIELD", "hoi_o")
	t.Setenv("EQUITYMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "hoi_o", cfg.Map.DefaultField)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("EQUITYMAP_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Backend.BaseURL = "http://localhost:5000"
	cfg.Dataset.Format = "geojson"
	cfg.Map.Width = 1024
	cfg.Map.Height = 768
	cfg.Export.StatsPreference = "activity"
	cfg.Server.Port = 8080
	cfg.Server.MaxSessions = 50
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateRender_NeedsSource(t *testing.T) {
	cfg := validDefaults()
	cfg.Backend.BaseURL = ""

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "backend.base_url or dataset.path is required")

	cfg.Dataset.Path = "tracts.geojson"
	assert.NoError(t, cfg.Validate("render"))
}

func TestValidateGenerate_RejectsLocalMode(t *testing.T) {
	cfg := validDefaults()
	cfg.Dataset.Path = "tracts.geojson"

	err := cfg.Validate("generate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unset dataset.path")
}

func TestValidateStatsPreference(t *testing.T) {
	cfg := validDefaults()
	cfg.Export.StatsPreference = "both"

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "export.stats_preference")
}

func TestValidateDatasetFormat(t *testing.T) {
	cfg := validDefaults()
	cfg.Dataset.Path = "tracts.kml"
	cfg.Dataset.Format = "kml"

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.format")
}

func TestValidateMapSize(t *testing.T) {
	cfg := validDefaults()
	cfg.Map.Width = 0

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "map.width and map.height must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
