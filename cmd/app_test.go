package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/equity-map/internal/api"
	"github.com/sells-group/equity-map/internal/backend"
	"github.com/sells-group/equity-map/internal/config"
	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/registry"
	"github.com/sells-group/equity-map/internal/state"
)

const tractsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[-84.6, 33.7], [-84.5, 33.7], [-84.5, 33.8], [-84.6, 33.8], [-84.6, 33.7]]]},
     "properties": {"Origin_tract": "13121001100", "COUNTYFP": "121", "population_x_o": 2000, "race": "Black", "ndi_o": 1.5}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[-84.5, 33.7], [-84.4, 33.7], [-84.4, 33.8], [-84.5, 33.8], [-84.5, 33.7]]]},
     "properties": {"Origin_tract": "13121001200", "COUNTYFP": "121", "population_x_o": 3000, "race": "White", "ndi_o": -0.5}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[-84.4, 33.7], [-84.3, 33.7], [-84.3, 33.8], [-84.4, 33.8], [-84.4, 33.7]]]},
     "properties": {"Origin_tract": "13089020100", "COUNTYFP": "089", "population_x_o": 4000, "race": "White", "ndi_o": 0.2}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[-84.3, 33.7], [-84.2, 33.7], [-84.2, 33.8], [-84.3, 33.8], [-84.3, 33.7]]]},
     "properties": {"Origin_tract": "13089020200", "COUNTYFP": "089", "population_x_o": 5000, "race": "Hispanic", "ndi_o": 0.9}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[-84.2, 33.7], [-84.1, 33.7], [-84.1, 33.8], [-84.2, 33.8], [-84.2, 33.7]]]},
     "properties": {"Origin_tract": "13067030100", "COUNTYFP": "067", "population_x_o": 6000, "race": "Black", "ndi_o": 2.4}},
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[-84.1, 33.7], [-84.0, 33.7], [-84.0, 33.8], [-84.1, 33.8], [-84.1, 33.7]]]},
     "properties": {"Origin_tract": "13067030200", "COUNTYFP": "067", "population_x_o": 7000, "race": "Hispanic", "ndi_o": -1.1}}
  ]
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tracts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(tractsGeoJSON), 0o600))

	return &config.Config{
		Dataset: config.DatasetConfig{Path: path, Format: "geojson"},
		Map:     config.MapConfig{DefaultField: "ndi_o", Width: 200, Height: 150},
		Export:  config.ExportConfig{Dir: filepath.Join(dir, "out"), StatsPreference: "residential", HistogramBins: 5},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestNewClient(t *testing.T) {
	reg := registry.MustLoad()

	c := testConfig(t)
	_, ok := newClient(c, reg).(*backend.Static)
	assert.True(t, ok, "dataset path selects the local client")

	c.Dataset.Path = ""
	c.Backend.BaseURL = "http://localhost:5000"
	_, ok = newClient(c, reg).(*backend.Static)
	assert.False(t, ok)
}

func TestDashboardOptions(t *testing.T) {
	c := testConfig(t)
	opts := dashboardOptions(c)
	assert.Equal(t, state.Residential, opts.StatsPreference)
	assert.Equal(t, 200, opts.Width)
	assert.Equal(t, 5, opts.HistogramBins)

	c.Export.StatsPreference = "bogus"
	assert.Equal(t, state.Activity, dashboardOptions(c).StatsPreference)
}

func TestLoadDashboard_LocalDataset(t *testing.T) {
	d, err := loadDashboard(context.Background(), testConfig(t))
	require.NoError(t, err)

	s := d.Status()
	assert.True(t, s.Loaded)
	assert.Equal(t, "ndi_o", s.ActiveField)
	assert.False(t, s.Controls.Compare)
}

func TestLoadDashboard_MissingFile(t *testing.T) {
	c := testConfig(t)
	c.Dataset.Path = filepath.Join(t.TempDir(), "missing.geojson")

	_, err := loadDashboard(context.Background(), c)
	a, ok := dashboard.AsAlert(err)
	require.True(t, ok)
	assert.Equal(t, dashboard.AlertLoad, a.Kind)
}

func TestSaveDownload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path, err := saveDownload(dir, &dashboard.Download{Filename: "a.csv", Data: []byte("x,y\n")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(data))
}

func TestRenderCommand_WritesPNG(t *testing.T) {
	cfg = testConfig(t)
	renderField, renderGroups, renderOut = "", []string{"black", "white"}, ""
	renderWidth, renderHeight, renderNoLegend = 0, 0, false
	t.Cleanup(func() { renderGroups = nil })

	var out bytes.Buffer
	renderCmd.SetOut(&out)
	renderCmd.SetContext(context.Background())
	require.NoError(t, renderCmd.RunE(renderCmd, nil))

	matches, err := filepath.Glob(filepath.Join(cfg.Export.Dir, "*.png"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, out.String(), "Map written to")
	assert.Contains(t, out.String(), "by dominant race")
}

func TestRenderCommand_UnknownField(t *testing.T) {
	cfg = testConfig(t)
	renderField, renderGroups = "nope_o", nil
	t.Cleanup(func() { renderField = "" })

	renderCmd.SetOut(&bytes.Buffer{})
	renderCmd.SetContext(context.Background())
	assert.Error(t, renderCmd.RunE(renderCmd, nil))
}

func TestGenerateCommand_RequiresBackend(t *testing.T) {
	cfg = testConfig(t)
	genKind, genName, genVars = "residential", "home", []string{"poverty_rate_o"}

	generateCmd.SetContext(context.Background())
	err := generateCmd.RunE(generateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.path")
}

func TestPrintCatalog(t *testing.T) {
	var out bytes.Buffer
	printCatalog(&out, registry.MustLoad())
	assert.Contains(t, out.String(), "ndi_o")
	assert.Contains(t, out.String(), "Race groups:")
}

func TestPruneSessions_StopsOnCancel(t *testing.T) {
	store := api.NewSessionStore(2, time.Millisecond)
	store.Add(dashboard.New(nil, registry.MustLoad(), dashboard.Options{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pruneSessions(ctx, store, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Stats().Sessions == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruneSessions did not return")
	}
}
