package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/backend"
	"github.com/sells-group/equity-map/internal/config"
	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/registry"
	"github.com/sells-group/equity-map/internal/state"
)

// newClient returns the backend for cfg. A configured dataset path selects
// the local file client.
func newClient(c *config.Config, reg *registry.Registry) backend.Client {
	if c.Dataset.Path != "" {
		zap.L().Info("using local dataset", zap.String("path", c.Dataset.Path))
		return backend.NewStatic(c.Dataset.Path, c.Dataset.Format, reg.IndexVariables())
	}
	return backend.NewClient(
		backend.WithBaseURL(c.Backend.BaseURL),
		backend.WithTimeout(time.Duration(c.Backend.TimeoutSecs)*time.Second),
		backend.WithRateLimit(c.Backend.RatePerSec),
		backend.WithUserAgent(c.Backend.UserAgent),
	)
}

func dashboardOptions(c *config.Config) dashboard.Options {
	pref, err := state.ParseKind(c.Export.StatsPreference)
	if err != nil {
		pref = state.Activity
	}
	return dashboard.Options{
		DefaultField:    c.Map.DefaultField,
		Width:           c.Map.Width,
		Height:          c.Map.Height,
		StatsPreference: pref,
		HistogramBins:   c.Export.HistogramBins,
	}
}

// loadDashboard builds a dashboard from cfg and loads its map data.
func loadDashboard(ctx context.Context, c *config.Config) (*dashboard.Dashboard, error) {
	reg, err := registry.Load()
	if err != nil {
		return nil, eris.Wrap(err, "load field registry")
	}
	d := dashboard.New(newClient(c, reg), reg, dashboardOptions(c))
	if err := d.Load(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// saveDownload writes dl into dir and returns the written path.
func saveDownload(dir string, dl *dashboard.Download) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create export dir %s", dir)
	}
	path := filepath.Join(dir, dl.Filename)
	if err := os.WriteFile(path, dl.Data, 0o644); err != nil { //nolint:gosec // exports are meant to be shared
		return "", eris.Wrapf(err, "write %s", path)
	}
	zap.L().Info("export written", zap.String("path", path), zap.Int("bytes", len(dl.Data)))
	return path, nil
}
