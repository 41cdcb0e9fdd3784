package dashboard

import (
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/mapview"
	"github.com/sells-group/equity-map/internal/race"
	"github.com/sells-group/equity-map/internal/registry"
)

// SetRaceGroups replaces the race groups selected for analysis. Keys may be
// group keys or labels; duplicates are dropped.
func (d *Dashboard) SetRaceGroups(keys []string) error {
	groups := make([]registry.RaceGroup, 0, len(keys))
	for _, k := range keys {
		g, ok := d.reg.RaceGroup(k)
		if !ok {
			return newAlert(AlertAnalysis, nil, "Unknown race group %q.", k)
		}
		if !slices.ContainsFunc(groups, func(x registry.RaceGroup) bool { return x.Key == g.Key }) {
			groups = append(groups, g)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.raceGroups = groups
	d.refreshLocked()
	return nil
}

// Analyze overlays the selected race groups on field and computes their
// statistics. An empty field analyzes the active field. The statistics are
// attached to the index slot showing field, if any. On failure the overlay
// is removed and no statistics are kept.
func (d *Dashboard) Analyze(field string) (*race.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.refreshLocked()

	if field == "" {
		field = d.activeField
	}
	switch {
	case len(d.raceGroups) == 0:
		return nil, newAlert(AlertAnalysis, race.ErrNoGroups, "Select at least one race group.")
	case d.ds == nil:
		return nil, newAlert(AlertAnalysis, race.ErrNoDataset, "Map data is not loaded.")
	case field == "":
		return nil, newAlert(AlertAnalysis, race.ErrNoField, "Select a field to analyze.")
	}

	d.view.ClearRace()
	d.analysis = nil

	if base := d.view.Primary().Base(); base == nil || base.Field != field {
		if _, err := d.buildLayerLocked(field, true); err != nil {
			return nil, newAlert(AlertAnalysis, err, "Could not display %s.", field)
		}
	}

	label := d.labelLocked(field)
	overlay, err := race.Overlay(d.ds, field, d.raceGroups)
	if err != nil {
		return nil, newAlert(AlertAnalysis, err, "Could not build the race overlay.")
	}
	res, err := race.Compute(d.ds, field, label, d.raceGroups)
	if err != nil {
		d.view.ClearRace()
		zap.L().Error("dashboard: race statistics", zap.String("field", field), zap.Error(err))
		return nil, newAlert(AlertAnalysis, err, "Race statistics failed for %s.", label)
	}

	d.view.ShowRace(overlay, mapview.Legend{Title: "Dominant Race", Entries: overlay.Legend()})
	d.analysis = res

	if kind, ok := d.slots.AttachStats(field, res); ok {
		zap.L().Info("dashboard: race statistics attached",
			zap.String("field", field),
			zap.String("kind", string(kind)),
			zap.Int("groups", len(res.Groups)),
		)
	} else {
		zap.L().Debug("dashboard: race statistics not attached to an index", zap.String("field", field))
	}
	return res, nil
}

// Analysis returns the latest race analysis, or nil.
func (d *Dashboard) Analysis() *race.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.analysis
}
