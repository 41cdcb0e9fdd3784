package dashboard

import (
	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/layer"
	"github.com/sells-group/equity-map/internal/mapview"
	"github.com/sells-group/equity-map/internal/state"
)

// Compare shows both generated indices side by side. It is rejected, with
// no view change, unless both slots are active.
func (d *Dashboard) Compare() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.slots.BothActive() {
		return newAlert(AlertView, nil, "Generate both a residential and an activity index to compare them.")
	}

	var layers [2]*layer.Layer
	for i, k := range state.Kinds {
		field := d.slots.Slot(k).FieldName
		l, err := d.buildLayerLocked(field, false)
		if err != nil {
			return newAlert(AlertView, err, "Could not build the %s layer.", k)
		}
		layers[i] = l
	}

	if err := d.view.EnterComparison(layers[0], layers[1]); err != nil {
		return newAlert(AlertView, err, "Could not enter comparison view.")
	}
	zap.L().Info("dashboard: comparison view",
		zap.String("residential", layers[0].Field),
		zap.String("activity", layers[1].Field),
	)
	d.refreshLocked()
	return nil
}

// SingleView returns to the primary map. Race overlays are removed.
func (d *Dashboard) SingleView() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.view.Mode() == mapview.ModeComparison {
		d.view.ExitComparison()
		d.analysis = nil
	}
	d.refreshLocked()
}

// Mode returns the current view mode.
func (d *Dashboard) Mode() mapview.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view.Mode()
}

// Pan moves one pane. Comparison panes move together.
func (d *Dashboard) Pan(pane string, center mapview.LatLng, zoom float64) (mapview.Viewport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.view.Pane(pane)
	if !ok {
		return mapview.Viewport{}, newAlert(AlertView, nil, "Unknown map pane %q.", pane)
	}
	m.SetView(mapview.Viewport{Center: center, Zoom: zoom})
	return m.View(), nil
}

// Viewport returns the current view of a pane.
func (d *Dashboard) Viewport(pane string) (mapview.Viewport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.view.Pane(pane)
	if !ok {
		return mapview.Viewport{}, newAlert(AlertView, nil, "Unknown map pane %q.", pane)
	}
	return m.View(), nil
}

// Resize changes the pixel size of the primary map.
func (d *Dashboard) Resize(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if width > 0 && height > 0 {
		p := d.view.Primary()
		p.Width, p.Height = width, height
		p.InvalidateSize()
	}
}
