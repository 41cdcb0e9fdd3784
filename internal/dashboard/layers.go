package dashboard

import (
	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/layer"
	"github.com/sells-group/equity-map/internal/mapview"
)

// BuildLayer constructs the choropleth layer for field. With display false
// it has no side effects. With display true the layer replaces the primary
// base layer and its legend, field becomes the active field and any race
// overlay for a different field is removed.
//
// A field that cannot be classified yields a Degraded layer, not an error.
func (d *Dashboard) BuildLayer(field string, display bool) (*layer.Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buildLayerLocked(field, display)
}

// SelectField displays a dataset field on the primary map.
func (d *Dashboard) SelectField(field string) (*layer.Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ds == nil {
		return nil, newAlert(AlertLoad, nil, "Map data is not loaded.")
	}
	if !d.ds.HasField(field) {
		return nil, newAlert(AlertClassification, nil, "Field %q is not in the dataset.", field)
	}
	return d.buildLayerLocked(field, true)
}

func (d *Dashboard) buildLayerLocked(field string, display bool) (*layer.Layer, error) {
	if d.ds == nil {
		return nil, newAlert(AlertLoad, nil, "Map data is not loaded.")
	}
	if field == "" {
		return nil, newAlert(AlertClassification, nil, "No field selected.")
	}

	l, err := d.builder.Build(d.ds, field, d.labelLocked(field))
	if err != nil {
		return nil, newAlert(AlertClassification, err, "Could not build the layer for %s.", field)
	}
	if l.Degraded {
		zap.L().Warn("dashboard: layer degraded",
			zap.String("field", field),
			zap.Error(l.Reason),
		)
	}
	if !display {
		return l, nil
	}

	if ov := d.view.Primary().Overlay(); ov != nil && ov.Field != field {
		d.view.ClearRace()
		d.analysis = nil
	}
	d.view.ShowBase(l)
	d.activeField = field
	d.layerDegraded = l.Degraded
	d.refreshLocked()
	return l, nil
}

// Layers returns the base layer and race overlay shown on a pane. Either may
// be nil.
func (d *Dashboard) Layers(pane string) (*layer.Layer, *layer.Layer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.view.Pane(pane)
	if !ok {
		return nil, nil, newAlert(AlertView, nil, "Unknown map pane %q.", pane)
	}
	return m.Base(), m.Overlay(), nil
}

// Legends returns the legend controls of a pane.
func (d *Dashboard) Legends(pane string) ([]mapview.Legend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.view.Pane(pane)
	if !ok {
		return nil, newAlert(AlertView, nil, "Unknown map pane %q.", pane)
	}
	return append([]mapview.Legend(nil), m.Legends()...), nil
}
