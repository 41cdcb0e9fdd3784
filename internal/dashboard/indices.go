package dashboard

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/backend"
	"github.com/sells-group/equity-map/internal/mapview"
	"github.com/sells-group/equity-map/internal/state"
	"github.com/sells-group/equity-map/internal/summary"
)

// AddSelection adds index variables to the selection set. Duplicates are
// ignored and insertion order is kept.
func (d *Dashboard) AddSelection(ids ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		if !slices.Contains(d.indexFields, id) {
			return newAlert(AlertGeneration, nil, "%q is not an index variable.", id)
		}
	}
	for _, id := range ids {
		if !slices.Contains(d.selection, id) {
			d.selection = append(d.selection, id)
		}
	}
	d.refreshLocked()
	return nil
}

// SetSelection replaces the selection set. On error it is left unchanged.
func (d *Dashboard) SetSelection(ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(d.indexFields, id) {
			return newAlert(AlertGeneration, nil, "%q is not an index variable.", id)
		}
		if !slices.Contains(next, id) {
			next = append(next, id)
		}
	}
	d.selection = next
	d.refreshLocked()
	return nil
}

// RemoveSelection drops variables from the selection set.
func (d *Dashboard) RemoveSelection(ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.selection = slices.DeleteFunc(d.selection, func(s string) bool {
		return slices.Contains(ids, s)
	})
	d.refreshLocked()
}

// ClearSelection empties the selection set.
func (d *Dashboard) ClearSelection() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.selection = nil
	d.refreshLocked()
}

// Selection returns the selected variables in insertion order.
func (d *Dashboard) Selection() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.selection)
}

// Generate requests a new index of kind from the selected variables. The
// request is validated before any network call. Only the latest request per
// slot may complete it; an older response is discarded.
func (d *Dashboard) Generate(ctx context.Context, kind state.Kind, name, description string) (state.Slot, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	d.mu.Lock()
	if d.ds == nil {
		d.mu.Unlock()
		return state.Slot{}, newAlert(AlertGeneration, nil, "Map data is not loaded.")
	}
	vars := slices.Clone(d.selection)
	ticket, err := d.slots.Begin(kind, name, description, vars)
	if err != nil {
		d.mu.Unlock()
		return state.Slot{}, newAlert(AlertGeneration, err, "%s", validationMessage(err))
	}
	// The pending slot no longer backs its comparison pane.
	if d.view.Mode() == mapview.ModeComparison {
		d.view.ExitComparison()
		d.analysis = nil
	}
	d.refreshLocked()
	d.mu.Unlock()

	log := zap.L().With(
		zap.String("kind", string(kind)),
		zap.String("field", ticket.FieldName),
		zap.Uint64("token", ticket.Token),
	)
	log.Info("dashboard: generating index", zap.Strings("variables", vars))

	newDS, genErr := d.client.Generate(ctx, string(kind), backend.GenerateRequest{
		Name:        name,
		Description: description,
		Variables:   vars,
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.refreshLocked()

	if genErr != nil {
		d.slots.Rollback(ticket)
		log.Error("dashboard: generate index", zap.Error(genErr))
		return state.Slot{}, newAlert(AlertGeneration, genErr, "%s", serverMessage(genErr, "Index generation failed."))
	}

	if err := d.slots.Complete(ticket, newDS != nil && newDS.HasField(ticket.FieldName)); err != nil {
		if errors.Is(err, state.ErrStaleTicket) {
			log.Info("dashboard: discarding superseded response")
			return state.Slot{}, newAlert(AlertGeneration, err, "A newer %s index request replaced this one.", kind)
		}
		log.Error("dashboard: response missing index field", zap.Error(err))
		return state.Slot{}, newAlert(AlertGeneration, err, "Generated data does not contain %s.", ticket.FieldName)
	}

	d.ds = newDS
	d.dropMissingLocked()

	// Activated before the layer is built so the legend gets the decorated
	// index name.
	if err := d.slots.Activate(ticket); err != nil {
		return state.Slot{}, newAlert(AlertGeneration, err, "Index %s could not be activated.", ticket.FieldName)
	}
	if _, err := d.buildLayerLocked(ticket.FieldName, true); err != nil {
		d.slots.Rollback(ticket)
		return state.Slot{}, newAlert(AlertGeneration, err, "Could not display %s.", ticket.FieldName)
	}
	d.generatedAt[kind] = d.now().UTC()

	log.Info("dashboard: index generated", zap.Int("tracts", newDS.Len()))
	return d.slots.Slot(kind), nil
}

// dropMissingLocked empties active slots whose field the replacement dataset
// no longer carries.
func (d *Dashboard) dropMissingLocked() {
	for _, k := range state.Kinds {
		s := d.slots.Slot(k)
		if s.Active() && !d.ds.HasField(s.FieldName) {
			zap.L().Warn("dashboard: index field dropped by new dataset", zap.String("field", s.FieldName))
			d.resetSlotLocked(k)
		}
	}
	if d.activeField != "" && !d.ds.HasField(d.activeField) {
		d.activeField = ""
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, state.ErrInvalidName):
		return "Index name must contain only letters, numbers and underscores."
	case errors.Is(err, state.ErrNoVariables):
		return "Select at least one variable."
	case errors.Is(err, state.ErrUnknownKind):
		return "Unknown index type."
	}
	return "Invalid index request."
}

// ResetIndex empties one slot. Comparison view ends and race results for
// its field are cleared. An in-flight request for the slot is discarded
// when it completes.
func (d *Dashboard) ResetIndex(kind state.Kind) error {
	if _, err := state.ParseKind(string(kind)); err != nil {
		return newAlert(AlertGeneration, err, "Unknown index type.")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetSlotLocked(kind)
	d.refreshLocked()
	return nil
}

func (d *Dashboard) resetSlotLocked(kind state.Kind) {
	field := d.slots.Slot(kind).FieldName
	if d.view.Mode() == mapview.ModeComparison {
		d.view.ExitComparison()
	}
	if field != "" && d.analysis != nil && d.analysis.Field == field {
		d.view.ClearRace()
		d.analysis = nil
	}
	d.slots.Reset(kind)
	delete(d.generatedAt, kind)
}

// Reset empties both slots, the selection set, the active field, the race
// panel and every map layer. The dataset stays loaded.
func (d *Dashboard) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetLocked()
	zap.L().Info("dashboard: reset")
}

// Table returns the tract table of an active index slot.
func (d *Dashboard) Table(kind state.Kind) ([]summary.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.slots.Slot(kind)
	if !s.Active() {
		return nil, newAlert(AlertExport, nil, "Generate the %s index first.", kind)
	}
	return summary.Table(d.ds, s.FieldName, d.reg), nil
}

// Histogram returns the value distribution of an active index slot.
func (d *Dashboard) Histogram(kind state.Kind) (*summary.Histogram, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.slots.Slot(kind)
	if !s.Active() {
		return nil, newAlert(AlertExport, nil, "Generate the %s index first.", kind)
	}
	h, err := summary.BuildHistogram(s.FieldName, d.ds.Values(s.FieldName), d.opts.HistogramBins)
	if err != nil {
		return nil, newAlert(AlertClassification, err, "No valid values for %s.", s.FieldName)
	}
	return h, nil
}
