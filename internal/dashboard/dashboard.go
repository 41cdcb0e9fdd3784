// Package dashboard is the application state of one choropleth dashboard:
// the loaded dataset, the displayed field, the variable selection, both
// generated-index slots, the map views and the latest race analysis.
//
// Every exported method takes the dashboard lock, so a Dashboard is safe
// for concurrent use. Backend calls run outside the lock.
package dashboard

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/equity-map/internal/backend"
	"github.com/sells-group/equity-map/internal/dataset"
	"github.com/sells-group/equity-map/internal/layer"
	"github.com/sells-group/equity-map/internal/mapview"
	"github.com/sells-group/equity-map/internal/race"
	"github.com/sells-group/equity-map/internal/registry"
	"github.com/sells-group/equity-map/internal/state"
	"github.com/sells-group/equity-map/internal/summary"
)

// Options configures a Dashboard. Zero values take defaults.
type Options struct {
	DefaultField    string
	Width           int
	Height          int
	StatsPreference state.Kind
	HistogramBins   int
}

func (o Options) withDefaults() Options {
	if o.DefaultField == "" {
		o.DefaultField = "ndi_o"
	}
	if o.Width <= 0 {
		o.Width = 1024
	}
	if o.Height <= 0 {
		o.Height = 768
	}
	if o.StatsPreference == "" {
		o.StatsPreference = state.Activity
	}
	if o.HistogramBins <= 0 {
		o.HistogramBins = summary.DefaultBins
	}
	return o
}

// Dashboard owns all mutable state of one session.
type Dashboard struct {
	mu sync.Mutex

	client  backend.Client
	reg     *registry.Registry
	builder *layer.Builder
	opts    Options
	now     func() time.Time

	ds             *dataset.Dataset
	indexFields    []string
	fieldsFallback bool
	activeField    string
	layerDegraded  bool
	selection      []string
	raceGroups     []registry.RaceGroup
	slots          *state.Manager
	generatedAt    map[state.Kind]time.Time
	view           *mapview.Controller
	analysis       *race.Result
	controls       state.Controls
}

// New creates an empty dashboard. Call Load before anything else.
func New(client backend.Client, reg *registry.Registry, opts Options) *Dashboard {
	opts = opts.withDefaults()
	d := &Dashboard{
		client:      client,
		reg:         reg,
		builder:     layer.NewBuilder(reg),
		opts:        opts,
		now:         time.Now,
		slots:       state.NewManager(),
		generatedAt: make(map[state.Kind]time.Time, len(state.Kinds)),
		view:        mapview.NewController(opts.Width, opts.Height),
	}
	d.refreshLocked()
	return d
}

// Load fetches the dataset and the index variable list concurrently, then
// displays the default field. A dataset failure leaves the dashboard
// unloaded. A field-list failure falls back to the catalog's variables.
func (d *Dashboard) Load(ctx context.Context) error {
	var (
		ds        *dataset.Dataset
		fields    []string
		fieldsErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds, err = d.client.Dataset(gctx)
		return err
	})
	g.Go(func() error {
		// Not returned: a missing field list must not abort the map.
		fields, fieldsErr = d.client.IndexFields(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		zap.L().Error("dashboard: load dataset", zap.Error(err))
		return newAlert(AlertLoad, err, "%s", serverMessage(err, "Failed to load map data."))
	}
	if ds == nil || ds.Len() == 0 {
		return newAlert(AlertLoad, dataset.ErrEmpty, "Map data contains no tracts.")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetLocked()
	d.ds = ds
	d.fieldsFallback = fieldsErr != nil
	if fieldsErr != nil {
		zap.L().Warn("dashboard: load index fields, using catalog defaults", zap.Error(fieldsErr))
		d.indexFields = slices.Clone(d.reg.IndexVariables())
	} else {
		d.indexFields = fields
	}

	field := d.opts.DefaultField
	if !ds.HasField(field) {
		if all := ds.Fields(); len(all) > 0 {
			field = all[0]
		}
	}
	zap.L().Info("dashboard: dataset loaded",
		zap.Int("tracts", ds.Len()),
		zap.Int("fields", len(ds.Fields())),
		zap.Int("index_fields", len(d.indexFields)),
		zap.String("default_field", field),
	)

	l, err := d.buildLayerLocked(field, true)
	if err != nil {
		d.refreshLocked()
		return err
	}
	d.view.Primary().FitBounds(l.Bounds())
	return nil
}

// refreshLocked recomputes the control flags from the current state. Every
// mutation ends with it.
func (d *Dashboard) refreshLocked() {
	snap := d.slots.Snapshot()
	snap.Loaded = d.ds != nil
	snap.ActiveField = d.activeField
	snap.LayerDegraded = d.layerDegraded
	snap.Selected = len(d.selection)
	snap.RaceGroups = len(d.raceGroups)
	d.controls = state.ControlsFor(snap)
}

// resetLocked returns everything but the dataset to its initial state.
func (d *Dashboard) resetLocked() {
	d.slots.ResetAll()
	clear(d.generatedAt)
	d.selection = nil
	d.raceGroups = nil
	d.activeField = ""
	d.layerDegraded = false
	d.analysis = nil
	d.view.Reset()
	d.refreshLocked()
}

// Controls returns the current control flags.
func (d *Dashboard) Controls() state.Controls {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controls
}

// Loaded reports whether a dataset is loaded.
func (d *Dashboard) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ds != nil
}

// Dataset returns the current dataset, or nil before Load.
func (d *Dashboard) Dataset() *dataset.Dataset {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ds
}

// Registry returns the field registry.
func (d *Dashboard) Registry() *registry.Registry { return d.reg }

// IndexFields returns the variables selectable for index creation.
func (d *Dashboard) IndexFields() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.indexFields)
}

// Status is a read-only copy of the dashboard state.
type Status struct {
	Loaded         bool                 `json:"loaded"`
	ActiveField    string               `json:"active_field"`
	ActiveLabel    string               `json:"active_label,omitempty"`
	LayerDegraded  bool                 `json:"layer_degraded"`
	Mode           mapview.Mode         `json:"mode"`
	RaceOverlay    bool                 `json:"race_overlay"`
	Selection      []string             `json:"selection"`
	RaceGroups     []registry.RaceGroup `json:"race_groups"`
	Residential    state.Slot           `json:"residential"`
	Activity       state.Slot           `json:"activity"`
	Analysis       *race.Result         `json:"analysis,omitempty"`
	FieldsFallback bool                 `json:"fields_fallback,omitempty"`
	Controls       state.Controls       `json:"controls"`
}

// Status returns a snapshot of the dashboard.
func (d *Dashboard) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Status{
		Loaded:         d.ds != nil,
		ActiveField:    d.activeField,
		LayerDegraded:  d.layerDegraded,
		Mode:           d.view.Mode(),
		RaceOverlay:    d.view.Primary().Overlay() != nil,
		Selection:      slices.Clone(d.selection),
		RaceGroups:     slices.Clone(d.raceGroups),
		Residential:    d.slots.Slot(state.Residential),
		Activity:       d.slots.Slot(state.Activity),
		Analysis:       d.analysis,
		FieldsFallback: d.fieldsFallback,
		Controls:       d.controls,
	}
	if d.activeField != "" {
		s.ActiveLabel = d.labelLocked(d.activeField)
	}
	return s
}

// labelLocked resolves the display name of field, decorating it when it is a
// generated index.
func (d *Dashboard) labelLocked(field string) string {
	var active *registry.GeneratedField
	if slot, ok := d.slots.ByField(field); ok {
		active = &registry.GeneratedField{FieldName: slot.FieldName, Name: slot.Name, Kind: string(slot.Kind)}
	}
	return d.reg.Resolve(field, active)
}
