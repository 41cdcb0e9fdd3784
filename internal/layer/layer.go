// Package layer turns a dataset field into a styled choropleth layer.
package layer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/equity-map/internal/classify"
	"github.com/sells-group/equity-map/internal/dataset"
	"github.com/sells-group/equity-map/internal/registry"
)

// ErrNoValues is the degradation reason when a field has no valid values.
var ErrNoValues = eris.New("layer: no valid values")

// Kind distinguishes the base choropleth from border-only overlays.
type Kind string

// Layer kinds.
const (
	KindChoropleth Kind = "choropleth"
	KindOverlay    Kind = "overlay"
)

// Style is the per-feature path style, named the way map clients expect it.
type Style struct {
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	DashArray   string  `json:"dashArray,omitempty"`
}

// Base styles.
var (
	ChoroplethStyle = Style{FillOpacity: 0.7, Color: "#ffffff", Weight: 0.5, Opacity: 1}
	DegradedStyle   = Style{FillColor: classify.NoDataColor, FillOpacity: 0.7, Color: "#ffffff", Weight: 0.5, Opacity: 1}
)

// Feature is one styled tract.
type Feature struct {
	TractID  string
	Geometry geom.T
	Value    float64 // NaN when missing
	Style    Style
	Tooltip  string
}

// Layer is a styled, renderable view of one field.
type Layer struct {
	Field    string
	Label    string
	Kind     Kind
	Breaks   classify.Breaks
	Features []Feature
	// Degraded layers are uniform gray; Reason says why.
	Degraded bool
	Reason   error

	legend []classify.LegendEntry
}

// Bounds returns the XY extent of the layer's geometries.
func (l *Layer) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, f := range l.Features {
		if f.Geometry != nil {
			b.Extend(f.Geometry)
		}
	}
	return b
}

// Legend returns the entries of the layer's legend control.
func (l *Layer) Legend() []classify.LegendEntry {
	if l.legend != nil {
		return l.legend
	}
	if l.Degraded {
		return classify.Legend(nil)
	}
	return classify.Legend(l.Breaks)
}

// SetLegend overrides the derived legend. Used by overlays.
func (l *Layer) SetLegend(entries []classify.LegendEntry) {
	l.legend = entries
}

// MarshalGeoJSON encodes the layer as a FeatureCollection with style and
// tooltip properties. Features without geometry are omitted.
func (l *Layer) MarshalGeoJSON() ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(l.Features))}
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		props := map[string]any{
			"tract_id": f.TractID,
			"style":    f.Style,
		}
		if f.Tooltip != "" {
			props["tooltip"] = f.Tooltip
		}
		if !math.IsNaN(f.Value) {
			props["value"] = f.Value
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         f.TractID,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: marshal %s", l.Field)
	}
	return data, nil
}

// Builder constructs layers. It has no side effects.
type Builder struct {
	reg     *registry.Registry
	printer *message.Printer
}

// NewBuilder creates a Builder using reg for county names.
func NewBuilder(reg *registry.Registry) *Builder {
	return &Builder{reg: reg, printer: message.NewPrinter(language.English)}
}

// Build styles every tract of ds by field. When the field has no valid
// values or cannot be classified the returned layer is Degraded with the
// cause in Reason. An error is returned only for unusable input.
func (b *Builder) Build(ds *dataset.Dataset, field, label string) (*Layer, error) {
	if ds == nil {
		return nil, eris.New("layer: no dataset loaded")
	}
	if field == "" {
		return nil, eris.New("layer: empty field")
	}
	if label == "" {
		label = field
	}

	l := &Layer{Field: field, Label: label, Kind: KindChoropleth}

	values := ds.Values(field)
	var reason error
	if len(values) == 0 {
		reason = ErrNoValues
	} else if breaks, err := classify.ComputeBreaks(values, classify.NumClasses); err != nil {
		reason = err
	} else {
		l.Breaks = breaks
	}
	if reason != nil {
		l.Degraded = true
		l.Reason = reason
	}

	l.Features = make([]Feature, 0, ds.Len())
	for _, f := range ds.Features() {
		v, _ := f.Value(field)
		style := DegradedStyle
		if !l.Degraded {
			style = ChoroplethStyle
			style.FillColor = classify.ColorFor(v, l.Breaks)
		}
		l.Features = append(l.Features, Feature{
			TractID:  f.TractID,
			Geometry: f.Geometry,
			Value:    v,
			Style:    style,
			Tooltip:  b.Tooltip(f, label, v),
		})
	}
	return l, nil
}

// Tooltip renders the hover text of one tract.
func (b *Builder) Tooltip(f *dataset.Feature, label string, v float64) string {
	lines := []string{
		"Tract: " + f.TractID,
		"County: " + b.reg.CountyName(f.CountyFP),
		"Population: " + b.FormatPopulation(f.Population),
	}
	if f.Race != "" {
		lines = append(lines, "Race: "+f.Race)
	}
	lines = append(lines, fmt.Sprintf("%s: %s", label, classify.FormatValue(v)))
	return strings.Join(lines, "\n")
}

// FormatPopulation renders a population count with thousands separators.
func (b *Builder) FormatPopulation(pop float64) string {
	if math.IsNaN(pop) || math.IsInf(pop, 0) {
		return "N/A"
	}
	return b.printer.Sprintf("%d", int64(math.Round(pop)))
}
