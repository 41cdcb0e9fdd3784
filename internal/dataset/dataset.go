// Package dataset holds the census-tract feature collection the dashboard
// renders. A Dataset is immutable once built; index generation replaces it
// wholesale.
package dataset

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Well-known tract properties.
const (
	PropTract      = "Origin_tract"
	PropCounty     = "COUNTYFP"
	PropPopulation = "population_x_o"
	PropRace       = "race"
)

// ErrEmpty is returned when a source holds no features.
var ErrEmpty = eris.New("dataset: no features")

// Feature is one census tract.
type Feature struct {
	TractID    string
	CountyFP   string
	Population float64 // NaN when missing
	Race       string
	Geometry   geom.T
	// Values holds every numeric property. Null or non-numeric values are
	// stored as NaN so the field still counts as present.
	Values map[string]float64
}

// Value returns the feature's value for field and whether it is a valid number.
func (f *Feature) Value(field string) (float64, bool) {
	v, ok := f.Values[field]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

// Dataset is an ordered collection of tracts.
type Dataset struct {
	features []*Feature
	fields   []string
	fieldSet map[string]struct{}
}

// New builds a Dataset. Field order follows first appearance.
func New(features []*Feature) (*Dataset, error) {
	if len(features) == 0 {
		return nil, ErrEmpty
	}
	d := &Dataset{features: features, fieldSet: make(map[string]struct{})}
	for _, f := range features {
		keys := make([]string, 0, len(f.Values))
		for k := range f.Values {
			if _, seen := d.fieldSet[k]; !seen {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			d.fieldSet[k] = struct{}{}
			d.fields = append(d.fields, k)
		}
	}
	return d, nil
}

// Len returns the number of tracts.
func (d *Dataset) Len() int { return len(d.features) }

// Features returns the tracts in source order. Callers must not mutate them.
func (d *Dataset) Features() []*Feature { return d.features }

// Fields returns every numeric field id present in the dataset.
func (d *Dataset) Fields() []string { return d.fields }

// HasField reports whether any tract carries field, valid or not.
func (d *Dataset) HasField(field string) bool {
	if d == nil {
		return false
	}
	_, ok := d.fieldSet[field]
	return ok
}

// Values returns the valid numeric values of field across all tracts.
func (d *Dataset) Values(field string) []float64 {
	var out []float64
	for _, f := range d.features {
		if v, ok := f.Value(field); ok {
			out = append(out, v)
		}
	}
	return out
}

// Bounds returns the XY extent of all tract geometries.
func (d *Dataset) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, f := range d.features {
		if f.Geometry != nil {
			b.Extend(f.Geometry)
		}
	}
	return b
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

type rawFeature struct {
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// Parse decodes a GeoJSON FeatureCollection.
func Parse(r io.Reader) (*Dataset, error) {
	var fc rawCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "dataset: decode geojson")
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("dataset: expected FeatureCollection, got %q", fc.Type)
	}

	features := make([]*Feature, 0, len(fc.Features))
	for i, rf := range fc.Features {
		var g geom.T
		if len(rf.Geometry) > 0 && string(rf.Geometry) != "null" {
			if err := geojson.Unmarshal(rf.Geometry, &g); err != nil {
				return nil, eris.Wrapf(err, "dataset: feature %d geometry", i)
			}
		}
		features = append(features, FromProperties(g, rf.Properties))
	}
	return New(features)
}

// FromProperties builds a Feature from a geometry and its raw properties.
func FromProperties(g geom.T, props map[string]any) *Feature {
	f := &Feature{
		Geometry:   g,
		Population: math.NaN(),
		Values:     make(map[string]float64, len(props)),
	}
	for k, raw := range props {
		switch k {
		case PropTract:
			f.TractID = tractID(raw)
			continue
		case PropCounty:
			f.CountyFP = countyCode(raw)
			continue
		case PropRace:
			if s, ok := raw.(string); ok {
				f.Race = strings.TrimSpace(s)
			}
			continue
		}
		v, ok := toFloat(raw)
		if !ok {
			// Non-numeric strings (labels) are not fields.
			if _, isStr := raw.(string); isStr {
				continue
			}
			v = math.NaN()
		}
		f.Values[k] = v
		if k == PropPopulation {
			f.Population = v
		}
	}
	return f
}

// Source file formats.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shapefile"
)

// Load reads a dataset in the given format. An empty format is picked from
// the file extension.
func Load(path, format string) (*Dataset, error) {
	switch strings.ToLower(format) {
	case "":
		return LoadFile(path)
	case FormatGeoJSON:
		return loadGeoJSON(path)
	case FormatShapefile:
		return LoadShapefile(path)
	}
	return nil, eris.Errorf("dataset: unknown format %q", format)
}

// LoadFile reads a dataset from a GeoJSON file or, for .shp paths, a
// shapefile.
func LoadFile(path string) (*Dataset, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return LoadShapefile(path)
	}
	return loadGeoJSON(path)
}

func loadGeoJSON(path string) (*Dataset, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// tractID normalizes tract ids to digit strings. String ids keep their
// digits, including leading zeros; only a zero fraction ("13121001100.0") is
// dropped. JSON numbers (1.31210011e10) are formatted as integers.
func tractID(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(v)
		if head, frac, ok := strings.Cut(s, "."); ok && head != "" && isDigits(head) && strings.Trim(frac, "0") == "" {
			return head
		}
		return s
	case float64:
		return strconv.FormatFloat(math.Trunc(v), 'f', 0, 64)
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// countyCode renders county codes as 3-digit zero-padded strings when
// numeric.
func countyCode(raw any) string {
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(math.Trunc(v), 'f', 0, 64)
	default:
		return ""
	}
	if _, err := strconv.Atoi(s); err == nil && len(s) < 3 {
		s = strings.Repeat("0", 3-len(s)) + s
	}
	return s
}
