// Package summary builds the per-index data table and value histogram.
package summary

import (
	"math"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/equity-map/internal/classify"
	"github.com/sells-group/equity-map/internal/dataset"
	"github.com/sells-group/equity-map/internal/registry"
)

// DefaultBins is used when the caller asks for a non-positive bin count.
const DefaultBins = 10

// ErrNoValues is returned when a histogram has nothing to count.
var ErrNoValues = eris.New("summary: no valid values")

// Row is one tract of the data table.
type Row struct {
	TractID    string   `json:"tract_id"`
	CountyName string   `json:"county_name"`
	Value      *float64 `json:"value"`
	Display    string   `json:"display"`
}

// Table lists every tract's value of field, highest first, missing last.
// Ties keep dataset order.
func Table(ds *dataset.Dataset, field string, reg *registry.Registry) []Row {
	if ds == nil {
		return nil
	}
	rows := make([]Row, 0, ds.Len())
	for _, f := range ds.Features() {
		r := Row{TractID: f.TractID, CountyName: reg.CountyName(f.CountyFP), Display: "N/A"}
		if v, ok := f.Value(field); ok {
			r.Value = &v
			r.Display = classify.FormatValue(v)
		}
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Value, rows[j].Value
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a > *b
	})
	return rows
}

// Bin is one histogram bucket covering [Lower, Upper); the last bin
// includes Upper.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram is the distribution of a field's valid values.
type Histogram struct {
	Field string  `json:"field"`
	Total int     `json:"total"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Bins  []Bin   `json:"bins"`
}

// BuildHistogram bins values into equal-width buckets spanning their range.
// A constant input yields a single bin.
func BuildHistogram(field string, values []float64, bins int) (*Histogram, error) {
	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		return nil, eris.Wrapf(ErrNoValues, "summary: %s", field)
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	slices.Sort(x)

	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		bins = 1
	}
	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// The upper divider is exclusive; nudge it so the maximum is counted.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, x, nil)

	h := &Histogram{Field: field, Total: len(x), Min: lo, Max: hi, Bins: make([]Bin, bins)}
	for i, c := range counts {
		h.Bins[i] = Bin{Lower: dividers[i], Upper: dividers[i+1], Count: int(c)}
	}
	h.Bins[bins-1].Upper = hi
	return h, nil
}
