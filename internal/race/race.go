// Package race computes race-stratified statistics for a field and the
// border overlay that highlights the analyzed groups.
package race

import (
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"

	"github.com/sells-group/equity-map/internal/classify"
	"github.com/sells-group/equity-map/internal/dataset"
	"github.com/sells-group/equity-map/internal/layer"
	"github.com/sells-group/equity-map/internal/registry"
)

// AllTractsKey keys the aggregate over every tract regardless of race.
const AllTractsKey = "all_tracts"

// OtherColor outlines tracts outside the analyzed groups.
const OtherColor = "#808080"

// Errors returned when preconditions fail.
var (
	ErrNoGroups  = eris.New("race: select at least one race group")
	ErrNoField   = eris.New("race: no field selected")
	ErrNoDataset = eris.New("race: no dataset loaded")
)

// Overlay border styles.
var (
	MatchStyle = layer.Style{Weight: 3, Opacity: 1, FillOpacity: 0}
	OtherStyle = layer.Style{Color: OtherColor, Weight: 0.5, Opacity: 0.8, DashArray: "4 4", FillOpacity: 0}
)

// Stat summarizes one group. Nil pointers mean "not available".
type Stat struct {
	Key    string   `json:"key"`
	Label  string   `json:"label"`
	Color  string   `json:"color,omitempty"`
	Count  int      `json:"count"`
	Median *float64 `json:"median"`
	IQR    *float64 `json:"iqr"`
	Mean   *float64 `json:"mean"`
}

// Result is one analysis run.
type Result struct {
	Field      string    `json:"field"`
	Label      string    `json:"label"`
	Groups     []Stat    `json:"groups"`
	All        Stat      `json:"all_tracts"`
	ComputedAt time.Time `json:"computed_at"`
}

// Row is one formatted line of the results table.
type Row struct {
	Group  string `json:"group"`
	Count  int    `json:"count"`
	Median string `json:"median"`
	IQR    string `json:"iqr"`
	Mean   string `json:"mean"`
}

// Table returns the groups in discovery order with the aggregate last.
func (r *Result) Table() []Row {
	rows := make([]Row, 0, len(r.Groups)+1)
	for _, s := range r.Groups {
		rows = append(rows, s.row())
	}
	return append(rows, r.All.row())
}

// ByKey indexes the groups and the aggregate by key.
func (r *Result) ByKey() map[string]Stat {
	out := make(map[string]Stat, len(r.Groups)+1)
	for _, s := range r.Groups {
		out[s.Key] = s
	}
	out[AllTractsKey] = r.All
	return out
}

// Legend lists the analyzed groups' border colors and the generic entry for
// other tracts.
func (r *Result) Legend() []classify.LegendEntry {
	entries := make([]classify.LegendEntry, 0, len(r.Groups)+1)
	for _, s := range r.Groups {
		entries = append(entries, classify.LegendEntry{Color: s.Color, Label: s.Label})
	}
	return append(entries, classify.LegendEntry{Color: OtherColor, Label: "Other tracts", Dashed: true})
}

func (s Stat) row() Row {
	return Row{
		Group:  s.Label,
		Count:  s.Count,
		Median: formatPtr(s.Median),
		IQR:    formatPtr(s.IQR),
		Mean:   formatPtr(s.Mean),
	}
}

func formatPtr(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return classify.FormatValue(*v)
}

func checkInput(ds *dataset.Dataset, field string, groups []registry.RaceGroup) error {
	if len(groups) == 0 {
		return ErrNoGroups
	}
	if ds == nil {
		return ErrNoDataset
	}
	if field == "" {
		return ErrNoField
	}
	return nil
}

// match returns the index of the group a tract's race belongs to, or -1.
func match(race string, groups []registry.RaceGroup) int {
	for i, g := range groups {
		if strings.EqualFold(race, g.Label) || strings.EqualFold(race, g.Key) {
			return i
		}
	}
	return -1
}

// Compute summarizes field per selected group and over all tracts.
func Compute(ds *dataset.Dataset, field, label string, groups []registry.RaceGroup) (*Result, error) {
	if err := checkInput(ds, field, groups); err != nil {
		return nil, err
	}

	values := make([][]float64, len(groups))
	var all []float64
	var order []int
	seen := make([]bool, len(groups))

	for _, f := range ds.Features() {
		gi := match(f.Race, groups)
		if gi >= 0 && !seen[gi] {
			seen[gi] = true
			order = append(order, gi)
		}
		v, ok := f.Value(field)
		if !ok {
			continue
		}
		all = append(all, v)
		if gi >= 0 {
			values[gi] = append(values[gi], v)
		}
	}
	// Selected groups with no tracts follow in selection order.
	for gi := range groups {
		if !seen[gi] {
			order = append(order, gi)
		}
	}

	res := &Result{Field: field, Label: label, ComputedAt: time.Now().UTC()}
	for _, gi := range order {
		g := groups[gi]
		s, err := summarize(g.Key, g.Label, values[gi])
		if err != nil {
			return nil, eris.Wrapf(err, "race: summarize %s", g.Key)
		}
		s.Color = g.Color
		res.Groups = append(res.Groups, s)
	}

	agg, err := summarize(AllTractsKey, "All Tracts", all)
	if err != nil {
		return nil, eris.Wrap(err, "race: summarize all tracts")
	}
	res.All = agg
	return res, nil
}

// summarize computes count, median, IQR and mean. One value reports itself
// as median and mean with no IQR; no values report nothing.
func summarize(key, label string, data []float64) (Stat, error) {
	s := Stat{Key: key, Label: label, Count: len(data)}
	switch len(data) {
	case 0:
		return s, nil
	case 1:
		v := data[0]
		s.Median, s.Mean = &v, &v
		return s, nil
	}

	median, err := stats.Median(data)
	if err != nil {
		return s, eris.Wrap(err, "median")
	}
	iqr, err := stats.InterQuartileRange(data)
	if err != nil {
		return s, eris.Wrap(err, "interquartile range")
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return s, eris.Wrap(err, "mean")
	}
	s.Median, s.IQR, s.Mean = &median, &iqr, &mean
	return s, nil
}

// Overlay builds the border-only layer for the analyzed groups. Fill is
// transparent so the base choropleth stays visible.
func Overlay(ds *dataset.Dataset, field string, groups []registry.RaceGroup) (*layer.Layer, error) {
	if err := checkInput(ds, field, groups); err != nil {
		return nil, err
	}

	l := &layer.Layer{Field: field, Label: field, Kind: layer.KindOverlay}
	l.Features = make([]layer.Feature, 0, ds.Len())
	for _, f := range ds.Features() {
		style := OtherStyle
		if gi := match(f.Race, groups); gi >= 0 {
			style = MatchStyle
			style.Color = groups[gi].Color
		}
		v, _ := f.Value(field)
		l.Features = append(l.Features, layer.Feature{
			TractID:  f.TractID,
			Geometry: f.Geometry,
			Value:    v,
			Style:    style,
		})
	}

	entries := make([]classify.LegendEntry, 0, len(groups)+1)
	for _, g := range groups {
		entries = append(entries, classify.LegendEntry{Color: g.Color, Label: g.Label})
	}
	l.SetLegend(append(entries, classify.LegendEntry{Color: OtherColor, Label: "Other tracts", Dashed: true}))
	return l, nil
}
