// Package export writes index data, race statistics and workbooks as
// downloadable files.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/equity-map/internal/dataset"
	"github.com/sells-group/equity-map/internal/race"
	"github.com/sells-group/equity-map/internal/registry"
)

// Errors for missing prerequisites.
var (
	ErrNoIndex = eris.New("export: index has not been generated")
	ErrNoStats = eris.New("export: no race statistics computed")
)

// Metadata keys written in the CSV header block.
const (
	MetaIndex       = "Index"
	MetaType        = "Type"
	MetaField       = "Field"
	MetaGenerated   = "Generated"
	MetaDescription = "Description"
	MetaVariable    = "Variable"
)

// Variable describes one source variable of an index.
type Variable struct {
	ID       string
	Name     string
	Category string
}

// IndexInput is everything an index CSV needs.
type IndexInput struct {
	Kind        string
	Name        string
	Description string
	FieldName   string
	Variables   []Variable
	Dataset     *dataset.Dataset
	Registry    *registry.Registry
	GeneratedAt time.Time
}

// Describe resolves display names and categories of variable ids.
func Describe(reg *registry.Registry, ids []string) []Variable {
	out := make([]Variable, len(ids))
	for i, id := range ids {
		out[i] = Variable{ID: id, Name: reg.Resolve(id, nil), Category: reg.CategoryOf(id)}
	}
	return out
}

func indexColumns(field string) []string {
	return []string{"tract_id", "county_fp", "county_name", "population", "dominant_race", field}
}

// IndexCSV writes one index's per-tract values preceded by '#' metadata
// lines.
func IndexCSV(w io.Writer, in IndexInput) error {
	if in.FieldName == "" || in.Dataset == nil || !in.Dataset.HasField(in.FieldName) {
		return ErrNoIndex
	}

	bw := bufio.NewWriter(w)
	meta := [][2]string{
		{MetaIndex, in.Name},
		{MetaType, in.Kind},
		{MetaField, in.FieldName},
		{MetaGenerated, in.GeneratedAt.UTC().Format(time.RFC3339)},
		{MetaDescription, in.Description},
	}
	for _, kv := range meta {
		fmt.Fprintf(bw, "# %s: %s\n", kv[0], oneLine(kv[1]))
	}
	for _, v := range in.Variables {
		fmt.Fprintf(bw, "# %s: %s | %s | %s\n", MetaVariable, v.ID, oneLine(v.Name), oneLine(v.Category))
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(indexColumns(in.FieldName)); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, f := range in.Dataset.Features() {
		v, _ := f.Value(in.FieldName)
		row := []string{
			f.TractID,
			f.CountyFP,
			in.Registry.CountyName(f.CountyFP),
			formatPopulation(f.Population),
			f.Race,
			formatFloat(v),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return eris.Wrap(bw.Flush(), "export: flush")
}

// IndexRow is one parsed row of an index CSV.
type IndexRow struct {
	TractID    string
	CountyFP   string
	CountyName string
	Population string
	Race       string
	Value      *float64
}

// IndexFile is a parsed index CSV.
type IndexFile struct {
	Meta      map[string]string
	Variables []Variable
	Field     string
	Rows      []IndexRow
}

// ReadIndexCSV parses a file written by IndexCSV.
func ReadIndexCSV(r io.Reader) (*IndexFile, error) {
	br := bufio.NewReader(r)
	out := &IndexFile{Meta: make(map[string]string)}

	for {
		b, err := br.Peek(1)
		if err != nil || b[0] != '#' {
			break
		}
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, eris.Wrap(err, "export: read metadata")
		}
		key, val, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if key == MetaVariable {
			parts := strings.Split(val, "|")
			v := Variable{ID: strings.TrimSpace(parts[0])}
			if len(parts) > 1 {
				v.Name = strings.TrimSpace(parts[1])
			}
			if len(parts) > 2 {
				v.Category = strings.TrimSpace(parts[2])
			}
			out.Variables = append(out.Variables, v)
			continue
		}
		out.Meta[key] = val
	}

	records, err := csv.NewReader(br).ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "export: parse csv")
	}
	if len(records) == 0 || len(records[0]) != 6 {
		return nil, eris.New("export: missing index csv header")
	}
	out.Field = records[0][5]

	for _, rec := range records[1:] {
		row := IndexRow{
			TractID:    rec[0],
			CountyFP:   rec[1],
			CountyName: rec[2],
			Population: rec[3],
			Race:       rec[4],
		}
		if rec[5] != "" {
			v, err := strconv.ParseFloat(rec[5], 64)
			if err != nil {
				return nil, eris.Wrapf(err, "export: tract %s value", rec[0])
			}
			row.Value = &v
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// RaceStatsCSV writes one row per race group with the all-tracts aggregate
// last.
func RaceStatsCSV(w io.Writer, res *race.Result) error {
	if res == nil {
		return ErrNoStats
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"group", "count", "median", "iqr", "mean"}); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, row := range res.Table() {
		rec := []string{row.Group, strconv.Itoa(row.Count), row.Median, row.IQR, row.Mean}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPopulation(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
}
