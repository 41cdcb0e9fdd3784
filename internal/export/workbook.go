package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/equity-map/internal/race"
)

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// WorkbookInput lists the indices and statistics to include.
type WorkbookInput struct {
	Indices []IndexInput
	Stats   []*race.Result
}

// Workbook writes an XLSX file with one sheet per index and one per set of
// race statistics.
func Workbook(w io.Writer, in WorkbookInput) error {
	if len(in.Indices) == 0 {
		return ErrNoIndex
	}

	f := xlsx.NewFile()
	names := sheetNames{}
	for _, idx := range in.Indices {
		if idx.Dataset == nil || !idx.Dataset.HasField(idx.FieldName) {
			return eris.Wrapf(ErrNoIndex, "export: %s", idx.FieldName)
		}
		base, suffix := splitKindSuffix(idx.FieldName)
		sheet, err := f.AddSheet(names.next(base, suffix))
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", idx.FieldName)
		}
		addRow(sheet, indexColumns(idx.FieldName)...)
		for _, ft := range idx.Dataset.Features() {
			row := sheet.AddRow()
			row.AddCell().SetString(ft.TractID)
			row.AddCell().SetString(ft.CountyFP)
			row.AddCell().SetString(idx.Registry.CountyName(ft.CountyFP))
			row.AddCell().SetString(formatPopulation(ft.Population))
			row.AddCell().SetString(ft.Race)
			if v, ok := ft.Value(idx.FieldName); ok {
				row.AddCell().SetFloat(v)
			} else {
				row.AddCell().SetString("")
			}
		}
	}

	for _, res := range in.Stats {
		if res == nil {
			continue
		}
		base, suffix := splitKindSuffix(res.Field)
		sheet, err := f.AddSheet(names.next(base, suffix+" race"))
		if err != nil {
			return eris.Wrapf(err, "export: add sheet for %s stats", res.Field)
		}
		addRow(sheet, "group", "count", "median", "iqr", "mean")
		for _, r := range res.Table() {
			row := sheet.AddRow()
			row.AddCell().SetString(r.Group)
			row.AddCell().SetInt(r.Count)
			row.AddCell().SetString(r.Median)
			row.AddCell().SetString(r.IQR)
			row.AddCell().SetString(r.Mean)
		}
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// sheetNames hands out sheet names that are unique within one workbook.
// Excel compares them case-insensitively.
type sheetNames map[string]bool

// next returns base+suffix cleaned and cut to the Excel limit. The base is
// shortened first so the suffix survives; collisions get a "~N" tag.
func (n sheetNames) next(base, suffix string) string {
	base, suffix = cleanSheetName(base), cleanSheetName(suffix)
	for i := 1; ; i++ {
		tag := suffix
		if i > 1 {
			tag = fmt.Sprintf("%s~%d", suffix, i)
		}
		if len(tag) > maxSheetName {
			tag = tag[len(tag)-maxSheetName:]
		}
		head := base
		if len(head)+len(tag) > maxSheetName {
			head = head[:maxSheetName-len(tag)]
		}
		name := head + tag
		if key := strings.ToLower(name); !n[key] {
			n[key] = true
			return name
		}
	}
}

// splitKindSuffix separates a generated field's _RES or _ACT suffix.
func splitKindSuffix(field string) (string, string) {
	for _, suffix := range []string{"_RES", "_ACT"} {
		if base, ok := strings.CutSuffix(field, suffix); ok {
			return base, suffix
		}
	}
	return field, ""
}

// cleanSheetName replaces characters Excel forbids in sheet names.
func cleanSheetName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, s)
}
