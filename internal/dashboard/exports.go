package dashboard

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/sells-group/equity-map/internal/export"
	"github.com/sells-group/equity-map/internal/race"
	"github.com/sells-group/equity-map/internal/raster"
	"github.com/sells-group/equity-map/internal/state"
)

// Content types of downloads.
const (
	ContentTypeCSV  = "text/csv"
	ContentTypePNG  = "image/png"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// WorkbookFilename names the multi-sheet export.
const WorkbookFilename = "equity_indices.xlsx"

// Download is a fully rendered export. Nothing is produced on failure.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (d *Dashboard) indexInputLocked(kind state.Kind) (export.IndexInput, error) {
	s := d.slots.Slot(kind)
	if !s.Active() {
		return export.IndexInput{}, newAlert(AlertExport, export.ErrNoIndex, "Generate the %s index first.", kind)
	}
	return export.IndexInput{
		Kind:        string(kind),
		Name:        s.Name,
		Description: s.Description,
		FieldName:   s.FieldName,
		Variables:   export.Describe(d.reg, s.Variables),
		Dataset:     d.ds,
		Registry:    d.reg,
		GeneratedAt: d.generatedAt[kind],
	}, nil
}

// ExportIndexCSV renders the CSV of an active index slot.
func (d *Dashboard) ExportIndexCSV(kind state.Kind) (*Download, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	in, err := d.indexInputLocked(kind)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := export.IndexCSV(&buf, in); err != nil {
		return nil, newAlert(AlertExport, err, "Could not export the %s index.", kind)
	}
	return &Download{
		Filename:    export.IndexFilename(string(kind), in.Name),
		ContentType: ContentTypeCSV,
		Data:        buf.Bytes(),
	}, nil
}

// ExportRaceStats renders the race statistics attached to kind. An empty
// kind picks the only slot with statistics, or the configured preference
// when both have them.
func (d *Dashboard) ExportRaceStats(kind state.Kind) (*Download, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := d.statsForLocked(kind)
	if res == nil {
		return nil, newAlert(AlertExport, export.ErrNoStats, "Run a race analysis on a generated index first.")
	}
	var buf bytes.Buffer
	if err := export.RaceStatsCSV(&buf, res); err != nil {
		return nil, newAlert(AlertExport, err, "Could not export race statistics.")
	}
	return &Download{
		Filename:    export.RaceStatsFilename(res.Field),
		ContentType: ContentTypeCSV,
		Data:        buf.Bytes(),
	}, nil
}

func (d *Dashboard) statsForLocked(kind state.Kind) *race.Result {
	if kind != "" {
		return d.activeStatsLocked(kind)
	}
	pref := d.opts.StatsPreference
	if res := d.activeStatsLocked(pref); res != nil {
		return res
	}
	for _, k := range state.Kinds {
		if res := d.activeStatsLocked(k); res != nil {
			return res
		}
	}
	return nil
}

func (d *Dashboard) activeStatsLocked(kind state.Kind) *race.Result {
	if !d.slots.Slot(kind).Active() {
		return nil
	}
	return d.slots.Stats(kind)
}

// ExportMapPNG rasterizes the primary map with its legends. Zero sizes in
// opts use the map's pixel size.
func (d *Dashboard) ExportMapPNG(opts raster.Options) (*Download, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.controls.ExportImage {
		return nil, newAlert(AlertExport, raster.ErrNothingToRender, "Display a variable or generated index before exporting the map.")
	}
	m := d.view.Primary()
	img, err := raster.Render(m, opts)
	if err != nil {
		zap.L().Error("dashboard: render map", zap.Error(err))
		return nil, newAlert(AlertExport, err, "Map image export failed.")
	}
	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf, img); err != nil {
		return nil, newAlert(AlertExport, err, "Map image export failed.")
	}
	return &Download{
		Filename:    export.MapFilename(d.labelLocked(m.Base().Field), m.Overlay() != nil),
		ContentType: ContentTypePNG,
		Data:        buf.Bytes(),
	}, nil
}

// ExportWorkbook renders every active index, and any statistics attached to
// them, as one XLSX workbook.
func (d *Dashboard) ExportWorkbook() (*Download, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var in export.WorkbookInput
	for _, k := range state.Kinds {
		if !d.slots.Slot(k).Active() {
			continue
		}
		idx, err := d.indexInputLocked(k)
		if err != nil {
			return nil, err
		}
		in.Indices = append(in.Indices, idx)
		in.Stats = append(in.Stats, d.slots.Stats(k))
	}
	if len(in.Indices) == 0 {
		return nil, newAlert(AlertExport, export.ErrNoIndex, "Generate an index first.")
	}

	var buf bytes.Buffer
	if err := export.Workbook(&buf, in); err != nil {
		return nil, newAlert(AlertExport, err, "Workbook export failed.")
	}
	return &Download{Filename: WorkbookFilename, ContentType: ContentTypeXLSX, Data: buf.Bytes()}, nil
}
