package backend

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/equity-map/internal/dataset"
)

// ErrGenerationUnsupported is returned by Static.Generate.
var ErrGenerationUnsupported = eris.New("backend: index generation needs the backend service")

// Static serves a dataset read from disk. Generation is not available.
type Static struct {
	path   string
	format string
	fields []string
}

// NewStatic creates a local client for the GeoJSON or shapefile at path.
// Format is "geojson", "shapefile" or empty to use the file extension.
// Fields is the list returned by IndexFields.
func NewStatic(path, format string, fields []string) *Static {
	return &Static{path: path, format: format, fields: slices.Clone(fields)}
}

// Dataset reads the file on every call so edits on disk are picked up.
func (s *Static) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, err := dataset.Load(s.path, s.format)
	if err != nil {
		return nil, eris.Wrap(err, "backend: load local dataset")
	}
	return ds, nil
}

// IndexFields returns the configured variable list.
func (s *Static) IndexFields(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(s.fields), nil
}

// Generate always fails.
func (s *Static) Generate(_ context.Context, kind string, _ GenerateRequest) (*dataset.Dataset, error) {
	return nil, eris.Wrapf(ErrGenerationUnsupported, "backend: %s index", kind)
}
