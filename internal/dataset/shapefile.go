package dataset

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// dbfAliases maps DBF column names, truncated to 10 characters by the
// format, back to the full property names.
var dbfAliases = map[string]string{
	"origin_tra":   PropTract,
	"origin_tract": PropTract,
	"countyfp":     PropCounty,
	"population":   PropPopulation,
	"populati_1":   PropPopulation,
	"race":         PropRace,
}

// LoadShapefile reads tract polygons and their DBF attributes.
func LoadShapefile(shpPath string) (*Dataset, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		if alias, ok := dbfAliases[strings.ToLower(name)]; ok {
			name = alias
		}
		names[i] = name
	}

	var features []*Feature
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		props := make(map[string]any, len(names))
		for idx, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
			if val == "" {
				props[name] = nil
				continue
			}
			props[name] = val
		}

		g := shapeGeometry(shape)
		if g == nil {
			skipped++
		}
		features = append(features, FromProperties(g, props))
	}

	if skipped > 0 {
		zap.L().Debug("dataset: shapefile records without usable geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return New(features)
}

// shapeGeometry converts a go-shp polygon to a geom.MultiPolygon. Other shape
// types carry no tract area and yield nil.
func shapeGeometry(shape shp.Shape) geom.T {
	p, ok := shape.(*shp.Polygon)
	if !ok {
		return nil
	}
	return polygonToMultiPolygon(p)
}

// polygonToMultiPolygon treats each shapefile part as its own polygon ring.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
