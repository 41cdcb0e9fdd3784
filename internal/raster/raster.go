// Package raster draws a map's layers and legends into a PNG snapshot.
package raster

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/sells-group/equity-map/internal/layer"
	"github.com/sells-group/equity-map/internal/mapview"
)

const tileSize = 256

// ErrNothingToRender is returned when the map shows no layer.
var ErrNothingToRender = eris.New("raster: map has no layer to render")

// Options tune a snapshot. Zero sizes use the map's pixel size.
type Options struct {
	Width   int
	Height  int
	Legends bool
}

// Render draws the base layer, the overlay and, optionally, the legends of
// m at its current viewport.
func Render(m *mapview.Map, opts Options) (image.Image, error) {
	if m == nil || m.Base() == nil {
		return nil, ErrNothingToRender
	}
	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = m.Width
	}
	if h <= 0 {
		h = m.Height
	}
	if w <= 0 || h <= 0 {
		return nil, eris.Errorf("raster: invalid size %dx%d", w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	r := &renderer{dst: img, z: vector.NewRasterizer(w, h), proj: newProjection(m.View(), w, h)}
	r.drawLayer(m.Base())
	if ov := m.Overlay(); ov != nil {
		r.drawLayer(ov)
	}
	if opts.Legends {
		r.drawLegends(m.Legends())
	}
	return img, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if img == nil {
		return ErrNothingToRender
	}
	return eris.Wrap(png.Encode(w, img), "raster: encode png")
}

// projection maps lng/lat to pixels in web mercator around a viewport.
type projection struct {
	scale   float64
	originX float64
	originY float64
}

func newProjection(v mapview.Viewport, w, h int) projection {
	scale := tileSize * math.Pow(2, v.Zoom)
	cx, cy := worldXY(v.Center.Lng, v.Center.Lat, scale)
	return projection{scale: scale, originX: cx - float64(w)/2, originY: cy - float64(h)/2}
}

func worldXY(lng, lat, scale float64) (float64, float64) {
	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	x := (lng + 180) / 360 * scale
	rad := lat * math.Pi / 180
	y := (1 - math.Log(math.Tan(math.Pi/4+rad/2))/math.Pi) / 2 * scale
	return x, y
}

func (p projection) point(lng, lat float64) (float32, float32) {
	x, y := worldXY(lng, lat, p.scale)
	return float32(x - p.originX), float32(y - p.originY)
}

type renderer struct {
	dst  *image.RGBA
	z    *vector.Rasterizer
	proj projection
}

func (r *renderer) drawLayer(l *layer.Layer) {
	for _, f := range l.Features {
		rings := polygonRings(f.Geometry)
		if len(rings) == 0 {
			continue
		}
		if f.Style.FillOpacity > 0 {
			r.fill(rings, parseHex(f.Style.FillColor, f.Style.FillOpacity))
		}
		if f.Style.Weight > 0 && f.Style.Opacity > 0 {
			r.stroke(rings, f.Style.Weight, parseDash(f.Style.DashArray), parseHex(f.Style.Color, f.Style.Opacity))
		}
	}
}

// polygonRings flattens polygon geometries to their rings. Other geometry
// types are not drawn.
func polygonRings(g geom.T) [][]float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		var rings [][]float64
		for i := 0; i < t.NumLinearRings(); i++ {
			rings = append(rings, t.LinearRing(i).FlatCoords())
		}
		return rings
	case *geom.MultiPolygon:
		var rings [][]float64
		for i := 0; i < t.NumPolygons(); i++ {
			rings = append(rings, polygonRings(t.Polygon(i))...)
		}
		return rings
	}
	return nil
}

func (r *renderer) fill(rings [][]float64, c color.Color) {
	b := r.dst.Bounds()
	r.z.Reset(b.Dx(), b.Dy())
	for _, ring := range rings {
		if len(ring) < 6 {
			continue
		}
		x, y := r.proj.point(ring[0], ring[1])
		r.z.MoveTo(x, y)
		for i := 2; i+1 < len(ring); i += 2 {
			x, y = r.proj.point(ring[i], ring[i+1])
			r.z.LineTo(x, y)
		}
		r.z.ClosePath()
	}
	r.z.Draw(r.dst, b, image.NewUniform(c), image.Point{})
}

// stroke outlines rings with quads of the given pixel weight, skipping the
// off intervals of dash.
func (r *renderer) stroke(rings [][]float64, weight float64, dash []float64, c color.Color) {
	b := r.dst.Bounds()
	r.z.Reset(b.Dx(), b.Dy())
	hw := float32(math.Max(weight/2, 0.5))
	drawn := false

	for _, ring := range rings {
		var walked float64
		for i := 0; i+3 < len(ring); i += 2 {
			x0, y0 := r.proj.point(ring[i], ring[i+1])
			x1, y1 := r.proj.point(ring[i+2], ring[i+3])
			segLen := math.Hypot(float64(x1-x0), float64(y1-y0))
			if segLen == 0 {
				continue
			}
			for _, span := range dashSpans(walked, segLen, dash) {
				ax, ay := lerp(x0, y0, x1, y1, span[0]/segLen)
				bx, by := lerp(x0, y0, x1, y1, span[1]/segLen)
				r.quad(ax, ay, bx, by, hw)
				drawn = true
			}
			walked += segLen
		}
	}
	if drawn {
		r.z.Draw(r.dst, b, image.NewUniform(c), image.Point{})
	}
}

func (r *renderer) quad(x0, y0, x1, y1, hw float32) {
	dx, dy := x1-x0, y1-y0
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*hw, dx/l*hw
	r.z.MoveTo(x0+nx, y0+ny)
	r.z.LineTo(x1+nx, y1+ny)
	r.z.LineTo(x1-nx, y1-ny)
	r.z.LineTo(x0-nx, y0-ny)
	r.z.ClosePath()
}

func lerp(x0, y0, x1, y1 float32, t float64) (float32, float32) {
	tt := float32(t)
	return x0 + (x1-x0)*tt, y0 + (y1-y0)*tt
}

// dashSpans returns the drawn [from, to] offsets within a segment of length
// segLen that starts walked pixels into the dash pattern.
func dashSpans(walked, segLen float64, dash []float64) [][2]float64 {
	if len(dash) == 0 {
		return [][2]float64{{0, segLen}}
	}
	var period float64
	for _, d := range dash {
		period += d
	}

	var spans [][2]float64
	pos := 0.0
	phase := math.Mod(walked, period)
	idx := 0
	for phase >= dash[idx] {
		phase -= dash[idx]
		idx = (idx + 1) % len(dash)
	}
	for pos < segLen {
		remaining := dash[idx] - phase
		end := math.Min(segLen, pos+remaining)
		if idx%2 == 0 {
			spans = append(spans, [2]float64{pos, end})
		}
		pos = end
		phase = 0
		idx = (idx + 1) % len(dash)
	}
	return spans
}

// parseDash reads an SVG-style dash array such as "4 4".
func parseDash(s string) []float64 {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	var out []float64
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v <= 0 {
			return nil
		}
		out = append(out, v)
	}
	if len(out)%2 == 1 {
		out = append(out, out...)
	}
	return out
}

// parseHex reads #rgb or #rrggbb. Unparseable colors draw gray.
func parseHex(s string, opacity float64) color.NRGBA {
	a := uint8(math.Round(math.Max(0, math.Min(1, opacity)) * 255))
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if len(s) != 6 || err != nil {
		return color.NRGBA{R: 0x99, G: 0x99, B: 0x99, A: a}
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: a}
}

// drawLegends stacks legend boxes in the bottom-right corner.
func (r *renderer) drawLegends(legends []mapview.Legend) {
	face := basicfont.Face7x13
	lineH := face.Metrics().Height.Ceil() + 4
	const pad, swatch = 6, 12

	b := r.dst.Bounds()
	bottom := b.Max.Y - pad
	for i := len(legends) - 1; i >= 0; i-- {
		lg := legends[i]
		lines := make([]string, 0, len(lg.Entries))
		for _, e := range lg.Entries {
			lines = append(lines, asciiLabel(e.Label))
		}
		title := asciiLabel(lg.Title)

		dr := &font.Drawer{Dst: r.dst, Src: image.NewUniform(color.Black), Face: face}
		width := dr.MeasureString(title).Ceil()
		for _, l := range lines {
			width = max(width, swatch+4+dr.MeasureString(l).Ceil())
		}
		height := lineH * (len(lines) + 1)

		box := image.Rect(b.Max.X-pad-width-2*pad, bottom-height-2*pad, b.Max.X-pad, bottom)
		draw.Draw(r.dst, box, image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 220}), image.Point{}, draw.Over)

		x := box.Min.X + pad
		y := box.Min.Y + pad + face.Metrics().Ascent.Ceil()
		dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
		dr.DrawString(title)

		for j, e := range lg.Entries {
			ly := y + lineH*(j+1)
			sw := image.Rect(x, ly-swatch+2, x+swatch, ly+2)
			c := parseHex(e.Color, 1)
			if e.Dashed {
				draw.Draw(r.dst, image.Rect(sw.Min.X, sw.Min.Y+swatch/2-1, sw.Max.X, sw.Min.Y+swatch/2+1), image.NewUniform(c), image.Point{}, draw.Over)
			} else {
				draw.Draw(r.dst, sw, image.NewUniform(c), image.Point{}, draw.Over)
			}
			dr.Dot = fixed.Point26_6{X: fixed.I(x + swatch + 4), Y: fixed.I(ly)}
			dr.DrawString(lines[j])
		}
		bottom = box.Min.Y - pad
	}
}

// asciiLabel swaps legend symbols the bitmap font lacks.
func asciiLabel(s string) string {
	return strings.NewReplacer("≤", "<=", "≥", ">=", "–", "-", "—", "-").Replace(s)
}
