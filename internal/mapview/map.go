// Package mapview models the dashboard's map instances and the switch
// between the single map and the side-by-side comparison panes.
//
// Nothing here is safe for concurrent use; the dashboard serializes access.
package mapview

import (
	"math"
	"slices"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/equity-map/internal/classify"
	"github.com/sells-group/equity-map/internal/layer"
)

const (
	tileSize = 256
	maxZoom  = 18
)

// DefaultView frames the Atlanta metro area before any layer is fit.
var DefaultView = Viewport{Center: LatLng{Lat: 33.749, Lng: -84.388}, Zoom: 9}

// LatLng is a geographic position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Viewport is the visible center and zoom of a map.
type Viewport struct {
	Center LatLng  `json:"center"`
	Zoom   float64 `json:"zoom"`
}

// Legend is a named legend control.
type Legend struct {
	Name    string                 `json:"name"`
	Title   string                 `json:"title"`
	Entries []classify.LegendEntry `json:"entries"`
}

// Map is one headless map instance.
type Map struct {
	ID     string
	Width  int
	Height int

	visible bool
	base    *layer.Layer
	overlay *layer.Layer
	legends []Legend
	view    Viewport
	peers   []*Map
	syncing bool
	resizes int
}

// NewMap creates a visible map with the default view.
func NewMap(id string, width, height int) *Map {
	return &Map{ID: id, Width: width, Height: height, visible: true, view: DefaultView}
}

// Base returns the choropleth layer, or nil.
func (m *Map) Base() *layer.Layer { return m.base }

// SetBase replaces the choropleth layer.
func (m *Map) SetBase(l *layer.Layer) { m.base = l }

// Overlay returns the race overlay layer, or nil.
func (m *Map) Overlay() *layer.Layer { return m.overlay }

// SetOverlay replaces the overlay layer. nil removes it.
func (m *Map) SetOverlay(l *layer.Layer) { m.overlay = l }

// SetLegend adds or replaces a legend control by name.
func (m *Map) SetLegend(lg Legend) {
	for i := range m.legends {
		if m.legends[i].Name == lg.Name {
			m.legends[i] = lg
			return
		}
	}
	m.legends = append(m.legends, lg)
}

// RemoveLegend drops the named legend if present.
func (m *Map) RemoveLegend(name string) {
	m.legends = slices.DeleteFunc(m.legends, func(l Legend) bool { return l.Name == name })
}

// Legend returns the named legend.
func (m *Map) Legend(name string) (Legend, bool) {
	for _, l := range m.legends {
		if l.Name == name {
			return l, true
		}
	}
	return Legend{}, false
}

// Legends returns all legend controls in insertion order.
func (m *Map) Legends() []Legend { return m.legends }

// Visible reports whether the map element is shown.
func (m *Map) Visible() bool { return m.visible }

// Show displays the map element.
func (m *Map) Show() { m.visible = true }

// Hide hides the map element.
func (m *Map) Hide() { m.visible = false }

// InvalidateSize forces a size recalculation after the element was hidden.
func (m *Map) InvalidateSize() { m.resizes++ }

// Resizes counts InvalidateSize calls.
func (m *Map) Resizes() int { return m.resizes }

// View returns the current viewport.
func (m *Map) View() Viewport { return m.view }

// SetView moves the map and every synced peer. Peers do not echo the move
// back.
func (m *Map) SetView(v Viewport) {
	if m.syncing {
		return
	}
	v.Zoom = math.Max(0, math.Min(maxZoom, v.Zoom))
	m.view = v

	m.syncing = true
	defer func() { m.syncing = false }()
	for _, p := range m.peers {
		p.SetView(v)
	}
}

// Sync links m and other both ways.
func (m *Map) Sync(other *Map) {
	if other == nil || other == m {
		return
	}
	if !slices.Contains(m.peers, other) {
		m.peers = append(m.peers, other)
	}
	if !slices.Contains(other.peers, m) {
		other.peers = append(other.peers, m)
	}
}

// Unsync removes the link between m and other.
func (m *Map) Unsync(other *Map) {
	if other == nil {
		return
	}
	m.peers = slices.DeleteFunc(m.peers, func(p *Map) bool { return p == other })
	other.peers = slices.DeleteFunc(other.peers, func(p *Map) bool { return p == m })
}

// SyncedWith reports whether m follows other.
func (m *Map) SyncedWith(other *Map) bool {
	return slices.Contains(m.peers, other)
}

// FitBounds sets the view to the largest zoom at which b fits in the map's
// pixel size.
func (m *Map) FitBounds(b *geom.Bounds) {
	if b == nil || b.IsEmpty() {
		return
	}
	m.SetView(Fit(b, m.Width, m.Height))
}

// Fit computes the web-mercator viewport that frames b in width x height
// pixels.
func Fit(b *geom.Bounds, width, height int) Viewport {
	minLng, minLat := b.Min(0), b.Min(1)
	maxLng, maxLat := b.Max(0), b.Max(1)

	y0, y1 := mercatorY(minLat), mercatorY(maxLat)
	center := LatLng{Lat: inverseMercatorY((y0 + y1) / 2), Lng: (minLng + maxLng) / 2}

	zoom := float64(maxZoom)
	if span := (maxLng - minLng) / 360; span > 0 && width > 0 {
		zoom = math.Min(zoom, math.Log2(float64(width)/(tileSize*span)))
	}
	if span := (y1 - y0) / (2 * math.Pi); span > 0 && height > 0 {
		zoom = math.Min(zoom, math.Log2(float64(height)/(tileSize*span)))
	}
	zoom = math.Max(0, math.Floor(zoom))

	return Viewport{Center: center, Zoom: zoom}
}

func mercatorY(lat float64) float64 {
	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}

func inverseMercatorY(y float64) float64 {
	return (2*math.Atan(math.Exp(y)) - math.Pi/2) * 180 / math.Pi
}
