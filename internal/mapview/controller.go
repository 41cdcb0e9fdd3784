package mapview

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/equity-map/internal/layer"
)

// Mode is the view state.
type Mode string

// View modes.
const (
	ModeSingle     Mode = "single"
	ModeComparison Mode = "comparison"
)

// Pane names.
const (
	PanePrimary     = "primary"
	PaneResidential = "residential"
	PaneActivity    = "activity"
)

// Legend control names.
const (
	LegendBase        = "legend"
	LegendRace        = "race-legend"
	LegendResidential = "legend-residential"
	LegendActivity    = "legend-activity"
)

// ErrComparisonLayers is returned when comparison view lacks a layer.
var ErrComparisonLayers = eris.New("mapview: comparison needs both index layers")

// Controller owns the long-lived primary map and the two comparison panes.
type Controller struct {
	mode        Mode
	primary     *Map
	left, right *Map
	panesShown  bool
	width       int
	height      int
}

// NewController creates the primary map.
func NewController(width, height int) *Controller {
	return &Controller{
		mode:    ModeSingle,
		primary: NewMap(PanePrimary, width, height),
		width:   width,
		height:  height,
	}
}

// Mode returns the current view mode.
func (c *Controller) Mode() Mode { return c.mode }

// Primary returns the primary map.
func (c *Controller) Primary() *Map { return c.primary }

// PanesShown reports whether the two-pane element is visible.
func (c *Controller) PanesShown() bool { return c.panesShown }

// Pane returns a map by pane name. Comparison panes exist only after the
// first EnterComparison.
func (c *Controller) Pane(name string) (*Map, bool) {
	switch name {
	case PanePrimary:
		return c.primary, true
	case PaneResidential:
		return c.left, c.left != nil
	case PaneActivity:
		return c.right, c.right != nil
	}
	return nil, false
}

// EnterComparison hides the primary map and shows both index layers side by
// side with synchronized viewports.
func (c *Controller) EnterComparison(res, act *layer.Layer) error {
	if res == nil || act == nil {
		return ErrComparisonLayers
	}

	// Panes are created once and reused.
	if c.left == nil {
		c.left = NewMap(PaneResidential, c.width/2, c.height)
	}
	if c.right == nil {
		c.right = NewMap(PaneActivity, c.width/2, c.height)
	}

	c.primary.Hide()
	c.panesShown = true
	c.left.Show()
	c.right.Show()

	c.left.SetBase(res)
	c.right.SetBase(act)
	c.left.SetLegend(Legend{Name: LegendResidential, Title: res.Label, Entries: res.Legend()})
	c.right.SetLegend(Legend{Name: LegendActivity, Title: act.Label, Entries: act.Legend()})

	c.left.FitBounds(res.Bounds())
	c.right.FitBounds(act.Bounds())
	c.left.Sync(c.right)

	c.mode = ModeComparison
	return nil
}

// ExitComparison returns to the single map. Race overlays and the
// comparison legends are removed; pane instances are kept for reuse.
func (c *Controller) ExitComparison() {
	c.ClearRace()
	if c.left != nil {
		c.left.RemoveLegend(LegendResidential)
		c.left.Hide()
	}
	if c.right != nil {
		c.right.RemoveLegend(LegendActivity)
		c.right.Hide()
	}
	if c.left != nil && c.right != nil {
		c.left.Unsync(c.right)
	}
	c.panesShown = false
	c.primary.Show()
	c.primary.InvalidateSize()
	c.mode = ModeSingle
}

// ClearRace removes the race overlay and its legend from the primary map.
func (c *Controller) ClearRace() {
	c.primary.SetOverlay(nil)
	c.primary.RemoveLegend(LegendRace)
}

// ShowBase installs l as the primary base layer with its legend.
func (c *Controller) ShowBase(l *layer.Layer) {
	c.primary.SetBase(l)
	c.primary.SetLegend(Legend{Name: LegendBase, Title: l.Label, Entries: l.Legend()})
}

// ShowRace installs a race overlay and legend on the primary map.
func (c *Controller) ShowRace(overlay *layer.Layer, lg Legend) {
	c.primary.SetOverlay(overlay)
	lg.Name = LegendRace
	c.primary.SetLegend(lg)
}

// Reset clears every layer and legend and returns to single view.
func (c *Controller) Reset() {
	if c.mode == ModeComparison {
		c.ExitComparison()
	}
	c.primary.SetBase(nil)
	c.primary.RemoveLegend(LegendBase)
	c.ClearRace()
	for _, p := range []*Map{c.left, c.right} {
		if p != nil {
			p.SetBase(nil)
		}
	}
}
