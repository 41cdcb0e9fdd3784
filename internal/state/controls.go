package state

// SlotControls are the per-index controls.
type SlotControls struct {
	Table     bool `json:"table"`
	Histogram bool `json:"histogram"`
	Analyze   bool `json:"analyze"`
	ExportCSV bool `json:"export_csv"`
	Reset     bool `json:"reset"`
}

// Controls is the full set of enable flags of the dashboard.
type Controls struct {
	Generate        bool         `json:"generate"`
	Residential     SlotControls `json:"residential"`
	Activity        SlotControls `json:"activity"`
	Compare         bool         `json:"compare"`
	Analyze         bool         `json:"analyze"`
	ExportRaceStats bool         `json:"export_race_stats"`
	ExportImage     bool         `json:"export_image"`
	ExportWorkbook  bool         `json:"export_workbook"`
	Reset           bool         `json:"reset"`
}

// Snapshot is the state ControlsFor derives from.
type Snapshot struct {
	Loaded        bool
	Residential   Slot
	Activity      Slot
	ActiveField   string
	LayerDegraded bool
	Selected      int
	RaceGroups    int
}

// Snapshot captures the slot half of a Snapshot; the caller fills the rest.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{Residential: m.Slot(Residential), Activity: m.Slot(Activity)}
}

// ControlsFor derives every control flag from s. It is pure.
func ControlsFor(s Snapshot) Controls {
	res := slotControls(s.Residential)
	act := slotControls(s.Activity)
	anyActive := s.Residential.Active() || s.Activity.Active()
	anyStats := (s.Residential.Active() && s.Residential.Stats != nil) ||
		(s.Activity.Active() && s.Activity.Stats != nil)

	return Controls{
		Generate:        s.Loaded && s.Selected > 0,
		Residential:     res,
		Activity:        act,
		Compare:         s.Residential.Active() && s.Activity.Active(),
		Analyze:         s.Loaded && s.ActiveField != "" && s.RaceGroups > 0,
		ExportRaceStats: anyStats,
		ExportImage:     s.Loaded && !s.LayerDegraded && (anyActive || s.ActiveField != ""),
		ExportWorkbook:  anyActive,
		Reset:           s.Loaded,
	}
}

func slotControls(s Slot) SlotControls {
	on := s.Active()
	return SlotControls{
		Table:     on,
		Histogram: on,
		Analyze:   on,
		ExportCSV: on,
		Reset:     s.Status != StatusEmpty,
	}
}
