// Package state tracks the two generated-index slots and derives which
// dashboard controls are enabled from them.
//
// A Manager is not safe for concurrent use; the dashboard serializes access.
package state

import (
	"regexp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/equity-map/internal/race"
)

// Kind names an index slot.
type Kind string

// The two slots.
const (
	Residential Kind = "residential"
	Activity    Kind = "activity"
)

// Kinds lists the slots in display order.
var Kinds = []Kind{Residential, Activity}

// Status is the lifecycle of a slot.
type Status string

// Slot statuses.
const (
	StatusEmpty   Status = "empty"
	StatusPending Status = "pending"
	StatusActive  Status = "active"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Errors returned by the Manager.
var (
	ErrUnknownKind  = eris.New("state: unknown index type")
	ErrInvalidName  = eris.New("state: index name must contain only letters, numbers and underscores")
	ErrNoVariables  = eris.New("state: select at least one variable")
	ErrStaleTicket  = eris.New("state: superseded by a newer request")
	ErrFieldMissing = eris.New("state: generated data is missing the index field")
)

// ParseKind validates a slot name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Residential, Activity:
		return k, nil
	}
	return "", eris.Wrapf(ErrUnknownKind, "state: %q", s)
}

// Suffix is appended to the index name to form its field name.
func (k Kind) Suffix() string {
	if k == Residential {
		return "_RES"
	}
	return "_ACT"
}

// FieldName derives the dataset column of a generated index.
func (k Kind) FieldName(name string) string {
	return name + k.Suffix()
}

// Slot is one generated index.
type Slot struct {
	Kind        Kind         `json:"kind"`
	Status      Status       `json:"status"`
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Variables   []string     `json:"variables,omitempty"`
	FieldName   string       `json:"field_name,omitempty"`
	Stats       *race.Result `json:"stats,omitempty"`

	token uint64
}

// Active reports whether the slot holds a usable index.
func (s Slot) Active() bool {
	return s.Status == StatusActive && s.FieldName != ""
}

// Ticket identifies one generation request. Only the latest ticket of a slot
// may complete it.
type Ticket struct {
	Kind      Kind
	Token     uint64
	FieldName string
}

// Manager owns both slots.
type Manager struct {
	slots map[Kind]*Slot
	next  uint64
}

// NewManager returns a Manager with both slots empty.
func NewManager() *Manager {
	m := &Manager{slots: make(map[Kind]*Slot, len(Kinds))}
	for _, k := range Kinds {
		m.slots[k] = &Slot{Kind: k, Status: StatusEmpty}
	}
	return m
}

// ValidateRequest checks a generation request without touching state.
func ValidateRequest(kind Kind, name string, variables []string) error {
	if kind != Residential && kind != Activity {
		return eris.Wrapf(ErrUnknownKind, "state: %q", kind)
	}
	if name == "" || !namePattern.MatchString(name) {
		return eris.Wrapf(ErrInvalidName, "state: %q", name)
	}
	if len(variables) == 0 {
		return ErrNoVariables
	}
	return nil
}

// Begin records a pending generation for kind and clears race statistics on
// both slots.
func (m *Manager) Begin(kind Kind, name, description string, variables []string) (Ticket, error) {
	if err := ValidateRequest(kind, name, variables); err != nil {
		return Ticket{}, err
	}

	m.next++
	s := m.slots[kind]
	*s = Slot{
		Kind:        kind,
		Status:      StatusPending,
		Name:        name,
		Description: description,
		Variables:   slices.Clone(variables),
		FieldName:   kind.FieldName(name),
		token:       m.next,
	}
	m.ClearStats()

	return Ticket{Kind: kind, Token: m.next, FieldName: s.FieldName}, nil
}

// Current reports whether t is the latest request of its slot and still
// pending.
func (m *Manager) Current(t Ticket) bool {
	s, ok := m.slots[t.Kind]
	return ok && s.token == t.Token && s.Status == StatusPending
}

// Complete checks a backend response for t. A stale ticket leaves the slot
// alone; a response without the expected field rolls the slot back.
func (m *Manager) Complete(t Ticket, hasField bool) error {
	if !m.Current(t) {
		return ErrStaleTicket
	}
	if !hasField {
		m.Rollback(t)
		return eris.Wrapf(ErrFieldMissing, "state: expected %q", t.FieldName)
	}
	return nil
}

// Activate marks the pending slot of t as populated.
func (m *Manager) Activate(t Ticket) error {
	if !m.Current(t) {
		return ErrStaleTicket
	}
	m.slots[t.Kind].Status = StatusActive
	return nil
}

// Rollback empties the slot of t if t is still its latest request.
func (m *Manager) Rollback(t Ticket) {
	if s, ok := m.slots[t.Kind]; ok && s.token == t.Token {
		m.Reset(t.Kind)
	}
}

// Reset empties one slot. Outstanding tickets for it become stale.
func (m *Manager) Reset(kind Kind) {
	if s, ok := m.slots[kind]; ok {
		m.next++
		*s = Slot{Kind: kind, Status: StatusEmpty, token: m.next}
	}
}

// ResetAll empties both slots.
func (m *Manager) ResetAll() {
	for _, k := range Kinds {
		m.Reset(k)
	}
}

// Slot returns a copy of one slot.
func (m *Manager) Slot(kind Kind) Slot {
	if s, ok := m.slots[kind]; ok {
		cp := *s
		cp.Variables = slices.Clone(s.Variables)
		return cp
	}
	return Slot{Kind: kind, Status: StatusEmpty}
}

// ByField returns the active slot whose field name is field.
func (m *Manager) ByField(field string) (Slot, bool) {
	if field == "" {
		return Slot{}, false
	}
	for _, k := range Kinds {
		if s := m.slots[k]; s.Active() && s.FieldName == field {
			return m.Slot(k), true
		}
	}
	return Slot{}, false
}

// AttachStats stores race statistics on the active slot showing field.
// Returns false when no slot matches; the statistics are then not kept.
func (m *Manager) AttachStats(field string, stats *race.Result) (Kind, bool) {
	s, ok := m.ByField(field)
	if !ok {
		return "", false
	}
	m.slots[s.Kind].Stats = stats
	return s.Kind, true
}

// Stats returns the statistics attached to kind, or nil.
func (m *Manager) Stats(kind Kind) *race.Result {
	if s, ok := m.slots[kind]; ok {
		return s.Stats
	}
	return nil
}

// ClearStats drops statistics from both slots.
func (m *Manager) ClearStats() {
	for _, s := range m.slots {
		s.Stats = nil
	}
}

// BothActive reports whether comparison view is possible.
func (m *Manager) BothActive() bool {
	return m.slots[Residential].Active() && m.slots[Activity].Active()
}
