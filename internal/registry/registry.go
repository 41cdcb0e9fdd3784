// Package registry is the static catalog of displayable fields, index
// variables, race groups and county names. It is read-only after Load.
package registry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Uncategorized groups index variables with no declared category.
const Uncategorized = "Uncategorized"

// Known column suffixes, longest first.
var fieldSuffixes = []string{"_zscore_o", "_zscore_d", "_o"}

// Field describes one displayable variable.
type Field struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"-" json:"category"`
}

// Category is a named group of fields, in dropdown order.
type Category struct {
	Name   string  `yaml:"name" json:"name"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// RaceGroup is a dominant-race category used for stratified analysis.
type RaceGroup struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
	Color string `yaml:"color" json:"color"`
}

// IndexGroup is one dropdown group of index-eligible variables.
type IndexGroup struct {
	Category  string  `json:"category"`
	Variables []Field `json:"variables"`
}

// GeneratedField identifies the generated index field currently on the map
// so Resolve can decorate it.
type GeneratedField struct {
	FieldName string
	Name      string
	Kind      string
}

type catalog struct {
	Categories     []Category        `yaml:"categories"`
	IndexVariables []string          `yaml:"index_variables"`
	RaceGroups     []RaceGroup       `yaml:"race_groups"`
	Counties       map[string]string `yaml:"counties"`
}

// Registry is an indexed, immutable view of the catalog.
type Registry struct {
	cat      catalog
	byID     map[string]Field
	byRace   map[string]RaceGroup
	titleCas cases.Caser
}

// Load parses the embedded catalog.
func Load() (*Registry, error) {
	return Parse(defaultCatalog)
}

// MustLoad is Load for package-level initialization and tests.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// Parse builds a Registry from catalog YAML.
func Parse(data []byte) (*Registry, error) {
	var cat catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, eris.Wrap(err, "registry: parse catalog")
	}

	r := &Registry{
		cat:      cat,
		byID:     make(map[string]Field),
		byRace:   make(map[string]RaceGroup, len(cat.RaceGroups)),
		titleCas: cases.Title(language.English),
	}
	for ci := range r.cat.Categories {
		c := &r.cat.Categories[ci]
		for fi := range c.Fields {
			f := &c.Fields[fi]
			if f.ID == "" {
				return nil, eris.Errorf("registry: field without id in category %q", c.Name)
			}
			if _, dup := r.byID[f.ID]; dup {
				return nil, eris.Errorf("registry: duplicate field id %q", f.ID)
			}
			f.Category = c.Name
			r.byID[f.ID] = *f
		}
	}
	for _, g := range cat.RaceGroups {
		r.byRace[strings.ToLower(g.Key)] = g
		r.byRace[strings.ToLower(g.Label)] = g
	}
	return r, nil
}

// Resolve returns the display name for a field id. The active generated index
// field gets a decorated name; catalog fields their declared name; anything
// else a normalized form of the raw id.
func (r *Registry) Resolve(fieldID string, active *GeneratedField) string {
	if active != nil && active.FieldName != "" && fieldID == active.FieldName {
		return fmt.Sprintf("%s (%s Index)", active.Name, r.titleCas.String(active.Kind))
	}
	for _, c := range r.cat.Categories {
		for _, f := range c.Fields {
			if f.ID == fieldID {
				return f.Name
			}
		}
	}
	return r.Normalize(fieldID)
}

// Normalize turns a raw column id into a readable label.
func (r *Registry) Normalize(fieldID string) string {
	base := fieldID
	for _, suffix := range fieldSuffixes {
		if trimmed, ok := strings.CutSuffix(base, suffix); ok && trimmed != "" {
			base = trimmed
			break
		}
	}
	base = strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
	if base == "" {
		return fieldID
	}
	return r.titleCas.String(base)
}

// Field returns the catalog entry for an id.
func (r *Registry) Field(id string) (Field, bool) {
	f, ok := r.byID[id]
	return f, ok
}

// CategoryOf maps a base (pre-suffix) variable to its category, trying the
// bare id and then the known suffix variants.
func (r *Registry) CategoryOf(baseID string) string {
	if f, ok := r.lookupBase(baseID); ok {
		return f.Category
	}
	return Uncategorized
}

// VariableName returns the display name of a base index variable.
func (r *Registry) VariableName(baseID string) string {
	if f, ok := r.lookupBase(baseID); ok {
		return f.Name
	}
	return r.Normalize(baseID)
}

func (r *Registry) lookupBase(baseID string) (Field, bool) {
	if f, ok := r.byID[baseID]; ok {
		return f, true
	}
	for _, suffix := range []string{"_o", "_zscore_o"} {
		if f, ok := r.byID[baseID+suffix]; ok {
			return f, true
		}
	}
	return Field{}, false
}

// Categories returns the catalog categories in display order.
func (r *Registry) Categories() []Category {
	return r.cat.Categories
}

// IndexVariables returns the default list of index-eligible base variables.
func (r *Registry) IndexVariables() []string {
	return r.cat.IndexVariables
}

// GroupIndexFields groups base variable ids by category for the variable
// picker. Groups follow catalog order with Uncategorized last; variables keep
// their input order within a group.
func (r *Registry) GroupIndexFields(ids []string) []IndexGroup {
	byCat := make(map[string][]Field)
	for _, id := range ids {
		cat := r.CategoryOf(id)
		byCat[cat] = append(byCat[cat], Field{ID: id, Name: r.VariableName(id), Category: cat})
	}

	var groups []IndexGroup
	for _, c := range r.cat.Categories {
		if vars, ok := byCat[c.Name]; ok {
			groups = append(groups, IndexGroup{Category: c.Name, Variables: vars})
		}
	}
	if vars, ok := byCat[Uncategorized]; ok {
		groups = append(groups, IndexGroup{Category: Uncategorized, Variables: vars})
	}
	return groups
}

// RaceGroups returns all known race groups in display order.
func (r *Registry) RaceGroups() []RaceGroup {
	return r.cat.RaceGroups
}

// RaceGroup looks up a race group by key or label, case-insensitively.
func (r *Registry) RaceGroup(key string) (RaceGroup, bool) {
	g, ok := r.byRace[strings.ToLower(strings.TrimSpace(key))]
	return g, ok
}

// CountyName resolves a county FIPS code. Accepts 3-digit county codes,
// unpadded numbers and 5-digit state+county codes. Unknown codes are
// returned as "Unknown".
func (r *Registry) CountyName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "Unknown"
	}
	if name, ok := r.cat.Counties[code]; ok {
		return name
	}
	if len(code) < 3 {
		code = strings.Repeat("0", 3-len(code)) + code
	} else if len(code) == 5 {
		code = code[2:]
	}
	if name, ok := r.cat.Counties[code]; ok {
		return name
	}
	return "Unknown"
}
