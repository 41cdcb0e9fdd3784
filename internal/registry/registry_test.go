package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalog(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, r.Categories())
	assert.Contains(t, r.IndexVariables(), "poverty_rate")
	assert.Len(t, r.RaceGroups(), 5)

	f, ok := r.Field("ndi_o")
	require.True(t, ok)
	assert.Equal(t, "Composite Indices", f.Category)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("categories: [unclosed"))
	assert.Error(t, err)

	_, err = Parse([]byte(`
categories:
  - name: A
    fields:
      - {id: x, name: X}
  - name: B
    fields:
      - {id: x, name: Again}
`))
	assert.ErrorContains(t, err, "duplicate field id")

	_, err = Parse([]byte(`
categories:
  - name: A
    fields:
      - {name: Missing}
`))
	assert.ErrorContains(t, err, "field without id")
}

func TestResolve(t *testing.T) {
	r := MustLoad()
	active := &GeneratedField{FieldName: "test1_RES", Name: "test1", Kind: "residential"}

	tests := []struct {
		name   string
		field  string
		active *GeneratedField
		want   string
	}{
		{name: "active generated field", field: "test1_RES", active: active, want: "test1 (Residential Index)"},
		{name: "catalog field", field: "poverty_rate_o", active: active, want: "Poverty Rate"},
		{name: "catalog field no active", field: "ndi_o", want: "Neighborhood Deprivation Index"},
		{name: "generated field not active", field: "other_ACT", active: active, want: "Other Act"},
		{name: "zscore suffix", field: "median_income_zscore_o", want: "Median Income"},
		{name: "plain suffix", field: "tree_canopy_o", want: "Tree Canopy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.field, tt.active))
		})
	}
}

func TestCategoryOf(t *testing.T) {
	r := MustLoad()

	assert.Equal(t, "Socioeconomic", r.CategoryOf("poverty_rate"))
	assert.Equal(t, "Environmental Exposure", r.CategoryOf("PM25"))
	assert.Equal(t, "Health Outcomes", r.CategoryOf("Obesity"))
	assert.Equal(t, "Composite Indices", r.CategoryOf("ndi_o"))
	assert.Equal(t, Uncategorized, r.CategoryOf("no_high_school_ed"))
	assert.Equal(t, Uncategorized, r.CategoryOf(""))
}

func TestGroupIndexFields(t *testing.T) {
	r := MustLoad()

	groups := r.GroupIndexFields([]string{"PM25", "mystery_var", "no_car_rate", "poverty_rate", "OZONE"})
	require.Len(t, groups, 3)

	assert.Equal(t, "Socioeconomic", groups[0].Category)
	require.Len(t, groups[0].Variables, 2)
	assert.Equal(t, "no_car_rate", groups[0].Variables[0].ID)
	assert.Equal(t, "No Vehicle Access Rate", groups[0].Variables[0].Name)

	assert.Equal(t, "Environmental Exposure", groups[1].Category)
	assert.Equal(t, []string{"PM25", "OZONE"}, []string{groups[1].Variables[0].ID, groups[1].Variables[1].ID})

	assert.Equal(t, Uncategorized, groups[2].Category)
	assert.Equal(t, "Mystery Var", groups[2].Variables[0].Name)
}

func TestCountyName(t *testing.T) {
	r := MustLoad()

	tests := []struct {
		code string
		want string
	}{
		{"121", "Fulton"},
		{"13121", "Fulton"},
		{"89", "DeKalb"},
		{" 067 ", "Cobb"},
		{"999", "Unknown"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, r.CountyName(tt.code))
		})
	}
}

func TestRaceGroup(t *testing.T) {
	r := MustLoad()

	g, ok := r.RaceGroup("Black")
	require.True(t, ok)
	assert.Equal(t, "#d95f02", g.Color)

	_, ok = r.RaceGroup("martian")
	assert.False(t, ok)
}
