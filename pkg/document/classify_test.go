package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func areas(dims ...[]string) [ImpactedDimensions][]string {
	var out [ImpactedDimensions][]string
	copy(out[:], dims)
	return out
}

func TestMatchesExample(t *testing.T) {
	values := areas([]string{"EU"}, []string{"Pharma"})
	f := Filter{{"EU"}, {"Pharma"}}

	assert.True(t, Matches(values, f, RequiredDimensions))
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		values [ImpactedDimensions][]string
		filter Filter
		want   bool
	}{
		{
			name:   "required dimension mismatch",
			values: areas([]string{"US"}, []string{"Pharma"}),
			filter: Filter{{"EU"}, {"Pharma"}},
			want:   false,
		},
		{
			name:   "any value intersects",
			values: areas([]string{"US", "EU"}, []string{"Pharma", "Devices"}),
			filter: Filter{{"EU"}, {"Devices"}},
			want:   true,
		},
		{
			name:   "empty required dimension without empty-set exception",
			values: areas([]string{"EU"}, nil),
			filter: Filter{{"EU"}, {"Pharma"}},
			want:   false,
		},
		{
			name:   "empty required dimension with empty-set exception",
			values: areas([]string{"EU"}, nil),
			filter: Filter{{"EU"}, {"Pharma", ""}},
			want:   true,
		},
		{
			name:   "unconfigured required dimension never matches",
			values: areas([]string{"EU"}, []string{"Pharma"}),
			filter: Filter{{"EU"}, {}},
			want:   false,
		},
		{
			name:   "higher dimension exclusion",
			values: areas([]string{"EU"}, []string{"Pharma"}, []string{"Plant B"}),
			filter: Filter{{"EU"}, {"Pharma"}, {"Plant A"}},
			want:   false,
		},
		{
			name:   "higher dimension satisfied",
			values: areas([]string{"EU"}, []string{"Pharma"}, []string{"Plant A"}),
			filter: Filter{{"EU"}, {"Pharma"}, {"Plant A"}},
			want:   true,
		},
		{
			name:   "higher dimension empty value against configured filter",
			values: areas([]string{"EU"}, []string{"Pharma"}),
			filter: Filter{{"EU"}, {"Pharma"}, {"Plant A"}},
			want:   false,
		},
		{
			name:   "higher dimension empty value with empty-set exception",
			values: areas([]string{"EU"}, []string{"Pharma"}),
			filter: Filter{{"EU"}, {"Pharma"}, {"Plant A", ""}},
			want:   true,
		},
		{
			name:   "unconfigured higher dimensions pass",
			values: areas([]string{"EU"}, []string{"Pharma"}, []string{"x"}, []string{"y"}, []string{"z"}, []string{"w"}),
			filter: Filter{{"EU"}, {"Pharma"}},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.values, tt.filter, RequiredDimensions))
			// Same input, same answer.
			assert.Equal(t, tt.want, Matches(tt.values, tt.filter, RequiredDimensions))
		})
	}
}

func TestRouteFirstMatchWins(t *testing.T) {
	sites := []Site{
		{Name: "sweden_osd", Filter: Filter{{"Sweden"}, {"OSD"}}},
		{Name: "sweden_any", Filter: Filter{{"Sweden"}, {"OSD", "Sterile"}}},
		{Name: "china_wuxi", Filter: Filter{{"China"}, {"OSD"}}},
	}

	rec := &Record{ImpactedBusinessAreas: areas([]string{"Sweden"}, []string{"OSD"})}
	site, ok := Route(rec, sites)
	assert.True(t, ok)
	assert.Equal(t, "sweden_osd", site)

	rec = &Record{ImpactedBusinessAreas: areas([]string{"Sweden"}, []string{"Sterile"})}
	site, ok = Route(rec, sites)
	assert.True(t, ok)
	assert.Equal(t, "sweden_any", site)

	rec = &Record{ImpactedBusinessAreas: areas([]string{"US"}, []string{"OSD"})}
	_, ok = Route(rec, sites)
	assert.False(t, ok)
}
