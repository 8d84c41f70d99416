package tags_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/tally/internal/tags"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "Trim and lower", in: "  Business ", want: "business"},
		{name: "Collapse whitespace", in: "Road   Trip\t2024", want: "road-trip-2024"},
		{name: "Empty", in: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tags.Normalize(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	type args struct {
		inputs []string
	}

	type testCase struct {
		name string
		args args
		want []string
	}

	tests := []testCase{
		{
			name: "Delimited string",
			args: args{inputs: []string{"Business, Travel, , business"}},
			want: []string{"business", "travel"},
		},
		{
			name: "Sequence keeps first-seen order",
			args: args{inputs: []string{"Zeta", "alpha", "ZETA", "Home Office"}},
			want: []string{"zeta", "alpha", "home-office"},
		},
		{
			name: "Nothing",
			args: args{},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tags.Parse(tt.args.inputs...))
		})
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	assert.Equal(t, "business,travel", tags.Serialize(tags.Parse("Business, Travel, , business")...))
	assert.Equal(t, "", tags.Serialize(""))
}

func TestMerge(t *testing.T) {
	got := tags.Merge([]string{"travel", "Business"}, nil, []string{"business, food"})
	assert.Equal(t, []string{"business", "food", "travel"}, got)
}

func TestSuggest(t *testing.T) {
	known := []string{"Travel", "travel-uk", "Trains", "food", "TRAVEL"}

	assert.Equal(t, []string{"trains", "travel", "travel-uk"}, tags.Suggest("tr", known, 0))
	assert.Equal(t, []string{"trains"}, tags.Suggest("TR", known, 1))
	assert.Equal(t, []string{"travel-uk"}, tags.Suggest("Travel UK", known, 5))
	assert.Empty(t, tags.Suggest("xyz", known, 5))
}
