package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CategoryOrder(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{
		"story", "production", "cast", "audio", "release", "marketing",
		"reception", "sequels", "trivia", "controversy", "postrelease", "miscellaneous",
	}, r.Categories())
}

func TestDefault_FieldsAreGloballyUnique(t *testing.T) {
	r := Default()
	seen := make(map[string]string)
	for _, f := range r.AllFields() {
		prev, dup := seen[f.Name]
		require.False(t, dup, "field %q in %q and %q", f.Name, prev, f.Category)
		seen[f.Name] = f.Category
	}
	assert.Len(t, seen, 64)
}

func TestNew_RejectsDuplicateField(t *testing.T) {
	_, err := New([]CategoryDef{
		{Name: "a", Fields: []FieldDef{{Name: "plot"}}},
		{Name: "b", Fields: []FieldDef{{Name: "Plot"}}},
	})
	require.ErrorIs(t, err, ErrInvalidTaxonomy)
}

func TestNew_RejectsDuplicateCategoryAndEmpty(t *testing.T) {
	_, err := New([]CategoryDef{
		{Name: "a", Fields: []FieldDef{{Name: "x"}}},
		{Name: " A ", Fields: []FieldDef{{Name: "y"}}},
	})
	require.ErrorIs(t, err, ErrInvalidTaxonomy)

	_, err = New([]CategoryDef{{Name: "a"}})
	require.ErrorIs(t, err, ErrInvalidTaxonomy)

	_, err = New(nil)
	require.ErrorIs(t, err, ErrInvalidTaxonomy)
}

func TestFields_UnknownCategory(t *testing.T) {
	_, err := Default().Fields("genre")
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestParseCategory(t *testing.T) {
	r := Default()

	got, err := r.ParseCategory("  Reception ")
	require.NoError(t, err)
	assert.Equal(t, "reception", got)

	_, err = r.ParseCategory("popularity")
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestValidateField(t *testing.T) {
	r := Default()
	require.NoError(t, r.ValidateField("boxoffice"))
	require.ErrorIs(t, r.ValidateField("box office"), ErrUnknownField)
	require.ErrorIs(t, r.ValidateField("plot; DROP TABLE films"), ErrUnknownField)
}

func TestFrameworks_FirstSeenOrder(t *testing.T) {
	got, err := Default().Frameworks("story")
	require.NoError(t, err)
	assert.Equal(t, []string{"Plot", "General", "Themes"}, got)

	got, err = Default().Frameworks("audio")
	require.NoError(t, err)
	assert.Equal(t, []string{"Soundtrack", "Songs", "General"}, got)
}

func TestFieldForHeading(t *testing.T) {
	r := Default()
	tests := []struct {
		heading string
		want    string
		ok      bool
	}{
		{"Plot", "plot", true},
		{"Box-office", "boxoffice", true},
		{"Re-releases", "rerelease", true},
		{"Accolades", "awards", true},
		{"Post-release", "postrelease", true},
		{"Spin-off", "spinoff", true},
		{"Soundtracks", "soundtrack", true},
		{"External links", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.heading, func(t *testing.T) {
			got, ok := r.FieldForHeading(tt.heading)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrameworkSlots_Fallback(t *testing.T) {
	assert.Equal(t, []string{"description"}, FrameworkSlots("Unknown"))
	assert.Contains(t, FrameworkSlots("Plot"), "conflict")
}
