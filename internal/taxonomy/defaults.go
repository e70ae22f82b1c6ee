package taxonomy

import (
	"strings"
	"sync"
	"unicode"
)

// GeneralFramework is the catch-all structural template.
const GeneralFramework = "General"

var defaultDefs = []CategoryDef{
	{Name: "story", Fields: []FieldDef{
		{"plot", "Plot"}, {"synopsis", ""}, {"premise", ""}, {"summary", ""},
		{"storyline", ""}, {"themes", "Themes"}, {"adaptation", ""}, {"screenplay", ""},
	}},
	{Name: "production", Fields: []FieldDef{
		{"production", "Production"}, {"development", ""}, {"filming", ""},
		{"casting", ""}, {"crew", ""}, {"background", ""},
	}},
	{Name: "cast", Fields: []FieldDef{
		{"cast", "Cast"},
	}},
	{Name: "audio", Fields: []FieldDef{
		{"soundtrack", "Soundtrack"}, {"music", "Soundtrack"}, {"songs", "Songs"}, {"tracklist", ""},
	}},
	{Name: "release", Fields: []FieldDef{
		{"release", "Release"}, {"distribution", ""}, {"premiere", ""},
		{"rerelease", ""}, {"availability", ""}, {"certification", ""},
	}},
	{Name: "marketing", Fields: []FieldDef{
		{"marketing", "Marketing"}, {"promotion", ""}, {"trailer", ""}, {"publicity", ""},
	}},
	{Name: "reception", Fields: []FieldDef{
		{"reception", "Reception"}, {"reviews", ""}, {"awards", "Awards"}, {"nominations", ""},
		{"boxoffice", ""}, {"audience", ""}, {"impact", ""}, {"legacy", "Legacy"},
	}},
	{Name: "sequels", Fields: []FieldDef{
		{"sequel", "Sequel"}, {"prequel", ""}, {"remake", "Remake"}, {"spinoff", ""},
		{"adaptations", ""}, {"installments", ""}, {"anthologies", ""}, {"miniseries", ""},
	}},
	{Name: "trivia", Fields: []FieldDef{
		{"trivia", "Trivia"}, {"goofs", ""}, {"influences", ""}, {"inspiration", ""},
	}},
	{Name: "controversy", Fields: []FieldDef{
		{"controversies", "Controversies"}, {"lawsuit", ""}, {"litigation", ""},
		{"allegations", ""}, {"censorship", ""},
	}},
	{Name: "postrelease", Fields: []FieldDef{
		{"reappraisal", ""}, {"colourisation", ""}, {"postrelease", ""},
	}},
	{Name: "miscellaneous", Fields: []FieldDef{
		{"title", ""}, {"generalinfo", ""}, {"other", ""}, {"related", ""},
		{"sources", ""}, {"footnotes", ""}, {"future", ""},
	}},
}

// Section headings on source pages that don't match a field name directly.
// Keys are normalized with headingKey.
var headingAliases = map[string]string{
	"accolades":   "awards",
	"soundtracks": "soundtrack",
	"sequels":     "sequel",
	"remakes":     "remake",
	"receptions":  "reception",
	"review":      "reviews",
	"controversy": "controversies",
	"theme":       "themes",
	"installment": "installments",
	"festivals":   "premiere",
	"economics":   "boxoffice",
	"delays":      "release",
	"legend":      "other",
	"film":        "other",
	"plotsummary": "plot",
	"references":  "sources",
	"notes":       "footnotes",
}

// frameworkSlots are the slot names a structured restatement of a query
// fills for each framework label.
var frameworkSlots = map[string][]string{
	"Plot":          {"setting", "protagonist", "conflict", "narrative_arc", "resolution"},
	"Themes":        {"central_theme", "motifs", "tone"},
	"Production":    {"studio", "production_history", "locations", "techniques"},
	"Cast":          {"lead_roles", "supporting_roles", "performances"},
	"Soundtrack":    {"composer", "musical_style", "notable_tracks"},
	"Songs":         {"song_titles", "singers", "picturisation"},
	"Release":       {"release_date", "territories", "format"},
	"Marketing":     {"campaign", "promotional_events"},
	"Reception":     {"critical_response", "audience_response", "commercial_performance"},
	"Awards":        {"ceremony", "award_categories", "outcome"},
	"Legacy":        {"influence", "cultural_impact"},
	"Sequel":        {"follow_up", "continuity"},
	"Remake":        {"original_work", "changes"},
	"Trivia":        {"notable_facts"},
	"Controversies": {"issue", "parties", "outcome"},
	GeneralFramework: {"description"},
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the built-in film taxonomy. It panics if the built-in
// definitions are invalid, which is a programming error.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := New(defaultDefs)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// FrameworkSlots returns the slot names for a framework label, falling back to
// the general template for unknown labels.
func FrameworkSlots(label string) []string {
	slots, ok := frameworkSlots[label]
	if !ok {
		slots = frameworkSlots[GeneralFramework]
	}
	out := make([]string, len(slots))
	copy(out, slots)
	return out
}

// FieldForHeading maps a source page section heading ("Box-office",
// "Re-releases", "Accolades") to a registered field name.
func (r *Registry) FieldForHeading(heading string) (string, bool) {
	key := headingKey(heading)
	if key == "" {
		return "", false
	}
	if _, ok := r.byName[key]; ok {
		return key, true
	}
	if alias, ok := headingAliases[key]; ok {
		if _, ok := r.byName[alias]; ok {
			return alias, true
		}
	}
	// "Re-releases" -> "rerelease"
	if trimmed := strings.TrimSuffix(key, "s"); trimmed != key {
		if _, ok := r.byName[trimmed]; ok {
			return trimmed, true
		}
	}
	return "", false
}

func headingKey(heading string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(heading) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
