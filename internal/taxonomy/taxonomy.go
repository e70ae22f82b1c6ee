// Package taxonomy holds the closed set of film attribute categories and the
// fields each one covers. Field names double as vector names in the similarity
// store, so they are validated once at startup and never taken from input
// without a lookup.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidTaxonomy = errors.New("invalid taxonomy")
)

// Field is one fine-grained attribute of a film.
type Field struct {
	Name      string // Vector/raw-detail key, e.g. "boxoffice"
	Category  string // Owning category, e.g. "reception"
	Framework string // Structural template label, e.g. "Plot" or "General"
}

// CategoryDef describes one category and its fields in declaration order.
type CategoryDef struct {
	Name   string
	Fields []FieldDef
}

// FieldDef is a field entry inside a CategoryDef.
type FieldDef struct {
	Name      string
	Framework string
}

// Registry is an immutable, validated view over a set of categories.
type Registry struct {
	categories []string
	fields     map[string][]Field
	byName     map[string]Field
}

// New validates defs and builds a registry. Category and field names must be
// non-empty and unique; field names are unique across all categories.
func New(defs []CategoryDef) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidTaxonomy)
	}

	r := &Registry{
		fields: make(map[string][]Field, len(defs)),
		byName: make(map[string]Field),
	}

	for _, def := range defs {
		name := normalize(def.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty category name", ErrInvalidTaxonomy)
		}
		if _, dup := r.fields[name]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidTaxonomy, name)
		}
		if len(def.Fields) == 0 {
			return nil, fmt.Errorf("%w: category %q has no fields", ErrInvalidTaxonomy, name)
		}

		fields := make([]Field, 0, len(def.Fields))
		for _, fd := range def.Fields {
			fname := normalize(fd.Name)
			if fname == "" {
				return nil, fmt.Errorf("%w: empty field in category %q", ErrInvalidTaxonomy, name)
			}
			if prev, dup := r.byName[fname]; dup {
				return nil, fmt.Errorf("%w: field %q in both %q and %q",
					ErrInvalidTaxonomy, fname, prev.Category, name)
			}
			framework := fd.Framework
			if framework == "" {
				framework = GeneralFramework
			}
			f := Field{Name: fname, Category: name, Framework: framework}
			r.byName[fname] = f
			fields = append(fields, f)
		}

		r.categories = append(r.categories, name)
		r.fields[name] = fields
	}

	return r, nil
}

// Categories returns category names in declaration order.
func (r *Registry) Categories() []string {
	out := make([]string, len(r.categories))
	copy(out, r.categories)
	return out
}

// Fields returns the fields of a category in declaration order.
func (r *Registry) Fields(category string) ([]Field, error) {
	fields, ok := r.fields[normalize(category)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out, nil
}

// AllFields returns every field, grouped by category in declaration order.
func (r *Registry) AllFields() []Field {
	out := make([]Field, 0, len(r.byName))
	for _, c := range r.categories {
		out = append(out, r.fields[c]...)
	}
	return out
}

// Lookup finds a field by name.
func (r *Registry) Lookup(name string) (Field, bool) {
	f, ok := r.byName[normalize(name)]
	return f, ok
}

// ValidateField returns ErrUnknownField unless name is a registered field.
func (r *Registry) ValidateField(name string) error {
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return nil
}

// ParseCategory maps loosely formatted model output ("Reception ", "RECEPTION")
// to a registered category name.
func (r *Registry) ParseCategory(name string) (string, error) {
	n := normalize(name)
	if _, ok := r.fields[n]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return n, nil
}

// Frameworks returns the distinct framework labels used by a category's
// fields, in first-seen order.
func (r *Registry) Frameworks(category string) ([]string, error) {
	fields, err := r.Fields(category)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if _, ok := seen[f.Framework]; ok {
			continue
		}
		seen[f.Framework] = struct{}{}
		out = append(out, f.Framework)
	}
	return out, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
