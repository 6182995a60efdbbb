package schema

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	// ErrUnknownType is returned when a type name is not registered.
	ErrUnknownType = errors.New("unknown resource type")

	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("duplicate resource type")

	// ErrInvalidType is returned by Validate for malformed declarations.
	ErrInvalidType = errors.New("invalid resource type")
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Registry holds the resource types of an application. Register every
// type at configuration time, then call Validate; the registry is
// read-only afterwards and safe for concurrent use.
type Registry struct {
	types map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds types to the registry.
func (r *Registry) Register(types ...*Type) error {
	for _, t := range types {
		if _, exists := r.types[t.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateType, t.Name)
		}
		r.types[t.Name] = t
	}
	return nil
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// MustLookup is Lookup for names known at compile time; it panics on an
// unknown name.
func (r *Registry) MustLookup(name string) *Type {
	t, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Types returns every registered type sorted by name.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Type) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Target returns the associated type of a.
func (r *Registry) Target(a *Association) (*Type, error) {
	return r.Lookup(a.Target)
}

// Coercion returns the coercion for reference ids of a: its own, or the
// target type's key coercion.
func (r *Registry) Coercion(a *Association) Coercion {
	if a.Coerce != nil {
		return a.Coerce
	}
	if t, err := r.Lookup(a.Target); err == nil && t.KeyCoercion != nil {
		return t.KeyCoercion
	}
	return IntKey
}

// Validate checks every registered type. All problems are reported
// (does not fail-fast).
func (r *Registry) Validate() error {
	var errs []error
	for _, t := range r.Types() {
		for _, msg := range r.problems(t) {
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidType, t.Name, msg))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) problems(t *Type) []string {
	var out []string
	for _, ident := range []string{t.Table, t.PrimaryKey} {
		if !identPattern.MatchString(ident) {
			out = append(out, fmt.Sprintf("invalid identifier %q", ident))
		}
	}

	seen := map[string]bool{t.PrimaryKey: true}
	for _, a := range t.Attributes {
		if !identPattern.MatchString(a.Name) {
			out = append(out, fmt.Sprintf("invalid attribute name %q", a.Name))
		}
		if seen[a.Name] {
			out = append(out, fmt.Sprintf("duplicate field %q", a.Name))
		}
		seen[a.Name] = true
	}

	for i := range t.Associations {
		a := &t.Associations[i]
		if seen[a.Name] {
			out = append(out, fmt.Sprintf("duplicate field %q", a.Name))
		}
		seen[a.Name] = true

		if _, err := r.Lookup(a.Target); err != nil {
			out = append(out, fmt.Sprintf("association %q: %v", a.Name, err))
		}

		switch a.Cardinality {
		case ToOne:
			if !identPattern.MatchString(a.ForeignKey) {
				out = append(out, fmt.Sprintf("association %q: to-one needs a foreign key column", a.Name))
			}
		case ToMany:
			out = append(out, toManyProblems(a)...)
		default:
			out = append(out, fmt.Sprintf("association %q: unknown cardinality %q", a.Name, a.Cardinality))
		}
	}
	return out
}

// toManyProblems enforces that a to-many association has storage for its
// dataset accessor, from which the add and remove member operations are
// derived unless overridden.
func toManyProblems(a *Association) []string {
	if a.Through != nil {
		j := a.Through
		for _, ident := range []string{j.Table, j.OwnerKey, j.MemberKey} {
			if !identPattern.MatchString(ident) {
				return []string{fmt.Sprintf("association %q: incomplete join table", a.Name)}
			}
		}
		return nil
	}
	if identPattern.MatchString(a.ForeignKey) {
		return nil
	}
	return []string{fmt.Sprintf("association %q: no join table or foreign key for %s, %s/%s",
		a.Name, a.DatasetAccessor(), a.AddOperation(), a.RemoveOperation())}
}
