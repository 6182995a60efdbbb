package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/linkage/internal/schema"
)

// Validation error codes (E100-E199)
const (
	// Resource errors (E101-E109)
	ErrInvalidIdentifier  = "E101" // table, key or attribute name is not an identifier
	ErrInvalidKeyKind     = "E102" // primary key kind must be int or string
	ErrInvalidFieldType   = "E104" // invalid attribute kind
	ErrDuplicateName      = "E105" // duplicate attribute/relationship/column name
	ErrFloatTypeForbidden = "E106" // float types not allowed

	// Relationship errors (E110-E119)
	ErrInvalidRelationKind = "E110" // kind is not to-one or to-many
	ErrMissingStorage      = "E111" // no key column or join table
	ErrIncompleteJoinTable = "E112" // join table lacks a table or key column
	ErrMissingTarget       = "E113" // target type is empty
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled resource type on its own; references to
// other types are checked by schema.Registry.Validate.
// Returns all errors found (does not fail-fast).
func Validate(t *schema.Type) []ValidationError {
	var errs []ValidationError

	// E101: identifiers end up in SQL
	for _, id := range []struct{ field, ident string }{{"table", t.Table}, {"key.name", t.PrimaryKey}} {
		if !identPattern.MatchString(id.ident) {
			errs = append(errs, ValidationError{
				Field:   id.field,
				Message: fmt.Sprintf("%q is not a valid identifier", id.ident),
				Code:    ErrInvalidIdentifier,
			})
		}
	}

	// E102: key kind
	if t.KeyKind != schema.KindInt && t.KeyKind != schema.KindString {
		errs = append(errs, ValidationError{
			Field:   "key.kind",
			Message: fmt.Sprintf("key kind %q must be int or string", t.KeyKind),
			Code:    ErrInvalidKeyKind,
		})
	}

	// Track names for duplicate detection
	names := map[string]string{t.PrimaryKey: "key.name"}

	for i, a := range t.Attributes {
		field := fmt.Sprintf("attributes[%d]", i)
		if !identPattern.MatchString(a.Name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%q is not a valid identifier", a.Name),
				Code:    ErrInvalidIdentifier,
			})
		}
		if prev, ok := names[a.Name]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate name %q (also %s)", a.Name, prev),
				Code:    ErrDuplicateName,
			})
		}
		names[a.Name] = field

		switch a.Kind {
		case schema.KindString, schema.KindInt, schema.KindBool, schema.KindJSON:
		case "float":
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("float type forbidden for attribute %q, use int instead", a.Name),
				Code:    ErrFloatTypeForbidden,
			})
		default:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid kind %q for attribute %q", a.Kind, a.Name),
				Code:    ErrInvalidFieldType,
			})
		}
	}

	for i, a := range t.Associations {
		errs = append(errs, validateRelationship(fmt.Sprintf("relationships[%d]", i), &a, names)...)
	}

	return errs
}

func validateRelationship(field string, a *schema.Association, names map[string]string) []ValidationError {
	var errs []ValidationError

	// E105: a relationship shares the attribute namespace, and a to-one
	// key column must not shadow an attribute
	if prev, ok := names[a.Name]; ok {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("duplicate name %q (also %s)", a.Name, prev),
			Code:    ErrDuplicateName,
		})
	}
	names[a.Name] = field
	if a.Cardinality == schema.ToOne && a.ForeignKey != "" {
		if prev, ok := names[a.ForeignKey]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".key",
				Message: fmt.Sprintf("key column %q collides with %s", a.ForeignKey, prev),
				Code:    ErrDuplicateName,
			})
		}
		names[a.ForeignKey] = field + ".key"
	}

	// E113: target
	if a.Target == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".type",
			Message: fmt.Sprintf("relationship %q has no target type", a.Name),
			Code:    ErrMissingTarget,
		})
	}

	switch a.Cardinality {
	case schema.ToOne:
		// E111: to-one key column
		if !identPattern.MatchString(a.ForeignKey) {
			errs = append(errs, ValidationError{
				Field:   field + ".key",
				Message: fmt.Sprintf("to-one relationship %q needs a key column", a.Name),
				Code:    ErrMissingStorage,
			})
		}
	case schema.ToMany:
		if j := a.Through; j != nil {
			// E112: join table
			for _, ident := range []string{j.Table, j.OwnerKey, j.MemberKey} {
				if !identPattern.MatchString(ident) {
					errs = append(errs, ValidationError{
						Field:   field + ".through",
						Message: fmt.Sprintf("relationship %q: incomplete join table", a.Name),
						Code:    ErrIncompleteJoinTable,
					})
					break
				}
			}
		} else if !identPattern.MatchString(a.ForeignKey) {
			// E111: to-many storage
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("to-many relationship %q needs a key or a through table", a.Name),
				Code:    ErrMissingStorage,
			})
		}
	default:
		// E110: kind
		errs = append(errs, ValidationError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("invalid relationship kind %q", a.Cardinality),
			Code:    ErrInvalidRelationKind,
		})
	}

	return errs
}
