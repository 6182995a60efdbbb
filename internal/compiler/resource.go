package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/schema"
	"github.com/roach88/linkage/internal/validation"
)

// CompileResource parses a CUE value into a resource type.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the resource struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`resource: posts: { ... }`)
//	t, err := CompileResource(v.LookupPath(cue.ParsePath("resource.posts")))
//
// Recognized fields:
//
//	table?:         string (default: the resource name)
//	key?:           {name: string, kind: "int" | "string"} (default: id, int)
//	attributes?:    {<name>[?]: <constraint> @msg("...") @unique()}
//	relationships?: {<name>: {kind: "to-one" | "to-many", type: string,
//	                 key?: string, member?: string,
//	                 through?: {table: string, owner_key: string, member_key: string}}}
//	rules?:         [...{when: {<column>: <scalar>}, require: string, message?: string}]
//
// An optional attribute, or one admitting null, may be NULL. The
// attribute's constraint is checked against assigned values during
// validation; @msg sets the failure message.
func CompileResource(v cue.Value) (*schema.Type, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return nil, &CompileError{Field: "resource", Message: "resource must be a named field", Pos: v.Pos()}
	}
	t := schema.NewType(labels[len(labels)-1].Unquoted())

	if tableVal := v.LookupPath(cue.ParsePath("table")); tableVal.Exists() {
		table, err := tableVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t.InTable(table)
	}

	if err := parseKey(v, t); err != nil {
		return nil, err
	}
	if err := parseAttributes(v, t); err != nil {
		return nil, err
	}
	if err := parseRelationships(v, t); err != nil {
		return nil, err
	}
	if err := parseRules(v, t); err != nil {
		return nil, err
	}
	return t, nil
}

func parseKey(v cue.Value, t *schema.Type) error {
	keyVal := v.LookupPath(cue.ParsePath("key"))
	if !keyVal.Exists() {
		return nil
	}
	name, err := stringField(keyVal, "name", "key.name")
	if err != nil {
		return err
	}
	kind := "int"
	if kindVal := keyVal.LookupPath(cue.ParsePath("kind")); kindVal.Exists() {
		if kind, err = kindVal.String(); err != nil {
			return formatCUEError(err)
		}
	}
	switch schema.Kind(kind) {
	case schema.KindInt, schema.KindString:
		t.KeyedBy(name, schema.Kind(kind))
		return nil
	default:
		return &CompileError{
			Field:   "key.kind",
			Message: fmt.Sprintf("key kind must be \"int\" or \"string\", got %q", kind),
			Pos:     keyVal.Pos(),
		}
	}
}

// parseAttributes extracts attribute declarations in source order.
func parseAttributes(v cue.Value, t *schema.Type) error {
	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return nil // attributes are optional
	}

	iter, err := attrsVal.Fields(cue.Optional(true))
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		a, err := parseAttribute(iter.Selector().Unquoted(), iter.Value(), iter.IsOptional())
		if err != nil {
			return err
		}
		t.Attr(a)
	}
	return nil
}

func parseAttribute(name string, v cue.Value, optional bool) (schema.Attribute, error) {
	k := v.IncompleteKind()
	nullable := optional || k&cue.NullKind != 0
	kind, err := attributeKind(name, v, k&^cue.NullKind)
	if err != nil {
		return schema.Attribute{}, err
	}

	a := schema.Attribute{Name: name, Kind: kind, NotNull: !nullable}
	if unique := v.Attribute("unique"); unique.Err() == nil {
		a.Unique = true
	}
	msg := "is invalid"
	if m := v.Attribute("msg"); m.Err() == nil {
		if s, err := m.String(0); err == nil {
			msg = s
		}
	}
	a.Check = constraintCheck(v, msg)
	return a, nil
}

// attributeKind converts a CUE kind to a storage kind.
// Floats are forbidden.
func attributeKind(name string, v cue.Value, k cue.Kind) (schema.Kind, error) {
	switch k {
	case cue.StringKind:
		return schema.KindString, nil
	case cue.IntKind:
		return schema.KindInt, nil
	case cue.BoolKind:
		return schema.KindBool, nil
	case cue.ListKind, cue.StructKind, cue.ListKind | cue.StructKind:
		return schema.KindJSON, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "attributes." + name,
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
			Code:    ErrFloatTypeForbidden,
		}
	default:
		return "", &CompileError{
			Field:   "attributes." + name,
			Message: fmt.Sprintf("unsupported type kind: %v", k),
			Pos:     v.Pos(),
		}
	}
}

// parseRelationships extracts association declarations in source order.
func parseRelationships(v cue.Value, t *schema.Type) error {
	relsVal := v.LookupPath(cue.ParsePath("relationships"))
	if !relsVal.Exists() {
		return nil
	}

	iter, err := relsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		relVal := iter.Value()
		field := "relationships." + name

		kind, err := stringField(relVal, "kind", field+".kind")
		if err != nil {
			return err
		}
		target, err := stringField(relVal, "type", field+".type")
		if err != nil {
			return err
		}
		a := schema.Association{Name: name, Target: target}
		if a.ForeignKey, err = optionalString(relVal, "key"); err != nil {
			return err
		}
		if a.Member, err = optionalString(relVal, "member"); err != nil {
			return err
		}

		switch schema.Cardinality(kind) {
		case schema.ToOne:
			a.Cardinality = schema.ToOne
			if a.ForeignKey == "" {
				a.ForeignKey = name + "_id"
			}
		case schema.ToMany:
			a.Cardinality = schema.ToMany
			throughVal := relVal.LookupPath(cue.ParsePath("through"))
			if throughVal.Exists() {
				j := schema.JoinTable{}
				if j.Table, err = stringField(throughVal, "table", field+".through.table"); err != nil {
					return err
				}
				if j.OwnerKey, err = stringField(throughVal, "owner_key", field+".through.owner_key"); err != nil {
					return err
				}
				if j.MemberKey, err = stringField(throughVal, "member_key", field+".through.member_key"); err != nil {
					return err
				}
				a.Through = &j
			}
			if a.Through == nil && a.ForeignKey == "" {
				return &CompileError{
					Field:   field,
					Message: "to-many relationship needs a key or a through table",
					Pos:     relVal.Pos(),
				}
			}
		default:
			return &CompileError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("kind must be \"to-one\" or \"to-many\", got %q", kind),
				Pos:     relVal.Pos(),
			}
		}
		t.Assoc(a)
	}
	return nil
}

// requirement is a conditional presence rule: when every column of when
// holds its value, column require must not be NULL.
type requirement struct {
	when    ir.IRObject
	require string
	message string
}

func (r requirement) validate(inst schema.Instance, errs *validation.Errors) {
	for col, want := range r.when {
		if !ir.Equal(inst.Get(col), want) {
			return
		}
	}
	if ir.IsNull(inst.Get(r.require)) {
		errs.Add(r.require, r.message)
	}
}

func parseRules(v cue.Value, t *schema.Type) error {
	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil
	}
	iter, err := rulesVal.List()
	if err != nil {
		return formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		ruleVal := iter.Value()
		field := fmt.Sprintf("rules[%d]", i)

		r := requirement{message: "is not present"}
		if r.require, err = stringField(ruleVal, "require", field+".require"); err != nil {
			return err
		}
		if msg, err := optionalString(ruleVal, "message"); err != nil {
			return err
		} else if msg != "" {
			r.message = msg
		}
		r.when = ir.IRObject{}
		if whenVal := ruleVal.LookupPath(cue.ParsePath("when")); whenVal.Exists() {
			data, err := whenVal.MarshalJSON()
			if err != nil {
				return formatCUEError(err)
			}
			when, err := ir.UnmarshalIRValue(data)
			if err != nil {
				return &CompileError{Field: field + ".when", Message: err.Error(), Pos: whenVal.Pos()}
			}
			obj, ok := when.(ir.IRObject)
			if !ok {
				return &CompileError{Field: field + ".when", Message: "when must be a struct", Pos: whenVal.Pos()}
			}
			r.when = obj
		}

		for _, col := range append(r.when.SortedKeys(), r.require) {
			if !t.HasColumn(col) {
				return &CompileError{
					Field:   field,
					Message: fmt.Sprintf("unknown column %q", col),
					Pos:     ruleVal.Pos(),
				}
			}
		}
		t.Validates(r.validate)
	}
	return nil
}

func stringField(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	Code    string // overrides the code derived from Field
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
