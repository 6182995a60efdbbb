package schema

import (
	"context"
	"slices"

	"github.com/jinzhu/inflection"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/validation"
)

// Kind is the storage kind of an attribute.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindJSON   Kind = "json" // arrays and objects, stored as canonical JSON text
)

// Cardinality is the directionality of an association.
type Cardinality string

const (
	ToOne  Cardinality = "to-one"
	ToMany Cardinality = "to-many"
)

// Instance is the read view of a loaded row that validators and member
// overrides receive. model.Record implements it.
type Instance interface {
	Type() *Type
	Key() ir.IRValue
	Get(column string) ir.IRValue
}

// MemberFunc adds member to, or removes it from, owner's association.
type MemberFunc func(ctx context.Context, owner, member Instance) error

// Validator appends domain validation messages for inst to errs.
type Validator func(inst Instance, errs *validation.Errors)

// Attribute is a persistable column.
type Attribute struct {
	Name    string
	Kind    Kind
	Unique  bool
	NotNull bool

	// Check returns validation messages for a value; nil means valid.
	Check func(v ir.IRValue) []string
}

// JoinTable describes the link rows of a many-to-many association.
type JoinTable struct {
	Table     string
	OwnerKey  string // column referencing the owner's primary key
	MemberKey string // column referencing the member's primary key
}

// Association is a relation descriptor.
//
// Storage:
//   - ToOne: ForeignKey is a column on the owner's table.
//   - ToMany with Through: link rows in a join table.
//   - ToMany without Through: ForeignKey is a column on the target table
//     referencing the owner.
//
// Add and Remove override the storage-derived member operations.
type Association struct {
	Name        string
	Cardinality Cardinality
	Target      string
	ForeignKey  string
	Through     *JoinTable

	// Member is the singular member name; derived from Name when empty.
	Member string

	// Coerce converts reference ids; the target's KeyCoercion when nil.
	Coerce Coercion

	Add    MemberFunc
	Remove MemberFunc
}

// MemberName returns the singular member name.
func (a *Association) MemberName() string {
	if a.Member != "" {
		return a.Member
	}
	return inflection.Singular(a.Name)
}

// AddOperation returns the name of the add-member operation.
func (a *Association) AddOperation() string {
	return "add_" + a.MemberName()
}

// RemoveOperation returns the name of the remove-member operation.
func (a *Association) RemoveOperation() string {
	return "remove_" + a.MemberName()
}

// RemoveAllOperation returns the name of the remove-all operation.
func (a *Association) RemoveAllOperation() string {
	return "remove_all_" + a.Name
}

// DatasetAccessor returns the name of the association dataset accessor.
func (a *Association) DatasetAccessor() string {
	return a.Name + "_dataset"
}

// Type is a resource type. Build it with NewType and the chained
// declaration methods, then register it; it must not change afterwards.
type Type struct {
	Name        string
	Table       string
	PrimaryKey  string
	KeyKind     Kind
	KeyCoercion Coercion

	Attributes   []Attribute
	Associations []Association
	Validators   []Validator
}

// NewType creates a resource type stored in a table of the same name,
// keyed by an integer "id" column.
func NewType(name string) *Type {
	return &Type{
		Name:        name,
		Table:       name,
		PrimaryKey:  "id",
		KeyKind:     KindInt,
		KeyCoercion: IntKey,
	}
}

// InTable sets the table name.
func (t *Type) InTable(table string) *Type {
	t.Table = table
	return t
}

// KeyedBy sets the primary-key column and kind. String keys coerce with
// StringKey, everything else with IntKey.
func (t *Type) KeyedBy(column string, kind Kind) *Type {
	t.PrimaryKey = column
	t.KeyKind = kind
	t.KeyCoercion = IntKey
	if kind == KindString {
		t.KeyCoercion = StringKey
	}
	return t
}

// CoercedBy replaces the key coercion.
func (t *Type) CoercedBy(coerce Coercion) *Type {
	t.KeyCoercion = coerce
	return t
}

// Attr declares an attribute.
func (t *Type) Attr(a Attribute) *Type {
	if a.Kind == "" {
		a.Kind = KindString
	}
	t.Attributes = append(t.Attributes, a)
	return t
}

// HasOne declares a to-one association stored in column fk of this table.
func (t *Type) HasOne(name, target, fk string) *Type {
	t.Associations = append(t.Associations, Association{
		Name:        name,
		Cardinality: ToOne,
		Target:      target,
		ForeignKey:  fk,
	})
	return t
}

// HasMany declares a one-to-many association: fk is a column on the
// target table referencing this type's primary key.
func (t *Type) HasMany(name, target, fk string) *Type {
	t.Associations = append(t.Associations, Association{
		Name:        name,
		Cardinality: ToMany,
		Target:      target,
		ForeignKey:  fk,
	})
	return t
}

// ManyToMany declares a to-many association stored in a join table.
func (t *Type) ManyToMany(name, target string, through JoinTable) *Type {
	t.Associations = append(t.Associations, Association{
		Name:        name,
		Cardinality: ToMany,
		Target:      target,
		Through:     &through,
	})
	return t
}

// Assoc declares a fully specified association (custom coercion, member
// overrides).
func (t *Type) Assoc(a Association) *Type {
	t.Associations = append(t.Associations, a)
	return t
}

// Validates adds a domain validator.
func (t *Type) Validates(v Validator) *Type {
	t.Validators = append(t.Validators, v)
	return t
}

// Attribute looks up an attribute by name.
func (t *Type) Attribute(name string) (*Attribute, bool) {
	for i := range t.Attributes {
		if t.Attributes[i].Name == name {
			return &t.Attributes[i], true
		}
	}
	return nil, false
}

// Association looks up an association by name.
func (t *Type) Association(name string) (*Association, bool) {
	for i := range t.Associations {
		if t.Associations[i].Name == name {
			return &t.Associations[i], true
		}
	}
	return nil, false
}

// IsAssociation reports whether name is a declared association.
func (t *Type) IsAssociation(name string) bool {
	_, ok := t.Association(name)
	return ok
}

// AssociationForColumn returns the to-one association stored in column.
func (t *Type) AssociationForColumn(column string) (string, bool) {
	for _, a := range t.Associations {
		if a.Cardinality == ToOne && a.ForeignKey == column {
			return a.Name, true
		}
	}
	return "", false
}

// Columns returns the primary key, attribute columns and to-one foreign
// keys in declaration order.
func (t *Type) Columns() []string {
	cols := []string{t.PrimaryKey}
	for _, a := range t.Attributes {
		cols = append(cols, a.Name)
	}
	for _, a := range t.Associations {
		if a.Cardinality == ToOne && !slices.Contains(cols, a.ForeignKey) {
			cols = append(cols, a.ForeignKey)
		}
	}
	return cols
}

// HasColumn reports whether column is one of Columns().
func (t *Type) HasColumn(column string) bool {
	return slices.Contains(t.Columns(), column)
}

// Settable reports whether a client may assign column: attributes and
// to-one foreign keys, never the primary key.
func (t *Type) Settable(column string) bool {
	return column != t.PrimaryKey && t.HasColumn(column)
}

// Coerce converts a raw identifier with the type's key coercion.
func (t *Type) Coerce(raw string) (ir.IRValue, error) {
	coerce := t.KeyCoercion
	if coerce == nil {
		coerce = IntKey
	}
	return coerce(raw)
}

var _ validation.Introspector = (*Type)(nil)
