package validation

// Category says which part of a resource document an error points at.
type Category string

const (
	CategoryAttributes    Category = "attributes"
	CategoryRelationships Category = "relationships"
)

// Entry is one translated error. Key is nil for object-level messages.
type Entry struct {
	Key      *string  `json:"key"`
	Message  string   `json:"message"`
	Category Category `json:"category,omitempty"`
}

// KeyString returns the entry key, or "" for object-level entries.
func (e Entry) KeyString() string {
	if e.Key == nil {
		return ""
	}
	return *e.Key
}

// Introspector exposes the schema facts Translate needs. schema.Type
// implements it.
type Introspector interface {
	// IsAssociation reports whether name is a declared association.
	IsAssociation(name string) bool
	// AssociationForColumn returns the to-one association stored in column.
	AssociationForColumn(column string) (string, bool)
}

// Translate flattens errs into protocol entries.
//
// Messages attached to a foreign-key column are re-attributed to the
// association that owns the column. The association takes the column's
// position in the field order; if the association already had messages
// the column's are appended to them. A field naming an association is
// categorized as relationships, anything else as attributes. Keyed
// messages are prefixed with the key ("title can't be blank").
// Object-level messages get a nil key and no category.
//
// Translate is pure: errs is not modified.
func Translate(errs *Errors, schema Introspector) []Entry {
	if errs.Empty() {
		return []Entry{}
	}

	var order []string
	grouped := make(map[string][]string)
	for _, field := range errs.Fields() {
		key := field
		if field != "" {
			if assoc, ok := schema.AssociationForColumn(field); ok {
				key = assoc
			}
		}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], errs.On(field)...)
	}

	entries := make([]Entry, 0, errs.Len())
	for _, key := range order {
		key := key
		for _, msg := range grouped[key] {
			if key == "" {
				entries = append(entries, Entry{Message: msg})
				continue
			}
			category := CategoryAttributes
			if schema.IsAssociation(key) {
				category = CategoryRelationships
			}
			entries = append(entries, Entry{
				Key:      &key,
				Message:  key + " " + msg,
				Category: category,
			})
		}
	}
	return entries
}
