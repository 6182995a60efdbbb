package validation

import "strings"

// Errors is an ordered mapping of field name to messages, as produced by
// domain validation. Field order is first-insertion order; message order
// within a field is insertion order. The empty field name carries
// object-level messages.
type Errors struct {
	fields   []string
	messages map[string][]string
}

// Add appends a message for field. An empty field records an object-level
// message.
func (e *Errors) Add(field, message string) {
	if e.messages == nil {
		e.messages = make(map[string][]string)
	}
	if _, ok := e.messages[field]; !ok {
		e.fields = append(e.fields, field)
	}
	e.messages[field] = append(e.messages[field], message)
}

// AddObject appends an object-level message.
func (e *Errors) AddObject(message string) {
	e.Add("", message)
}

// Empty reports whether no message has been recorded.
func (e *Errors) Empty() bool {
	return e == nil || len(e.fields) == 0
}

// Fields returns field names in insertion order.
func (e *Errors) Fields() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// On returns the messages recorded for field.
func (e *Errors) On(field string) []string {
	if e == nil {
		return nil
	}
	return e.messages[field]
}

// Len returns the total number of messages.
func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	n := 0
	for _, msgs := range e.messages {
		n += len(msgs)
	}
	return n
}

// Error renders every message, keyed messages prefixed by their field.
func (e *Errors) Error() string {
	var parts []string
	for _, f := range e.Fields() {
		for _, m := range e.messages[f] {
			if f == "" {
				parts = append(parts, m)
				continue
			}
			parts = append(parts, f+" "+m)
		}
	}
	return strings.Join(parts, "; ")
}
