package resource

import "slices"

// Action is an enclosing resource operation a relationship operation
// may be nested under.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Relationship operation names.
const (
	OpPluck    = "pluck"
	OpPrune    = "prune"
	OpGraft    = "graft"
	OpFetch    = "fetch"
	OpClear    = "clear"
	OpReplace  = "replace"
	OpMerge    = "merge"
	OpSubtract = "subtract"
)

// sideloadOn lists the actions each relationship operation may be
// sideloaded on. Reads and subtract are never sideloaded.
var sideloadOn = map[string][]Action{
	OpPrune:   {ActionUpdate},
	OpGraft:   {ActionCreate, ActionUpdate},
	OpClear:   {ActionUpdate},
	OpReplace: {ActionUpdate},
	OpMerge:   {ActionCreate},
}

// SideloadedOn reports whether op may run nested under action.
func SideloadedOn(op string, action Action) bool {
	return slices.Contains(sideloadOn[op], action)
}

// Sideloads returns the relationship operations that may run nested
// under action, sorted.
func Sideloads(action Action) []string {
	var ops []string
	for op, actions := range sideloadOn {
		if slices.Contains(actions, action) {
			ops = append(ops, op)
		}
	}
	slices.Sort(ops)
	return ops
}
