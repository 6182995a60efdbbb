package compiler

import (
	"sync"

	"cuelang.org/go/cue"

	"github.com/roach88/linkage/internal/ir"
)

// cueMu serializes evaluation: compiled checks share their CUE context,
// and a context is not safe for concurrent use.
var cueMu sync.Mutex

// constraintCheck returns an attribute check unifying assigned values
// with constraint. A value the constraint rejects yields msg.
func constraintCheck(constraint cue.Value, msg string) func(ir.IRValue) []string {
	return func(v ir.IRValue) []string {
		if ir.IsNull(v) {
			return nil
		}
		x := goValue(v)

		cueMu.Lock()
		defer cueMu.Unlock()
		unified := constraint.Unify(constraint.Context().Encode(x))
		if err := unified.Validate(cue.Concrete(true)); err != nil {
			return []string{msg}
		}
		return nil
	}
}

// goValue converts an IR value to the Go value CUE encodes.
func goValue(v ir.IRValue) any {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return int64(val)
	case ir.IRBool:
		return bool(val)
	case ir.IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = goValue(elem)
		}
		return out
	case ir.IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = goValue(elem)
		}
		return out
	default:
		return nil
	}
}
