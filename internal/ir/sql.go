package ir

import (
	"fmt"
	"time"
)

// FromSQL converts a value scanned from database/sql into an IRValue.
// Both SQLite drivers hand back int64, float64, []byte, string, bool,
// time.Time or nil.
func FromSQL(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case []byte:
		return IRString(string(val)), nil
	case time.Time:
		return IRString(val.UTC().Format(time.RFC3339Nano)), nil
	default:
		return FromAny(val)
	}
}

// ToSQL converts an IRValue into a database/sql argument.
// Arrays and objects are stored as canonical JSON text.
func ToSQL(v IRValue) (any, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return nil, nil
	case IRString:
		return string(val), nil
	case IRInt:
		return int64(val), nil
	case IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case IRArray, IRObject:
		b, err := MarshalCanonical(val)
		if err != nil {
			return nil, fmt.Errorf("encode %T column: %w", val, err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported IRValue type: %T", v)
	}
}
