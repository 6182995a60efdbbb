package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/linkage/internal/ir"
)

// Coercion converts a client-supplied identifier into a storage key.
type Coercion func(raw string) (ir.IRValue, error)

// IntKey is the default coercion: base-10 integer keys.
func IntKey(raw string) (ir.IRValue, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("coerce %q to integer key: %w", raw, err)
	}
	return ir.IRInt(n), nil
}

// StringKey passes identifiers through unchanged.
func StringKey(raw string) (ir.IRValue, error) {
	return ir.IRString(raw), nil
}

// CoerceAll coerces every raw id in order, collapsing duplicates.
func CoerceAll(raws []string, coerce Coercion) ([]ir.IRValue, error) {
	seen := make(map[string]bool, len(raws))
	keys := make([]ir.IRValue, 0, len(raws))
	for _, raw := range raws {
		key, err := coerce(raw)
		if err != nil {
			return nil, err
		}
		ks := ir.KeyString(key)
		if seen[ks] {
			continue
		}
		seen[ks] = true
		keys = append(keys, key)
	}
	return keys, nil
}

// Reference is a client-supplied resource identifier object.
type Reference struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// IDs extracts the raw ids of refs in order.
func IDs(refs []Reference) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
