// Package ir holds the value types shared by every linkage package:
// attribute values, primary keys and loaded rows.
//
// ir imports nothing internal. Key constraints:
//   - NO float types; numbers are int64 so keys compare exactly
//   - IRNull is an explicit value, never a Go nil, when it comes from storage
//   - Canonical JSON (MarshalCanonical) is the only encoding used for
//     golden files and scenario traces
package ir
