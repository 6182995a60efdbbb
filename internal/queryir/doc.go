// Package queryir is the abstract query representation behind the
// Dataset abstraction.
//
// Datasets and records never build SQL text. They build queryir nodes,
// which a backend compiler (internal/querysql) turns into parameterised
// statements:
//
//	[model.Dataset] → [queryir] → [querysql] → database/sql
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method
// pattern. Only types in this package implement them, so backend
// compilers can switch exhaustively:
//
//	switch q := query.(type) {
//	case queryir.Select:
//	case queryir.Count:
//	...
//	}
//
// CRITICAL PATTERNS:
//
// Values are ir.IRValue only (no floats) and always become bind
// parameters. Identifiers are interpolated, so Validate restricts them
// to [A-Za-z_][A-Za-z0-9_]*.
//
// Every Select is totally ordered: the primary key is the final ORDER BY
// term, which makes pagination stable.
package queryir
