// Package harness runs reconciliation scenarios end to end.
//
// A scenario loads a CUE resource schema, seeds a fresh SQLite database,
// runs a flow of resource and relationship operations through the real
// controllers, and validates the outcome of each step, the final table
// state and the canonical trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: replace_tags
//	description: "What this scenario validates"
//	schema: path/to/schema-dir
//	pagination: {size: 10, max_size: 100}
//	seed:
//	  - table: tags
//	    rows: [{slug: go}, {slug: sql}]
//	steps:
//	  - op: replace
//	    type: posts
//	    id: "1"
//	    relation: tags
//	    refs: [{type: tags, id: go}]
//	    keep_added: {locked: false}
//	    expect:
//	      result: {added: [go]}
//	  - op: create
//	    type: posts
//	    attributes: {title: Hello}
//	    relationships:
//	      author: {type: people, id: "1"}
//	    expect:
//	      error: VALIDATION_FAILED
//	assertions:
//	  - type: final_state
//	    table: posts_tags
//	    where: {post_id: 1}
//	    expect: {tag_slug: go}
//
// # Operations
//
// Resource ops are create, update, destroy, show and page. Relationship
// ops are pluck, graft and prune on to-one associations, and fetch,
// clear, replace, merge and subtract on to-many associations.
// Relationships given to create and update are sideloaded in the same
// transaction, and the record is validated once they are applied.
//
// # Assertion Types
//
//   - trace_contains: a step with the op (resource, relation) ran
//   - trace_order: ops ran in the given order
//   - trace_count: an op ran exactly N times
//   - final_state: exactly one row matches and holds the expected values
//   - row_count: exactly N rows match
//
// # Deterministic Testing
//
// Every reconciliation carries a fixed correlation id and results list
// keys in sorted order, so traces are identical across runs. Traces are
// rendered as canonical JSON, one event per line, and compared with
// golden files; mismatches are reported as line diffs.
package harness
