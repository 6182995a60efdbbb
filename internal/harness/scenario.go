package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/linkage/internal/schema"
)

// Scenario defines a reconciliation scenario.
// Scenarios seed a database for a CUE schema, run a flow of resource and
// relationship operations, and assert on the resulting trace and state.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the directory of CUE resource schemas.
	// Relative paths are resolved against the scenario file.
	Schema string `yaml:"schema"`

	// Pagination overrides the paginator used by page steps.
	Pagination *PaginationDefaults `yaml:"pagination,omitempty"`

	// Seed rows are inserted in order before the flow runs, bypassing
	// validation.
	Seed []SeedTable `yaml:"seed,omitempty"`

	// Steps is the flow of operations.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// PaginationDefaults configures the scenario's paginator.
type PaginationDefaults struct {
	Number  int64 `yaml:"number,omitempty"`
	Size    int64 `yaml:"size,omitempty"`
	MaxSize int64 `yaml:"max_size,omitempty"`
}

// SeedTable holds raw rows for one table.
type SeedTable struct {
	Table string           `yaml:"table"`
	Rows  []map[string]any `yaml:"rows"`
}

// Step is one operation of the flow.
type Step struct {
	// Op is the operation: create, update, destroy, show, page, or one of
	// the relationship operations (pluck, graft, prune, fetch, clear,
	// replace, merge, subtract).
	Op string `yaml:"op"`

	// Type is the resource type the operation runs on.
	Type string `yaml:"type"`

	// ID names the owning record (every op but create and page).
	ID string `yaml:"id,omitempty"`

	// Relation names the association (relationship ops only).
	Relation string `yaml:"relation,omitempty"`

	// Attributes for create and update.
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// Relationships sideloaded on create and update. A value is a
	// reference, a list of references, or null to unset a to-one.
	Relationships map[string]yaml.Node `yaml:"relationships,omitempty"`

	// Ref is the reference for graft.
	Ref *schema.Reference `yaml:"ref,omitempty"`

	// Refs is the proposed member set for replace, merge and subtract.
	Refs []schema.Reference `yaml:"refs,omitempty"`

	// Sideloaded marks graft and prune as nested in a resource write.
	Sideloaded bool `yaml:"sideloaded,omitempty"`

	// KeepAdded and KeepRemoved admit only candidates whose columns
	// equal the given values.
	KeepAdded   map[string]any `yaml:"keep_added,omitempty"`
	KeepRemoved map[string]any `yaml:"keep_removed,omitempty"`

	// Page request and query options for page steps.
	Number int64          `yaml:"number,omitempty"`
	Size   int64          `yaml:"size,omitempty"`
	Sort   string         `yaml:"sort,omitempty"`
	Filter map[string]any `yaml:"filter,omitempty"`

	// Expect validates the step outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected apierr code (NOT_FOUND, CONFLICT,
	// VALIDATION_FAILED). Empty expects success.
	Error string `yaml:"error,omitempty"`

	// Result is a subset of the step result that must match.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event with Op (and Type, Relation) exists
	// - "trace_order": ops appear in order
	// - "trace_count": Op appears exactly Count times
	// - "final_state": exactly one row of Table matches Where and Expect
	// - "row_count": Table has exactly Count rows matching Where
	Type string `yaml:"type"`

	Op       string   `yaml:"op,omitempty"`
	Resource string   `yaml:"resource,omitempty"`
	Relation string   `yaml:"relation,omitempty"`
	Ops      []string `yaml:"ops,omitempty"`

	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
	Count  int            `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

// Step operations that are not relationship operations.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDestroy = "destroy"
	OpShow    = "show"
	OpPage    = "page"
)

var ops = []string{
	OpCreate, OpUpdate, OpDestroy, OpShow, OpPage,
	"pluck", "graft", "prune", "fetch", "clear", "replace", "merge", "subtract",
}

// LoadScenario reads and parses a scenario YAML file.
// The schema path is resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema directory is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, seed := range s.Seed {
		if seed.Table == "" {
			return fmt.Errorf("seed[%d]: table is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	if !slices.Contains(ops, st.Op) {
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	if st.Type == "" {
		return fmt.Errorf("steps[%d]: type is required", index)
	}
	switch st.Op {
	case OpCreate, OpPage:
	default:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", index, st.Op)
		}
	}
	switch st.Op {
	case OpCreate, OpUpdate, OpDestroy, OpShow, OpPage:
		if st.Relation != "" {
			return fmt.Errorf("steps[%d]: relation is not allowed for %s", index, st.Op)
		}
	default:
		if st.Relation == "" {
			return fmt.Errorf("steps[%d]: relation is required for %s", index, st.Op)
		}
	}
	if st.Op == "graft" && st.Ref == nil {
		return fmt.Errorf("steps[%d]: ref is required for graft", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
