package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/schema"
	"github.com/roach88/linkage/internal/store"
)

func blogSeed() []SeedTable {
	return []SeedTable{
		{Table: "people", Rows: []map[string]any{{"id": 1, "name": "Ada"}}},
		{Table: "tags", Rows: []map[string]any{
			{"slug": "go", "locked": true},
			{"slug": "sql", "locked": false},
		}},
		{Table: "posts", Rows: []map[string]any{{"id": 1, "title": "Hello", "draft": false, "author_id": 1}}},
		{Table: "posts_tags", Rows: []map[string]any{{"post_id": 1, "tag_slug": "go"}}},
	}
}

func refs(typ string, ids ...string) []schema.Reference {
	out := make([]schema.Reference, len(ids))
	for i, id := range ids {
		out[i] = schema.Reference{Type: typ, ID: id}
	}
	return out
}

func relationships(t *testing.T, src string) map[string]yaml.Node {
	t.Helper()
	var rels map[string]yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &rels))
	return rels
}

func run(t *testing.T, steps []Step, assertions ...Assertion) *Result {
	t.Helper()
	result, err := Run(context.Background(), &Scenario{
		Name:        t.Name(),
		Description: "test",
		Schema:      blogSchema,
		Seed:        blogSeed(),
		Steps:       steps,
		Assertions:  assertions,
	})
	require.NoError(t, err)
	return result
}

func TestRun_Scenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_PureDriver(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/replace_tags.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, WithDriver(store.DriverPure))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	result := run(t, []Step{
		{Op: "merge", Type: "posts", ID: "1", Relation: "tags",
			Expect: &Expect{Error: "NOT_FOUND"}},
		{Op: "fetch", Type: "posts", ID: "1", Relation: "tags",
			Expect: &Expect{Result: map[string]any{"ids": []any{"sql"}}}},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected NOT_FOUND, got ok")
	assert.Contains(t, result.Errors[1], `result "ids" = ["go"], expected ["sql"]`)
}

func TestRun_KeepAdded(t *testing.T) {
	result := run(t, []Step{
		{Op: "replace", Type: "posts", ID: "1", Relation: "tags",
			Refs:      refs("tags", "sql"),
			KeepAdded: map[string]any{"locked": false}, KeepRemoved: map[string]any{"locked": false}},
	})
	require.True(t, result.Pass, "errors: %v", result.Errors)

	res := result.Trace[0].Result
	assert.Equal(t, ir.IRArray{ir.IRString("sql")}, res["added"])
	assert.Empty(t, res["removed"])
	assert.Equal(t, ir.IRArray{ir.IRString("go")}, res["skipped"], "locked tag stays")
}

func TestRun_DestroyConflict(t *testing.T) {
	result := run(t, []Step{
		{Op: "destroy", Type: "people", ID: "1", Expect: &Expect{Error: "CONFLICT"}},
		{Op: "show", Type: "people", ID: "1",
			Expect: &Expect{Result: map[string]any{"attributes": map[string]any{"id": 1, "name": "Ada", "email": nil}}}},
	}, Assertion{Type: AssertRowCount, Table: "people", Count: 1})

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "CONFLICT", result.Trace[0].Outcome)
	assert.Nil(t, result.Trace[0].Result)
}

func TestRun_UpdateSideloads(t *testing.T) {
	result := run(t, []Step{
		{Op: "update", Type: "posts", ID: "1",
			Attributes:    map[string]any{"title": "Renamed", "draft": true},
			Relationships: relationships(t, "author: null\ntags: [{type: tags, id: sql}]\n")},
		{Op: "pluck", Type: "posts", ID: "1", Relation: "author",
			Expect: &Expect{Result: map[string]any{"id": nil}}},
	},
		Assertion{Type: AssertFinalState, Table: "posts", Where: map[string]any{"id": 1},
			Expect: map[string]any{"title": "Renamed", "author_id": nil, "draft": true}},
		Assertion{Type: AssertFinalState, Table: "posts_tags", Where: map[string]any{"post_id": 1},
			Expect: map[string]any{"tag_slug": "sql"}},
	)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UpdateRollsBackInvalidSideload(t *testing.T) {
	result := run(t, []Step{
		{Op: "update", Type: "posts", ID: "1",
			Attributes:    map[string]any{"title": "Renamed"},
			Relationships: relationships(t, "author: null\n"),
			Expect:        &Expect{Error: "VALIDATION_FAILED"}},
	}, Assertion{Type: AssertFinalState, Table: "posts", Where: map[string]any{"id": 1},
		Expect: map[string]any{"title": "Hello", "author_id": 1}})

	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ClearAndPageClamp(t *testing.T) {
	result := run(t, []Step{
		{Op: "clear", Type: "posts", ID: "1", Relation: "tags",
			Expect: &Expect{Result: map[string]any{"ids": []any{}}}},
		{Op: "page", Type: "tags", Number: 99, Size: 1, Filter: map[string]any{"locked": []any{true, false}}},
	})
	require.True(t, result.Pass, "errors: %v", result.Errors)

	page := result.Trace[1].Result
	assert.Equal(t, ir.IRArray{ir.IRString("sql")}, page["ids"], "clamped to the last page")
	assert.Equal(t, ir.IRInt(2), page["page_count"])
	links := page["links"].(ir.IRObject)
	assert.NotContains(t, links, "next")
	assert.Contains(t, links, "prev")
}

func TestRun_PaginationDefaults(t *testing.T) {
	result, err := Run(context.Background(), &Scenario{
		Name:        "defaults",
		Description: "test",
		Schema:      blogSchema,
		Pagination:  &PaginationDefaults{Size: 5, MaxSize: 1},
		Seed:        blogSeed(),
		Steps:       []Step{{Op: "page", Type: "tags"}},
	})
	require.NoError(t, err)

	page := result.Trace[0].Result
	assert.Equal(t, ir.IRArray{ir.IRString("go")}, page["ids"], "size capped at max_size")
}

func TestRun_Aborts(t *testing.T) {
	tests := map[string]Step{
		"unknown type":     {Op: "show", Type: "ghosts", ID: "1"},
		"unknown relation": {Op: "fetch", Type: "posts", ID: "1", Relation: "likes"},
		"wrong kind":       {Op: "pluck", Type: "posts", ID: "1", Relation: "tags"},
		"unknown field":    {Op: "create", Type: "posts", Attributes: map[string]any{"nope": 1}},
	}
	for name, step := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Run(context.Background(), &Scenario{
				Name: "abort", Description: "test", Schema: blogSchema, Seed: blogSeed(), Steps: []Step{step},
			})
			assert.Error(t, err)
		})
	}
}

func TestRun_BadSchema(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{
		Name: "bad", Description: "test", Schema: t.TempDir(), Steps: []Step{{Op: "page", Type: "posts"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}
