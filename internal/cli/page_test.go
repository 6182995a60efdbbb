package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/pagination"
	"github.com/roach88/linkage/internal/queryir"
	"github.com/roach88/linkage/internal/store"
)

// blogDB migrates the blog schema into a temp database and inserts five
// posts and three tags.
func blogDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "blog.db")
	_, err := execute(t, "", "migrate", blogSchema, "--db", db)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := st.Insert(ctx, queryir.Insert{Into: "posts", Values: ir.IRObject{
			"id": ir.IRInt(i), "title": ir.IRString(fmt.Sprintf("post %d", i)), "draft": ir.IRBool(true),
		}})
		require.NoError(t, err)
	}
	for _, tag := range []struct {
		slug   string
		locked bool
	}{{"go", true}, {"sql", false}, {"cue", false}} {
		_, err := st.Insert(ctx, queryir.Insert{Into: "tags", Values: ir.IRObject{
			"slug": ir.IRString(tag.slug), "locked": ir.IRBool(tag.locked),
		}})
		require.NoError(t, err)
	}
	return db
}

// pageResponse mirrors PageResult with plain JSON records.
type pageResponse struct {
	Status string `json:"status"`
	Data   struct {
		Records     []map[string]any `json:"records"`
		Number      int64            `json:"number"`
		Size        int64            `json:"size"`
		RecordCount int64            `json:"record_count"`
		PageCount   int64            `json:"page_count"`
		Links       pagination.Links `json:"links"`
	} `json:"data"`
}

func page(t *testing.T, config string, args ...string) pageResponse {
	t.Helper()
	out, err := execute(t, config, append([]string{"--format", "json", "page"}, args...)...)
	require.NoError(t, err)
	var resp pageResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp
}

func titles(recs []map[string]any) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = fmt.Sprint(r["title"])
	}
	return out
}

func TestPage(t *testing.T) {
	db := blogDB(t)

	resp := page(t, "", "posts", "--schema", blogSchema, "--db", db, "--size", "2", "--number", "2", "--sort", "-id")
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(2), resp.Data.Number)
	assert.Equal(t, int64(3), resp.Data.PageCount)
	assert.Equal(t, int64(5), resp.Data.RecordCount)
	assert.Equal(t, []string{"post 3", "post 2"}, titles(resp.Data.Records))
	assert.Contains(t, resp.Data.Links, "next")
	assert.Contains(t, resp.Data.Links, "prev")
	assert.Equal(t, int64(3), resp.Data.Links["last"].Number)
}

func TestPageClampsAndUsesConfig(t *testing.T) {
	db := blogDB(t)
	cfg := "pagination:\n  size: 4\n  max_size: 4\n"

	resp := page(t, cfg, "posts", "--schema", blogSchema, "--db", db, "--number", "99", "--size", "50")
	assert.Equal(t, int64(4), resp.Data.Size, "capped at max_size")
	assert.Equal(t, int64(2), resp.Data.Number, "clamped to the last page")
	assert.Equal(t, []string{"post 5"}, titles(resp.Data.Records))
	assert.NotContains(t, resp.Data.Links, "next")
}

func TestPageFilter(t *testing.T) {
	db := blogDB(t)

	resp := page(t, "", "tags", "--schema", blogSchema, "--db", db, "--filter", "locked=false", "--sort", "slug")
	require.Len(t, resp.Data.Records, 2)
	assert.Equal(t, "cue", fmt.Sprint(resp.Data.Records[0]["slug"]))

	resp = page(t, "", "tags", "--schema", blogSchema, "--db", db, "--filter", "slug=go,sql", "--sort", "-slug")
	require.Len(t, resp.Data.Records, 2)
	assert.Equal(t, "sql", fmt.Sprint(resp.Data.Records[0]["slug"]))
}

func TestPageText(t *testing.T) {
	db := blogDB(t)

	out, err := execute(t, "", "page", "tags", "--schema", blogSchema, "--db", db, "--size", "1", "--sort", "slug")
	require.NoError(t, err)
	assert.Contains(t, out, `{"locked":false,"slug":"cue"}`)
	assert.Contains(t, out, "Page 1 of 3 (3 tags)")
	assert.Contains(t, out, "next  number=2 size=1")
	assert.NotContains(t, out, "prev")
}

func TestPageErrors(t *testing.T) {
	db := blogDB(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown type", []string{"ghosts"}, "unknown resource type"},
		{"unknown filter field", []string{"posts", "--filter", "nope=1"}, "invalid --filter"},
		{"malformed filter", []string{"posts", "--filter", "title"}, "expected field=value"},
		{"unknown sort field", []string{"posts", "--sort", "nope"}, "invalid --sort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"page"}, tt.args...)
			_, err := execute(t, "", append(args, "--schema", blogSchema, "--db", db)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"draft=true", "id=1,2", "author_id=null", "title=Hello"})
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{
		"draft":     ir.IRBool(true),
		"id":        ir.IRArray{ir.IRInt(1), ir.IRInt(2)},
		"author_id": ir.IRNull{},
		"title":     ir.IRString("Hello"),
	}, got)

	_, err = parseFilters([]string{"=1"})
	assert.Error(t, err)
	_, err = parseFilters([]string{"rating=1.5"})
	assert.Error(t, err)
}
