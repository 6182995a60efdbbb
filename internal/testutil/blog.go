package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/schema"
	"github.com/roach88/linkage/internal/store"
	"github.com/roach88/linkage/internal/validation"
)

// BlogRegistry returns the schema shared by package tests:
//
//	people   (id, name NOT NULL, email UNIQUE)
//	tags     (slug TEXT key, locked bool)
//	posts    (id, title NOT NULL, draft bool, author -> people,
//	          tags via posts_tags, comments via comments.post_id)
//	comments (id, body, post -> posts)
//
// Post titles must not be blank, and a published post needs an author.
func BlogRegistry(t testing.TB) *schema.Registry {
	t.Helper()

	notBlank := func(v ir.IRValue) []string {
		if s, ok := v.(ir.IRString); ok && strings.TrimSpace(string(s)) == "" {
			return []string{"can't be blank"}
		}
		return nil
	}

	reg := schema.NewRegistry()
	err := reg.Register(
		schema.NewType("people").
			Attr(schema.Attribute{Name: "name", NotNull: true, Check: notBlank}).
			Attr(schema.Attribute{Name: "email", Unique: true}),
		schema.NewType("tags").
			KeyedBy("slug", schema.KindString).
			Attr(schema.Attribute{Name: "locked", Kind: schema.KindBool}),
		schema.NewType("posts").
			Attr(schema.Attribute{Name: "title", NotNull: true, Check: notBlank}).
			Attr(schema.Attribute{Name: "draft", Kind: schema.KindBool}).
			HasOne("author", "people", "author_id").
			ManyToMany("tags", "tags", schema.JoinTable{Table: "posts_tags", OwnerKey: "post_id", MemberKey: "tag_slug"}).
			HasMany("comments", "comments", "post_id").
			Validates(func(inst schema.Instance, errs *validation.Errors) {
				if inst.Get("draft") == ir.IRBool(false) && ir.IsNull(inst.Get("author_id")) {
					errs.Add("author_id", "is required to publish")
				}
			}),
		schema.NewType("comments").
			Attr(schema.Attribute{Name: "body"}).
			HasOne("post", "posts", "post_id"),
	)
	require.NoError(t, err)
	require.NoError(t, reg.Validate())
	return reg
}

// BlogStore opens a migrated blog database under t.TempDir().
func BlogStore(t testing.TB, opts ...store.Option) (*store.Store, *schema.Registry) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "blog.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := BlogRegistry(t)
	require.NoError(t, st.Migrate(context.Background(), reg))
	return st, reg
}
