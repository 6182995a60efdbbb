package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/linkage/internal/schema"
)

// createTestStore opens a fresh database file under t.TempDir().
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testRegistry is a minimal people/posts/tags schema.
func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(
		schema.NewType("people").
			Attr(schema.Attribute{Name: "name", NotNull: true}).
			Attr(schema.Attribute{Name: "email", Unique: true}),
		schema.NewType("tags").KeyedBy("slug", schema.KindString),
		schema.NewType("posts").
			Attr(schema.Attribute{Name: "title"}).
			Attr(schema.Attribute{Name: "draft", Kind: schema.KindBool}).
			HasOne("author", "people", "author_id").
			ManyToMany("tags", "tags", schema.JoinTable{Table: "posts_tags", OwnerKey: "post_id", MemberKey: "tag_slug"}),
	))
	require.NoError(t, reg.Validate())
	return reg
}

// migratedStore is createTestStore plus testRegistry tables.
func migratedStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := createTestStore(t, opts...)
	require.NoError(t, s.Migrate(context.Background(), testRegistry(t)))
	return s
}
