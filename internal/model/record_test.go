package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/testutil"
	"github.com/roach88/linkage/internal/validation"
)

func newModels(t *testing.T) *Models {
	t.Helper()
	st, reg := testutil.BlogStore(t)
	return New(st, reg)
}

// create saves a record of typeName without validation.
func create(t *testing.T, m *Models, typeName string, attrs ir.IRObject) *Record {
	t.Helper()
	rec := m.NewRecord(m.Registry().MustLookup(typeName))
	require.NoError(t, rec.Set(attrs))
	require.NoError(t, rec.Save(context.Background(), SaveOptions{}))
	return rec
}

func TestSave_InsertAssignsKey(t *testing.T) {
	m := newModels(t)
	rec := create(t, m, "people", ir.IRObject{"name": ir.IRString("Ada")})

	assert.False(t, rec.IsNew())
	assert.Equal(t, ir.IRInt(1), rec.Key())
	assert.Empty(t, rec.Changed())
}

func TestSave_StringKeyRequired(t *testing.T) {
	m := newModels(t)
	rec := m.NewRecord(m.Registry().MustLookup("tags"))

	err := rec.Save(context.Background(), SaveOptions{})
	assert.ErrorIs(t, err, ErrMissingKey)

	require.NoError(t, rec.Set(ir.IRObject{"slug": ir.IRString("go")}))
	require.NoError(t, rec.Save(context.Background(), SaveOptions{}))
	assert.Equal(t, ir.IRString("go"), rec.Key())
}

func TestSave_BoolRoundTrip(t *testing.T) {
	m := newModels(t)
	ctx := context.Background()
	create(t, m, "tags", ir.IRObject{"slug": ir.IRString("go"), "locked": ir.IRBool(true)})

	ds, err := m.Dataset("tags")
	require.NoError(t, err)
	rec, err := ds.MustWithPK(ctx, ir.IRString("go"))
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(true), rec.Get("locked"))
}

func TestSave_UniqueViolationIsConflict(t *testing.T) {
	m := newModels(t)
	ctx := context.Background()
	create(t, m, "people", ir.IRObject{"name": ir.IRString("Ada"), "email": ir.IRString("ada@x")})

	dup := m.NewRecord(m.Registry().MustLookup("people"))
	require.NoError(t, dup.Set(ir.IRObject{"name": ir.IRString("Other"), "email": ir.IRString("ada@x")}))
	err := dup.Save(ctx, SaveOptions{})
	require.Error(t, err)
	assert.True(t, apierr.IsConflict(err))
	assert.True(t, dup.IsNew())

	ds, _ := m.Dataset("people")
	n, err := ds.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSet_RejectsUnknownAndKeyAfterSave(t *testing.T) {
	m := newModels(t)
	rec := create(t, m, "people", ir.IRObject{"name": ir.IRString("Ada")})

	err := rec.Set(ir.IRObject{"name": ir.IRString("B"), "shoe_size": ir.IRInt(9)})
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, ir.IRString("Ada"), rec.Get("name"), "nothing assigned on rejection")

	assert.ErrorIs(t, rec.Set(ir.IRObject{"id": ir.IRInt(5)}), ErrUnknownField)
}

func TestSetFields_AllowList(t *testing.T) {
	m := newModels(t)
	rec := m.NewRecord(m.Registry().MustLookup("posts"))

	rec.SetFields(ir.IRObject{
		"title":   ir.IRString("Hello"),
		"draft":   ir.IRBool(true),
		"unknown": ir.IRInt(1),
	}, []string{"title", "author_id", "unknown"})

	assert.Equal(t, ir.IRString("Hello"), rec.Get("title"))
	assert.Equal(t, ir.IRNull{}, rec.Get("draft"), "not in allow-list")
	assert.Equal(t, []string{"title"}, rec.Changed())
}

func TestSaveChanges_WritesOnlyChanged(t *testing.T) {
	m := newModels(t)
	ctx := context.Background()
	rec := create(t, m, "posts", ir.IRObject{"title": ir.IRString("a"), "draft": ir.IRBool(true)})

	// Another copy changes draft behind rec's back.
	ds, _ := m.Dataset("posts")
	other, err := ds.MustWithPK(ctx, rec.Key())
	require.NoError(t, err)
	require.NoError(t, other.Set(ir.IRObject{"draft": ir.IRBool(false)}))
	require.NoError(t, other.SaveChanges(ctx, SaveOptions{}))

	require.NoError(t, rec.Set(ir.IRObject{"title": ir.IRString("b")}))
	assert.Equal(t, []string{"title"}, rec.Changed())
	require.NoError(t, rec.SaveChanges(ctx, SaveOptions{}))

	require.NoError(t, rec.Reload(ctx))
	assert.Equal(t, ir.IRString("b"), rec.Get("title"))
	assert.Equal(t, ir.IRBool(false), rec.Get("draft"))

	// Unchanged value is not a change.
	require.NoError(t, rec.Set(ir.IRObject{"title": ir.IRString("b")}))
	assert.Empty(t, rec.Changed())
}

func TestValidate(t *testing.T) {
	m := newModels(t)
	rec := m.NewRecord(m.Registry().MustLookup("posts"))
	require.NoError(t, rec.Set(ir.IRObject{
		"title": ir.IRString("  "),
		"draft": ir.IRBool(false),
	}))

	errs := rec.Validate()
	assert.Equal(t, []string{"title", "author_id"}, errs.Fields())
	assert.Equal(t, []string{"can't be blank"}, errs.On("title"))

	err := rec.Check()
	require.Error(t, err)
	assert.True(t, apierr.IsValidationFailed(err))
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	require.Len(t, ae.Entries, 2)
	assert.Equal(t, "title can't be blank", ae.Entries[0].Message)
	assert.Equal(t, validation.CategoryAttributes, ae.Entries[0].Category)
	assert.Equal(t, "author is required to publish", ae.Entries[1].Message)
	assert.Equal(t, validation.CategoryRelationships, ae.Entries[1].Category)
}

func TestValidate_KindAndPresence(t *testing.T) {
	m := newModels(t)
	rec := m.NewRecord(m.Registry().MustLookup("posts"))
	require.NoError(t, rec.Set(ir.IRObject{"draft": ir.IRString("yes")}))

	errs := rec.Validate()
	assert.Equal(t, []string{"is not present"}, errs.On("title"))
	assert.Equal(t, []string{"is not a boolean"}, errs.On("draft"))
}

func TestSave_ValidateOption(t *testing.T) {
	m := newModels(t)
	ctx := context.Background()
	rec := m.NewRecord(m.Registry().MustLookup("people"))
	require.NoError(t, rec.Set(ir.IRObject{"name": ir.IRString("")}))

	err := rec.Save(ctx, SaveOptions{Validate: true})
	assert.True(t, apierr.IsValidationFailed(err))
	assert.True(t, rec.IsNew())

	require.NoError(t, rec.Save(ctx, SaveOptions{}), "validation is skipped unless asked for")
}

func TestDestroy(t *testing.T) {
	m := newModels(t)
	ctx := context.Background()
	author := create(t, m, "people", ir.IRObject{"name": ir.IRString("Ada")})
	post := create(t, m, "posts", ir.IRObject{"title": ir.IRString("x"), "author_id": author.Key()})

	err := author.Destroy(ctx)
	require.Error(t, err)
	assert.True(t, apierr.IsConflict(err), "referenced row is restricted")

	require.NoError(t, post.Destroy(ctx))
	require.NoError(t, author.Destroy(ctx))
	assert.True(t, author.IsNew())

	ghost := create(t, m, "people", ir.IRObject{"name": ir.IRString("G")})
	require.NoError(t, ghost.Destroy(ctx))
	err = ghost.Reload(ctx)
	assert.True(t, apierr.IsNotFound(err))
}

func TestLock(t *testing.T) {
	m := newModels(t)
	ctx := context.Background()
	post := create(t, m, "posts", ir.IRObject{"title": ir.IRString("x")})

	assert.ErrorIs(t, post.Lock(ctx), ErrNoTransaction)

	require.NoError(t, m.Tx(ctx, func(ctx context.Context) error {
		return post.Lock(ctx)
	}))

	gone := create(t, m, "posts", ir.IRObject{"title": ir.IRString("y")})
	require.NoError(t, gone.Destroy(ctx))
	err := m.Tx(ctx, func(ctx context.Context) error {
		return gone.Lock(ctx)
	})
	assert.True(t, apierr.IsNotFound(err))
}
