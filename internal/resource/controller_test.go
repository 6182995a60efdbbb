package resource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/model"
	"github.com/roach88/linkage/internal/testutil"
	"github.com/roach88/linkage/internal/validation"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newModels(t *testing.T) *model.Models {
	t.Helper()
	st, reg := testutil.BlogStore(t)
	return model.New(st, reg)
}

func controller(t *testing.T, m *model.Models, typeName string, opts ...Option) *Controller {
	t.Helper()
	return New(m.Registry().MustLookup(typeName), m, opts...)
}

func count(t *testing.T, c *Controller) int64 {
	t.Helper()
	n, err := c.Index().Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestShow(t *testing.T) {
	m := newModels(t)
	people := controller(t, m, "people")
	ctx := context.Background()

	key, _, err := people.Create(ctx, ir.IRObject{"name": ir.IRString("Ada")})
	require.NoError(t, err)

	rec, err := people.Show(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, key, rec.Key())
	assert.Equal(t, ir.IRString("Ada"), rec.Get("name"))

	_, err = people.Show(ctx, "2")
	assert.True(t, apierr.IsNotFound(err))

	_, err = people.Show(ctx, "ada")
	assert.True(t, apierr.IsNotFound(err), "uncoercible id")
}

func TestShowMany_DropsUnmatched(t *testing.T) {
	m := newModels(t)
	people := controller(t, m, "people")
	ctx := context.Background()
	for _, name := range []string{"Ada", "Grace", "Edsger"} {
		_, _, err := people.Create(ctx, ir.IRObject{"name": ir.IRString(name)})
		require.NoError(t, err)
	}

	recs, err := people.ShowMany(ctx, []string{"3", "1", "9", "x", "1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ir.IRInt(1), recs[0].Key())
	assert.Equal(t, ir.IRInt(3), recs[1].Key())

	recs, err = people.ShowMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWithCoercion(t *testing.T) {
	m := newModels(t)
	lower := func(raw string) (ir.IRValue, error) {
		if raw == "" {
			return nil, errors.New("empty id")
		}
		return ir.IRString(raw[:1]), nil
	}
	tags := controller(t, m, "tags", WithCoercion(lower))
	ctx := context.Background()

	_, _, err := tags.Create(ctx, ir.IRObject{"slug": ir.IRString("g")})
	require.NoError(t, err)

	rec, err := tags.Show(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("g"), rec.Key())

	_, err = tags.Show(ctx, "")
	assert.True(t, apierr.IsNotFound(err))
}

func TestCreate(t *testing.T) {
	m := newModels(t)
	posts := controller(t, m, "posts")
	ctx := context.Background()

	key, rec, err := posts.Create(ctx, ir.IRObject{"title": ir.IRString("")})
	require.NoError(t, err, "create does not validate")
	assert.Equal(t, ir.IRInt(1), key)
	assert.False(t, rec.IsNew())

	_, _, err = posts.Create(ctx, ir.IRObject{"title": ir.IRString("x"), "rating": ir.IRInt(5)})
	assert.ErrorIs(t, err, model.ErrUnknownField)
	assert.Equal(t, int64(1), count(t, posts))
}

func TestCreate_ConflictPersistsNothing(t *testing.T) {
	m := newModels(t)
	people := controller(t, m, "people")
	ctx := context.Background()

	_, _, err := people.Create(ctx, ir.IRObject{"name": ir.IRString("Ada"), "email": ir.IRString("ada@example.com")})
	require.NoError(t, err)

	_, _, err = people.Create(ctx, ir.IRObject{"name": ir.IRString("Imposter"), "email": ir.IRString("ada@example.com")})
	require.Error(t, err)
	assert.True(t, apierr.IsConflict(err))
	assert.Equal(t, int64(1), count(t, people))
}

func TestCreate_SettableFields(t *testing.T) {
	m := newModels(t)
	posts := controller(t, m, "posts", WithSettableFields("title"))
	ctx := context.Background()

	_, rec, err := posts.Create(ctx, ir.IRObject{
		"title":  ir.IRString("hello"),
		"draft":  ir.IRBool(true),
		"rating": ir.IRInt(5),
	})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("hello"), rec.Get("title"))
	assert.Equal(t, ir.IRNull{}, rec.Get("draft"))
}

func TestUpdate_IgnoresUnknown(t *testing.T) {
	m := newModels(t)
	posts := controller(t, m, "posts")
	ctx := context.Background()

	_, rec, err := posts.Create(ctx, ir.IRObject{"title": ir.IRString("hello")})
	require.NoError(t, err)

	require.NoError(t, posts.Update(ctx, rec, ir.IRObject{
		"title":  ir.IRString("bye"),
		"rating": ir.IRInt(5),
		"id":     ir.IRInt(40),
	}))

	got, err := posts.Show(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("bye"), got.Get("title"))
}

func TestUpdate_SettableFields(t *testing.T) {
	m := newModels(t)
	posts := controller(t, m, "posts", WithSettableFields("draft"))
	ctx := context.Background()

	_, rec, err := controller(t, m, "posts").Create(ctx, ir.IRObject{"title": ir.IRString("x"), "draft": ir.IRBool(false)})
	require.NoError(t, err)
	require.NoError(t, posts.Update(ctx, rec, ir.IRObject{"title": ir.IRString("y"), "draft": ir.IRBool(true)}))

	got, err := posts.Show(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(true), got.Get("draft"))
	assert.Equal(t, ir.IRString("x"), got.Get("title"))
}

func TestDestroy(t *testing.T) {
	m := newModels(t)
	people := controller(t, m, "people")
	posts := controller(t, m, "posts")
	ctx := context.Background()

	_, ada, err := people.Create(ctx, ir.IRObject{"name": ir.IRString("Ada")})
	require.NoError(t, err)
	_, post, err := posts.Create(ctx, ir.IRObject{"title": ir.IRString("x"), "author_id": ada.Key()})
	require.NoError(t, err)

	err = people.Destroy(ctx, ada)
	assert.True(t, apierr.IsConflict(err), "author still referenced")

	require.NoError(t, posts.Destroy(ctx, post))
	require.NoError(t, people.Destroy(ctx, ada))
	assert.Zero(t, count(t, people))

	assert.Error(t, people.Destroy(ctx, post), "wrong type")
}

func TestValidate(t *testing.T) {
	m := newModels(t)
	posts := controller(t, m, "posts")
	ctx := context.Background()

	_, rec, err := posts.Create(ctx, ir.IRObject{"title": ir.IRString(" "), "draft": ir.IRBool(false)})
	require.NoError(t, err)

	err = posts.Validate(rec)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeValidationFailed, apiErr.Code)
	require.Len(t, apiErr.Entries, 2)
	assert.Equal(t, "title can't be blank", apiErr.Entries[0].Message)
	assert.Equal(t, validation.CategoryAttributes, apiErr.Entries[0].Category)
	assert.Equal(t, "author", apiErr.Entries[1].KeyString())
	assert.Equal(t, validation.CategoryRelationships, apiErr.Entries[1].Category)

	require.NoError(t, posts.Update(ctx, rec, ir.IRObject{"title": ir.IRString("ok"), "draft": ir.IRBool(true)}))
	assert.NoError(t, posts.Validate(rec))
}

func TestSideloadedCreateRollsBack(t *testing.T) {
	m := newModels(t)
	posts := controller(t, m, "posts")
	tagsRel, err := posts.HasMany("tags")
	require.NoError(t, err)
	ctx := context.Background()

	err = m.Tx(ctx, func(ctx context.Context) error {
		_, post, err := posts.Create(ctx, ir.IRObject{"title": ir.IRString("hello")})
		if err != nil {
			return err
		}
		_, err = tagsRel.Merge(ctx, post, refs("tags", "missing"))
		return err
	})
	assert.True(t, apierr.IsNotFound(err))
	assert.Zero(t, count(t, posts))
}
