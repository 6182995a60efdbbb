package apierr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/validation"
)

func TestIsHelpersSeeThroughWrapping(t *testing.T) {
	nf := fmt.Errorf("reconcile tags: %w", NotFound("tags", ir.IRInt(9)))
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsConflict(nf))
	assert.False(t, IsValidationFailed(nf))

	cf := fmt.Errorf("create: %w", Conflict("people", errors.New("UNIQUE constraint failed: people.email")))
	assert.True(t, IsConflict(cf))

	vf := ValidationFailed("posts", []validation.Entry{{Message: "stale"}})
	assert.True(t, IsValidationFailed(vf))

	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: no row with key 9 (type=tags)", NotFound("tags", ir.IRInt(9)).Error())
	assert.Equal(t, "NOT_FOUND: nothing here", NotFoundf("", "nothing %s", "here").Error())
}

func TestConflictUnwraps(t *testing.T) {
	err := Conflict("people", sql.ErrTxDone)
	assert.ErrorIs(t, err, sql.ErrTxDone)
}
