package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/model"
)

func TestSide(t *testing.T) {
	never := func(context.Context, *model.Record) bool { return false }

	assert.False(t, Skip().Active())
	assert.False(t, Side{}.Active(), "zero Side is Skip")
	assert.True(t, Always().Active())
	assert.True(t, When(never).Active())

	assert.True(t, Always().admits(context.Background(), nil))
	assert.False(t, When(never).admits(context.Background(), nil))
	assert.False(t, Skip().admits(context.Background(), nil))
	assert.Equal(t, "always", When(nil).String())
}

func TestModes(t *testing.T) {
	current := []ir.IRValue{ir.IRInt(3), ir.IRInt(1), ir.IRInt(2)}
	desired := []ir.IRValue{ir.IRInt(2), ir.IRInt(4)}

	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(3)}, AddRemove().removals(current, desired))
	assert.Equal(t, []ir.IRValue{ir.IRInt(2)}, RemovePresent().removals(current, desired))
	assert.False(t, AddMissing().Remove.Active())
	assert.Equal(t, []ir.IRValue{ir.IRInt(4)}, difference(desired, current))
}
