package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/linkage/internal/ir"
)

func TestQueryTypesAreSealed(t *testing.T) {
	var _ Query = Select{}
	var _ Query = Count{}
	var _ Query = Insert{}
	var _ Query = Update{}
	var _ Query = Delete{}
	var _ Query = Lock{}

	var _ Predicate = Equals{}
	var _ Predicate = In{}
	var _ Predicate = InQuery{}
	var _ Predicate = IsNull{}
	var _ Predicate = And{}
}

func TestConj(t *testing.T) {
	a := Equals{Field: "a", Value: ir.IRInt(1)}
	b := IsNull{Field: "b"}
	c := In{Field: "c", Values: []ir.IRValue{ir.IRInt(2)}}

	assert.Nil(t, Conj())
	assert.Nil(t, Conj(nil, nil))
	assert.Equal(t, a, Conj(nil, a))
	assert.Equal(t, And{Predicates: []Predicate{a, b}}, Conj(a, b))
	assert.Equal(t, And{Predicates: []Predicate{a, b, c}}, Conj(And{Predicates: []Predicate{a, b}}, c))
	assert.Equal(t, And{Predicates: []Predicate{c, a}}, Conj(c, &And{Predicates: []Predicate{a}}))
}
