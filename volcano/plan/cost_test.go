package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalarCost(t *testing.T) {
	inf := ScalarCosts.Infinite()
	ten := ScalarCosts.Make(10)
	four := ScalarCosts.Make(4)

	assert.True(t, four.Less(ten))
	assert.False(t, ten.Less(four))
	assert.True(t, ten.Less(inf))
	assert.False(t, inf.Less(inf))
	assert.True(t, inf.LessOrEqual(inf))
	assert.True(t, ten.LessOrEqual(ten))

	assert.True(t, ten.Plus(inf).IsInfinite())
	assert.Equal(t, 14.0, ten.Plus(four).Value())
	assert.Equal(t, 9.0, ten.MultiplyBy(0.9).Value())
	assert.True(t, inf.MultiplyBy(0.9).IsInfinite())

	assert.Equal(t, "{10}", ten.String())
	assert.Equal(t, "{inf}", inf.String())
}
