package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorDivAndMod(t *testing.T) {
	cases := []struct {
		a, n, div, mod int
	}{
		{0, 32, 0, 0},
		{31, 32, 0, 31},
		{32, 32, 1, 0},
		{-1, 32, -1, 31},
		{-32, 32, -1, 0},
		{-33, 32, -2, 31},
	}

	for _, c := range cases {
		assert.Equal(t, c.div, FloorDiv(c.a, c.n), "FloorDiv(%d,%d)", c.a, c.n)
		assert.Equal(t, c.mod, FloorMod(c.a, c.n), "FloorMod(%d,%d)", c.a, c.n)
		assert.Equal(t, c.a, FloorDiv(c.a, c.n)*c.n+FloorMod(c.a, c.n))
	}
}

func TestVec3FloatFloor(t *testing.T) {
	v := Vec3Float{X: -0.5, Y: 1.9, Z: -32.0}
	assert.Equal(t, Vec3{X: -1, Y: 1, Z: -32}, v.Floor())
}

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Splat(2)

	assert.Equal(t, Vec3{X: 3, Y: 4, Z: 5}, a.Add(b))
	assert.Equal(t, Vec3{X: -1, Y: 0, Z: 1}, a.Sub(b))
	assert.Equal(t, Vec3{X: 2, Y: 4, Z: 6}, a.Scale(2))
	assert.True(t, a.Equals(Vec3{X: 1, Y: 2, Z: 3}))
	assert.Equal(t, Vec3{X: -1, Y: 0, Z: 0}, Vec3{X: -5, Y: 3, Z: 31}.FloorDiv(32))
}
