package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenSpaceMapsCornersToClipSpace(t *testing.T) {
	p := NewMat4ScreenSpace(800, 600)

	tl := p.TransformPoint(NewVec2(0, 0))
	br := p.TransformPoint(NewVec2(800, 600))
	c := p.TransformPoint(NewVec2(400, 300))

	assert.True(t, tl.Compare(NewVec2(-1, -1), 1e-6), "top left %v", tl)
	assert.True(t, br.Compare(NewVec2(1, 1), 1e-6), "bottom right %v", br)
	assert.True(t, c.Compare(NewVec2(0, 0), 1e-6), "centre %v", c)
}

func TestMat4IdentityMul(t *testing.T) {
	tr := NewMat4Translation(3, 4)
	assert.Equal(t, tr, NewMat4Identity().Mul(tr))
	assert.Equal(t, tr, tr.Mul(NewMat4Identity()))
}

func TestClampAndDivCeil(t *testing.T) {
	assert.Equal(t, 5, Clamp(9, 0, 5))
	assert.Equal(t, float32(0), Clamp(float32(-1), 0, 1))
	assert.Equal(t, uint32(4), DivCeil(uint32(200), uint32(64)))
	assert.Equal(t, uint32(1), DivCeil(uint32(64), uint32(64)))
	assert.Equal(t, uint32(0), DivCeil(uint32(0), uint32(64)))
}

func TestRandomInRange(t *testing.T) {
	r := NewRandom(42)
	for i := 0; i < 100; i++ {
		f := r.FloatInRange(-2, 3)
		assert.GreaterOrEqual(t, f, float32(-2))
		assert.Less(t, f, float32(3))
		n := r.IntInRange(1, 6)
		assert.GreaterOrEqual(t, n, int32(1))
		assert.LessOrEqual(t, n, int32(6))
	}
}
