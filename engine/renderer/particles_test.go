package renderer

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/layout"
	"github.com/stretchr/testify/assert"
)

func TestStepParticle(t *testing.T) {
	p := layout.ParticleData{
		Velocity: [2]float32{10, 0},
		Colour:   [4]float32{1, 1, 1, 1},
		Size:     4,
		Lifetime: 1,
	}
	got := StepParticle(p, 0.5, [2]float32{0, 100})
	assert.Equal(t, [2]float32{5, 12.5}, got.Position)
	assert.Equal(t, [2]float32{10, 50}, got.Velocity)
	assert.Equal(t, float32(0.5), got.Colour[3])
	assert.Equal(t, float32(0.5), got.Age)
	assert.Equal(t, float32(4), got.Size)
}

func TestParticlePoolExpiresAtLifetime(t *testing.T) {
	pool := NewParticlePool(2)
	dropped := pool.Spawn([]layout.ParticleData{
		{Colour: [4]float32{1, 1, 1, 1}, Size: 4, Lifetime: 2},
		{Colour: [4]float32{1, 1, 1, 1}, Size: 4, Lifetime: 3},
		{Colour: [4]float32{1, 1, 1, 1}, Size: 4, Lifetime: 3},
	})
	assert.Equal(t, 1, dropped)
	assert.Zero(t, pool.Free())

	for i := 0; i < 119; i++ {
		pool.Advance(dt)
	}
	assert.Equal(t, 2, pool.Len())
	last := StepParticle(pool.Particles()[0], dt, [2]float32{})
	assert.Zero(t, last.Size)
	assert.Zero(t, last.Colour[3])

	pool.Advance(dt)
	if assert.Equal(t, 1, pool.Len()) {
		assert.Equal(t, float32(3), pool.Particles()[0].Lifetime)
	}
	assert.Equal(t, 1, pool.Free())
}
