package layout

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func TestInstanceDataEncoding(t *testing.T) {
	d := InstanceData{
		Position:     [2]float32{1, 2},
		Size:         [2]float32{3, 4},
		Colour:       [4]float32{0.1, 0.2, 0.3, 0.4},
		UVRect:       [4]float32{0, 0, 1, 1},
		Rotation:     0.5,
		TextureIndex: 7,
	}
	b := make([]byte, InstanceDataSize)
	for i := range b {
		b[i] = 0xAA
	}
	d.Put(b)

	assert.Equal(t, float32(1), f32At(b, 0))
	assert.Equal(t, float32(4), f32At(b, 12))
	assert.Equal(t, float32(0.3), f32At(b, 24))
	assert.Equal(t, float32(1), f32At(b, 44))
	assert.Equal(t, float32(0.5), f32At(b, 48))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[52:]))
	assert.Equal(t, make([]byte, 8), b[56:64], "padding must be zeroed")
}

func TestTextDataEncoding(t *testing.T) {
	d := TextData{FontIndex: 2, PxRange: 4, Colour: [4]float32{1, 1, 1, 1}}
	b := EncodeText([]TextData{d, d})
	require.Len(t, b, 2*TextDataSize)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[TextDataSize+48:]))
	assert.Equal(t, float32(4), f32At(b, 52))
	assert.Equal(t, make([]byte, 8), b[56:64])
}

func TestParticleRoundTrip(t *testing.T) {
	p := ParticleData{
		Position: [2]float32{10, 20},
		Velocity: [2]float32{-1, 2},
		Colour:   [4]float32{1, 0.5, 0.25, 1},
		Size:     6,
		Age:      0.25,
		Lifetime: 1.5,
	}
	b := EncodeParticles([]ParticleData{p})
	require.Len(t, b, ParticleDataSize)
	assert.Equal(t, float32(6), f32At(b, 32))
	assert.Equal(t, float32(1.5), f32At(b, 40))
	assert.Equal(t, p, ReadParticle(b))
}

func TestUniformEncoding(t *testing.T) {
	u := UniformData{ScreenSize: [2]float32{800, 600}, Time: 2}
	u.ViewProjection[0] = 1
	u.ViewProjection[15] = 1
	b := make([]byte, UniformDataSize)
	u.Put(b)
	assert.Equal(t, float32(1), f32At(b, 0))
	assert.Equal(t, float32(1), f32At(b, 60))
	assert.Equal(t, float32(800), f32At(b, 64))
	assert.Equal(t, float32(2), f32At(b, 72))

	cu := ComputeUniform{DeltaTime: 1.0 / 60, ParticleCount: 3, Gravity: [2]float32{0, 9.8}}
	cb := make([]byte, ComputeUniformSize)
	cu.Put(cb)
	assert.Equal(t, cu, ReadComputeUniform(cb))
}

func TestQuadGeometry(t *testing.T) {
	assert.Len(t, EncodeVertices(QuadVertices), 4*VertexSize)
	idx := EncodeIndices(QuadIndices)
	require.Len(t, idx, 12)
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(idx[4:]))
}
