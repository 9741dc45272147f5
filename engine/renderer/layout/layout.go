// Package layout defines the fixed-layout records written into mapped GPU
// buffers and their little-endian byte encodings. Every record's size and
// field offsets are checked at compile time against the shader layouts.
package layout

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Vertex is one corner of the unit quad shared by every instanced draw.
type Vertex struct {
	Position [2]float32
	UV       [2]float32
}

// InstanceData describes one textured quad.
type InstanceData struct {
	Position     [2]float32
	Size         [2]float32
	Colour       [4]float32
	UVRect       [4]float32 // u0, v0, u1, v1
	Rotation     float32
	TextureIndex uint32
	_            [2]uint32
}

// TextData describes one glyph quad sampled from an MSDF atlas.
type TextData struct {
	Position  [2]float32
	Size      [2]float32
	Colour    [4]float32
	UVRect    [4]float32
	FontIndex uint32
	PxRange   float32
	_         [2]uint32
}

// ParticleData is both the storage record read by the particle compute
// kernel and the instance record read by the particle vertex shader.
type ParticleData struct {
	Position [2]float32
	Velocity [2]float32
	Colour   [4]float32
	Size     float32
	Age      float32
	Lifetime float32
	_        uint32
}

// UniformData is the per-frame uniform block shared by graphics pipelines.
type UniformData struct {
	ViewProjection [16]float32
	ScreenSize     [2]float32
	Time           float32
	_              float32
}

// ComputeUniform is the uniform block of the particle compute kernel.
type ComputeUniform struct {
	DeltaTime     float32
	ParticleCount uint32
	Gravity       [2]float32
}

const (
	VertexSize         = 16
	InstanceDataSize   = 64
	TextDataSize       = 64
	ParticleDataSize   = 48
	UniformDataSize    = 80
	ComputeUniformSize = 16
)

// Compile-time size and offset assertions. A mismatch makes an array index
// negative or out of range.
var (
	_ = [1]int{}[unsafe.Sizeof(Vertex{})-VertexSize]
	_ = [1]int{}[unsafe.Sizeof(InstanceData{})-InstanceDataSize]
	_ = [1]int{}[unsafe.Sizeof(TextData{})-TextDataSize]
	_ = [1]int{}[unsafe.Sizeof(ParticleData{})-ParticleDataSize]
	_ = [1]int{}[unsafe.Sizeof(UniformData{})-UniformDataSize]
	_ = [1]int{}[unsafe.Sizeof(ComputeUniform{})-ComputeUniformSize]

	_ = [1]int{}[unsafe.Offsetof(InstanceData{}.Colour)-16]
	_ = [1]int{}[unsafe.Offsetof(InstanceData{}.UVRect)-32]
	_ = [1]int{}[unsafe.Offsetof(InstanceData{}.Rotation)-48]
	_ = [1]int{}[unsafe.Offsetof(InstanceData{}.TextureIndex)-52]
	_ = [1]int{}[unsafe.Offsetof(TextData{}.FontIndex)-48]
	_ = [1]int{}[unsafe.Offsetof(TextData{}.PxRange)-52]
	_ = [1]int{}[unsafe.Offsetof(ParticleData{}.Colour)-16]
	_ = [1]int{}[unsafe.Offsetof(ParticleData{}.Size)-32]
	_ = [1]int{}[unsafe.Offsetof(ParticleData{}.Lifetime)-40]
	_ = [1]int{}[unsafe.Offsetof(UniformData{}.ScreenSize)-64]
	_ = [1]int{}[unsafe.Offsetof(UniformData{}.Time)-72]
	_ = [1]int{}[unsafe.Offsetof(ComputeUniform{}.Gravity)-8]
)

var le = binary.LittleEndian

func putF32s(b []byte, off int, v []float32) int {
	for _, f := range v {
		le.PutUint32(b[off:], math.Float32bits(f))
		off += 4
	}
	return off
}

func f32s(b []byte, off int, v []float32) int {
	for i := range v {
		v[i] = math.Float32frombits(le.Uint32(b[off:]))
		off += 4
	}
	return off
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Put encodes v into b[:VertexSize].
func (v *Vertex) Put(b []byte) {
	_ = b[VertexSize-1]
	putF32s(b, 0, v.Position[:])
	putF32s(b, 8, v.UV[:])
}

// Put encodes d into b[:InstanceDataSize], padding included as zeros.
func (d *InstanceData) Put(b []byte) {
	_ = b[InstanceDataSize-1]
	off := putF32s(b, 0, d.Position[:])
	off = putF32s(b, off, d.Size[:])
	off = putF32s(b, off, d.Colour[:])
	off = putF32s(b, off, d.UVRect[:])
	le.PutUint32(b[off:], math.Float32bits(d.Rotation))
	le.PutUint32(b[off+4:], d.TextureIndex)
	zero(b[56:64])
}

// Put encodes d into b[:TextDataSize], padding included as zeros.
func (d *TextData) Put(b []byte) {
	_ = b[TextDataSize-1]
	off := putF32s(b, 0, d.Position[:])
	off = putF32s(b, off, d.Size[:])
	off = putF32s(b, off, d.Colour[:])
	off = putF32s(b, off, d.UVRect[:])
	le.PutUint32(b[off:], d.FontIndex)
	le.PutUint32(b[off+4:], math.Float32bits(d.PxRange))
	zero(b[56:64])
}

// Put encodes d into b[:ParticleDataSize], padding included as zeros.
func (d *ParticleData) Put(b []byte) {
	_ = b[ParticleDataSize-1]
	off := putF32s(b, 0, d.Position[:])
	off = putF32s(b, off, d.Velocity[:])
	off = putF32s(b, off, d.Colour[:])
	putF32s(b, off, []float32{d.Size, d.Age, d.Lifetime})
	zero(b[44:48])
}

// ReadParticle decodes a ParticleData from b.
func ReadParticle(b []byte) ParticleData {
	_ = b[ParticleDataSize-1]
	var d ParticleData
	off := f32s(b, 0, d.Position[:])
	off = f32s(b, off, d.Velocity[:])
	off = f32s(b, off, d.Colour[:])
	tail := make([]float32, 3)
	f32s(b, off, tail)
	d.Size, d.Age, d.Lifetime = tail[0], tail[1], tail[2]
	return d
}

// Put encodes u into b[:UniformDataSize], padding included as zeros.
func (u *UniformData) Put(b []byte) {
	_ = b[UniformDataSize-1]
	off := putF32s(b, 0, u.ViewProjection[:])
	off = putF32s(b, off, u.ScreenSize[:])
	le.PutUint32(b[off:], math.Float32bits(u.Time))
	zero(b[76:80])
}

// Put encodes u into b[:ComputeUniformSize].
func (u *ComputeUniform) Put(b []byte) {
	_ = b[ComputeUniformSize-1]
	le.PutUint32(b[0:], math.Float32bits(u.DeltaTime))
	le.PutUint32(b[4:], u.ParticleCount)
	putF32s(b, 8, u.Gravity[:])
}

// ReadComputeUniform decodes a ComputeUniform from b.
func ReadComputeUniform(b []byte) ComputeUniform {
	_ = b[ComputeUniformSize-1]
	u := ComputeUniform{
		DeltaTime:     math.Float32frombits(le.Uint32(b[0:])),
		ParticleCount: le.Uint32(b[4:]),
	}
	f32s(b, 8, u.Gravity[:])
	return u
}

// EncodeInstances serializes quads back to back.
func EncodeInstances(quads []InstanceData) []byte {
	b := make([]byte, len(quads)*InstanceDataSize)
	for i := range quads {
		quads[i].Put(b[i*InstanceDataSize:])
	}
	return b
}

// EncodeText serializes glyph quads back to back.
func EncodeText(glyphs []TextData) []byte {
	b := make([]byte, len(glyphs)*TextDataSize)
	for i := range glyphs {
		glyphs[i].Put(b[i*TextDataSize:])
	}
	return b
}

// EncodeParticles serializes particles back to back.
func EncodeParticles(ps []ParticleData) []byte {
	b := make([]byte, len(ps)*ParticleDataSize)
	for i := range ps {
		ps[i].Put(b[i*ParticleDataSize:])
	}
	return b
}

// QuadVertices is the unit quad centred on the origin, and QuadIndices its
// two triangles.
var (
	QuadVertices = []Vertex{
		{Position: [2]float32{-0.5, -0.5}, UV: [2]float32{0, 0}},
		{Position: [2]float32{0.5, -0.5}, UV: [2]float32{1, 0}},
		{Position: [2]float32{0.5, 0.5}, UV: [2]float32{1, 1}},
		{Position: [2]float32{-0.5, 0.5}, UV: [2]float32{0, 1}},
	}
	QuadIndices = []uint16{0, 1, 2, 2, 3, 0}
)

func EncodeVertices(vs []Vertex) []byte {
	b := make([]byte, len(vs)*VertexSize)
	for i := range vs {
		vs[i].Put(b[i*VertexSize:])
	}
	return b
}

func EncodeIndices(idx []uint16) []byte {
	b := make([]byte, len(idx)*2)
	for i, v := range idx {
		le.PutUint16(b[i*2:], v)
	}
	return b
}
