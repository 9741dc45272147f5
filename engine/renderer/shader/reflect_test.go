package shader

import (
	"encoding/binary"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
	"github.com/spaghettifunk/lumen/engine/renderer/shader/shadertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflectVertexModule(t *testing.T) {
	code := shadertest.NewBuilder().
		EntryPoint(driver.StageVertex, "main").
		Input(0, 2).
		Input(1, 2).
		Input(2, 2).
		Input(4, 4).
		InputUint(7).
		Uniform(0, 0, 80).
		PushConstant(16).
		Build()

	r, err := Reflect(code)
	require.NoError(t, err)

	e, ok := r.Entry(driver.StageVertex)
	require.True(t, ok)
	assert.Equal(t, "main", e.Name)

	inputs := r.VertexInputs("main")
	require.Len(t, inputs, 5)
	assert.Equal(t, uint32(0), inputs[0].Location)
	assert.Equal(t, driver.FormatRG32Float, inputs[0].Format)
	assert.Equal(t, uint32(4), inputs[3].Location)
	assert.Equal(t, driver.FormatRGBA32Float, inputs[3].Format)
	assert.Equal(t, driver.FormatR32Uint, inputs[4].Format)

	require.Len(t, r.Bindings, 1)
	assert.Equal(t, driver.DescriptorUniformBuffer, r.Bindings[0].Type)
	assert.Equal(t, uint32(80), r.Bindings[0].Size)
	assert.Equal(t, "ubo", r.Bindings[0].Name)
	assert.Equal(t, uint32(16), r.PushConstantSize)
}

func TestReflectComputeModule(t *testing.T) {
	code := shadertest.NewBuilder().
		EntryPoint(driver.StageCompute, "simulate").
		LocalSize(64, 1, 1).
		Uniform(0, 0, 16).
		Storage(0, 2, false).
		Storage(0, 1, true).
		Build()

	r, err := Reflect(code)
	require.NoError(t, err)

	e, ok := r.Entry(driver.StageCompute)
	require.True(t, ok)
	assert.Equal(t, "simulate", e.Name)
	assert.Equal(t, [3]uint32{64, 1, 1}, e.LocalSize)

	require.Len(t, r.Bindings, 3)
	// sorted by binding
	assert.Equal(t, uint32(1), r.Bindings[1].Binding)
	assert.Equal(t, driver.DescriptorStorageBuffer, r.Bindings[1].Type)
	assert.True(t, r.Bindings[1].ReadOnly)
	assert.False(t, r.Bindings[2].ReadOnly)
	_, ok = r.Entry(driver.StageVertex)
	assert.False(t, ok)
}

func TestReflectImageBindings(t *testing.T) {
	code := shadertest.NewBuilder().
		EntryPoint(driver.StageFragment, "fs").
		Textures(0, 1, 16).
		SampledImages(0, 2, 4).
		Sampler(0, 3).
		Build()

	r, err := Reflect(code)
	require.NoError(t, err)
	require.Len(t, r.Bindings, 3)
	assert.Equal(t, driver.DescriptorCombinedImageSampler, r.Bindings[0].Type)
	assert.Equal(t, uint32(16), r.Bindings[0].Count)
	assert.Equal(t, driver.DescriptorSampledImage, r.Bindings[1].Type)
	assert.Equal(t, uint32(4), r.Bindings[1].Count)
	assert.Equal(t, driver.DescriptorSampler, r.Bindings[2].Type)
	assert.Equal(t, uint32(1), r.Bindings[2].Count)
}

func TestReflectRejectsGarbage(t *testing.T) {
	_, err := Reflect([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	bad := make([]byte, 24)
	binary.LittleEndian.PutUint32(bad, 0xdeadbeef)
	_, err = Reflect(bad)
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	truncated := shadertest.NewBuilder().EntryPoint(driver.StageVertex, "main").Build()
	truncated = append(truncated, 0, 0, 0x10, 0) // opcode 0 claiming 16 words
	_, err = Reflect(truncated)
	assert.ErrorIs(t, err, ErrInvalidSPIRV)
}

const particleWGSL = `
struct Params {
    dt: f32,
    count: u32,
    gravity: vec2<f32>,
}

struct Particle {
    position: vec2<f32>,
    velocity: vec2<f32>,
    colour: vec4<f32>,
    size: f32,
    age: f32,
    lifetime: f32,
    pad: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> src: array<Particle>;
@group(0) @binding(2) var<storage, read_write> dst: array<Particle>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if (i >= params.count) {
        return;
    }
    dst[i] = src[i];
}
`

func TestFromWGSLReflectsCompiledModule(t *testing.T) {
	m, err := FromWGSL("particle_sim.wgsl", particleWGSL)
	require.NoError(t, err)

	e, err := m.Entry(driver.StageCompute)
	require.NoError(t, err)
	assert.Equal(t, "main", e.Name)
	assert.Equal(t, [3]uint32{64, 1, 1}, e.LocalSize)

	require.Len(t, m.Reflection.Bindings, 3)
	assert.Equal(t, driver.DescriptorUniformBuffer, m.Reflection.Bindings[0].Type)
	assert.Equal(t, driver.DescriptorStorageBuffer, m.Reflection.Bindings[1].Type)
	assert.True(t, m.Reflection.Bindings[1].ReadOnly)
	assert.False(t, m.Reflection.Bindings[2].ReadOnly)

	_, err = m.Entry(driver.StageVertex)
	assert.Error(t, err)
}

func TestFromWGSLReportsCompileErrors(t *testing.T) {
	_, err := FromWGSL("broken.wgsl", "fn main( {")
	assert.Error(t, err)
}
