// Package shadertest builds small SPIR-V modules for tests. The modules
// carry declarations only: entry points point at empty functions, so they
// are good for reflection and for software devices but not for real GPUs.
package shadertest

import (
	"encoding/binary"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

const (
	opName           = 5
	opEntryPoint     = 15
	opExecutionMode  = 16
	opCapability     = 17
	opMemoryModel    = 14
	opTypeVoid       = 19
	opTypeInt        = 21
	opTypeFloat      = 22
	opTypeVector     = 23
	opTypeImage      = 25
	opTypeSampler    = 26
	opTypeSampledImg = 27
	opTypeArray      = 28
	opTypeRuntimeArr = 29
	opTypeStruct     = 30
	opTypePointer    = 32
	opTypeFunction   = 33
	opConstant       = 43
	opFunction       = 54
	opFunctionEnd    = 56
	opVariable       = 59
	opDecorate       = 71
	opMemberDecorate = 72
	opLabel          = 248
	opReturn         = 253
)

type entry struct {
	stage  driver.ShaderStage
	name   string
	inputs []uint32
	local  [3]uint32
}

type input struct {
	location   uint32
	components uint32
	uint       bool
}

type resource struct {
	set, binding uint32
	typ          driver.DescriptorType
	count        uint32
	size         uint32
	readOnly     bool
	name         string
}

// Builder accumulates declarations and emits a SPIR-V binary.
type Builder struct {
	entries   []entry
	inputs    []input
	resources []resource
	push      uint32
}

func NewBuilder() *Builder {
	return &Builder{}
}

// EntryPoint adds an entry point. Inputs and local sizes declared after it
// belong to it.
func (b *Builder) EntryPoint(stage driver.ShaderStage, name string) *Builder {
	b.entries = append(b.entries, entry{stage: stage, name: name})
	return b
}

// LocalSize sets the workgroup size of the last compute entry point.
func (b *Builder) LocalSize(x, y, z uint32) *Builder {
	b.entries[len(b.entries)-1].local = [3]uint32{x, y, z}
	return b
}

// Input declares a float or vector-of-float input for the last entry point.
func (b *Builder) Input(location, components uint32) *Builder {
	b.inputs = append(b.inputs, input{location: location, components: components})
	b.entries[len(b.entries)-1].inputs = append(b.entries[len(b.entries)-1].inputs, uint32(len(b.inputs)-1))
	return b
}

// InputUint declares a scalar uint input for the last entry point.
func (b *Builder) InputUint(location uint32) *Builder {
	b.inputs = append(b.inputs, input{location: location, uint: true})
	b.entries[len(b.entries)-1].inputs = append(b.entries[len(b.entries)-1].inputs, uint32(len(b.inputs)-1))
	return b
}

// Uniform declares a uniform block of size bytes made of float members.
func (b *Builder) Uniform(set, binding, size uint32) *Builder {
	b.resources = append(b.resources, resource{set: set, binding: binding, typ: driver.DescriptorUniformBuffer, count: 1, size: size, name: "ubo"})
	return b
}

// Storage declares a storage block holding a runtime array of vec4.
func (b *Builder) Storage(set, binding uint32, readOnly bool) *Builder {
	b.resources = append(b.resources, resource{set: set, binding: binding, typ: driver.DescriptorStorageBuffer, count: 1, readOnly: readOnly, name: "ssbo"})
	return b
}

// Textures declares an array of count combined image samplers.
func (b *Builder) Textures(set, binding, count uint32) *Builder {
	b.resources = append(b.resources, resource{set: set, binding: binding, typ: driver.DescriptorCombinedImageSampler, count: count, name: "textures"})
	return b
}

// SampledImages declares an array of count sampled images without samplers.
func (b *Builder) SampledImages(set, binding, count uint32) *Builder {
	b.resources = append(b.resources, resource{set: set, binding: binding, typ: driver.DescriptorSampledImage, count: count, name: "images"})
	return b
}

// Sampler declares a single sampler.
func (b *Builder) Sampler(set, binding uint32) *Builder {
	b.resources = append(b.resources, resource{set: set, binding: binding, typ: driver.DescriptorSampler, count: 1, name: "smp"})
	return b
}

// PushConstant declares a push constant block of size bytes.
func (b *Builder) PushConstant(size uint32) *Builder {
	b.push = size
	return b
}

type emitter struct {
	words []uint32
}

func (e *emitter) op(code uint32, args ...uint32) {
	e.words = append(e.words, uint32(len(args)+1)<<16|code)
	e.words = append(e.words, args...)
}

func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func model(s driver.ShaderStage) uint32 {
	switch s {
	case driver.StageFragment:
		return 4
	case driver.StageCompute:
		return 5
	}
	return 0
}

// Build emits the module.
func (b *Builder) Build() []byte {
	var next uint32
	id := func() uint32 {
		next++
		return next
	}
	var head, names, decos, types, vars, fns emitter

	tVoid, tFn := id(), id()
	tF32, tU32 := id(), id()
	vec := map[uint32]uint32{1: tF32}
	types.op(opTypeVoid, tVoid)
	types.op(opTypeFunction, tFn, tVoid)
	types.op(opTypeFloat, tF32, 32)
	types.op(opTypeInt, tU32, 32, 0)
	for n := uint32(2); n <= 4; n++ {
		vec[n] = id()
		types.op(opTypeVector, vec[n], tF32, n)
	}

	ptrs := map[[2]uint32]uint32{}
	ptr := func(class, typ uint32) uint32 {
		k := [2]uint32{class, typ}
		if p, ok := ptrs[k]; ok {
			return p
		}
		p := id()
		types.op(opTypePointer, p, class, typ)
		ptrs[k] = p
		return p
	}
	constant := func(v uint32) uint32 {
		c := id()
		types.op(opConstant, tU32, c, v)
		return c
	}
	floatBlock := func(size uint32) uint32 {
		members := size / 4
		if members == 0 {
			members = 1
		}
		args := make([]uint32, members)
		for i := range args {
			args[i] = tF32
		}
		st := id()
		types.op(opTypeStruct, append([]uint32{st}, args...)...)
		decos.op(opDecorate, st, 2)
		for m := uint32(0); m < members; m++ {
			decos.op(opMemberDecorate, st, m, 35, m*4)
		}
		return st
	}

	inIDs := make([]uint32, len(b.inputs))
	for i, in := range b.inputs {
		t := vec[in.components]
		if in.uint {
			t = tU32
		}
		inIDs[i] = id()
		decos.op(opDecorate, inIDs[i], 30, in.location)
		vars.op(opVariable, ptr(1, t), inIDs[i], 1)
	}

	for _, r := range b.resources {
		var class, typ uint32
		switch r.typ {
		case driver.DescriptorUniformBuffer:
			typ = floatBlock(r.size)
			class = 2
		case driver.DescriptorStorageBuffer:
			arr := id()
			types.op(opTypeRuntimeArr, arr, vec[4])
			decos.op(opDecorate, arr, 6, 16)
			typ = id()
			types.op(opTypeStruct, typ, arr)
			decos.op(opDecorate, typ, 2)
			decos.op(opMemberDecorate, typ, 0, 35, 0)
			class = 12
		default:
			img := id()
			types.op(opTypeImage, img, tF32, 1, 0, 0, 0, 1, 0)
			switch r.typ {
			case driver.DescriptorCombinedImageSampler:
				typ = id()
				types.op(opTypeSampledImg, typ, img)
			case driver.DescriptorSampledImage:
				typ = img
			case driver.DescriptorSampler:
				typ = id()
				types.op(opTypeSampler, typ)
			}
			if r.count > 1 {
				arr := id()
				types.op(opTypeArray, arr, typ, constant(r.count))
				typ = arr
			}
			class = 0
		}
		v := id()
		vars.op(opVariable, ptr(class, typ), v, class)
		names.op(opName, append([]uint32{v}, str(r.name)...)...)
		decos.op(opDecorate, v, 34, r.set)
		decos.op(opDecorate, v, 33, r.binding)
		if r.readOnly {
			decos.op(opDecorate, v, 24)
		}
	}

	if b.push > 0 {
		st := floatBlock(b.push)
		vars.op(opVariable, ptr(9, st), id(), 9)
	}

	fnIDs := make([]uint32, len(b.entries))
	for i := range b.entries {
		fnIDs[i] = id()
		fns.op(opFunction, tVoid, fnIDs[i], 0, tFn)
		fns.op(opLabel, id())
		fns.op(opReturn)
		fns.op(opFunctionEnd)
	}

	head.op(opCapability, 1)
	head.op(opMemoryModel, 0, 1)
	for i, en := range b.entries {
		args := []uint32{model(en.stage), fnIDs[i]}
		args = append(args, str(en.name)...)
		for _, in := range en.inputs {
			args = append(args, inIDs[in])
		}
		head.op(opEntryPoint, args...)
	}
	for i, en := range b.entries {
		if en.stage == driver.StageCompute {
			head.op(opExecutionMode, fnIDs[i], 17, en.local[0], en.local[1], en.local[2])
		}
	}

	words := []uint32{0x07230203, 0x00010300, 0, next + 1, 0}
	for _, part := range []emitter{head, names, decos, types, vars, fns} {
		words = append(words, part.words...)
	}
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
