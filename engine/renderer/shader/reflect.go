package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

var ErrInvalidSPIRV = errors.New("invalid SPIR-V")

// EntryPoint is one OpEntryPoint of a module.
type EntryPoint struct {
	Name  string
	Stage driver.ShaderStage
	// LocalSize is the compute workgroup size. It is zero for graphics
	// stages.
	LocalSize [3]uint32

	id    uint32
	iface []uint32
}

// Binding is a descriptor-backed resource declared by a module.
type Binding struct {
	Set      uint32
	Binding  uint32
	Type     driver.DescriptorType
	Count    uint32
	ReadOnly bool
	Name     string
	// Size is the declared size in bytes of a uniform block, or of the
	// fixed part of a storage block.
	Size uint32
}

// VertexInput is a location-decorated input of a vertex entry point.
type VertexInput struct {
	Location uint32
	Format   driver.Format
	Name     string
}

// Reflection is what a module declares about its interface.
type Reflection struct {
	EntryPoints []EntryPoint
	Bindings    []Binding
	// PushConstantSize is the size in bytes of the push constant block, or
	// zero when there is none.
	PushConstantSize uint32

	inputs map[uint32]VertexInput
}

// Entry returns the first entry point for stage.
func (r *Reflection) Entry(stage driver.ShaderStage) (EntryPoint, bool) {
	for _, e := range r.EntryPoints {
		if e.Stage == stage {
			return e, true
		}
	}
	return EntryPoint{}, false
}

// VertexInputs returns the inputs of the named vertex entry point sorted by
// location.
func (r *Reflection) VertexInputs(entry string) []VertexInput {
	var out []VertexInput
	for _, e := range r.EntryPoints {
		if e.Name != entry || e.Stage != driver.StageVertex {
			continue
		}
		for _, id := range e.iface {
			if in, ok := r.inputs[id]; ok {
				out = append(out, in)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

type spvType struct {
	op   uint32
	args []uint32
}

type variable struct {
	typeID       uint32
	storageClass uint32
}

type reflector struct {
	names     map[uint32]string
	decos     map[uint32]map[uint32][]uint32
	memberOff map[uint32]map[uint32]uint32
	memberNW  map[uint32]map[uint32]bool
	types     map[uint32]*spvType
	constants map[uint32]uint32
	variables map[uint32]variable
	order     []uint32
	entries   []EntryPoint
	localSize map[uint32][3]uint32
}

// Reflect parses a SPIR-V binary and extracts its entry points, descriptor
// bindings, push constant block and vertex inputs. Only the declarations are
// read; function bodies are skipped.
func Reflect(code []byte) (*Reflection, error) {
	words, err := toWords(code)
	if err != nil {
		return nil, err
	}
	rf := &reflector{
		names:     make(map[uint32]string),
		decos:     make(map[uint32]map[uint32][]uint32),
		memberOff: make(map[uint32]map[uint32]uint32),
		memberNW:  make(map[uint32]map[uint32]bool),
		types:     make(map[uint32]*spvType),
		constants: make(map[uint32]uint32),
		variables: make(map[uint32]variable),
		localSize: make(map[uint32][3]uint32),
	}
	if err := rf.scan(words[headerWords:]); err != nil {
		return nil, err
	}
	return rf.build()
}

func toWords(code []byte) ([]uint32, error) {
	if len(code)%4 != 0 || len(code) < headerWords*4 {
		return nil, fmt.Errorf("%w: size %d is not a whole number of words", ErrInvalidSPIRV, len(code))
	}
	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(code) != magicNumber {
		if binary.BigEndian.Uint32(code) != magicNumber {
			return nil, fmt.Errorf("%w: bad magic number", ErrInvalidSPIRV)
		}
		order = binary.BigEndian
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = order.Uint32(code[i*4:])
	}
	return words, nil
}

func (rf *reflector) scan(words []uint32) error {
	for i := 0; i < len(words); {
		count := int(words[i] >> 16)
		op := words[i] & 0xffff
		if count == 0 || i+count > len(words) {
			return fmt.Errorf("%w: truncated instruction at word %d", ErrInvalidSPIRV, i+headerWords)
		}
		args := words[i+1 : i+count]
		i += count

		switch op {
		case opName:
			rf.names[args[0]] = decodeString(args[1:])
		case opEntryPoint:
			stage, ok := stageOf(args[0])
			name := decodeString(args[2:])
			if !ok {
				continue
			}
			n := (len(name) + 4) / 4
			rf.entries = append(rf.entries, EntryPoint{
				Name:  name,
				Stage: stage,
				id:    args[1],
				iface: append([]uint32(nil), args[2+n:]...),
			})
		case opExecutionMode:
			if args[1] == execModeLocalSize && len(args) >= 5 {
				rf.localSize[args[0]] = [3]uint32{args[2], args[3], args[4]}
			}
		case opDecorate:
			d, ok := rf.decos[args[0]]
			if !ok {
				d = make(map[uint32][]uint32)
				rf.decos[args[0]] = d
			}
			d[args[1]] = append([]uint32(nil), args[2:]...)
		case opMemberDecorate:
			switch args[2] {
			case decorationOffset:
				if rf.memberOff[args[0]] == nil {
					rf.memberOff[args[0]] = make(map[uint32]uint32)
				}
				rf.memberOff[args[0]][args[1]] = args[3]
			case decorationNonWritable:
				if rf.memberNW[args[0]] == nil {
					rf.memberNW[args[0]] = make(map[uint32]bool)
				}
				rf.memberNW[args[0]][args[1]] = true
			}
		case opTypeVoid, opTypeBool, opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix,
			opTypeImage, opTypeSampler, opTypeSampledImg, opTypeArray, opTypeRuntimeArr,
			opTypeStruct, opTypePointer:
			rf.types[args[0]] = &spvType{op: op, args: append([]uint32(nil), args[1:]...)}
		case opConstant:
			if len(args) >= 3 {
				rf.constants[args[1]] = args[2]
			}
		case opVariable:
			rf.variables[args[1]] = variable{typeID: args[0], storageClass: args[2]}
			rf.order = append(rf.order, args[1])
		case opFunction:
			// Declarations end where the first function begins.
			return nil
		}
	}
	return nil
}

func stageOf(model uint32) (driver.ShaderStage, bool) {
	switch model {
	case execModelVertex:
		return driver.StageVertex, true
	case execModelFragment:
		return driver.StageFragment, true
	case execModelGLCompute:
		return driver.StageCompute, true
	}
	return 0, false
}

func decodeString(words []uint32) string {
	b := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for k := 0; k < 4; k++ {
			c := byte(w >> (8 * k))
			if c == 0 {
				return string(b)
			}
			b = append(b, c)
		}
	}
	return string(b)
}

func (rf *reflector) deco(id, d uint32) ([]uint32, bool) {
	v, ok := rf.decos[id][d]
	return v, ok
}

func (rf *reflector) build() (*Reflection, error) {
	r := &Reflection{inputs: make(map[uint32]VertexInput)}

	for _, e := range rf.entries {
		e.LocalSize = rf.localSize[e.id]
		r.EntryPoints = append(r.EntryPoints, e)
	}

	for _, id := range rf.order {
		v := rf.variables[id]
		ptr := rf.types[v.typeID]
		if ptr == nil || ptr.op != opTypePointer {
			return nil, fmt.Errorf("%w: variable %d is not a pointer", ErrInvalidSPIRV, id)
		}
		pointee := ptr.args[1]

		switch v.storageClass {
		case storageInput:
			if _, builtin := rf.deco(id, decorationBuiltIn); builtin {
				continue
			}
			loc, ok := rf.deco(id, decorationLocation)
			if !ok {
				continue
			}
			// Fragment inputs share the storage class; an unsupported type
			// only matters once a vertex entry point asks for it.
			format, _ := rf.vertexFormat(pointee)
			r.inputs[id] = VertexInput{Location: loc[0], Format: format, Name: rf.names[id]}

		case storagePushConstant:
			r.PushConstantSize = rf.sizeOf(pointee)

		case storageUniform, storageStorageBuffer, storageUniformConstant:
			b, ok, err := rf.binding(id, v.storageClass, pointee)
			if err != nil {
				return nil, err
			}
			if ok {
				r.Bindings = append(r.Bindings, b)
			}
		}
	}
	sort.Slice(r.Bindings, func(i, j int) bool {
		if r.Bindings[i].Set != r.Bindings[j].Set {
			return r.Bindings[i].Set < r.Bindings[j].Set
		}
		return r.Bindings[i].Binding < r.Bindings[j].Binding
	})
	return r, nil
}

func (rf *reflector) binding(id, class, pointee uint32) (Binding, bool, error) {
	bind, ok := rf.deco(id, decorationBinding)
	if !ok {
		return Binding{}, false, nil
	}
	set, _ := rf.deco(id, decorationDescriptorSet)
	b := Binding{Binding: bind[0], Count: 1, Name: rf.names[id]}
	if len(set) > 0 {
		b.Set = set[0]
	}

	elem := pointee
	if t := rf.types[elem]; t != nil && (t.op == opTypeArray || t.op == opTypeRuntimeArr) {
		if t.op == opTypeArray {
			b.Count = rf.constants[t.args[1]]
		} else {
			b.Count = 0
		}
		elem = t.args[0]
	}
	t := rf.types[elem]
	if t == nil {
		return Binding{}, false, fmt.Errorf("%w: binding %d has unknown type %d", ErrInvalidSPIRV, b.Binding, elem)
	}

	switch class {
	case storageUniform:
		_, block := rf.deco(elem, decorationBlock)
		_, bufferBlock := rf.deco(elem, decorationBufferBlock)
		switch {
		case bufferBlock:
			b.Type = driver.DescriptorStorageBuffer
			b.ReadOnly = rf.readOnly(id, elem)
		case block:
			b.Type = driver.DescriptorUniformBuffer
		default:
			return Binding{}, false, fmt.Errorf("%w: uniform %d is not a block", ErrInvalidSPIRV, b.Binding)
		}
		b.Size = rf.sizeOf(elem)
	case storageStorageBuffer:
		b.Type = driver.DescriptorStorageBuffer
		b.ReadOnly = rf.readOnly(id, elem)
		b.Size = rf.sizeOf(elem)
	case storageUniformConstant:
		switch t.op {
		case opTypeSampledImg:
			b.Type = driver.DescriptorCombinedImageSampler
		case opTypeImage:
			b.Type = driver.DescriptorSampledImage
		case opTypeSampler:
			b.Type = driver.DescriptorSampler
		default:
			return Binding{}, false, nil
		}
	}
	return b, true, nil
}

// readOnly reports whether a storage block is never written, either through
// a NonWritable variable or because every member is NonWritable.
func (rf *reflector) readOnly(varID, structID uint32) bool {
	if _, ok := rf.deco(varID, decorationNonWritable); ok {
		return true
	}
	t := rf.types[structID]
	if t == nil || t.op != opTypeStruct || len(t.args) == 0 {
		return false
	}
	nw := rf.memberNW[structID]
	for m := range t.args {
		if !nw[uint32(m)] {
			return false
		}
	}
	return true
}

func (rf *reflector) vertexFormat(typeID uint32) (driver.Format, error) {
	t := rf.types[typeID]
	if t == nil {
		return driver.FormatUndefined, fmt.Errorf("unknown type %d", typeID)
	}
	switch t.op {
	case opTypeFloat:
		if t.args[0] == 32 {
			return driver.FormatR32Float, nil
		}
	case opTypeInt:
		if t.args[0] == 32 {
			if t.args[1] == 1 {
				return driver.FormatR32Sint, nil
			}
			return driver.FormatR32Uint, nil
		}
	case opTypeVector:
		comp := rf.types[t.args[0]]
		if comp != nil && comp.op == opTypeFloat && comp.args[0] == 32 {
			switch t.args[1] {
			case 2:
				return driver.FormatRG32Float, nil
			case 3:
				return driver.FormatRGB32Float, nil
			case 4:
				return driver.FormatRGBA32Float, nil
			}
		}
	}
	return driver.FormatUndefined, fmt.Errorf("unsupported vertex input type (op %d)", t.op)
}

// sizeOf returns the byte size of a type as laid out by its offset and
// stride decorations. Runtime arrays contribute nothing.
func (rf *reflector) sizeOf(typeID uint32) uint32 {
	t := rf.types[typeID]
	if t == nil {
		return 0
	}
	switch t.op {
	case opTypeBool, opTypeInt, opTypeFloat:
		if t.op == opTypeBool {
			return 4
		}
		return t.args[0] / 8
	case opTypeVector:
		return rf.sizeOf(t.args[0]) * t.args[1]
	case opTypeMatrix:
		return rf.sizeOf(t.args[0]) * t.args[1]
	case opTypeArray:
		n := rf.constants[t.args[1]]
		if s, ok := rf.deco(typeID, decorationArrayStride); ok {
			return s[0] * n
		}
		return rf.sizeOf(t.args[0]) * n
	case opTypeStruct:
		var end uint32
		offs := rf.memberOff[typeID]
		for m, member := range t.args {
			off, ok := offs[uint32(m)]
			if !ok {
				off = end
			}
			if e := off + rf.sizeOf(member); e > end {
				end = e
			}
		}
		return end
	}
	return 0
}
