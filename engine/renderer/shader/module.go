package shader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// Module is SPIR-V code with its reflected interface.
type Module struct {
	Label      string
	Code       []byte
	Reflection *Reflection
}

// Load reads a shader from disk. SPIR-V binaries (.spv) are used as is and
// WGSL sources (.wgsl) are compiled to SPIR-V. GLSL must be compiled ahead
// of time with `mage build:shaders`.
func Load(path string) (*Module, error) {
	res, err := (&loaders.ShaderLoader{}).Load(path)
	if err != nil {
		return nil, err
	}
	data := res.Data.([]byte)
	label := filepath.Base(path)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".spv":
		return FromSPIRV(label, data)
	case ".wgsl":
		return FromWGSL(label, string(data))
	default:
		return nil, fmt.Errorf("shader %s: unsupported source type %q", label, ext)
	}
}

func FromSPIRV(label string, code []byte) (*Module, error) {
	r, err := Reflect(code)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", label, err)
	}
	if len(r.EntryPoints) == 0 {
		return nil, fmt.Errorf("shader %s: no entry points", label)
	}
	return &Module{Label: label, Code: code, Reflection: r}, nil
}

func FromWGSL(label, source string) (*Module, error) {
	code, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader %s: %w", label, err)
	}
	return FromSPIRV(label, code)
}

// Entry returns the module's entry point for stage.
func (m *Module) Entry(stage driver.ShaderStage) (EntryPoint, error) {
	e, ok := m.Reflection.Entry(stage)
	if !ok {
		return EntryPoint{}, fmt.Errorf("shader %s has no %s entry point", m.Label, stage)
	}
	return e, nil
}
