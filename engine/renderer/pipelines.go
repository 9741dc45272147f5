package renderer

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
	"github.com/spaghettifunk/lumen/engine/renderer/layout"
	"github.com/spaghettifunk/lumen/engine/renderer/shader"
)

type PipelineKind int

const (
	PipelineQuad PipelineKind = iota
	PipelineText
	PipelineParticle
	PipelineParticleCompute
	pipelineKindCount
)

func (k PipelineKind) String() string {
	switch k {
	case PipelineQuad:
		return "quad"
	case PipelineText:
		return "text"
	case PipelineParticle:
		return "particle"
	case PipelineParticleCompute:
		return "particle_compute"
	}
	return "unknown"
}

// Vertex buffer bindings shared by the instanced pipelines: binding 0 is the
// unit quad, binding 1 the per-instance records.
const (
	quadVertexBinding     = 0
	instanceVertexBinding = 1
)

type attribute struct {
	binding uint32
	offset  uint32
	format  driver.Format
}

var quadAttributes = map[uint32]attribute{
	0: {quadVertexBinding, 0, driver.FormatRG32Float},
	1: {quadVertexBinding, 8, driver.FormatRG32Float},
}

// instanceAttributes maps shader locations to fields of the layout records.
var instanceAttributes = map[PipelineKind]map[uint32]attribute{
	PipelineQuad: {
		2: {instanceVertexBinding, 0, driver.FormatRG32Float},
		3: {instanceVertexBinding, 8, driver.FormatRG32Float},
		4: {instanceVertexBinding, 16, driver.FormatRGBA32Float},
		5: {instanceVertexBinding, 32, driver.FormatRGBA32Float},
		6: {instanceVertexBinding, 48, driver.FormatR32Float},
		7: {instanceVertexBinding, 52, driver.FormatR32Uint},
	},
	PipelineText: {
		2: {instanceVertexBinding, 0, driver.FormatRG32Float},
		3: {instanceVertexBinding, 8, driver.FormatRG32Float},
		4: {instanceVertexBinding, 16, driver.FormatRGBA32Float},
		5: {instanceVertexBinding, 32, driver.FormatRGBA32Float},
		6: {instanceVertexBinding, 48, driver.FormatR32Uint},
		7: {instanceVertexBinding, 52, driver.FormatR32Float},
	},
	PipelineParticle: {
		2: {instanceVertexBinding, 0, driver.FormatRG32Float},
		3: {instanceVertexBinding, 8, driver.FormatRG32Float},
		4: {instanceVertexBinding, 16, driver.FormatRGBA32Float},
		5: {instanceVertexBinding, 32, driver.FormatR32Float},
		6: {instanceVertexBinding, 36, driver.FormatR32Float},
		7: {instanceVertexBinding, 40, driver.FormatR32Float},
	},
}

var instanceStride = map[PipelineKind]uint32{
	PipelineQuad:     layout.InstanceDataSize,
	PipelineText:     layout.TextDataSize,
	PipelineParticle: layout.ParticleDataSize,
}

// Pipeline is a driver pipeline with the descriptor layout derived from
// its shaders.
type Pipeline struct {
	Kind      PipelineKind
	Handle    driver.Pipeline
	SetLayout driver.DescriptorSetLayout
	Bindings  []driver.DescriptorBinding
	// LocalSize is the compute workgroup size.
	LocalSize [3]uint32
}

type loadedModule struct {
	module *shader.Module
	handle driver.ShaderModule
}

// Pipelines builds the quad, text and particle graphics pipelines and the
// particle compute pipeline from shader files.
type Pipelines struct {
	device  driver.Device
	logger  *log.Logger
	paths   config.Shaders
	modules map[string]loadedModule
	byKind  [pipelineKindCount]*Pipeline
}

func LoadPipelines(device driver.Device, renderPass driver.RenderPass, paths config.Shaders, logger *log.Logger) (*Pipelines, error) {
	p := &Pipelines{
		device:  device,
		logger:  logger,
		paths:   paths,
		modules: make(map[string]loadedModule),
	}
	for _, path := range []string{
		paths.QuadVertex, paths.QuadFragment,
		paths.TextVertex, paths.TextFragment,
		paths.ParticleVertex, paths.ParticleFragment,
		paths.ParticleCompute,
	} {
		if err := p.loadModule(path); err != nil {
			p.Destroy()
			return nil, err
		}
	}
	if err := p.buildGraphics(renderPass); err != nil {
		p.Destroy()
		return nil, err
	}
	compute, err := p.buildCompute()
	if err != nil {
		p.Destroy()
		return nil, err
	}
	p.byKind[PipelineParticleCompute] = compute
	return p, nil
}

func (p *Pipelines) loadModule(path string) error {
	if _, ok := p.modules[path]; ok {
		return nil
	}
	m, err := shader.Load(path)
	if err != nil {
		p.logger.Error("failed to load shader", "path", path, "err", err)
		return core.Fatal("load shader", err)
	}
	handle, err := p.device.NewShaderModule(m.Label, m.Code)
	if err != nil {
		return core.Fatal("create shader module", err)
	}
	p.modules[path] = loadedModule{module: m, handle: handle}
	p.logger.Debug("shader loaded", "path", path, "entry_points", len(m.Reflection.EntryPoints), "bindings", len(m.Reflection.Bindings))
	return nil
}

func (p *Pipelines) Get(kind PipelineKind) *Pipeline {
	return p.byKind[kind]
}

// Rebuild recreates the graphics pipelines for a new render pass. The
// compute pipeline does not depend on the render pass and is kept.
func (p *Pipelines) Rebuild(renderPass driver.RenderPass) error {
	for _, kind := range []PipelineKind{PipelineQuad, PipelineText, PipelineParticle} {
		p.destroyPipeline(kind)
	}
	return p.buildGraphics(renderPass)
}

func (p *Pipelines) buildGraphics(renderPass driver.RenderPass) error {
	stages := []struct {
		kind       PipelineKind
		vert, frag string
	}{
		{PipelineQuad, p.paths.QuadVertex, p.paths.QuadFragment},
		{PipelineText, p.paths.TextVertex, p.paths.TextFragment},
		{PipelineParticle, p.paths.ParticleVertex, p.paths.ParticleFragment},
	}
	for _, s := range stages {
		pl, err := p.buildGraphicsPipeline(s.kind, p.modules[s.vert], p.modules[s.frag], renderPass)
		if err != nil {
			return err
		}
		p.byKind[s.kind] = pl
	}
	return nil
}

type stageBindings struct {
	stage    driver.ShaderStage
	bindings []shader.Binding
}

// mergeBindings combines the bindings of several stages into one set
// layout. A binding declared by more than one stage must agree on its type.
func mergeBindings(stages ...stageBindings) ([]driver.DescriptorBinding, error) {
	var out []driver.DescriptorBinding
	index := make(map[uint32]int)
	for _, s := range stages {
		for _, b := range s.bindings {
			if b.Set != 0 {
				return nil, fmt.Errorf("binding %s uses descriptor set %d, only set 0 is supported", b.Name, b.Set)
			}
			i, ok := index[b.Binding]
			if !ok {
				index[b.Binding] = len(out)
				out = append(out, driver.DescriptorBinding{
					Binding:  b.Binding,
					Type:     b.Type,
					Count:    b.Count,
					Stages:   s.stage,
					ReadOnly: b.ReadOnly,
				})
				continue
			}
			if out[i].Type != b.Type {
				return nil, fmt.Errorf("binding %d declared with conflicting types", b.Binding)
			}
			out[i].Stages |= s.stage
			out[i].ReadOnly = out[i].ReadOnly && b.ReadOnly
			if b.Count > out[i].Count {
				out[i].Count = b.Count
			}
		}
	}
	return out, nil
}

// vertexLayout builds the vertex bindings and attributes for the inputs a
// vertex shader actually declares.
func vertexLayout(kind PipelineKind, inputs []shader.VertexInput) ([]driver.VertexBinding, []driver.VertexAttribute, error) {
	bindings := []driver.VertexBinding{
		{Binding: quadVertexBinding, Stride: layout.VertexSize, Rate: driver.RatePerVertex},
		{Binding: instanceVertexBinding, Stride: instanceStride[kind], Rate: driver.RatePerInstance},
	}
	attrs := make([]driver.VertexAttribute, 0, len(inputs))
	for _, in := range inputs {
		a, ok := quadAttributes[in.Location]
		if !ok {
			a, ok = instanceAttributes[kind][in.Location]
		}
		if !ok {
			return nil, nil, fmt.Errorf("%s shader: unexpected vertex input %q at location %d", kind, in.Name, in.Location)
		}
		if in.Format != a.format {
			return nil, nil, fmt.Errorf("%s shader: vertex input %q at location %d has format %d, want %d", kind, in.Name, in.Location, in.Format, a.format)
		}
		attrs = append(attrs, driver.VertexAttribute{Location: in.Location, Binding: a.binding, Format: a.format, Offset: a.offset})
	}
	return bindings, attrs, nil
}

func pushConstants(stages driver.ShaderStage, modules ...*shader.Module) []driver.PushConstantRange {
	var size uint32
	for _, m := range modules {
		if m.Reflection.PushConstantSize > size {
			size = m.Reflection.PushConstantSize
		}
	}
	if size == 0 {
		return nil
	}
	return []driver.PushConstantRange{{Stages: stages, Size: size}}
}

func (p *Pipelines) buildGraphicsPipeline(kind PipelineKind, vs, fs loadedModule, renderPass driver.RenderPass) (*Pipeline, error) {
	ve, err := vs.module.Entry(driver.StageVertex)
	if err != nil {
		return nil, core.Fatal("create pipeline", err)
	}
	fe, err := fs.module.Entry(driver.StageFragment)
	if err != nil {
		return nil, core.Fatal("create pipeline", err)
	}
	bindings, err := mergeBindings(
		stageBindings{driver.StageVertex, vs.module.Reflection.Bindings},
		stageBindings{driver.StageFragment, fs.module.Reflection.Bindings},
	)
	if err != nil {
		return nil, core.Fatal("create pipeline", fmt.Errorf("%s: %w", kind, err))
	}
	vbs, attrs, err := vertexLayout(kind, vs.module.Reflection.VertexInputs(ve.Name))
	if err != nil {
		return nil, core.Fatal("create pipeline", err)
	}

	setLayout, err := p.device.NewDescriptorSetLayout(bindings)
	if err != nil {
		return nil, core.Fatal("create descriptor set layout", err)
	}
	handle, err := p.device.NewGraphicsPipeline(driver.GraphicsPipelineDesc{
		Label:            kind.String(),
		Vertex:           driver.ShaderStageDesc{Module: vs.handle, Entry: ve.Name},
		Fragment:         driver.ShaderStageDesc{Module: fs.handle, Entry: fe.Name},
		VertexBindings:   vbs,
		VertexAttributes: attrs,
		SetLayouts:       []driver.DescriptorSetLayout{setLayout},
		PushConstants:    pushConstants(driver.StageVertex|driver.StageFragment, vs.module, fs.module),
		RenderPass:       renderPass,
		AlphaBlend:       true,
	})
	if err != nil {
		setLayout.Destroy()
		return nil, core.Fatal("create pipeline", fmt.Errorf("%s: %w", kind, err))
	}
	return &Pipeline{Kind: kind, Handle: handle, SetLayout: setLayout, Bindings: bindings}, nil
}

func (p *Pipelines) buildCompute() (*Pipeline, error) {
	cs := p.modules[p.paths.ParticleCompute]
	ce, err := cs.module.Entry(driver.StageCompute)
	if err != nil {
		return nil, core.Fatal("create compute pipeline", err)
	}
	bindings, err := mergeBindings(stageBindings{driver.StageCompute, cs.module.Reflection.Bindings})
	if err != nil {
		return nil, core.Fatal("create compute pipeline", err)
	}
	setLayout, err := p.device.NewDescriptorSetLayout(bindings)
	if err != nil {
		return nil, core.Fatal("create descriptor set layout", err)
	}
	handle, err := p.device.NewComputePipeline(driver.ComputePipelineDesc{
		Label:         PipelineParticleCompute.String(),
		Compute:       driver.ShaderStageDesc{Module: cs.handle, Entry: ce.Name},
		SetLayouts:    []driver.DescriptorSetLayout{setLayout},
		PushConstants: pushConstants(driver.StageCompute, cs.module),
	})
	if err != nil {
		setLayout.Destroy()
		return nil, core.Fatal("create compute pipeline", err)
	}
	local := ce.LocalSize
	for i := range local {
		if local[i] == 0 {
			local[i] = 1
		}
	}
	return &Pipeline{Kind: PipelineParticleCompute, Handle: handle, SetLayout: setLayout, Bindings: bindings, LocalSize: local}, nil
}

func (p *Pipelines) destroyPipeline(kind PipelineKind) {
	pl := p.byKind[kind]
	if pl == nil {
		return
	}
	pl.Handle.Destroy()
	pl.SetLayout.Destroy()
	p.byKind[kind] = nil
}

func (p *Pipelines) Destroy() {
	for kind := PipelineKind(0); kind < pipelineKindCount; kind++ {
		p.destroyPipeline(kind)
	}
	for path, m := range p.modules {
		m.handle.Destroy()
		delete(p.modules, path)
	}
}
