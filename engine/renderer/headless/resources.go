package headless

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

const bufferAlignment = 16

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) / a * a
}

type memory struct {
	d         *Device
	data      []byte
	typ       uint32
	mapped    bool
	destroyed bool
}

func (d *Device) AllocateMemory(size uint64, memoryType uint32) (driver.Memory, error) {
	if int(memoryType) >= len(d.memoryTypes) {
		return nil, fmt.Errorf("headless: memory type %d out of range", memoryType)
	}
	if d.memoryLimit > 0 && d.memoryUsed+size > d.memoryLimit {
		return nil, driver.ErrOutOfMemory
	}
	d.memoryUsed += size
	d.created("memory")
	return &memory{d: d, data: make([]byte, size), typ: memoryType}, nil
}

func (m *memory) Size() uint64 {
	return uint64(len(m.data))
}

func (m *memory) Map() ([]byte, error) {
	if m.destroyed {
		return nil, errors.New("headless: map of destroyed memory")
	}
	if m.d.memoryTypes[m.typ].Properties&driver.MemoryHostVisible == 0 {
		return nil, fmt.Errorf("headless: memory type %d is not host visible", m.typ)
	}
	m.mapped = true
	return m.data, nil
}

func (m *memory) Unmap() {
	m.mapped = false
}

func (m *memory) Destroy() {
	if m.d.release("memory", &m.destroyed) {
		m.d.memoryUsed -= uint64(len(m.data))
	}
}

type buffer struct {
	d         *Device
	size      uint64
	usage     driver.BufferUsage
	mem       *memory
	offset    uint64
	destroyed bool
}

func (d *Device) NewBuffer(size uint64, usage driver.BufferUsage) (driver.Buffer, error) {
	if size == 0 {
		return nil, errors.New("headless: zero sized buffer")
	}
	d.created("buffer")
	return &buffer{d: d, size: size, usage: usage}, nil
}

func (b *buffer) Size() uint64              { return b.size }
func (b *buffer) Usage() driver.BufferUsage { return b.usage }

func (b *buffer) Requirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:      alignUp(b.size, bufferAlignment),
		Alignment: bufferAlignment,
		TypeBits:  b.d.typeBits(),
	}
}

func (b *buffer) Bind(mem driver.Memory, offset uint64) error {
	m, ok := mem.(*memory)
	if !ok {
		return errors.New("headless: foreign memory object")
	}
	if b.mem != nil {
		return errors.New("headless: buffer already bound")
	}
	if offset%bufferAlignment != 0 || offset+b.size > m.Size() {
		return fmt.Errorf("headless: bad buffer binding at offset %d in %d bytes", offset, m.Size())
	}
	b.mem, b.offset = m, offset
	return nil
}

func (b *buffer) Destroy() {
	if b.d.release("buffer", &b.destroyed) {
		delete(b.d.dirty, b)
	}
}

// bytes returns the buffer's view of its memory, or nil when unbound.
func (b *buffer) bytes() []byte {
	if b.mem == nil {
		return nil
	}
	return b.mem.data[b.offset : b.offset+b.size]
}

type image struct {
	d         *Device
	extent    driver.Extent2D
	format    driver.Format
	layout    driver.Layout
	mem       *memory
	offset    uint64
	swapchain bool
	destroyed bool
}

func (d *Device) NewImage(desc driver.ImageDesc) (driver.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("headless: zero sized image %dx%d", desc.Width, desc.Height)
	}
	d.created("image")
	return &image{
		d:      d,
		extent: driver.Extent2D{Width: desc.Width, Height: desc.Height},
		format: desc.Format,
	}, nil
}

func (i *image) Extent() driver.Extent2D { return i.extent }
func (i *image) Format() driver.Format   { return i.format }

func (i *image) size() uint64 {
	return uint64(i.extent.Width) * uint64(i.extent.Height) * 4
}

func (i *image) Requirements() driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:      alignUp(i.size(), bufferAlignment),
		Alignment: bufferAlignment,
		TypeBits:  i.d.typeBits(),
	}
}

func (i *image) Bind(mem driver.Memory, offset uint64) error {
	m, ok := mem.(*memory)
	if !ok {
		return errors.New("headless: foreign memory object")
	}
	if i.swapchain || i.mem != nil {
		return errors.New("headless: image already bound")
	}
	if offset+i.size() > m.Size() {
		return fmt.Errorf("headless: image needs %d bytes at offset %d, memory has %d", i.size(), offset, m.Size())
	}
	i.mem, i.offset = m, offset
	return nil
}

func (i *image) Destroy() {
	if i.swapchain {
		i.d.errorf("swapchain image destroyed by caller")
		return
	}
	i.d.release("image", &i.destroyed)
}

func (i *image) texels() []byte {
	if i.mem == nil {
		return nil
	}
	return i.mem.data[i.offset : i.offset+i.size()]
}

// Texels returns the bytes backing img, or nil if img is not a bound
// headless image.
func Texels(img driver.Image) []byte {
	if i, ok := img.(*image); ok {
		return i.texels()
	}
	return nil
}

// ImageLayout returns the layout img was last transitioned to by executed
// work.
func ImageLayout(img driver.Image) driver.Layout {
	if i, ok := img.(*image); ok {
		return i.layout
	}
	return driver.LayoutUndefined
}

type sampler struct {
	d         *Device
	desc      driver.SamplerDesc
	destroyed bool
}

func (d *Device) NewSampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	d.created("sampler")
	return &sampler{d: d, desc: desc}, nil
}

func (s *sampler) Destroy() {
	s.d.release("sampler", &s.destroyed)
}

type shaderModule struct {
	d         *Device
	label     string
	destroyed bool
}

func (d *Device) NewShaderModule(label string, spirv []byte) (driver.ShaderModule, error) {
	if len(spirv) == 0 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("headless: shader %s: code size %d is not a multiple of 4", label, len(spirv))
	}
	d.created("shader")
	return &shaderModule{d: d, label: label}, nil
}

func (s *shaderModule) Label() string { return s.label }

func (s *shaderModule) Destroy() {
	s.d.release("shader", &s.destroyed)
}

type descriptorSetLayout struct {
	d         *Device
	bindings  []driver.DescriptorBinding
	destroyed bool
}

func (d *Device) NewDescriptorSetLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	seen := make(map[uint32]bool, len(bindings))
	for _, b := range bindings {
		if seen[b.Binding] {
			return nil, fmt.Errorf("headless: binding %d declared twice", b.Binding)
		}
		if b.Count == 0 {
			return nil, fmt.Errorf("headless: binding %d has zero descriptors", b.Binding)
		}
		seen[b.Binding] = true
	}
	d.created("descriptor_set_layout")
	return &descriptorSetLayout{d: d, bindings: append([]driver.DescriptorBinding(nil), bindings...)}, nil
}

func (l *descriptorSetLayout) Bindings() []driver.DescriptorBinding {
	return l.bindings
}

func (l *descriptorSetLayout) binding(n uint32) (driver.DescriptorBinding, bool) {
	for _, b := range l.bindings {
		if b.Binding == n {
			return b, true
		}
	}
	return driver.DescriptorBinding{}, false
}

func (l *descriptorSetLayout) Destroy() {
	l.d.release("descriptor_set_layout", &l.destroyed)
}

type bufferRange struct {
	buf          *buffer
	offset, size uint64
}

func (r bufferRange) bytes() []byte {
	data := r.buf.bytes()
	if data == nil {
		return nil
	}
	return data[r.offset : r.offset+r.size]
}

type descriptorSet struct {
	d         *Device
	layout    *descriptorSetLayout
	buffers   map[uint32]bufferRange
	images    map[uint32][]driver.Image
	destroyed bool
}

func (d *Device) NewDescriptorSet(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	l, ok := layout.(*descriptorSetLayout)
	if !ok {
		return nil, errors.New("headless: foreign descriptor set layout")
	}
	d.created("descriptor_set")
	return &descriptorSet{
		d:       d,
		layout:  l,
		buffers: make(map[uint32]bufferRange),
		images:  make(map[uint32][]driver.Image),
	}, nil
}

func (s *descriptorSet) WriteBuffer(binding uint32, buf driver.Buffer, offset, size uint64) error {
	b, ok := s.layout.binding(binding)
	if !ok {
		return fmt.Errorf("headless: binding %d not in layout", binding)
	}
	if b.Type != driver.DescriptorUniformBuffer && b.Type != driver.DescriptorStorageBuffer {
		return fmt.Errorf("headless: binding %d is not a buffer binding", binding)
	}
	hb, ok := buf.(*buffer)
	if !ok {
		return errors.New("headless: foreign buffer")
	}
	if offset+size > hb.size {
		return fmt.Errorf("headless: range %d+%d exceeds buffer size %d", offset, size, hb.size)
	}
	s.buffers[binding] = bufferRange{buf: hb, offset: offset, size: size}
	return nil
}

func (s *descriptorSet) WriteImages(binding uint32, images []driver.Image, samplers []driver.Sampler) error {
	b, ok := s.layout.binding(binding)
	if !ok {
		return fmt.Errorf("headless: binding %d not in layout", binding)
	}
	n := len(images)
	if b.Type == driver.DescriptorSampler {
		n = len(samplers)
	}
	if uint32(n) > b.Count {
		return fmt.Errorf("headless: %d descriptors written to binding %d of %d", n, binding, b.Count)
	}
	if b.Type == driver.DescriptorCombinedImageSampler && len(samplers) != len(images) {
		return fmt.Errorf("headless: binding %d needs one sampler per image", binding)
	}
	s.images[binding] = append([]driver.Image(nil), images...)
	return nil
}

func (s *descriptorSet) Destroy() {
	s.d.release("descriptor_set", &s.destroyed)
}

type renderPass struct {
	d         *Device
	desc      driver.RenderPassDesc
	destroyed bool
}

func (d *Device) NewRenderPass(desc driver.RenderPassDesc) (driver.RenderPass, error) {
	if desc.ColorFormat == driver.FormatUndefined {
		return nil, errors.New("headless: render pass without a color format")
	}
	d.created("render_pass")
	return &renderPass{d: d, desc: desc}, nil
}

func (r *renderPass) Destroy() {
	r.d.release("render_pass", &r.destroyed)
}

type framebuffer struct {
	d         *Device
	extent    driver.Extent2D
	destroyed bool
}

func (d *Device) NewFramebuffer(rp driver.RenderPass, attachments []driver.Image, width, height uint32) (driver.Framebuffer, error) {
	if _, ok := rp.(*renderPass); !ok {
		return nil, errors.New("headless: foreign render pass")
	}
	for i, a := range attachments {
		if e := a.Extent(); e.Width != width || e.Height != height {
			return nil, fmt.Errorf("headless: attachment %d is %dx%d, framebuffer is %dx%d", i, e.Width, e.Height, width, height)
		}
	}
	d.created("framebuffer")
	return &framebuffer{d: d, extent: driver.Extent2D{Width: width, Height: height}}, nil
}

func (f *framebuffer) Destroy() {
	f.d.release("framebuffer", &f.destroyed)
}

type pipeline struct {
	d         *Device
	label     string
	compute   bool
	module    string
	bindings  []driver.VertexBinding
	layouts   []*descriptorSetLayout
	destroyed bool
}

func (d *Device) pipelineLayouts(layouts []driver.DescriptorSetLayout) ([]*descriptorSetLayout, error) {
	out := make([]*descriptorSetLayout, len(layouts))
	for i, l := range layouts {
		hl, ok := l.(*descriptorSetLayout)
		if !ok {
			return nil, errors.New("headless: foreign descriptor set layout")
		}
		out[i] = hl
	}
	return out, nil
}

func (d *Device) NewGraphicsPipeline(desc driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	if desc.Vertex.Module == nil || desc.Fragment.Module == nil {
		return nil, fmt.Errorf("headless: pipeline %s: missing shader stage", desc.Label)
	}
	if desc.RenderPass == nil {
		return nil, fmt.Errorf("headless: pipeline %s: missing render pass", desc.Label)
	}
	for _, a := range desc.VertexAttributes {
		found := false
		for _, b := range desc.VertexBindings {
			if b.Binding == a.Binding {
				found = a.Offset+a.Format.Size() <= b.Stride
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("headless: pipeline %s: attribute %d does not fit binding %d", desc.Label, a.Location, a.Binding)
		}
	}
	layouts, err := d.pipelineLayouts(desc.SetLayouts)
	if err != nil {
		return nil, err
	}
	d.created("pipeline")
	return &pipeline{
		d:        d,
		label:    desc.Label,
		module:   desc.Vertex.Module.Label(),
		bindings: append([]driver.VertexBinding(nil), desc.VertexBindings...),
		layouts:  layouts,
	}, nil
}

func (d *Device) NewComputePipeline(desc driver.ComputePipelineDesc) (driver.Pipeline, error) {
	if desc.Compute.Module == nil {
		return nil, fmt.Errorf("headless: pipeline %s: missing compute stage", desc.Label)
	}
	layouts, err := d.pipelineLayouts(desc.SetLayouts)
	if err != nil {
		return nil, err
	}
	d.created("pipeline")
	return &pipeline{
		d:       d,
		label:   desc.Label,
		compute: true,
		module:  desc.Compute.Module.Label(),
		layouts: layouts,
	}, nil
}

func (p *pipeline) Label() string { return p.label }

func (p *pipeline) Destroy() {
	p.d.release("pipeline", &p.destroyed)
}
