// Package driver defines the narrow set of GPU objects the renderer needs.
// The vulkan package implements it on top of a real device and the headless
// package implements it in software for tests.
package driver

import (
	"errors"
	"time"
)

var (
	// ErrOutOfDate means the swapchain no longer matches the surface and
	// must be recreated before it can be used again.
	ErrOutOfDate = errors.New("driver: swapchain out of date")
	// ErrSurfaceLost means the presentation surface is gone.
	ErrSurfaceLost = errors.New("driver: surface lost")
	// ErrTimeout means a bounded wait expired.
	ErrTimeout = errors.New("driver: wait timed out")
	// ErrDeviceLost means the device is in an unrecoverable state.
	ErrDeviceLost = errors.New("driver: device lost")
	// ErrOutOfMemory means host or device memory could not be allocated.
	ErrOutOfMemory = errors.New("driver: out of memory")
	// ErrUnsupported means the device lacks a required feature.
	ErrUnsupported = errors.New("driver: unsupported")
)

// Backend opens devices bound to a presentation surface.
type Backend interface {
	Name() string
	Open(surface Surface, appName string, apiVersion uint32) (Device, error)
}

// Surface is the window side of presentation.
type Surface interface {
	// FramebufferSize returns the drawable size in pixels. A zero
	// dimension means the window is minimized.
	FramebufferSize() (width, height uint32)
	// RequiredInstanceExtensions lists the instance extensions needed to
	// present to this surface.
	RequiredInstanceExtensions() []string
	// CreateSurface creates the API surface for instance and returns its
	// handle.
	CreateSurface(instance interface{}) (uintptr, error)
}

type Destroyer interface {
	Destroy()
}

// Device creates every other object and owns the queues.
type Device interface {
	Destroyer

	MemoryTypes() []MemoryType
	DepthFormat() Format
	SurfaceCapabilities() (SurfaceCapabilities, error)

	NewBuffer(size uint64, usage BufferUsage) (Buffer, error)
	AllocateMemory(size uint64, memoryType uint32) (Memory, error)
	NewImage(desc ImageDesc) (Image, error)
	NewSampler(desc SamplerDesc) (Sampler, error)
	NewShaderModule(label string, spirv []byte) (ShaderModule, error)
	NewDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	NewDescriptorSet(layout DescriptorSetLayout) (DescriptorSet, error)
	NewRenderPass(desc RenderPassDesc) (RenderPass, error)
	NewFramebuffer(rp RenderPass, attachments []Image, width, height uint32) (Framebuffer, error)
	NewGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	NewComputePipeline(desc ComputePipelineDesc) (Pipeline, error)
	NewCommandBuffer() (CommandBuffer, error)
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)
	NewSwapchain(desc SwapchainDesc) (Swapchain, error)

	// Submit queues work. The fence, if not nil, must be unsignaled and is
	// signaled once the work completes.
	Submit(info SubmitInfo, fence Fence) error
	// Present queues a swapchain image for display. A suboptimal result is
	// reported as true with a nil error.
	Present(info PresentInfo) (suboptimal bool, err error)
	// WaitIdle blocks until all queued work completes.
	WaitIdle() error
}

type MemoryProperty uint32

const (
	MemoryDeviceLocal MemoryProperty = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)

type MemoryType struct {
	Properties MemoryProperty
	Heap       uint32
}

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	// TypeBits has bit i set when memory type i can back the resource.
	TypeBits uint32
}

// Memory is a device allocation. Host-visible allocations can be mapped;
// the mapping stays valid until Unmap or Destroy.
type Memory interface {
	Destroyer
	Size() uint64
	Map() ([]byte, error)
	Unmap()
}

type BufferUsage uint32

const (
	BufferVertex BufferUsage = 1 << iota
	BufferIndex
	BufferUniform
	BufferStorage
	BufferTransferSrc
	BufferTransferDst
)

type Buffer interface {
	Destroyer
	Size() uint64
	Usage() BufferUsage
	Requirements() MemoryRequirements
	Bind(mem Memory, offset uint64) error
}

type Format uint32

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8SRGB
	FormatBGRA8Unorm
	FormatBGRA8SRGB
	FormatD32Float
	FormatD32FloatS8
	FormatD24UnormS8
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatR32Uint
	FormatR32Sint
)

// Size returns the size in bytes of one element of a vertex format, or
// zero for formats that are not vertex formats.
func (f Format) Size() uint32 {
	switch f {
	case FormatR32Float, FormatR32Uint, FormatR32Sint:
		return 4
	case FormatRG32Float:
		return 8
	case FormatRGB32Float:
		return 12
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD32FloatS8 || f == FormatD24UnormS8
}

type ImageUsage uint32

const (
	ImageSampled ImageUsage = 1 << iota
	ImageTransferDst
	ImageColorAttachment
	ImageDepthAttachment
)

type ImageDesc struct {
	Width, Height uint32
	Format        Format
	Usage         ImageUsage
}

type Extent2D struct {
	Width, Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Image is a 2D image together with its default view. Images owned by a
// swapchain are already bound and must not be destroyed by the caller.
type Image interface {
	Destroyer
	Extent() Extent2D
	Format() Format
	Requirements() MemoryRequirements
	Bind(mem Memory, offset uint64) error
}

type Layout uint32

const (
	LayoutUndefined Layout = iota
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutPresent
)

type Filter uint32

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode uint32

const (
	AddressClampToEdge AddressMode = iota
	AddressRepeat
)

type SamplerDesc struct {
	Filter      Filter
	AddressMode AddressMode
}

type Sampler interface {
	Destroyer
}

type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return "mixed"
}

type ShaderModule interface {
	Destroyer
	Label() string
}

type DescriptorType uint32

const (
	DescriptorUniformBuffer DescriptorType = iota
	DescriptorStorageBuffer
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorSampler
)

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
	// ReadOnly marks storage buffers the shaders never write.
	ReadOnly bool
}

type DescriptorSetLayout interface {
	Destroyer
	Bindings() []DescriptorBinding
}

// DescriptorSet binds resources to a pipeline. Writes take effect
// immediately and must not target a set used by pending work.
type DescriptorSet interface {
	Destroyer
	WriteBuffer(binding uint32, buf Buffer, offset, size uint64) error
	// WriteImages fills an image binding starting at array element 0.
	// Combined image samplers take one sampler per image, sampled images
	// take nil samplers and sampler bindings take nil images.
	WriteImages(binding uint32, images []Image, samplers []Sampler) error
}

type RenderPassDesc struct {
	ColorFormat Format
	DepthFormat Format
}

type RenderPass interface {
	Destroyer
}

type Framebuffer interface {
	Destroyer
}

type VertexRate uint32

const (
	RatePerVertex VertexRate = iota
	RatePerInstance
)

type VertexBinding struct {
	Binding uint32
	Stride  uint32
	Rate    VertexRate
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type ShaderStageDesc struct {
	Module ShaderModule
	Entry  string
}

type GraphicsPipelineDesc struct {
	Label            string
	Vertex           ShaderStageDesc
	Fragment         ShaderStageDesc
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	SetLayouts       []DescriptorSetLayout
	PushConstants    []PushConstantRange
	RenderPass       RenderPass
	AlphaBlend       bool
	DepthTest        bool
}

type ComputePipelineDesc struct {
	Label         string
	Compute       ShaderStageDesc
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type Pipeline interface {
	Destroyer
	Label() string
}

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageTransfer
	PipelineStageComputeShader
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageColorAttachmentOutput
	PipelineStageBottomOfPipe
)

type Access uint32

const (
	AccessTransferWrite Access = 1 << iota
	AccessShaderRead
	AccessShaderWrite
	AccessVertexAttributeRead
	AccessUniformRead
	AccessHostWrite
)

type IndexType uint32

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect2D struct {
	X, Y          int32
	Width, Height uint32
}

type BufferCopy struct {
	SrcOffset, DstOffset, Size uint64
}

// CommandBuffer records work for Submit. Recording methods other than
// Begin, End and Reset report errors at End.
type CommandBuffer interface {
	Destroyer
	Begin(oneTimeSubmit bool) error
	End() error
	Reset() error

	BeginRenderPass(rp RenderPass, fb Framebuffer, area Rect2D, clearColour [4]float32, clearDepth float32)
	EndRenderPass()
	SetViewport(vp Viewport)
	SetScissor(r Rect2D)
	BindPipeline(p Pipeline)
	BindDescriptorSet(p Pipeline, index uint32, set DescriptorSet)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, typ IndexType)
	PushConstants(p Pipeline, stages ShaderStage, offset uint32, data []byte)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	PipelineBarrier(src, dst PipelineStage, srcAccess, dstAccess Access)
	TransitionImage(img Image, from, to Layout)
	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image)
}

type Fence interface {
	Destroyer
	// Wait blocks until the fence is signaled or timeout elapses, in which
	// case ErrTimeout is returned.
	Wait(timeout time.Duration) error
	Reset() error
	Signaled() (bool, error)
}

type Semaphore interface {
	Destroyer
}

type PresentMode uint32

const (
	PresentImmediate PresentMode = iota
	PresentFIFO
	PresentMailbox
)

func (p PresentMode) String() string {
	switch p {
	case PresentImmediate:
		return "immediate"
	case PresentFIFO:
		return "fifo"
	case PresentMailbox:
		return "mailbox"
	}
	return "unknown"
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of zero means no upper bound.
	MaxImageCount uint32
	CurrentExtent Extent2D
	MinExtent     Extent2D
	MaxExtent     Extent2D
	Formats       []Format
	PresentModes  []PresentMode
}

type SwapchainDesc struct {
	ImageCount  uint32
	Format      Format
	Extent      Extent2D
	PresentMode PresentMode
	// Old, if not nil, is retired by the new swapchain. The caller still
	// destroys it.
	Old Swapchain
}

type Swapchain interface {
	Destroyer
	Images() []Image
	Extent() Extent2D
	Format() Format
	PresentMode() PresentMode
	// AcquireNextImage signals sem once the returned image is ready.
	AcquireNextImage(timeout time.Duration, sem Semaphore) (index uint32, suboptimal bool, err error)
}

type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []Semaphore
	WaitStages     []PipelineStage
	Signal         []Semaphore
}

type PresentInfo struct {
	Swapchain  Swapchain
	ImageIndex uint32
	Wait       []Semaphore
}
