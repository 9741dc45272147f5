package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// Buffer is a driver buffer together with the memory backing it. Dynamic
// buffers stay mapped for their whole lifetime.
type Buffer struct {
	Handle driver.Buffer
	Memory driver.Memory
	Size   uint64
	Usage  driver.BufferUsage
	mapped []byte
}

// MapPersistent maps the buffer once. Later calls are no-ops.
func (b *Buffer) MapPersistent() error {
	if b.mapped != nil {
		return nil
	}
	data, err := b.Memory.Map()
	if err != nil {
		return err
	}
	b.mapped = data[:b.Size]
	return nil
}

// Mapped returns the host view of a persistently mapped buffer.
func (b *Buffer) Mapped() []byte {
	return b.mapped
}

// Write copies data into the mapped buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.mapped == nil {
		return errors.New("buffer is not mapped")
	}
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.Size)
	}
	copy(b.mapped[offset:], data)
	return nil
}

// Texture is a sampled image with its memory and sampler.
type Texture struct {
	Name    string
	Image   driver.Image
	Memory  driver.Memory
	Sampler driver.Sampler
	Width   uint32
	Height  uint32
}

// BufferManager allocates device memory and performs staged uploads on a
// dedicated copy command buffer.
type BufferManager struct {
	device    driver.Device
	logger    *log.Logger
	timeout   time.Duration
	copyCmd   driver.CommandBuffer
	copyFence driver.Fence
}

func NewBufferManager(device driver.Device, timeout time.Duration, logger *log.Logger) (*BufferManager, error) {
	cmd, err := device.NewCommandBuffer()
	if err != nil {
		return nil, core.Fatal("create copy command buffer", err)
	}
	fence, err := device.NewFence(false)
	if err != nil {
		cmd.Destroy()
		return nil, core.Fatal("create copy fence", err)
	}
	return &BufferManager{
		device:    device,
		logger:    logger,
		timeout:   timeout,
		copyCmd:   cmd,
		copyFence: fence,
	}, nil
}

// findMemoryType returns the first memory type allowed by typeBits that has
// every property in props.
func (bm *BufferManager) findMemoryType(typeBits uint32, props driver.MemoryProperty) (uint32, error) {
	for i, mt := range bm.device.MemoryTypes() {
		if typeBits&(1<<uint(i)) != 0 && mt.Properties&props == props {
			return uint32(i), nil
		}
	}
	return 0, core.Fatal("find memory type", fmt.Errorf("%w: bits %#b, properties %#x", core.ErrNoMemoryType, typeBits, props))
}

func (bm *BufferManager) allocate(req driver.MemoryRequirements, props driver.MemoryProperty) (driver.Memory, error) {
	idx, err := bm.findMemoryType(req.TypeBits, props)
	if err != nil {
		return nil, err
	}
	mem, err := bm.device.AllocateMemory(req.Size, idx)
	if err != nil {
		return nil, core.Fatal("allocate memory", err)
	}
	return mem, nil
}

func (bm *BufferManager) CreateBuffer(size uint64, usage driver.BufferUsage, props driver.MemoryProperty) (*Buffer, error) {
	handle, err := bm.device.NewBuffer(size, usage)
	if err != nil {
		return nil, core.Fatal("create buffer", err)
	}
	mem, err := bm.allocate(handle.Requirements(), props)
	if err != nil {
		handle.Destroy()
		return nil, err
	}
	if err := handle.Bind(mem, 0); err != nil {
		handle.Destroy()
		mem.Destroy()
		return nil, core.Fatal("bind buffer memory", err)
	}
	return &Buffer{Handle: handle, Memory: mem, Size: size, Usage: usage}, nil
}

// CreateDynamicBuffer creates a host visible, coherent buffer that stays
// mapped until it is destroyed.
func (bm *BufferManager) CreateDynamicBuffer(size uint64, usage driver.BufferUsage) (*Buffer, error) {
	buf, err := bm.CreateBuffer(size, usage, driver.MemoryHostVisible|driver.MemoryHostCoherent)
	if err != nil {
		return nil, err
	}
	if err := buf.MapPersistent(); err != nil {
		bm.DestroyBuffer(buf)
		return nil, core.Fatal("map buffer", err)
	}
	return buf, nil
}

// CreateStaticBuffer uploads data into a device local buffer through a
// staging buffer that is destroyed once the copy has completed.
func (bm *BufferManager) CreateStaticBuffer(data []byte, usage driver.BufferUsage) (*Buffer, error) {
	size := uint64(len(data))
	staging, err := bm.CreateDynamicBuffer(size, driver.BufferTransferSrc)
	if err != nil {
		return nil, err
	}
	defer bm.DestroyBuffer(staging)
	if err := staging.Write(0, data); err != nil {
		return nil, err
	}

	buf, err := bm.CreateBuffer(size, usage|driver.BufferTransferDst, driver.MemoryDeviceLocal)
	if err != nil {
		return nil, err
	}
	err = bm.submitCopy("upload buffer", func(cb driver.CommandBuffer) {
		cb.CopyBuffer(staging.Handle, buf.Handle, []driver.BufferCopy{{Size: size}})
	})
	if err != nil {
		bm.DestroyBuffer(buf)
		return nil, err
	}
	return buf, nil
}

// CreateTexture uploads tightly packed RGBA8 pixels into a sampled image.
func (bm *BufferManager) CreateTexture(name string, width, height uint32, pixels []byte) (*Texture, error) {
	if need := int(width) * int(height) * 4; len(pixels) != need {
		return nil, fmt.Errorf("texture %s: %d bytes of pixels for %dx%d, want %d", name, len(pixels), width, height, need)
	}
	staging, err := bm.CreateDynamicBuffer(uint64(len(pixels)), driver.BufferTransferSrc)
	if err != nil {
		return nil, err
	}
	defer bm.DestroyBuffer(staging)
	if err := staging.Write(0, pixels); err != nil {
		return nil, err
	}

	tex, err := bm.CreateImage(name, width, height, driver.FormatRGBA8Unorm, driver.ImageSampled|driver.ImageTransferDst)
	if err != nil {
		return nil, err
	}
	err = bm.submitCopy("upload texture", func(cb driver.CommandBuffer) {
		cb.TransitionImage(tex.Image, driver.LayoutUndefined, driver.LayoutTransferDst)
		cb.CopyBufferToImage(staging.Handle, tex.Image)
		cb.TransitionImage(tex.Image, driver.LayoutTransferDst, driver.LayoutShaderReadOnly)
	})
	if err != nil {
		bm.DestroyTexture(tex)
		return nil, err
	}
	tex.Sampler, err = bm.device.NewSampler(driver.SamplerDesc{Filter: driver.FilterLinear, AddressMode: driver.AddressClampToEdge})
	if err != nil {
		bm.DestroyTexture(tex)
		return nil, core.Fatal("create sampler", err)
	}
	return tex, nil
}

// CreateImage creates a device local image without uploading anything. It
// is used for attachments and as the first step of texture creation.
func (bm *BufferManager) CreateImage(name string, width, height uint32, format driver.Format, usage driver.ImageUsage) (*Texture, error) {
	img, err := bm.device.NewImage(driver.ImageDesc{Width: width, Height: height, Format: format, Usage: usage})
	if err != nil {
		return nil, core.Fatal("create image", err)
	}
	mem, err := bm.allocate(img.Requirements(), driver.MemoryDeviceLocal)
	if err != nil {
		img.Destroy()
		return nil, err
	}
	if err := img.Bind(mem, 0); err != nil {
		img.Destroy()
		mem.Destroy()
		return nil, core.Fatal("bind image memory", err)
	}
	return &Texture{Name: name, Image: img, Memory: mem, Width: width, Height: height}, nil
}

// submitCopy records a one-time command buffer and blocks until the device
// has executed it.
func (bm *BufferManager) submitCopy(op string, record func(cb driver.CommandBuffer)) error {
	if err := bm.copyCmd.Begin(true); err != nil {
		return core.Fatal(op, err)
	}
	record(bm.copyCmd)
	if err := bm.copyCmd.End(); err != nil {
		return core.Fatal(op, err)
	}
	if err := bm.copyFence.Reset(); err != nil {
		return core.Fatal(op, err)
	}
	if err := bm.device.Submit(driver.SubmitInfo{CommandBuffers: []driver.CommandBuffer{bm.copyCmd}}, bm.copyFence); err != nil {
		return core.Fatal(op, err)
	}
	return waitFence(bm.copyFence, bm.timeout, op, bm.logger)
}

func (bm *BufferManager) DestroyBuffer(b *Buffer) {
	if b == nil {
		return
	}
	if b.mapped != nil {
		b.Memory.Unmap()
		b.mapped = nil
	}
	b.Handle.Destroy()
	b.Memory.Destroy()
}

func (bm *BufferManager) DestroyTexture(t *Texture) {
	if t == nil {
		return
	}
	if t.Sampler != nil {
		t.Sampler.Destroy()
	}
	t.Image.Destroy()
	t.Memory.Destroy()
}

func (bm *BufferManager) Destroy() {
	bm.copyFence.Destroy()
	bm.copyCmd.Destroy()
}
