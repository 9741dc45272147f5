package headless

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T, opts ...Option) (*Device, *Window) {
	t.Helper()
	w := NewWindow(640, 480)
	b := NewBackend(opts...)
	dev, err := b.Open(w, "test", 0)
	require.NoError(t, err)
	return dev.(*Device), w
}

func hostBuffer(t *testing.T, d *Device, size uint64, usage driver.BufferUsage) (driver.Buffer, []byte) {
	t.Helper()
	buf, err := d.NewBuffer(size, usage)
	require.NoError(t, err)
	mem, err := d.AllocateMemory(buf.Requirements().Size, 1)
	require.NoError(t, err)
	require.NoError(t, buf.Bind(mem, 0))
	data, err := mem.Map()
	require.NoError(t, err)
	t.Cleanup(func() {
		buf.Destroy()
		mem.Destroy()
	})
	return buf, data[:size]
}

func emptySubmit(t *testing.T, d *Device) (driver.CommandBuffer, driver.Fence) {
	t.Helper()
	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin(false))
	require.NoError(t, cb.End())
	f, err := d.NewFence(false)
	require.NoError(t, err)
	require.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffers: []driver.CommandBuffer{cb}}, f))
	return cb, f
}

func TestSubmissionsRunLazily(t *testing.T) {
	d, _ := newDevice(t)

	_, f1 := emptySubmit(t, d)
	_, f2 := emptySubmit(t, d)
	_, f3 := emptySubmit(t, d)
	assert.Equal(t, 3, d.Pending())

	require.NoError(t, f2.Wait(time.Second))
	assert.Equal(t, 1, d.Pending())
	done, _ := f1.Signaled()
	assert.True(t, done)
	done, _ = f3.Signaled()
	assert.False(t, done)

	require.NoError(t, d.WaitIdle())
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, 3, d.MaxPending())
	assert.Equal(t, 3, d.Submissions())
}

func TestFenceNeverSubmittedTimesOut(t *testing.T) {
	d, _ := newDevice(t)
	f, err := d.NewFence(false)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Wait(time.Millisecond), driver.ErrTimeout)

	signaled, err := d.NewFence(true)
	require.NoError(t, err)
	assert.NoError(t, signaled.Wait(time.Millisecond))
}

func TestCommandBufferReuseWhilePending(t *testing.T) {
	d, _ := newDevice(t)
	cb, f := emptySubmit(t, d)

	assert.Error(t, cb.Begin(false))
	assert.Error(t, f.Reset())
	assert.Len(t, d.Errors(), 2)

	require.NoError(t, f.Wait(time.Second))
	assert.NoError(t, cb.Begin(false))
}

func TestSemaphoreProtocol(t *testing.T) {
	d, _ := newDevice(t)
	sem, err := d.NewSemaphore()
	require.NoError(t, err)
	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin(false))
	require.NoError(t, cb.End())

	err = d.Submit(driver.SubmitInfo{
		CommandBuffers: []driver.CommandBuffer{cb},
		Wait:           []driver.Semaphore{sem},
		WaitStages:     []driver.PipelineStage{driver.PipelineStageColorAttachmentOutput},
	}, nil)
	assert.Error(t, err)
	require.Len(t, d.Errors(), 1)

	require.NoError(t, d.Submit(driver.SubmitInfo{
		CommandBuffers: []driver.CommandBuffer{cb},
		Signal:         []driver.Semaphore{sem},
	}, nil))
	require.NoError(t, d.WaitIdle())
	assert.Error(t, d.Submit(driver.SubmitInfo{
		CommandBuffers: []driver.CommandBuffer{cb},
		Signal:         []driver.Semaphore{sem},
	}, nil), "signaling twice without a wait")
}

func TestLeaksAndDoubleDestroy(t *testing.T) {
	d, _ := newDevice(t)
	buf, err := d.NewBuffer(64, driver.BufferVertex)
	require.NoError(t, err)
	_, err = d.NewSemaphore()
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"buffer": 1, "semaphore": 1}, d.LiveCounts())
	buf.Destroy()
	buf.Destroy()
	assert.Equal(t, 0, d.Live("buffer"))
	require.Len(t, d.Errors(), 1)

	d.Destroy()
	require.Len(t, d.Errors(), 2)
	assert.Contains(t, d.Errors()[1].Error(), "semaphore")
}

func TestMemoryLimitAndHostVisibility(t *testing.T) {
	d, _ := newDevice(t, WithMemoryLimit(1024))
	mem, err := d.AllocateMemory(1024, 0)
	require.NoError(t, err)
	_, err = d.AllocateMemory(1, 1)
	assert.ErrorIs(t, err, driver.ErrOutOfMemory)

	_, err = mem.Map()
	assert.Error(t, err, "device local memory is not mappable")
	mem.Destroy()
	assert.Equal(t, uint64(0), d.MemoryUsed())
}

func TestSwapchainAcquirePresent(t *testing.T) {
	d, w := newDevice(t)
	_, err := d.NewSwapchain(driver.SwapchainDesc{ImageCount: 5, Format: driver.FormatBGRA8SRGB, Extent: driver.Extent2D{Width: 640, Height: 480}})
	assert.Error(t, err, "above the maximum image count")

	sc, err := d.NewSwapchain(driver.SwapchainDesc{ImageCount: 3, Format: driver.FormatBGRA8SRGB, Extent: driver.Extent2D{Width: 640, Height: 480}})
	require.NoError(t, err)
	sem, err := d.NewSemaphore()
	require.NoError(t, err)

	idx, _, err := sc.AcquireNextImage(time.Second, sem)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	// Present straight after acquire; the acquire semaphore is the wait.
	_, err = d.Present(driver.PresentInfo{Swapchain: sc, ImageIndex: idx, Wait: []driver.Semaphore{sem}})
	require.NoError(t, err)

	d.InjectAcquireOutOfDate(1)
	_, _, err = sc.AcquireNextImage(time.Second, sem)
	assert.ErrorIs(t, err, driver.ErrOutOfDate)
	idx, _, err = sc.AcquireNextImage(time.Second, sem)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx)

	w.SetSize(800, 600)
	_, err = d.Present(driver.PresentInfo{Swapchain: sc, ImageIndex: idx, Wait: []driver.Semaphore{sem}})
	assert.ErrorIs(t, err, driver.ErrOutOfDate)
	_, _, err = sc.AcquireNextImage(time.Second, sem)
	assert.ErrorIs(t, err, driver.ErrOutOfDate)
	assert.Empty(t, d.Errors())
}

func TestComputeHazardAndBarrier(t *testing.T) {
	d, _ := newDevice(t)
	const label = "double.comp"
	d.RegisterKernel(label, func(groups [3]uint32, bindings map[uint32][]byte, push []byte) {
		src, dst := bindings[0], bindings[1]
		for i := 0; i+4 <= len(src); i += 4 {
			binary.LittleEndian.PutUint32(dst[i:], 2*binary.LittleEndian.Uint32(src[i:]))
		}
	})

	src, srcData := hostBuffer(t, d, 16, driver.BufferStorage)
	dst, _ := hostBuffer(t, d, 16, driver.BufferStorage|driver.BufferVertex)
	idx, idxData := hostBuffer(t, d, 12, driver.BufferIndex)
	copy(idxData, []byte{0, 0, 1, 0, 2, 0})
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(srcData[i*4:], uint32(i+1))
	}

	layout, err := d.NewDescriptorSetLayout([]driver.DescriptorBinding{
		{Binding: 0, Type: driver.DescriptorStorageBuffer, Count: 1, Stages: driver.StageCompute, ReadOnly: true},
		{Binding: 1, Type: driver.DescriptorStorageBuffer, Count: 1, Stages: driver.StageCompute},
	})
	require.NoError(t, err)
	set, err := d.NewDescriptorSet(layout)
	require.NoError(t, err)
	require.NoError(t, set.WriteBuffer(0, src, 0, 16))
	require.NoError(t, set.WriteBuffer(1, dst, 0, 16))

	mod, err := d.NewShaderModule(label, make([]byte, 8))
	require.NoError(t, err)
	comp, err := d.NewComputePipeline(driver.ComputePipelineDesc{Label: "double", Compute: driver.ShaderStageDesc{Module: mod, Entry: "main"}, SetLayouts: []driver.DescriptorSetLayout{layout}})
	require.NoError(t, err)

	rp, err := d.NewRenderPass(driver.RenderPassDesc{ColorFormat: driver.FormatBGRA8SRGB})
	require.NoError(t, err)
	fb, err := d.NewFramebuffer(rp, nil, 4, 4)
	require.NoError(t, err)
	gfx, err := d.NewGraphicsPipeline(driver.GraphicsPipelineDesc{
		Label:            "points",
		Vertex:           driver.ShaderStageDesc{Module: mod, Entry: "vs"},
		Fragment:         driver.ShaderStageDesc{Module: mod, Entry: "fs"},
		VertexBindings:   []driver.VertexBinding{{Binding: 0, Stride: 4, Rate: driver.RatePerInstance}},
		VertexAttributes: []driver.VertexAttribute{{Location: 0, Binding: 0, Format: driver.FormatR32Uint}},
		RenderPass:       rp,
	})
	require.NoError(t, err)

	record := func(barrier bool) {
		cb, err := d.NewCommandBuffer()
		require.NoError(t, err)
		require.NoError(t, cb.Begin(true))
		cb.BindPipeline(comp)
		cb.BindDescriptorSet(comp, 0, set)
		cb.Dispatch(1, 1, 1)
		if barrier {
			cb.PipelineBarrier(driver.PipelineStageComputeShader, driver.PipelineStageVertexInput, driver.AccessShaderWrite, driver.AccessVertexAttributeRead)
		}
		cb.BeginRenderPass(rp, fb, driver.Rect2D{Width: 4, Height: 4}, [4]float32{0, 0, 0, 1}, 1)
		cb.BindPipeline(gfx)
		cb.BindVertexBuffers(0, []driver.Buffer{dst}, []uint64{0})
		cb.BindIndexBuffer(idx, 0, driver.IndexUint16)
		cb.DrawIndexed(3, 4, 0, 0, 0)
		cb.EndRenderPass()
		require.NoError(t, cb.End())
		require.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffers: []driver.CommandBuffer{cb}}, nil))
		require.NoError(t, d.WaitIdle())
	}

	record(true)
	require.Empty(t, d.Errors())
	assert.Empty(t, d.Hazards())
	require.Len(t, d.DrawCalls(), 1)
	draw := d.DrawCalls()[0]
	assert.Equal(t, "points", draw.Pipeline)
	assert.Equal(t, uint32(4), draw.InstanceCount)
	for i := 0; i < 4; i++ {
		assert.Equal(t, uint32(2*(i+1)), binary.LittleEndian.Uint32(draw.Instances[i*4:]))
	}

	record(false)
	require.Len(t, d.Hazards(), 1)
	assert.Equal(t, "points", d.Hazards()[0].Pipeline)
	assert.Equal(t, 2, d.Dispatches())
}

func TestCommandValidation(t *testing.T) {
	d, _ := newDevice(t)
	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin(false))
	cb.DrawIndexed(6, 1, 0, 0, 0)
	assert.Error(t, cb.End(), "draw outside render pass")

	require.NoError(t, cb.Begin(false))
	cb.Dispatch(1, 1, 1)
	assert.Error(t, cb.End(), "dispatch without compute pipeline")
}

func TestImageUpload(t *testing.T) {
	d, _ := newDevice(t)
	staging, data := hostBuffer(t, d, 16, driver.BufferTransferSrc)
	for i := range data {
		data[i] = byte(i)
	}
	img, err := d.NewImage(driver.ImageDesc{Width: 2, Height: 2, Format: driver.FormatRGBA8Unorm, Usage: driver.ImageSampled | driver.ImageTransferDst})
	require.NoError(t, err)
	mem, err := d.AllocateMemory(img.Requirements().Size, 0)
	require.NoError(t, err)
	require.NoError(t, img.Bind(mem, 0))

	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin(true))
	cb.TransitionImage(img, driver.LayoutUndefined, driver.LayoutTransferDst)
	cb.CopyBufferToImage(staging, img)
	cb.TransitionImage(img, driver.LayoutTransferDst, driver.LayoutShaderReadOnly)
	require.NoError(t, cb.End())
	f, err := d.NewFence(false)
	require.NoError(t, err)
	require.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffers: []driver.CommandBuffer{cb}}, f))
	require.NoError(t, f.Wait(time.Second))

	assert.Equal(t, data, Texels(img))
	assert.Equal(t, driver.LayoutShaderReadOnly, ImageLayout(img))
	assert.Empty(t, d.Errors())
}
