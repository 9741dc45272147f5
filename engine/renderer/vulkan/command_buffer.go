package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

var errNotRecording = errors.New("vulkan: command buffer is not recording")

// VulkanCommandBuffer is a primary command buffer from the graphics pool.
// The first recording error is kept and returned by End.
type VulkanCommandBuffer struct {
	context *VulkanContext
	Handle  vk.CommandBuffer
	State   VulkanCommandBufferState

	err error
}

func (d *VulkanDevice) NewCommandBuffer() (driver.CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.GraphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	err := d.context.locks.SafeCall(CommandBufferManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.LogicalDevice, &allocateInfo, handles))
	})
	if err != nil {
		return nil, err
	}
	return &VulkanCommandBuffer{
		context: d.context,
		Handle:  handles[0],
		State:   COMMAND_BUFFER_STATE_READY,
	}, nil
}

func (v *VulkanCommandBuffer) Begin(oneTimeSubmit bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTimeSubmit {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := resultError("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, &beginInfo)); err != nil {
		return err
	}
	v.err = nil
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.fail(errors.New("vulkan: command buffer ended inside a render pass"))
		vk.CmdEndRenderPass(v.Handle)
	}
	if err := resultError("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return v.err
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() error {
	if err := resultError("vkResetCommandBuffer", vk.ResetCommandBuffer(v.Handle, 0)); err != nil {
		return err
	}
	v.err = nil
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) Destroy() {
	if v.Handle == nil {
		return
	}
	device := v.context.Device
	_ = v.context.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(device.LogicalDevice, device.GraphicsCommandPool, 1, []vk.CommandBuffer{v.Handle})
		return nil
	})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

func (v *VulkanCommandBuffer) recording() bool {
	if v.State != COMMAND_BUFFER_STATE_RECORDING && v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.fail(errNotRecording)
		return false
	}
	return true
}

func (v *VulkanCommandBuffer) BeginRenderPass(rp driver.RenderPass, fb driver.Framebuffer, area driver.Rect2D, clearColour [4]float32, clearDepth float32) {
	if !v.recording() {
		return
	}
	vrp := rp.(*VulkanRenderpass)
	clearValues := []vk.ClearValue{vk.NewClearValue(clearColour[:])}
	if vrp.hasDepth {
		clearValues = append(clearValues, vk.NewClearDepthStencil(clearDepth, 0))
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vrp.Handle,
		Framebuffer: fb.(*VulkanFramebuffer).Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: area.X, Y: area.Y},
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.fail(errors.New("vulkan: no render pass to end"))
		return
	}
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) SetViewport(vp driver.Viewport) {
	if !v.recording() {
		return
	}
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(r driver.Rect2D) {
	if !v.recording() {
		return
	}
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}})
}

func (v *VulkanCommandBuffer) BindPipeline(p driver.Pipeline) {
	if !v.recording() {
		return
	}
	vp := p.(*VulkanPipeline)
	vk.CmdBindPipeline(v.Handle, vp.BindPoint, vp.Handle)
}

func (v *VulkanCommandBuffer) BindDescriptorSet(p driver.Pipeline, index uint32, set driver.DescriptorSet) {
	if !v.recording() {
		return
	}
	vp := p.(*VulkanPipeline)
	sets := []vk.DescriptorSet{set.(*VulkanDescriptorSet).Handle}
	vk.CmdBindDescriptorSets(v.Handle, vp.BindPoint, vp.PipelineLayout, index, 1, sets, 0, nil)
}

func (v *VulkanCommandBuffer) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	if !v.recording() {
		return
	}
	if len(offsets) != len(buffers) {
		v.fail(fmt.Errorf("vulkan: %d vertex buffers with %d offsets", len(buffers), len(offsets)))
		return
	}
	handles := make([]vk.Buffer, len(buffers))
	vkOffsets := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = b.(*VulkanBuffer).Handle
		vkOffsets[i] = vk.DeviceSize(offsets[i])
	}
	vk.CmdBindVertexBuffers(v.Handle, first, uint32(len(handles)), handles, vkOffsets)
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64, typ driver.IndexType) {
	if !v.recording() {
		return
	}
	indexType := vk.IndexTypeUint16
	if typ == driver.IndexUint32 {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(v.Handle, buf.(*VulkanBuffer).Handle, vk.DeviceSize(offset), indexType)
}

func (v *VulkanCommandBuffer) PushConstants(p driver.Pipeline, stages driver.ShaderStage, offset uint32, data []byte) {
	if !v.recording() || len(data) == 0 {
		return
	}
	vp := p.(*VulkanPipeline)
	vk.CmdPushConstants(v.Handle, vp.PipelineLayout, toVkShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.fail(errors.New("vulkan: draw outside a render pass"))
		return
	}
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (v *VulkanCommandBuffer) Dispatch(x, y, z uint32) {
	if v.State != COMMAND_BUFFER_STATE_RECORDING {
		v.fail(errors.New("vulkan: dispatch must be recorded outside a render pass"))
		return
	}
	vk.CmdDispatch(v.Handle, x, y, z)
}

// PipelineBarrier records a global memory barrier.
func (v *VulkanCommandBuffer) PipelineBarrier(src, dst driver.PipelineStage, srcAccess, dstAccess driver.Access) {
	if !v.recording() {
		return
	}
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: toVkAccess(srcAccess),
		DstAccessMask: toVkAccess(dstAccess),
	}
	vk.CmdPipelineBarrier(v.Handle, toVkPipelineStages(src), toVkPipelineStages(dst), 0,
		1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

func (v *VulkanCommandBuffer) TransitionImage(img driver.Image, from, to driver.Layout) {
	if !v.recording() {
		return
	}
	vi := img.(*VulkanImage)
	srcAccess, srcStage := layoutAccess(from)
	dstAccess, dstStage := layoutAccess(to)
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           toVkLayout(from),
		NewLayout:           toVkLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               vi.Handle,
		SubresourceRange:    vi.subresourceRange(),
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
	}
	vk.CmdPipelineBarrier(v.Handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	if !v.recording() || len(regions) == 0 {
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(v.Handle, src.(*VulkanBuffer).Handle, dst.(*VulkanBuffer).Handle, uint32(len(copies)), copies)
}

// CopyBufferToImage copies tightly packed texels covering the whole image.
// The image must be in the transfer destination layout.
func (v *VulkanCommandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image) {
	if !v.recording() {
		return
	}
	vi := dst.(*VulkanImage)
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vi.aspect(),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageExtent: vk.Extent3D{Width: vi.Width, Height: vi.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(v.Handle, src.(*VulkanBuffer).Handle, vi.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}
