package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

type VulkanFramebuffer struct {
	context *VulkanContext
	Handle  vk.Framebuffer
}

func (d *VulkanDevice) NewFramebuffer(rp driver.RenderPass, attachments []driver.Image, width, height uint32) (driver.Framebuffer, error) {
	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		views[i] = a.(*VulkanImage).View
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.(*VulkanRenderpass).Handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var handle vk.Framebuffer
	if err := resultError("vkCreateFramebuffer", vk.CreateFramebuffer(d.LogicalDevice, &createInfo, d.context.Allocator, &handle)); err != nil {
		return nil, err
	}
	return &VulkanFramebuffer{context: d.context, Handle: handle}, nil
}

func (f *VulkanFramebuffer) Destroy() {
	if f.Handle == nil {
		return
	}
	vk.DestroyFramebuffer(f.context.Device.LogicalDevice, f.Handle, f.context.Allocator)
	f.Handle = nil
}
