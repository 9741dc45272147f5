package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// VulkanImage is a 2D image and its view. The view is created once memory
// is bound. Swapchain images are owned by the swapchain.
type VulkanImage struct {
	context *VulkanContext
	Handle  vk.Image
	View    vk.ImageView
	Width   uint32
	Height  uint32

	format driver.Format
	owned  bool
}

func (d *VulkanDevice) NewImage(desc driver.ImageDesc) (driver.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    toVkFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         toVkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	err := d.context.locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreateImage", vk.CreateImage(d.LogicalDevice, &createInfo, d.context.Allocator, &handle))
	})
	if err != nil {
		return nil, err
	}
	return &VulkanImage{
		context: d.context,
		Handle:  handle,
		Width:   desc.Width,
		Height:  desc.Height,
		format:  desc.Format,
	}, nil
}

func (i *VulkanImage) Extent() driver.Extent2D {
	return driver.Extent2D{Width: i.Width, Height: i.Height}
}

func (i *VulkanImage) Format() driver.Format {
	return i.format
}

func (i *VulkanImage) Requirements() driver.MemoryRequirements {
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.context.Device.LogicalDevice, i.Handle, &reqs)
	reqs.Deref()
	return driver.MemoryRequirements{Size: uint64(reqs.Size), Alignment: uint64(reqs.Alignment), TypeBits: reqs.MemoryTypeBits}
}

func (i *VulkanImage) Bind(mem driver.Memory, offset uint64) error {
	vm := mem.(*VulkanMemory)
	device := i.context.Device.LogicalDevice
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(device, i.Handle, vm.Handle, vk.DeviceSize(offset))); err != nil {
		return err
	}
	return i.createView()
}

func (i *VulkanImage) aspect() vk.ImageAspectFlags {
	if i.format.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func (i *VulkanImage) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     i.aspect(),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func (i *VulkanImage) createView() error {
	viewInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            i.Handle,
		ViewType:         vk.ImageViewType2d,
		Format:           toVkFormat(i.format),
		SubresourceRange: i.subresourceRange(),
	}
	var view vk.ImageView
	if err := resultError("vkCreateImageView", vk.CreateImageView(i.context.Device.LogicalDevice, &viewInfo, i.context.Allocator, &view)); err != nil {
		return err
	}
	i.View = view
	return nil
}

// Destroy releases the view and, for images the caller created, the image.
func (i *VulkanImage) Destroy() {
	if i.owned {
		return
	}
	i.destroy()
}

func (i *VulkanImage) destroy() {
	device := i.context.Device.LogicalDevice
	if i.View != nil {
		vk.DestroyImageView(device, i.View, i.context.Allocator)
		i.View = nil
	}
	if i.Handle != nil && !i.owned {
		vk.DestroyImage(device, i.Handle, i.context.Allocator)
	}
	i.Handle = nil
}

type VulkanSampler struct {
	context *VulkanContext
	Handle  vk.Sampler
}

func (d *VulkanDevice) NewSampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	filter := vk.FilterLinear
	if desc.Filter == driver.FilterNearest {
		filter = vk.FilterNearest
	}
	address := vk.SamplerAddressModeClampToEdge
	if desc.AddressMode == driver.AddressRepeat {
		address = vk.SamplerAddressModeRepeat
	}
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	var handle vk.Sampler
	err := d.context.locks.SafeCall(SamplerManagement, func() error {
		return resultError("vkCreateSampler", vk.CreateSampler(d.LogicalDevice, &createInfo, d.context.Allocator, &handle))
	})
	if err != nil {
		return nil, err
	}
	return &VulkanSampler{context: d.context, Handle: handle}, nil
}

func (s *VulkanSampler) Destroy() {
	if s.Handle == nil {
		return
	}
	vk.DestroySampler(s.context.Device.LogicalDevice, s.Handle, s.context.Allocator)
	s.Handle = nil
}
