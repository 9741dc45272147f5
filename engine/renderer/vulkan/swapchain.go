package vulkan

import (
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

type VulkanSwapchain struct {
	context     *VulkanContext
	Handle      vk.Swapchain
	images      []driver.Image
	extent      driver.Extent2D
	format      driver.Format
	presentMode driver.PresentMode
}

func (d *VulkanDevice) NewSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	var caps vk.SurfaceCapabilities
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR",
		vk.GetPhysicalDeviceSurfaceCapabilities(d.PhysicalDevice, d.context.Surface, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.context.Surface,
		MinImageCount:    desc.ImageCount,
		ImageFormat:      toVkFormat(desc.Format),
		ImageColorSpace:  vk.ColorSpaceSrgbNonlinear,
		ImageExtent:      vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      toVkPresentMode(desc.PresentMode),
		Clipped:          vk.True,
	}
	if d.GraphicsQueueIndex != d.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{d.GraphicsQueueIndex, d.PresentQueueIndex}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}
	if desc.Old != nil {
		createInfo.OldSwapchain = desc.Old.(*VulkanSwapchain).Handle
	}

	var handle vk.Swapchain
	err := d.context.locks.SafeCall(SwapchainManagement, func() error {
		return resultError("vkCreateSwapchainKHR", vk.CreateSwapchain(d.LogicalDevice, &createInfo, d.context.Allocator, &handle))
	})
	if err != nil {
		return nil, err
	}

	swapchain := &VulkanSwapchain{
		context:     d.context,
		Handle:      handle,
		extent:      desc.Extent,
		format:      desc.Format,
		presentMode: desc.PresentMode,
	}

	var count uint32
	if err := resultError("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.LogicalDevice, handle, &count, nil)); err != nil {
		swapchain.Destroy()
		return nil, err
	}
	handles := make([]vk.Image, count)
	if err := resultError("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(d.LogicalDevice, handle, &count, handles)); err != nil {
		swapchain.Destroy()
		return nil, err
	}

	swapchain.images = make([]driver.Image, 0, count)
	for _, h := range handles[:count] {
		img := &VulkanImage{
			context: d.context,
			Handle:  h,
			Width:   desc.Extent.Width,
			Height:  desc.Extent.Height,
			format:  desc.Format,
			owned:   true,
		}
		if err := img.createView(); err != nil {
			swapchain.Destroy()
			return nil, err
		}
		swapchain.images = append(swapchain.images, img)
	}

	d.context.logger.Debug("swapchain created",
		"images", count,
		"width", desc.Extent.Width,
		"height", desc.Extent.Height,
		"present", desc.PresentMode)
	return swapchain, nil
}

func (s *VulkanSwapchain) Images() []driver.Image {
	return s.images
}

func (s *VulkanSwapchain) Extent() driver.Extent2D {
	return s.extent
}

func (s *VulkanSwapchain) Format() driver.Format {
	return s.format
}

func (s *VulkanSwapchain) PresentMode() driver.PresentMode {
	return s.presentMode
}

func (s *VulkanSwapchain) AcquireNextImage(timeout time.Duration, sem driver.Semaphore) (uint32, bool, error) {
	ns := uint64(math.MaxUint64)
	if timeout >= 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	semaphore := vk.NullSemaphore
	if sem != nil {
		semaphore = sem.(*VulkanSemaphore).Handle
	}
	var index uint32
	result := vk.AcquireNextImage(s.context.Device.LogicalDevice, s.Handle, ns, semaphore, vk.NullFence, &index)
	switch result {
	case vk.Success:
		return index, false, nil
	case vk.Suboptimal:
		return index, true, nil
	}
	return 0, false, resultError("vkAcquireNextImageKHR", result)
}

// Destroy releases the image views and the swapchain. The images belong to
// the swapchain and go with it.
func (s *VulkanSwapchain) Destroy() {
	for _, img := range s.images {
		img.(*VulkanImage).destroy()
	}
	s.images = nil
	if s.Handle == nil {
		return
	}
	device := s.context.Device.LogicalDevice
	_ = s.context.locks.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(device, s.Handle, s.context.Allocator)
		return nil
	})
	s.Handle = nil
}
