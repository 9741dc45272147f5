package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// Descriptor pool sizing. Sets are allocated per frame and per pipeline, so
// these only need to cover a handful of frames in flight.
const (
	maxDescriptorSets        = 64
	maxDescriptorsPerType    = 512
	portabilitySubsetExtName = "VK_KHR_portability_subset"
)

// VulkanDevice is the driver.Device of an opened Vulkan context.
type VulkanDevice struct {
	context *VulkanContext

	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool
	DescriptorPool      vk.DescriptorPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	depthFormat driver.Format
	memoryTypes []driver.MemoryType
}

type physicalDeviceQueueFamilyInfo struct {
	graphics, present int
}

// DeviceCreate selects a physical device and creates the logical device,
// its queues and the pools every other object is allocated from.
func DeviceCreate(context *VulkanContext) (*VulkanDevice, error) {
	device := &VulkanDevice{context: context}
	context.Device = device
	queues, err := device.selectPhysicalDevice()
	if err != nil {
		return nil, err
	}
	device.GraphicsQueueIndex = uint32(queues.graphics)
	device.PresentQueueIndex = uint32(queues.present)

	context.logger.Debug("creating logical device")
	indices := []uint32{device.GraphicsQueueIndex}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, device.PresentQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
		context.locks.SetQueueFamily(index)
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(device.PhysicalDevice)
	if err != nil {
		return nil, err
	}
	if available[portabilitySubsetExtName] {
		context.logger.Debug("adding required extension", "name", portabilitySubsetExtName)
		extensionNames = append(extensionNames, portabilitySubsetExtName)
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	var logical vk.Device
	if err := resultError("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical)); err != nil {
		return nil, err
	}
	device.LogicalDevice = logical

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(logical, device.GraphicsQueueIndex, 0, &graphicsQueue)
	vk.GetDeviceQueue(logical, device.PresentQueueIndex, 0, &presentQueue)
	device.GraphicsQueue = graphicsQueue
	device.PresentQueue = presentQueue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var commandPool vk.CommandPool
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(logical, &poolCreateInfo, context.Allocator, &commandPool)); err != nil {
		device.destroyLogical()
		return nil, err
	}
	device.GraphicsCommandPool = commandPool

	if err := device.createDescriptorPool(); err != nil {
		device.destroyLogical()
		return nil, err
	}

	if !device.detectDepthFormat() {
		device.destroyLogical()
		return nil, fmt.Errorf("vulkan: no supported depth format: %w", driver.ErrUnsupported)
	}
	device.memoryTypes = device.collectMemoryTypes()
	context.logger.Info("logical device created",
		"graphics_family", device.GraphicsQueueIndex,
		"present_family", device.PresentQueueIndex,
		"depth_format", device.depthFormat,
	)
	return device, nil
}

func (d *VulkanDevice) createDescriptorPool() error {
	types := []vk.DescriptorType{
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeSampler,
	}
	sizes := make([]vk.DescriptorPoolSize, len(types))
	for i, t := range types {
		sizes[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: maxDescriptorsPerType}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxDescriptorSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.LogicalDevice, &createInfo, d.context.Allocator, &pool)); err != nil {
		return err
	}
	d.DescriptorPool = pool
	return nil
}

func deviceExtensions(physical vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(physical, "", &count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := resultError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(physical, "", &count, props)); err != nil {
		return nil, err
	}
	out := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		out[cString(props[i].ExtensionName[:])] = true
	}
	return out, nil
}

// selectPhysicalDevice picks the best device with a graphics and compute
// family, presentation support and a swapchain. Discrete GPUs win.
func (d *VulkanDevice) selectPhysicalDevice() (physicalDeviceQueueFamilyInfo, error) {
	logger := d.context.logger
	var count uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.context.Instance, &count, nil)); err != nil {
		return physicalDeviceQueueFamilyInfo{}, err
	}
	if count == 0 {
		return physicalDeviceQueueFamilyInfo{}, fmt.Errorf("%w: no devices support Vulkan", errNoDevice)
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.context.Instance, &count, devices)); err != nil {
		return physicalDeviceQueueFamilyInfo{}, err
	}

	bestScore := -1
	var best physicalDeviceQueueFamilyInfo
	for _, candidate := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()
		name := cString(properties.DeviceName[:])

		queues, ok := d.meetsRequirements(candidate)
		if !ok {
			logger.Debug("skipping device", "name", name)
			continue
		}
		score := 1
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			score = 3
		case vk.PhysicalDeviceTypeIntegratedGpu:
			score = 2
		}
		if queues.graphics == queues.present {
			score++
		}
		if score <= bestScore {
			continue
		}
		bestScore = score
		best = queues

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(candidate, &features)
		features.Deref()
		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)
		memory.Deref()

		d.PhysicalDevice = candidate
		d.Properties = properties
		d.Features = features
		d.Memory = memory
	}
	if bestScore < 0 {
		return physicalDeviceQueueFamilyInfo{}, errNoDevice
	}

	version := vk.Version(d.Properties.ApiVersion)
	logger.Info("selected device",
		"name", cString(d.Properties.DeviceName[:]),
		"type", deviceTypeName(d.Properties.DeviceType),
		"api", fmt.Sprintf("%d.%d.%d", version.Major(), version.Minor(), version.Patch()),
	)
	for j := uint32(0); j < d.Memory.MemoryHeapCount; j++ {
		heap := d.Memory.MemoryHeaps[j]
		heap.Deref()
		gib := float64(heap.Size) / (1 << 30)
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			logger.Debug("local GPU memory", "gib", gib)
		} else {
			logger.Debug("shared system memory", "gib", gib)
		}
	}
	return best, nil
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "unknown"
}

func (d *VulkanDevice) meetsRequirements(physical vk.PhysicalDevice) (physicalDeviceQueueFamilyInfo, bool) {
	info := physicalDeviceQueueFamilyInfo{graphics: -1, present: -1}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &familyCount, families)

	for i := range families {
		families[i].Deref()
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		// The particle dispatch is recorded on the graphics queue.
		if info.graphics < 0 && flags&vk.QueueGraphicsBit != 0 && flags&vk.QueueComputeBit != 0 {
			info.graphics = i
		}
		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(physical, uint32(i), d.context.Surface, &supportsPresent); res != vk.Success {
			return info, false
		}
		if supportsPresent == vk.True && (info.present < 0 || i == info.graphics) {
			info.present = i
		}
	}
	if info.graphics < 0 || info.present < 0 {
		return info, false
	}

	available, err := deviceExtensions(physical)
	if err != nil || !available[vk.KhrSwapchainExtensionName] {
		return info, false
	}
	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(physical, d.context.Surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(physical, d.context.Surface, &modeCount, nil)
	return info, formatCount > 0 && modeCount > 0
}

func (d *VulkanDevice) detectDepthFormat() bool {
	candidates := []driver.Format{driver.FormatD32Float, driver.FormatD32FloatS8, driver.FormatD24UnormS8}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, toVkFormat(candidate), &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			d.depthFormat = candidate
			return true
		}
	}
	return false
}

func (d *VulkanDevice) collectMemoryTypes() []driver.MemoryType {
	types := make([]driver.MemoryType, d.Memory.MemoryTypeCount)
	for i := range types {
		mt := d.Memory.MemoryTypes[i]
		mt.Deref()
		flags := vk.MemoryPropertyFlagBits(mt.PropertyFlags)
		var props driver.MemoryProperty
		if flags&vk.MemoryPropertyDeviceLocalBit != 0 {
			props |= driver.MemoryDeviceLocal
		}
		if flags&vk.MemoryPropertyHostVisibleBit != 0 {
			props |= driver.MemoryHostVisible
		}
		if flags&vk.MemoryPropertyHostCoherentBit != 0 {
			props |= driver.MemoryHostCoherent
		}
		types[i] = driver.MemoryType{Properties: props, Heap: mt.HeapIndex}
	}
	return types
}

func (d *VulkanDevice) MemoryTypes() []driver.MemoryType {
	return d.memoryTypes
}

func (d *VulkanDevice) DepthFormat() driver.Format {
	return d.depthFormat
}

// SurfaceCapabilities queries the surface. When the platform leaves the
// extent to the application the window's framebuffer size is used.
func (d *VulkanDevice) SurfaceCapabilities() (driver.SurfaceCapabilities, error) {
	physical, surface := d.PhysicalDevice, d.context.Surface
	var caps vk.SurfaceCapabilities
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &caps)); err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	out := driver.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: driver.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinExtent:     driver.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxExtent:     driver.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
	}
	if caps.CurrentExtent.Width == math.MaxUint32 {
		w, h := d.context.window.FramebufferSize()
		out.CurrentExtent = driver.Extent2D{
			Width:  clamp(w, out.MinExtent.Width, out.MaxExtent.Width),
			Height: clamp(h, out.MinExtent.Height, out.MaxExtent.Height),
		}
		if w == 0 || h == 0 {
			out.CurrentExtent = driver.Extent2D{}
		}
	}

	var formatCount uint32
	if err := resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, nil)); err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	if err := resultError("vkGetPhysicalDeviceSurfaceFormatsKHR", vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, formats)); err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	for i := range formats {
		formats[i].Deref()
		if formats[i].ColorSpace != vk.ColorSpaceSrgbNonlinear {
			continue
		}
		if f := fromVkFormat(formats[i].Format); f != driver.FormatUndefined {
			out.Formats = append(out.Formats, f)
		}
	}

	var modeCount uint32
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, nil)); err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	modes := make([]vk.PresentMode, modeCount)
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModesKHR", vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, modes)); err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	for _, m := range modes {
		if pm, ok := fromVkPresentMode(m); ok {
			out.PresentModes = append(out.PresentModes, pm)
		}
	}
	return out, nil
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

// Submit queues work on the graphics queue.
func (d *VulkanDevice) Submit(info driver.SubmitInfo, fence driver.Fence) error {
	cbs := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, cb := range info.CommandBuffers {
		vcb := cb.(*VulkanCommandBuffer)
		cbs[i] = vcb.Handle
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(cbs)),
		PCommandBuffers:    cbs,
	}
	if len(info.Wait) > 0 {
		stages := make([]vk.PipelineStageFlags, len(info.Wait))
		for i := range stages {
			stage := driver.PipelineStageColorAttachmentOutput
			if i < len(info.WaitStages) {
				stage = info.WaitStages[i]
			}
			stages[i] = toVkPipelineStages(stage)
		}
		submitInfo.WaitSemaphoreCount = uint32(len(info.Wait))
		submitInfo.PWaitSemaphores = semaphoreHandles(info.Wait)
		submitInfo.PWaitDstStageMask = stages
	}
	if len(info.Signal) > 0 {
		submitInfo.SignalSemaphoreCount = uint32(len(info.Signal))
		submitInfo.PSignalSemaphores = semaphoreHandles(info.Signal)
	}

	handle := vk.NullFence
	var vf *VulkanFence
	if fence != nil {
		vf = fence.(*VulkanFence)
		handle = vf.Handle
	}
	err := d.context.locks.SafeQueueCall(d.GraphicsQueueIndex, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, handle))
	})
	if err != nil {
		return err
	}
	for _, cb := range info.CommandBuffers {
		cb.(*VulkanCommandBuffer).UpdateSubmitted()
	}
	if vf != nil {
		vf.submitted = true
	}
	return nil
}

// Present queues a swapchain image on the present queue.
func (d *VulkanDevice) Present(info driver.PresentInfo) (bool, error) {
	sc := info.Swapchain.(*VulkanSwapchain)
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.Wait)),
		PWaitSemaphores:    semaphoreHandles(info.Wait),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	var result vk.Result
	_ = d.context.locks.SafeQueueCall(d.PresentQueueIndex, func() error {
		result = vk.QueuePresent(d.PresentQueue, &presentInfo)
		return nil
	})
	if result == vk.Suboptimal {
		return true, nil
	}
	return false, resultError("vkQueuePresentKHR", result)
}

func (d *VulkanDevice) WaitIdle() error {
	return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.LogicalDevice))
}

// Destroy releases the device, the surface and the instance. Every object
// created from the device must already be destroyed.
func (d *VulkanDevice) Destroy() {
	if d.LogicalDevice == nil {
		return
	}
	d.context.logger.Debug("destroying Vulkan device")
	vk.DeviceWaitIdle(d.LogicalDevice)
	d.destroyLogical()
	destroyInstance(d.context)
}

func (d *VulkanDevice) destroyLogical() {
	if d.DescriptorPool != nil {
		vk.DestroyDescriptorPool(d.LogicalDevice, d.DescriptorPool, d.context.Allocator)
		d.DescriptorPool = nil
	}
	if d.GraphicsCommandPool != nil {
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, d.context.Allocator)
		d.GraphicsCommandPool = nil
	}
	d.GraphicsQueue = nil
	d.PresentQueue = nil
	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, d.context.Allocator)
		d.LogicalDevice = nil
	}
}
