package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

var resultNames = map[vk.Result]string{
	vk.Success:                    "VK_SUCCESS",
	vk.NotReady:                   "VK_NOT_READY",
	vk.Timeout:                    "VK_TIMEOUT",
	vk.EventSet:                   "VK_EVENT_SET",
	vk.EventReset:                 "VK_EVENT_RESET",
	vk.Incomplete:                 "VK_INCOMPLETE",
	vk.Suboptimal:                 "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:       "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:     "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed:  "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:            "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:       "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:       "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:   "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:     "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:    "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:        "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:    "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:        "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorSurfaceLost:           "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:     "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:             "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorIncompatibleDisplay:   "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vk.ErrorOutOfPoolMemory:       "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorInvalidExternalHandle: "VK_ERROR_INVALID_EXTERNAL_HANDLE",
	vk.ErrorFragmentation:         "VK_ERROR_FRAGMENTATION",
	vk.ErrorUnknown:               "VK_ERROR_UNKNOWN",
}

func VulkanResultString(result vk.Result) string {
	if s, ok := resultNames[result]; ok {
		return s
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

// resultError turns a failed call into an error wrapping the matching
// driver sentinel, or nil on success.
func resultError(op string, result vk.Result) error {
	if VulkanResultIsSuccess(result) && result != vk.Timeout {
		return nil
	}
	var sentinel error
	switch result {
	case vk.Timeout, vk.NotReady:
		sentinel = driver.ErrTimeout
	case vk.ErrorOutOfDate:
		sentinel = driver.ErrOutOfDate
	case vk.ErrorSurfaceLost:
		sentinel = driver.ErrSurfaceLost
	case vk.ErrorDeviceLost:
		sentinel = driver.ErrDeviceLost
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		sentinel = driver.ErrOutOfMemory
	case vk.ErrorFeatureNotPresent, vk.ErrorExtensionNotPresent, vk.ErrorLayerNotPresent,
		vk.ErrorFormatNotSupported, vk.ErrorIncompatibleDriver:
		sentinel = driver.ErrUnsupported
	default:
		return fmt.Errorf("vulkan: %s failed with %s", op, VulkanResultString(result))
	}
	return fmt.Errorf("vulkan: %s failed with %s: %w", op, VulkanResultString(result), sentinel)
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// cString trims a fixed size, zero terminated name returned by Vulkan.
func cString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

// spirvWords packs a SPIR-V byte stream into the words Vulkan expects.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("vulkan: SPIR-V size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

var formats = map[driver.Format]vk.Format{
	driver.FormatUndefined:   vk.FormatUndefined,
	driver.FormatRGBA8Unorm:  vk.FormatR8g8b8a8Unorm,
	driver.FormatRGBA8SRGB:   vk.FormatR8g8b8a8Srgb,
	driver.FormatBGRA8Unorm:  vk.FormatB8g8r8a8Unorm,
	driver.FormatBGRA8SRGB:   vk.FormatB8g8r8a8Srgb,
	driver.FormatD32Float:    vk.FormatD32Sfloat,
	driver.FormatD32FloatS8:  vk.FormatD32SfloatS8Uint,
	driver.FormatD24UnormS8:  vk.FormatD24UnormS8Uint,
	driver.FormatR32Float:    vk.FormatR32Sfloat,
	driver.FormatRG32Float:   vk.FormatR32g32Sfloat,
	driver.FormatRGB32Float:  vk.FormatR32g32b32Sfloat,
	driver.FormatRGBA32Float: vk.FormatR32g32b32a32Sfloat,
	driver.FormatR32Uint:     vk.FormatR32Uint,
	driver.FormatR32Sint:     vk.FormatR32Sint,
}

func toVkFormat(f driver.Format) vk.Format {
	return formats[f]
}

func fromVkFormat(f vk.Format) driver.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return driver.FormatUndefined
}

func toVkPresentMode(m driver.PresentMode) vk.PresentMode {
	switch m {
	case driver.PresentImmediate:
		return vk.PresentModeImmediate
	case driver.PresentMailbox:
		return vk.PresentModeMailbox
	}
	return vk.PresentModeFifo
}

func fromVkPresentMode(m vk.PresentMode) (driver.PresentMode, bool) {
	switch m {
	case vk.PresentModeImmediate:
		return driver.PresentImmediate, true
	case vk.PresentModeMailbox:
		return driver.PresentMailbox, true
	case vk.PresentModeFifo:
		return driver.PresentFIFO, true
	}
	return 0, false
}

func toVkBufferUsage(u driver.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&driver.BufferVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u&driver.BufferIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u&driver.BufferUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u&driver.BufferStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u&driver.BufferTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u&driver.BufferTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(flags)
}

func toVkImageUsage(u driver.ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u&driver.ImageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if u&driver.ImageTransferDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	if u&driver.ImageColorAttachment != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u&driver.ImageDepthAttachment != 0 {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(flags)
}

func toVkShaderStages(s driver.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits
	if s&driver.StageVertex != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if s&driver.StageFragment != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	if s&driver.StageCompute != 0 {
		flags |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(flags)
}

func toVkDescriptorType(t driver.DescriptorType) vk.DescriptorType {
	switch t {
	case driver.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case driver.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case driver.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage
	case driver.DescriptorSampler:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func toVkPipelineStages(s driver.PipelineStage) vk.PipelineStageFlags {
	var flags vk.PipelineStageFlagBits
	pairs := []struct {
		from driver.PipelineStage
		to   vk.PipelineStageFlagBits
	}{
		{driver.PipelineStageTopOfPipe, vk.PipelineStageTopOfPipeBit},
		{driver.PipelineStageTransfer, vk.PipelineStageTransferBit},
		{driver.PipelineStageComputeShader, vk.PipelineStageComputeShaderBit},
		{driver.PipelineStageVertexInput, vk.PipelineStageVertexInputBit},
		{driver.PipelineStageVertexShader, vk.PipelineStageVertexShaderBit},
		{driver.PipelineStageFragmentShader, vk.PipelineStageFragmentShaderBit},
		{driver.PipelineStageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
		{driver.PipelineStageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	}
	for _, p := range pairs {
		if s&p.from != 0 {
			flags |= p.to
		}
	}
	return vk.PipelineStageFlags(flags)
}

func toVkAccess(a driver.Access) vk.AccessFlags {
	var flags vk.AccessFlagBits
	pairs := []struct {
		from driver.Access
		to   vk.AccessFlagBits
	}{
		{driver.AccessTransferWrite, vk.AccessTransferWriteBit},
		{driver.AccessShaderRead, vk.AccessShaderReadBit},
		{driver.AccessShaderWrite, vk.AccessShaderWriteBit},
		{driver.AccessVertexAttributeRead, vk.AccessVertexAttributeReadBit},
		{driver.AccessUniformRead, vk.AccessUniformReadBit},
		{driver.AccessHostWrite, vk.AccessHostWriteBit},
	}
	for _, p := range pairs {
		if a&p.from != 0 {
			flags |= p.to
		}
	}
	return vk.AccessFlags(flags)
}

func toVkLayout(l driver.Layout) vk.ImageLayout {
	switch l {
	case driver.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case driver.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case driver.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

// layoutAccess returns the access and stage that use an image in layout l.
func layoutAccess(l driver.Layout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch l {
	case driver.LayoutTransferDst:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case driver.LayoutShaderReadOnly:
		return vk.AccessFlags(vk.AccessShaderReadBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case driver.LayoutColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case driver.LayoutDepthAttachment:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit), vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	case driver.LayoutPresent:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}
