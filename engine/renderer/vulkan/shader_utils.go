package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

type VulkanShaderModule struct {
	context *VulkanContext
	Handle  vk.ShaderModule
	label   string
}

// NewShaderModule wraps already compiled SPIR-V.
func (d *VulkanDevice) NewShaderModule(label string, spirv []byte) (driver.ShaderModule, error) {
	words, err := spirvWords(spirv)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", label, err)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spirv)),
		PCode:    words,
	}
	var handle vk.ShaderModule
	if err := resultError("vkCreateShaderModule", vk.CreateShaderModule(d.LogicalDevice, &createInfo, d.context.Allocator, &handle)); err != nil {
		return nil, fmt.Errorf("shader %s: %w", label, err)
	}
	return &VulkanShaderModule{context: d.context, Handle: handle, label: label}, nil
}

func (m *VulkanShaderModule) Label() string {
	return m.label
}

func (m *VulkanShaderModule) Destroy() {
	if m.Handle == nil {
		return
	}
	vk.DestroyShaderModule(m.context.Device.LogicalDevice, m.Handle, m.context.Allocator)
	m.Handle = nil
}

// stageCreateInfo describes one pipeline stage.
func stageCreateInfo(desc driver.ShaderStageDesc, stage vk.ShaderStageFlagBits) vk.PipelineShaderStageCreateInfo {
	entry := desc.Entry
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: desc.Module.(*VulkanShaderModule).Handle,
		PName:  VulkanSafeString(entry),
	}
}
