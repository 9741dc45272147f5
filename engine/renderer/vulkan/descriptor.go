package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

type VulkanDescriptorSetLayout struct {
	context  *VulkanContext
	Handle   vk.DescriptorSetLayout
	bindings []driver.DescriptorBinding
}

func (d *VulkanDevice) NewDescriptorSetLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toVkDescriptorType(b.Type),
			DescriptorCount: count,
			StageFlags:      toVkShaderStages(b.Stages),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var handle vk.DescriptorSetLayout
	if err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.LogicalDevice, &createInfo, d.context.Allocator, &handle)); err != nil {
		return nil, err
	}
	return &VulkanDescriptorSetLayout{
		context:  d.context,
		Handle:   handle,
		bindings: append([]driver.DescriptorBinding(nil), bindings...),
	}, nil
}

func (l *VulkanDescriptorSetLayout) Bindings() []driver.DescriptorBinding {
	return l.bindings
}

func (l *VulkanDescriptorSetLayout) Destroy() {
	if l.Handle == nil {
		return
	}
	vk.DestroyDescriptorSetLayout(l.context.Device.LogicalDevice, l.Handle, l.context.Allocator)
	l.Handle = nil
}

// VulkanDescriptorSet is allocated from the device's shared pool.
type VulkanDescriptorSet struct {
	context *VulkanContext
	Handle  vk.DescriptorSet
	layout  *VulkanDescriptorSetLayout
}

func (d *VulkanDevice) NewDescriptorSet(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	vl := layout.(*VulkanDescriptorSetLayout)
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.DescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{vl.Handle},
	}
	var handle vk.DescriptorSet
	err := d.context.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.LogicalDevice, &allocateInfo, &handle))
	})
	if err != nil {
		return nil, err
	}
	return &VulkanDescriptorSet{context: d.context, Handle: handle, layout: vl}, nil
}

func (s *VulkanDescriptorSet) binding(index uint32) (driver.DescriptorBinding, error) {
	for _, b := range s.layout.bindings {
		if b.Binding == index {
			return b, nil
		}
	}
	return driver.DescriptorBinding{}, fmt.Errorf("vulkan: descriptor set has no binding %d", index)
}

func (s *VulkanDescriptorSet) WriteBuffer(binding uint32, buf driver.Buffer, offset, size uint64) error {
	b, err := s.binding(binding)
	if err != nil {
		return err
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.Handle,
		DstBinding:      binding,
		DstArrayElement: 0,
		DescriptorCount: 1,
		DescriptorType:  toVkDescriptorType(b.Type),
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buf.(*VulkanBuffer).Handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(size),
		}},
	}
	vk.UpdateDescriptorSets(s.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return nil
}

func (s *VulkanDescriptorSet) WriteImages(binding uint32, images []driver.Image, samplers []driver.Sampler) error {
	b, err := s.binding(binding)
	if err != nil {
		return err
	}
	n := len(images)
	if len(samplers) > n {
		n = len(samplers)
	}
	if n == 0 {
		return nil
	}
	infos := make([]vk.DescriptorImageInfo, n)
	for i := range infos {
		infos[i].ImageLayout = vk.ImageLayoutShaderReadOnlyOptimal
		if i < len(images) && images[i] != nil {
			infos[i].ImageView = images[i].(*VulkanImage).View
		}
		if i < len(samplers) && samplers[i] != nil {
			infos[i].Sampler = samplers[i].(*VulkanSampler).Handle
		}
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.Handle,
		DstBinding:      binding,
		DstArrayElement: 0,
		DescriptorCount: uint32(n),
		DescriptorType:  toVkDescriptorType(b.Type),
		PImageInfo:      infos,
	}
	vk.UpdateDescriptorSets(s.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return nil
}

func (s *VulkanDescriptorSet) Destroy() {
	if s.Handle == nil {
		return
	}
	device := s.context.Device
	_ = s.context.locks.SafeCall(DescriptorManagement, func() error {
		return resultError("vkFreeDescriptorSets", vk.FreeDescriptorSets(device.LogicalDevice, device.DescriptorPool, 1, []vk.DescriptorSet{s.Handle}))
	})
	s.Handle = nil
}
