package vulkan

import (
	"errors"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// VulkanMemory is one device allocation.
type VulkanMemory struct {
	context *VulkanContext
	Handle  vk.DeviceMemory
	size    uint64
	mapped  []byte
}

func (d *VulkanDevice) AllocateMemory(size uint64, memoryType uint32) (driver.Memory, error) {
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryType,
	}
	var handle vk.DeviceMemory
	err := d.context.locks.SafeCall(MemoryManagement, func() error {
		return resultError("vkAllocateMemory", vk.AllocateMemory(d.LogicalDevice, &allocateInfo, d.context.Allocator, &handle))
	})
	if err != nil {
		return nil, err
	}
	return &VulkanMemory{context: d.context, Handle: handle, size: size}, nil
}

func (m *VulkanMemory) Size() uint64 {
	return m.size
}

// Map maps the whole allocation once. Later calls return the same slice.
func (m *VulkanMemory) Map() ([]byte, error) {
	if m.mapped != nil {
		return m.mapped, nil
	}
	var data unsafe.Pointer
	res := vk.MapMemory(m.context.Device.LogicalDevice, m.Handle, 0, vk.DeviceSize(m.size), 0, &data)
	if err := resultError("vkMapMemory", res); err != nil {
		return nil, err
	}
	m.mapped = unsafe.Slice((*byte)(data), m.size)
	return m.mapped, nil
}

func (m *VulkanMemory) Unmap() {
	if m.mapped == nil {
		return
	}
	vk.UnmapMemory(m.context.Device.LogicalDevice, m.Handle)
	m.mapped = nil
}

func (m *VulkanMemory) Destroy() {
	if m.Handle == nil {
		return
	}
	m.Unmap()
	vk.FreeMemory(m.context.Device.LogicalDevice, m.Handle, m.context.Allocator)
	m.Handle = nil
}

type VulkanBuffer struct {
	context *VulkanContext
	Handle  vk.Buffer
	size    uint64
	usage   driver.BufferUsage
}

func (d *VulkanDevice) NewBuffer(size uint64, usage driver.BufferUsage) (driver.Buffer, error) {
	if size == 0 {
		return nil, errors.New("vulkan: buffer size must be positive")
	}
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       toVkBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	err := d.context.locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreateBuffer", vk.CreateBuffer(d.LogicalDevice, &createInfo, d.context.Allocator, &handle))
	})
	if err != nil {
		return nil, err
	}
	return &VulkanBuffer{context: d.context, Handle: handle, size: size, usage: usage}, nil
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

func (b *VulkanBuffer) Usage() driver.BufferUsage {
	return b.usage
}

func (b *VulkanBuffer) Requirements() driver.MemoryRequirements {
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.context.Device.LogicalDevice, b.Handle, &reqs)
	reqs.Deref()
	return driver.MemoryRequirements{Size: uint64(reqs.Size), Alignment: uint64(reqs.Alignment), TypeBits: reqs.MemoryTypeBits}
}

func (b *VulkanBuffer) Bind(mem driver.Memory, offset uint64) error {
	vm := mem.(*VulkanMemory)
	return resultError("vkBindBufferMemory", vk.BindBufferMemory(b.context.Device.LogicalDevice, b.Handle, vm.Handle, vk.DeviceSize(offset)))
}

func (b *VulkanBuffer) Destroy() {
	if b.Handle == nil {
		return
	}
	vk.DestroyBuffer(b.context.Device.LogicalDevice, b.Handle, b.context.Allocator)
	b.Handle = nil
}
