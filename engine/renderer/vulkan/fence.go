package vulkan

import (
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/renderer/driver"
)

// VulkanFence caches the signaled state so waiting on an already signaled
// fence does not reach the driver.
type VulkanFence struct {
	context    *VulkanContext
	Handle     vk.Fence
	IsSignaled bool

	submitted bool
}

func (d *VulkanDevice) NewFence(signaled bool) (driver.Fence, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if err := resultError("vkCreateFence", vk.CreateFence(d.LogicalDevice, &createInfo, d.context.Allocator, &handle)); err != nil {
		return nil, err
	}
	return &VulkanFence{context: d.context, Handle: handle, IsSignaled: signaled}, nil
}

// Wait blocks until the fence signals. A fence that was never submitted
// and is not signaled times out immediately.
func (f *VulkanFence) Wait(timeout time.Duration) error {
	if f.IsSignaled {
		return nil
	}
	if !f.submitted {
		return driver.ErrTimeout
	}
	ns := uint64(math.MaxUint64)
	if timeout >= 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	result := vk.WaitForFences(f.context.Device.LogicalDevice, 1, []vk.Fence{f.Handle}, vk.True, ns)
	if err := resultError("vkWaitForFences", result); err != nil {
		if err != driver.ErrTimeout {
			f.context.logger.Error("fence wait failed", "result", VulkanResultString(result))
		}
		return err
	}
	f.IsSignaled = true
	return nil
}

func (f *VulkanFence) Reset() error {
	f.submitted = false
	if !f.IsSignaled {
		return nil
	}
	if err := resultError("vkResetFences", vk.ResetFences(f.context.Device.LogicalDevice, 1, []vk.Fence{f.Handle})); err != nil {
		return err
	}
	f.IsSignaled = false
	return nil
}

func (f *VulkanFence) Signaled() (bool, error) {
	if f.IsSignaled {
		return true, nil
	}
	result := vk.GetFenceStatus(f.context.Device.LogicalDevice, f.Handle)
	switch result {
	case vk.Success:
		f.IsSignaled = true
		return true, nil
	case vk.NotReady:
		return false, nil
	}
	return false, resultError("vkGetFenceStatus", result)
}

func (f *VulkanFence) Destroy() {
	if f.Handle == nil {
		return
	}
	vk.DestroyFence(f.context.Device.LogicalDevice, f.Handle, f.context.Allocator)
	f.Handle = nil
	f.IsSignaled = false
}

type VulkanSemaphore struct {
	context *VulkanContext
	Handle  vk.Semaphore
}

func (d *VulkanDevice) NewSemaphore() (driver.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if err := resultError("vkCreateSemaphore", vk.CreateSemaphore(d.LogicalDevice, &createInfo, d.context.Allocator, &handle)); err != nil {
		return nil, err
	}
	return &VulkanSemaphore{context: d.context, Handle: handle}, nil
}

func (s *VulkanSemaphore) Destroy() {
	if s.Handle == nil {
		return
	}
	vk.DestroySemaphore(s.context.Device.LogicalDevice, s.Handle, s.context.Allocator)
	s.Handle = nil
}

func semaphoreHandles(sems []driver.Semaphore) []vk.Semaphore {
	if len(sems) == 0 {
		return nil
	}
	handles := make([]vk.Semaphore, len(sems))
	for i, s := range sems {
		handles[i] = s.(*VulkanSemaphore).Handle
	}
	return handles
}
