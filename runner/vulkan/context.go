package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
)

// VulkanDevice bundles the physical and logical device state the runner
// needs for one script.
type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	QueueIndex     int32
	Queue          vk.Queue
	Properties     vk.PhysicalDeviceProperties
	Features       vk.PhysicalDeviceFeatures
	Memory         vk.PhysicalDeviceMemoryProperties
}

// VulkanContext owns the instance, device and command pool for one run.
type VulkanContext struct {
	Instance    vk.Instance
	Allocator   *vk.AllocationCallbacks
	Device      VulkanDevice
	CommandPool vk.CommandPool
}

// FindMemoryIndex returns the index of a memory type matching the filter
// and property flags, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	for i := uint32(0); i < vc.Device.Memory.MemoryTypeCount; i++ {
		vc.Device.Memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(vc.Device.Memory.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// Destroy tears the context down in reverse construction order.
func (vc *VulkanContext) Destroy() {
	if vc.CommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(vc.Device.LogicalDevice, vc.CommandPool, vc.Allocator)
		vc.CommandPool = vk.NullCommandPool
	}
	if vc.Device.LogicalDevice != nil {
		vk.DestroyDevice(vc.Device.LogicalDevice, vc.Allocator)
		vc.Device.LogicalDevice = nil
	}
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
}
