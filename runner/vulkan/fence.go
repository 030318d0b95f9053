package vulkan

import (
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
)

// VulkanFence wraps a fence used to wait for the queue between command
// batches.
type VulkanFence struct {
	Handle vk.Fence
}

func NewFence(ctx *VulkanContext) (*VulkanFence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var handle vk.Fence
	if res := vk.CreateFence(ctx.Device.LogicalDevice, &fenceCreateInfo, ctx.Allocator, &handle); res != vk.Success {
		return nil, &core.VulkanError{Object: "fence", Result: int32(res)}
	}
	return &VulkanFence{Handle: handle}, nil
}

// Wait blocks until the fence signals, then resets it for reuse.
func (vf *VulkanFence) Wait(ctx *VulkanContext) error {
	res := vk.WaitForFences(ctx.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, math.MaxUint64)
	if res != vk.Success {
		return &core.VulkanError{Object: "fence wait", Result: int32(res)}
	}
	if res := vk.ResetFences(ctx.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
		return &core.VulkanError{Object: "fence reset", Result: int32(res)}
	}
	return nil
}

func (vf *VulkanFence) Destroy(ctx *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(ctx.Device.LogicalDevice, vf.Handle, ctx.Allocator)
		vf.Handle = vk.NullFence
	}
}
