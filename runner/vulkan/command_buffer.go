package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
)

// VulkanCommandBuffer is a primary command buffer allocated from the
// context's pool.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
}

// NewVulkanCommandBuffer allocates a primary command buffer.
func NewVulkanCommandBuffer(ctx *VulkanContext) (*VulkanCommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        ctx.CommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(ctx.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		return nil, &core.VulkanError{Object: "command buffer", Result: int32(res)}
	}
	return &VulkanCommandBuffer{Handle: handles[0]}, nil
}

// Begin starts a one-time-submit recording.
func (v *VulkanCommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		return &core.VulkanError{Object: "command buffer recording", Result: int32(res)}
	}
	return nil
}

// End finishes recording.
func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return &core.VulkanError{Object: "command buffer end", Result: int32(res)}
	}
	return nil
}

// Submit queues the buffer and signals the fence.
func (v *VulkanCommandBuffer) Submit(ctx *VulkanContext, fence *VulkanFence) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if res := vk.QueueSubmit(ctx.Device.Queue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
		return &core.VulkanError{Object: "queue submission", Result: int32(res)}
	}
	return nil
}

// Free returns the buffer to the pool.
func (v *VulkanCommandBuffer) Free(ctx *VulkanContext) {
	if v.Handle != nil {
		vk.FreeCommandBuffers(ctx.Device.LogicalDevice, ctx.CommandPool, 1, []vk.CommandBuffer{v.Handle})
		v.Handle = nil
	}
}
