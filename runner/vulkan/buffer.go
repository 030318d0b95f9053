package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
)

// VulkanBuffer is a host-visible buffer kept persistently mapped. Every
// buffer the runner uses (vertex data, indices, UBOs, SSBOs, framebuffer
// read-back) is host memory so scripts can write and probe it directly.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   int
	Mapped []byte
}

// NewVulkanBuffer allocates, binds and maps a buffer of the given usage.
func NewVulkanBuffer(ctx *VulkanContext, size int, usage vk.BufferUsageFlags) (*VulkanBuffer, error) {
	buf := &VulkanBuffer{Size: size}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(ctx.Device.LogicalDevice, &bufferCreateInfo, ctx.Allocator, &handle); res != vk.Success {
		return nil, &core.VulkanError{Object: "buffer", Result: int32(res)}
	}
	buf.Handle = handle

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device.LogicalDevice, buf.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryIndex := ctx.FindMemoryIndex(memoryRequirements.MemoryTypeBits,
		uint32(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if memoryIndex < 0 {
		buf.Destroy(ctx)
		return nil, &core.VulkanError{Object: "buffer memory type", Result: int32(vk.ErrorFormatNotSupported)}
	}

	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.Device.LogicalDevice, &memoryAllocateInfo, ctx.Allocator, &memory); res != vk.Success {
		buf.Destroy(ctx)
		return nil, &core.VulkanError{Object: "buffer memory", Result: int32(res)}
	}
	buf.Memory = memory

	if res := vk.BindBufferMemory(ctx.Device.LogicalDevice, buf.Handle, buf.Memory, 0); res != vk.Success {
		buf.Destroy(ctx)
		return nil, &core.VulkanError{Object: "buffer binding", Result: int32(res)}
	}

	var data unsafe.Pointer
	if res := vk.MapMemory(ctx.Device.LogicalDevice, buf.Memory, 0, vk.DeviceSize(size), 0, &data); res != vk.Success {
		buf.Destroy(ctx)
		return nil, &core.VulkanError{Object: "buffer mapping", Result: int32(res)}
	}
	buf.Mapped = unsafe.Slice((*byte)(data), size)
	return buf, nil
}

// Write copies data into the mapped memory at offset.
func (b *VulkanBuffer) Write(offset int, data []byte) {
	copy(b.Mapped[offset:], data)
}

// Destroy unmaps and frees the buffer.
func (b *VulkanBuffer) Destroy(ctx *VulkanContext) {
	if b.Mapped != nil {
		vk.UnmapMemory(ctx.Device.LogicalDevice, b.Memory)
		b.Mapped = nil
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(ctx.Device.LogicalDevice, b.Memory, ctx.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(ctx.Device.LogicalDevice, b.Handle, ctx.Allocator)
		b.Handle = vk.NullBuffer
	}
}
