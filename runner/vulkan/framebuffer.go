package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/script"
)

// VulkanImage is a device-local 2D image with a view.
type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

// NewVulkanImage creates a single-level 2D image bound to device-local
// memory, with a view over the given aspects.
func NewVulkanImage(ctx *VulkanContext, width, height uint32, format vk.Format,
	usage vk.ImageUsageFlags, aspectFlags vk.ImageAspectFlags) (*VulkanImage, error) {

	outImage := &VulkanImage{Width: width, Height: height}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if res := vk.CreateImage(ctx.Device.LogicalDevice, &imageCreateInfo, ctx.Allocator, &outImage.Handle); res != vk.Success {
		return nil, &core.VulkanError{Object: "image", Result: int32(res)}
	}

	memoryRequirements := vk.MemoryRequirements{}
	vk.GetImageMemoryRequirements(ctx.Device.LogicalDevice, outImage.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := ctx.FindMemoryIndex(memoryRequirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryType == -1 {
		outImage.Destroy(ctx)
		return nil, &core.VulkanError{Object: "image memory type", Result: int32(vk.ErrorFormatNotSupported)}
	}

	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if res := vk.AllocateMemory(ctx.Device.LogicalDevice, &memoryAllocateInfo, ctx.Allocator, &outImage.Memory); res != vk.Success {
		outImage.Destroy(ctx)
		return nil, &core.VulkanError{Object: "image memory", Result: int32(res)}
	}
	if res := vk.BindImageMemory(ctx.Device.LogicalDevice, outImage.Handle, outImage.Memory, 0); res != vk.Success {
		outImage.Destroy(ctx)
		return nil, &core.VulkanError{Object: "image memory binding", Result: int32(res)}
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    outImage.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectFlags,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	if res := vk.CreateImageView(ctx.Device.LogicalDevice, &viewCreateInfo, ctx.Allocator, &outImage.View); res != vk.Success {
		outImage.Destroy(ctx)
		return nil, &core.VulkanError{Object: "image view", Result: int32(res)}
	}
	return outImage, nil
}

func (vi *VulkanImage) Destroy(ctx *VulkanContext) {
	if vi.View != vk.NullImageView {
		vk.DestroyImageView(ctx.Device.LogicalDevice, vi.View, ctx.Allocator)
		vi.View = vk.NullImageView
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(ctx.Device.LogicalDevice, vi.Memory, ctx.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(ctx.Device.LogicalDevice, vi.Handle, ctx.Allocator)
		vi.Handle = vk.NullImage
	}
}

// Framebuffer is the offscreen render target a script paints into: a colour
// image, an optional depth/stencil image, a render pass, the framebuffer
// itself and a host-visible buffer the colour image is copied into for
// probing.
type Framebuffer struct {
	Width       int
	Height      int
	ColorFormat *script.Format
	DepthFormat *script.Format

	ColorImage *VulkanImage
	DepthImage *VulkanImage
	RenderPass vk.RenderPass
	Handle     vk.Framebuffer
	Linear     *VulkanBuffer
}

// NewFramebuffer builds the render target described by the script's window
// format. Attachments keep the General layout for their whole life; the
// render pass loads and stores so several draw batches compose.
func NewFramebuffer(ctx *VulkanContext, wf script.WindowFormat) (*Framebuffer, error) {
	fb := &Framebuffer{
		Width:       wf.Width,
		Height:      wf.Height,
		ColorFormat: wf.ColorFormat,
		DepthFormat: wf.DepthStencilFormat,
	}

	colorImage, err := NewVulkanImage(ctx, uint32(wf.Width), uint32(wf.Height), wf.ColorFormat.VkFormat,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferSrcBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}
	fb.ColorImage = colorImage

	attachments := []vk.AttachmentDescription{{
		Format:         wf.ColorFormat.VkFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutGeneral,
		FinalLayout:    vk.ImageLayoutGeneral,
	}}
	views := []vk.ImageView{colorImage.View}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutGeneral,
		}},
	}

	if wf.DepthStencilFormat != nil {
		depth, stencil := wf.DepthStencilFormat.DepthStencilAspects()
		aspects := vk.ImageAspectFlags(0)
		if depth {
			aspects |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		}
		if stencil {
			aspects |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}
		depthImage, err := NewVulkanImage(ctx, uint32(wf.Width), uint32(wf.Height), wf.DepthStencilFormat.VkFormat,
			vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit), aspects)
		if err != nil {
			fb.Destroy(ctx)
			return nil, err
		}
		fb.DepthImage = depthImage
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         wf.DepthStencilFormat.VkFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpLoad,
			StencilStoreOp: vk.AttachmentStoreOpStore,
			InitialLayout:  vk.ImageLayoutGeneral,
			FinalLayout:    vk.ImageLayoutGeneral,
		})
		views = append(views, depthImage.View)
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutGeneral,
		}
	}

	renderPassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(ctx.Device.LogicalDevice, &renderPassCreateInfo, ctx.Allocator, &renderPass); res != vk.Success {
		fb.Destroy(ctx)
		return nil, &core.VulkanError{Object: "render pass", Result: int32(res)}
	}
	fb.RenderPass = renderPass

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(wf.Width),
		Height:          uint32(wf.Height),
		Layers:          1,
	}
	var handle vk.Framebuffer
	if res := vk.CreateFramebuffer(ctx.Device.LogicalDevice, &framebufferCreateInfo, ctx.Allocator, &handle); res != vk.Success {
		fb.Destroy(ctx)
		return nil, &core.VulkanError{Object: "framebuffer", Result: int32(res)}
	}
	fb.Handle = handle

	linear, err := NewVulkanBuffer(ctx, wf.Width*wf.Height*wf.ColorFormat.Size(),
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit))
	if err != nil {
		fb.Destroy(ctx)
		return nil, err
	}
	fb.Linear = linear
	return fb, nil
}

func (fb *Framebuffer) Destroy(ctx *VulkanContext) {
	if fb.Linear != nil {
		fb.Linear.Destroy(ctx)
		fb.Linear = nil
	}
	if fb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(ctx.Device.LogicalDevice, fb.Handle, ctx.Allocator)
		fb.Handle = vk.NullFramebuffer
	}
	if fb.RenderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(ctx.Device.LogicalDevice, fb.RenderPass, ctx.Allocator)
		fb.RenderPass = vk.NullRenderPass
	}
	if fb.DepthImage != nil {
		fb.DepthImage.Destroy(ctx)
		fb.DepthImage = nil
	}
	if fb.ColorImage != nil {
		fb.ColorImage.Destroy(ctx)
		fb.ColorImage = nil
	}
}
