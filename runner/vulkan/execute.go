package vulkan

import (
	"encoding/binary"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/script"
)

// Executor walks a script's command list in order against the assembled
// pipelines. GPU work batches into one command buffer and flushes before
// anything that has to observe results on the host: probes and buffer
// writes.
type Executor struct {
	ctx *VulkanContext
	scr *script.Script
	pl  *Pipeline
	fb  *Framebuffer

	cmd   *VulkanCommandBuffer
	fence *VulkanFence

	vertexBuffer *VulkanBuffer
	indexBuffer  *VulkanBuffer
	rectBuffer   *VulkanBuffer
	rectOffsets  map[int]int
	buffers      []*VulkanBuffer
	sets         []vk.DescriptorSet

	recording bool
	inPass    bool
	result    core.Result
}

// Execute runs every command and merges the per-command outcomes.
func Execute(ctx *VulkanContext, scr *script.Script, pl *Pipeline, fb *Framebuffer) (core.Result, error) {
	e := &Executor{
		ctx:    ctx,
		scr:    scr,
		pl:     pl,
		fb:     fb,
		result: core.ResultPass,
	}
	defer e.teardown()
	if err := e.setup(); err != nil {
		return core.ResultFail, err
	}
	for i := range scr.Commands {
		if err := e.runCommand(i, &scr.Commands[i]); err != nil {
			return core.ResultFail, err
		}
	}
	if err := e.flush(); err != nil {
		return core.ResultFail, err
	}
	return e.result, nil
}

func (e *Executor) setup() error {
	var err error
	if e.cmd, err = NewVulkanCommandBuffer(e.ctx); err != nil {
		return err
	}
	if e.fence, err = NewFence(e.ctx); err != nil {
		return err
	}

	if e.scr.VertexData != nil {
		vbo := e.scr.VertexData
		if e.vertexBuffer, err = NewVulkanBuffer(e.ctx, len(vbo.Data), vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)); err != nil {
			return err
		}
		e.vertexBuffer.Write(0, vbo.Data)
	}
	if len(e.scr.Indices) > 0 {
		data := make([]byte, len(e.scr.Indices)*2)
		for i, index := range e.scr.Indices {
			binary.LittleEndian.PutUint16(data[i*2:], index)
		}
		if e.indexBuffer, err = NewVulkanBuffer(e.ctx, len(data), vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)); err != nil {
			return err
		}
		e.indexBuffer.Write(0, data)
	}
	if err = e.setupRectBuffer(); err != nil {
		return err
	}
	if err = e.setupBuffers(); err != nil {
		return err
	}
	return e.transitionAttachments()
}

// setupRectBuffer packs the triangle-strip corners of every draw rect
// command into one vertex buffer.
func (e *Executor) setupRectBuffer() error {
	e.rectOffsets = make(map[int]int)
	var data []byte
	appendVertex := func(x, y float32) {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(x))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(y))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(0))
	}
	for i := range e.scr.Commands {
		c := &e.scr.Commands[i]
		if c.Kind != script.CommandDrawRect {
			continue
		}
		e.rectOffsets[i] = len(data)
		r := c.DrawRect
		appendVertex(r.X, r.Y)
		appendVertex(r.X+r.W, r.Y)
		appendVertex(r.X, r.Y+r.H)
		appendVertex(r.X+r.W, r.Y+r.H)
	}
	if len(data) == 0 {
		return nil
	}
	buf, err := NewVulkanBuffer(e.ctx, len(data), vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		return err
	}
	buf.Write(0, data)
	e.rectBuffer = buf
	return nil
}

// setupBuffers creates one host-visible buffer per script binding and
// points the descriptor sets at them.
func (e *Executor) setupBuffers() error {
	e.buffers = make([]*VulkanBuffer, len(e.scr.Buffers))
	for i, spec := range e.scr.Buffers {
		size := spec.Size
		if size < 4 {
			size = 4
		}
		usage := vk.BufferUsageUniformBufferBit
		if spec.Type == script.BufferSSBO {
			usage = vk.BufferUsageStorageBufferBit
		}
		buf, err := NewVulkanBuffer(e.ctx, size, vk.BufferUsageFlags(usage))
		if err != nil {
			return err
		}
		e.buffers[i] = buf
	}

	if len(e.pl.SetLayouts) == 0 {
		return nil
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     e.pl.DescriptorPool,
		DescriptorSetCount: uint32(len(e.pl.SetLayouts)),
		PSetLayouts:        e.pl.SetLayouts,
	}
	e.sets = make([]vk.DescriptorSet, len(e.pl.SetLayouts))
	if res := vk.AllocateDescriptorSets(e.ctx.Device.LogicalDevice, &allocateInfo, &e.sets[0]); res != vk.Success {
		return &core.VulkanError{Object: "descriptor sets", Result: int32(res)}
	}

	writes := make([]vk.WriteDescriptorSet, len(e.scr.Buffers))
	infos := make([]vk.DescriptorBufferInfo, len(e.scr.Buffers))
	for i, spec := range e.scr.Buffers {
		infos[i] = vk.DescriptorBufferInfo{
			Buffer: e.buffers[i].Handle,
			Offset: 0,
			Range:  vk.DeviceSize(e.buffers[i].Size),
		}
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          e.sets[spec.DescSet],
			DstBinding:      uint32(spec.Binding),
			DescriptorCount: 1,
			DescriptorType:  spec.Type.DescriptorType(),
			PBufferInfo:     []vk.DescriptorBufferInfo{infos[i]},
		}
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(e.ctx.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	return nil
}

// transitionAttachments moves the framebuffer images from undefined to the
// general layout they keep for the rest of the run.
func (e *Executor) transitionAttachments() error {
	if err := e.cmd.Begin(); err != nil {
		return err
	}
	barrier := func(image vk.Image, aspects vk.ImageAspectFlags) vk.ImageMemoryBarrier {
		return vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			DstAccessMask:       vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessTransferReadBit),
			OldLayout:           vk.ImageLayoutUndefined,
			NewLayout:           vk.ImageLayoutGeneral,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: aspects,
				LevelCount: 1,
				LayerCount: 1,
			},
		}
	}
	barriers := []vk.ImageMemoryBarrier{
		barrier(e.fb.ColorImage.Handle, vk.ImageAspectFlags(vk.ImageAspectColorBit)),
	}
	if e.fb.DepthImage != nil {
		depth, stencil := e.fb.DepthFormat.DepthStencilAspects()
		aspects := vk.ImageAspectFlags(0)
		if depth {
			aspects |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		}
		if stencil {
			aspects |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}
		db := barrier(e.fb.DepthImage.Handle, aspects)
		db.DstAccessMask = vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
		barriers = append(barriers, db)
	}
	vk.CmdPipelineBarrier(e.cmd.Handle,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, uint32(len(barriers)), barriers)
	e.recording = true
	return e.flush()
}

func (e *Executor) ensureRecording() error {
	if e.recording {
		return nil
	}
	if err := e.cmd.Begin(); err != nil {
		return err
	}
	e.recording = true
	return nil
}

func (e *Executor) ensurePass() error {
	if err := e.ensureRecording(); err != nil {
		return err
	}
	if e.inPass {
		return nil
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  e.fb.RenderPass,
		Framebuffer: e.fb.Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: uint32(e.fb.Width), Height: uint32(e.fb.Height)},
		},
	}
	vk.CmdBeginRenderPass(e.cmd.Handle, &beginInfo, vk.SubpassContentsInline)
	e.inPass = true
	return nil
}

func (e *Executor) endPass() {
	if e.inPass {
		vk.CmdEndRenderPass(e.cmd.Handle)
		e.inPass = false
	}
}

// flush submits any recorded work and waits for it.
func (e *Executor) flush() error {
	if !e.recording {
		return nil
	}
	e.endPass()
	if err := e.cmd.End(); err != nil {
		return err
	}
	e.recording = false
	if err := e.cmd.Submit(e.ctx, e.fence); err != nil {
		return err
	}
	return e.fence.Wait(e.ctx)
}

func (e *Executor) bindGraphics(keyIndex int) {
	vk.CmdBindPipeline(e.cmd.Handle, vk.PipelineBindPointGraphics, e.pl.Pipelines[keyIndex])
	if len(e.sets) > 0 {
		vk.CmdBindDescriptorSets(e.cmd.Handle, vk.PipelineBindPointGraphics, e.pl.Layout,
			0, uint32(len(e.sets)), e.sets, 0, nil)
	}
}

func (e *Executor) runCommand(index int, c *script.Command) error {
	switch c.Kind {
	case script.CommandClear:
		return e.runClear(c.Clear)
	case script.CommandDrawRect:
		return e.runDrawRect(index, c)
	case script.CommandDrawArrays:
		return e.runDrawArrays(c.DrawArrays)
	case script.CommandDispatchCompute:
		return e.runDispatch(c.Dispatch)
	case script.CommandSetPushConstant:
		return e.runPushConstant(c.PushConstant)
	case script.CommandSetBufferSubdata:
		return e.runBufferSubdata(c.BufferSubdata)
	case script.CommandProbeRect:
		return e.runProbeRect(c)
	case script.CommandProbeSSBO:
		return e.runProbeSSBO(c)
	}
	return nil
}

func (e *Executor) runClear(clear *script.ClearState) error {
	if err := e.ensurePass(); err != nil {
		return err
	}
	var colorValue vk.ClearValue
	colorValue.SetColor(clear.Color[:])
	attachments := []vk.ClearAttachment{{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: 0,
		ClearValue:      colorValue,
	}}
	if e.fb.DepthImage != nil {
		depth, stencil := e.fb.DepthFormat.DepthStencilAspects()
		aspects := vk.ImageAspectFlags(0)
		if depth {
			aspects |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		}
		if stencil {
			aspects |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}
		var dsValue vk.ClearValue
		dsValue.SetDepthStencil(clear.Depth, clear.Stencil)
		attachments = append(attachments, vk.ClearAttachment{
			AspectMask: aspects,
			ClearValue: dsValue,
		})
	}
	rects := []vk.ClearRect{{
		Rect: vk.Rect2D{
			Extent: vk.Extent2D{Width: uint32(e.fb.Width), Height: uint32(e.fb.Height)},
		},
		LayerCount: 1,
	}}
	vk.CmdClearAttachments(e.cmd.Handle, uint32(len(attachments)), attachments, 1, rects)
	return nil
}

func (e *Executor) runDrawRect(index int, c *script.Command) error {
	if err := e.ensurePass(); err != nil {
		return err
	}
	e.bindGraphics(c.DrawRect.Key)
	offset := vk.DeviceSize(e.rectOffsets[index])
	vk.CmdBindVertexBuffers(e.cmd.Handle, 0, 1, []vk.Buffer{e.rectBuffer.Handle}, []vk.DeviceSize{offset})
	vk.CmdDraw(e.cmd.Handle, 4, 1, 0, 0)
	return nil
}

func (e *Executor) runDrawArrays(d *script.DrawArrays) error {
	if e.scr.VertexData == nil {
		return &core.ParseError{File: e.scr.Filename, Msg: "draw arrays without vertex data"}
	}
	if err := e.ensurePass(); err != nil {
		return err
	}
	e.bindGraphics(d.Key)
	vk.CmdBindVertexBuffers(e.cmd.Handle, 0, 1, []vk.Buffer{e.vertexBuffer.Handle}, []vk.DeviceSize{0})
	if d.Indexed {
		vk.CmdBindIndexBuffer(e.cmd.Handle, e.indexBuffer.Handle, 0, vk.IndexTypeUint16)
		vk.CmdDrawIndexed(e.cmd.Handle, d.VertexCount, d.InstanceCount, 0, int32(d.FirstVertex), 0)
	} else {
		vk.CmdDraw(e.cmd.Handle, d.VertexCount, d.InstanceCount, d.FirstVertex, 0)
	}
	return nil
}

func (e *Executor) runDispatch(d *script.DispatchCompute) error {
	if err := e.ensureRecording(); err != nil {
		return err
	}
	e.endPass()
	vk.CmdBindPipeline(e.cmd.Handle, vk.PipelineBindPointCompute, e.pl.Pipelines[d.Key])
	if len(e.sets) > 0 {
		vk.CmdBindDescriptorSets(e.cmd.Handle, vk.PipelineBindPointCompute, e.pl.Layout,
			0, uint32(len(e.sets)), e.sets, 0, nil)
	}
	vk.CmdDispatch(e.cmd.Handle, d.X, d.Y, d.Z)
	return nil
}

func (e *Executor) runPushConstant(pc *script.PushConstant) error {
	if err := e.ensureRecording(); err != nil {
		return err
	}
	vk.CmdPushConstants(e.cmd.Handle, e.pl.Layout, e.pl.StageFlags,
		uint32(pc.Offset), uint32(len(pc.Data)), unsafe.Pointer(&pc.Data[0]))
	return nil
}

// runBufferSubdata flushes pending GPU work so earlier draws see the old
// contents, then writes through the persistent mapping.
func (e *Executor) runBufferSubdata(w *script.BufferSubdata) error {
	if err := e.flush(); err != nil {
		return err
	}
	for i, spec := range e.scr.Buffers {
		if spec.DescSet == w.DescSet && spec.Binding == w.Binding {
			e.buffers[i].Write(w.Offset, w.Data)
			return nil
		}
	}
	return &core.ParseError{File: e.scr.Filename, Line: 0, Msg: "write to undeclared buffer"}
}

func (e *Executor) teardown() {
	if e.fence != nil && e.recording {
		// Best effort: never leave a recording open.
		e.endPass()
		_ = e.cmd.End()
		e.recording = false
	}
	for i := len(e.buffers) - 1; i >= 0; i-- {
		if e.buffers[i] != nil {
			e.buffers[i].Destroy(e.ctx)
		}
	}
	if e.rectBuffer != nil {
		e.rectBuffer.Destroy(e.ctx)
	}
	if e.indexBuffer != nil {
		e.indexBuffer.Destroy(e.ctx)
	}
	if e.vertexBuffer != nil {
		e.vertexBuffer.Destroy(e.ctx)
	}
	if len(e.sets) > 0 {
		vk.FreeDescriptorSets(e.ctx.Device.LogicalDevice, e.pl.DescriptorPool, uint32(len(e.sets)), &e.sets[0])
		e.sets = nil
	}
	if e.fence != nil {
		e.fence.Destroy(e.ctx)
	}
	if e.cmd != nil {
		e.cmd.Free(e.ctx)
	}
}
