package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/pipeline"
	"github.com/spaghettifunk/vkrun/runner/script"
)

// rectVertexSize is the stride of the positions draw rect generates: one
// three-component float vector per corner.
const rectVertexSize = 3 * 4

// Pipeline owns every Vulkan object derived from a script's pipeline keys:
// shader modules, descriptor set layouts, pool, pipeline layout, cache and
// one concrete pipeline per key.
type Pipeline struct {
	ctx *VulkanContext

	Modules        [pipeline.StageCount]vk.ShaderModule
	SetLayouts     []vk.DescriptorSetLayout
	DescriptorPool vk.DescriptorPool
	Layout         vk.PipelineLayout
	Cache          vk.PipelineCache
	Pipelines      []vk.Pipeline

	PushConstantSize int
	StageFlags       vk.ShaderStageFlags
}

// NewShaderModule wraps SPIR-V bytes in a VkShaderModule.
func NewShaderModule(ctx *VulkanContext, code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return vk.NullShaderModule, fmt.Errorf("%w: SPIR-V length %d is not a whole number of words", core.ErrInvalidValue, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(ctx.Device.LogicalDevice, &createInfo, ctx.Allocator, &module); res != vk.Success {
		return vk.NullShaderModule, &core.VulkanError{Object: "shader module", Result: int32(res)}
	}
	return module, nil
}

// NewPipeline assembles the descriptor set layouts, pipeline layout, cache
// and every pipeline a script's key list names. spirv holds one compiled
// module per present stage. On any failure everything created so far is
// destroyed in reverse order.
func NewPipeline(ctx *VulkanContext, scr *script.Script, spirv map[pipeline.Stage][]byte, fb *Framebuffer) (*Pipeline, error) {
	p := &Pipeline{ctx: ctx, StageFlags: scr.ShaderStageFlags()}

	for stage, code := range spirv {
		module, err := NewShaderModule(ctx, code)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.Modules[stage] = module
	}

	if err := p.createSetLayouts(scr); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createDescriptorPool(scr); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createLayout(scr); err != nil {
		p.Destroy()
		return nil, err
	}

	cacheCreateInfo := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var cache vk.PipelineCache
	if res := vk.CreatePipelineCache(ctx.Device.LogicalDevice, &cacheCreateInfo, ctx.Allocator, &cache); res != vk.Success {
		p.Destroy()
		return nil, &core.VulkanError{Object: "pipeline cache", Result: int32(res)}
	}
	p.Cache = cache

	if err := p.createPipelines(scr, fb); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// createSetLayouts groups the script's sorted buffers by descriptor set.
// Intermediate sets with no bindings still get an empty layout so set
// numbers bind where the shaders expect them.
func (p *Pipeline) createSetLayouts(scr *script.Script) error {
	numSets := 0
	for _, buf := range scr.Buffers {
		if buf.DescSet+1 > numSets {
			numSets = buf.DescSet + 1
		}
	}
	p.SetLayouts = make([]vk.DescriptorSetLayout, numSets)
	for set := 0; set < numSets; set++ {
		var bindings []vk.DescriptorSetLayoutBinding
		for _, buf := range scr.Buffers {
			if buf.DescSet != set {
				continue
			}
			bindings = append(bindings, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(buf.Binding),
				DescriptorType:  buf.Type.DescriptorType(),
				DescriptorCount: 1,
				StageFlags:      p.StageFlags,
			})
		}
		createInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		var layout vk.DescriptorSetLayout
		if res := vk.CreateDescriptorSetLayout(p.ctx.Device.LogicalDevice, &createInfo, p.ctx.Allocator, &layout); res != vk.Success {
			return &core.VulkanError{Object: "descriptor set layout", Result: int32(res)}
		}
		p.SetLayouts[set] = layout
	}
	return nil
}

// createDescriptorPool sizes the pool to the script's UBO and SSBO counts.
// The free-descriptor-set flag lets the executor free its sets at teardown.
func (p *Pipeline) createDescriptorPool(scr *script.Script) error {
	if len(p.SetLayouts) == 0 {
		return nil
	}
	counts := map[vk.DescriptorType]uint32{}
	for _, buf := range scr.Buffers {
		counts[buf.Type.DescriptorType()]++
	}
	var poolSizes []vk.DescriptorPoolSize
	for descType, count := range counts {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            descType,
			DescriptorCount: count,
		})
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       uint32(len(p.SetLayouts)),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(p.ctx.Device.LogicalDevice, &createInfo, p.ctx.Allocator, &pool); res != vk.Success {
		return &core.VulkanError{Object: "descriptor pool", Result: int32(res)}
	}
	p.DescriptorPool = pool
	return nil
}

// createLayout combines the push-constant range with the set layouts.
func (p *Pipeline) createLayout(scr *script.Script) error {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(p.SetLayouts)),
		PSetLayouts:    p.SetLayouts,
	}
	p.PushConstantSize = scr.PushConstantSize()
	if p.PushConstantSize > 0 {
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: p.StageFlags,
			Offset:     0,
			Size:       uint32(p.PushConstantSize),
		}}
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(p.ctx.Device.LogicalDevice, &createInfo, p.ctx.Allocator, &layout); res != vk.Success {
		return &core.VulkanError{Object: "pipeline layout", Result: int32(res)}
	}
	p.Layout = layout
	return nil
}

// shaderStages builds one stage create-info per present graphics module
// using the key's entrypoints.
func (p *Pipeline) shaderStages(key *pipeline.Key) []vk.PipelineShaderStageCreateInfo {
	var stages []vk.PipelineShaderStageCreateInfo
	for stage := pipeline.Stage(0); stage < pipeline.StageCount; stage++ {
		if stage == pipeline.StageCompute || p.Modules[stage] == vk.NullShaderModule {
			continue
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage.ShaderStageFlagBits(),
			Module: p.Modules[stage],
			PName:  SafeString(key.Entrypoint(stage)),
		})
	}
	return stages
}

// vertexInputState derives the vertex bindings from the key's source: the
// generated rectangle positions, the script's VBO, or nothing.
func vertexInputState(key *pipeline.Key, scr *script.Script) vk.PipelineVertexInputStateCreateInfo {
	state := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	switch key.Source {
	case pipeline.SourceRectangle:
		state.VertexBindingDescriptionCount = 1
		state.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    rectVertexSize,
			InputRate: vk.VertexInputRateVertex,
		}}
		state.VertexAttributeDescriptionCount = 1
		state.PVertexAttributeDescriptions = []vk.VertexInputAttributeDescription{{
			Location: 0,
			Binding:  0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   0,
		}}
	case pipeline.SourceVertexData:
		if scr.VertexData == nil {
			return state
		}
		vbo := scr.VertexData
		state.VertexBindingDescriptionCount = 1
		state.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    vbo.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		attribs := make([]vk.VertexInputAttributeDescription, len(vbo.Attribs))
		for i, a := range vbo.Attribs {
			attribs[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   a.Format.VkFormat,
				Offset:   a.Offset,
			}
		}
		state.VertexAttributeDescriptionCount = uint32(len(attribs))
		state.PVertexAttributeDescriptions = attribs
	}
	return state
}

// createPipelines walks the key list in order, building graphics pipelines
// with a derivative chain and single-stage compute pipelines.
func (p *Pipeline) createPipelines(scr *script.Script, fb *Framebuffer) error {
	numGraphics := 0
	for _, key := range scr.PipelineKeys {
		if key.Type == pipeline.TypeGraphics {
			numGraphics++
		}
	}

	hasTess := scr.HasStage(pipeline.StageTessCtrl) || scr.HasStage(pipeline.StageTessEval)
	firstGraphics := vk.NullPipeline

	p.Pipelines = make([]vk.Pipeline, len(scr.PipelineKeys))
	for i, key := range scr.PipelineKeys {
		if key.Type == pipeline.TypeCompute {
			handle, err := p.createComputePipeline(key)
			if err != nil {
				return err
			}
			p.Pipelines[i] = handle
			continue
		}
		handle, err := p.createGraphicsPipeline(key, scr, fb, hasTess, numGraphics, firstGraphics)
		if err != nil {
			return err
		}
		p.Pipelines[i] = handle
		if firstGraphics == vk.NullPipeline {
			firstGraphics = handle
		}
	}
	return nil
}

func (p *Pipeline) createGraphicsPipeline(key *pipeline.Key, scr *script.Script, fb *Framebuffer,
	hasTess bool, numGraphics int, firstGraphics vk.Pipeline) (vk.Pipeline, error) {

	var st pipeline.StateTree
	key.Apply(&st)

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			Width:    float32(fb.Width),
			Height:   float32(fb.Height),
			MinDepth: 0,
			MaxDepth: 1,
		}},
		ScissorCount: 1,
		PScissors: []vk.Rect2D{{
			Extent: vk.Extent2D{Width: uint32(fb.Width), Height: uint32(fb.Height)},
		}},
	}

	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	vertexInput := vertexInputState(key, scr)

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &st.InputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &st.Rasterization,
		PMultisampleState:   &multisampleState,
		PDepthStencilState:  &st.DepthStencil,
		PColorBlendState:    &st.ColorBlend,
		Layout:              p.Layout,
		RenderPass:          fb.RenderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	if hasTess {
		createInfo.PTessellationState = &st.Tessellation
	}

	stages := p.shaderStages(key)
	createInfo.StageCount = uint32(len(stages))
	createInfo.PStages = stages

	if numGraphics > 1 {
		if firstGraphics == vk.NullPipeline {
			createInfo.Flags = vk.PipelineCreateFlags(vk.PipelineCreateAllowDerivativesBit)
		} else {
			createInfo.Flags = vk.PipelineCreateFlags(vk.PipelineCreateDerivativeBit)
			createInfo.BasePipelineHandle = firstGraphics
		}
	}

	handles := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(p.ctx.Device.LogicalDevice, p.Cache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, p.ctx.Allocator, handles)
	if res != vk.Success {
		return vk.NullPipeline, &core.VulkanError{Object: "graphics pipeline", Result: int32(res)}
	}
	return handles[0], nil
}

func (p *Pipeline) createComputePipeline(key *pipeline.Key) (vk.Pipeline, error) {
	if p.Modules[pipeline.StageCompute] == vk.NullShaderModule {
		return vk.NullPipeline, fmt.Errorf("%w: compute command without a compute shader", core.ErrInvalidValue)
	}
	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: p.Modules[pipeline.StageCompute],
			PName:  SafeString(key.Entrypoint(pipeline.StageCompute)),
		},
		Layout:            p.Layout,
		BasePipelineIndex: -1,
	}
	handles := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(p.ctx.Device.LogicalDevice, p.Cache, 1,
		[]vk.ComputePipelineCreateInfo{createInfo}, p.ctx.Allocator, handles)
	if res != vk.Success {
		return vk.NullPipeline, &core.VulkanError{Object: "compute pipeline", Result: int32(res)}
	}
	return handles[0], nil
}

// Destroy releases every handle in reverse construction order. Safe to call
// on a partially built pipeline.
func (p *Pipeline) Destroy() {
	device := p.ctx.Device.LogicalDevice
	for i := len(p.Pipelines) - 1; i >= 0; i-- {
		if p.Pipelines[i] != vk.NullPipeline {
			vk.DestroyPipeline(device, p.Pipelines[i], p.ctx.Allocator)
		}
	}
	p.Pipelines = nil
	if p.Cache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(device, p.Cache, p.ctx.Allocator)
		p.Cache = vk.NullPipelineCache
	}
	if p.Layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(device, p.Layout, p.ctx.Allocator)
		p.Layout = vk.NullPipelineLayout
	}
	if p.DescriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(device, p.DescriptorPool, p.ctx.Allocator)
		p.DescriptorPool = vk.NullDescriptorPool
	}
	for i := len(p.SetLayouts) - 1; i >= 0; i-- {
		if p.SetLayouts[i] != vk.NullDescriptorSetLayout {
			vk.DestroyDescriptorSetLayout(device, p.SetLayouts[i], p.ctx.Allocator)
		}
	}
	p.SetLayouts = nil
	for i := len(p.Modules) - 1; i >= 0; i-- {
		if p.Modules[i] != vk.NullShaderModule {
			vk.DestroyShaderModule(device, p.Modules[i], p.ctx.Allocator)
			p.Modules[i] = vk.NullShaderModule
		}
	}
}
