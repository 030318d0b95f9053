package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/parse"
)

// Stage identifies a shader stage slot in a pipeline key.
type Stage int

const (
	StageVertex Stage = iota
	StageTessCtrl
	StageTessEval
	StageGeometry
	StageFragment
	StageCompute
	StageCount
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageTessCtrl:
		return "tessellation control"
	case StageTessEval:
		return "tessellation evaluation"
	case StageGeometry:
		return "geometry"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return "unknown"
}

// ShaderStageFlagBits returns the Vulkan stage bit for s.
func (s Stage) ShaderStageFlagBits() vk.ShaderStageFlagBits {
	switch s {
	case StageVertex:
		return vk.ShaderStageVertexBit
	case StageTessCtrl:
		return vk.ShaderStageTessellationControlBit
	case StageTessEval:
		return vk.ShaderStageTessellationEvaluationBit
	case StageGeometry:
		return vk.ShaderStageGeometryBit
	case StageFragment:
		return vk.ShaderStageFragmentBit
	default:
		return vk.ShaderStageComputeBit
	}
}

// Type distinguishes graphics and compute keys.
type Type int

const (
	TypeGraphics Type = iota
	TypeCompute
)

// Source selects where a graphics pipeline's vertices come from.
type Source int

const (
	// SourceRectangle consumes the positions generated by draw rect.
	SourceRectangle Source = iota
	// SourceVertexData consumes the script's [vertex data] section.
	SourceVertexData
)

type propKind int

const (
	propBool propKind = iota
	propInt
	propFloat
)

// StateTree is the fixed-function create-info tree a key serialises into.
// The assembler owns one tree per pipeline and wires its nodes into the
// graphics create-info.
type StateTree struct {
	InputAssembly   vk.PipelineInputAssemblyStateCreateInfo
	Tessellation    vk.PipelineTessellationStateCreateInfo
	Rasterization   vk.PipelineRasterizationStateCreateInfo
	ColorBlend      vk.PipelineColorBlendStateCreateInfo
	BlendAttachment vk.PipelineColorBlendAttachmentState
	DepthStencil    vk.PipelineDepthStencilStateCreateInfo
}

// propSpec describes one registered pipeline-key property: its flat name,
// value kind, default bits, and where the value lands in the state tree.
// Float slots hold the IEEE-754 bit pattern so key comparison stays exact.
type propSpec struct {
	name  string
	kind  propKind
	def   uint32
	store func(st *StateTree, bits uint32)
}

func f32bits(f float32) uint32 { return math.Float32bits(f) }

var propSpecs = []propSpec{
	// VkPipelineInputAssemblyStateCreateInfo
	{"topology", propInt, uint32(vk.PrimitiveTopologyTriangleStrip),
		func(st *StateTree, v uint32) { st.InputAssembly.Topology = vk.PrimitiveTopology(v) }},
	{"primitiveRestartEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.InputAssembly.PrimitiveRestartEnable = vk.Bool32(v) }},

	// VkPipelineTessellationStateCreateInfo
	{"patchControlPoints", propInt, 0,
		func(st *StateTree, v uint32) { st.Tessellation.PatchControlPoints = v }},

	// VkPipelineRasterizationStateCreateInfo
	{"depthClampEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.Rasterization.DepthClampEnable = vk.Bool32(v) }},
	{"rasterizerDiscardEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.Rasterization.RasterizerDiscardEnable = vk.Bool32(v) }},
	{"polygonMode", propInt, uint32(vk.PolygonModeFill),
		func(st *StateTree, v uint32) { st.Rasterization.PolygonMode = vk.PolygonMode(v) }},
	{"cullMode", propInt, uint32(vk.CullModeNone),
		func(st *StateTree, v uint32) { st.Rasterization.CullMode = vk.CullModeFlags(v) }},
	{"frontFace", propInt, uint32(vk.FrontFaceCounterClockwise),
		func(st *StateTree, v uint32) { st.Rasterization.FrontFace = vk.FrontFace(v) }},
	{"depthBiasEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.Rasterization.DepthBiasEnable = vk.Bool32(v) }},
	{"depthBiasConstantFactor", propFloat, f32bits(0),
		func(st *StateTree, v uint32) { st.Rasterization.DepthBiasConstantFactor = math.Float32frombits(v) }},
	{"depthBiasClamp", propFloat, f32bits(0),
		func(st *StateTree, v uint32) { st.Rasterization.DepthBiasClamp = math.Float32frombits(v) }},
	{"depthBiasSlopeFactor", propFloat, f32bits(0),
		func(st *StateTree, v uint32) { st.Rasterization.DepthBiasSlopeFactor = math.Float32frombits(v) }},
	{"lineWidth", propFloat, f32bits(1.0),
		func(st *StateTree, v uint32) { st.Rasterization.LineWidth = math.Float32frombits(v) }},

	// VkPipelineColorBlendStateCreateInfo
	{"logicOpEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.ColorBlend.LogicOpEnable = vk.Bool32(v) }},
	{"logicOp", propInt, uint32(vk.LogicOpCopy),
		func(st *StateTree, v uint32) { st.ColorBlend.LogicOp = vk.LogicOp(v) }},

	// VkPipelineColorBlendAttachmentState (single attachment)
	{"blendEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.BlendAttachment.BlendEnable = vk.Bool32(v) }},
	{"srcColorBlendFactor", propInt, uint32(vk.BlendFactorOne),
		func(st *StateTree, v uint32) { st.BlendAttachment.SrcColorBlendFactor = vk.BlendFactor(v) }},
	{"dstColorBlendFactor", propInt, uint32(vk.BlendFactorZero),
		func(st *StateTree, v uint32) { st.BlendAttachment.DstColorBlendFactor = vk.BlendFactor(v) }},
	{"colorBlendOp", propInt, uint32(vk.BlendOpAdd),
		func(st *StateTree, v uint32) { st.BlendAttachment.ColorBlendOp = vk.BlendOp(v) }},
	{"srcAlphaBlendFactor", propInt, uint32(vk.BlendFactorOne),
		func(st *StateTree, v uint32) { st.BlendAttachment.SrcAlphaBlendFactor = vk.BlendFactor(v) }},
	{"dstAlphaBlendFactor", propInt, uint32(vk.BlendFactorZero),
		func(st *StateTree, v uint32) { st.BlendAttachment.DstAlphaBlendFactor = vk.BlendFactor(v) }},
	{"alphaBlendOp", propInt, uint32(vk.BlendOpAdd),
		func(st *StateTree, v uint32) { st.BlendAttachment.AlphaBlendOp = vk.BlendOp(v) }},
	{"colorWriteMask", propInt,
		uint32(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		func(st *StateTree, v uint32) { st.BlendAttachment.ColorWriteMask = vk.ColorComponentFlags(v) }},

	// VkPipelineDepthStencilStateCreateInfo
	{"depthTestEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.DepthStencil.DepthTestEnable = vk.Bool32(v) }},
	{"depthWriteEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.DepthStencil.DepthWriteEnable = vk.Bool32(v) }},
	{"depthCompareOp", propInt, uint32(vk.CompareOpLess),
		func(st *StateTree, v uint32) { st.DepthStencil.DepthCompareOp = vk.CompareOp(v) }},
	{"depthBoundsTestEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.DepthStencil.DepthBoundsTestEnable = vk.Bool32(v) }},
	{"stencilTestEnable", propBool, 0,
		func(st *StateTree, v uint32) { st.DepthStencil.StencilTestEnable = vk.Bool32(v) }},
	{"front.failOp", propInt, uint32(vk.StencilOpKeep),
		func(st *StateTree, v uint32) { st.DepthStencil.Front.FailOp = vk.StencilOp(v) }},
	{"front.passOp", propInt, uint32(vk.StencilOpKeep),
		func(st *StateTree, v uint32) { st.DepthStencil.Front.PassOp = vk.StencilOp(v) }},
	{"front.depthFailOp", propInt, uint32(vk.StencilOpKeep),
		func(st *StateTree, v uint32) { st.DepthStencil.Front.DepthFailOp = vk.StencilOp(v) }},
	{"front.compareOp", propInt, uint32(vk.CompareOpAlways),
		func(st *StateTree, v uint32) { st.DepthStencil.Front.CompareOp = vk.CompareOp(v) }},
	{"front.compareMask", propInt, 0xffffffff,
		func(st *StateTree, v uint32) { st.DepthStencil.Front.CompareMask = v }},
	{"front.writeMask", propInt, 0xffffffff,
		func(st *StateTree, v uint32) { st.DepthStencil.Front.WriteMask = v }},
	{"front.reference", propInt, 0,
		func(st *StateTree, v uint32) { st.DepthStencil.Front.Reference = v }},
	{"back.failOp", propInt, uint32(vk.StencilOpKeep),
		func(st *StateTree, v uint32) { st.DepthStencil.Back.FailOp = vk.StencilOp(v) }},
	{"back.passOp", propInt, uint32(vk.StencilOpKeep),
		func(st *StateTree, v uint32) { st.DepthStencil.Back.PassOp = vk.StencilOp(v) }},
	{"back.depthFailOp", propInt, uint32(vk.StencilOpKeep),
		func(st *StateTree, v uint32) { st.DepthStencil.Back.DepthFailOp = vk.StencilOp(v) }},
	{"back.compareOp", propInt, uint32(vk.CompareOpAlways),
		func(st *StateTree, v uint32) { st.DepthStencil.Back.CompareOp = vk.CompareOp(v) }},
	{"back.compareMask", propInt, 0xffffffff,
		func(st *StateTree, v uint32) { st.DepthStencil.Back.CompareMask = v }},
	{"back.writeMask", propInt, 0xffffffff,
		func(st *StateTree, v uint32) { st.DepthStencil.Back.WriteMask = v }},
	{"back.reference", propInt, 0,
		func(st *StateTree, v uint32) { st.DepthStencil.Back.Reference = v }},
	{"minDepthBounds", propFloat, f32bits(0),
		func(st *StateTree, v uint32) { st.DepthStencil.MinDepthBounds = math.Float32frombits(v) }},
	{"maxDepthBounds", propFloat, f32bits(0),
		func(st *StateTree, v uint32) { st.DepthStencil.MaxDepthBounds = math.Float32frombits(v) }},
}

// Key identifies one pipeline variant: its type, vertex source, the full
// fixed-function property set, and the per-stage entrypoints.
type Key struct {
	Type        Type
	Source      Source
	props       []uint32
	entrypoints [StageCount]string
}

// NewKey returns a key with the baseline state: triangle-strip topology,
// fill mode, no culling, blending off with a full write mask, depth and
// stencil tests off.
func NewKey() *Key {
	k := &Key{props: make([]uint32, len(propSpecs))}
	for i, spec := range propSpecs {
		k.props[i] = spec.def
	}
	for i := range k.entrypoints {
		k.entrypoints[i] = "main"
	}
	return k
}

// Clone returns a deep copy of k.
func (k *Key) Clone() *Key {
	c := *k
	c.props = make([]uint32, len(k.props))
	copy(c.props, k.props)
	return &c
}

// Equal reports whether two keys would produce identical pipelines: same
// type, same property values, same entrypoints.
func (k *Key) Equal(o *Key) bool {
	if k.Type != o.Type {
		return false
	}
	for i := range k.props {
		if k.props[i] != o.props[i] {
			return false
		}
	}
	return k.entrypoints == o.entrypoints
}

// Entrypoint returns the entrypoint name for a stage.
func (k *Key) Entrypoint(stage Stage) string {
	return k.entrypoints[stage]
}

// SetEntrypoint overrides the entrypoint name for a stage.
func (k *Key) SetEntrypoint(stage Stage, name string) {
	k.entrypoints[stage] = name
}

// lookupProp finds a registered property by its flat name. Case sensitive.
func lookupProp(name string) (int, bool) {
	for i := range propSpecs {
		if propSpecs[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// HasProperty reports whether name is a registered pipeline-key property.
func HasProperty(name string) bool {
	_, ok := lookupProp(name)
	return ok
}

// Topology returns the key's current topology value.
func (k *Key) Topology() vk.PrimitiveTopology {
	slot, _ := lookupProp("topology")
	return vk.PrimitiveTopology(k.props[slot])
}

// SetTopology overrides the key's topology.
func (k *Key) SetTopology(t vk.PrimitiveTopology) {
	slot, _ := lookupProp("topology")
	k.props[slot] = uint32(t)
}

// SetPatchControlPoints overrides the tessellation patch size.
func (k *Key) SetPatchControlPoints(n uint32) {
	slot, _ := lookupProp("patchControlPoints")
	k.props[slot] = n
}

// SetProperty parses text according to the property's kind and stores it.
// Bool properties take true/false or a decimal integer; int properties take
// one or more |-separated terms, each a decimal integer or an enum name;
// float properties take one float with the 0x bit-pattern override.
func (k *Key) SetProperty(name, text string) error {
	slot, ok := lookupProp(name)
	if !ok {
		return fmt.Errorf("%w: unknown property %q", core.ErrInvalidValue, name)
	}
	text = strings.TrimSpace(text)
	switch propSpecs[slot].kind {
	case propBool:
		switch text {
		case "true":
			k.props[slot] = 1
		case "false":
			k.props[slot] = 0
		default:
			v, err := parse.ParseInt(text, 64)
			if err != nil {
				return fmt.Errorf("%w: %q is not a boolean", core.ErrInvalidValue, text)
			}
			k.props[slot] = uint32(v)
		}
	case propInt:
		var bits uint32
		for _, term := range strings.Split(text, "|") {
			term = strings.TrimSpace(term)
			if term == "" {
				return fmt.Errorf("%w: empty term in %q", core.ErrInvalidValue, text)
			}
			if v, err := strconv.ParseInt(term, 10, 64); err == nil {
				bits |= uint32(v)
				continue
			}
			v, ok := LookupEnum(term)
			if !ok {
				return fmt.Errorf("%w: unknown value %q", core.ErrInvalidValue, term)
			}
			bits |= uint32(v)
		}
		k.props[slot] = bits
	case propFloat:
		v, err := parse.ParseFloat(text)
		if err != nil {
			return err
		}
		k.props[slot] = math.Float32bits(v)
	}
	return nil
}

// Apply serialises the key into a state tree, filling the SType fields and
// attaching the single blend attachment.
func (k *Key) Apply(st *StateTree) {
	st.InputAssembly.SType = vk.StructureTypePipelineInputAssemblyStateCreateInfo
	st.Tessellation.SType = vk.StructureTypePipelineTessellationStateCreateInfo
	st.Rasterization.SType = vk.StructureTypePipelineRasterizationStateCreateInfo
	st.ColorBlend.SType = vk.StructureTypePipelineColorBlendStateCreateInfo
	st.DepthStencil.SType = vk.StructureTypePipelineDepthStencilStateCreateInfo
	for i, spec := range propSpecs {
		spec.store(st, k.props[i])
	}
	st.ColorBlend.AttachmentCount = 1
	st.ColorBlend.PAttachments = []vk.PipelineColorBlendAttachmentState{st.BlendAttachment}
}

// UsesTessellation reports whether the key draws patches.
func (k *Key) UsesTessellation() bool {
	return k.Topology() == vk.PrimitiveTopologyPatchList
}
