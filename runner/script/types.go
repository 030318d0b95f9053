package script

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"golang.org/x/image/math/f32"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/pipeline"
)

// SourceType identifies how a shader section's body is interpreted.
type SourceType int

const (
	SourceGLSL SourceType = iota
	SourceSpirvAsm
	SourceSpirvBinary
)

// ShaderCode is one textual fragment of a shader stage. A stage holds
// several GLSL fragments (they are compiled together) but at most one
// SPIR-V entry.
type ShaderCode struct {
	Source SourceType
	Stage  pipeline.Stage
	Code   []byte
}

// WindowFormat describes the offscreen framebuffer a script renders into.
type WindowFormat struct {
	Width              int
	Height             int
	ColorFormat        *Format
	DepthStencilFormat *Format
}

// DefaultWindowFormat is 250x250 BGRA8 with no depth/stencil attachment.
func DefaultWindowFormat() WindowFormat {
	color, _ := LookupFormat("B8G8R8A8_UNORM")
	return WindowFormat{Width: 250, Height: 250, ColorFormat: color}
}

// VertexAttrib is one attribute column of the [vertex data] section.
type VertexAttrib struct {
	Location uint32
	Format   *Format
	Offset   uint32
}

// VBO is the parsed [vertex data] section.
type VBO struct {
	Stride      uint32
	Attribs     []VertexAttrib
	Data        []byte
	NumVertices int
}

// BufferType distinguishes uniform and storage buffer bindings.
type BufferType int

const (
	BufferUBO BufferType = iota
	BufferSSBO
)

func (t BufferType) String() string {
	if t == BufferSSBO {
		return "ssbo"
	}
	return "ubo"
}

// DescriptorType maps the buffer type onto its Vulkan descriptor type.
func (t BufferType) DescriptorType() vk.DescriptorType {
	if t == BufferSSBO {
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeUniformBuffer
}

// BufferSpec is one buffer binding a script declares, keyed by
// (DescSet, Binding).
type BufferSpec struct {
	DescSet int
	Binding int
	Type    BufferType
	Size    int
}

// CommandKind tags the command union.
type CommandKind int

const (
	CommandDrawRect CommandKind = iota
	CommandDrawArrays
	CommandDispatchCompute
	CommandProbeRect
	CommandProbeSSBO
	CommandSetPushConstant
	CommandSetBufferSubdata
	CommandClear
)

// DrawRect draws an axis-aligned rectangle in NDC.
type DrawRect struct {
	X, Y, W, H float32
	Key        int
}

// DrawArrays draws from the script's vertex data.
type DrawArrays struct {
	Topology      vk.PrimitiveTopology
	Indexed       bool
	FirstVertex   uint32
	VertexCount   uint32
	InstanceCount uint32
	Key           int
}

// DispatchCompute runs the compute pipeline.
type DispatchCompute struct {
	X, Y, Z uint32
	Key     int
}

// ProbeRect asserts the colour of a framebuffer region.
type ProbeRect struct {
	X, Y, W, H    int
	NumComponents int
	Color         f32.Vec4
	Tolerance     Tolerance
}

// ProbeSSBO asserts the contents of a storage buffer.
type ProbeSSBO struct {
	DescSet   int
	Binding   int
	Offset    int
	Op        CompareOp
	Type      BoxType
	Data      []byte
	Tolerance Tolerance
}

// PushConstant writes bytes into the push-constant range.
type PushConstant struct {
	Offset int
	Data   []byte
}

// BufferSubdata writes bytes into a declared buffer.
type BufferSubdata struct {
	DescSet int
	Binding int
	Offset  int
	Data    []byte
}

// ClearState is the clear colour/depth/stencil captured by a clear command.
type ClearState struct {
	Color   f32.Vec4
	Depth   float32
	Stencil uint32
}

// DefaultClearState clears to transparent black, depth 1, stencil 0.
func DefaultClearState() ClearState {
	return ClearState{Depth: 1.0}
}

// Command is one [test] operation. Exactly one payload pointer matching
// Kind is set; Line is the source line it came from.
type Command struct {
	Line int
	Kind CommandKind

	DrawRect      *DrawRect
	DrawArrays    *DrawArrays
	Dispatch      *DispatchCompute
	ProbeRect     *ProbeRect
	ProbeSSBO     *ProbeSSBO
	PushConstant  *PushConstant
	BufferSubdata *BufferSubdata
	Clear         *ClearState
}

// Script is the immutable result of parsing a test script.
type Script struct {
	Filename         string
	VulkanVersion    [2]int
	WindowFormat     WindowFormat
	RequiredFeatures FeatureSet
	Extensions       []string
	Stages           [pipeline.StageCount][]ShaderCode
	VertexData       *VBO
	Indices          []uint16
	Buffers          []BufferSpec
	Commands         []Command
	PipelineKeys     []*pipeline.Key
}

// AddPipelineKey returns the index of an existing equal key, or appends a
// deep copy of key and returns the new index.
func (s *Script) AddPipelineKey(key *pipeline.Key) int {
	for i, k := range s.PipelineKeys {
		if k.Equal(key) {
			return i
		}
	}
	s.PipelineKeys = append(s.PipelineKeys, key.Clone())
	return len(s.PipelineKeys) - 1
}

// GetBuffer finds or creates the buffer bound at (descSet, binding).
// Rebinding the same key with a different type is an error.
func (s *Script) GetBuffer(descSet, binding int, bufType BufferType) (*BufferSpec, error) {
	for i := range s.Buffers {
		b := &s.Buffers[i]
		if b.DescSet == descSet && b.Binding == binding {
			if b.Type != bufType {
				return nil, fmt.Errorf("%w: %d:%d is a %s", core.ErrBufferBindingTypeMismatch, descSet, binding, b.Type)
			}
			return b, nil
		}
	}
	s.Buffers = append(s.Buffers, BufferSpec{DescSet: descSet, Binding: binding, Type: bufType})
	return &s.Buffers[len(s.Buffers)-1], nil
}

// StagesPresent reports which shader stages the script defines.
func (s *Script) StagesPresent() []pipeline.Stage {
	var stages []pipeline.Stage
	for st := pipeline.Stage(0); st < pipeline.StageCount; st++ {
		if len(s.Stages[st]) > 0 {
			stages = append(stages, st)
		}
	}
	return stages
}

// HasStage reports whether a stage has any shader code.
func (s *Script) HasStage(stage pipeline.Stage) bool {
	return len(s.Stages[stage]) > 0
}

// ShaderStageFlags returns the union of the present stages' Vulkan bits,
// the visibility used for descriptors and push constants.
func (s *Script) ShaderStageFlags() vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	for _, st := range s.StagesPresent() {
		flags |= vk.ShaderStageFlags(st.ShaderStageFlagBits())
	}
	return flags
}

// PushConstantSize returns the extent of the push-constant range the
// commands touch.
func (s *Script) PushConstantSize() int {
	max := 0
	for _, c := range s.Commands {
		if c.Kind == CommandSetPushConstant {
			if end := c.PushConstant.Offset + len(c.PushConstant.Data); end > max {
				max = end
			}
		}
	}
	return max
}
