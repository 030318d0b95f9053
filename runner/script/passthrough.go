package script

import "encoding/binary"

// passthroughVertexWords is a hand-assembled SPIR-V module that reads a
// vec4 position from attribute location 0 and writes it to gl_Position
// unmodified. It is preloaded by the [vertex shader passthrough] section.
var passthroughVertexWords = []uint32{
	0x07230203, // magic
	0x00010000, // version 1.0
	0x00000000, // generator
	0x0000000c, // bound
	0x00000000, // schema
	// OpCapability Shader
	0x00020011, 0x00000001,
	// OpMemoryModel Logical GLSL450
	0x0003000e, 0x00000000, 0x00000001,
	// OpEntryPoint Vertex %9 "main" %6 %8
	0x0007000f, 0x00000000, 0x00000009, 0x6e69616d, 0x00000000, 0x00000006, 0x00000008,
	// OpDecorate %6 Location 0
	0x00040047, 0x00000006, 0x0000001e, 0x00000000,
	// OpDecorate %8 BuiltIn Position
	0x00040047, 0x00000008, 0x0000000b, 0x00000000,
	// %1 = OpTypeVoid
	0x00020013, 0x00000001,
	// %2 = OpTypeFunction %1
	0x00030021, 0x00000002, 0x00000001,
	// %3 = OpTypeFloat 32
	0x00030016, 0x00000003, 0x00000020,
	// %4 = OpTypeVector %3 4
	0x00040017, 0x00000004, 0x00000003, 0x00000004,
	// %5 = OpTypePointer Input %4
	0x00040020, 0x00000005, 0x00000001, 0x00000004,
	// %6 = OpVariable %5 Input
	0x0004003b, 0x00000005, 0x00000006, 0x00000001,
	// %7 = OpTypePointer Output %4
	0x00040020, 0x00000007, 0x00000003, 0x00000004,
	// %8 = OpVariable %7 Output
	0x0004003b, 0x00000007, 0x00000008, 0x00000003,
	// %9 = OpFunction %1 None %2
	0x00050036, 0x00000001, 0x00000009, 0x00000000, 0x00000002,
	// %10 = OpLabel
	0x000200f8, 0x0000000a,
	// %11 = OpLoad %4 %6
	0x0004003d, 0x00000004, 0x0000000b, 0x00000006,
	// OpStore %8 %11
	0x0003003e, 0x00000008, 0x0000000b,
	// OpReturn
	0x000100fd,
	// OpFunctionEnd
	0x00010038,
}

// PassthroughVertexShader returns the passthrough module as little-endian
// SPIR-V bytes.
func PassthroughVertexShader() []byte {
	out := make([]byte, 0, len(passthroughVertexWords)*4)
	for _, w := range passthroughVertexWords {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}
