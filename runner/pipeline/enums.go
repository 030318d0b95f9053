package pipeline

import (
	"sort"
	"strings"

	vk "github.com/goki/vulkan"
)

type enumEntry struct {
	name  string
	value int32
}

type enumGroup struct {
	prefix  string
	entries []enumEntry
}

// enumGroups lists every enum a pipeline-key property can name. The lookup
// table is built from it with both the full VK_* name and the bare suffix;
// a suffix shared by two enums with different values is dropped so it can
// never resolve to the wrong one.
var enumGroups = []enumGroup{
	{"VK_PRIMITIVE_TOPOLOGY_", []enumEntry{
		{"POINT_LIST", int32(vk.PrimitiveTopologyPointList)},
		{"LINE_LIST", int32(vk.PrimitiveTopologyLineList)},
		{"LINE_STRIP", int32(vk.PrimitiveTopologyLineStrip)},
		{"TRIANGLE_LIST", int32(vk.PrimitiveTopologyTriangleList)},
		{"TRIANGLE_STRIP", int32(vk.PrimitiveTopologyTriangleStrip)},
		{"TRIANGLE_FAN", int32(vk.PrimitiveTopologyTriangleFan)},
		{"LINE_LIST_WITH_ADJACENCY", int32(vk.PrimitiveTopologyLineListWithAdjacency)},
		{"LINE_STRIP_WITH_ADJACENCY", int32(vk.PrimitiveTopologyLineStripWithAdjacency)},
		{"TRIANGLE_LIST_WITH_ADJACENCY", int32(vk.PrimitiveTopologyTriangleListWithAdjacency)},
		{"TRIANGLE_STRIP_WITH_ADJACENCY", int32(vk.PrimitiveTopologyTriangleStripWithAdjacency)},
		{"PATCH_LIST", int32(vk.PrimitiveTopologyPatchList)},
	}},
	{"VK_POLYGON_MODE_", []enumEntry{
		{"FILL", int32(vk.PolygonModeFill)},
		{"LINE", int32(vk.PolygonModeLine)},
		{"POINT", int32(vk.PolygonModePoint)},
	}},
	{"VK_CULL_MODE_", []enumEntry{
		{"NONE", int32(vk.CullModeNone)},
		{"FRONT_BIT", int32(vk.CullModeFrontBit)},
		{"BACK_BIT", int32(vk.CullModeBackBit)},
		{"FRONT_AND_BACK", int32(vk.CullModeFrontAndBack)},
	}},
	{"VK_FRONT_FACE_", []enumEntry{
		{"COUNTER_CLOCKWISE", int32(vk.FrontFaceCounterClockwise)},
		{"CLOCKWISE", int32(vk.FrontFaceClockwise)},
	}},
	{"VK_COMPARE_OP_", []enumEntry{
		{"NEVER", int32(vk.CompareOpNever)},
		{"LESS", int32(vk.CompareOpLess)},
		{"EQUAL", int32(vk.CompareOpEqual)},
		{"LESS_OR_EQUAL", int32(vk.CompareOpLessOrEqual)},
		{"GREATER", int32(vk.CompareOpGreater)},
		{"NOT_EQUAL", int32(vk.CompareOpNotEqual)},
		{"GREATER_OR_EQUAL", int32(vk.CompareOpGreaterOrEqual)},
		{"ALWAYS", int32(vk.CompareOpAlways)},
	}},
	{"VK_STENCIL_OP_", []enumEntry{
		{"KEEP", int32(vk.StencilOpKeep)},
		{"ZERO", int32(vk.StencilOpZero)},
		{"REPLACE", int32(vk.StencilOpReplace)},
		{"INCREMENT_AND_CLAMP", int32(vk.StencilOpIncrementAndClamp)},
		{"DECREMENT_AND_CLAMP", int32(vk.StencilOpDecrementAndClamp)},
		{"INVERT", int32(vk.StencilOpInvert)},
		{"INCREMENT_AND_WRAP", int32(vk.StencilOpIncrementAndWrap)},
		{"DECREMENT_AND_WRAP", int32(vk.StencilOpDecrementAndWrap)},
	}},
	{"VK_BLEND_FACTOR_", []enumEntry{
		{"ZERO", int32(vk.BlendFactorZero)},
		{"ONE", int32(vk.BlendFactorOne)},
		{"SRC_COLOR", int32(vk.BlendFactorSrcColor)},
		{"ONE_MINUS_SRC_COLOR", int32(vk.BlendFactorOneMinusSrcColor)},
		{"DST_COLOR", int32(vk.BlendFactorDstColor)},
		{"ONE_MINUS_DST_COLOR", int32(vk.BlendFactorOneMinusDstColor)},
		{"SRC_ALPHA", int32(vk.BlendFactorSrcAlpha)},
		{"ONE_MINUS_SRC_ALPHA", int32(vk.BlendFactorOneMinusSrcAlpha)},
		{"DST_ALPHA", int32(vk.BlendFactorDstAlpha)},
		{"ONE_MINUS_DST_ALPHA", int32(vk.BlendFactorOneMinusDstAlpha)},
		{"CONSTANT_COLOR", int32(vk.BlendFactorConstantColor)},
		{"ONE_MINUS_CONSTANT_COLOR", int32(vk.BlendFactorOneMinusConstantColor)},
		{"CONSTANT_ALPHA", int32(vk.BlendFactorConstantAlpha)},
		{"ONE_MINUS_CONSTANT_ALPHA", int32(vk.BlendFactorOneMinusConstantAlpha)},
		{"SRC_ALPHA_SATURATE", int32(vk.BlendFactorSrcAlphaSaturate)},
		{"SRC1_COLOR", int32(vk.BlendFactorSrc1Color)},
		{"ONE_MINUS_SRC1_COLOR", int32(vk.BlendFactorOneMinusSrc1Color)},
		{"SRC1_ALPHA", int32(vk.BlendFactorSrc1Alpha)},
		{"ONE_MINUS_SRC1_ALPHA", int32(vk.BlendFactorOneMinusSrc1Alpha)},
	}},
	{"VK_BLEND_OP_", []enumEntry{
		{"ADD", int32(vk.BlendOpAdd)},
		{"SUBTRACT", int32(vk.BlendOpSubtract)},
		{"REVERSE_SUBTRACT", int32(vk.BlendOpReverseSubtract)},
		{"MIN", int32(vk.BlendOpMin)},
		{"MAX", int32(vk.BlendOpMax)},
	}},
	{"VK_LOGIC_OP_", []enumEntry{
		{"CLEAR", int32(vk.LogicOpClear)},
		{"AND", int32(vk.LogicOpAnd)},
		{"AND_REVERSE", int32(vk.LogicOpAndReverse)},
		{"COPY", int32(vk.LogicOpCopy)},
		{"AND_INVERTED", int32(vk.LogicOpAndInverted)},
		{"NO_OP", int32(vk.LogicOpNoOp)},
		{"XOR", int32(vk.LogicOpXor)},
		{"OR", int32(vk.LogicOpOr)},
		{"NOR", int32(vk.LogicOpNor)},
		{"EQUIVALENT", int32(vk.LogicOpEquivalent)},
		{"INVERT", int32(vk.LogicOpInvert)},
		{"OR_REVERSE", int32(vk.LogicOpOrReverse)},
		{"COPY_INVERTED", int32(vk.LogicOpCopyInverted)},
		{"OR_INVERTED", int32(vk.LogicOpOrInverted)},
		{"NAND", int32(vk.LogicOpNand)},
		{"SET", int32(vk.LogicOpSet)},
	}},
	{"VK_COLOR_COMPONENT_", []enumEntry{
		{"R_BIT", int32(vk.ColorComponentRBit)},
		{"G_BIT", int32(vk.ColorComponentGBit)},
		{"B_BIT", int32(vk.ColorComponentBBit)},
		{"A_BIT", int32(vk.ColorComponentABit)},
	}},
}

var enumTable = buildEnumTable()

func buildEnumTable() []enumEntry {
	seen := make(map[string]int32)
	ambiguous := make(map[string]bool)
	add := func(name string, value int32) {
		if prev, ok := seen[name]; ok {
			if prev != value {
				ambiguous[name] = true
			}
			return
		}
		seen[name] = value
	}
	for _, g := range enumGroups {
		for _, e := range g.entries {
			add(g.prefix+e.name, e.value)
			add(e.name, e.value)
		}
	}
	table := make([]enumEntry, 0, len(seen))
	for name, value := range seen {
		if !ambiguous[name] {
			table = append(table, enumEntry{name, value})
		}
	}
	sort.Slice(table, func(i, j int) bool { return table[i].name < table[j].name })
	return table
}

// LookupEnum resolves an enum identifier by binary search over the sorted
// name table.
func LookupEnum(name string) (int32, bool) {
	lo, hi := 0, len(enumTable)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case enumTable[mid].name == name:
			return enumTable[mid].value, true
		case enumTable[mid].name < name:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// glTopologyNames maps the GL_* spellings accepted by draw arrays onto the
// Vulkan topology values.
var glTopologyNames = map[string]int32{
	"GL_POINTS":                   int32(vk.PrimitiveTopologyPointList),
	"GL_LINES":                    int32(vk.PrimitiveTopologyLineList),
	"GL_LINE_STRIP":               int32(vk.PrimitiveTopologyLineStrip),
	"GL_TRIANGLES":                int32(vk.PrimitiveTopologyTriangleList),
	"GL_TRIANGLE_STRIP":           int32(vk.PrimitiveTopologyTriangleStrip),
	"GL_TRIANGLE_FAN":             int32(vk.PrimitiveTopologyTriangleFan),
	"GL_LINES_ADJACENCY":          int32(vk.PrimitiveTopologyLineListWithAdjacency),
	"GL_LINE_STRIP_ADJACENCY":     int32(vk.PrimitiveTopologyLineStripWithAdjacency),
	"GL_TRIANGLES_ADJACENCY":      int32(vk.PrimitiveTopologyTriangleListWithAdjacency),
	"GL_TRIANGLE_STRIP_ADJACENCY": int32(vk.PrimitiveTopologyTriangleStripWithAdjacency),
	"GL_PATCHES":                  int32(vk.PrimitiveTopologyPatchList),
}

// ParseTopology accepts a GL_* name, a Vulkan suffix such as TRIANGLE_LIST,
// or the full VK_PRIMITIVE_TOPOLOGY_* spelling.
func ParseTopology(name string) (vk.PrimitiveTopology, bool) {
	if v, ok := glTopologyNames[name]; ok {
		return vk.PrimitiveTopology(v), true
	}
	full := name
	if !strings.HasPrefix(name, "VK_PRIMITIVE_TOPOLOGY_") {
		full = "VK_PRIMITIVE_TOPOLOGY_" + name
	}
	if v, ok := LookupEnum(full); ok {
		return vk.PrimitiveTopology(v), true
	}
	return 0, false
}
