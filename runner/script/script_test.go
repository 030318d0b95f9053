package script

import (
	"bytes"
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"golang.org/x/image/math/f32"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/pipeline"
)

func parseScript(t *testing.T, source string) *Script {
	t.Helper()
	scr, err := ParseString("test.shader_test", source, nil)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return scr
}

func TestMinimalScript(t *testing.T) {
	scr := parseScript(t, "[vertex shader passthrough]\n[test]\nclear\n")

	if len(scr.Stages[pipeline.StageVertex]) != 1 {
		t.Fatalf("vertex stage entries = %d, want 1", len(scr.Stages[pipeline.StageVertex]))
	}
	entry := scr.Stages[pipeline.StageVertex][0]
	if entry.Source != SourceSpirvBinary {
		t.Errorf("source = %d, want binary", entry.Source)
	}
	if !bytes.Equal(entry.Code, PassthroughVertexShader()) {
		t.Error("passthrough code mismatch")
	}
	if len(scr.PipelineKeys) != 0 {
		t.Errorf("pipeline keys = %d, want 0", len(scr.PipelineKeys))
	}
	if len(scr.Commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(scr.Commands))
	}
	c := scr.Commands[0]
	if c.Kind != CommandClear {
		t.Fatalf("kind = %d, want clear", c.Kind)
	}
	if c.Clear.Color != (f32.Vec4{0, 0, 0, 0}) {
		t.Errorf("clear color = %v", c.Clear.Color)
	}
	if c.Clear.Depth != 1.0 || c.Clear.Stencil != 0 {
		t.Errorf("clear depth/stencil = %v/%d", c.Clear.Depth, c.Clear.Stencil)
	}
}

func TestWindowFormatDefaults(t *testing.T) {
	scr := parseScript(t, "[test]\nclear\n")
	wf := scr.WindowFormat
	if wf.Width != 250 || wf.Height != 250 {
		t.Errorf("size = %dx%d, want 250x250", wf.Width, wf.Height)
	}
	if wf.ColorFormat.VkFormat != vk.FormatB8g8r8a8Unorm {
		t.Errorf("color format = %d, want BGRA8 unorm", wf.ColorFormat.VkFormat)
	}
	if wf.DepthStencilFormat != nil {
		t.Error("depth/stencil should default to unset")
	}
}

func TestHexFloatUniform(t *testing.T) {
	scr := parseScript(t, "[test]\nuniform float 0 0x3f800000\n")
	if len(scr.Commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(scr.Commands))
	}
	c := scr.Commands[0]
	if c.Kind != CommandSetPushConstant {
		t.Fatalf("kind = %d, want push constant", c.Kind)
	}
	if c.PushConstant.Offset != 0 {
		t.Errorf("offset = %d", c.PushConstant.Offset)
	}
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	if !bytes.Equal(c.PushConstant.Data, want) {
		t.Errorf("data = %x, want %x", c.PushConstant.Data, want)
	}
	if scr.PushConstantSize() != 4 {
		t.Errorf("push constant size = %d, want 4", scr.PushConstantSize())
	}
}

func TestProbeRelative(t *testing.T) {
	scr := parseScript(t, `
[require]
fbsize 200 100

[test]
relative probe rgba (0.5, 0.25) (1, 0, 0, 1)
`)
	if len(scr.Commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(scr.Commands))
	}
	probe := scr.Commands[0].ProbeRect
	if probe == nil {
		t.Fatal("not a probe rect command")
	}
	if probe.X != 100 || probe.Y != 25 || probe.W != 1 || probe.H != 1 {
		t.Errorf("probe rect = %d,%d %dx%d, want 100,25 1x1", probe.X, probe.Y, probe.W, probe.H)
	}
	if probe.Color != (f32.Vec4{1, 0, 0, 1}) {
		t.Errorf("color = %v", probe.Color)
	}
	if probe.NumComponents != 4 {
		t.Errorf("components = %d, want 4", probe.NumComponents)
	}
}

func TestProbeAll(t *testing.T) {
	scr := parseScript(t, "[test]\nprobe all rgb (0, 1, 0)\n")
	probe := scr.Commands[0].ProbeRect
	if probe.X != 0 || probe.Y != 0 || probe.W != 250 || probe.H != 250 {
		t.Errorf("probe rect = %d,%d %dx%d, want full framebuffer", probe.X, probe.Y, probe.W, probe.H)
	}
	if probe.NumComponents != 3 {
		t.Errorf("components = %d, want 3", probe.NumComponents)
	}
	if _, err := ParseString("t", "[test]\nrelative probe all rgb (0, 1, 0)\n", nil); err == nil {
		t.Error("relative probe all should fail")
	}
}

func TestProbeRectCommand(t *testing.T) {
	scr := parseScript(t, "[test]\nprobe rect rgb (5, 6, 10, 20) (0, 0, 1)\n")
	probe := scr.Commands[0].ProbeRect
	if probe.X != 5 || probe.Y != 6 || probe.W != 10 || probe.H != 20 {
		t.Errorf("probe rect = %d,%d %dx%d", probe.X, probe.Y, probe.W, probe.H)
	}
}

func TestDeduplicatedKeys(t *testing.T) {
	scr := parseScript(t, "[test]\ndraw rect 0 0 1 1\ndraw rect 0 0 1 1\n")
	if len(scr.Commands) != 2 {
		t.Fatalf("commands = %d, want 2", len(scr.Commands))
	}
	first := scr.Commands[0].DrawRect
	second := scr.Commands[1].DrawRect
	if first.Key != second.Key {
		t.Errorf("key indices differ: %d vs %d", first.Key, second.Key)
	}
	if len(scr.PipelineKeys) != 1 {
		t.Errorf("pipeline keys = %d, want 1", len(scr.PipelineKeys))
	}
}

func TestDistinctKeys(t *testing.T) {
	scr := parseScript(t, `
[test]
draw rect 0 0 1 1
topology TRIANGLE_LIST
draw arrays GL_TRIANGLES 0 3
`)
	if len(scr.PipelineKeys) != 2 {
		t.Fatalf("pipeline keys = %d, want 2", len(scr.PipelineKeys))
	}
	if scr.PipelineKeys[0].Source != pipeline.SourceRectangle {
		t.Error("first key should be a rectangle source")
	}
	if scr.PipelineKeys[1].Source != pipeline.SourceVertexData {
		t.Error("second key should be a vertex data source")
	}
}

func TestBufferTypeMismatch(t *testing.T) {
	_, err := ParseString("t", `
[test]
uniform ubo 0:0 float 0 1.0
ssbo 0:0 subdata float 0 2.0
`, nil)
	if !errors.Is(err, core.ErrBufferBindingTypeMismatch) {
		t.Fatalf("err = %v, want ErrBufferBindingTypeMismatch", err)
	}
	var pe *core.ParseError
	if !errors.As(err, &pe) {
		t.Fatal("error should carry script position")
	}
	if pe.Line != 4 {
		t.Errorf("error line = %d, want 4", pe.Line)
	}
}

func TestToleranceMixed(t *testing.T) {
	if _, err := ParseString("t", "[test]\ntolerance 1% 1% 1% 0.5\nprobe all rgba (0,0,0,0)\n", nil); err == nil {
		t.Fatal("mixed tolerance should fail")
	}
	scr := parseScript(t, "[test]\ntolerance 1% 1% 1% 0.5%\nprobe all rgba (0, 0, 0, 0)\n")
	tol := scr.Commands[0].ProbeRect.Tolerance
	if !tol.IsPercent {
		t.Error("tolerance should be percent")
	}
	if tol.Values != ([4]float64{1, 1, 1, 0.5}) {
		t.Errorf("values = %v", tol.Values)
	}
}

func TestToleranceSingleValue(t *testing.T) {
	scr := parseScript(t, "[test]\ntolerance 2\nprobe all rgba (0, 0, 0, 0)\n")
	tol := scr.Commands[0].ProbeRect.Tolerance
	if tol.IsPercent {
		t.Error("tolerance should be absolute")
	}
	if tol.Values != ([4]float64{2, 2, 2, 2}) {
		t.Errorf("values = %v", tol.Values)
	}
}

func TestRequireSection(t *testing.T) {
	scr := parseScript(t, `
[require]
shaderFloat64
geometryShader
framebuffer R32G32B32A32_SFLOAT
depthstencil D24_UNORM_S8_UINT
fbsize 64 32
vulkan 1.1
VK_KHR_storage_buffer_storage_class

[test]
clear
`)
	idx, _ := LookupFeature("shaderFloat64")
	if !scr.RequiredFeatures.Has(idx) {
		t.Error("shaderFloat64 should be required")
	}
	idx, _ = LookupFeature("geometryShader")
	if !scr.RequiredFeatures.Has(idx) {
		t.Error("geometryShader should be required")
	}
	idx, _ = LookupFeature("robustBufferAccess")
	if scr.RequiredFeatures.Has(idx) {
		t.Error("robustBufferAccess should not be required")
	}
	if scr.WindowFormat.ColorFormat.VkFormat != vk.FormatR32g32b32a32Sfloat {
		t.Error("framebuffer format not applied")
	}
	if scr.WindowFormat.DepthStencilFormat == nil ||
		scr.WindowFormat.DepthStencilFormat.VkFormat != vk.FormatD24UnormS8Uint {
		t.Error("depthstencil format not applied")
	}
	if scr.WindowFormat.Width != 64 || scr.WindowFormat.Height != 32 {
		t.Error("fbsize not applied")
	}
	if scr.VulkanVersion != ([2]int{1, 1}) {
		t.Errorf("vulkan version = %v", scr.VulkanVersion)
	}
	if len(scr.Extensions) != 1 || scr.Extensions[0] != "VK_KHR_storage_buffer_storage_class" {
		t.Errorf("extensions = %v", scr.Extensions)
	}
}

func TestRequireNotFirst(t *testing.T) {
	_, err := ParseString("t", "[test]\nclear\n[require]\nshaderFloat64\n", nil)
	if !errors.Is(err, core.ErrRequireNotFirst) {
		t.Errorf("err = %v, want ErrRequireNotFirst", err)
	}
	// A comment section before [require] is fine.
	if _, err := ParseString("t", "[comment]\nanything goes\n[require]\nshaderFloat64\n", nil); err != nil {
		t.Errorf("comment before require failed: %v", err)
	}
}

func TestDuplicateVertexData(t *testing.T) {
	_, err := ParseString("t", `
[vertex data]
0/R32G32_SFLOAT
0 0

[vertex data]
0/R32G32_SFLOAT
1 1
`, nil)
	if !errors.Is(err, core.ErrDuplicateVertexData) {
		t.Errorf("err = %v, want ErrDuplicateVertexData", err)
	}
}

func TestUnknownSection(t *testing.T) {
	_, err := ParseString("t", "[no such section]\n", nil)
	if !errors.Is(err, core.ErrUnknownSection) {
		t.Errorf("err = %v, want ErrUnknownSection", err)
	}
}

func TestVertexDataSection(t *testing.T) {
	scr := parseScript(t, `
[vertex data]
0/R32G32B32_SFLOAT 1/R8G8B8A8_UNORM
0.0 0.0 0.0  255 0 0 255
1.0 0.0 0.0  0 255 0 255
0.0 1.0 0.0  0 0 255 255
`)
	vbo := scr.VertexData
	if vbo == nil {
		t.Fatal("no vertex data")
	}
	if vbo.Stride != 16 {
		t.Errorf("stride = %d, want 16", vbo.Stride)
	}
	if vbo.NumVertices != 3 {
		t.Errorf("vertices = %d, want 3", vbo.NumVertices)
	}
	if len(vbo.Attribs) != 2 {
		t.Fatalf("attribs = %d, want 2", len(vbo.Attribs))
	}
	if vbo.Attribs[1].Location != 1 || vbo.Attribs[1].Offset != 12 {
		t.Errorf("attrib 1 = %+v", vbo.Attribs[1])
	}
	if len(vbo.Data) != 48 {
		t.Errorf("data = %d bytes, want 48", len(vbo.Data))
	}
}

func TestIndicesSection(t *testing.T) {
	scr := parseScript(t, "[indices]\n0 1 2\n2 1 3\n")
	want := []uint16{0, 1, 2, 2, 1, 3}
	if len(scr.Indices) != len(want) {
		t.Fatalf("indices = %v", scr.Indices)
	}
	for i, v := range want {
		if scr.Indices[i] != v {
			t.Errorf("index %d = %d, want %d", i, scr.Indices[i], v)
		}
	}
	if _, err := ParseString("t", "[indices]\n65536\n", nil); err == nil {
		t.Error("index over 65535 should fail")
	}
}

func TestShaderSections(t *testing.T) {
	scr := parseScript(t, `
[vertex shader]
void main() { }

[fragment shader]
layout(location = 0) out vec4 color;
void main() { color = vec4(1.0); }
`)
	if len(scr.Stages[pipeline.StageVertex]) != 1 {
		t.Fatal("missing vertex shader")
	}
	if len(scr.Stages[pipeline.StageFragment]) != 1 {
		t.Fatal("missing fragment shader")
	}
	frag := string(scr.Stages[pipeline.StageFragment][0].Code)
	if !bytes.Contains([]byte(frag), []byte("vec4(1.0)")) {
		t.Errorf("fragment body = %q", frag)
	}
}

func TestShaderSectionGLSLFragmentsAccumulate(t *testing.T) {
	scr := parseScript(t, `
[fragment shader]
void a() { }

[fragment shader]
void b() { }
`)
	if len(scr.Stages[pipeline.StageFragment]) != 2 {
		t.Errorf("fragments = %d, want 2", len(scr.Stages[pipeline.StageFragment]))
	}
}

func TestShaderSectionSpirvSoleEntry(t *testing.T) {
	_, err := ParseString("t", `
[vertex shader passthrough]

[vertex shader]
void main() { }
`, nil)
	if err == nil {
		t.Error("GLSL after SPIR-V in the same stage should fail")
	}
	_, err = ParseString("t", `
[fragment shader]
void main() { }

[fragment shader binary]
07230203
`, nil)
	if err == nil {
		t.Error("SPIR-V after GLSL in the same stage should fail")
	}
}

func TestShaderSectionBinary(t *testing.T) {
	scr := parseScript(t, "[compute shader binary]\n07230203 00010000\n")
	entries := scr.Stages[pipeline.StageCompute]
	if len(entries) != 1 || entries[0].Source != SourceSpirvBinary {
		t.Fatalf("entries = %+v", entries)
	}
	want := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}
	if !bytes.Equal(entries[0].Code, want) {
		t.Errorf("code = %x", entries[0].Code)
	}
}

func TestTessellationSections(t *testing.T) {
	scr := parseScript(t, `
[tessellation control shader]
void main() { }

[tessellation evaluation shader]
void main() { }
`)
	if len(scr.Stages[pipeline.StageTessCtrl]) != 1 || len(scr.Stages[pipeline.StageTessEval]) != 1 {
		t.Error("tessellation stages not parsed")
	}
}

func TestDrawRectOrtho(t *testing.T) {
	scr := parseScript(t, "[require]\nfbsize 100 100\n\n[test]\ndraw rect ortho 0 0 50 100\n")
	r := scr.Commands[0].DrawRect
	if r.X != -1 || r.Y != -1 || r.W != 1 || r.H != 2 {
		t.Errorf("rect = %v %v %v %v, want -1 -1 1 2", r.X, r.Y, r.W, r.H)
	}
}

func TestDrawRectPatch(t *testing.T) {
	scr := parseScript(t, "[test]\ndraw rect patch 0 0 1 1\n")
	key := scr.PipelineKeys[scr.Commands[0].DrawRect.Key]
	if key.Topology() != vk.PrimitiveTopologyPatchList {
		t.Errorf("topology = %d, want patch list", key.Topology())
	}
	if !key.UsesTessellation() {
		t.Error("patch draw should use tessellation")
	}
}

func TestDrawArraysInstanced(t *testing.T) {
	scr := parseScript(t, "[test]\ndraw arrays instanced indexed GL_TRIANGLES 0 6 4\n")
	d := scr.Commands[0].DrawArrays
	if d.Topology != vk.PrimitiveTopologyTriangleList {
		t.Errorf("topology = %d", d.Topology)
	}
	if !d.Indexed {
		t.Error("indexed flag lost")
	}
	if d.FirstVertex != 0 || d.VertexCount != 6 || d.InstanceCount != 4 {
		t.Errorf("draw = %+v", d)
	}
}

func TestComputeCommand(t *testing.T) {
	scr := parseScript(t, "[test]\ncompute 4 5 6\n")
	d := scr.Commands[0].Dispatch
	if d.X != 4 || d.Y != 5 || d.Z != 6 {
		t.Errorf("dispatch = %+v", d)
	}
	if scr.PipelineKeys[d.Key].Type != pipeline.TypeCompute {
		t.Error("key should be compute")
	}
}

func TestEntrypoints(t *testing.T) {
	scr := parseScript(t, `
[test]
vertex entrypoint vmain
fragment entrypoint fmain
draw rect 0 0 1 1
`)
	key := scr.PipelineKeys[scr.Commands[0].DrawRect.Key]
	if key.Entrypoint(pipeline.StageVertex) != "vmain" {
		t.Errorf("vertex entrypoint = %q", key.Entrypoint(pipeline.StageVertex))
	}
	if key.Entrypoint(pipeline.StageFragment) != "fmain" {
		t.Errorf("fragment entrypoint = %q", key.Entrypoint(pipeline.StageFragment))
	}
	if key.Entrypoint(pipeline.StageGeometry) != "main" {
		t.Errorf("geometry entrypoint = %q, want main", key.Entrypoint(pipeline.StageGeometry))
	}
}

func TestPatchParameterVertices(t *testing.T) {
	scr := parseScript(t, "[test]\npatch parameter vertices 3\ndraw arrays GL_PATCHES 0 3\n")
	key := scr.PipelineKeys[scr.Commands[0].DrawArrays.Key]
	var st pipeline.StateTree
	key.Apply(&st)
	if st.Tessellation.PatchControlPoints != 3 {
		t.Errorf("patch control points = %d, want 3", st.Tessellation.PatchControlPoints)
	}
}

func TestSSBOSizeAndSubdata(t *testing.T) {
	scr := parseScript(t, `
[test]
ssbo 0:1 1024
ssbo 0:1 subdata vec4 16 1 2 3 4
ssbo 2 64
`)
	if len(scr.Buffers) != 2 {
		t.Fatalf("buffers = %+v", scr.Buffers)
	}
	// Sorted by (set, binding).
	if scr.Buffers[0].Binding != 1 || scr.Buffers[1].Binding != 2 {
		t.Errorf("buffer order = %+v", scr.Buffers)
	}
	if scr.Buffers[0].Size != 1024 {
		t.Errorf("declared size should win: %d", scr.Buffers[0].Size)
	}
	if scr.Buffers[1].Size != 64 {
		t.Errorf("bare binding size = %d", scr.Buffers[1].Size)
	}
	if scr.Buffers[0].Type != BufferSSBO {
		t.Error("type should be ssbo")
	}
}

func TestSubdataGrowsBuffer(t *testing.T) {
	scr := parseScript(t, "[test]\nssbo 0:0 16\nssbo 0:0 subdata vec4 32 1 2 3 4\n")
	if scr.Buffers[0].Size != 48 {
		t.Errorf("size = %d, want 48", scr.Buffers[0].Size)
	}
}

func TestUniformUBO(t *testing.T) {
	scr := parseScript(t, "[test]\nuniform ubo 1:3 vec4 16 1 2 3 4\n")
	c := scr.Commands[0]
	if c.Kind != CommandSetBufferSubdata {
		t.Fatalf("kind = %d", c.Kind)
	}
	w := c.BufferSubdata
	if w.DescSet != 1 || w.Binding != 3 || w.Offset != 16 || len(w.Data) != 16 {
		t.Errorf("subdata = %+v", w)
	}
	if scr.Buffers[0].Type != BufferUBO || scr.Buffers[0].Size != 32 {
		t.Errorf("buffer = %+v", scr.Buffers[0])
	}
}

func TestBareBindingImpliesSetZero(t *testing.T) {
	scr := parseScript(t, "[test]\nuniform ubo 5 float 0 1.0\n")
	if scr.Buffers[0].DescSet != 0 || scr.Buffers[0].Binding != 5 {
		t.Errorf("buffer = %+v", scr.Buffers[0])
	}
}

func TestProbeSSBOCommand(t *testing.T) {
	scr := parseScript(t, "[test]\nprobe ssbo vec4 0:0 8 ~= 1 2 3 4\n")
	probe := scr.Commands[0].ProbeSSBO
	if probe == nil {
		t.Fatal("not a probe ssbo command")
	}
	if probe.Op != CompareFuzzyEqual {
		t.Errorf("op = %v", probe.Op)
	}
	if probe.Offset != 8 || len(probe.Data) != 16 {
		t.Errorf("probe = %+v", probe)
	}
	if scr.Buffers[0].Type != BufferSSBO {
		t.Error("probe ssbo should declare the buffer")
	}
}

func TestClearStateCapture(t *testing.T) {
	scr := parseScript(t, `
[test]
clear color 0.5 0.25 0.125 1.0
clear depth 0.5
clear stencil 7
clear
clear color 1 1 1 1
clear
`)
	if len(scr.Commands) != 2 {
		t.Fatalf("commands = %d, want 2", len(scr.Commands))
	}
	first := scr.Commands[0].Clear
	if first.Color != (f32.Vec4{0.5, 0.25, 0.125, 1.0}) || first.Depth != 0.5 || first.Stencil != 7 {
		t.Errorf("first clear = %+v", first)
	}
	second := scr.Commands[1].Clear
	if second.Color != (f32.Vec4{1, 1, 1, 1}) {
		t.Errorf("second clear = %+v", second)
	}
	if first.Color == second.Color {
		t.Error("clear commands must capture state at emit time")
	}
}

func TestPropertyLine(t *testing.T) {
	scr := parseScript(t, `
[test]
depthTestEnable true
front.compareOp LESS
draw rect 0 0 1 1
`)
	key := scr.PipelineKeys[scr.Commands[0].DrawRect.Key]
	var st pipeline.StateTree
	key.Apply(&st)
	if st.DepthStencil.DepthTestEnable != vk.Bool32(1) {
		t.Error("depthTestEnable not applied")
	}
	if st.DepthStencil.Front.CompareOp != vk.CompareOpLess {
		t.Error("front.compareOp not applied")
	}
}

func TestCommandLineNumbers(t *testing.T) {
	scr := parseScript(t, "[test]\n\n# comment\nclear\n")
	if scr.Commands[0].Line != 4 {
		t.Errorf("command line = %d, want 4", scr.Commands[0].Line)
	}
}

func TestLineContinuationInTest(t *testing.T) {
	scr := parseScript(t, "[test]\nuniform float 0 \\\n1.0\n")
	if len(scr.Commands) != 1 || scr.Commands[0].Kind != CommandSetPushConstant {
		t.Fatalf("commands = %+v", scr.Commands)
	}
	if scr.Commands[0].Line != 2 {
		t.Errorf("line = %d, want 2", scr.Commands[0].Line)
	}
}

func TestUnknownTestCommand(t *testing.T) {
	_, err := ParseString("t", "[test]\nfrobnicate 1 2 3\n", nil)
	if err == nil {
		t.Fatal("unknown command should fail")
	}
	var pe *core.ParseError
	if !errors.As(err, &pe) {
		t.Fatal("error should be a ParseError")
	}
	if pe.Line != 2 {
		t.Errorf("line = %d, want 2", pe.Line)
	}
}
