package pipeline

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestNewKeyBaseline(t *testing.T) {
	key := NewKey()
	var st StateTree
	key.Apply(&st)

	if st.InputAssembly.Topology != vk.PrimitiveTopologyTriangleStrip {
		t.Errorf("topology = %d, want triangle strip", st.InputAssembly.Topology)
	}
	if st.Rasterization.PolygonMode != vk.PolygonModeFill {
		t.Errorf("polygon mode = %d, want fill", st.Rasterization.PolygonMode)
	}
	if st.Rasterization.CullMode != vk.CullModeFlags(vk.CullModeNone) {
		t.Errorf("cull mode = %d, want none", st.Rasterization.CullMode)
	}
	if st.Rasterization.FrontFace != vk.FrontFaceCounterClockwise {
		t.Errorf("front face = %d, want counter clockwise", st.Rasterization.FrontFace)
	}
	if st.Rasterization.LineWidth != 1.0 {
		t.Errorf("line width = %v, want 1.0", st.Rasterization.LineWidth)
	}
	if st.BlendAttachment.BlendEnable != vk.Bool32(0) {
		t.Error("blend should be disabled")
	}
	wantMask := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	if st.BlendAttachment.ColorWriteMask != wantMask {
		t.Errorf("color write mask = %#x, want %#x", st.BlendAttachment.ColorWriteMask, wantMask)
	}
	if st.DepthStencil.DepthTestEnable != vk.Bool32(0) || st.DepthStencil.StencilTestEnable != vk.Bool32(0) {
		t.Error("depth and stencil tests should be disabled")
	}
	if st.DepthStencil.DepthCompareOp != vk.CompareOpLess {
		t.Errorf("depth compare = %d, want less", st.DepthStencil.DepthCompareOp)
	}
	if st.DepthStencil.Front.CompareOp != vk.CompareOpAlways || st.DepthStencil.Back.CompareOp != vk.CompareOpAlways {
		t.Error("stencil compare ops should default to always")
	}
	if st.DepthStencil.Front.CompareMask != 0xffffffff || st.DepthStencil.Front.WriteMask != 0xffffffff {
		t.Error("stencil masks should default to all ones")
	}
	if st.DepthStencil.Front.Reference != 0 {
		t.Error("stencil reference should default to 0")
	}
	if st.ColorBlend.AttachmentCount != 1 || len(st.ColorBlend.PAttachments) != 1 {
		t.Error("colour blend state should carry exactly one attachment")
	}
	if key.Entrypoint(StageVertex) != "main" || key.Entrypoint(StageCompute) != "main" {
		t.Error("entrypoints should default to main")
	}
}

func TestKeyEqualReflexive(t *testing.T) {
	key := NewKey()
	if !key.Equal(key) {
		t.Error("a key must equal itself")
	}
	clone := key.Clone()
	if !key.Equal(clone) || !clone.Equal(key) {
		t.Error("a clone must equal its source")
	}
}

func TestKeyEqualAfterChanges(t *testing.T) {
	base := NewKey()

	topology := base.Clone()
	if err := topology.SetProperty("topology", "TRIANGLE_LIST"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if base.Equal(topology) {
		t.Error("keys with different topology should differ")
	}

	entry := base.Clone()
	entry.SetEntrypoint(StageFragment, "other")
	if base.Equal(entry) {
		t.Error("keys with different entrypoints should differ")
	}

	computeKey := base.Clone()
	computeKey.Type = TypeCompute
	if base.Equal(computeKey) {
		t.Error("keys with different types should differ")
	}

	// Equal keys produce identical state trees.
	same := base.Clone()
	var a, b StateTree
	base.Apply(&a)
	same.Apply(&b)
	if a.InputAssembly != b.InputAssembly || a.Tessellation != b.Tessellation ||
		a.Rasterization != b.Rasterization || a.DepthStencil != b.DepthStencil ||
		a.BlendAttachment != b.BlendAttachment {
		t.Error("equal keys must serialise identically")
	}
}

func TestKeyCloneIsDeep(t *testing.T) {
	base := NewKey()
	clone := base.Clone()
	if err := clone.SetProperty("lineWidth", "2.5"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	var st StateTree
	base.Apply(&st)
	if st.Rasterization.LineWidth != 1.0 {
		t.Error("mutating a clone changed the source key")
	}
}

func TestSetPropertyBool(t *testing.T) {
	key := NewKey()
	tests := []struct {
		text    string
		want    vk.Bool32
		wantErr bool
	}{
		{"true", 1, false},
		{"false", 0, false},
		{"1", 1, false},
		{"0", 0, false},
		{"yes", 0, true},
	}
	for _, tt := range tests {
		err := key.SetProperty("depthTestEnable", tt.text)
		if (err != nil) != tt.wantErr {
			t.Errorf("SetProperty(depthTestEnable, %q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		var st StateTree
		key.Apply(&st)
		if st.DepthStencil.DepthTestEnable != tt.want {
			t.Errorf("depthTestEnable after %q = %d, want %d", tt.text, st.DepthStencil.DepthTestEnable, tt.want)
		}
	}
}

func TestSetPropertyIntOr(t *testing.T) {
	key := NewKey()
	if err := key.SetProperty("colorWriteMask", "R_BIT|G_BIT"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	var st StateTree
	key.Apply(&st)
	want := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit)
	if st.BlendAttachment.ColorWriteMask != want {
		t.Errorf("mask = %#x, want %#x", st.BlendAttachment.ColorWriteMask, want)
	}

	if err := key.SetProperty("colorWriteMask", "1|2|8"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	key.Apply(&st)
	if st.BlendAttachment.ColorWriteMask != vk.ColorComponentFlags(11) {
		t.Errorf("mask = %#x, want 0xb", st.BlendAttachment.ColorWriteMask)
	}
}

func TestSetPropertyEnum(t *testing.T) {
	key := NewKey()
	tests := []struct {
		name  string
		value string
	}{
		{"topology", "PATCH_LIST"},
		{"topology", "VK_PRIMITIVE_TOPOLOGY_POINT_LIST"},
		{"cullMode", "FRONT_AND_BACK"},
		{"frontFace", "CLOCKWISE"},
		{"depthCompareOp", "GREATER_OR_EQUAL"},
		{"front.failOp", "INCREMENT_AND_WRAP"},
		{"back.passOp", "REPLACE"},
		{"srcColorBlendFactor", "ONE_MINUS_SRC_ALPHA"},
		{"colorBlendOp", "ADD"},
		{"logicOp", "VK_LOGIC_OP_INVERT"},
	}
	for _, tt := range tests {
		if err := key.SetProperty(tt.name, tt.value); err != nil {
			t.Errorf("SetProperty(%s, %s): %v", tt.name, tt.value, err)
		}
	}
	if err := key.SetProperty("topology", "NOT_A_TOPOLOGY"); err == nil {
		t.Error("unknown enum value should fail")
	}
	if err := key.SetProperty("noSuchProperty", "1"); err == nil {
		t.Error("unknown property should fail")
	}
}

func TestSetPropertyFloatHex(t *testing.T) {
	key := NewKey()
	if err := key.SetProperty("lineWidth", "0x40000000"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	var st StateTree
	key.Apply(&st)
	if st.Rasterization.LineWidth != 2.0 {
		t.Errorf("line width = %v, want exactly 2.0", st.Rasterization.LineWidth)
	}
}

func TestHasProperty(t *testing.T) {
	for _, name := range []string{"topology", "front.compareMask", "back.reference", "maxDepthBounds", "patchControlPoints"} {
		if !HasProperty(name) {
			t.Errorf("HasProperty(%q) = false", name)
		}
	}
	// Case sensitive.
	if HasProperty("Topology") {
		t.Error("property lookup should be case sensitive")
	}
}
