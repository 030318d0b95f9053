package script

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
)

func TestLookupFormat(t *testing.T) {
	tests := []struct {
		name     string
		vkFormat vk.Format
		size     int
	}{
		{"R8G8B8A8_UNORM", vk.FormatR8g8b8a8Unorm, 4},
		{"B8G8R8A8_UNORM", vk.FormatB8g8r8a8Unorm, 4},
		{"R32G32B32_SFLOAT", vk.FormatR32g32b32Sfloat, 12},
		{"R16G16_SINT", vk.FormatR16g16Sint, 4},
		{"R64_SFLOAT", vk.FormatR64Sfloat, 8},
		{"A2R10G10B10_UNORM_PACK32", vk.FormatA2r10g10b10UnormPack32, 4},
		{"R5G6B5_UNORM_PACK16", vk.FormatR5g6b5UnormPack16, 2},
		{"D24_UNORM_S8_UINT", vk.FormatD24UnormS8Uint, 4},
	}
	for _, tt := range tests {
		f, err := LookupFormat(tt.name)
		if err != nil {
			t.Errorf("LookupFormat(%q): %v", tt.name, err)
			continue
		}
		if f.VkFormat != tt.vkFormat {
			t.Errorf("%s format = %d, want %d", tt.name, f.VkFormat, tt.vkFormat)
		}
		if f.Size() != tt.size {
			t.Errorf("%s size = %d, want %d", tt.name, f.Size(), tt.size)
		}
	}
}

func TestLookupFormatPrefix(t *testing.T) {
	a, err := LookupFormat("VK_FORMAT_R8G8B8A8_UNORM")
	if err != nil {
		t.Fatalf("LookupFormat: %v", err)
	}
	b, _ := LookupFormat("R8G8B8A8_UNORM")
	if a != b {
		t.Error("prefixed and bare names resolve differently")
	}
}

func TestLookupFormatUnknown(t *testing.T) {
	_, err := LookupFormat("R7G7B7_UNORM")
	if !errors.Is(err, core.ErrUnknownFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestFormatComponents(t *testing.T) {
	f, err := LookupFormat("A2B10G10R10_UNORM_PACK32")
	if err != nil {
		t.Fatalf("LookupFormat: %v", err)
	}
	if f.PackedBits != 32 {
		t.Errorf("PackedBits = %d, want 32", f.PackedBits)
	}
	wantChannels := []byte{'A', 'B', 'G', 'R'}
	wantBits := []int{2, 10, 10, 10}
	if len(f.Components) != 4 {
		t.Fatalf("components = %d, want 4", len(f.Components))
	}
	for i, c := range f.Components {
		if c.Channel != wantChannels[i] || c.Bits != wantBits[i] || c.Mode != ModeUnorm {
			t.Errorf("component %d = %+v", i, c)
		}
	}
}

func TestDepthStencilAspects(t *testing.T) {
	tests := []struct {
		name    string
		depth   bool
		stencil bool
	}{
		{"D16_UNORM", true, false},
		{"S8_UINT", false, true},
		{"D24_UNORM_S8_UINT", true, true},
		{"X8_D24_UNORM_PACK32", true, false},
	}
	for _, tt := range tests {
		f, err := LookupFormat(tt.name)
		if err != nil {
			t.Fatalf("LookupFormat(%q): %v", tt.name, err)
		}
		depth, stencil := f.DepthStencilAspects()
		if depth != tt.depth || stencil != tt.stencil {
			t.Errorf("%s aspects = %v,%v want %v,%v", tt.name, depth, stencil, tt.depth, tt.stencil)
		}
	}
}

func TestEncodeVertexDatumFloat(t *testing.T) {
	f, _ := LookupFormat("R32G32_SFLOAT")
	out, rest, err := f.EncodeVertexDatum(nil, strings.Fields("1.0 2.0 next"))
	if err != nil {
		t.Fatalf("EncodeVertexDatum: %v", err)
	}
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0x40}
	if !bytes.Equal(out, want) {
		t.Errorf("out = %x, want %x", out, want)
	}
	if len(rest) != 1 {
		t.Errorf("rest = %v", rest)
	}
}

func TestEncodeVertexDatumInt(t *testing.T) {
	f, _ := LookupFormat("R8G8B8A8_UNORM")
	out, _, err := f.EncodeVertexDatum(nil, strings.Fields("255 0 128 1"))
	if err != nil {
		t.Fatalf("EncodeVertexDatum: %v", err)
	}
	want := []byte{255, 0, 128, 1}
	if !bytes.Equal(out, want) {
		t.Errorf("out = %x, want %x", out, want)
	}
}

func TestEncodeVertexDatumPacked(t *testing.T) {
	f, _ := LookupFormat("A2R10G10B10_UNORM_PACK32")
	// A=3, R=1023, G=0, B=0 packs from the top bit down.
	out, _, err := f.EncodeVertexDatum(nil, strings.Fields("3 1023 0 0"))
	if err != nil {
		t.Fatalf("EncodeVertexDatum: %v", err)
	}
	want := uint32(3)<<30 | uint32(1023)<<20
	got := uint32(out[0]) | uint32(out[1])<<8 | uint32(out[2])<<16 | uint32(out[3])<<24
	if got != want {
		t.Errorf("packed word = %#x, want %#x", got, want)
	}
}

func TestEncodeVertexDatumHalf(t *testing.T) {
	f, _ := LookupFormat("R16G16_SFLOAT")
	out, _, err := f.EncodeVertexDatum(nil, strings.Fields("1.0 -2.0"))
	if err != nil {
		t.Fatalf("EncodeVertexDatum: %v", err)
	}
	want := []byte{0x00, 0x3c, 0x00, 0xc0}
	if !bytes.Equal(out, want) {
		t.Errorf("out = %x, want %x", out, want)
	}
}
