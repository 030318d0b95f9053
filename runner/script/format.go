package script

import (
	"fmt"
	"strconv"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/parse"
)

// FormatMode is the numeric interpretation of a format component.
type FormatMode int

const (
	ModeUnorm FormatMode = iota
	ModeSnorm
	ModeUscaled
	ModeSscaled
	ModeUint
	ModeSint
	ModeUfloat
	ModeSfloat
	ModeSrgb
)

var formatModeNames = map[string]FormatMode{
	"UNORM":   ModeUnorm,
	"SNORM":   ModeSnorm,
	"USCALED": ModeUscaled,
	"SSCALED": ModeSscaled,
	"UINT":    ModeUint,
	"SINT":    ModeSint,
	"UFLOAT":  ModeUfloat,
	"SFLOAT":  ModeSfloat,
	"SRGB":    ModeSrgb,
}

// FormatComponent is one channel of a format.
type FormatComponent struct {
	Channel byte
	Bits    int
	Mode    FormatMode
}

// Format describes a Vulkan image or vertex format by name.
type Format struct {
	Name       string
	VkFormat   vk.Format
	Components []FormatComponent
	// PackedBits is non-zero for PACK8/16/32 formats, whose components
	// share one little-endian word.
	PackedBits int
}

// Size returns the byte size of one texel or vertex attribute.
func (f *Format) Size() int {
	if f.PackedBits != 0 {
		return f.PackedBits / 8
	}
	total := 0
	for _, c := range f.Components {
		total += c.Bits
	}
	return total / 8
}

// DepthStencilAspects reports which aspects a depth/stencil format carries.
func (f *Format) DepthStencilAspects() (depth, stencil bool) {
	for _, c := range f.Components {
		switch c.Channel {
		case 'D':
			depth = true
		case 'S':
			stencil = true
		}
	}
	return depth, stencil
}

// formatNames maps script format names to Vulkan formats. Component layout
// is derived from the name, so the table itself stays flat.
var formatNames = map[string]vk.Format{
	"R4G4_UNORM_PACK8":         vk.FormatR4g4UnormPack8,
	"R4G4B4A4_UNORM_PACK16":    vk.FormatR4g4b4a4UnormPack16,
	"B4G4R4A4_UNORM_PACK16":    vk.FormatB4g4r4a4UnormPack16,
	"R5G6B5_UNORM_PACK16":      vk.FormatR5g6b5UnormPack16,
	"B5G6R5_UNORM_PACK16":      vk.FormatB5g6r5UnormPack16,
	"R5G5B5A1_UNORM_PACK16":    vk.FormatR5g5b5a1UnormPack16,
	"B5G5R5A1_UNORM_PACK16":    vk.FormatB5g5r5a1UnormPack16,
	"A1R5G5B5_UNORM_PACK16":    vk.FormatA1r5g5b5UnormPack16,
	"R8_UNORM":                 vk.FormatR8Unorm,
	"R8_SNORM":                 vk.FormatR8Snorm,
	"R8_USCALED":               vk.FormatR8Uscaled,
	"R8_SSCALED":               vk.FormatR8Sscaled,
	"R8_UINT":                  vk.FormatR8Uint,
	"R8_SINT":                  vk.FormatR8Sint,
	"R8_SRGB":                  vk.FormatR8Srgb,
	"R8G8_UNORM":               vk.FormatR8g8Unorm,
	"R8G8_SNORM":               vk.FormatR8g8Snorm,
	"R8G8_USCALED":             vk.FormatR8g8Uscaled,
	"R8G8_SSCALED":             vk.FormatR8g8Sscaled,
	"R8G8_UINT":                vk.FormatR8g8Uint,
	"R8G8_SINT":                vk.FormatR8g8Sint,
	"R8G8_SRGB":                vk.FormatR8g8Srgb,
	"R8G8B8_UNORM":             vk.FormatR8g8b8Unorm,
	"R8G8B8_SNORM":             vk.FormatR8g8b8Snorm,
	"R8G8B8_USCALED":           vk.FormatR8g8b8Uscaled,
	"R8G8B8_SSCALED":           vk.FormatR8g8b8Sscaled,
	"R8G8B8_UINT":              vk.FormatR8g8b8Uint,
	"R8G8B8_SINT":              vk.FormatR8g8b8Sint,
	"R8G8B8_SRGB":              vk.FormatR8g8b8Srgb,
	"B8G8R8_UNORM":             vk.FormatB8g8r8Unorm,
	"B8G8R8_SNORM":             vk.FormatB8g8r8Snorm,
	"B8G8R8_USCALED":           vk.FormatB8g8r8Uscaled,
	"B8G8R8_SSCALED":           vk.FormatB8g8r8Sscaled,
	"B8G8R8_UINT":              vk.FormatB8g8r8Uint,
	"B8G8R8_SINT":              vk.FormatB8g8r8Sint,
	"B8G8R8_SRGB":              vk.FormatB8g8r8Srgb,
	"R8G8B8A8_UNORM":           vk.FormatR8g8b8a8Unorm,
	"R8G8B8A8_SNORM":           vk.FormatR8g8b8a8Snorm,
	"R8G8B8A8_USCALED":         vk.FormatR8g8b8a8Uscaled,
	"R8G8B8A8_SSCALED":         vk.FormatR8g8b8a8Sscaled,
	"R8G8B8A8_UINT":            vk.FormatR8g8b8a8Uint,
	"R8G8B8A8_SINT":            vk.FormatR8g8b8a8Sint,
	"R8G8B8A8_SRGB":            vk.FormatR8g8b8a8Srgb,
	"B8G8R8A8_UNORM":           vk.FormatB8g8r8a8Unorm,
	"B8G8R8A8_SNORM":           vk.FormatB8g8r8a8Snorm,
	"B8G8R8A8_USCALED":         vk.FormatB8g8r8a8Uscaled,
	"B8G8R8A8_SSCALED":         vk.FormatB8g8r8a8Sscaled,
	"B8G8R8A8_UINT":            vk.FormatB8g8r8a8Uint,
	"B8G8R8A8_SINT":            vk.FormatB8g8r8a8Sint,
	"B8G8R8A8_SRGB":            vk.FormatB8g8r8a8Srgb,
	"A8B8G8R8_UNORM_PACK32":    vk.FormatA8b8g8r8UnormPack32,
	"A8B8G8R8_SNORM_PACK32":    vk.FormatA8b8g8r8SnormPack32,
	"A8B8G8R8_USCALED_PACK32":  vk.FormatA8b8g8r8UscaledPack32,
	"A8B8G8R8_SSCALED_PACK32":  vk.FormatA8b8g8r8SscaledPack32,
	"A8B8G8R8_UINT_PACK32":     vk.FormatA8b8g8r8UintPack32,
	"A8B8G8R8_SINT_PACK32":     vk.FormatA8b8g8r8SintPack32,
	"A8B8G8R8_SRGB_PACK32":     vk.FormatA8b8g8r8SrgbPack32,
	"A2R10G10B10_UNORM_PACK32": vk.FormatA2r10g10b10UnormPack32,
	"A2R10G10B10_UINT_PACK32":  vk.FormatA2r10g10b10UintPack32,
	"A2B10G10R10_UNORM_PACK32": vk.FormatA2b10g10r10UnormPack32,
	"A2B10G10R10_UINT_PACK32":  vk.FormatA2b10g10r10UintPack32,
	"R16_UNORM":                vk.FormatR16Unorm,
	"R16_SNORM":                vk.FormatR16Snorm,
	"R16_USCALED":              vk.FormatR16Uscaled,
	"R16_SSCALED":              vk.FormatR16Sscaled,
	"R16_UINT":                 vk.FormatR16Uint,
	"R16_SINT":                 vk.FormatR16Sint,
	"R16_SFLOAT":               vk.FormatR16Sfloat,
	"R16G16_UNORM":             vk.FormatR16g16Unorm,
	"R16G16_SNORM":             vk.FormatR16g16Snorm,
	"R16G16_USCALED":           vk.FormatR16g16Uscaled,
	"R16G16_SSCALED":           vk.FormatR16g16Sscaled,
	"R16G16_UINT":              vk.FormatR16g16Uint,
	"R16G16_SINT":              vk.FormatR16g16Sint,
	"R16G16_SFLOAT":            vk.FormatR16g16Sfloat,
	"R16G16B16_UNORM":          vk.FormatR16g16b16Unorm,
	"R16G16B16_SNORM":          vk.FormatR16g16b16Snorm,
	"R16G16B16_USCALED":        vk.FormatR16g16b16Uscaled,
	"R16G16B16_SSCALED":        vk.FormatR16g16b16Sscaled,
	"R16G16B16_UINT":           vk.FormatR16g16b16Uint,
	"R16G16B16_SINT":           vk.FormatR16g16b16Sint,
	"R16G16B16_SFLOAT":         vk.FormatR16g16b16Sfloat,
	"R16G16B16A16_UNORM":       vk.FormatR16g16b16a16Unorm,
	"R16G16B16A16_SNORM":       vk.FormatR16g16b16a16Snorm,
	"R16G16B16A16_USCALED":     vk.FormatR16g16b16a16Uscaled,
	"R16G16B16A16_SSCALED":     vk.FormatR16g16b16a16Sscaled,
	"R16G16B16A16_UINT":        vk.FormatR16g16b16a16Uint,
	"R16G16B16A16_SINT":        vk.FormatR16g16b16a16Sint,
	"R16G16B16A16_SFLOAT":      vk.FormatR16g16b16a16Sfloat,
	"R32_UINT":                 vk.FormatR32Uint,
	"R32_SINT":                 vk.FormatR32Sint,
	"R32_SFLOAT":               vk.FormatR32Sfloat,
	"R32G32_UINT":              vk.FormatR32g32Uint,
	"R32G32_SINT":              vk.FormatR32g32Sint,
	"R32G32_SFLOAT":            vk.FormatR32g32Sfloat,
	"R32G32B32_UINT":           vk.FormatR32g32b32Uint,
	"R32G32B32_SINT":           vk.FormatR32g32b32Sint,
	"R32G32B32_SFLOAT":         vk.FormatR32g32b32Sfloat,
	"R32G32B32A32_UINT":        vk.FormatR32g32b32a32Uint,
	"R32G32B32A32_SINT":        vk.FormatR32g32b32a32Sint,
	"R32G32B32A32_SFLOAT":      vk.FormatR32g32b32a32Sfloat,
	"R64_UINT":                 vk.FormatR64Uint,
	"R64_SINT":                 vk.FormatR64Sint,
	"R64_SFLOAT":               vk.FormatR64Sfloat,
	"R64G64_UINT":              vk.FormatR64g64Uint,
	"R64G64_SINT":              vk.FormatR64g64Sint,
	"R64G64_SFLOAT":            vk.FormatR64g64Sfloat,
	"R64G64B64_UINT":           vk.FormatR64g64b64Uint,
	"R64G64B64_SINT":           vk.FormatR64g64b64Sint,
	"R64G64B64_SFLOAT":         vk.FormatR64g64b64Sfloat,
	"R64G64B64A64_UINT":        vk.FormatR64g64b64a64Uint,
	"R64G64B64A64_SINT":        vk.FormatR64g64b64a64Sint,
	"R64G64B64A64_SFLOAT":      vk.FormatR64g64b64a64Sfloat,
	"B10G11R11_UFLOAT_PACK32":  vk.FormatB10g11r11UfloatPack32,
	"D16_UNORM":                vk.FormatD16Unorm,
	"X8_D24_UNORM_PACK32":      vk.FormatX8D24UnormPack32,
	"D32_SFLOAT":               vk.FormatD32Sfloat,
	"S8_UINT":                  vk.FormatS8Uint,
	"D16_UNORM_S8_UINT":        vk.FormatD16UnormS8Uint,
	"D24_UNORM_S8_UINT":        vk.FormatD24UnormS8Uint,
	"D32_SFLOAT_S8_UINT":       vk.FormatD32SfloatS8Uint,
}

var formatTable = buildFormatTable()

func buildFormatTable() map[string]*Format {
	table := make(map[string]*Format, len(formatNames))
	for name, vkf := range formatNames {
		f, err := parseFormatName(name)
		if err != nil {
			panic(err)
		}
		f.VkFormat = vkf
		table[name] = f
	}
	return table
}

// parseFormatName derives the component layout from a Vulkan format name
// such as R32G32_SFLOAT or A2R10G10B10_UNORM_PACK32.
func parseFormatName(name string) (*Format, error) {
	f := &Format{Name: name}
	var pending []FormatComponent
	for _, part := range strings.Split(name, "_") {
		if mode, ok := formatModeNames[part]; ok {
			for i := range pending {
				pending[i].Mode = mode
			}
			f.Components = append(f.Components, pending...)
			pending = pending[:0]
			continue
		}
		if bits, ok := strings.CutPrefix(part, "PACK"); ok {
			n, err := strconv.Atoi(bits)
			if err != nil {
				return nil, fmt.Errorf("bad pack suffix in format %s", name)
			}
			f.PackedBits = n
			continue
		}
		// A run of channel-letter/bit-count pairs, e.g. R10G10B10A2.
		for i := 0; i < len(part); {
			ch := part[i]
			i++
			j := i
			for j < len(part) && part[j] >= '0' && part[j] <= '9' {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("bad component in format %s", name)
			}
			bits, _ := strconv.Atoi(part[i:j])
			if ch != 'X' {
				pending = append(pending, FormatComponent{Channel: ch, Bits: bits})
			}
			i = j
		}
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("format %s has components without a mode", name)
	}
	return f, nil
}

// LookupFormat finds a format by its script name. The VK_FORMAT_ prefix is
// optional.
func LookupFormat(name string) (*Format, error) {
	name = strings.TrimPrefix(name, "VK_FORMAT_")
	if f, ok := formatTable[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrUnknownFormat, name)
}

// encodeVertexComponent parses one scalar for a format component and appends
// its little-endian encoding.
func encodeVertexComponent(out []byte, c FormatComponent, tok string) ([]byte, error) {
	switch c.Mode {
	case ModeSfloat:
		switch c.Bits {
		case 16:
			v, err := parse.ParseHalf(tok)
			if err != nil {
				return nil, err
			}
			return append(out, byte(v), byte(v>>8)), nil
		case 32:
			buf := make([]byte, 4)
			if err := writeScalar(buf, BaseFloat, tok); err != nil {
				return nil, err
			}
			return append(out, buf...), nil
		case 64:
			buf := make([]byte, 8)
			if err := writeScalar(buf, BaseDouble, tok); err != nil {
				return nil, err
			}
			return append(out, buf...), nil
		}
	case ModeSnorm, ModeSscaled, ModeSint:
		v, err := parse.ParseInt(tok, c.Bits)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, c.Bits/8)
		putUint(buf, c.Bits/8, uint64(v))
		return append(out, buf...), nil
	default:
		v, err := parse.ParseUint(tok, c.Bits)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, c.Bits/8)
		putUint(buf, c.Bits/8, v)
		return append(out, buf...), nil
	}
	return nil, fmt.Errorf("%w: cannot encode %d-bit component", core.ErrInvalidValue, c.Bits)
}

// EncodeVertexDatum parses one value per component of f from toks and
// appends the encoded datum. Packed formats build a single little-endian
// word, components packed from the most significant bit down.
func (f *Format) EncodeVertexDatum(out []byte, toks []string) ([]byte, []string, error) {
	if len(toks) < len(f.Components) {
		return nil, toks, fmt.Errorf("%w: expected %d components for %s", core.ErrInvalidValue, len(f.Components), f.Name)
	}
	if f.PackedBits != 0 {
		var word, shift uint64
		shift = uint64(f.PackedBits)
		for i, c := range f.Components {
			v, err := parse.ParseUint(toks[i], c.Bits)
			if err != nil {
				return nil, toks, err
			}
			shift -= uint64(c.Bits)
			word |= v << shift
		}
		buf := make([]byte, f.PackedBits/8)
		putUint(buf, f.PackedBits/8, word)
		return append(out, buf...), toks[len(f.Components):], nil
	}
	var err error
	for i, c := range f.Components {
		out, err = encodeVertexComponent(out, c, toks[i])
		if err != nil {
			return nil, toks, err
		}
	}
	return out, toks[len(f.Components):], nil
}
