package vulkan

import (
	"encoding/binary"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/parse"
	"github.com/spaghettifunk/vkrun/runner/script"
)

// readbackColor copies the colour attachment into the framebuffer's linear
// buffer and waits for the copy.
func (e *Executor) readbackColor() error {
	if err := e.flush(); err != nil {
		return err
	}
	if err := e.ensureRecording(); err != nil {
		return err
	}
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  uint32(e.fb.Width),
			Height: uint32(e.fb.Height),
			Depth:  1,
		},
	}
	vk.CmdCopyImageToBuffer(e.cmd.Handle, e.fb.ColorImage.Handle, vk.ImageLayoutGeneral,
		e.fb.Linear.Handle, 1, []vk.BufferImageCopy{region})
	hostBarrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessHostReadBit),
	}
	vk.CmdPipelineBarrier(e.cmd.Handle,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageHostBit),
		0, 1, []vk.MemoryBarrier{hostBarrier}, 0, nil, 0, nil)
	return e.flush()
}

// decodeComponent turns one format component into a float in its natural
// range.
func decodeComponent(c script.FormatComponent, raw uint64) float64 {
	switch c.Mode {
	case script.ModeUnorm, script.ModeSrgb:
		return float64(raw) / float64((uint64(1)<<c.Bits)-1)
	case script.ModeSnorm:
		signed := signExtend(raw, c.Bits)
		max := float64((uint64(1) << (c.Bits - 1)) - 1)
		return core.Clamp(float64(signed)/max, -1, 1)
	case script.ModeSint, script.ModeSscaled:
		return float64(signExtend(raw, c.Bits))
	case script.ModeSfloat:
		switch c.Bits {
		case 16:
			return float64(parse.HalfToFloat(uint16(raw)))
		case 32:
			return float64(math.Float32frombits(uint32(raw)))
		default:
			return math.Float64frombits(raw)
		}
	default:
		return float64(raw)
	}
}

func signExtend(raw uint64, bits int) int64 {
	shift := 64 - bits
	return int64(raw<<shift) >> shift
}

// decodeTexel reads one texel into RGBA order. Missing channels keep 0
// (alpha keeps 1).
func decodeTexel(f *script.Format, data []byte) [4]float64 {
	rgba := [4]float64{0, 0, 0, 1}
	assign := func(c script.FormatComponent, raw uint64) {
		v := decodeComponent(c, raw)
		switch c.Channel {
		case 'R':
			rgba[0] = v
		case 'G':
			rgba[1] = v
		case 'B':
			rgba[2] = v
		case 'A':
			rgba[3] = v
		}
	}
	if f.PackedBits != 0 {
		var word uint64
		switch f.PackedBits {
		case 8:
			word = uint64(data[0])
		case 16:
			word = uint64(binary.LittleEndian.Uint16(data))
		default:
			word = uint64(binary.LittleEndian.Uint32(data))
		}
		shift := f.PackedBits
		for _, c := range f.Components {
			shift -= c.Bits
			assign(c, (word>>shift)&((uint64(1)<<c.Bits)-1))
		}
		return rgba
	}
	offset := 0
	for _, c := range f.Components {
		size := c.Bits / 8
		var raw uint64
		switch size {
		case 1:
			raw = uint64(data[offset])
		case 2:
			raw = uint64(binary.LittleEndian.Uint16(data[offset:]))
		case 4:
			raw = uint64(binary.LittleEndian.Uint32(data[offset:]))
		default:
			raw = binary.LittleEndian.Uint64(data[offset:])
		}
		assign(c, raw)
		offset += size
	}
	return rgba
}

func (e *Executor) runProbeRect(c *script.Command) error {
	if err := e.readbackColor(); err != nil {
		return err
	}
	probe := c.ProbeRect
	texelSize := e.fb.ColorFormat.Size()
	for y := probe.Y; y < probe.Y+probe.H; y++ {
		for x := probe.X; x < probe.X+probe.W; x++ {
			if x < 0 || y < 0 || x >= e.fb.Width || y >= e.fb.Height {
				core.LogError("%s:%d: probe outside the framebuffer at %d,%d", e.scr.Filename, c.Line, x, y)
				e.result = e.result.Merge(core.ResultFail)
				return nil
			}
			offset := (y*e.fb.Width + x) * texelSize
			observed := decodeTexel(e.fb.ColorFormat, e.fb.Linear.Mapped[offset:offset+texelSize])
			for i := 0; i < probe.NumComponents; i++ {
				if !probe.Tolerance.WithinTolerance(observed[i], float64(probe.Color[i]), i) {
					core.LogError("%s:%d: probe at %d,%d: expected %v, observed %v",
						e.scr.Filename, c.Line, x, y, probe.Color, observed)
					e.result = e.result.Merge(core.ResultFail)
					return nil
				}
			}
		}
	}
	return nil
}

func (e *Executor) runProbeSSBO(c *script.Command) error {
	if err := e.flush(); err != nil {
		return err
	}
	probe := c.ProbeSSBO
	var buf *VulkanBuffer
	for i, spec := range e.scr.Buffers {
		if spec.DescSet == probe.DescSet && spec.Binding == probe.Binding {
			buf = e.buffers[i]
			break
		}
	}
	if buf == nil {
		return &core.ParseError{File: e.scr.Filename, Line: c.Line, Msg: "probe of undeclared buffer"}
	}
	info := probe.Type.Info()
	count := len(probe.Data) / info.Size
	if probe.Offset+len(probe.Data) > len(buf.Mapped) {
		core.LogError("%s:%d: ssbo probe past the end of the buffer", e.scr.Filename, c.Line)
		e.result = e.result.Merge(core.ResultFail)
		return nil
	}
	for i := 0; i < count; i++ {
		observed := buf.Mapped[probe.Offset+i*info.Size : probe.Offset+(i+1)*info.Size]
		reference := probe.Data[i*info.Size : (i+1)*info.Size]
		if !script.CompareValue(probe.Op, observed, reference, probe.Type, &probe.Tolerance) {
			core.LogError("%s:%d: ssbo probe failed: value %d %s reference does not hold",
				e.scr.Filename, c.Line, i, probe.Op)
			e.result = e.result.Merge(core.ResultFail)
			return nil
		}
	}
	return nil
}
