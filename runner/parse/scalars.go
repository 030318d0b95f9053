package parse

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spaghettifunk/vkrun/runner/core"
)

// ParseInt parses a decimal signed integer of the given bit width (8, 16, 32
// or 64). Overflow and trailing garbage are errors.
func ParseInt(tok string, bitSize int) (int64, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, fmt.Errorf("%w: empty integer", core.ErrInvalidValue)
	}
	v, err := strconv.ParseInt(tok, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid int%d", core.ErrInvalidValue, tok, bitSize)
	}
	return v, nil
}

// ParseUint parses a decimal unsigned integer of the given bit width.
func ParseUint(tok string, bitSize int) (uint64, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, fmt.Errorf("%w: empty integer", core.ErrInvalidValue)
	}
	v, err := strconv.ParseUint(tok, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid uint%d", core.ErrInvalidValue, tok, bitSize)
	}
	return v, nil
}

// ParseFloat parses a float32. A token starting with 0x is read as the exact
// IEEE-754 bit pattern instead of a decimal value.
func ParseFloat(tok string) (float32, error) {
	tok = strings.TrimSpace(tok)
	if hasHexPrefix(tok) {
		bits, err := strconv.ParseUint(tok[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a valid hex float bit pattern", core.ErrInvalidValue, tok)
		}
		return math.Float32frombits(uint32(bits)), nil
	}
	v, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid float", core.ErrInvalidValue, tok)
	}
	return float32(v), nil
}

// ParseDouble parses a float64, with the same 0x bit-pattern override as
// ParseFloat.
func ParseDouble(tok string) (float64, error) {
	tok = strings.TrimSpace(tok)
	if hasHexPrefix(tok) {
		bits, err := strconv.ParseUint(tok[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a valid hex double bit pattern", core.ErrInvalidValue, tok)
		}
		return math.Float64frombits(bits), nil
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid double", core.ErrInvalidValue, tok)
	}
	return v, nil
}

// ParseHalf parses a 16-bit float. Hex tokens are the raw bit pattern, capped
// at 0xffff; decimal tokens are converted from float32.
func ParseHalf(tok string) (uint16, error) {
	tok = strings.TrimSpace(tok)
	if hasHexPrefix(tok) {
		bits, err := strconv.ParseUint(tok[2:], 16, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a valid hex half bit pattern", core.ErrInvalidValue, tok)
		}
		return uint16(bits), nil
	}
	v, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid half float", core.ErrInvalidValue, tok)
	}
	return Float32ToHalf(float32(v)), nil
}

func hasHexPrefix(tok string) bool {
	return strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X")
}

// Float32ToHalf converts a float32 to its IEEE-754 binary16 representation
// with round-to-nearest-even, clamping overflow to infinity.
func Float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp >= 0x1f:
		// Overflow or already infinity/NaN.
		if int32(bits>>23&0xff) == 0xff && mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp <= 0:
		// Subnormal half or underflow to zero.
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		if mant>>(shift-1)&1 != 0 {
			half++
		}
		return sign | half
	default:
		half := sign | uint16(exp)<<10 | uint16(mant>>13)
		// Round to nearest, ties to even.
		if mant&0x1000 != 0 && (mant&0xfff != 0 || half&1 != 0) {
			half++
		}
		return half
	}
}

// HalfToFloat expands an IEEE-754 binary16 bit pattern to float32.
func HalfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h >> 10 & 0x1f)
	mant := uint32(h & 0x3ff)
	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Normalise the subnormal.
		e := int32(1 - 15 + 127)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | uint32(e)<<23 | mant<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp-15+127)<<23 | mant<<13)
	}
}

// Base64Decoder is a streaming base-64 decoder. Feed it input with AddBytes
// and call Finish to validate the final state and take the output.
type Base64Decoder struct {
	nPadding int
	nChars   int
	value    uint32
	out      []byte
}

func base64Digit(c byte) (uint32, bool) {
	switch {
	case c >= 'A' && c <= 'Z':
		return uint32(c - 'A'), true
	case c >= 'a' && c <= 'z':
		return uint32(c-'a') + 26, true
	case c >= '0' && c <= '9':
		return uint32(c-'0') + 52, true
	case c == '+':
		return 62, true
	case c == '/':
		return 63, true
	}
	return 0, false
}

// AddBytes feeds a chunk of base-64 text to the decoder. Whitespace is
// skipped; anything else outside the alphabet is an error.
func (d *Base64Decoder) AddBytes(data []byte) error {
	for _, c := range data {
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			continue
		case c == '=':
			d.nPadding++
			if d.nPadding > 2 {
				return fmt.Errorf("%w: too much padding in base64 data", core.ErrInvalidValue)
			}
		default:
			if d.nPadding > 0 {
				return fmt.Errorf("%w: base64 data after padding", core.ErrInvalidValue)
			}
			bits, ok := base64Digit(c)
			if !ok {
				return fmt.Errorf("%w: invalid base64 character %q", core.ErrInvalidValue, c)
			}
			d.value = d.value<<6 | bits
			d.nChars++
			if d.nChars == 4 {
				d.out = append(d.out, byte(d.value>>16), byte(d.value>>8), byte(d.value))
				d.value = 0
				d.nChars = 0
			}
		}
	}
	return nil
}

// Finish validates the residual state and returns the decoded bytes.
func (d *Base64Decoder) Finish() ([]byte, error) {
	switch d.nChars {
	case 0:
	case 3:
		if d.value&0x3 != 0 {
			return nil, fmt.Errorf("%w: invalid base64 termination", core.ErrInvalidValue)
		}
		d.out = append(d.out, byte(d.value>>10), byte(d.value>>2))
	case 2:
		if d.value&0xf != 0 {
			return nil, fmt.Errorf("%w: invalid base64 termination", core.ErrInvalidValue)
		}
		d.out = append(d.out, byte(d.value>>4))
	default:
		return nil, fmt.Errorf("%w: invalid base64 termination", core.ErrInvalidValue)
	}
	return d.out, nil
}

// DecodeBase64 decodes a complete base-64 string in one call.
func DecodeBase64(s string) ([]byte, error) {
	var d Base64Decoder
	if err := d.AddBytes([]byte(s)); err != nil {
		return nil, err
	}
	return d.Finish()
}

// ParseSpirvHex parses the body of a binary shader section: whitespace
// separated hex tokens, each one 32-bit word appended little-endian. A '#'
// starts a comment running to the end of its line.
func ParseSpirvHex(body string) ([]byte, error) {
	var out []byte
	for _, line := range strings.Split(body, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, tok := range strings.Fields(line) {
			t := strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
			word, err := strconv.ParseUint(t, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a valid SPIR-V word", core.ErrInvalidValue, tok)
			}
			out = binary.LittleEndian.AppendUint32(out, uint32(word))
		}
	}
	return out, nil
}
