package script

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/parse"
)

// BaseType is the scalar component type of a box value.
type BaseType int

const (
	BaseInt BaseType = iota
	BaseUint
	BaseInt8
	BaseInt16
	BaseInt64
	BaseUint8
	BaseUint16
	BaseUint64
	BaseFloat
	BaseDouble
)

func (b BaseType) Size() int {
	switch b {
	case BaseInt8, BaseUint8:
		return 1
	case BaseInt16, BaseUint16:
		return 2
	case BaseInt64, BaseUint64, BaseDouble:
		return 8
	default:
		return 4
	}
}

// BoxType is a GLSL scalar, vector or matrix type: a base type with a column
// and row count, each 1 to 4.
type BoxType struct {
	Base BaseType
	Cols int
	Rows int
}

// BoxInfo describes the memory layout of a BoxType.
type BoxInfo struct {
	Base          BaseType
	Cols          int
	Rows          int
	BaseAlignment int
	MatrixStride  int
	Size          int
}

// vecAlignment returns the std140 base alignment of a vector of n components.
func vecAlignment(base BaseType, n int) int {
	s := base.Size()
	switch n {
	case 1:
		return s
	case 2:
		return 2 * s
	default:
		return 4 * s
	}
}

// Info returns the layout of t. The column stride of a matrix equals the base
// alignment of a vector of Rows elements.
func (t BoxType) Info() BoxInfo {
	info := BoxInfo{
		Base:          t.Base,
		Cols:          t.Cols,
		Rows:          t.Rows,
		BaseAlignment: vecAlignment(t.Base, t.Rows),
		MatrixStride:  vecAlignment(t.Base, t.Rows),
	}
	if t.Cols == 1 {
		info.Size = t.Rows * t.Base.Size()
	} else {
		info.Size = t.Cols * info.MatrixStride
	}
	return info
}

var boxScalarNames = map[string]BaseType{
	"int":      BaseInt,
	"uint":     BaseUint,
	"int8_t":   BaseInt8,
	"int16_t":  BaseInt16,
	"int64_t":  BaseInt64,
	"uint8_t":  BaseUint8,
	"uint16_t": BaseUint16,
	"uint64_t": BaseUint64,
	"float":    BaseFloat,
	"double":   BaseDouble,
}

var boxVecPrefixes = map[string]BaseType{
	"vec":    BaseFloat,
	"dvec":   BaseDouble,
	"ivec":   BaseInt,
	"uvec":   BaseUint,
	"i8vec":  BaseInt8,
	"i16vec": BaseInt16,
	"i64vec": BaseInt64,
	"u8vec":  BaseUint8,
	"u16vec": BaseUint16,
	"u64vec": BaseUint64,
}

// ParseBoxType parses a GLSL type name such as float, ivec3, mat3x2 or dmat4.
func ParseBoxType(name string) (BoxType, error) {
	if base, ok := boxScalarNames[name]; ok {
		return BoxType{Base: base, Cols: 1, Rows: 1}, nil
	}
	for prefix, base := range boxVecPrefixes {
		if rest, ok := strings.CutPrefix(name, prefix); ok && len(rest) == 1 {
			if n := int(rest[0] - '0'); n >= 2 && n <= 4 {
				return BoxType{Base: base, Cols: 1, Rows: n}, nil
			}
		}
	}
	base := BaseFloat
	rest := name
	if r, ok := strings.CutPrefix(name, "dmat"); ok {
		base = BaseDouble
		rest = r
	} else if r, ok := strings.CutPrefix(name, "mat"); ok {
		rest = r
	} else {
		return BoxType{}, fmt.Errorf("%w: unknown type %q", core.ErrInvalidValue, name)
	}
	switch len(rest) {
	case 1:
		if n := int(rest[0] - '0'); n >= 2 && n <= 4 {
			return BoxType{Base: base, Cols: n, Rows: n}, nil
		}
	case 3:
		if rest[1] == 'x' {
			c, r := int(rest[0]-'0'), int(rest[2]-'0')
			if c >= 2 && c <= 4 && r >= 2 && r <= 4 {
				return BoxType{Base: base, Cols: c, Rows: r}, nil
			}
		}
	}
	return BoxType{}, fmt.Errorf("%w: unknown type %q", core.ErrInvalidValue, name)
}

func writeScalar(buf []byte, base BaseType, tok string) error {
	switch base {
	case BaseInt8, BaseInt16, BaseInt, BaseInt64:
		v, err := parse.ParseInt(tok, base.Size()*8)
		if err != nil {
			return err
		}
		putUint(buf, base.Size(), uint64(v))
	case BaseUint8, BaseUint16, BaseUint, BaseUint64:
		v, err := parse.ParseUint(tok, base.Size()*8)
		if err != nil {
			return err
		}
		putUint(buf, base.Size(), v)
	case BaseFloat:
		v, err := parse.ParseFloat(tok)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	case BaseDouble:
		v, err := parse.ParseDouble(tok)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	}
	return nil
}

func putUint(buf []byte, size int, v uint64) {
	switch size {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	}
}

func getUint(buf []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	default:
		return binary.LittleEndian.Uint64(buf)
	}
}

// ParseValue reads Cols*Rows whitespace-separated scalars in column-major
// order from toks, writing each column at its matrix stride. It returns the
// encoded value and the unconsumed tokens.
func ParseValue(toks []string, t BoxType) ([]byte, []string, error) {
	info := t.Info()
	need := t.Cols * t.Rows
	if len(toks) < need {
		return nil, toks, fmt.Errorf("%w: expected %d values", core.ErrInvalidValue, need)
	}
	out := make([]byte, info.Size)
	base := t.Base.Size()
	for col := 0; col < t.Cols; col++ {
		for row := 0; row < t.Rows; row++ {
			off := col*info.MatrixStride + row*base
			if err := writeScalar(out[off:off+base], t.Base, toks[col*t.Rows+row]); err != nil {
				return nil, toks, err
			}
		}
	}
	return out, toks[need:], nil
}

// ParseBufferSubdata parses values of type t until the tokens run out,
// aligning each value to the type's base alignment.
func ParseBufferSubdata(toks []string, t BoxType) ([]byte, error) {
	info := t.Info()
	var out []byte
	for len(toks) > 0 {
		if pad := (info.BaseAlignment - len(out)%info.BaseAlignment) % info.BaseAlignment; pad > 0 {
			out = append(out, make([]byte, pad)...)
		}
		value, rest, err := ParseValue(toks, t)
		if err != nil {
			return nil, err
		}
		out = append(out, value...)
		toks = rest
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: expected at least one value", core.ErrInvalidValue)
	}
	return out, nil
}

// ParsePackedValues parses values of type t tightly packed (alignment 1), the
// layout used by SSBO probe references.
func ParsePackedValues(toks []string, t BoxType) ([]byte, int, error) {
	var out []byte
	count := 0
	for len(toks) > 0 {
		value, rest, err := ParseValue(toks, t)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, value...)
		toks = rest
		count++
	}
	if count == 0 {
		return nil, 0, fmt.Errorf("%w: expected at least one value", core.ErrInvalidValue)
	}
	return out, count, nil
}

// CompareOp is a scalar comparison used by SSBO probes.
type CompareOp int

const (
	CompareEqual CompareOp = iota
	CompareFuzzyEqual
	CompareNotEqual
	CompareLess
	CompareGreaterEqual
	CompareGreater
	CompareLessEqual
)

// compareOpNames is ordered so that two-character operators are matched
// before their one-character prefixes.
var compareOpNames = []struct {
	name string
	op   CompareOp
}{
	{"==", CompareEqual},
	{"~=", CompareFuzzyEqual},
	{"!=", CompareNotEqual},
	{">=", CompareGreaterEqual},
	{"<=", CompareLessEqual},
	{"<", CompareLess},
	{">", CompareGreater},
}

// ParseCompareOp parses a comparison operator token.
func ParseCompareOp(tok string) (CompareOp, error) {
	for _, c := range compareOpNames {
		if tok == c.name {
			return c.op, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown comparison %q", core.ErrInvalidValue, tok)
}

func (op CompareOp) String() string {
	for _, c := range compareOpNames {
		if c.op == op {
			return c.name
		}
	}
	return "?"
}

func scalarAsDouble(buf []byte, base BaseType) float64 {
	switch base {
	case BaseFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	case BaseDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf))
	case BaseInt8:
		return float64(int8(buf[0]))
	case BaseInt16:
		return float64(int16(binary.LittleEndian.Uint16(buf)))
	case BaseInt:
		return float64(int32(binary.LittleEndian.Uint32(buf)))
	case BaseInt64:
		return float64(int64(binary.LittleEndian.Uint64(buf)))
	default:
		return float64(getUint(buf, base.Size()))
	}
}

// CompareValue compares an observed value against a reference value of the
// same type, component by component. Fuzzy comparison uses the tolerance; the
// other operators are exact.
func CompareValue(op CompareOp, observed, reference []byte, t BoxType, tol *Tolerance) bool {
	info := t.Info()
	base := t.Base.Size()
	component := 0
	for col := 0; col < t.Cols; col++ {
		for row := 0; row < t.Rows; row++ {
			off := col*info.MatrixStride + row*base
			a := scalarAsDouble(observed[off:off+base], t.Base)
			b := scalarAsDouble(reference[off:off+base], t.Base)
			if !compareScalar(op, a, b, tol, component) {
				return false
			}
			component++
		}
	}
	return true
}

func compareScalar(op CompareOp, a, b float64, tol *Tolerance, component int) bool {
	switch op {
	case CompareEqual:
		return a == b
	case CompareFuzzyEqual:
		return tol.WithinTolerance(a, b, component)
	case CompareNotEqual:
		return a != b
	case CompareLess:
		return a < b
	case CompareGreaterEqual:
		return a >= b
	case CompareGreater:
		return a > b
	case CompareLessEqual:
		return a <= b
	}
	return false
}

// Tolerance is the per-channel deviation allowed by fuzzy probes. Values
// beyond the component count of the probed type reuse component index
// modulo 4.
type Tolerance struct {
	Values    [4]float64
	IsPercent bool
}

// DefaultTolerance matches the probe default of 0.01 absolute per channel.
func DefaultTolerance() Tolerance {
	return Tolerance{Values: [4]float64{0.01, 0.01, 0.01, 0.01}}
}

// WithinTolerance reports whether observed is close enough to expected on
// the given component.
func (t *Tolerance) WithinTolerance(observed, expected float64, component int) bool {
	limit := t.Values[component%4]
	if t.IsPercent {
		limit = limit / 100.0 * math.Abs(expected)
	}
	return math.Abs(observed-expected) <= limit
}
