package script

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseBoxType(t *testing.T) {
	tests := []struct {
		name string
		want BoxType
	}{
		{"float", BoxType{BaseFloat, 1, 1}},
		{"double", BoxType{BaseDouble, 1, 1}},
		{"int", BoxType{BaseInt, 1, 1}},
		{"uint8_t", BoxType{BaseUint8, 1, 1}},
		{"int64_t", BoxType{BaseInt64, 1, 1}},
		{"vec2", BoxType{BaseFloat, 1, 2}},
		{"vec4", BoxType{BaseFloat, 1, 4}},
		{"ivec3", BoxType{BaseInt, 1, 3}},
		{"dvec2", BoxType{BaseDouble, 1, 2}},
		{"u16vec4", BoxType{BaseUint16, 1, 4}},
		{"mat2", BoxType{BaseFloat, 2, 2}},
		{"mat3x2", BoxType{BaseFloat, 3, 2}},
		{"mat2x4", BoxType{BaseFloat, 2, 4}},
		{"dmat4", BoxType{BaseDouble, 4, 4}},
	}
	for _, tt := range tests {
		got, err := ParseBoxType(tt.name)
		if err != nil {
			t.Errorf("ParseBoxType(%q): %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBoxType(%q) = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestParseBoxTypeInvalid(t *testing.T) {
	for _, name := range []string{"vek3", "vec5", "mat1", "mat2x5", "floaty", ""} {
		if _, err := ParseBoxType(name); err == nil {
			t.Errorf("ParseBoxType(%q) succeeded, want error", name)
		}
	}
}

func TestBoxInfoLayout(t *testing.T) {
	tests := []struct {
		name          string
		baseAlignment int
		matrixStride  int
		size          int
	}{
		{"float", 4, 4, 4},
		{"vec2", 8, 8, 8},
		{"vec3", 16, 16, 12},
		{"vec4", 16, 16, 16},
		{"double", 8, 8, 8},
		{"dvec2", 16, 16, 16},
		{"dvec3", 32, 32, 24},
		{"mat2", 8, 8, 16},
		{"mat3x2", 8, 8, 24},
		{"mat3", 16, 16, 48},
		{"mat2x4", 16, 16, 32},
		{"dmat2", 16, 16, 32},
		{"u8vec2", 2, 2, 2},
		{"i16vec3", 8, 8, 6},
	}
	for _, tt := range tests {
		boxType, err := ParseBoxType(tt.name)
		if err != nil {
			t.Fatalf("ParseBoxType(%q): %v", tt.name, err)
		}
		info := boxType.Info()
		if info.BaseAlignment != tt.baseAlignment {
			t.Errorf("%s base alignment = %d, want %d", tt.name, info.BaseAlignment, tt.baseAlignment)
		}
		if info.MatrixStride != tt.matrixStride {
			t.Errorf("%s matrix stride = %d, want %d", tt.name, info.MatrixStride, tt.matrixStride)
		}
		if info.Size != tt.size {
			t.Errorf("%s size = %d, want %d", tt.name, info.Size, tt.size)
		}
	}
}

func TestParseValueVec(t *testing.T) {
	boxType, _ := ParseBoxType("vec2")
	got, rest, err := ParseValue(strings.Fields("1.0 2.0 extra"), boxType)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0x40}
	if !bytes.Equal(got, want) {
		t.Errorf("value = %x, want %x", got, want)
	}
	if len(rest) != 1 || rest[0] != "extra" {
		t.Errorf("rest = %v", rest)
	}
}

func TestParseValueMatrixColumnMajor(t *testing.T) {
	// mat2x3: two columns of three floats, each column padded to the vec3
	// alignment of 16 bytes.
	boxType, _ := ParseBoxType("mat2x3")
	got, _, err := ParseValue(strings.Fields("1 2 3 4 5 6"), boxType)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if len(got) != 32 {
		t.Fatalf("size = %d, want 32", len(got))
	}
	// Column 0 at offset 0, column 1 at the 16-byte matrix stride.
	checks := []struct {
		offset int
		want   []byte
	}{
		{0, []byte{0x00, 0x00, 0x80, 0x3f}},  // 1.0
		{4, []byte{0x00, 0x00, 0x00, 0x40}},  // 2.0
		{8, []byte{0x00, 0x00, 0x40, 0x40}},  // 3.0
		{16, []byte{0x00, 0x00, 0x80, 0x40}}, // 4.0
		{20, []byte{0x00, 0x00, 0xa0, 0x40}}, // 5.0
		{24, []byte{0x00, 0x00, 0xc0, 0x40}}, // 6.0
	}
	for _, c := range checks {
		if !bytes.Equal(got[c.offset:c.offset+4], c.want) {
			t.Errorf("offset %d = %x, want %x", c.offset, got[c.offset:c.offset+4], c.want)
		}
	}
}

func TestParseBufferSubdataAlignment(t *testing.T) {
	// vec3 values are 12 bytes but align to 16.
	boxType, _ := ParseBoxType("vec3")
	got, err := ParseBufferSubdata(strings.Fields("1 0 0 0 1 0"), boxType)
	if err != nil {
		t.Fatalf("ParseBufferSubdata: %v", err)
	}
	if len(got) != 28 {
		t.Errorf("size = %d, want 28 (12 + 4 pad + 12)", len(got))
	}
}

func TestParseBufferSubdataScalars(t *testing.T) {
	boxType, _ := ParseBoxType("float")
	got, err := ParseBufferSubdata(strings.Fields("0x3f800000 2.0"), boxType)
	if err != nil {
		t.Fatalf("ParseBufferSubdata: %v", err)
	}
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0x40}
	if !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestParseCompareOpLongestFirst(t *testing.T) {
	tests := []struct {
		tok  string
		want CompareOp
	}{
		{"==", CompareEqual},
		{"~=", CompareFuzzyEqual},
		{"!=", CompareNotEqual},
		{"<", CompareLess},
		{">=", CompareGreaterEqual},
		{">", CompareGreater},
		{"<=", CompareLessEqual},
	}
	for _, tt := range tests {
		got, err := ParseCompareOp(tt.tok)
		if err != nil {
			t.Errorf("ParseCompareOp(%q): %v", tt.tok, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCompareOp(%q) = %v, want %v", tt.tok, got, tt.want)
		}
	}
	if _, err := ParseCompareOp("=<"); err == nil {
		t.Error("ParseCompareOp(=<) succeeded, want error")
	}
}

func TestCompareValue(t *testing.T) {
	floatType, _ := ParseBoxType("float")
	encode := func(toks string) []byte {
		value, _, err := ParseValue(strings.Fields(toks), floatType)
		if err != nil {
			t.Fatalf("encode %q: %v", toks, err)
		}
		return value
	}
	tol := DefaultTolerance()
	tests := []struct {
		op   CompareOp
		a, b string
		want bool
	}{
		{CompareEqual, "1.0", "1.0", true},
		{CompareEqual, "1.0", "1.001", false},
		{CompareFuzzyEqual, "1.0", "1.005", true},
		{CompareFuzzyEqual, "1.0", "1.5", false},
		{CompareNotEqual, "1.0", "2.0", true},
		{CompareLess, "1.0", "2.0", true},
		{CompareLess, "2.0", "2.0", false},
		{CompareLessEqual, "2.0", "2.0", true},
		{CompareGreater, "3.0", "2.0", true},
		{CompareGreaterEqual, "2.0", "2.0", true},
	}
	for _, tt := range tests {
		got := CompareValue(tt.op, encode(tt.a), encode(tt.b), floatType, &tol)
		if got != tt.want {
			t.Errorf("CompareValue(%v, %s, %s) = %v, want %v", tt.op, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTolerancePercent(t *testing.T) {
	tol := Tolerance{Values: [4]float64{1, 1, 1, 1}, IsPercent: true}
	if !tol.WithinTolerance(100.5, 100, 0) {
		t.Error("100.5 should be within 1% of 100")
	}
	if tol.WithinTolerance(102, 100, 0) {
		t.Error("102 should not be within 1% of 100")
	}
}
