package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	vk "github.com/goki/vulkan"
	"golang.org/x/image/math/f32"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/parse"
	"github.com/spaghettifunk/vkrun/runner/pipeline"
)

type section int

const (
	sectionNone section = iota
	sectionComment
	sectionRequire
	sectionShader
	sectionVertexData
	sectionIndices
	sectionTest
)

// stageNames maps the stage words used in section headers and entrypoint
// lines to stages. Every name is matched in full, so the order carries no
// meaning.
var stageNames = []struct {
	name  string
	stage pipeline.Stage
}{
	{"tessellation control", pipeline.StageTessCtrl},
	{"tessellation evaluation", pipeline.StageTessEval},
	{"vertex", pipeline.StageVertex},
	{"geometry", pipeline.StageGeometry},
	{"fragment", pipeline.StageFragment},
	{"compute", pipeline.StageCompute},
}

var extensionNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type parser struct {
	stream   *Stream
	filename string
	line     int
	nextLine int
	script   *Script

	section    section
	sawSection bool

	shaderStage  pipeline.Stage
	shaderSource SourceType
	body         strings.Builder

	vertexBody    strings.Builder
	haveVertexSec bool

	key       *pipeline.Key
	clear     ClearState
	tolerance Tolerance
}

// ParseFile parses a script from disk.
func ParseFile(filename string, replacements []Replacement) (*Script, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer f.Close()
	stream := NewStream(f)
	for _, r := range replacements {
		stream.AddReplacement(r.Token, r.Value)
	}
	return parseStream(filename, stream)
}

// ParseString parses an in-memory script source.
func ParseString(filename, source string, replacements []Replacement) (*Script, error) {
	stream := NewStringStream(source)
	for _, r := range replacements {
		stream.AddReplacement(r.Token, r.Value)
	}
	return parseStream(filename, stream)
}

func parseStream(filename string, stream *Stream) (*Script, error) {
	p := &parser{
		stream:   stream,
		filename: filename,
		nextLine: 1,
		script: &Script{
			Filename:      filename,
			VulkanVersion: [2]int{1, 0},
			WindowFormat:  DefaultWindowFormat(),
		},
		key:       pipeline.NewKey(),
		clear:     DefaultClearState(),
		tolerance: DefaultTolerance(),
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.script, nil
}

func (p *parser) errorf(wrapped error, format string, args ...interface{}) error {
	return &core.ParseError{
		File: p.filename,
		Line: p.line,
		Msg:  fmt.Sprintf(format, args...),
		Err:  wrapped,
	}
}

func (p *parser) wrap(err error) error {
	if err == nil {
		return nil
	}
	var pe *core.ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &core.ParseError{File: p.filename, Line: p.line, Msg: err.Error(), Err: err}
}

func (p *parser) run() error {
	for {
		line, consumed, err := p.stream.ReadLogicalLine()
		if err == io.EOF {
			break
		}
		p.line = p.nextLine
		p.nextLine += consumed
		if err != nil {
			return p.wrap(err)
		}
		if strings.HasPrefix(line, "[") {
			if err := p.commitSection(); err != nil {
				return err
			}
			if err := p.startSection(line); err != nil {
				return err
			}
			continue
		}
		if err := p.handleLine(line); err != nil {
			return err
		}
	}
	if err := p.commitSection(); err != nil {
		return err
	}
	sort.Slice(p.script.Buffers, func(i, j int) bool {
		a, b := p.script.Buffers[i], p.script.Buffers[j]
		if a.DescSet != b.DescSet {
			return a.DescSet < b.DescSet
		}
		return a.Binding < b.Binding
	})
	return nil
}

func (p *parser) startSection(line string) error {
	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, "]") {
		return p.errorf(core.ErrUnknownSection, "missing ] on section header")
	}
	name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])

	markSeen := func() {
		p.sawSection = true
	}

	switch name {
	case "comment":
		p.section = sectionComment
		return nil
	case "require":
		if p.sawSection {
			return p.errorf(core.ErrRequireNotFirst, "[require] must come before any other section")
		}
		p.section = sectionRequire
		return nil
	case "vertex shader passthrough":
		markSeen()
		p.section = sectionNone
		return p.wrap(p.addShader(pipeline.StageVertex, SourceSpirvBinary, PassthroughVertexShader()))
	case "vertex data":
		markSeen()
		if p.haveVertexSec {
			return p.errorf(core.ErrDuplicateVertexData, "duplicate vertex data section")
		}
		p.haveVertexSec = true
		p.section = sectionVertexData
		return nil
	case "indices":
		markSeen()
		p.section = sectionIndices
		return nil
	case "test":
		markSeen()
		p.section = sectionTest
		return nil
	}

	for _, sn := range stageNames {
		rest, ok := strings.CutPrefix(name, sn.name+" shader")
		if !ok {
			continue
		}
		source := SourceGLSL
		switch strings.TrimSpace(rest) {
		case "":
		case "spirv":
			source = SourceSpirvAsm
		case "binary":
			source = SourceSpirvBinary
		default:
			return p.errorf(core.ErrUnknownSection, "unknown section %q", name)
		}
		markSeen()
		p.section = sectionShader
		p.shaderStage = sn.stage
		p.shaderSource = source
		p.body.Reset()
		return nil
	}
	return p.errorf(core.ErrUnknownSection, "unknown section %q", name)
}

// addShader appends a shader fragment, keeping SPIR-V stages single-entry.
func (p *parser) addShader(stage pipeline.Stage, source SourceType, code []byte) error {
	existing := p.script.Stages[stage]
	if len(existing) > 0 {
		if source != SourceGLSL || existing[0].Source != SourceGLSL {
			return fmt.Errorf("%w: stage %s already has a shader", core.ErrInvalidValue, stage)
		}
	}
	p.script.Stages[stage] = append(existing, ShaderCode{Source: source, Stage: stage, Code: code})
	return nil
}

func (p *parser) commitSection() error {
	switch p.section {
	case sectionShader:
		body := p.body.String()
		var code []byte
		if p.shaderSource == SourceSpirvBinary {
			decoded, err := parse.ParseSpirvHex(body)
			if err != nil {
				return p.wrap(err)
			}
			code = decoded
		} else {
			code = []byte(body)
		}
		if err := p.addShader(p.shaderStage, p.shaderSource, code); err != nil {
			return p.wrap(err)
		}
	case sectionVertexData:
		vbo, err := ParseVBO(p.vertexBody.String())
		if err != nil {
			return p.wrap(err)
		}
		p.script.VertexData = vbo
	}
	p.section = sectionNone
	p.body.Reset()
	p.vertexBody.Reset()
	return nil
}

func (p *parser) handleLine(line string) error {
	switch p.section {
	case sectionComment:
		return nil
	case sectionShader:
		p.body.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			p.body.WriteByte('\n')
		}
		return nil
	case sectionVertexData:
		p.vertexBody.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			p.vertexBody.WriteByte('\n')
		}
		return nil
	case sectionRequire:
		return p.handleRequire(line)
	case sectionIndices:
		return p.handleIndices(line)
	case sectionTest:
		return p.handleTest(line)
	default:
		if strings.TrimSpace(line) != "" {
			return p.errorf(core.ErrUnknownSection, "content outside of any section")
		}
		return nil
	}
}

func skippable(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

func (p *parser) handleRequire(line string) error {
	if skippable(line) {
		return nil
	}
	toks := strings.Fields(line)
	switch toks[0] {
	case "framebuffer", "depthstencil":
		if len(toks) != 2 {
			return p.errorf(core.ErrInvalidValue, "%s requires a format name", toks[0])
		}
		format, err := LookupFormat(toks[1])
		if err != nil {
			return p.wrap(err)
		}
		if toks[0] == "framebuffer" {
			p.script.WindowFormat.ColorFormat = format
		} else {
			p.script.WindowFormat.DepthStencilFormat = format
		}
		return nil
	case "fbsize":
		if len(toks) != 3 {
			return p.errorf(core.ErrInvalidValue, "fbsize requires width and height")
		}
		w, err := parse.ParseUint(toks[1], 32)
		if err != nil {
			return p.wrap(err)
		}
		h, err := parse.ParseUint(toks[2], 32)
		if err != nil {
			return p.wrap(err)
		}
		p.script.WindowFormat.Width = int(w)
		p.script.WindowFormat.Height = int(h)
		return nil
	case "vulkan":
		if len(toks) != 2 {
			return p.errorf(core.ErrInvalidValue, "vulkan requires a version")
		}
		major, minor, found := strings.Cut(toks[1], ".")
		if !found {
			return p.errorf(core.ErrInvalidValue, "bad vulkan version %q", toks[1])
		}
		mj, err := parse.ParseUint(major, 32)
		if err != nil {
			return p.wrap(err)
		}
		mn, err := parse.ParseUint(minor, 32)
		if err != nil {
			return p.wrap(err)
		}
		p.script.VulkanVersion = [2]int{int(mj), int(mn)}
		return nil
	}
	if index, ok := LookupFeature(toks[0]); ok && len(toks) == 1 {
		p.script.RequiredFeatures.Add(index)
		return nil
	}
	if len(toks) == 1 && extensionNameRe.MatchString(toks[0]) {
		p.script.Extensions = append(p.script.Extensions, toks[0])
		return nil
	}
	return p.errorf(core.ErrInvalidValue, "unknown requirement %q", strings.TrimSpace(line))
}

func (p *parser) handleIndices(line string) error {
	if skippable(line) {
		return nil
	}
	for _, tok := range strings.Fields(line) {
		v, err := parse.ParseUint(tok, 16)
		if err != nil {
			return p.wrap(err)
		}
		p.script.Indices = append(p.script.Indices, uint16(v))
	}
	return nil
}

func (p *parser) addCommand(c Command) {
	c.Line = p.line
	p.script.Commands = append(p.script.Commands, c)
}

// parseDB parses a desc_set:binding pair. A bare integer binds in set 0.
func parseDB(tok string) (int, int, error) {
	set, binding, found := strings.Cut(tok, ":")
	if !found {
		b, err := parse.ParseUint(tok, 32)
		return 0, int(b), err
	}
	s, err := parse.ParseUint(set, 32)
	if err != nil {
		return 0, 0, err
	}
	b, err := parse.ParseUint(binding, 32)
	if err != nil {
		return 0, 0, err
	}
	return int(s), int(b), nil
}

// parseTuple consumes a parenthesised comma-separated float list from the
// front of s and returns the remainder.
func parseTuple(s string) ([]float64, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		return nil, s, fmt.Errorf("%w: expected (", core.ErrInvalidValue)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return nil, s, fmt.Errorf("%w: missing )", core.ErrInvalidValue)
	}
	var vals []float64
	for _, part := range strings.Split(s[1:end], ",") {
		v, err := parse.ParseDouble(part)
		if err != nil {
			return nil, s, err
		}
		vals = append(vals, v)
	}
	return vals, s[end+1:], nil
}

func (p *parser) handleTest(line string) error {
	if skippable(line) {
		return nil
	}
	trimmed := strings.TrimSpace(line)
	toks := strings.Fields(trimmed)

	if rest, ok := strings.CutPrefix(trimmed, "patch parameter vertices "); ok {
		n, err := parse.ParseUint(rest, 32)
		if err != nil {
			return p.wrap(err)
		}
		p.key.SetPatchControlPoints(uint32(n))
		return nil
	}

	if rest, ok := strings.CutPrefix(trimmed, "clear color "); ok {
		return p.parseClearColor(rest)
	}
	if rest, ok := strings.CutPrefix(trimmed, "clear depth "); ok {
		v, err := parse.ParseFloat(rest)
		if err != nil {
			return p.wrap(err)
		}
		p.clear.Depth = v
		return nil
	}
	if rest, ok := strings.CutPrefix(trimmed, "clear stencil "); ok {
		v, err := parse.ParseUint(rest, 32)
		if err != nil {
			return p.wrap(err)
		}
		p.clear.Stencil = uint32(v)
		return nil
	}

	if toks[0] == "ssbo" && len(toks) >= 3 && toks[2] != "subdata" {
		return p.parseSSBOSize(toks)
	}

	if toks[0] == "tolerance" {
		return p.parseTolerance(toks[1:])
	}

	for _, sn := range stageNames {
		if rest, ok := strings.CutPrefix(trimmed, sn.name+" entrypoint "); ok {
			name := strings.TrimSpace(rest)
			if name == "" {
				return p.errorf(core.ErrInvalidValue, "missing entrypoint name")
			}
			p.key.SetEntrypoint(sn.stage, name)
			return nil
		}
	}

	if pipeline.HasProperty(toks[0]) {
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, toks[0]))
		if err := p.key.SetProperty(toks[0], rest); err != nil {
			return p.wrap(err)
		}
		return nil
	}

	if strings.HasPrefix(trimmed, "draw rect ") {
		return p.parseDrawRect(toks[2:])
	}

	if toks[0] == "probe" && len(toks) >= 2 && toks[1] == "ssbo" {
		return p.parseProbeSSBO(toks[2:])
	}
	if toks[0] == "probe" || (toks[0] == "relative" && len(toks) >= 2 && toks[1] == "probe") {
		return p.parseProbeRect(trimmed)
	}

	if strings.HasPrefix(trimmed, "draw arrays ") {
		return p.parseDrawArrays(toks[2:])
	}

	if toks[0] == "compute" {
		return p.parseCompute(toks[1:])
	}

	if toks[0] == "uniform" && len(toks) >= 2 && toks[1] == "ubo" {
		if len(toks) < 6 {
			return p.errorf(core.ErrInvalidValue, "uniform ubo requires binding, type, offset and values")
		}
		return p.parseBufferSubdata(BufferUBO, toks[2], toks[3], toks[4], toks[5:])
	}
	if toks[0] == "ssbo" && len(toks) >= 3 && toks[2] == "subdata" {
		if len(toks) < 6 {
			return p.errorf(core.ErrInvalidValue, "ssbo subdata requires type, offset and values")
		}
		return p.parseBufferSubdata(BufferSSBO, toks[1], toks[3], toks[4], toks[5:])
	}

	if toks[0] == "uniform" {
		if len(toks) < 4 {
			return p.errorf(core.ErrInvalidValue, "uniform requires type, offset and values")
		}
		return p.parsePushConstant(toks[1], toks[2], toks[3:])
	}

	if trimmed == "clear" {
		clear := p.clear
		p.addCommand(Command{Kind: CommandClear, Clear: &clear})
		return nil
	}

	return p.errorf(core.ErrInvalidValue, "unknown test command %q", trimmed)
}

func (p *parser) parseClearColor(rest string) error {
	toks := strings.Fields(rest)
	if len(toks) != 4 {
		return p.errorf(core.ErrInvalidValue, "clear color requires 4 values")
	}
	for i, tok := range toks {
		v, err := parse.ParseFloat(tok)
		if err != nil {
			return p.wrap(err)
		}
		p.clear.Color[i] = v
	}
	return nil
}

// parseSSBOSize handles the bare "ssbo D:B SIZE" declaration, growing the
// buffer if it already exists.
func (p *parser) parseSSBOSize(toks []string) error {
	if len(toks) != 3 {
		return p.errorf(core.ErrInvalidValue, "ssbo requires a binding and a size")
	}
	descSet, binding, err := parseDB(toks[1])
	if err != nil {
		return p.wrap(err)
	}
	size, err := parse.ParseUint(toks[2], 32)
	if err != nil {
		return p.wrap(err)
	}
	buf, err := p.script.GetBuffer(descSet, binding, BufferSSBO)
	if err != nil {
		return p.wrap(err)
	}
	if int(size) > buf.Size {
		buf.Size = int(size)
	}
	return nil
}

func (p *parser) parseTolerance(toks []string) error {
	if len(toks) != 1 && len(toks) != 4 {
		return p.errorf(core.ErrInvalidValue, "tolerance requires 1 or 4 values")
	}
	var tol Tolerance
	percentCount := 0
	for i, tok := range toks {
		value := tok
		if cut, ok := strings.CutSuffix(tok, "%"); ok {
			percentCount++
			value = cut
		}
		v, err := parse.ParseDouble(value)
		if err != nil {
			return p.wrap(err)
		}
		if v < 0 {
			return p.errorf(core.ErrInvalidValue, "tolerance must be non-negative")
		}
		tol.Values[i] = v
	}
	switch {
	case percentCount == 0:
	case percentCount == len(toks):
		tol.IsPercent = true
	default:
		return p.errorf(core.ErrInvalidValue, "tolerance mixes percent and absolute values")
	}
	if len(toks) == 1 {
		tol.Values[1] = tol.Values[0]
		tol.Values[2] = tol.Values[0]
		tol.Values[3] = tol.Values[0]
	}
	p.tolerance = tol
	return nil
}

func (p *parser) parseDrawRect(toks []string) error {
	ortho := false
	patch := false
	for len(toks) > 0 {
		if toks[0] == "ortho" {
			ortho = true
			toks = toks[1:]
			continue
		}
		if toks[0] == "patch" {
			patch = true
			toks = toks[1:]
			continue
		}
		break
	}
	if len(toks) != 4 {
		return p.errorf(core.ErrInvalidValue, "draw rect requires x, y, width and height")
	}
	var vals [4]float32
	for i, tok := range toks {
		v, err := parse.ParseFloat(tok)
		if err != nil {
			return p.wrap(err)
		}
		vals[i] = v
	}
	if ortho {
		w := float32(p.script.WindowFormat.Width)
		h := float32(p.script.WindowFormat.Height)
		vals[0] = vals[0]*2/w - 1
		vals[1] = vals[1]*2/h - 1
		vals[2] = vals[2] * 2 / w
		vals[3] = vals[3] * 2 / h
	}
	key := p.key.Clone()
	key.Type = pipeline.TypeGraphics
	key.Source = pipeline.SourceRectangle
	if patch {
		key.SetTopology(vk.PrimitiveTopologyPatchList)
	} else {
		key.SetTopology(vk.PrimitiveTopologyTriangleStrip)
	}
	key.SetPatchControlPoints(4)
	p.addCommand(Command{Kind: CommandDrawRect, DrawRect: &DrawRect{
		X: vals[0], Y: vals[1], W: vals[2], H: vals[3],
		Key: p.script.AddPipelineKey(key),
	}})
	return nil
}

func (p *parser) parseProbeRect(trimmed string) error {
	rest := trimmed
	relative := false
	if r, ok := strings.CutPrefix(rest, "relative "); ok {
		relative = true
		rest = strings.TrimSpace(r)
	}
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "probe"))

	kind := "point"
	for _, k := range []string{"rect", "all"} {
		if r, ok := strings.CutPrefix(rest, k+" "); ok {
			kind = k
			rest = strings.TrimSpace(r)
			break
		}
	}
	components := 0
	if r, ok := strings.CutPrefix(rest, "rgba"); ok {
		components = 4
		rest = r
	} else if r, ok := strings.CutPrefix(rest, "rgb"); ok {
		components = 3
		rest = r
	} else {
		return p.errorf(core.ErrInvalidValue, "probe requires rgb or rgba")
	}

	probe := &ProbeRect{NumComponents: components, Tolerance: p.tolerance, W: 1, H: 1}

	switch kind {
	case "all":
		if relative {
			return p.errorf(core.ErrInvalidValue, "probe all cannot be relative")
		}
		probe.X, probe.Y = 0, 0
		probe.W = p.script.WindowFormat.Width
		probe.H = p.script.WindowFormat.Height
	case "rect":
		coords, r, err := parseTuple(rest)
		if err != nil {
			return p.wrap(err)
		}
		if len(coords) != 4 {
			return p.errorf(core.ErrInvalidValue, "probe rect requires 4 coordinates")
		}
		rest = r
		if relative {
			coords[0] *= float64(p.script.WindowFormat.Width)
			coords[2] *= float64(p.script.WindowFormat.Width)
			coords[1] *= float64(p.script.WindowFormat.Height)
			coords[3] *= float64(p.script.WindowFormat.Height)
		}
		probe.X, probe.Y = int(coords[0]), int(coords[1])
		probe.W, probe.H = int(coords[2]), int(coords[3])
	default:
		coords, r, err := parseTuple(rest)
		if err != nil {
			return p.wrap(err)
		}
		if len(coords) != 2 {
			return p.errorf(core.ErrInvalidValue, "probe requires 2 coordinates")
		}
		rest = r
		if relative {
			coords[0] *= float64(p.script.WindowFormat.Width)
			coords[1] *= float64(p.script.WindowFormat.Height)
		}
		probe.X, probe.Y = int(coords[0]), int(coords[1])
	}

	colors, rest, err := parseTuple(rest)
	if err != nil {
		return p.wrap(err)
	}
	if len(colors) != components {
		return p.errorf(core.ErrInvalidValue, "probe expects %d colour components", components)
	}
	if strings.TrimSpace(rest) != "" {
		return p.errorf(core.ErrInvalidValue, "trailing data after probe")
	}
	var color f32.Vec4
	color[3] = 1
	for i, v := range colors {
		color[i] = float32(v)
	}
	probe.Color = color
	p.addCommand(Command{Kind: CommandProbeRect, ProbeRect: probe})
	return nil
}

func (p *parser) parseProbeSSBO(toks []string) error {
	if len(toks) < 5 {
		return p.errorf(core.ErrInvalidValue, "probe ssbo requires type, binding, offset, comparison and values")
	}
	boxType, err := ParseBoxType(toks[0])
	if err != nil {
		return p.wrap(err)
	}
	descSet, binding, err := parseDB(toks[1])
	if err != nil {
		return p.wrap(err)
	}
	offset, err := parse.ParseUint(toks[2], 32)
	if err != nil {
		return p.wrap(err)
	}
	op, err := ParseCompareOp(toks[3])
	if err != nil {
		return p.wrap(err)
	}
	data, _, err := ParsePackedValues(toks[4:], boxType)
	if err != nil {
		return p.wrap(err)
	}
	if _, err := p.script.GetBuffer(descSet, binding, BufferSSBO); err != nil {
		return p.wrap(err)
	}
	p.addCommand(Command{Kind: CommandProbeSSBO, ProbeSSBO: &ProbeSSBO{
		DescSet:   descSet,
		Binding:   binding,
		Offset:    int(offset),
		Op:        op,
		Type:      boxType,
		Data:      data,
		Tolerance: p.tolerance,
	}})
	return nil
}

func (p *parser) parseDrawArrays(toks []string) error {
	indexed := false
	instanced := false
	for len(toks) > 0 {
		if toks[0] == "instanced" {
			instanced = true
			toks = toks[1:]
			continue
		}
		if toks[0] == "indexed" {
			indexed = true
			toks = toks[1:]
			continue
		}
		break
	}
	if len(toks) < 3 {
		return p.errorf(core.ErrInvalidValue, "draw arrays requires topology, first and count")
	}
	topology, ok := pipeline.ParseTopology(toks[0])
	if !ok {
		return p.errorf(core.ErrInvalidValue, "unknown topology %q", toks[0])
	}
	first, err := parse.ParseUint(toks[1], 32)
	if err != nil {
		return p.wrap(err)
	}
	count, err := parse.ParseUint(toks[2], 32)
	if err != nil {
		return p.wrap(err)
	}
	instances := uint64(1)
	if instanced {
		if len(toks) != 4 {
			return p.errorf(core.ErrInvalidValue, "instanced draw arrays requires an instance count")
		}
		instances, err = parse.ParseUint(toks[3], 32)
		if err != nil {
			return p.wrap(err)
		}
	} else if len(toks) != 3 {
		return p.errorf(core.ErrInvalidValue, "trailing data after draw arrays")
	}
	key := p.key.Clone()
	key.Type = pipeline.TypeGraphics
	key.Source = pipeline.SourceVertexData
	key.SetTopology(topology)
	p.addCommand(Command{Kind: CommandDrawArrays, DrawArrays: &DrawArrays{
		Topology:      topology,
		Indexed:       indexed,
		FirstVertex:   uint32(first),
		VertexCount:   uint32(count),
		InstanceCount: uint32(instances),
		Key:           p.script.AddPipelineKey(key),
	}})
	return nil
}

func (p *parser) parseCompute(toks []string) error {
	if len(toks) != 3 {
		return p.errorf(core.ErrInvalidValue, "compute requires x, y and z group counts")
	}
	var groups [3]uint32
	for i, tok := range toks {
		v, err := parse.ParseUint(tok, 32)
		if err != nil {
			return p.wrap(err)
		}
		groups[i] = uint32(v)
	}
	p.key.Type = pipeline.TypeCompute
	p.addCommand(Command{Kind: CommandDispatchCompute, Dispatch: &DispatchCompute{
		X: groups[0], Y: groups[1], Z: groups[2],
		Key: p.script.AddPipelineKey(p.key),
	}})
	return nil
}

func (p *parser) parseBufferSubdata(bufType BufferType, db, typeName, offsetTok string, valueToks []string) error {
	descSet, binding, err := parseDB(db)
	if err != nil {
		return p.wrap(err)
	}
	boxType, err := ParseBoxType(typeName)
	if err != nil {
		return p.wrap(err)
	}
	offset, err := parse.ParseUint(offsetTok, 32)
	if err != nil {
		return p.wrap(err)
	}
	data, err := ParseBufferSubdata(valueToks, boxType)
	if err != nil {
		return p.wrap(err)
	}
	buf, err := p.script.GetBuffer(descSet, binding, bufType)
	if err != nil {
		return p.wrap(err)
	}
	if end := int(offset) + len(data); end > buf.Size {
		buf.Size = end
	}
	p.addCommand(Command{Kind: CommandSetBufferSubdata, BufferSubdata: &BufferSubdata{
		DescSet: descSet,
		Binding: binding,
		Offset:  int(offset),
		Data:    data,
	}})
	return nil
}

func (p *parser) parsePushConstant(typeName, offsetTok string, valueToks []string) error {
	boxType, err := ParseBoxType(typeName)
	if err != nil {
		return p.wrap(err)
	}
	offset, err := parse.ParseUint(offsetTok, 32)
	if err != nil {
		return p.wrap(err)
	}
	data, err := ParseBufferSubdata(valueToks, boxType)
	if err != nil {
		return p.wrap(err)
	}
	p.addCommand(Command{Kind: CommandSetPushConstant, PushConstant: &PushConstant{
		Offset: int(offset),
		Data:   data,
	}})
	return nil
}
