package script

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/parse"
)

// ParseVBO parses the [vertex data] section. The first non-blank line is a
// header of location/format columns, e.g.
//
//	0/R32G32B32_SFLOAT 1/R8G8B8A8_UNORM
//
// and every following line holds one vertex, with one value per component
// of each column.
func ParseVBO(body string) (*VBO, error) {
	vbo := &VBO{}
	headerDone := false
	for _, line := range strings.Split(body, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		toks := strings.Fields(line)
		if len(toks) == 0 {
			continue
		}
		if !headerDone {
			if err := parseVBOHeader(vbo, toks); err != nil {
				return nil, err
			}
			headerDone = true
			continue
		}
		row := make([]byte, 0, vbo.Stride)
		var err error
		for _, attrib := range vbo.Attribs {
			row, toks, err = attrib.Format.EncodeVertexDatum(row, toks)
			if err != nil {
				return nil, err
			}
		}
		if len(toks) != 0 {
			return nil, fmt.Errorf("%w: extra data on vertex row", core.ErrInvalidValue)
		}
		vbo.Data = append(vbo.Data, row...)
		vbo.NumVertices++
	}
	if !headerDone {
		return nil, fmt.Errorf("%w: vertex data section has no header", core.ErrInvalidValue)
	}
	return vbo, nil
}

func parseVBOHeader(vbo *VBO, toks []string) error {
	offset := uint32(0)
	for _, tok := range toks {
		loc, name, found := strings.Cut(tok, "/")
		if !found {
			return fmt.Errorf("%w: bad attribute spec %q", core.ErrInvalidValue, tok)
		}
		location, err := parse.ParseUint(loc, 32)
		if err != nil {
			return err
		}
		format, err := LookupFormat(name)
		if err != nil {
			return err
		}
		vbo.Attribs = append(vbo.Attribs, VertexAttrib{
			Location: uint32(location),
			Format:   format,
			Offset:   offset,
		})
		offset += uint32(format.Size())
	}
	vbo.Stride = offset
	return nil
}
