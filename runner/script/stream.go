package script

import (
	"bufio"
	"io"
	"strings"

	"github.com/spaghettifunk/vkrun/runner/core"
)

// maxReplacements bounds token substitution on a single logical line so a
// self-referential replacement set cannot loop forever.
const maxReplacements = 1000

// Replacement is a textual token substitution applied to every logical line
// before it reaches the parser. Pairs are tried in registration order.
type Replacement struct {
	Token string
	Value string
}

// Stream reads logical lines from a script source. A logical line is one or
// more raw lines joined at backslash-newline continuations. The stream keeps
// no position itself; callers track line numbers from the consumed counts it
// reports.
type Stream struct {
	r            *bufio.Reader
	replacements []Replacement
}

func NewStream(r io.Reader) *Stream {
	return &Stream{r: bufio.NewReader(r)}
}

func NewStringStream(s string) *Stream {
	return NewStream(strings.NewReader(s))
}

// AddReplacement registers a token substitution pair.
func (s *Stream) AddReplacement(token, value string) {
	s.replacements = append(s.replacements, Replacement{Token: token, Value: value})
}

func (s *Stream) readRawLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// ReadLogicalLine returns the next logical line and the number of raw lines
// consumed to build it. End of input returns consumed == 0 and io.EOF.
func (s *Stream) ReadLogicalLine() (string, int, error) {
	var sb strings.Builder
	consumed := 0
	for {
		raw, err := s.readRawLine()
		if err != nil {
			if err == io.EOF && consumed > 0 {
				break
			}
			return "", consumed, err
		}
		consumed++
		if strings.HasSuffix(raw, "\\\r\n") {
			sb.WriteString(raw[:len(raw)-3])
			continue
		}
		if strings.HasSuffix(raw, "\\\n") {
			sb.WriteString(raw[:len(raw)-2])
			continue
		}
		sb.WriteString(raw)
		break
	}
	line, err := s.substitute(sb.String())
	if err != nil {
		return "", consumed, err
	}
	return line, consumed, nil
}

// substitute applies the registered replacements. After an insertion the scan
// resumes at the start of the inserted text so replacements can chain.
func (s *Stream) substitute(line string) (string, error) {
	if len(s.replacements) == 0 {
		return line, nil
	}
	count := 0
	for pos := 0; pos < len(line); {
		matched := false
		for _, rep := range s.replacements {
			if rep.Token == "" || !strings.HasPrefix(line[pos:], rep.Token) {
				continue
			}
			count++
			if count > maxReplacements {
				return "", core.ErrInfiniteRecursion
			}
			line = line[:pos] + rep.Value + line[pos+len(rep.Token):]
			matched = true
			break
		}
		if !matched {
			pos++
		}
	}
	return line, nil
}
