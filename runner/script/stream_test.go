package script

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spaghettifunk/vkrun/runner/core"
)

func readAll(t *testing.T, s *Stream) ([]string, []int) {
	t.Helper()
	var lines []string
	var consumed []int
	for {
		line, n, err := s.ReadLogicalLine()
		if err == io.EOF {
			return lines, consumed
		}
		if err != nil {
			t.Fatalf("ReadLogicalLine: %v", err)
		}
		lines = append(lines, line)
		consumed = append(consumed, n)
	}
}

func TestStreamLogicalLines(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantLines    []string
		wantConsumed []int
	}{
		{
			name:         "plain lines",
			input:        "one\ntwo\nthree\n",
			wantLines:    []string{"one\n", "two\n", "three\n"},
			wantConsumed: []int{1, 1, 1},
		},
		{
			name:         "no trailing newline",
			input:        "one\ntwo",
			wantLines:    []string{"one\n", "two"},
			wantConsumed: []int{1, 1},
		},
		{
			name:         "continuation",
			input:        "one \\\ntwo\nthree\n",
			wantLines:    []string{"one two\n", "three\n"},
			wantConsumed: []int{2, 1},
		},
		{
			name:         "crlf continuation",
			input:        "one \\\r\ntwo\n",
			wantLines:    []string{"one two\n"},
			wantConsumed: []int{2},
		},
		{
			name:         "chained continuations",
			input:        "a\\\nb\\\nc\n",
			wantLines:    []string{"abc\n"},
			wantConsumed: []int{3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, consumed := readAll(t, NewStringStream(tt.input))
			if len(lines) != len(tt.wantLines) {
				t.Fatalf("got %d lines, want %d", len(lines), len(tt.wantLines))
			}
			for i := range lines {
				if lines[i] != tt.wantLines[i] {
					t.Errorf("line %d = %q, want %q", i, lines[i], tt.wantLines[i])
				}
				if consumed[i] != tt.wantConsumed[i] {
					t.Errorf("consumed %d = %d, want %d", i, consumed[i], tt.wantConsumed[i])
				}
			}
		})
	}
}

// Joining all logical lines with their consumed counts reconstructs the
// input up to the stripped continuation sequences.
func TestStreamJoinProperty(t *testing.T) {
	input := "first\nsecond \\\njoined\nthird \\\r\nalso joined\nlast"
	lines, consumed := readAll(t, NewStringStream(input))
	total := 0
	for _, n := range consumed {
		total += n
	}
	rawLines := strings.Count(input, "\n") + 1
	if total != rawLines {
		t.Errorf("consumed %d raw lines, want %d", total, rawLines)
	}
	stripped := strings.ReplaceAll(input, "\\\r\n", "")
	stripped = strings.ReplaceAll(stripped, "\\\n", "")
	if got := strings.Join(lines, ""); got != stripped {
		t.Errorf("joined = %q, want %q", got, stripped)
	}
}

func TestStreamSubstitution(t *testing.T) {
	s := NewStringStream("value is TOKEN\n")
	s.AddReplacement("TOKEN", "42")
	line, _, err := s.ReadLogicalLine()
	if err != nil {
		t.Fatalf("ReadLogicalLine: %v", err)
	}
	if line != "value is 42\n" {
		t.Errorf("line = %q", line)
	}
}

func TestStreamSubstitutionChained(t *testing.T) {
	// The scan resumes at the insertion point, so a replacement can expand
	// into another token.
	s := NewStringStream("AB\n")
	s.AddReplacement("AB", "BC")
	s.AddReplacement("BC", "done")
	line, _, err := s.ReadLogicalLine()
	if err != nil {
		t.Fatalf("ReadLogicalLine: %v", err)
	}
	if line != "done\n" {
		t.Errorf("line = %q, want %q", line, "done\n")
	}
}

func TestStreamSubstitutionOrder(t *testing.T) {
	// The first registered replacement wins at any position.
	s := NewStringStream("XY\n")
	s.AddReplacement("XY", "first")
	s.AddReplacement("X", "second")
	line, _, err := s.ReadLogicalLine()
	if err != nil {
		t.Fatalf("ReadLogicalLine: %v", err)
	}
	if line != "first\n" {
		t.Errorf("line = %q", line)
	}
}

func TestStreamSubstitutionInfiniteRecursion(t *testing.T) {
	s := NewStringStream("LOOP\n")
	s.AddReplacement("LOOP", "LOOP!")
	_, _, err := s.ReadLogicalLine()
	if !errors.Is(err, core.ErrInfiniteRecursion) {
		t.Errorf("err = %v, want ErrInfiniteRecursion", err)
	}
}

func TestStreamSubstitutionIdempotent(t *testing.T) {
	s := NewStringStream("aaa\n")
	s.AddReplacement("a", "b")
	line, _, err := s.ReadLogicalLine()
	if err != nil {
		t.Fatalf("ReadLogicalLine: %v", err)
	}
	if line != "bbb\n" {
		t.Errorf("line = %q", line)
	}
}
