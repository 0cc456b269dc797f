package shader

import (
	"fmt"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// stripComments blanks // and nested /* */ comments with spaces, keeping
// newlines so offsets still map to the same line and column.
func stripComments(name, source string) (string, error) {
	out := []byte(source)
	depth := 0
	line, col := 1, 1
	openLine, openCol := 0, 0
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case depth == 0 && c == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
				col++
			}
			i--
			continue
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			if depth == 0 {
				openLine, openCol = line, col
			}
			depth++
			out[i], out[i+1] = ' ', ' '
			i++
			col += 2
			continue
		case depth > 0 && c == '*' && i+1 < len(out) && out[i+1] == '/':
			depth--
			out[i], out[i+1] = ' ', ' '
			i++
			col += 2
			continue
		}
		if c == '\n' {
			line++
			col = 1
			continue
		}
		if depth > 0 {
			out[i] = ' '
		}
		col++
	}
	if depth > 0 {
		return "", &asset.SyntaxError{Source: name, Line: openLine, Column: openCol, Msg: "unterminated block comment"}
	}
	return string(out), nil
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

// checkBrackets verifies that (), [] and {} nest correctly.
func checkBrackets(name, source string) error {
	type open struct {
		c         byte
		line, col int
	}
	var stack []open
	line, col := 1, 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		col++
		switch c {
		case '\n':
			line++
			col = 0
		case '(', '[', '{':
			stack = append(stack, open{c, line, col})
		case ')', ']', '}':
			if len(stack) == 0 {
				return &asset.SyntaxError{Source: name, Line: line, Column: col, Msg: fmt.Sprintf("unexpected %q", c)}
			}
			top := stack[len(stack)-1]
			if top.c != closers[c] {
				return &asset.SyntaxError{Source: name, Line: line, Column: col,
					Msg: fmt.Sprintf("%q does not close %q opened at %d:%d", c, top.c, top.line, top.col)}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return &asset.SyntaxError{Source: name, Line: top.line, Column: top.col, Msg: fmt.Sprintf("unclosed %q", top.c)}
	}
	return nil
}
