package shader

import (
	"strings"

	"github.com/Faultbox/assetforge/pkg/asset"
)

type conditional struct {
	line, column int
	active       bool // this branch emits
	parent       bool // the enclosing block emits
	sawElse      bool
}

// preprocess applies #define, #undef, #ifdef, #ifndef, #else and #endif.
// Lines that are directives or fall in a disabled branch become empty so
// later diagnostics keep their line numbers. Defined names are replaced at
// word boundaries; replacement text is not rescanned.
func preprocess(name, source string, defines map[string]string) (string, error) {
	macros := make(map[string]string, len(defines))
	for k, v := range defines {
		macros[k] = v
	}

	lines := strings.Split(source, "\n")
	var stack []conditional
	emitting := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(trimmed, "#") {
			if emitting() {
				lines[i] = substitute(line, macros)
			} else {
				lines[i] = ""
			}
			continue
		}

		column := len(line) - len(trimmed) + 1
		var directive string
		args := strings.Fields(trimmed[1:])
		if len(args) > 0 {
			directive, args = args[0], args[1:]
		}
		lines[i] = ""

		syntax := func(msg string) error {
			return &asset.SyntaxError{Source: name, Line: lineNo, Column: column, Msg: msg}
		}

		switch directive {
		case "define":
			if len(args) == 0 || !isIdent(args[0]) {
				return "", syntax("#define needs a name")
			}
			if emitting() {
				macros[args[0]] = strings.Join(args[1:], " ")
			}
		case "undef":
			if len(args) != 1 || !isIdent(args[0]) {
				return "", syntax("#undef needs a name")
			}
			if emitting() {
				delete(macros, args[0])
			}
		case "ifdef", "ifndef":
			if len(args) != 1 || !isIdent(args[0]) {
				return "", syntax("#" + directive + " needs a name")
			}
			_, defined := macros[args[0]]
			parent := emitting()
			stack = append(stack, conditional{
				line:   lineNo,
				column: column,
				active: parent && defined == (directive == "ifdef"),
				parent: parent,
			})
		case "else":
			if len(stack) == 0 {
				return "", syntax("#else without #ifdef")
			}
			top := &stack[len(stack)-1]
			if top.sawElse {
				return "", syntax("duplicate #else")
			}
			top.sawElse = true
			top.active = top.parent && !top.active
		case "endif":
			if len(stack) == 0 {
				return "", syntax("#endif without #ifdef")
			}
			stack = stack[:len(stack)-1]
		default:
			return "", syntax("unknown directive #" + directive)
		}
	}

	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return "", &asset.SyntaxError{Source: name, Line: open.line, Column: open.column, Msg: "unterminated conditional"}
	}
	return strings.Join(lines, "\n"), nil
}

func substitute(line string, macros map[string]string) string {
	if len(macros) == 0 {
		return line
	}
	var sb strings.Builder
	i := 0
	for i < len(line) {
		if !isIdentStart(line[i]) {
			sb.WriteByte(line[i])
			i++
			continue
		}
		j := i + 1
		for j < len(line) && isIdentPart(line[j]) {
			j++
		}
		word := line[i:j]
		if v, ok := macros[word]; ok {
			sb.WriteString(v)
		} else {
			sb.WriteString(word)
		}
		i = j
	}
	return sb.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
