package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Faultbox/assetforge/pkg/asset"
)

var (
	// entryRegex captures the attribute block in front of fn and the function name.
	entryRegex = regexp.MustCompile(`((?:@\w+(?:\s*\([^)]*\))?\s*)+)fn\s+(\w+)\s*\(`)

	stageRegex = regexp.MustCompile(`@(vertex|fragment|compute)\b`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?,?\s*\)`)

	// bindingRegex captures group, binding, optional address space, name and type from
	// declarations like @group(0) @binding(1) var<storage, read> lights: array<Light>;
	bindingRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	structRegex   = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	locationRegex = regexp.MustCompile(`@location\(\s*(\d+)\s*\)`)
	builtinRegex  = regexp.MustCompile(`@builtin\(\s*\w+\s*\)`)
	attrRegex     = regexp.MustCompile(`@\w+(?:\s*\([^)]*\))?`)
	fieldRegex    = regexp.MustCompile(`(\w+)\s*:\s*(.+)$`)
)

var stages = map[string]asset.ShaderStage{
	"vertex":   asset.StageVertex,
	"fragment": asset.StageFragment,
	"compute":  asset.StageCompute,
}

type field struct {
	location int
	builtin  bool
	name     string
	typeName string
}

// reflect extracts entry points, resource bindings and vertex inputs from
// comment-free WGSL.
func reflect(name, source string) (asset.Reflection, error) {
	var r asset.Reflection
	structs := parseStructs(source)

	for _, m := range entryRegex.FindAllStringSubmatchIndex(source, -1) {
		attrs := source[m[2]:m[3]]
		sm := stageRegex.FindStringSubmatch(attrs)
		if sm == nil {
			continue
		}
		ep := asset.EntryPoint{Stage: stages[sm[1]], Name: source[m[4]:m[5]]}
		if ep.Stage == asset.StageCompute {
			size, err := parseWorkgroupSize(attrs)
			if err != nil {
				line, col := position(source, m[2])
				return r, &asset.SyntaxError{Source: name, Line: line, Column: col, Msg: "@workgroup_size " + err.Error()}
			}
			ep.WorkgroupSize = size
		}
		r.EntryPoints = append(r.EntryPoints, ep)

		if ep.Stage == asset.StageVertex && len(r.VertexInputs) == 0 {
			params := paramList(source, m[1]-1)
			r.VertexInputs = vertexInputs(params, structs)
		}
	}
	if len(r.EntryPoints) == 0 {
		return r, &asset.SyntaxError{Source: name, Line: 1, Column: 1, Msg: "no @vertex, @fragment or @compute entry point"}
	}

	seen := make(map[[2]int]string)
	for _, m := range bindingRegex.FindAllStringSubmatchIndex(source, -1) {
		line, col := position(source, m[0])
		group, err := parseIndex(source[m[2]:m[3]])
		if err != nil {
			return r, &asset.SyntaxError{Source: name, Line: line, Column: col, Msg: "@group " + err.Error()}
		}
		binding, err := parseIndex(source[m[4]:m[5]])
		if err != nil {
			return r, &asset.SyntaxError{Source: name, Line: line, Column: col, Msg: "@binding " + err.Error()}
		}
		var space string
		if m[6] >= 0 {
			space = strings.TrimSpace(source[m[6]:m[7]])
		}
		b := asset.Binding{
			Group:   group,
			Binding: binding,
			Name:    source[m[8]:m[9]],
			Type:    strings.TrimSpace(source[m[10]:m[11]]),
		}
		if prev, dup := seen[[2]int{group, binding}]; dup {
			return r, &asset.SyntaxError{Source: name, Line: line, Column: col,
				Msg: fmt.Sprintf("@group(%d) @binding(%d) already used by %s", group, binding, prev)}
		}
		seen[[2]int{group, binding}] = b.Name

		if !classify(&b, space) {
			return r, &asset.SyntaxError{Source: name, Line: line, Column: col,
				Msg: fmt.Sprintf("cannot classify binding %s of type %s", b.Name, b.Type)}
		}
		r.Bindings = append(r.Bindings, b)
	}
	sort.Slice(r.Bindings, func(i, j int) bool {
		if r.Bindings[i].Group != r.Bindings[j].Group {
			return r.Bindings[i].Group < r.Bindings[j].Group
		}
		return r.Bindings[i].Binding < r.Bindings[j].Binding
	})
	return r, nil
}

// classify sets the binding kind and access from the address space and type.
func classify(b *asset.Binding, space string) bool {
	switch {
	case space == "uniform":
		b.Kind = asset.BindingUniform
	case strings.HasPrefix(space, "storage"):
		b.Kind = asset.BindingStorage
		b.Access = "read"
		if _, access, ok := strings.Cut(space, ","); ok {
			b.Access = strings.TrimSpace(access)
		}
	case space != "":
		return false
	case b.Type == "sampler" || b.Type == "sampler_comparison":
		b.Kind = asset.BindingSampler
	case strings.HasPrefix(b.Type, "texture_storage_"):
		b.Kind = asset.BindingStorageTexture
		_, params := splitTypeParams(b.Type)
		if _, access, ok := strings.Cut(params, ","); ok {
			b.Access = strings.TrimSpace(access)
		}
	case strings.HasPrefix(b.Type, "texture_"):
		b.Kind = asset.BindingTexture
	default:
		return false
	}
	return true
}

func parseWorkgroupSize(attrs string) ([3]uint32, error) {
	size := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(attrs)
	if m == nil {
		return size, nil
	}
	for i := range size {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseUint(m[i+1], 10, 32)
		if err != nil {
			return size, fmt.Errorf("dimension %s out of range", m[i+1])
		}
		size[i] = uint32(v)
	}
	return size, nil
}

// parseIndex parses a decimal group or binding index.
func parseIndex(s string) (int, error) {
	v, err := strconv.ParseUint(s, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("index %s out of range", s)
	}
	return int(v), nil
}

// paramList returns the text between the parenthesis at open and its match.
func paramList(source string, open int) string {
	depth := 0
	for i := open; i < len(source); i++ {
		switch source[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return source[open+1 : i]
			}
		}
	}
	return ""
}

func vertexInputs(params string, structs map[string][]field) []asset.VertexInput {
	var inputs []asset.VertexInput
	for _, f := range parseFields(params) {
		switch {
		case f.builtin:
		case f.location >= 0:
			inputs = append(inputs, asset.VertexInput{Location: f.location, Name: f.name, Type: f.typeName})
		default:
			for _, sf := range structs[f.typeName] {
				if !sf.builtin && sf.location >= 0 {
					inputs = append(inputs, asset.VertexInput{Location: sf.location, Name: sf.name, Type: sf.typeName})
				}
			}
		}
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Location < inputs[j].Location })
	return inputs
}

func parseStructs(source string) map[string][]field {
	structs := make(map[string][]field)
	for _, m := range structRegex.FindAllStringSubmatch(source, -1) {
		structs[m[1]] = parseFields(m[2])
	}
	return structs
}

func parseFields(body string) []field {
	var fields []field
	for _, part := range splitTopLevel(body) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := field{location: -1, builtin: builtinRegex.MatchString(part)}
		if m := locationRegex.FindStringSubmatch(part); m != nil {
			f.location, _ = strconv.Atoi(m[1])
		}
		m := fieldRegex.FindStringSubmatch(strings.TrimSpace(attrRegex.ReplaceAllString(part, "")))
		if m == nil {
			continue
		}
		f.name, f.typeName = m[1], strings.TrimSpace(m[2])
		fields = append(fields, f)
	}
	return fields
}

// splitTopLevel splits at commas outside <> and ().
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>', ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func splitTypeParams(typeName string) (string, string) {
	base, params, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return base, strings.TrimSpace(strings.TrimSuffix(params, ">"))
}

// position converts a byte offset to a 1-based line and column.
func position(source string, offset int) (int, int) {
	line := 1 + strings.Count(source[:offset], "\n")
	col := offset - strings.LastIndexByte(source[:offset], '\n')
	return line, col
}
