package asset

import (
	"errors"
	"fmt"
)

// Category groups error kinds by the pipeline stage that raises them.
type Category string

// Error categories.
const (
	CategoryParse    Category = "parse"
	CategoryDecode   Category = "decode"
	CategoryProcess  Category = "process"
	CategoryCompile  Category = "compile"
	CategoryAssemble Category = "assemble"
)

// Kind is a sentinel error identifying one failure kind of the import pipeline.
// Compare with errors.Is; wrap with fmt.Errorf("%w: ...", kind).
type Kind struct {
	category Category
	name     string
}

func (k *Kind) Error() string { return k.name }

// Category returns the stage category of the kind.
func (k *Kind) Category() Category { return k.category }

// Import pipeline errors.
var (
	ErrMalformedDocument    = &Kind{CategoryParse, "malformed document"}
	ErrOutOfRangeReference  = &Kind{CategoryParse, "out of range reference"}
	ErrUnsupportedExtension = &Kind{CategoryParse, "unsupported extension"}

	ErrCodecFailure      = &Kind{CategoryDecode, "codec failure"}
	ErrSizeMismatch      = &Kind{CategoryDecode, "size mismatch"}
	ErrUnsupportedFormat = &Kind{CategoryDecode, "unsupported format"}

	ErrDegenerateMesh = &Kind{CategoryProcess, "degenerate mesh"}
	ErrEmptyPrimitive = &Kind{CategoryProcess, "empty primitive"}

	ErrSyntaxError           = &Kind{CategoryCompile, "syntax error"}
	ErrUnsupportedProfile    = &Kind{CategoryCompile, "unsupported profile"}
	ErrResourceLimitExceeded = &Kind{CategoryCompile, "resource limit exceeded"}

	ErrUnresolvedReference = &Kind{CategoryAssemble, "unresolved reference"}
)

// KindOf returns the pipeline error kind wrapped by err, or nil.
func KindOf(err error) *Kind {
	var k *Kind
	if errors.As(err, &k) {
		return k
	}
	return nil
}

// CategoryOf returns the stage category of err, or "" for foreign errors.
func CategoryOf(err error) Category {
	if k := KindOf(err); k != nil {
		return k.category
	}
	return ""
}

// SyntaxError reports a shader source problem at a 1-based line and column.
type SyntaxError struct {
	Source string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s:%d:%d: %s", ErrSyntaxError, e.Source, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s: %d:%d: %s", ErrSyntaxError, e.Line, e.Column, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntaxError }

// ResourceKind names the kind of resource a task worked on.
type ResourceKind string

// Resource kinds used to tag failures.
const (
	ResourceDocument ResourceKind = "document"
	ResourceMesh     ResourceKind = "mesh"
	ResourceTexture  ResourceKind = "texture"
	ResourceShader   ResourceKind = "shader"
	ResourceScene    ResourceKind = "scene"
)

// ResourceError tags a failure with the resource that caused it.
type ResourceError struct {
	Resource ResourceKind
	Index    int
	Name     string
	Err      error
}

func (e *ResourceError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %d (%q): %v", e.Resource, e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %d: %v", e.Resource, e.Index, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
