// Package shader compiles WGSL shader permutations for a target profile.
//
// Compilation preprocesses #define/#ifdef directives, checks the source
// for balanced brackets and entry points, reflects the resource interface,
// enforces the profile's limits and lowers the normalized text into an IR
// container. Results are cached per (source hash, profile, defines).
package shader

import (
	"context"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// Compiler compiles shader permutations through a shared cache. It is safe
// for concurrent use.
type Compiler struct {
	cache  *Cache
	logger *zap.Logger
}

// NewCompiler creates a compiler. A nil cache gets a fresh one; a nil logger
// discards output.
func NewCompiler(cache *Cache, logger *zap.Logger) *Compiler {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{cache: cache, logger: logger}
}

// Cache returns the permutation cache.
func (c *Compiler) Cache() *Cache { return c.cache }

// Stats returns the cache counters.
func (c *Compiler) Stats() Stats { return c.cache.Stats() }

// Compile returns the compiled permutation of src for profile with the given
// defines. Identical requests return the same cached unit.
func (c *Compiler) Compile(ctx context.Context, src asset.ShaderSource, profile string, defines map[string]string) (*asset.Shader, error) {
	p, err := LookupProfile(profile)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sorted := SortedDefines(defines)
	key := Key(src.Code, p, defines)
	s, hit, err := c.cache.Get(key, func() (*asset.Shader, error) {
		return compile(src, p, defines, sorted)
	})
	if err != nil {
		c.logger.Debug("shader compile failed", zap.String("shader", src.Name), zap.String("profile", p.Name), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("shader compiled",
		zap.String("shader", src.Name),
		zap.String("profile", p.Name),
		zap.Strings("defines", sorted),
		zap.Bool("cache_hit", hit))
	return s, nil
}

func compile(src asset.ShaderSource, p Profile, defines map[string]string, sorted []string) (*asset.Shader, error) {
	text, err := preprocess(src.Name, src.Code, defines)
	if err != nil {
		return nil, err
	}
	text, err = stripComments(src.Name, text)
	if err != nil {
		return nil, err
	}
	if err := checkBrackets(src.Name, text); err != nil {
		return nil, err
	}
	refl, err := reflect(src.Name, text)
	if err != nil {
		return nil, err
	}
	if err := p.Check(&refl); err != nil {
		return nil, err
	}

	bytecode := encodeIR(p.Name, refl.Stages(), normalize(text))
	sum := blake2b.Sum256(bytecode)
	return &asset.Shader{
		Name:        src.Name,
		Profile:     p.Name,
		Defines:     sorted,
		Bytecode:    bytecode,
		Reflection:  refl,
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}

// SortedDefines renders defines as sorted "K=V" strings.
func SortedDefines(defines map[string]string) []string {
	out := make([]string, 0, len(defines))
	for k, v := range defines {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Key returns the permutation cache key: blake2b-256(source), the profile
// name and the defines sorted by name. Names and values are quoted so that
// distinct define sets never share a key.
func Key(source string, p Profile, defines map[string]string) string {
	sum := blake2b.Sum256([]byte(source))
	names := make([]string, 0, len(defines))
	for k := range defines {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(hex.EncodeToString(sum[:]))
	b.WriteByte('|')
	b.WriteString(p.Name)
	b.WriteByte('|')
	for i, k := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(defines[k]))
	}
	return b.String()
}
