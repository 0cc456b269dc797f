package source

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Faultbox/assetforge/pkg/asset"
)

// Resolver loads the bytes behind an external URI referenced by a document.
type Resolver interface {
	Resolve(uri string) ([]byte, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(uri string) ([]byte, error)

// Resolve calls f(uri).
func (f ResolverFunc) Resolve(uri string) ([]byte, error) { return f(uri) }

// DirResolver resolves relative URIs against a directory. URIs that escape
// the directory are refused.
type DirResolver string

// Resolve reads the file named by uri below the directory.
func (d DirResolver) Resolve(uri string) ([]byte, error) {
	rel, err := url.PathUnescape(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: uri %q: %v", asset.ErrMalformedDocument, uri, err)
	}
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%w: uri %q leaves the document directory", asset.ErrUnresolvedReference, uri)
	}
	data, err := os.ReadFile(filepath.Join(string(d), rel))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", asset.ErrUnresolvedReference, err)
	}
	return data, nil
}

// NoResolver refuses every external reference.
var NoResolver Resolver = ResolverFunc(func(uri string) ([]byte, error) {
	return nil, fmt.Errorf("%w: no resolver for external uri %q", asset.ErrUnresolvedReference, uri)
})
