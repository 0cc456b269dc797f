// Package assets resolves the external files a document references against
// search directories and GRF archives, caching what it loads.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/pkg/asset"
	"github.com/Faultbox/assetforge/pkg/grf"
	"github.com/Faultbox/assetforge/pkg/source"
)

// ErrNotFound is returned when no source holds a path.
var ErrNotFound = errors.New("asset not found")

// origin is one searchable location.
type origin interface {
	// read returns the file and the file-system path it came from.
	read(path string) ([]byte, string, error)
	close() error
}

type dirOrigin string

func (d dirOrigin) read(path string) ([]byte, string, error) {
	rel := filepath.FromSlash(path)
	if !filepath.IsLocal(rel) {
		return nil, "", fmt.Errorf("%w: %q leaves %s", ErrNotFound, path, string(d))
	}
	full := filepath.Join(string(d), rel)
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, full)
	}
	return data, full, err
}

func (dirOrigin) close() error { return nil }

type archiveOrigin struct {
	archive *grf.Archive
	path    string
}

func (a *archiveOrigin) read(path string) ([]byte, string, error) {
	data, err := a.archive.Read(path)
	if errors.Is(err, grf.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: %s in %s", ErrNotFound, path, a.path)
	}
	return data, a.path, err
}

func (a *archiveOrigin) close() error { return a.archive.Close() }

// Manager loads assets from directories and GRF archives.
// Sources are searched in reverse order (last added = highest priority).
// It implements source.Resolver and records the file-system path behind
// every resolved asset.
type Manager struct {
	origins []origin
	cache   *Cache
	mu      sync.RWMutex
	logger  *zap.Logger

	depMu sync.Mutex
	deps  map[string]string // asset path -> file-system path
}

var _ source.Resolver = (*Manager)(nil)

// NewManager creates a new asset manager. A nil logger discards output.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cache:  NewCache(),
		deps:   make(map[string]string),
		logger: logger,
	}
}

// AddDir adds a search directory.
func (m *Manager) AddDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("adding directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding directory: %s is not a directory", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.origins = append(m.origins, dirOrigin(abs))
	m.mu.Unlock()
	return nil
}

// AddArchive adds a GRF archive to the manager.
func (m *Manager) AddArchive(path string) error {
	archive, err := grf.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		archive.Close()
		return err
	}

	m.mu.Lock()
	m.origins = append(m.origins, &archiveOrigin{archive: archive, path: abs})
	m.mu.Unlock()

	m.logger.Debug("Added archive", zap.String("path", abs), zap.Int("files", archive.Len()))
	return nil
}

// Load loads a file from the sources.
func (m *Manager) Load(path string) ([]byte, error) {
	// Check cache first
	if data, ok := m.cache.Get(path); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Search sources in reverse order
	for i := len(m.origins) - 1; i >= 0; i-- {
		data, from, err := m.origins[i].read(path)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		m.cache.Set(path, data)
		m.recordDep(path, from)
		m.logger.Debug("Loaded asset", zap.String("path", path), zap.String("from", from), zap.Int("bytes", len(data)))
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

func (m *Manager) recordDep(path, from string) {
	m.depMu.Lock()
	m.deps[path] = from
	m.depMu.Unlock()
}

// Resolve implements source.Resolver. uri is percent-decoded first.
func (m *Manager) Resolve(uri string) ([]byte, error) {
	path, err := url.PathUnescape(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: uri %q: %v", asset.ErrMalformedDocument, uri, err)
	}
	data, err := m.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", asset.ErrUnresolvedReference, err)
	}
	return data, nil
}

// Dependencies returns the distinct file-system paths behind every asset
// loaded so far, sorted.
func (m *Manager) Dependencies() []string {
	m.depMu.Lock()
	defer m.depMu.Unlock()

	out := make([]string, 0, len(m.deps))
	for _, from := range m.deps {
		if !slices.Contains(out, from) {
			out = append(out, from)
		}
	}
	slices.Sort(out)
	return out
}

// Invalidate drops the cached asset at path, or every asset loaded from the
// file-system path (a directory file or a whole archive).
func (m *Manager) Invalidate(path string) {
	m.depMu.Lock()
	defer m.depMu.Unlock()

	m.cache.Delete(path)
	for key, from := range m.deps {
		if key == path || from == path {
			m.cache.Delete(key)
			delete(m.deps, key)
		}
	}
}

// Cache returns the manager's cache.
func (m *Manager) Cache() *Cache { return m.cache }

// Close closes all archives.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.origins {
		o.close()
	}
	m.origins = nil
	m.cache.Clear()

	m.depMu.Lock()
	clear(m.deps)
	m.depMu.Unlock()
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Delete removes an item from cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
