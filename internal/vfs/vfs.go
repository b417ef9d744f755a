// Package vfs looks up game data files across archives and directories.
package vfs

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/dfworld/pkg/bsa"
	"github.com/Faultbox/dfworld/pkg/encoding"
)

// ErrNotFound is returned when no source holds the requested file.
var ErrNotFound = errors.New("file not found")

// Source is one place files can be read from.
type Source interface {
	Name() string
	Open(name string) ([]byte, error)
	Close() error
}

// Lister is implemented by sources that can enumerate their files.
type Lister interface {
	List() []string
}

// Manager handles file loading from a stack of sources.
type Manager struct {
	sources []Source
	cache   *Cache
	log     *zap.Logger
	mu      sync.RWMutex
}

// NewManager creates a new file manager. A nil logger disables logging.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cache: NewCache(),
		log:   log,
	}
}

// AddSource adds a source to the manager.
// Sources are searched in reverse order (last added = highest priority).
func (m *Manager) AddSource(src Source) {
	m.mu.Lock()
	m.sources = append(m.sources, src)
	m.mu.Unlock()
	m.cache.Clear()
	m.log.Debug("data source added", zap.String("source", src.Name()))
}

// AddPath opens path as a directory source or, for regular files, a BSA archive.
func (m *Manager) AddPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("adding %s: %w", path, err)
	}
	if info.IsDir() {
		m.AddSource(NewDirSource(path))
		return nil
	}
	archive, err := bsa.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", path, err)
	}
	m.AddSource(archive)
	return nil
}

// Load loads a file from the sources.
func (m *Manager) Load(name string) ([]byte, error) {
	key := encoding.NormalizePath(name)
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.sources) - 1; i >= 0; i-- {
		data, err := m.sources[i].Open(name)
		if err == nil {
			m.cache.Set(key, data)
			return data, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Open implements Source over the whole stack.
func (m *Manager) Open(name string) ([]byte, error) {
	return m.Load(name)
}

// Name implements Source.
func (m *Manager) Name() string {
	return "vfs"
}

// List returns the files of every listable source, highest priority first.
// Names shadowed by a higher priority source are listed once.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for i := len(m.sources) - 1; i >= 0; i-- {
		l, ok := m.sources[i].(Lister)
		if !ok {
			continue
		}
		for _, name := range l.List() {
			key := encoding.NormalizePath(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, name)
		}
	}
	return out
}

// Close closes all sources and reports every close failure.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, src := range m.sources {
		err = multierr.Append(err, src.Close())
	}
	m.sources = nil
	m.cache.Clear()
	return err
}

// Cache is a simple in-memory cache for loaded files.
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

// Clear drops every cached item. Stats are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
