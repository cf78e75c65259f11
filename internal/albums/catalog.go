package albums

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog resolves album identifiers to catalog entries.
type Catalog interface {
	Get(ctx context.Context, id string) (Album, error)
}

// MemoryCatalog is a fixed in-memory catalog.
type MemoryCatalog struct {
	mu     sync.RWMutex
	albums map[string]Album
}

func NewMemoryCatalog(albums ...Album) *MemoryCatalog {
	c := &MemoryCatalog{albums: make(map[string]Album, len(albums))}
	for _, a := range albums {
		c.albums[a.ID] = a
	}
	return c
}

func (c *MemoryCatalog) Get(ctx context.Context, id string) (Album, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.albums[id]
	if !ok {
		return Album{}, ErrNotFound
	}
	return a, nil
}

func (c *MemoryCatalog) Put(a Album) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.albums[a.ID] = a
}

// All returns every album, in no particular order.
func (c *MemoryCatalog) All() []Album {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Album, 0, len(c.albums))
	for _, a := range c.albums {
		out = append(out, a)
	}
	return out
}

type catalogFile struct {
	Albums []Album `yaml:"albums"`
}

// LoadFile reads a YAML album catalog, used for local runs and seeding.
func LoadFile(path string) (*MemoryCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("albums: read catalog: %w", err)
	}
	return ParseYAML(raw)
}

func ParseYAML(raw []byte) (*MemoryCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("albums: parse catalog: %w", err)
	}
	for i, a := range f.Albums {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("albums: entry %d has no id", i)
		}
		if len(a.Questions) == 0 {
			return nil, fmt.Errorf("albums: %s has no questions", a.ID)
		}
	}
	return NewMemoryCatalog(f.Albums...), nil
}

// FallbackCatalog tries each catalog in order and returns the first hit.
type FallbackCatalog []Catalog

func (f FallbackCatalog) Get(ctx context.Context, id string) (Album, error) {
	for _, c := range f {
		if c == nil {
			continue
		}
		a, err := c.Get(ctx, id)
		if err == nil {
			return a, nil
		}
		if err != ErrNotFound {
			return Album{}, err
		}
	}
	return Album{}, ErrNotFound
}
