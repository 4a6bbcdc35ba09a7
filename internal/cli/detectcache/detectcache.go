// Package detectcache memoizes detection results per file. An entry is keyed
// on the resolved path, size and modification time, so a rewritten file is
// detected again while symlinks to the same file share one entry.
package detectcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ccollicutt/logsniff/pkg/detector"
)

// DefaultSize is the default number of cached results.
const DefaultSize = 256

// Key identifies one version of a file.
type Key struct {
	Path    string
	Size    int64
	ModTime int64
}

// Stats holds cache counters.
type Stats struct {
	Hits   int64
	Misses int64
}

// DetectFunc detects the format of the file at path.
type DetectFunc func(path string) (*detector.Result, error)

// Cache is a bounded LRU of detection results. It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[Key, detector.Result]
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache holding at most size results.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[Key, detector.Result](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// KeyFor returns the key of the current version of path.
func KeyFor(path string) (Key, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return Key{}, err
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Key{}, err
	}
	return Key{Path: resolved, Size: info.Size(), ModTime: info.ModTime().UnixNano()}, nil
}

// Get returns a copy of the cached result for k.
func (c *Cache) Get(k Key) (*detector.Result, bool) {
	res, ok := c.entries.Get(k)
	if !ok {
		return nil, false
	}
	return &res, true
}

// Add stores a copy of res under k.
func (c *Cache) Add(k Key, res *detector.Result) {
	if res != nil {
		c.entries.Add(k, *res)
	}
}

// Detect returns the cached result for path or runs detect and caches its
// result. Failed detections are not cached. The boolean reports a cache hit.
func (c *Cache) Detect(path string, detect DetectFunc) (*detector.Result, bool, error) {
	k, err := KeyFor(path)
	if err != nil {
		return nil, false, err
	}
	if res, ok := c.Get(k); ok {
		c.hits.Add(1)
		return res, true, nil
	}
	c.misses.Add(1)

	res, err := detect(k.Path)
	if err != nil {
		return nil, false, err
	}
	c.Add(k, res)
	return res, false, nil
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Purge drops every cached result.
func (c *Cache) Purge() {
	c.entries.Purge()
}
