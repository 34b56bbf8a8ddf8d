// Package cache defines the key-value cache contract used for pre-caching and
// invalidation, an in-memory implementation, the wiki key conventions and the
// invalidation cascade.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound is returned by Get for missing or expired keys.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the read cache collaborator.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PatternDeleter is implemented by caches that can evict by glob pattern.
type PatternDeleter interface {
	// DeletePattern removes every key matching the doublestar pattern and
	// returns how many were removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

type item struct {
	value   string
	expires time.Time // zero means no expiry
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]item), now: time.Now}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if !it.expires.IsZero() && !m.now().Before(it.expires) {
		m.mu.Lock()
		if cur, ok := m.items[key]; ok && cur.expires.Equal(it.expires) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return "", ErrNotFound
	}
	return it.value, nil
}

// Put stores value under key. A non-positive ttl never expires.
func (m *Memory) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	it := item{value: value}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !doublestar.ValidatePattern(pattern) {
		return 0, doublestar.ErrBadPattern
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.items {
		if ok, _ := doublestar.Match(pattern, k); ok {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored keys, expired ones included until swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Keys returns every stored key.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.items))
	for k := range m.items {
		out = append(out, k)
	}
	return out
}

// Sweep deletes expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, it := range m.items {
		if !it.expires.IsZero() && !now.Before(it.expires) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}
