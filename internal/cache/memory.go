// Package cache provides a small TTL cache used for read-mostly lookups,
// currently the per-album track order the playback machine consults on every
// transition decision.
package cache

import (
	"sync"
	"time"

	"cantina/pkg/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      interface{}
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expiration)
}

// MemoryCache implements a simple in-memory cache
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
	}

	// Start cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &CacheEntry{
		Value:      value,
		Expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*CacheEntry)
}

// Size returns the number of items in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute * 5) // Cleanup every 5 minutes
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		for key, entry := range c.items {
			if entry.IsExpired() {
				delete(c.items, key)
			}
		}
		c.mutex.Unlock()
	}
}

// AlbumTracksCache caches an album's tracks in (disc_number, track_number)
// order, keyed by album id. The order never changes after an album is
// registered; deleted albums simply age out.
type AlbumTracksCache struct {
	*MemoryCache
}

// NewAlbumTracksCache creates an album track-order cache
func NewAlbumTracksCache() *AlbumTracksCache {
	return &AlbumTracksCache{
		MemoryCache: NewMemoryCache(15 * time.Minute),
	}
}

// SetTracks caches an album's ordered track list
func (ac *AlbumTracksCache) SetTracks(albumID string, tracks []models.Track) {
	ac.Set(albumID, tracks)
}

// GetTracks retrieves an album's cached track list
func (ac *AlbumTracksCache) GetTracks(albumID string) ([]models.Track, bool) {
	value, exists := ac.Get(albumID)
	if !exists {
		return nil, false
	}

	tracks, ok := value.([]models.Track)
	return tracks, ok
}
