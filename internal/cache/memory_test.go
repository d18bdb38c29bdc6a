package cache

import (
	"testing"
	"time"

	"cantina/pkg/models"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	c.Set("key", 42)
	value, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, 42, value)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestMemoryCacheExpiration(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)

	c.Set("key", "value")
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 2, c.Size())

	c.Delete("a")
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestAlbumTracksCache(t *testing.T) {
	c := NewAlbumTracksCache()

	tracks := []models.Track{
		{ID: "t1", AlbumID: "a1", DiscNumber: 1, TrackNumber: 1},
		{ID: "t2", AlbumID: "a1", DiscNumber: 1, TrackNumber: 2},
	}
	c.SetTracks("a1", tracks)

	got, ok := c.GetTracks("a1")
	assert.True(t, ok)
	assert.Equal(t, tracks, got)

	_, ok = c.GetTracks("a2")
	assert.False(t, ok)
}
