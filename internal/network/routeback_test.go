package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteBackCache_InsertRemove(t *testing.T) {
	c := NewRouteBackCache(4, time.Minute)
	now := time.Now()
	hash := Hash{1}
	prev := PeerId{2}

	c.Insert(hash, prev, now)
	got, ok := c.Remove(hash, now.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, prev, got)

	// Single-use: the same hash is gone after Remove.
	_, ok = c.Remove(hash, now)
	assert.False(t, ok)
}

func TestRouteBackCache_TTLExpiry(t *testing.T) {
	c := NewRouteBackCache(4, time.Second)
	now := time.Now()
	hash := Hash{3}
	c.Insert(hash, PeerId{4}, now)

	_, ok := c.Remove(hash, now.Add(2*time.Second))
	assert.False(t, ok, "entry older than TTL must read as absent")
}

func TestRouteBackCache_CompareDoesNotConsume(t *testing.T) {
	c := NewRouteBackCache(4, time.Minute)
	now := time.Now()
	hash := Hash{5}
	prev := PeerId{6}
	c.Insert(hash, prev, now)

	assert.True(t, c.Compare(hash, prev, now))
	assert.False(t, c.Compare(hash, PeerId{7}, now))

	// Compare must not have consumed the entry.
	got, ok := c.Remove(hash, now)
	require.True(t, ok)
	assert.Equal(t, prev, got)
}

func TestRouteBackCache_EvictsAtCapacity(t *testing.T) {
	c := NewRouteBackCache(2, time.Minute)
	now := time.Now()
	c.Insert(Hash{1}, PeerId{1}, now)
	c.Insert(Hash{2}, PeerId{2}, now)
	c.Insert(Hash{3}, PeerId{3}, now)

	assert.Equal(t, 2, c.Len())
}
