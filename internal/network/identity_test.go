package network

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateEd25519Identity_PersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	first, err := LoadOrCreateEd25519Identity(path)
	require.NoError(t, err)

	second, err := LoadOrCreateEd25519Identity(path)
	require.NoError(t, err)

	assert.Equal(t, first.PeerId(), second.PeerId(), "reloading an existing identity file must yield the same peer id")
}

func TestPeerKeyRegistry_VerifyEdge(t *testing.T) {
	a, err := NewEd25519Identity()
	require.NoError(t, err)
	b, err := NewEd25519Identity()
	require.NoError(t, err)

	registry := NewPeerKeyRegistry()
	registry.Put(a.PeerId(), a.pub)
	registry.Put(b.PeerId(), b.pub)

	pair := NewEdgePair(a.PeerId(), b.PeerId())
	payload := edgeSignPayload(pair.A, pair.B, 1)

	byID := map[PeerId]*Ed25519Identity{a.PeerId(): a, b.PeerId(): b}
	edge := Edge{
		Pair:       pair,
		Nonce:      1,
		SignatureA: byID[pair.A].Sign(payload),
		SignatureB: byID[pair.B].Sign(payload),
	}
	assert.True(t, registry.VerifyEdge(edge))

	edge.SignatureB = []byte("forged")
	assert.False(t, registry.VerifyEdge(edge))
}
