package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeVerifier_VerifyAllMixedBatch(t *testing.T) {
	a, b, c := newTestSigner(), newTestSigner(), newTestSigner()
	signers := map[PeerId]*ed25519Signer{a.id: a, b.id: b, c.id: c}

	good := mintActiveEdge(a, b, 1)
	bad := mintActiveEdge(a, c, 1)
	bad.SignatureB = []byte("forged")

	v, err := NewEdgeVerifier(verifyWith(signers), 4)
	require.NoError(t, err)
	defer v.Release()

	valid, allOK := v.VerifyAll([]Edge{good, bad})
	assert.False(t, allOK)
	require.Len(t, valid, 1)
	assert.Equal(t, good.Pair, valid[0].Pair)
}

func TestEdgeVerifier_EmptyBatch(t *testing.T) {
	v, err := NewEdgeVerifier(func(Edge) bool { return true }, 2)
	require.NoError(t, err)
	defer v.Release()

	valid, allOK := v.VerifyAll(nil)
	assert.Nil(t, valid)
	assert.True(t, allOK)
}

func TestEdgeVerifier_AllValid(t *testing.T) {
	a, b := newTestSigner(), newTestSigner()
	signers := map[PeerId]*ed25519Signer{a.id: a, b.id: b}
	edges := []Edge{mintActiveEdge(a, b, 1), mintActiveEdge(a, b, 3)}

	v, err := NewEdgeVerifier(verifyWith(signers), 4)
	require.NoError(t, err)
	defer v.Release()

	valid, allOK := v.VerifyAll(edges)
	assert.True(t, allOK)
	assert.Len(t, valid, 2)
}
