package network

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"sync"
	"time"
)

// ed25519Signer is the concrete Signer used across tests: real keys, real
// signatures, so edge verification exercises the actual byte payload the
// graph and routing table sign and check against.
type ed25519Signer struct {
	id  PeerId
	pub ed25519.PublicKey
	key ed25519.PrivateKey
}

func newTestSigner() *ed25519Signer {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return &ed25519Signer{id: PeerId(sha256.Sum256(pub)), pub: pub, key: priv}
}

func (s *ed25519Signer) PeerId() PeerId { return s.id }

func (s *ed25519Signer) Sign(payload []byte) []byte { return ed25519.Sign(s.key, payload) }

// verifyWith builds a VerifyFunc that checks an edge's populated signature
// slots against the given signer set, keyed by PeerId.
func verifyWith(signers map[PeerId]*ed25519Signer) VerifyFunc {
	return func(e Edge) bool {
		check := func(peer PeerId, sig []byte) bool {
			if len(sig) == 0 {
				return true
			}
			signer, ok := signers[peer]
			if !ok {
				return false
			}
			payload := edgeSignPayload(e.Pair.A, e.Pair.B, e.Nonce)
			return ed25519.Verify(signer.pub, payload, sig)
		}
		if len(e.SignatureA) == 0 && len(e.SignatureB) == 0 {
			return false
		}
		return check(e.Pair.A, e.SignatureA) && check(e.Pair.B, e.SignatureB)
	}
}

// mintActiveEdge builds a fully-signed Active edge between two signers at
// the given nonce.
func mintActiveEdge(a, b *ed25519Signer, nonce uint64) Edge {
	pair := NewEdgePair(a.id, b.id)
	payload := edgeSignPayload(pair.A, pair.B, nonce)
	byID := map[PeerId]*ed25519Signer{a.id: a, b.id: b}
	return Edge{
		Pair:       pair,
		Nonce:      nonce,
		SignatureA: ed25519.Sign(byID[pair.A].key, payload),
		SignatureB: ed25519.Sign(byID[pair.B].key, payload),
	}
}

// fakePeerStore records bans/disconnects in memory for assertions.
type fakePeerStore struct {
	mu      sync.Mutex
	banned  map[PeerId]ReasonForBan
	dropped map[PeerId]int
}

func newFakePeerStore() *fakePeerStore {
	return &fakePeerStore{banned: map[PeerId]ReasonForBan{}, dropped: map[PeerId]int{}}
}

func (f *fakePeerStore) PeerBan(now time.Time, peer PeerId, reason ReasonForBan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned[peer] = reason
	return nil
}

func (f *fakePeerStore) PeerDisconnected(now time.Time, peer PeerId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped[peer]++
	return nil
}

func (f *fakePeerStore) wasBanned(peer PeerId) (ReasonForBan, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.banned[peer]
	return r, ok
}

// fakeClient is a no-op Client collaborator.
type fakeClient struct{ info ChainInfo }

func (f fakeClient) ChainInfo() ChainInfo { return f.info }

var errFakeStore = errors.New("fake store error")

// failingPeerStore always errors, so callers can confirm a PeerStore I/O
// failure is logged and swallowed rather than propagated or panicking.
type failingPeerStore struct{}

func (failingPeerStore) PeerBan(time.Time, PeerId, ReasonForBan) error { return errFakeStore }

func (failingPeerStore) PeerDisconnected(time.Time, PeerId) error { return errFakeStore }

// testConfig returns a NetworkConfig tuned for fast, deterministic tests.
func testConfig(id PeerId, key Signer) NetworkConfig {
	cfg := DefaultNetworkConfig()
	cfg.NodeID = id
	cfg.NodeKey = key
	cfg.WaitPeerBeforeRemove = 20 * time.Millisecond
	cfg.UpdateNonceTimeout = 50 * time.Millisecond
	return cfg
}

func stopNoop(*ReasonForBan) {}
