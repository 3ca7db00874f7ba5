package network

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
)

// Ed25519Identity is the default Signer: a node's PeerId is the SHA-256 of
// its ed25519 public key, and Sign produces a raw ed25519 signature over the
// caller-supplied payload.
type Ed25519Identity struct {
	pub ed25519.PublicKey
	key ed25519.PrivateKey
}

// NewEd25519Identity generates a fresh keypair.
func NewEd25519Identity() (*Ed25519Identity, error) {
	pub, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "generate ed25519 identity")
	}
	return &Ed25519Identity{pub: pub, key: key}, nil
}

// LoadOrCreateEd25519Identity reads a hex-encoded private key from path, or
// generates and persists a new one if the file does not exist.
func LoadOrCreateEd25519Identity(path string) (*Ed25519Identity, error) {
	raw, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		id, genErr := NewEd25519Identity()
		if genErr != nil {
			return nil, genErr
		}
		encoded := hex.EncodeToString(id.key)
		if writeErr := ioutil.WriteFile(path, []byte(encoded), 0600); writeErr != nil {
			return nil, errors.Wrapf(writeErr, "persist identity to %s", path)
		}
		return id, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read identity from %s", path)
	}
	decoded, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "decode identity at %s", path)
	}
	key := ed25519.PrivateKey(decoded)
	return &Ed25519Identity{pub: key.Public().(ed25519.PublicKey), key: key}, nil
}

// PeerId derives the node's identity from its public key.
func (id *Ed25519Identity) PeerId() PeerId {
	return PeerId(sha256.Sum256(id.pub))
}

// Sign produces a raw ed25519 signature over payload.
func (id *Ed25519Identity) Sign(payload []byte) []byte {
	return ed25519.Sign(id.key, payload)
}

// PeerKeyRegistry maps known peer ids to their ed25519 public keys, learned
// out of band (handshake, bootstrap config). It supplies the VerifyFunc an
// EdgeVerifier needs without this package having to know how keys were
// discovered.
type PeerKeyRegistry struct {
	keys map[PeerId]ed25519.PublicKey
}

// NewPeerKeyRegistry builds an empty registry.
func NewPeerKeyRegistry() *PeerKeyRegistry {
	return &PeerKeyRegistry{keys: make(map[PeerId]ed25519.PublicKey)}
}

// Put records peer's public key.
func (r *PeerKeyRegistry) Put(peer PeerId, pub ed25519.PublicKey) {
	r.keys[peer] = pub
}

// VerifyEdge checks every populated signature slot of e against its
// claimed signer's registered public key; an edge from an unknown peer
// never verifies.
func (r *PeerKeyRegistry) VerifyEdge(e Edge) bool {
	if len(e.SignatureA) == 0 && len(e.SignatureB) == 0 {
		return false
	}
	payload := edgeSignPayload(e.Pair.A, e.Pair.B, e.Nonce)
	check := func(peer PeerId, sig []byte) bool {
		if len(sig) == 0 {
			return true
		}
		pub, ok := r.keys[peer]
		if !ok {
			return false
		}
		return ed25519.Verify(pub, payload, sig)
	}
	return check(e.Pair.A, e.SignatureA) && check(e.Pair.B, e.SignatureB)
}
