// Package network implements the node's live view of the overlay network:
// the signed edge graph, the two connection tiers, and the routing state
// derived from them.
package network

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// PeerId is a public-key-derived peer identity. It is a plain value type so
// it can be used directly as a map key.
type PeerId [32]byte

func (p PeerId) String() string {
	return hex.EncodeToString(p[:])[:12]
}

// IsZero reports whether p is the zero value, used as a sentinel for "no peer".
func (p PeerId) IsZero() bool {
	return p == PeerId{}
}

// Hash identifies a routed message for route-back purposes.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])[:12]
}

// AccountId is an opaque validator account identifier. Key discovery for
// accounts is handled by an external collaborator; this type is only ever
// compared and used as a map key here.
type AccountId string

// EpochId identifies the epoch an AccountAnnouncement was made in.
type EpochId [32]byte

// Tier selects one of the two parallel delivery channels.
type Tier int

const (
	T1 Tier = iota
	T2
)

func (t Tier) String() string {
	switch t {
	case T1:
		return "T1"
	case T2:
		return "T2"
	default:
		return "unknown"
	}
}

// EdgePair is the canonical, order-independent representation of an edge's
// two endpoints: A is always the lexicographically smaller PeerId, so the
// pair can be used directly as a map key regardless of which endpoint
// proposed the edge.
type EdgePair struct {
	A, B PeerId
}

// NewEdgePair canonicalizes the unordered pair {a, b}.
func NewEdgePair(a, b PeerId) EdgePair {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return EdgePair{A: a, B: b}
	}
	return EdgePair{A: b, B: a}
}

// EdgeState is the derived Active/Removed state of an Edge.
type EdgeState int

const (
	EdgeActive EdgeState = iota
	EdgeRemoved
)

func (s EdgeState) String() string {
	if s == EdgeActive {
		return "Active"
	}
	return "Removed"
}

// Edge is a signed adjacency witness between two peers. State is derived
// from how many of the two signature slots are populated rather than from
// nonce parity: an Active edge requires both endpoints to have signed,
// a Removed edge only the withdrawing endpoint. Nonce is still what orders
// competing edges for the same pair: see EdgeGraph.AddVerified.
type Edge struct {
	Pair       EdgePair
	Nonce      uint64
	SignatureA []byte // signature by Pair.A over (A, B, Nonce); nil if absent
	SignatureB []byte // signature by Pair.B over (A, B, Nonce); nil if absent
}

// State derives Active/Removed from the populated signature slots.
func (e Edge) State() EdgeState {
	if len(e.SignatureA) > 0 && len(e.SignatureB) > 0 {
		return EdgeActive
	}
	return EdgeRemoved
}

// Next returns the nonce to use for the next local update to this edge.
// Advancing by two tolerates a missed peer proposal landing on the nonce
// in between.
func (e Edge) Next() uint64 {
	return e.Nonce + 2
}

// Other returns the endpoint that is not self, if self is one of the two.
func (e Edge) Other(self PeerId) (PeerId, bool) {
	switch self {
	case e.Pair.A:
		return e.Pair.B, true
	case e.Pair.B:
		return e.Pair.A, true
	default:
		return PeerId{}, false
	}
}

// edgeSignPayload is the canonical byte sequence signed by either endpoint.
func edgeSignPayload(a, b PeerId, nonce uint64) []byte {
	pair := NewEdgePair(a, b)
	buf := make([]byte, 0, 32+32+8)
	buf = append(buf, pair.A[:]...)
	buf = append(buf, pair.B[:]...)
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	return append(buf, nonceBuf[:]...)
}

// Removed synthesizes a unilateral Removed edge: the nonce advances past
// the current one and only localID's signature slot is populated, which is
// sufficient per Edge.State for the result to read as Removed.
func (e Edge) Removed(localID PeerId, signer Signer) Edge {
	nonce := e.Next()
	sig := signer.Sign(edgeSignPayload(e.Pair.A, e.Pair.B, nonce))
	out := Edge{Pair: e.Pair, Nonce: nonce}
	if e.Pair.A == localID {
		out.SignatureA = sig
	} else {
		out.SignatureB = sig
	}
	return out
}

// Signer is the local node's identity and signing key. Edge-signature
// verification is an external pure function; signing is the dual of that
// and is likewise kept behind a narrow interface so the crypto primitive
// is pluggable.
type Signer interface {
	PeerId() PeerId
	Sign(payload []byte) []byte
}

// PartialEdgeInfo is the (nonce, signature) half of an edge proposal; the
// counterparty already knows the pair, only the nonce and the proposer's
// signature need to travel over the wire.
type PartialEdgeInfo struct {
	Nonce     uint64
	Signature []byte
}

// PeerInfo is the static identity of a connection's remote end.
type PeerInfo struct {
	Id PeerId
	// Account is set when the peer has announced itself as a validator
	// account owner; used for TIER1 proxy resolution in send_message_to_account.
	Account *AccountId
}

// WireMessage is anything that can be handed to a Connection's send channel.
// Concrete shapes are Routed, SyncRoutingTable and RequestUpdateNonce.
// Ping/Pong are RoutedMessageBody values carried inside a Routed envelope,
// not WireMessages in their own right.
type WireMessage interface {
	isWireMessage()
}

// RoutedEnvelope carries a signed, routed application message.
type RoutedEnvelope struct {
	Msg *RoutedMessage
}

func (RoutedEnvelope) isWireMessage() {}

// SyncRoutingTableMsg carries edges and/or account announcements being
// gossiped through the overlay.
type SyncRoutingTableMsg struct {
	Edges    []Edge
	Accounts []AccountAnnouncement
}

func (SyncRoutingTableMsg) isWireMessage() {}

// RequestUpdateNonceMsg asks the recipient to re-propose its half of an edge
// at a higher nonce, used during reconciliation.
type RequestUpdateNonceMsg struct {
	Info PartialEdgeInfo
}

func (RequestUpdateNonceMsg) isWireMessage() {}

// PeerIdOrHash is the target of a routed message: either a peer id directly,
// or the hash of a previous message this one is a reply to.
type PeerIdOrHash struct {
	Peer   PeerId
	Hash   Hash
	IsHash bool
}

// TargetPeer builds a PeerIdOrHash addressed directly to a peer.
func TargetPeer(p PeerId) PeerIdOrHash { return PeerIdOrHash{Peer: p} }

// TargetHash builds a PeerIdOrHash addressed by reply hash.
func TargetHash(h Hash) PeerIdOrHash { return PeerIdOrHash{Hash: h, IsHash: true} }

// RoutedMessageBody is the payload of a routed message.
type RoutedMessageBody interface {
	// ExpectResponse reports whether the sender expects a reply addressed
	// back to this message's hash.
	ExpectResponse() bool
	// IsImportant reports whether send_message_to_account should send this
	// body over T2 importantMessageResendCount times instead of once.
	IsImportant() bool
	// IsT1Eligible reports whether Tier::T1.is_allowed_routed would admit
	// this body onto the low-latency tier.
	IsT1Eligible() bool
	// TypeName and Encode together give a deterministic byte representation
	// for signing/hashing; the real wire codec is out of scope.
	TypeName() string
	Encode() []byte
}

// Ping is a liveness probe, always expecting a Pong in response.
type Ping struct {
	Nonce  uint64
	Source PeerId
}

func (Ping) ExpectResponse() bool { return true }
func (Ping) IsImportant() bool    { return false }
func (Ping) IsT1Eligible() bool   { return true }
func (Ping) TypeName() string     { return "Ping" }
func (p Ping) Encode() []byte {
	buf := make([]byte, 0, 8+32)
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], p.Nonce)
	buf = append(buf, nonceBuf[:]...)
	return append(buf, p.Source[:]...)
}

// Pong answers a Ping, addressed back by the Ping's hash.
type Pong struct {
	Nonce  uint64
	Source PeerId
}

func (Pong) ExpectResponse() bool { return false }
func (Pong) IsImportant() bool    { return false }
func (Pong) IsT1Eligible() bool   { return true }
func (Pong) TypeName() string     { return "Pong" }
func (p Pong) Encode() []byte {
	buf := make([]byte, 0, 8+32)
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], p.Nonce)
	buf = append(buf, nonceBuf[:]...)
	return append(buf, p.Source[:]...)
}

// RawRoutedMessage is a message before it has been signed.
type RawRoutedMessage struct {
	Author PeerId
	Target PeerIdOrHash
	Body   RoutedMessageBody
}

// RoutedMessage is a signed, TTL-stamped application message travelling
// through the overlay.
type RoutedMessage struct {
	Author    PeerId
	Target    PeerIdOrHash
	Body      RoutedMessageBody
	TTL       uint8
	CreatedAt time.Time
	Signature []byte
}

func (m *RoutedMessage) signPayload() []byte {
	var buf bytes.Buffer
	buf.Write(m.Author[:])
	if m.Target.IsHash {
		buf.WriteByte(1)
		buf.Write(m.Target.Hash[:])
	} else {
		buf.WriteByte(0)
		buf.Write(m.Target.Peer[:])
	}
	buf.WriteString(m.Body.TypeName())
	buf.Write(m.Body.Encode())
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(m.CreatedAt.UnixNano()))
	buf.Write(tsBuf[:])
	buf.WriteByte(m.TTL)
	return buf.Bytes()
}

// Hash returns the message's content hash, used as the route-back key.
func (m *RoutedMessage) Hash() Hash {
	return sha256.Sum256(m.signPayload())
}

// AccountAnnouncement binds a validator account to a peer id for an epoch.
type AccountAnnouncement struct {
	AccountId AccountId
	PeerId    PeerId
	EpochId   EpochId
	Signature []byte
}

// announcementLess implements the total order (epoch_id, signature) used to
// decide which of two announcements for the same account is newer.
func announcementLess(a, b AccountAnnouncement) bool {
	if !bytes.Equal(a.EpochId[:], b.EpochId[:]) {
		return bytes.Compare(a.EpochId[:], b.EpochId[:]) < 0
	}
	return bytes.Compare(a.Signature, b.Signature) < 0
}

// ChainInfo is the small amount of chain gossip the Client collaborator
// publishes through the network state (genesis id, height); it carries no
// routing semantics of its own.
type ChainInfo struct {
	GenesisHash Hash
	Height      uint64
}

// EventSink receives structured observability events. Optional.
type EventSink interface {
	RoutingTableUpdate(nextHops map[PeerId]PeerId, pruned []Edge)
}

// Client is the consensus/chain collaborator: opaque from the network
// state's point of view, consulted only for chain gossip.
type Client interface {
	ChainInfo() ChainInfo
}

// PeerStore is the on-disk peer reputation/ban collaborator.
type PeerStore interface {
	PeerBan(now time.Time, peer PeerId, reason ReasonForBan) error
	PeerDisconnected(now time.Time, peer PeerId) error
}
