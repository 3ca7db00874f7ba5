package network

import (
	"sync"
	"sync/atomic"

	"github.com/ground-x/netstate/internal/network/netlog"
	"github.com/ground-x/netstate/internal/network/netmetrics"
)

var connPoolLogger = netlog.New("connpool")

// Connection is a ready, tier-bound channel to a remote peer (owned by
// ConnectionPool for its lifetime). The stop field is the external
// PeerActor's stop handle: calling Stop is idempotent, and the handle is
// only ever invoked once.
type Connection struct {
	PeerInfo PeerInfo
	Tier     Tier

	send    chan WireMessage
	stop    func(reason *ReasonForBan)
	stopped int32
}

// NewConnection wires a Connection around an externally owned stop handle.
// sendBuffer bounds the outbound queue; sends beyond it are dropped, not
// blocked on, matching ConnectionPool.SendMessage's best-effort contract.
func NewConnection(info PeerInfo, tier Tier, sendBuffer int, stop func(reason *ReasonForBan)) *Connection {
	return &Connection{
		PeerInfo: info,
		Tier:     tier,
		send:     make(chan WireMessage, sendBuffer),
		stop:     stop,
	}
}

// SendChannel exposes the outbound queue for the owning peer session to
// drain; sends preserve per-peer FIFO order since there is exactly one
// channel per connection.
func (c *Connection) SendChannel() <-chan WireMessage {
	return c.send
}

// SendMessage enqueues msg without blocking; returns false if the queue is
// full.
func (c *Connection) SendMessage(msg WireMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Stop signals the connection to terminate. Idempotent: only the first call
// invokes the underlying stop handle.
func (c *Connection) Stop(reason *ReasonForBan) {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		if c.stop != nil {
			c.stop(reason)
		}
	}
}

// connSnapshot is an immutable view published after every Insert/Remove, so
// readers never block a writer and vice versa (design note §9).
type connSnapshot struct {
	ready map[PeerId]*Connection
}

// ConnectionPool is the registry of ready connections for one tier (C3).
// Readers take a snapshot and iterate lock-free; Insert/Remove publish a new
// snapshot under a single writer mutex.
type ConnectionPool struct {
	tier     Tier
	writeMu  sync.Mutex
	snapshot atomic.Value // *connSnapshot
}

// NewConnectionPool builds an empty pool for the given tier.
func NewConnectionPool(tier Tier) *ConnectionPool {
	p := &ConnectionPool{tier: tier}
	p.snapshot.Store(&connSnapshot{ready: map[PeerId]*Connection{}})
	return p
}

// Load returns the current snapshot map. Callers must treat it as read-only.
func (p *ConnectionPool) Load() map[PeerId]*Connection {
	return p.snapshot.Load().(*connSnapshot).ready
}

// Insert registers conn, failing with ErrAlreadyConnected if the peer id is
// already present.
func (p *ConnectionPool) Insert(conn *Connection) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	cur := p.Load()
	if _, ok := cur[conn.PeerInfo.Id]; ok {
		return ErrAlreadyConnected
	}
	next := make(map[PeerId]*Connection, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[conn.PeerInfo.Id] = conn
	p.snapshot.Store(&connSnapshot{ready: next})
	return nil
}

// Remove unregisters conn. No-op if it is not present (e.g. already removed
// by a concurrent call).
func (p *ConnectionPool) Remove(conn *Connection) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	cur := p.Load()
	if _, ok := cur[conn.PeerInfo.Id]; !ok {
		return
	}
	next := make(map[PeerId]*Connection, len(cur))
	for k, v := range cur {
		if k == conn.PeerInfo.Id {
			continue
		}
		next[k] = v
	}
	p.snapshot.Store(&connSnapshot{ready: next})
}

// Get returns the ready connection for peer, if any.
func (p *ConnectionPool) Get(peer PeerId) (*Connection, bool) {
	c, ok := p.Load()[peer]
	return c, ok
}

// Len reports the number of ready connections.
func (p *ConnectionPool) Len() int {
	return len(p.Load())
}

// SendMessage returns true iff peer is ready and its send channel accepted
// msg.
func (p *ConnectionPool) SendMessage(peer PeerId, msg WireMessage) bool {
	conn, ok := p.Get(peer)
	if !ok {
		return false
	}
	return conn.SendMessage(msg)
}

// BroadcastMessage is a best-effort fan-out to every ready peer; per-peer
// failures are silently dropped and counted, never retried.
func (p *ConnectionPool) BroadcastMessage(msg WireMessage) {
	for _, conn := range p.Load() {
		if !conn.SendMessage(msg) {
			netmetrics.BroadcastSendFailed.WithLabelValues(p.tier.String()).Inc()
			connPoolLogger.Debugw("broadcast send dropped, peer queue full", "peer", conn.PeerInfo.Id, "tier", p.tier)
		}
	}
}
