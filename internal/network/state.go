package network

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ground-x/netstate/internal/network/netlog"
	"github.com/ground-x/netstate/internal/network/netmetrics"
)

var stateLogger = netlog.New("network")

// NetworkState is the façade holding C1-C6 plus config and tier selection
// (C7): it exposes send/disconnect/broadcast and runs reconciliation.
type NetworkState struct {
	cfg     NetworkConfig
	localID PeerId

	tier1 *ConnectionPool
	tier2 *ConnectionPool

	tier1RouteBack *RouteBackCache

	graph        *EdgeGraph
	routingTable *RoutingTableView
	verifier     *EdgeVerifier

	tier1Limiter *RateLimiter
	tier2Limiter *RateLimiter

	handshakeSlots chan struct{}

	peerStore PeerStore
	client    Client
	chainInfo atomic.Value // ChainInfo

	txnsSinceLastBlock int64 // atomic, incremented without synchronization per §5

	startedAt time.Time
	clock     func() time.Time
}

// NewNetworkState wires up C1-C6 behind the NetworkState façade.
func NewNetworkState(cfg NetworkConfig, peerStore PeerStore, client Client, verify VerifyFunc) (*NetworkState, error) {
	verifier, err := NewEdgeVerifier(verify, cfg.EdgeVerifierPoolSize)
	if err != nil {
		return nil, err
	}
	s := &NetworkState{
		cfg:            cfg,
		localID:        cfg.NodeID,
		tier1:          NewConnectionPool(T1),
		tier2:          NewConnectionPool(T2),
		tier1RouteBack: NewRouteBackCache(cfg.RouteBackCacheCapacity, cfg.RouteBackCacheTTL),
		graph:          NewEdgeGraph(cfg.NodeID),
		routingTable:   NewRoutingTableView(cfg.NodeID, cfg.RouteBackCacheCapacity, cfg.RouteBackCacheTTL),
		verifier:       verifier,
		tier1Limiter:   NewRateLimiter(cfg.RateLimitBytesPerSec, cfg.RateLimitBurstBytes),
		tier2Limiter:   NewRateLimiter(cfg.RateLimitBytesPerSec, cfg.RateLimitBurstBytes),
		handshakeSlots: make(chan struct{}, cfg.InboundHandshakePermits),
		peerStore:      peerStore,
		client:         client,
		startedAt:      time.Now(),
		clock:          time.Now,
	}
	s.chainInfo.Store(ChainInfo{})
	return s, nil
}

// Close releases the worker pool backing the edge verifier.
func (s *NetworkState) Close() {
	s.verifier.Release()
}

// LocalID returns the local node's peer id.
func (s *NetworkState) LocalID() PeerId { return s.localID }

// Tier1Pool and Tier2Pool expose the connection pools to the owning
// listener/dialer, which is responsible for Insert/Remove as connections
// come up and go down.
func (s *NetworkState) Tier1Pool() *ConnectionPool { return s.tier1 }
func (s *NetworkState) Tier2Pool() *ConnectionPool { return s.tier2 }

// RoutingTable exposes the derived view for diagnostics (reachable_peers,
// get_accounts_keys) without forcing every caller through NetworkState.
func (s *NetworkState) RoutingTable() *RoutingTableView { return s.routingTable }

// RateLimiterFor returns the inbound rate limiter for tier.
func (s *NetworkState) RateLimiterFor(tier Tier) *RateLimiter {
	if tier == T1 {
		return s.tier1Limiter
	}
	return s.tier2Limiter
}

// ChainInfo returns the last chain gossip published by the Client
// collaborator.
func (s *NetworkState) ChainInfo() ChainInfo {
	return s.chainInfo.Load().(ChainInfo)
}

// SetChainInfo publishes new chain gossip, e.g. from Client's block
// notification callback.
func (s *NetworkState) SetChainInfo(info ChainInfo) {
	s.chainInfo.Store(info)
}

// IncTxnsSinceLastBlock bumps the process-wide counter of ForwardTx-like
// messages seen since the last block, used for admission decisions
// elsewhere; reset via ResetTxnsSinceLastBlock on block arrival.
func (s *NetworkState) IncTxnsSinceLastBlock() {
	atomic.AddInt64(&s.txnsSinceLastBlock, 1)
}

// ResetTxnsSinceLastBlock zeroes the counter on block arrival.
func (s *NetworkState) ResetTxnsSinceLastBlock() {
	atomic.StoreInt64(&s.txnsSinceLastBlock, 0)
}

// TxnsSinceLastBlock reads the current counter value.
func (s *NetworkState) TxnsSinceLastBlock() int64 {
	return atomic.LoadInt64(&s.txnsSinceLastBlock)
}

// AcquireHandshakeSlot blocks (respecting ctx) until one of the
// InboundHandshakePermits semaphore slots is free, bounding concurrent
// in-flight inbound handshakes. The caller must invoke the returned release
// function exactly once.
func (s *NetworkState) AcquireHandshakeSlot(ctx context.Context) (release func(), ok bool) {
	select {
	case s.handshakeSlots <- struct{}{}:
		return func() { <-s.handshakeSlots }, true
	case <-ctx.Done():
		return nil, false
	}
}

// ProposeEdge builds this node's half of an edge proposal to peer. nonce
// defaults to the current local edge's Next(), or 1 if no local edge to peer
// is known yet.
func (s *NetworkState) ProposeEdge(peer PeerId, withNonce *uint64) PartialEdgeInfo {
	nonce := uint64(1)
	if withNonce != nil {
		nonce = *withNonce
	} else if edge, ok := s.routingTable.GetLocalEdge(peer); ok {
		nonce = edge.Next()
	}
	sig := s.cfg.NodeKey.Sign(edgeSignPayload(s.localID, peer, nonce))
	return PartialEdgeInfo{Nonce: nonce, Signature: sig}
}

// DisconnectAndBan stops the peer's T2 connection if it is ready; otherwise
// it records the ban directly in the peer store, since there is nothing to
// stop.
func (s *NetworkState) DisconnectAndBan(now time.Time, peer PeerId, reason ReasonForBan) {
	if conn, ok := s.tier2.Get(peer); ok {
		conn.Stop(&reason)
		return
	}
	if err := s.peerStore.PeerBan(now, peer, reason); err != nil {
		stateLogger.Errorw("failed to record peer ban", "peer", peer, "reason", reason, "err", err)
	}
}

// Unregister removes conn from its tier's pool. For T2 only: if the local
// edge to that peer was Active, synthesizes a unilateral Removed edge,
// inserts it, and broadcasts it, then records the disconnect or ban in the
// peer store. T1 carries no edge or ban semantics.
func (s *NetworkState) Unregister(now time.Time, conn *Connection, banReason *ReasonForBan) {
	peer := conn.PeerInfo.Id
	if conn.Tier == T1 {
		s.tier1.Remove(conn)
		return
	}
	s.tier2.Remove(conn)

	if edge, ok := s.routingTable.GetLocalEdge(peer); ok && edge.State() == EdgeActive {
		removed := edge.Removed(s.localID, s.cfg.NodeKey)
		s.routingTable.AddLocalEdges([]Edge{removed})
		s.graph.AddVerified([]Edge{removed})
		s.tier2.BroadcastMessage(SyncRoutingTableMsg{Edges: []Edge{removed}})
	}

	var err error
	if banReason != nil {
		err = s.peerStore.PeerBan(now, peer, *banReason)
	} else {
		err = s.peerStore.PeerDisconnected(now, peer)
	}
	if err != nil {
		stateLogger.Errorw("failed to record peer data", "peer", peer, "err", err)
	}
}

// MessageForMe reports whether target is addressed to the local peer,
// either directly or via a route-back entry pointing back at us.
func (s *NetworkState) MessageForMe(target PeerIdOrHash) bool {
	if !target.IsHash {
		return target.Peer == s.localID
	}
	return s.routingTable.CompareRouteBack(target.Hash, s.localID, s.clock())
}

func (s *NetworkState) signMessage(now time.Time, raw RawRoutedMessage) *RoutedMessage {
	m := &RoutedMessage{
		Author:    raw.Author,
		Target:    raw.Target,
		Body:      raw.Body,
		TTL:       s.cfg.RoutedMessageTTL,
		CreatedAt: now,
	}
	m.Signature = s.cfg.NodeKey.Sign(m.signPayload())
	return m
}

// SendMessageToPeer routes a signed message to its target over tier:
// self-targeted messages are always dropped; T1 resolves directly or via
// its own route-back cache; T2 resolves via the routing table and
// registers a route-back entry when the local node expects a reply.
func (s *NetworkState) SendMessageToPeer(now time.Time, tier Tier, msg *RoutedMessage) bool {
	if !msg.Target.IsHash && msg.Target.Peer == s.localID {
		netmetrics.ConnectedToMyself.Inc()
		stateLogger.Debugw("drop signed message to myself", "author", msg.Author)
		return false
	}

	switch tier {
	case T1:
		var peer PeerId
		if msg.Target.IsHash {
			p, ok := s.tier1RouteBack.Remove(msg.Target.Hash, now)
			if !ok {
				return false
			}
			peer = p
		} else {
			peer = msg.Target.Peer
		}
		return s.tier1.SendMessage(peer, RoutedEnvelope{Msg: msg})

	case T2:
		peer, err := s.routingTable.FindRoute(now, msg.Target)
		if err != nil {
			netmetrics.MessageDropped.WithLabelValues("NoRouteFound").Inc()
			stateLogger.Debugw("drop signed message, no route found",
				"to", msg.Target, "reason", err, "known_peers", len(s.routingTable.ReachablePeers()))
			return false
		}
		if msg.Author == s.localID && msg.Body.ExpectResponse() {
			s.routingTable.AddRouteBack(now, msg.Hash(), s.localID)
		}
		return s.tier2.SendMessage(peer, RoutedEnvelope{Msg: msg})

	default:
		return false
	}
}

// SendPing sends a Ping to target over tier, registering a route-back entry
// for the expected Pong when routed over T2.
func (s *NetworkState) SendPing(now time.Time, tier Tier, nonce uint64, target PeerId) bool {
	msg := s.signMessage(now, RawRoutedMessage{Author: s.localID, Target: TargetPeer(target), Body: Ping{Nonce: nonce, Source: s.localID}})
	return s.SendMessageToPeer(now, tier, msg)
}

// SendPong replies to the message hashed to target with a Pong.
func (s *NetworkState) SendPong(now time.Time, tier Tier, nonce uint64, target Hash) bool {
	msg := s.signMessage(now, RawRoutedMessage{Author: s.localID, Target: TargetHash(target), Body: Pong{Nonce: nonce, Source: s.localID}})
	return s.SendMessageToPeer(now, tier, msg)
}

// tier1Proxy finds a T1-ready connection whose announced validator account
// is account, used by send_message_to_account to best-effort double up
// important traffic over the low-latency tier. T1 carries no routing graph,
// so this is a direct scan of the (small) T1 pool, not a routing lookup.
func (s *NetworkState) tier1Proxy(account AccountId) (PeerId, *Connection, bool) {
	for peer, conn := range s.tier1.Load() {
		if conn.PeerInfo.Account != nil && *conn.PeerInfo.Account == account {
			return peer, conn, true
		}
	}
	return PeerId{}, nil, false
}

// SendMessageToAccount resolves account to its current owning peer and
// signs+sends body to it. T1-eligible bodies are additionally best-effort
// copied over a direct T1 proxy connection, if one exists; important bodies
// are sent over T2 importantMessageResendCount times, and the call reports
// true if any of those sends succeeded.
func (s *NetworkState) SendMessageToAccount(now time.Time, account AccountId, body RoutedMessageBody) bool {
	if body.IsT1Eligible() {
		if target, conn, ok := s.tier1Proxy(account); ok {
			raw := RawRoutedMessage{Author: s.localID, Target: TargetPeer(target), Body: body}
			conn.SendMessage(RoutedEnvelope{Msg: s.signMessage(now, raw)})
		}
	}

	owner, ok := s.routingTable.AccountOwner(account)
	if !ok {
		netmetrics.MessageDropped.WithLabelValues("UnknownAccount").Inc()
		stateLogger.Debugw("drop message, unknown account", "account", account, "known_accounts", len(s.routingTable.GetAccountsKeys()))
		return false
	}

	msg := s.signMessage(now, RawRoutedMessage{Author: s.localID, Target: TargetPeer(owner), Body: body})
	if !body.IsImportant() {
		return s.SendMessageToPeer(now, T2, msg)
	}
	success := false
	for i := 0; i < importantMessageResendCount; i++ {
		if s.SendMessageToPeer(now, T2, msg) {
			success = true
		}
	}
	return success
}

// BroadcastAccounts accepts only strictly-newer announcements and broadcasts
// that accepted subset to every T2 peer as a routing-table update.
func (s *NetworkState) BroadcastAccounts(anns []AccountAnnouncement) {
	accepted := s.routingTable.AddAccounts(anns)
	stateLogger.Debugw("received account announcements", "new", len(accepted), "submitted", len(anns))
	if len(accepted) > 0 {
		s.tier2.BroadcastMessage(SyncRoutingTableMsg{Accounts: accepted})
	}
}

// AddEdgesToRoutingTable verifies and inserts edges, broadcasting the
// freshly-retained subset to every T2 peer. Returns a *BanError if any edge
// in the batch failed verification, so the caller can ban the submitting
// peer; valid edges from the same batch are still retained and broadcast.
//
// Insertion always includes Removed edges so the graph stays correct; only
// the broadcast payload is filtered to Active-only during the
// skip-tombstones window right after startup.
func (s *NetworkState) AddEdgesToRoutingTable(edges []Edge) error {
	fresh := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if !s.graph.Contains(e) {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	valid, allOK := s.verifier.VerifyAll(fresh)

	s.routingTable.AddLocalEdges(valid)
	retained := s.graph.AddVerified(valid)

	broadcastSet := retained
	if s.cfg.SkipTombstones != nil && s.clock().Before(s.startedAt.Add(*s.cfg.SkipTombstones)) {
		filtered := make([]Edge, 0, len(retained))
		skipped := 0
		for _, e := range retained {
			if e.State() == EdgeActive {
				filtered = append(filtered, e)
			} else {
				skipped++
			}
		}
		broadcastSet = filtered
		if skipped > 0 {
			netmetrics.EdgeTombstoneSendingSkipped.Add(float64(skipped))
		}
	}
	if len(broadcastSet) > 0 {
		s.tier2.BroadcastMessage(SyncRoutingTableMsg{Edges: broadcastSet})
	}

	if !allOK {
		return &BanError{Reason: BanInvalidEdge}
	}
	return nil
}

// UpdateRoutingTable requests a prune from the graph and atomically updates
// the derived view with the result, then emits a RoutingTableUpdate event.
func (s *NetworkState) UpdateRoutingTable(pruneUnreachableSince, pruneEdgesOlderThan *time.Time) {
	pruned, nextHops := s.graph.Prune(s.clock(), pruneUnreachableSince, pruneEdgesOlderThan)
	s.routingTable.Update(pruned, nextHops)
	if s.cfg.EventSink != nil {
		s.cfg.EventSink.RoutingTableUpdate(nextHops, pruned)
	}
}

// UpdateLocalEdges reconciles the local connection set against the
// advertised edge set: a connected-but-Removed edge gets a nonce-update
// request and a bounded wait before the connection is
// stopped; a disconnected-but-Active edge is tombstoned after a grace
// period if the peer still hasn't reconnected. Every local edge is handled
// concurrently; the call returns once all of them have resolved or ctx is
// cancelled.
func (s *NetworkState) UpdateLocalEdges(ctx context.Context) error {
	localEdges := s.routingTable.LocalEdges()
	ready := s.tier2.Load()

	g, gctx := errgroup.WithContext(ctx)
	for other, edge := range localEdges {
		other, edge := other, edge
		_, connected := ready[other]
		switch {
		case connected && edge.State() == EdgeRemoved:
			g.Go(func() error { return s.resolveConnectedButRemoved(gctx, other, edge) })
		case !connected && edge.State() == EdgeActive:
			g.Go(func() error { return s.resolveDisconnectedButActive(gctx, other, edge) })
		}
	}
	return g.Wait()
}

func (s *NetworkState) resolveConnectedButRemoved(ctx context.Context, other PeerId, edge Edge) error {
	nonce := edge.Next()
	sig := s.cfg.NodeKey.Sign(edgeSignPayload(s.localID, other, nonce))
	s.tier2.SendMessage(other, RequestUpdateNonceMsg{Info: PartialEdgeInfo{Nonce: nonce, Signature: sig}})

	deadline := s.clock().Add(s.cfg.UpdateNonceTimeout)
	ticker := time.NewTicker(updateNoncePollInterval)
	defer ticker.Stop()
	for {
		if cur, ok := s.routingTable.GetLocalEdge(other); ok && cur.Nonce > edge.Nonce {
			return nil
		}
		if s.clock().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if conn, ok := s.tier2.Get(other); ok {
		conn.Stop(nil)
	}
	return nil
}

func (s *NetworkState) resolveDisconnectedButActive(ctx context.Context, other PeerId, edge Edge) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.WaitPeerBeforeRemove):
	}
	if _, ok := s.tier2.Get(other); ok {
		return nil
	}
	removed := edge.Removed(s.localID, s.cfg.NodeKey)
	s.routingTable.AddLocalEdges([]Edge{removed})
	s.graph.AddVerified([]Edge{removed})
	s.tier2.BroadcastMessage(SyncRoutingTableMsg{Edges: []Edge{removed}})
	return nil
}
