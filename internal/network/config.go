package network

import "time"

// NetworkConfig collects the tunable options for a NetworkState, including
// the reconciliation timing constants (WaitPeerBeforeRemove,
// UpdateNonceTimeout) and the per-tier resource caps.
type NetworkConfig struct {
	NodeID  PeerId
	NodeKey Signer

	// RoutedMessageTTL is the default TTL stamped on signed routed messages.
	RoutedMessageTTL uint8

	// SkipTombstones, if set, suppresses broadcasting Removed edges for this
	// long after NetworkState was constructed.
	SkipTombstones *time.Duration

	// Validator, if set, is the local node's own validator account id,
	// enabling TIER1 eligibility for outbound traffic.
	Validator *AccountId

	// EventSink receives structured events. Optional.
	EventSink EventSink

	// WaitPeerBeforeRemove is how long update_local_edges waits for a
	// connection to appear before tombstoning a (disconnected, Active) edge.
	WaitPeerBeforeRemove time.Duration

	// UpdateNonceTimeout bounds how long update_local_edges waits for a
	// peer to answer a RequestUpdateNonce before dropping the connection.
	UpdateNonceTimeout time.Duration

	// RouteBackCacheCapacity and RouteBackCacheTTL bound the route-back
	// caches (tier1_route_back and RoutingTableView's T2 cache).
	RouteBackCacheCapacity int
	RouteBackCacheTTL      time.Duration

	// RateLimitBytesPerSec and RateLimitBurstBytes configure the per-tier
	// inbound byte-rate limiter.
	RateLimitBytesPerSec float64
	RateLimitBurstBytes  int

	// InboundHandshakePermits bounds concurrent in-flight inbound
	// handshakes (§5: hard cap of 60).
	InboundHandshakePermits int

	// EdgeVerifierPoolSize bounds the worker pool used for signature
	// verification fan-out.
	EdgeVerifierPoolSize int

	// TierSendBuffer bounds each connection's outbound message queue.
	TierSendBuffer int
}

// DefaultNetworkConfig returns sane resource caps: 60 pending handshakes,
// 20 MiB/s with 40 MiB burst per tier. The three-attempt important-message
// resend count is a package constant, not configurable (see
// importantMessageResendCount).
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		RoutedMessageTTL:        10,
		WaitPeerBeforeRemove:    6 * time.Second,
		UpdateNonceTimeout:      3 * time.Second,
		RouteBackCacheCapacity:  100_000,
		RouteBackCacheTTL:       2 * time.Minute,
		RateLimitBytesPerSec:    20 * 1024 * 1024,
		RateLimitBurstBytes:     40 * 1024 * 1024,
		InboundHandshakePermits: 60,
		EdgeVerifierPoolSize:    8,
		TierSendBuffer:          128,
	}
}

// importantMessageResendCount is how many times an important account
// message is sent over T2; fixed, not configurable.
const importantMessageResendCount = 3

// updateNoncePollInterval is how often resolveConnectedButRemoved re-checks
// whether the peer has answered a RequestUpdateNonce.
const updateNoncePollInterval = 100 * time.Millisecond
