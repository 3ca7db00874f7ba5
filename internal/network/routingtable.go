package network

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

// recentAccountsCap bounds the diagnostic "recently seen account"
// cache independently of how many accounts are actually retained, since
// its only purpose is bounding memory for a debugging aid.
const recentAccountsCap = 4096

// RoutingTableView is the derived forwarding table plus locally-relevant
// state (C5): next-hop per destination, the edges touching the local node,
// the account->peer map, and the T2 route-back cache (C1, reused).
type RoutingTableView struct {
	mu      sync.RWMutex
	localID PeerId

	localEdges map[PeerId]Edge // other peer -> edge touching localID
	nextHop    map[PeerId]PeerId
	accounts   map[AccountId]AccountAnnouncement

	// recentAccounts is a diagnostic trail of every account id that has
	// been accepted into the table, oldest evicted first; it exists so
	// operators can answer "did we ever see this account" after the
	// authoritative entry has since been superseded or pruned, without
	// growing unboundedly the way accounts itself would under churn.
	recentAccounts *simplelru.LRU

	routeBack *RouteBackCache
}

// NewRoutingTableView builds an empty view rooted at localID. capacity/ttl
// configure the embedded T2 route-back cache.
func NewRoutingTableView(localID PeerId, routeBackCapacity int, routeBackTTL time.Duration) *RoutingTableView {
	recent, err := simplelru.NewLRU(recentAccountsCap, nil)
	if err != nil {
		panic(err)
	}
	return &RoutingTableView{
		localID:        localID,
		localEdges:     make(map[PeerId]Edge),
		nextHop:        make(map[PeerId]PeerId),
		accounts:       make(map[AccountId]AccountAnnouncement),
		recentAccounts: recent,
		routeBack:      NewRouteBackCache(routeBackCapacity, routeBackTTL),
	}
}

// GetLocalEdge returns the current edge between the local node and peer, if
// any is known.
func (v *RoutingTableView) GetLocalEdge(peer PeerId) (Edge, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.localEdges[peer]
	return e, ok
}

// LocalEdges returns a snapshot copy of every edge touching the local node,
// keyed by the other endpoint. Used by NetworkState.UpdateLocalEdges.
func (v *RoutingTableView) LocalEdges() map[PeerId]Edge {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[PeerId]Edge, len(v.localEdges))
	for k, e := range v.localEdges {
		out[k] = e
	}
	return out
}

// AddLocalEdges folds edges touching the local node into the local-edges
// view, keeping only the highest-nonce edge per peer: mirrors EdgeGraph's
// retention rule so the two stay consistent.
func (v *RoutingTableView) AddLocalEdges(edges []Edge) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range edges {
		other, ok := e.Other(v.localID)
		if !ok {
			continue
		}
		if cur, exists := v.localEdges[other]; exists && cur.Nonce >= e.Nonce {
			continue
		}
		v.localEdges[other] = e
	}
}

// FindRoute resolves target to the next hop to hand a message to. For a
// PeerId target it consults the next-hop table; for a Hash target it
// consumes the matching T2 route-back entry.
func (v *RoutingTableView) FindRoute(now time.Time, target PeerIdOrHash) (PeerId, error) {
	if target.IsHash {
		peer, ok := v.routeBack.Remove(target.Hash, now)
		if !ok {
			return PeerId{}, ErrRouteBackExpired
		}
		return peer, nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	hop, ok := v.nextHop[target.Peer]
	if !ok {
		return PeerId{}, ErrUnreachable
	}
	return hop, nil
}

// AddRouteBack records prevHop as the previous hop for hash, for a later
// reply to find its way back.
func (v *RoutingTableView) AddRouteBack(now time.Time, hash Hash, prevHop PeerId) {
	v.routeBack.Insert(hash, prevHop, now)
}

// CompareRouteBack reports whether hash currently maps to candidate, without
// consuming the entry.
func (v *RoutingTableView) CompareRouteBack(hash Hash, candidate PeerId, now time.Time) bool {
	return v.routeBack.Compare(hash, candidate, now)
}

// AddAccounts accepts only announcements strictly newer, under the total
// order (epoch_id, signature), than any known announcement for that
// account. Returns the accepted subset.
func (v *RoutingTableView) AddAccounts(anns []AccountAnnouncement) []AccountAnnouncement {
	v.mu.Lock()
	defer v.mu.Unlock()
	accepted := make([]AccountAnnouncement, 0, len(anns))
	for _, ann := range anns {
		cur, ok := v.accounts[ann.AccountId]
		if ok && !announcementLess(cur, ann) {
			continue
		}
		v.accounts[ann.AccountId] = ann
		v.recentAccounts.Add(ann.AccountId, struct{}{})
		accepted = append(accepted, ann)
	}
	return accepted
}

// HasEverSeenAccount reports whether account is still in the diagnostic
// trail of accepted accounts, even if its entry has since been superseded.
// An account evicted from the trail (beyond recentAccountsCap) reads as
// unseen.
func (v *RoutingTableView) HasEverSeenAccount(account AccountId) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.recentAccounts.Contains(account)
}

// AccountOwner returns the peer id currently bound to account, if any.
func (v *RoutingTableView) AccountOwner(account AccountId) (PeerId, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ann, ok := v.accounts[account]
	if !ok {
		return PeerId{}, false
	}
	return ann.PeerId, true
}

// ReachablePeers returns a snapshot of every peer with a known next hop.
func (v *RoutingTableView) ReachablePeers() map[PeerId]struct{} {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[PeerId]struct{}, len(v.nextHop))
	for p := range v.nextHop {
		out[p] = struct{}{}
	}
	return out
}

// GetAccountsKeys returns a snapshot of every account id currently bound.
func (v *RoutingTableView) GetAccountsKeys() []AccountId {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]AccountId, 0, len(v.accounts))
	for a := range v.accounts {
		out = append(out, a)
	}
	return out
}

// Update atomically replaces the derived state after a graph prune: pruned
// local edges are dropped from the local-edges view and the next-hop table
// is swapped in wholesale.
func (v *RoutingTableView) Update(pruned []Edge, nextHops map[PeerId]PeerId) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range pruned {
		other, ok := e.Other(v.localID)
		if !ok {
			continue
		}
		if cur, exists := v.localEdges[other]; exists && cur.Nonce == e.Nonce {
			delete(v.localEdges, other)
		}
	}
	v.nextHop = nextHops
}
