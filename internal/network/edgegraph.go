package network

import (
	"sync"
	"time"
)

// EdgeGraph stores every known edge and the reachability derived from the
// Active subgraph (C4). Reads take the RLock; AddVerified and Prune take the
// write lock and are serialized against each other and against readers.
type EdgeGraph struct {
	mu      sync.RWMutex
	localID PeerId

	edges      map[EdgePair]Edge
	receivedAt map[EdgePair]time.Time // wall-clock an edge was last (re)retained
	adjacency  map[PeerId]map[PeerId]struct{}

	// lastReachable records the last instant each peer was reachable from
	// localID across a Prune pass; used to age out Active edges to peers
	// that have fallen out of the graph.
	lastReachable map[PeerId]time.Time

	clock func() time.Time
}

// NewEdgeGraph builds an empty graph rooted at localID.
func NewEdgeGraph(localID PeerId) *EdgeGraph {
	return &EdgeGraph{
		localID:       localID,
		edges:         make(map[EdgePair]Edge),
		receivedAt:    make(map[EdgePair]time.Time),
		adjacency:     make(map[PeerId]map[PeerId]struct{}),
		lastReachable: make(map[PeerId]time.Time),
		clock:         time.Now,
	}
}

// Contains reports whether an edge with identical {a, b, nonce} is present.
func (g *EdgeGraph) Contains(e Edge) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cur, ok := g.edges[e.Pair]
	return ok && cur.Nonce == e.Nonce
}

// AddVerified inserts edges whose signatures have already been checked. For
// each pair, only the highest-nonce edge is retained regardless of arrival
// order (edge monotonicity). Returns the edges that
// were newly retained.
func (g *EdgeGraph) AddVerified(edges []Edge) []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	retained := make([]Edge, 0, len(edges))
	changed := false
	for _, e := range edges {
		cur, ok := g.edges[e.Pair]
		if ok && cur.Nonce >= e.Nonce {
			continue
		}
		g.edges[e.Pair] = e
		g.receivedAt[e.Pair] = now
		retained = append(retained, e)
		changed = true
	}
	if changed {
		g.rebuildAdjacencyLocked()
	}
	return retained
}

func (g *EdgeGraph) rebuildAdjacencyLocked() {
	adj := make(map[PeerId]map[PeerId]struct{}, len(g.adjacency))
	for _, e := range g.edges {
		if e.State() != EdgeActive {
			continue
		}
		if adj[e.Pair.A] == nil {
			adj[e.Pair.A] = make(map[PeerId]struct{})
		}
		if adj[e.Pair.B] == nil {
			adj[e.Pair.B] = make(map[PeerId]struct{})
		}
		adj[e.Pair.A][e.Pair.B] = struct{}{}
		adj[e.Pair.B][e.Pair.A] = struct{}{}
	}
	g.adjacency = adj
}

// bfsLocked computes the shortest-hop next-hop table from localID over the
// current Active subgraph, along with the set of reachable peers.
func (g *EdgeGraph) bfsLocked() (map[PeerId]PeerId, map[PeerId]struct{}) {
	nextHop := make(map[PeerId]PeerId)
	visited := map[PeerId]struct{}{g.localID: {}}

	type item struct {
		peer     PeerId
		firstHop PeerId
	}
	queue := make([]item, 0, len(g.adjacency[g.localID]))
	for neighbor := range g.adjacency[g.localID] {
		visited[neighbor] = struct{}{}
		nextHop[neighbor] = neighbor
		queue = append(queue, item{peer: neighbor, firstHop: neighbor})
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for neighbor := range g.adjacency[cur.peer] {
			if _, ok := visited[neighbor]; ok {
				continue
			}
			visited[neighbor] = struct{}{}
			nextHop[neighbor] = cur.firstHop
			queue = append(queue, item{peer: neighbor, firstHop: cur.firstHop})
		}
	}
	return nextHop, visited
}

// Prune removes (a) Active edges whose endpoint has been unreachable from
// localID since pruneUnreachableSince, and (b) Removed edges received before
// pruneEdgesOlderThan. Either bound may be nil to skip that half of the
// sweep. Recomputes and returns the next-hop table after pruning.
func (g *EdgeGraph) Prune(now time.Time, pruneUnreachableSince, pruneEdgesOlderThan *time.Time) ([]Edge, map[PeerId]PeerId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, reachable := g.bfsLocked()
	for p := range reachable {
		g.lastReachable[p] = now
	}

	var pruned []Edge
	for pair, e := range g.edges {
		switch e.State() {
		case EdgeActive:
			if pruneUnreachableSince == nil {
				continue
			}
			other := pair.A
			if pair.A == g.localID {
				other = pair.B
			}
			last, seen := g.lastReachable[other]
			if !seen || last.Before(*pruneUnreachableSince) {
				pruned = append(pruned, e)
				delete(g.edges, pair)
				delete(g.receivedAt, pair)
			}
		case EdgeRemoved:
			if pruneEdgesOlderThan == nil {
				continue
			}
			if ts, ok := g.receivedAt[pair]; ok && ts.Before(*pruneEdgesOlderThan) {
				pruned = append(pruned, e)
				delete(g.edges, pair)
				delete(g.receivedAt, pair)
			}
		}
	}
	if len(pruned) > 0 {
		g.rebuildAdjacencyLocked()
	}
	nextHop, _ := g.bfsLocked()
	return pruned, nextHop
}

// Len reports how many edges are currently retained, for diagnostics.
func (g *EdgeGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
