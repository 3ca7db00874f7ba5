package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingTableView_LocalEdgesRetainsHighestNonce(t *testing.T) {
	a, b := newTestSigner(), newTestSigner()
	v := NewRoutingTableView(a.id, 16, time.Minute)

	v.AddLocalEdges([]Edge{mintActiveEdge(a, b, 5)})
	v.AddLocalEdges([]Edge{mintActiveEdge(a, b, 3)})

	edge, ok := v.GetLocalEdge(b.id)
	require.True(t, ok)
	assert.EqualValues(t, 5, edge.Nonce)
}

func TestRoutingTableView_FindRouteByPeerAndHash(t *testing.T) {
	local := newTestSigner()
	v := NewRoutingTableView(local.id, 16, time.Minute)
	dest := PeerId{9}
	hop := PeerId{8}

	_, err := v.FindRoute(time.Now(), TargetPeer(dest))
	assert.Equal(t, ErrUnreachable, err)

	v.Update(nil, map[PeerId]PeerId{dest: hop})
	got, err := v.FindRoute(time.Now(), TargetPeer(dest))
	require.NoError(t, err)
	assert.Equal(t, hop, got)

	now := time.Now()
	hash := Hash{1}
	v.AddRouteBack(now, hash, hop)
	got, err = v.FindRoute(now, TargetHash(hash))
	require.NoError(t, err)
	assert.Equal(t, hop, got)

	// Route-back entries are single-use.
	_, err = v.FindRoute(now, TargetHash(hash))
	assert.Equal(t, ErrRouteBackExpired, err)
}

func TestRoutingTableView_AddAccountsTotalOrder(t *testing.T) {
	v := NewRoutingTableView(PeerId{}, 16, time.Minute)
	older := AccountAnnouncement{AccountId: "alice", PeerId: PeerId{1}, EpochId: EpochId{1}, Signature: []byte{1}}
	newer := AccountAnnouncement{AccountId: "alice", PeerId: PeerId{2}, EpochId: EpochId{2}, Signature: []byte{1}}
	stale := AccountAnnouncement{AccountId: "alice", PeerId: PeerId{3}, EpochId: EpochId{1}, Signature: []byte{1}}

	accepted := v.AddAccounts([]AccountAnnouncement{older})
	assert.Len(t, accepted, 1)

	accepted = v.AddAccounts([]AccountAnnouncement{stale})
	assert.Len(t, accepted, 0, "same-or-lower order must be rejected")

	accepted = v.AddAccounts([]AccountAnnouncement{newer})
	assert.Len(t, accepted, 1)

	owner, ok := v.AccountOwner("alice")
	require.True(t, ok)
	assert.Equal(t, PeerId{2}, owner)

	assert.True(t, v.HasEverSeenAccount("alice"))
	assert.False(t, v.HasEverSeenAccount("bob"))
}

func TestRoutingTableView_UpdateDropsPrunedLocalEdges(t *testing.T) {
	a, b := newTestSigner(), newTestSigner()
	v := NewRoutingTableView(a.id, 16, time.Minute)
	edge := mintActiveEdge(a, b, 1)
	v.AddLocalEdges([]Edge{edge})

	v.Update([]Edge{edge}, map[PeerId]PeerId{})
	_, ok := v.GetLocalEdge(b.id)
	assert.False(t, ok)
}
