// Package netmetrics registers the observability counters for this node's
// network state: connected-to-myself drops, tombstone-sending skips, and
// MessageDropped{reason}, plus a broadcast-failure counter covering
// ConnectionPool's "per-peer failures are silently dropped and counted".
package netmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedToMyself = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netstate_connected_to_myself_total",
		Help: "Number of routed messages dropped because their target was the local peer.",
	})

	EdgeTombstoneSendingSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netstate_edge_tombstone_sending_skipped_total",
		Help: "Number of Removed edges withheld from broadcast during the skip_tombstones window.",
	})

	MessageDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netstate_message_dropped_total",
		Help: "Number of routed messages dropped, labeled by reason.",
	}, []string{"reason"})

	BroadcastSendFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netstate_broadcast_send_failed_total",
		Help: "Number of per-peer broadcast sends that failed, labeled by tier.",
	}, []string{"tier"})
)

func init() {
	prometheus.MustRegister(ConnectedToMyself, EdgeTombstoneSendingSkipped, MessageDropped, BroadcastSendFailed)
}
