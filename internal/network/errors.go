package network

import "errors"

// Delivery-failure sentinels. These are never fatal: callers see them via a
// bool/error return and a counter bump, never a panic.
var (
	ErrAlreadyConnected = errors.New("network: peer already connected")
	ErrUnreachable      = errors.New("network: no route to peer")
	ErrRouteBackExpired = errors.New("network: route-back entry expired or absent")
	ErrSelfTargeted     = errors.New("network: message targeted at local peer")
)

// ReasonForBan enumerates why disconnect_and_ban / unregister recorded a ban.
type ReasonForBan int

const (
	BanInvalidEdge ReasonForBan = iota
	BanInvalidSignature
	BanAbusiveBehavior
)

func (r ReasonForBan) String() string {
	switch r {
	case BanInvalidEdge:
		return "InvalidEdge"
	case BanInvalidSignature:
		return "InvalidSignature"
	case BanAbusiveBehavior:
		return "AbusiveBehavior"
	default:
		return "Unknown"
	}
}

// BanError is returned by AddEdgesToRoutingTable when a batch contained an
// edge that failed verification; the caller is expected to ban the peer
// that submitted the batch.
type BanError struct {
	Reason ReasonForBan
}

func (e *BanError) Error() string {
	return "network: submitting peer should be banned: " + e.Reason.String()
}
