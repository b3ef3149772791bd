package domain

type PeerStatus string

const (
	PeerStatusNegotiating PeerStatus = "negotiating"
	PeerStatusConnected   PeerStatus = "connected"
	PeerStatusClosed      PeerStatus = "closed"
)

type PeerRole string

const (
	RoleInitiator PeerRole = "initiator"
	RoleResponder PeerRole = "responder"
)

var peerTransitions = map[PeerStatus][]PeerStatus{
	PeerStatusNegotiating: {PeerStatusConnected, PeerStatusClosed},
	PeerStatusConnected:   {PeerStatusClosed},
	PeerStatusClosed:      {},
}

// CanTransition reports whether a peer connection may move from one status to
// another.
func (s PeerStatus) CanTransition(to PeerStatus) bool {
	for _, next := range peerTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s PeerStatus) Live() bool {
	return s == PeerStatusNegotiating || s == PeerStatusConnected
}

// ElectInitiator reports whether localID should start negotiation with
// remoteID. Ids are compared as raw bytes.
func ElectInitiator(localID, remoteID string) bool {
	return localID > remoteID
}

// ConnectionStatus is the coarse state reported to the user.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)
