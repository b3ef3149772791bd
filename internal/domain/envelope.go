package domain

import "encoding/json"

type EnvelopeType string

const (
	EnvelopeSignal EnvelopeType = "signal"
	EnvelopeJoin   EnvelopeType = "join"
	EnvelopeLeave  EnvelopeType = "leave"
)

func (t EnvelopeType) Valid() bool {
	switch t {
	case EnvelopeSignal, EnvelopeJoin, EnvelopeLeave:
		return true
	}
	return false
}

// Envelope is one queued relay message. Payload is opaque to the relay.
type Envelope struct {
	From    string              `json:"from"`
	To      string              `json:"to,omitempty"`
	Type    EnvelopeType        `json:"type"`
	Payload json.RawMessage     `json:"signal,omitempty"`
	SeenBy  map[string]struct{} `json:"-"`
}

func NewSignalEnvelope(from, to string, payload json.RawMessage) *Envelope {
	return &Envelope{
		From:    from,
		To:      to,
		Type:    EnvelopeSignal,
		Payload: payload,
		SeenBy:  make(map[string]struct{}),
	}
}

func NewPresenceEnvelope(t EnvelopeType, from string) *Envelope {
	return &Envelope{
		From:   from,
		Type:   t,
		SeenBy: make(map[string]struct{}),
	}
}

func (e *Envelope) IsDirected() bool {
	return e.To != ""
}

func (e *Envelope) SeenByPeer(id string) bool {
	_, ok := e.SeenBy[id]
	return ok
}

func (e *Envelope) MarkSeen(id string) {
	if e.SeenBy == nil {
		e.SeenBy = make(map[string]struct{})
	}
	e.SeenBy[id] = struct{}{}
}

// DeliverableTo reports whether a poll by peerID should receive e.
func (e *Envelope) DeliverableTo(peerID string) bool {
	if e.IsDirected() {
		return e.To == peerID
	}
	return e.From != peerID && !e.SeenByPeer(peerID)
}

// Delivery is the wire view of an envelope handed to a polling peer.
type Delivery struct {
	From    string          `json:"from"`
	To      string          `json:"to,omitempty"`
	Type    EnvelopeType    `json:"type"`
	Payload json.RawMessage `json:"signal,omitempty"`
}

func (e *Envelope) Delivery() Delivery {
	return Delivery{From: e.From, To: e.To, Type: e.Type, Payload: e.Payload}
}

// PollResult is what a poll returns.
type PollResult struct {
	Peers   []string   `json:"peers"`
	Signals []Delivery `json:"signals"`
}
