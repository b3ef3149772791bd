// Package transport defines the peer-to-peer channel the mesh coordinator
// drives. Implementations deliver every callback from their own goroutines.
package transport

import (
	"encoding/json"
	"errors"
)

var (
	ErrChannelNotOpen = errors.New("channel not open")
	ErrClosed         = errors.New("transport closed")
)

// Events are the callbacks a transport fires. Nil callbacks are skipped.
type Events struct {
	// OnSignal carries a negotiation fragment that must reach the remote side.
	OnSignal func(fragment json.RawMessage)
	// OnConnect fires once when the data channel opens.
	OnConnect func()
	OnData    func(data []byte)
	// OnClose fires at most once.
	OnClose func()
	OnError func(err error)
}

func (e Events) Signal(fragment json.RawMessage) {
	if e.OnSignal != nil {
		e.OnSignal(fragment)
	}
}

func (e Events) Connect() {
	if e.OnConnect != nil {
		e.OnConnect()
	}
}

func (e Events) Data(data []byte) {
	if e.OnData != nil {
		e.OnData(data)
	}
}

func (e Events) Close() {
	if e.OnClose != nil {
		e.OnClose()
	}
}

func (e Events) Error(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}

type Transport interface {
	// Signal feeds a fragment received from the remote side.
	Signal(fragment json.RawMessage) error
	Send(data []byte) error
	BufferedAmount() uint64
	Close() error
}

type Factory interface {
	NewTransport(initiator bool, ev Events) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(initiator bool, ev Events) (Transport, error)

func (f FactoryFunc) NewTransport(initiator bool, ev Events) (Transport, error) {
	return f(initiator, ev)
}
