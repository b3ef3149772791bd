package mesh

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/transfer"
	"github.com/immxrtalbeast/firext/internal/transport"
)

// peerConn is one entry of the peer table. Only the dispatch goroutine reads
// or writes its fields.
type peerConn struct {
	remoteID    string
	role        domain.PeerRole
	status      domain.PeerStatus
	transport   transport.Transport
	reassembler *transfer.Reassembler

	// ctx scopes chunk senders to this connection.
	ctx    context.Context
	cancel context.CancelFunc
	// streamMu keeps one chunked transfer at a time on the channel.
	streamMu sync.Mutex
}

func (c *Coordinator) connect(remoteID string, role domain.PeerRole) (*peerConn, error) {
	ctx, cancel := context.WithCancel(c.runCtx)
	p := &peerConn{
		remoteID:    remoteID,
		role:        role,
		status:      domain.PeerStatusNegotiating,
		reassembler: transfer.NewReassembler(),
		ctx:         ctx,
		cancel:      cancel,
	}

	t, err := c.factory.NewTransport(role == domain.RoleInitiator, c.eventsFor(p))
	if err != nil {
		cancel()
		return nil, domain.WrapError("mesh.connect", domain.ErrNegotiationFailure, err)
	}
	p.transport = t
	c.peers[remoteID] = p

	c.log.Info("negotiating with peer",
		slog.String("remote_id", remoteID),
		slog.String("role", string(role)),
	)
	c.refresh()
	return p, nil
}

func (c *Coordinator) eventsFor(p *peerConn) transport.Events {
	return transport.Events{
		OnSignal: func(fragment json.RawMessage) {
			c.post(signalEvent{peer: p, fragment: fragment})
		},
		OnConnect: func() {
			c.post(connectEvent{peer: p})
		},
		OnData: func(data []byte) {
			c.post(dataEvent{peer: p, data: data})
		},
		OnClose: func() {
			c.post(closeEvent{peer: p})
		},
		OnError: func(err error) {
			c.post(errorEvent{peer: p, err: err})
		},
	}
}

// current reports whether p is still the table entry for its remote id.
// Callbacks from a replaced or removed transport fail this check.
func (c *Coordinator) current(p *peerConn) bool {
	return c.peers[p.remoteID] == p
}

// transition moves p to status to. Illegal transitions are logged and refused.
func (c *Coordinator) transition(p *peerConn, to domain.PeerStatus) bool {
	if !p.status.CanTransition(to) {
		c.log.Debug("ignoring illegal peer transition",
			slog.String("remote_id", p.remoteID),
			slog.String("from", string(p.status)),
			slog.String("to", string(to)),
		)
		return false
	}
	p.status = to
	return true
}

// teardown removes p from the table, cancels its chunk senders and discards
// its unfinished incoming transfers before closing the transport.
func (c *Coordinator) teardown(p *peerConn, reason string) {
	if c.current(p) {
		delete(c.peers, p.remoteID)
	}
	if !c.transition(p, domain.PeerStatusClosed) {
		return
	}

	p.cancel()
	p.reassembler.Reset()
	t := p.transport
	go func() { _ = t.Close() }()

	c.log.Info("peer removed",
		slog.String("remote_id", p.remoteID),
		slog.String("reason", reason),
	)
	c.refresh()
}

func (c *Coordinator) teardownAll(reason string) {
	for _, p := range c.peers {
		c.teardown(p, reason)
	}
}
