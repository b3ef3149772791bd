package mesh

import (
	"errors"
	"log/slog"

	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/protocol"
	"github.com/immxrtalbeast/firext/internal/transport"
	"github.com/immxrtalbeast/firext/lib/logger/sl"
)

func (c *Coordinator) handlePoll(res *domain.PollResult) {
	for _, d := range res.Signals {
		switch d.Type {
		case domain.EnvelopeLeave:
			if p, ok := c.peers[d.From]; ok {
				c.teardown(p, "left room")
			}
		case domain.EnvelopeSignal:
			if d.To == c.id {
				c.handleSignal(d)
			}
		}
	}

	present := make(map[string]struct{}, len(res.Peers))
	for _, id := range res.Peers {
		present[id] = struct{}{}
		if id == c.id {
			continue
		}
		if _, ok := c.peers[id]; ok {
			continue
		}
		if !domain.ElectInitiator(c.id, id) {
			continue
		}
		if _, err := c.connect(id, domain.RoleInitiator); err != nil {
			c.log.Warn("failed to start negotiation", slog.String("remote_id", id), sl.Err(err))
		}
	}

	// A handshake never finishes once its remote end has left the room.
	for id, p := range c.peers {
		if _, ok := present[id]; !ok && p.status == domain.PeerStatusNegotiating {
			c.teardown(p, "abandoned")
		}
	}
}

// handleSignal feeds a delivered fragment to the entry for its sender. Only
// the elected responder side creates an entry for an unknown sender; a
// fragment reaching the initiator side without an entry is left over from a
// torn down attempt.
func (c *Coordinator) handleSignal(d domain.Delivery) {
	initiator := domain.ElectInitiator(c.id, d.From)

	if p, ok := c.peers[d.From]; ok {
		err := p.transport.Signal(d.Payload)
		if err == nil {
			return
		}
		if !errors.Is(err, transport.ErrClosed) || initiator {
			c.log.Warn("dropped negotiation fragment", slog.String("remote_id", d.From), sl.Err(err))
			return
		}
		// The old connection is gone but its close has not been dispatched
		// yet. The fragment belongs to a fresh attempt.
		c.teardown(p, "replaced")
	} else if initiator {
		c.log.Debug("ignoring stale negotiation fragment", slog.String("remote_id", d.From))
		return
	}

	p, err := c.connect(d.From, domain.RoleResponder)
	if err != nil {
		c.log.Warn("failed to answer peer", slog.String("remote_id", d.From), sl.Err(err))
		return
	}
	if err := p.transport.Signal(d.Payload); err != nil {
		c.log.Warn("dropped negotiation fragment", slog.String("remote_id", d.From), sl.Err(err))
		c.teardown(p, "rejected fragment")
	}
}

func (c *Coordinator) handleConnect(p *peerConn) {
	if !c.current(p) || !c.transition(p, domain.PeerStatusConnected) {
		return
	}
	c.log.Info("peer connected", slog.String("remote_id", p.remoteID))
	c.refresh()
	c.send(p, protocol.SyncRequest(c.state.Snapshot().IsEmpty()))
}

func (c *Coordinator) handleData(p *peerConn, data []byte) {
	if !c.current(p) {
		return
	}
	// Data can overtake the open notification on the answering side.
	if p.status == domain.PeerStatusNegotiating {
		c.handleConnect(p)
	}
	if p.status != domain.PeerStatusConnected {
		c.log.Debug("ignoring data on inactive peer", slog.String("remote_id", p.remoteID))
		return
	}

	msg, err := c.codec.Decode(data)
	if err != nil {
		c.log.Warn("dropped malformed message", slog.String("remote_id", p.remoteID), sl.Err(err))
		return
	}
	c.apply(p, msg)
}

// apply performs one remote message against the local clipboard.
func (c *Coordinator) apply(p *peerConn, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeText:
		c.state.SetText(msg.Text)
	case protocol.TypeAddImage:
		c.state.AddImage(*msg.Image)
	case protocol.TypeRemoveImage:
		c.state.RemoveImage(msg.ID)
	case protocol.TypeAddFile:
		c.state.AddFile(*msg.File)
	case protocol.TypeRemoveFile:
		c.state.RemoveFile(msg.ID)
	case protocol.TypeClear:
		c.state.Clear()
	case protocol.TypeSyncRequest:
		// When both sides hold a clipboard the initiator's copy wins.
		if msg.Empty || p.role == domain.RoleInitiator {
			c.sendFullSync(p)
		}
	case protocol.TypeFullSync:
		c.state.Replace(*msg.State)
	case protocol.TypeStart:
		if err := p.reassembler.Start(msg); err != nil {
			c.log.Warn("dropped transfer start", slog.String("remote_id", p.remoteID), sl.Err(err))
		}
	case protocol.TypeChunk:
		done, err := p.reassembler.Chunk(msg)
		if err != nil {
			c.log.Warn("dropped chunk", slog.String("remote_id", p.remoteID), sl.Err(err))
			return
		}
		if done != nil {
			c.apply(p, *done)
		}
	}
}
