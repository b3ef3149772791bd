package rtc

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/transport"
	"github.com/immxrtalbeast/firext/lib/logger/sl"
	"github.com/pion/webrtc/v4"
)

// Peer is one WebRTC peer connection carrying a single ordered data channel.
// Remote fragments are applied in arrival order on a worker goroutine.
type Peer struct {
	pc        *webrtc.PeerConnection
	ev        transport.Events
	label     string
	initiator bool
	log       *slog.Logger

	mu            sync.Mutex
	dc            *webrtc.DataChannel
	localReady    bool
	pendingLocal  []webrtc.ICECandidateInit
	remoteSet     bool
	pendingRemote []webrtc.ICECandidateInit
	inbox         []Fragment
	closed        bool

	emitMu      sync.Mutex
	wake        chan struct{}
	done        chan struct{}
	connectOnce sync.Once
	closeOnce   sync.Once
}

func newPeer(pc *webrtc.PeerConnection, initiator bool, label string, ev transport.Events, log *slog.Logger) (*Peer, error) {
	p := &Peer{
		pc:        pc,
		ev:        ev,
		label:     label,
		initiator: initiator,
		log:       log,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	pc.OnICECandidate(p.handleLocalCandidate)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("connection state changed", slog.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateFailed:
			p.ev.Error(domain.NewError("rtc.connection", domain.ErrNegotiationFailure, "ice failed"))
			go p.Close()
		case webrtc.PeerConnectionStateClosed:
			p.fireClose()
		}
	})

	if initiator {
		ordered := true
		dc, err := pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return nil, domain.WrapError("rtc.create_data_channel", domain.ErrNegotiationFailure, err)
		}
		p.attach(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != label {
				p.log.Warn("ignoring unexpected data channel", slog.String("label", dc.Label()))
				return
			}
			p.attach(dc)
		})
	}

	go p.work()
	if initiator {
		go p.offer()
	}

	return p, nil
}

// Signal queues a fragment from the remote side.
func (p *Peer) Signal(fragment json.RawMessage) error {
	f, err := parseFragment(fragment)
	if err != nil {
		return domain.WrapError("rtc.signal", domain.ErrMalformedMessage, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return transport.ErrClosed
	}
	p.inbox = append(p.inbox, f)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transport.ErrChannelNotOpen
	}
	return dc.Send(data)
}

func (p *Peer) BufferedAmount() uint64 {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil {
		return 0
	}
	return dc.BufferedAmount()
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	err := p.pc.Close()
	p.fireClose()
	return err
}

func (p *Peer) attach(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.connectOnce.Do(func() {
			p.log.Debug("data channel open")
			p.ev.Connect()
		})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.ev.Data(msg.Data)
	})
	dc.OnClose(func() {
		p.fireClose()
	})
}

func (p *Peer) fireClose() {
	p.closeOnce.Do(func() {
		p.ev.Close()
	})
}

func (p *Peer) fail(op string, err error) {
	p.log.Warn("negotiation failed", slog.String("step", op), sl.Err(err))
	p.ev.Error(domain.WrapError(op, domain.ErrNegotiationFailure, err))
	_ = p.Close()
}

func (p *Peer) offer() {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		p.fail("rtc.create_offer", err)
		return
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		p.fail("rtc.set_local_description", err)
		return
	}
	p.emitLocalDescription(offer)
}

func (p *Peer) answer() {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		p.fail("rtc.create_answer", err)
		return
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		p.fail("rtc.set_local_description", err)
		return
	}
	p.emitLocalDescription(answer)
}

// emitLocalDescription sends desc followed by every candidate gathered before
// it, so the remote side never sees a candidate ahead of the description.
func (p *Peer) emitLocalDescription(desc webrtc.SessionDescription) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.emit(descriptionFragment(desc))

	p.mu.Lock()
	pending := p.pendingLocal
	p.pendingLocal = nil
	p.localReady = true
	p.mu.Unlock()

	for _, c := range pending {
		p.emit(candidateFragment(c))
	}
}

func (p *Peer) handleLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()

	p.mu.Lock()
	if !p.localReady {
		p.pendingLocal = append(p.pendingLocal, init)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.emitMu.Lock()
	p.emit(candidateFragment(init))
	p.emitMu.Unlock()
}

func (p *Peer) emit(f Fragment) {
	b, err := json.Marshal(f)
	if err != nil {
		p.log.Error("failed to encode fragment", sl.Err(err))
		return
	}
	p.ev.Signal(b)
}

func (p *Peer) work() {
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}

		for {
			p.mu.Lock()
			if len(p.inbox) == 0 || p.closed {
				p.mu.Unlock()
				break
			}
			f := p.inbox[0]
			p.inbox = p.inbox[1:]
			p.mu.Unlock()

			p.apply(f)
		}
	}
}

func (p *Peer) apply(f Fragment) {
	switch f.Type {
	case fragmentOffer:
		if p.initiator {
			p.log.Warn("initiator received an offer")
			return
		}
		if err := p.setRemote(f); err != nil {
			p.fail("rtc.set_remote_description", err)
			return
		}
		p.answer()
	case fragmentAnswer:
		if !p.initiator {
			p.log.Warn("responder received an answer")
			return
		}
		if err := p.setRemote(f); err != nil {
			p.fail("rtc.set_remote_description", err)
		}
	case fragmentCandidate:
		p.mu.Lock()
		if !p.remoteSet {
			p.pendingRemote = append(p.pendingRemote, *f.Candidate)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		if err := p.pc.AddICECandidate(*f.Candidate); err != nil {
			p.log.Warn("failed to add candidate", sl.Err(err))
		}
	}
}

func (p *Peer) setRemote(f Fragment) error {
	if err := p.pc.SetRemoteDescription(f.description()); err != nil {
		return err
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pendingRemote
	p.pendingRemote = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.log.Warn("failed to add queued candidate", sl.Err(err))
		}
	}
	return nil
}
