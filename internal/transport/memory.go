package transport

import (
	"encoding/json"
	"fmt"
	"sync"
)

type memoryFragment struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Switchboard pairs in-process transports through the same fragment exchange
// a real negotiation uses. It backs local loopback runs and coordinator tests.
type Switchboard struct {
	mu      sync.Mutex
	seq     int
	pending map[string]*MemoryTransport
	live    map[*MemoryTransport]struct{}
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{
		pending: make(map[string]*MemoryTransport),
		live:    make(map[*MemoryTransport]struct{}),
	}
}

func (s *Switchboard) NewTransport(initiator bool, ev Events) (Transport, error) {
	t := &MemoryTransport{
		sb:        s,
		ev:        ev,
		initiator: initiator,
		queue:     make(chan func(), 4096),
		closed:    make(chan struct{}),
	}
	go t.run()

	s.mu.Lock()
	s.live[t] = struct{}{}
	if initiator {
		s.seq++
		t.token = fmt.Sprintf("m%d", s.seq)
		s.pending[t.token] = t
	}
	s.mu.Unlock()

	if initiator {
		t.post(func() { t.ev.Signal(mustFragment("offer", t.token)) })
	}
	return t, nil
}

// Sever closes every live transport as if the network dropped.
func (s *Switchboard) Sever() {
	s.mu.Lock()
	all := make([]*MemoryTransport, 0, len(s.live))
	for t := range s.live {
		all = append(all, t)
	}
	s.mu.Unlock()

	for _, t := range all {
		_ = t.Close()
	}
}

// Live returns the number of transports not yet closed.
func (s *Switchboard) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

type MemoryTransport struct {
	sb        *Switchboard
	ev        Events
	initiator bool
	token     string
	queue     chan func()

	mu        sync.Mutex
	peer      *MemoryTransport
	open      bool
	isClosed  bool
	closed    chan struct{}
	closeOnce sync.Once
}

func (t *MemoryTransport) Signal(fragment json.RawMessage) error {
	var f memoryFragment
	if err := json.Unmarshal(fragment, &f); err != nil {
		return fmt.Errorf("memory transport: %w", err)
	}

	t.mu.Lock()
	if t.isClosed {
		t.mu.Unlock()
		return ErrClosed
	}
	paired := t.peer != nil
	t.mu.Unlock()

	if paired {
		return fmt.Errorf("memory transport: %s after negotiation finished", f.Type)
	}
	if (f.Type == "offer") == t.initiator {
		return fmt.Errorf("memory transport: unexpected %s", f.Type)
	}

	switch f.Type {
	case "offer":
		t.sb.mu.Lock()
		initiator, ok := t.sb.pending[f.Token]
		t.sb.mu.Unlock()
		if !ok {
			return fmt.Errorf("memory transport: unknown offer %q", f.Token)
		}
		t.mu.Lock()
		t.peer = initiator
		t.token = f.Token
		t.mu.Unlock()
		t.post(func() { t.ev.Signal(mustFragment("answer", f.Token)) })
	case "answer":
		t.sb.mu.Lock()
		delete(t.sb.pending, f.Token)
		t.sb.mu.Unlock()

		var responder *MemoryTransport
		t.sb.mu.Lock()
		for other := range t.sb.live {
			if other != t && other.tokenIs(f.Token) {
				responder = other
			}
		}
		t.sb.mu.Unlock()
		if responder == nil {
			return fmt.Errorf("memory transport: no responder for %q", f.Token)
		}

		t.mu.Lock()
		t.peer = responder
		t.open = true
		t.mu.Unlock()
		responder.mu.Lock()
		responder.open = true
		responder.mu.Unlock()

		t.post(t.ev.Connect)
		responder.post(responder.ev.Connect)
	default:
		return fmt.Errorf("memory transport: unexpected fragment %q", f.Type)
	}
	return nil
}

func (t *MemoryTransport) Send(data []byte) error {
	t.mu.Lock()
	peer, open := t.peer, t.open && !t.isClosed
	t.mu.Unlock()
	if !open || peer == nil {
		return ErrChannelNotOpen
	}

	buf := append([]byte(nil), data...)
	if !peer.post(func() { peer.ev.Data(buf) }) {
		return ErrChannelNotOpen
	}
	return nil
}

func (t *MemoryTransport) BufferedAmount() uint64 {
	return 0
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.isClosed {
		t.mu.Unlock()
		return nil
	}
	t.isClosed = true
	peer := t.peer
	t.mu.Unlock()

	t.sb.mu.Lock()
	delete(t.sb.live, t)
	if t.token != "" && t.sb.pending[t.token] == t {
		delete(t.sb.pending, t.token)
	}
	t.sb.mu.Unlock()

	t.finish()
	if peer != nil {
		_ = peer.Close()
	}
	return nil
}

func (t *MemoryTransport) tokenIs(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token == token && t.peer != nil
}

func (t *MemoryTransport) finish() {
	t.closeOnce.Do(func() {
		t.post(t.ev.Close)
		t.post(func() { close(t.closed) })
	})
}

func (t *MemoryTransport) post(fn func()) bool {
	select {
	case <-t.closed:
		return false
	default:
	}
	select {
	case t.queue <- fn:
		return true
	case <-t.closed:
		return false
	}
}

func (t *MemoryTransport) run() {
	for {
		select {
		case fn := <-t.queue:
			fn()
		case <-t.closed:
			return
		}
	}
}

func mustFragment(kind, token string) json.RawMessage {
	b, _ := json.Marshal(memoryFragment{Type: kind, Token: token})
	return b
}
