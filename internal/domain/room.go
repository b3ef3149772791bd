package domain

import (
	"sort"
	"sync"
	"time"
)

// Room is a signaling rendezvous keyed by its code. Every field is guarded by
// Mutex; a room removed by the collector is marked closed and must not be
// mutated again.
type Room struct {
	Mutex        sync.Mutex
	Code         string
	Peers        map[string]time.Time
	Signals      []*Envelope
	CreatedAt    time.Time
	LastActivity time.Time
	closed       bool
}

func NewRoom(code string, now time.Time) *Room {
	return &Room{
		Code:         code,
		Peers:        make(map[string]time.Time),
		CreatedAt:    now,
		LastActivity: now,
	}
}

func (r *Room) Close() {
	r.closed = true
}

func (r *Room) IsClosed() bool {
	return r.closed
}

func (r *Room) HasPeer(id string) bool {
	_, ok := r.Peers[id]
	return ok
}

// OtherPeers returns the members except exclude in byte order.
func (r *Room) OtherPeers(exclude string) []string {
	res := make([]string, 0, len(r.Peers))
	for id := range r.Peers {
		if id == exclude {
			continue
		}
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

// Removable reports whether env may be dropped from the queue.
func (r *Room) Removable(env *Envelope) bool {
	if env.IsDirected() {
		return env.SeenByPeer(env.To)
	}
	if len(env.SeenBy) == 0 {
		return false
	}
	for id := range r.Peers {
		if id == env.From {
			continue
		}
		if !env.SeenByPeer(id) {
			return false
		}
	}
	return true
}

// Prune drops every removable envelope while keeping queue order.
func (r *Room) Prune() int {
	kept := r.Signals[:0]
	removed := 0
	for _, env := range r.Signals {
		if r.Removable(env) {
			removed++
			continue
		}
		kept = append(kept, env)
	}
	for i := len(kept); i < len(r.Signals); i++ {
		r.Signals[i] = nil
	}
	r.Signals = kept
	return removed
}

// DropPeerEnvelopes removes the queued traffic of a departed peer: directed
// envelopes to or from it and its own join announcement.
func (r *Room) DropPeerEnvelopes(peerID string) {
	kept := r.Signals[:0]
	for _, env := range r.Signals {
		if env.IsDirected() && (env.To == peerID || env.From == peerID) {
			continue
		}
		if env.Type == EnvelopeJoin && env.From == peerID {
			continue
		}
		kept = append(kept, env)
	}
	for i := len(kept); i < len(r.Signals); i++ {
		r.Signals[i] = nil
	}
	r.Signals = kept
}

func (r *Room) PendingDirected() int {
	n := 0
	for _, env := range r.Signals {
		if env.IsDirected() {
			n++
		}
	}
	return n
}

// Empty reports whether the room holds no peers and no undelivered directed
// envelopes.
func (r *Room) Empty() bool {
	return len(r.Peers) == 0 && r.PendingDirected() == 0
}
