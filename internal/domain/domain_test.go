package domain

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomRemovableDirected(t *testing.T) {
	room := NewRoom("abcxyz", time.Now())
	room.Peers["p1"] = time.Now()
	room.Peers["p2"] = time.Now()

	env := NewSignalEnvelope("p1", "p2", []byte(`{}`))
	room.Signals = append(room.Signals, env)

	assert.False(t, room.Removable(env))
	env.MarkSeen("p1")
	assert.False(t, room.Removable(env))
	env.MarkSeen("p2")
	assert.True(t, room.Removable(env))
	assert.Equal(t, 1, room.Prune())
	assert.Empty(t, room.Signals)
}

func TestRoomRemovableBroadcastNeedsDelivery(t *testing.T) {
	room := NewRoom("abcxyz", time.Now())
	room.Peers["p1"] = time.Now()

	join := NewPresenceEnvelope(EnvelopeJoin, "p1")
	room.Signals = append(room.Signals, join)

	assert.False(t, room.Removable(join), "undelivered broadcast must stay queued")

	room.Peers["p2"] = time.Now()
	room.Peers["p3"] = time.Now()
	join.MarkSeen("p2")
	assert.False(t, room.Removable(join))
	join.MarkSeen("p3")
	assert.True(t, room.Removable(join))
}

func TestRoomPruneKeepsOrder(t *testing.T) {
	room := NewRoom("abcxyz", time.Now())
	room.Peers["a"] = time.Now()
	room.Peers["b"] = time.Now()

	first := NewSignalEnvelope("a", "b", []byte(`1`))
	second := NewSignalEnvelope("a", "b", []byte(`2`))
	third := NewSignalEnvelope("a", "b", []byte(`3`))
	room.Signals = []*Envelope{first, second, third}
	second.MarkSeen("b")

	room.Prune()
	require.Len(t, room.Signals, 2)
	assert.Same(t, first, room.Signals[0])
	assert.Same(t, third, room.Signals[1])
}

func TestRoomEmptyAndDropPeerEnvelopes(t *testing.T) {
	room := NewRoom("abcxyz", time.Now())
	assert.True(t, room.Empty())

	room.Signals = append(room.Signals,
		NewSignalEnvelope("a", "b", []byte(`1`)),
		NewSignalEnvelope("b", "c", []byte(`2`)),
		NewPresenceEnvelope(EnvelopeJoin, "b"),
		NewPresenceEnvelope(EnvelopeJoin, "c"),
	)
	assert.False(t, room.Empty())

	room.DropPeerEnvelopes("b")
	require.Len(t, room.Signals, 1)
	assert.Equal(t, "c", room.Signals[0].From)
	assert.True(t, room.Empty())
}

func TestOtherPeersSorted(t *testing.T) {
	room := NewRoom("abcxyz", time.Now())
	for _, id := range []string{"c", "a", "b", "me"} {
		room.Peers[id] = time.Now()
	}
	assert.Equal(t, []string{"a", "b", "c"}, room.OtherPeers("me"))
}

func TestPeerStatusTransitions(t *testing.T) {
	assert.True(t, PeerStatusNegotiating.CanTransition(PeerStatusConnected))
	assert.True(t, PeerStatusNegotiating.CanTransition(PeerStatusClosed))
	assert.True(t, PeerStatusConnected.CanTransition(PeerStatusClosed))
	assert.False(t, PeerStatusConnected.CanTransition(PeerStatusNegotiating))
	assert.False(t, PeerStatusClosed.CanTransition(PeerStatusConnected))
	assert.False(t, PeerStatusClosed.Live())
}

func TestElectInitiatorSymmetric(t *testing.T) {
	ids := []string{"P1", "P2", "a", "B", "zz", "z"}
	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			assert.NotEqual(t, ElectInitiator(a, b), ElectInitiator(b, a), "%s vs %s", a, b)
		}
	}
	assert.True(t, ElectInitiator("a", "B"), "lowercase sorts after uppercase in byte order")
}

func TestWrapErrorMatchesKindAndCause(t *testing.T) {
	err := WrapError("relayclient.poll", ErrRelayUnreachable, io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, ErrRelayUnreachable))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "relayclient.poll")
	assert.Nil(t, WrapError("x", ErrRelayUnreachable, nil))
}
