package mesh

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	api "github.com/immxrtalbeast/firext/internal/api/http"
	"github.com/immxrtalbeast/firext/internal/clipboard"
	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/protocol"
	"github.com/immxrtalbeast/firext/internal/relayclient"
	"github.com/immxrtalbeast/firext/internal/repository"
	"github.com/immxrtalbeast/firext/internal/service"
	"github.com/immxrtalbeast/firext/internal/transfer"
	"github.com/immxrtalbeast/firext/internal/transport"
	"github.com/immxrtalbeast/firext/lib/logger/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoom     = "abcxyz"
	testInterval = 20 * time.Millisecond
	waitFor      = 5 * time.Second
	tick         = 10 * time.Millisecond
)

var testTransfer = transfer.Options{
	ChunkSize:       512,
	InlineThreshold: 1024,
	PaceDelay:       time.Millisecond,
}

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slogdiscard.NewDiscardLogger()
	relay := service.NewRelayService(repository.NewInMemoryRoomRepository(), log, service.RelayOptions{})
	router := api.SetupRouter(api.NewRelayController(relay, log, api.RelayControllerOptions{}), api.RouterOptions{})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type node struct {
	*Coordinator
	state  *clipboard.State
	cancel context.CancelFunc
	errc   chan error
	once   sync.Once
}

func startNode(t *testing.T, relay Relay, factory transport.Factory, id string) *node {
	t.Helper()

	state := clipboard.New()
	c, err := New(relay, factory, state, Options{
		Room:         testRoom,
		PeerID:       id,
		PollInterval: testInterval,
		Transfer:     testTransfer,
		Log:          slogdiscard.NewDiscardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	n := &node{Coordinator: c, state: state, cancel: cancel, errc: make(chan error, 1)}
	go func() { n.errc <- c.Run(ctx) }()
	t.Cleanup(n.stop)
	return n
}

func (n *node) stop() {
	n.once.Do(func() {
		n.cancel()
		select {
		case <-n.errc:
		case <-time.After(waitFor):
		}
	})
}

func connectedTo(n *node, ids ...string) func() bool {
	return func() bool {
		peers := n.Peers()
		for _, id := range ids {
			if peers[id] != domain.PeerStatusConnected {
				return false
			}
		}
		return true
	}
}

func TestTwoPeersConnectAndSyncText(t *testing.T) {
	srv := newRelayServer(t)
	sb := transport.NewSwitchboard()

	a := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-a")
	a.SetText("hello")
	b := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-b")

	require.Eventually(t, connectedTo(a, "peer-b"), waitFor, tick)
	require.Eventually(t, connectedTo(b, "peer-a"), waitFor, tick)
	assert.Equal(t, domain.StatusConnected, a.Status())
	assert.Equal(t, domain.StatusConnected, b.Status())

	assert.Eventually(t, func() bool { return b.state.Text() == "hello" }, waitFor, tick)

	b.SetText("from b")
	assert.Eventually(t, func() bool { return a.state.Text() == "from b" }, waitFor, tick)
}

func TestBothClipboardsConvergeOnInitiator(t *testing.T) {
	srv := newRelayServer(t)
	sb := transport.NewSwitchboard()

	a := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-a")
	a.SetText("responder text")
	b := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-b")
	b.SetText("initiator text")

	require.Eventually(t, connectedTo(a, "peer-b"), waitFor, tick)
	assert.Eventually(t, func() bool {
		return a.state.Text() == "initiator text" && b.state.Text() == "initiator text"
	}, waitFor, tick)
}

func TestItemsSyncInlineAndChunked(t *testing.T) {
	srv := newRelayServer(t)
	sb := transport.NewSwitchboard()

	a := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-a")
	b := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-b")
	require.Eventually(t, connectedTo(a, "peer-b"), waitFor, tick)
	require.Eventually(t, connectedTo(b, "peer-a"), waitFor, tick)

	small := a.AddImage([]byte("tiny"))
	big := bytes.Repeat([]byte("0123456789"), 500)
	file := a.AddFile("notes.txt", "text/plain", big)

	require.Eventually(t, func() bool {
		_, okImg := b.state.Image(small.ID)
		_, okFile := b.state.File(file.ID)
		return okImg && okFile
	}, waitFor, tick)

	got, _ := b.state.File(file.ID)
	assert.Equal(t, big, got.Data)
	assert.Equal(t, "notes.txt", got.Name)
	assert.Equal(t, "text/plain", got.MimeType)
	assert.EqualValues(t, len(big), got.Size)

	require.True(t, a.RemoveFile(file.ID))
	assert.Eventually(t, func() bool {
		_, ok := b.state.File(file.ID)
		return !ok
	}, waitFor, tick)

	a.Clear()
	assert.Eventually(t, func() bool { return b.state.Snapshot().IsEmpty() }, waitFor, tick)
	assert.False(t, a.RemoveImage(small.ID))
}

func TestFullSyncStreamsItemsBeyondInlineBudget(t *testing.T) {
	srv := newRelayServer(t)
	sb := transport.NewSwitchboard()

	a := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-a")
	a.SetText("existing")
	first := a.AddImage(bytes.Repeat([]byte{1}, 600))
	second := a.AddImage(bytes.Repeat([]byte{2}, 600))
	large := a.AddImage(bytes.Repeat([]byte{3}, 4000))

	b := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-b")

	assert.Eventually(t, func() bool {
		snap := b.state.Snapshot()
		return snap.Text == "existing" && len(snap.Images) == 3
	}, waitFor, tick)
	for _, img := range []domain.Image{first, second, large} {
		got, ok := b.state.Image(img.ID)
		require.True(t, ok, img.ID)
		assert.Equal(t, img.Data, got.Data)
	}
}

func TestThreePeersFormFullMesh(t *testing.T) {
	srv := newRelayServer(t)
	sb := transport.NewSwitchboard()

	a := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-a")
	b := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-b")
	c := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-c")

	require.Eventually(t, connectedTo(a, "peer-b", "peer-c"), waitFor, tick)
	require.Eventually(t, connectedTo(b, "peer-a", "peer-c"), waitFor, tick)
	require.Eventually(t, connectedTo(c, "peer-a", "peer-b"), waitFor, tick)
	assert.Eventually(t, func() bool { return sb.Live() == 6 }, waitFor, tick)

	c.SetText("everyone")
	assert.Eventually(t, func() bool {
		return a.state.Text() == "everyone" && b.state.Text() == "everyone"
	}, waitFor, tick)
}

func TestReconnectAfterTransportsDrop(t *testing.T) {
	srv := newRelayServer(t)
	sb := transport.NewSwitchboard()

	a := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-a")
	b := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-b")
	require.Eventually(t, connectedTo(a, "peer-b"), waitFor, tick)
	require.Eventually(t, connectedTo(b, "peer-a"), waitFor, tick)

	sb.Sever()
	a.SetText("while apart")

	require.Eventually(t, func() bool { return b.state.Text() == "while apart" }, waitFor, tick)
	assert.Equal(t, domain.PeerStatusConnected, a.Peers()["peer-b"])
}

func TestLeavingPeerIsRemoved(t *testing.T) {
	srv := newRelayServer(t)
	sb := transport.NewSwitchboard()

	a := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-a")
	b := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-b")
	require.Eventually(t, connectedTo(a, "peer-b"), waitFor, tick)

	b.stop()
	assert.Equal(t, domain.StatusDisconnected, b.Status())
	assert.Eventually(t, func() bool {
		_, ok := a.Peers()["peer-b"]
		return !ok && a.Status() == domain.StatusConnecting
	}, waitFor, tick)
}

func TestRelayFailureTearsDownMesh(t *testing.T) {
	srv := newRelayServer(t)
	sb := transport.NewSwitchboard()

	a := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-a")
	b := startNode(t, relayclient.New(srv.URL, nil, nil), sb, "peer-b")
	require.Eventually(t, connectedTo(a, "peer-b"), waitFor, tick)

	var (
		mu       sync.Mutex
		statuses []domain.ConnectionStatus
	)
	a.OnStatus(func(s domain.ConnectionStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	srv.CloseClientConnections()
	srv.Close()

	select {
	case err := <-a.errc:
		assert.ErrorIs(t, err, domain.ErrRelayUnreachable)
	case <-time.After(waitFor):
		t.Fatal("coordinator kept running without a relay")
	}
	assert.Equal(t, domain.StatusError, a.Status())
	assert.Empty(t, a.Peers())

	mu.Lock()
	require.NotEmpty(t, statuses)
	assert.Equal(t, domain.StatusError, statuses[len(statuses)-1])
	assert.NotContains(t, statuses, domain.StatusDisconnected)
	mu.Unlock()

	select {
	case err := <-b.errc:
		assert.ErrorIs(t, err, domain.ErrRelayUnreachable)
	case <-time.After(waitFor):
		t.Fatal("second coordinator kept running without a relay")
	}
	assert.Eventually(t, func() bool { return sb.Live() == 0 }, waitFor, tick)
}

// stubRelay hands out scripted poll results and records published fragments.
type stubRelay struct {
	mu        sync.Mutex
	peers     []string
	signals   []domain.Delivery
	published chan json.RawMessage
}

func newStubRelay() *stubRelay {
	return &stubRelay{published: make(chan json.RawMessage, 16)}
}

func (r *stubRelay) Publish(ctx context.Context, room, from, to string, typ domain.EnvelopeType, signal json.RawMessage) error {
	if typ == domain.EnvelopeSignal {
		r.published <- signal
	}
	return nil
}

func (r *stubRelay) Poll(ctx context.Context, room, peerID string) (*domain.PollResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &domain.PollResult{Peers: r.peers, Signals: r.signals}
	r.signals = nil
	return res, nil
}

func (r *stubRelay) deliver(peers []string, signals ...domain.Delivery) {
	r.mu.Lock()
	r.peers = peers
	r.signals = append(r.signals, signals...)
	r.mu.Unlock()
}

func TestInterruptedTransferNeverApplied(t *testing.T) {
	sb := transport.NewSwitchboard()
	relay := newStubRelay()
	a := startNode(t, relay, sb, "peer-a")

	// The remote end is driven by hand. Its id sorts after peer-a, so it
	// initiates.
	offers := make(chan json.RawMessage, 1)
	connects := make(chan struct{}, 1)
	remote, err := sb.NewTransport(true, transport.Events{
		OnSignal:  func(f json.RawMessage) { offers <- f },
		OnConnect: func() { connects <- struct{}{} },
	})
	require.NoError(t, err)

	offer := <-offers
	relay.deliver([]string{"peer-z"}, domain.Delivery{
		From:    "peer-z",
		To:      "peer-a",
		Type:    domain.EnvelopeSignal,
		Payload: offer,
	})

	select {
	case answer := <-relay.published:
		require.NoError(t, remote.Signal(answer))
	case <-time.After(waitFor):
		t.Fatal("no answer published")
	}
	select {
	case <-connects:
	case <-time.After(waitFor):
		t.Fatal("remote side never connected")
	}
	require.Eventually(t, connectedTo(a, "peer-z"), waitFor, tick)

	codec, err := protocol.NewCodec("")
	require.NoError(t, err)
	send := func(m protocol.Message) {
		data, err := codec.Encode(m)
		require.NoError(t, err)
		require.NoError(t, remote.Send(data))
	}
	send(protocol.Start("xfer", 3, domain.KindImage, "img-1", nil))
	send(protocol.Chunk("xfer", 0, []byte("part one")))
	send(protocol.Chunk("xfer", 1, []byte("part two")))
	send(protocol.Text("marker"))
	require.Eventually(t, func() bool { return a.state.Text() == "marker" }, waitFor, tick)

	require.NoError(t, remote.Close())
	require.Eventually(t, func() bool { return len(a.Peers()) == 0 }, waitFor, tick)

	time.Sleep(10 * testInterval)
	_, ok := a.state.Image("img-1")
	assert.False(t, ok)
	assert.Empty(t, a.state.Snapshot().Images)
}

func TestMalformedDataIsDropped(t *testing.T) {
	sb := transport.NewSwitchboard()
	relay := newStubRelay()
	a := startNode(t, relay, sb, "peer-a")

	offers := make(chan json.RawMessage, 1)
	remote, err := sb.NewTransport(true, transport.Events{
		OnSignal: func(f json.RawMessage) { offers <- f },
	})
	require.NoError(t, err)
	relay.deliver([]string{"peer-z"}, domain.Delivery{From: "peer-z", To: "peer-a", Type: domain.EnvelopeSignal, Payload: <-offers})
	require.NoError(t, remote.Signal(<-relay.published))
	require.Eventually(t, connectedTo(a, "peer-z"), waitFor, tick)

	require.NoError(t, remote.Send([]byte(`{"type":"chunk"}`)))
	require.NoError(t, remote.Send([]byte{0xc1, 0xff, 0xfe}))
	require.NoError(t, remote.Send([]byte("plain text peer")))

	assert.Eventually(t, func() bool { return a.state.Text() == "plain text peer" }, waitFor, tick)
	assert.Equal(t, domain.PeerStatusConnected, a.Peers()["peer-z"])
}

func TestAbandonsHandshakeWhenRemoteLeaves(t *testing.T) {
	sb := transport.NewSwitchboard()
	relay := newStubRelay()
	relay.deliver([]string{"peer-0"})

	// peer-b sorts after peer-0 and initiates, but nobody answers.
	b := startNode(t, relay, sb, "peer-b")
	require.Eventually(t, func() bool {
		return b.Peers()["peer-0"] == domain.PeerStatusNegotiating
	}, waitFor, tick)
	assert.Equal(t, domain.StatusConnecting, b.Status())

	relay.deliver(nil)
	assert.Eventually(t, func() bool { return len(b.Peers()) == 0 }, waitFor, tick)
}

func TestStaleFragmentDoesNotBlockInitiator(t *testing.T) {
	sb := transport.NewSwitchboard()
	relay := newStubRelay()
	// A late answer from an attempt peer-z already dropped arrives in the
	// same poll that lists peer-a.
	relay.deliver([]string{"peer-a"}, domain.Delivery{
		From:    "peer-a",
		To:      "peer-z",
		Type:    domain.EnvelopeSignal,
		Payload: json.RawMessage(`{"type":"answer","token":"m99"}`),
	})
	z := startNode(t, relay, sb, "peer-z")

	select {
	case fragment := <-relay.published:
		var f struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(fragment, &f))
		assert.Equal(t, "offer", f.Type)
	case <-time.After(waitFor):
		t.Fatal("initiator never started a negotiation")
	}
	assert.Equal(t, domain.PeerStatusNegotiating, z.Peers()["peer-a"])
}

func TestRejectedFirstFragmentDropsResponder(t *testing.T) {
	sb := transport.NewSwitchboard()
	relay := newStubRelay()
	relay.deliver([]string{"peer-z"}, domain.Delivery{
		From:    "peer-z",
		To:      "peer-a",
		Type:    domain.EnvelopeSignal,
		Payload: json.RawMessage(`{"type":"answer","token":"m99"}`),
	})
	a := startNode(t, relay, sb, "peer-a")

	time.Sleep(10 * testInterval)
	assert.Empty(t, a.Peers())
	assert.Eventually(t, func() bool { return sb.Live() == 0 }, waitFor, tick)
}

func TestNewRequiresRoom(t *testing.T) {
	_, err := New(newStubRelay(), transport.NewSwitchboard(), clipboard.New(), Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPackSnapshot(t *testing.T) {
	snap := domain.Snapshot{
		Text: "t",
		Images: []domain.Image{
			{ID: "i1", Data: make([]byte, 400)},
			{ID: "i2", Data: make([]byte, 700)},
		},
		Files: []domain.File{
			{ID: "f1", Name: "a", Data: make([]byte, 500)},
		},
	}

	packed, rest := packSnapshot(snap, 1000)
	assert.Equal(t, "t", packed.Text)
	require.Len(t, packed.Images, 1)
	assert.Equal(t, "i1", packed.Images[0].ID)
	require.Len(t, packed.Files, 1)
	assert.Equal(t, "f1", packed.Files[0].ID)
	require.Len(t, rest, 1)
	assert.Equal(t, "i2", rest[0].ID)
	assert.Equal(t, domain.KindImage, rest[0].Kind)
}
