// Package mesh keeps a full mesh of peer connections for one room and
// synchronizes the local clipboard across it.
package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/firext/internal/clipboard"
	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/protocol"
	"github.com/immxrtalbeast/firext/internal/transfer"
	"github.com/immxrtalbeast/firext/internal/transport"
	"github.com/immxrtalbeast/firext/lib/logger/sl"
)

const (
	DefaultPollInterval = 2 * time.Second

	eventBuffer   = 256
	publishBuffer = 256
	leaveTimeout  = 2 * time.Second
)

// Relay is the signaling relay as seen by a client.
type Relay interface {
	Publish(ctx context.Context, room, from, to string, typ domain.EnvelopeType, signal json.RawMessage) error
	Poll(ctx context.Context, room, peerID string) (*domain.PollResult, error)
}

type Options struct {
	Room string
	// PeerID defaults to a random uuid.
	PeerID       string
	PollInterval time.Duration
	Codec        *protocol.Codec
	Transfer     transfer.Options
	Log          *slog.Logger
}

type StatusListener func(domain.ConnectionStatus)

type publishJob struct {
	to       string
	fragment json.RawMessage
}

// Coordinator owns the peer table of one room. All table changes happen on
// the goroutine running Run; entry points and transport callbacks only post
// events to it.
type Coordinator struct {
	relay    Relay
	factory  transport.Factory
	state    *clipboard.State
	codec    *protocol.Codec
	sender   *transfer.Sender
	log      *slog.Logger
	room     string
	id       string
	interval time.Duration

	events    chan event
	publishes chan publishJob
	failures  chan error
	done      chan struct{}
	runOnce   sync.Once
	runCtx    context.Context
	senders   sync.WaitGroup

	peers    map[string]*peerConn
	stopping bool

	viewMu    sync.RWMutex
	status    domain.ConnectionStatus
	view      map[string]domain.PeerStatus
	listeners []StatusListener
}

func New(relay Relay, factory transport.Factory, state *clipboard.State, opts Options) (*Coordinator, error) {
	if opts.Room == "" {
		return nil, domain.NewError("mesh.new", domain.ErrInvalidRequest, "room is required")
	}
	if opts.PeerID == "" {
		opts.PeerID = uuid.NewString()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Codec == nil {
		codec, err := protocol.NewCodec("")
		if err != nil {
			return nil, err
		}
		opts.Codec = codec
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	log := opts.Log.With(
		slog.String("room", opts.Room),
		slog.String("peer_id", opts.PeerID),
	)
	return &Coordinator{
		relay:     relay,
		factory:   factory,
		state:     state,
		codec:     opts.Codec,
		sender:    transfer.NewSender(opts.Codec, opts.Transfer, log),
		log:       log,
		room:      opts.Room,
		id:        opts.PeerID,
		interval:  opts.PollInterval,
		events:    make(chan event, eventBuffer),
		publishes: make(chan publishJob, publishBuffer),
		failures:  make(chan error, 1),
		done:      make(chan struct{}),
		runCtx:    context.Background(),
		peers:     make(map[string]*peerConn),
		status:    domain.StatusDisconnected,
		view:      make(map[string]domain.PeerStatus),
	}, nil
}

func (c *Coordinator) ID() string {
	return c.id
}

func (c *Coordinator) Room() string {
	return c.room
}

// Status returns the coarse connection status.
func (c *Coordinator) Status() domain.ConnectionStatus {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.status
}

// Peers returns the status of every peer in the table, keyed by remote id.
func (c *Coordinator) Peers() map[string]domain.PeerStatus {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	out := make(map[string]domain.PeerStatus, len(c.view))
	for id, s := range c.view {
		out[id] = s
	}
	return out
}

// OnStatus registers l for status changes. Listeners run on the dispatch
// goroutine and must not block.
func (c *Coordinator) OnStatus(l StatusListener) {
	c.viewMu.Lock()
	c.listeners = append(c.listeners, l)
	c.viewMu.Unlock()
}

// Run polls the relay and dispatches events until ctx is cancelled or the
// relay becomes unreachable. It can be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	err := errors.New("coordinator already ran")
	c.runOnce.Do(func() {
		err = c.run(ctx)
	})
	return err
}

func (c *Coordinator) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.runCtx = ctx

	c.setStatus(domain.StatusConnecting)
	c.log.Info("joining room")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.publishLoop(ctx)
	}()

	err := c.loop(ctx)

	c.stopping = true
	c.teardownAll("shutdown")
	if err == nil {
		c.leave()
		c.setStatus(domain.StatusDisconnected)
	} else {
		c.setStatus(domain.StatusError)
	}

	cancel()
	close(c.done)
	wg.Wait()
	c.senders.Wait()
	return err
}

func (c *Coordinator) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.failures:
			return c.relayFailed(err)
		case ev := <-c.events:
			if err := c.dispatch(ev); err != nil {
				return err
			}
		}
	}
}

func (c *Coordinator) dispatch(ev event) error {
	switch e := ev.(type) {
	case pollEvent:
		if e.err != nil {
			return c.relayFailed(e.err)
		}
		c.handlePoll(e.res)
	case signalEvent:
		if !c.current(e.peer) {
			return nil
		}
		c.enqueuePublish(publishJob{to: e.peer.remoteID, fragment: e.fragment})
	case connectEvent:
		c.handleConnect(e.peer)
	case dataEvent:
		c.handleData(e.peer, e.data)
	case closeEvent:
		if c.current(e.peer) {
			c.teardown(e.peer, "closed")
		}
	case errorEvent:
		if !c.current(e.peer) {
			return nil
		}
		c.log.Warn("peer connection failed",
			slog.String("remote_id", e.peer.remoteID),
			sl.Err(e.err),
		)
		c.teardown(e.peer, "error")
	case broadcastEvent:
		c.broadcast(e.msg)
	case broadcastItemEvent:
		for _, p := range c.connected() {
			c.sendItem(p, e.item)
		}
	}
	return nil
}

// relayFailed turns a relay error into the error Run returns. Run tears the
// peers down on its way out.
func (c *Coordinator) relayFailed(err error) error {
	if !errors.Is(err, domain.ErrRelayUnreachable) {
		err = domain.WrapError("mesh.relay", domain.ErrRelayUnreachable, err)
	}
	c.log.Error("lost connection to relay", sl.Err(err))
	return err
}

// post hands ev to the dispatch loop. Events posted after Run returned are
// dropped.
func (c *Coordinator) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Coordinator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		res, err := c.relay.Poll(ctx, c.room, c.id)
		if ctx.Err() != nil {
			return
		}
		c.post(pollEvent{res: res, err: err})
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) enqueuePublish(job publishJob) {
	select {
	case c.publishes <- job:
	case <-c.runCtx.Done():
	}
}

// publishLoop sends negotiation fragments one at a time so that the relay
// sees them in the order they were produced.
func (c *Coordinator) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.publishes:
			err := c.relay.Publish(ctx, c.room, c.id, job.to, domain.EnvelopeSignal, job.fragment)
			if err == nil || ctx.Err() != nil {
				continue
			}
			if errors.Is(err, domain.ErrRelayUnreachable) {
				select {
				case c.failures <- err:
				default:
				}
				return
			}
			c.log.Warn("relay rejected fragment", slog.String("to", job.to), sl.Err(err))
		}
	}
}

func (c *Coordinator) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := c.relay.Publish(ctx, c.room, c.id, "", domain.EnvelopeLeave, nil); err != nil {
		c.log.Debug("failed to announce leave", sl.Err(err))
	}
}

// refresh publishes the peer table to readers and recomputes the status.
func (c *Coordinator) refresh() {
	view := make(map[string]domain.PeerStatus, len(c.peers))
	status := domain.StatusConnecting
	for id, p := range c.peers {
		view[id] = p.status
		if p.status == domain.PeerStatusConnected {
			status = domain.StatusConnected
		}
	}

	c.viewMu.Lock()
	c.view = view
	c.viewMu.Unlock()
	if !c.stopping {
		c.setStatus(status)
	}
}

func (c *Coordinator) setStatus(s domain.ConnectionStatus) {
	c.viewMu.Lock()
	if c.status == s {
		c.viewMu.Unlock()
		return
	}
	c.status = s
	listeners := append([]StatusListener(nil), c.listeners...)
	c.viewMu.Unlock()

	c.log.Debug("status changed", slog.String("status", string(s)))
	for _, l := range listeners {
		l(s)
	}
}

// connected returns connected peers ordered by remote id.
func (c *Coordinator) connected() []*peerConn {
	out := make([]*peerConn, 0, len(c.peers))
	for _, p := range c.peers {
		if p.status == domain.PeerStatusConnected {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].remoteID < out[j].remoteID })
	return out
}
