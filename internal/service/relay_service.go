package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/metrics"
	"github.com/immxrtalbeast/firext/internal/repository"
	"github.com/immxrtalbeast/firext/lib/logger/sl"
)

const (
	DefaultPeerTimeout = 30 * time.Second
	DefaultRoomTTL     = 5 * time.Minute
)

type PublishRequest struct {
	Room   string              `json:"room"`
	From   string              `json:"from"`
	To     string              `json:"to,omitempty"`
	Type   domain.EnvelopeType `json:"type,omitempty"`
	Signal json.RawMessage     `json:"signal,omitempty"`
}

func (r *PublishRequest) validate() error {
	if r.Type == "" {
		r.Type = domain.EnvelopeSignal
	}
	if r.Room == "" {
		return domain.NewError("publish", domain.ErrInvalidRequest, "room is required")
	}
	if r.From == "" {
		return domain.NewError("publish", domain.ErrInvalidRequest, "from is required")
	}
	switch r.Type {
	case domain.EnvelopeSignal:
		if r.To == "" {
			return domain.NewError("publish", domain.ErrInvalidRequest, "to is required for signal")
		}
		if len(r.Signal) == 0 || string(r.Signal) == "null" {
			return domain.NewError("publish", domain.ErrInvalidRequest, "signal is required")
		}
		if r.To == r.From {
			return domain.NewError("publish", domain.ErrInvalidRequest, "cannot signal self")
		}
	case domain.EnvelopeJoin, domain.EnvelopeLeave:
	default:
		return domain.NewError("publish", domain.ErrInvalidRequest, "unsupported type "+string(r.Type))
	}
	return nil
}

type RelayOptions struct {
	PeerTimeout time.Duration
	RoomTTL     time.Duration
	Now         func() time.Time
	Metrics     *metrics.Relay
}

type RelayService struct {
	rooms   repository.RoomRepository
	log     *slog.Logger
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Relay
}

func NewRelayService(rooms repository.RoomRepository, log *slog.Logger, opts RelayOptions) *RelayService {
	if log == nil {
		log = slog.Default()
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = DefaultPeerTimeout
	}
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = DefaultRoomTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RelayService{
		rooms:   rooms,
		log:     log,
		timeout: opts.PeerTimeout,
		ttl:     opts.RoomTTL,
		now:     opts.Now,
		metrics: opts.Metrics,
	}
}

func (s *RelayService) Publish(ctx context.Context, req PublishRequest) error {
	const op = "service.relay.publish"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room", req.Room),
		slog.String("from", req.From),
	)

	if err := req.validate(); err != nil {
		s.metrics.Rejected()
		log.Debug("rejected publish", sl.Err(err))
		return err
	}

	err := s.withRoom(ctx, req.Room, func(room *domain.Room, now time.Time) {
		switch req.Type {
		case domain.EnvelopeSignal:
			room.Signals = append(room.Signals, domain.NewSignalEnvelope(req.From, req.To, req.Signal))
		case domain.EnvelopeJoin:
			s.register(room, req.From, now)
		case domain.EnvelopeLeave:
			if room.HasPeer(req.From) {
				s.removePeer(room, req.From)
				log.Info("peer left")
			}
		}
	})
	if err != nil {
		log.Error("failed to publish", sl.Err(err))
		return err
	}

	s.metrics.Published(string(req.Type))
	log.Debug("published", slog.String("type", string(req.Type)), slog.String("to", req.To))
	return nil
}

func (s *RelayService) Poll(ctx context.Context, code, peerID string) (*domain.PollResult, error) {
	const op = "service.relay.poll"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room", code),
		slog.String("peer_id", peerID),
	)

	if code == "" || peerID == "" {
		s.metrics.Rejected()
		return nil, domain.NewError("poll", domain.ErrInvalidRequest, "room and peerId are required")
	}

	var result domain.PollResult
	err := s.withRoom(ctx, code, func(room *domain.Room, now time.Time) {
		s.register(room, peerID, now)
		if swept := s.sweep(room, now); len(swept) > 0 {
			log.Info("swept inactive peers", slog.Any("peers", swept))
		}

		delivered := make([]domain.Delivery, 0)
		for _, env := range room.Signals {
			if !env.DeliverableTo(peerID) {
				continue
			}
			env.MarkSeen(peerID)
			delivered = append(delivered, env.Delivery())
			s.metrics.Delivered(string(env.Type), 1)
		}
		room.Prune()

		result = domain.PollResult{
			Peers:   room.OtherPeers(peerID),
			Signals: delivered,
		}
	})
	if err != nil {
		log.Error("failed to poll", sl.Err(err))
		return nil, err
	}

	s.metrics.Polled()
	return &result, nil
}

// Collect sweeps inactive peers in every room and deletes rooms that are empty
// or idle past the room TTL. It returns the number of rooms deleted.
func (s *RelayService) Collect(ctx context.Context) (int, error) {
	const op = "service.relay.collect"
	log := s.log.With(slog.String("op", op))

	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, room := range rooms {
		room.Mutex.Lock()
		if room.IsClosed() {
			room.Mutex.Unlock()
			continue
		}
		now := s.now()
		s.sweep(room, now)
		room.Prune()
		if room.Empty() || now.Sub(room.LastActivity) > s.ttl {
			room.Close()
			if err := s.rooms.Delete(ctx, room.Code); err != nil && !errors.Is(err, repository.ErrRoomNotFound) {
				log.Error("failed to delete room", slog.String("room", room.Code), sl.Err(err))
			} else {
				deleted++
				log.Debug("room deleted", slog.String("room", room.Code))
			}
		}
		room.Mutex.Unlock()
	}

	s.metrics.Collected(deleted)
	if n, err := s.rooms.Count(ctx); err == nil {
		s.metrics.SetRooms(n)
	}
	return deleted, nil
}

// RunCollector calls Collect every interval until ctx is done.
func (s *RelayService) RunCollector(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.timeout / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Collect(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("room collection failed", sl.Err(err))
			}
		}
	}
}

// withRoom runs fn on the room for code while holding its lock, creating the
// room when absent. A room closed by the collector in between is replaced.
func (s *RelayService) withRoom(ctx context.Context, code string, fn func(room *domain.Room, now time.Time)) error {
	for {
		room, err := s.getOrCreate(ctx, code)
		if err != nil {
			return err
		}

		room.Mutex.Lock()
		if room.IsClosed() {
			room.Mutex.Unlock()
			continue
		}
		now := s.now()
		fn(room, now)
		room.LastActivity = now
		room.Mutex.Unlock()
		return nil
	}
}

func (s *RelayService) getOrCreate(ctx context.Context, code string) (*domain.Room, error) {
	for {
		room, err := s.rooms.Get(ctx, code)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, repository.ErrRoomNotFound) {
			return nil, err
		}

		room = domain.NewRoom(code, s.now())
		err = s.rooms.Create(ctx, room)
		if err == nil {
			s.log.Debug("room created", slog.String("room", code))
			if n, err := s.rooms.Count(ctx); err == nil {
				s.metrics.SetRooms(n)
			}
			return room, nil
		}
		if !errors.Is(err, repository.ErrRoomExists) {
			return nil, err
		}
	}
}

func (s *RelayService) register(room *domain.Room, peerID string, now time.Time) {
	if !room.HasPeer(peerID) {
		room.Signals = append(room.Signals, domain.NewPresenceEnvelope(domain.EnvelopeJoin, peerID))
		s.log.Info("peer joined", slog.String("room", room.Code), slog.String("peer_id", peerID))
	}
	room.Peers[peerID] = now
}

func (s *RelayService) sweep(room *domain.Room, now time.Time) []string {
	var swept []string
	for id, seen := range room.Peers {
		if now.Sub(seen) > s.timeout {
			swept = append(swept, id)
		}
	}
	for _, id := range swept {
		s.removePeer(room, id)
	}
	s.metrics.Swept(len(swept))
	return swept
}

func (s *RelayService) removePeer(room *domain.Room, peerID string) {
	delete(room.Peers, peerID)
	room.DropPeerEnvelopes(peerID)
	room.Signals = append(room.Signals, domain.NewPresenceEnvelope(domain.EnvelopeLeave, peerID))
}
