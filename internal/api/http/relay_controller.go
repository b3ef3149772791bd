package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/firext/internal/api/http/converter"
	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/service"
	"github.com/immxrtalbeast/firext/lib/logger/sl"
)

const (
	defaultPushInterval = time.Second
	defaultMaxBodyBytes = 64 << 10
	writeWait           = 10 * time.Second
)

type RelayController struct {
	relay        service.RelayInteractor
	log          *slog.Logger
	pushInterval time.Duration
	maxBodyBytes int64
	upgrader     websocket.Upgrader
}

type RelayControllerOptions struct {
	PushInterval time.Duration
	MaxBodyBytes int64
}

func NewRelayController(relay service.RelayInteractor, log *slog.Logger, opts RelayControllerOptions) *RelayController {
	if log == nil {
		log = slog.Default()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = defaultPushInterval
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &RelayController{
		relay:        relay,
		log:          log,
		pushInterval: opts.PushInterval,
		maxBodyBytes: opts.MaxBodyBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *RelayController) Publish(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxBodyBytes)

	var req service.PublishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := c.relay.Publish(ctx.Request.Context(), req); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

func (c *RelayController) Poll(ctx *gin.Context) {
	room := ctx.Query("room")
	peerID := ctx.Query("peerId")
	if room == "" || peerID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "missing room or peerId parameter"})
		return
	}

	res, err := c.relay.Poll(ctx.Request.Context(), room, peerID)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, converter.PollToApi(res))
}

// Stream upgrades to a WebSocket that pushes poll results on an interval and
// accepts publish bodies as inbound frames. Room and sender are fixed by the
// query string.
func (c *RelayController) Stream(ctx *gin.Context) {
	const op = "api.relay.stream"

	room := ctx.Query("room")
	peerID := ctx.Query("peerId")
	if room == "" || peerID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "missing room or peerId parameter"})
		return
	}

	log := c.log.With(
		slog.String("op", op),
		slog.String("room", room),
		slog.String("peer_id", peerID),
	)

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", sl.Err(err))
		return
	}
	conn.SetReadLimit(c.maxBodyBytes)

	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	go func() {
		defer cancel()
		c.pushLoop(streamCtx, log, room, peerID, write)
	}()

	log.Info("stream opened")
	for {
		var req service.PublishRequest
		if err := conn.ReadJSON(&req); err != nil {
			break
		}
		req.Room = room
		req.From = peerID

		if err := c.relay.Publish(streamCtx, req); err != nil {
			if werr := write(gin.H{"error": err.Error()}); werr != nil {
				break
			}
		}
	}

	cancel()
	leave := service.PublishRequest{Room: room, From: peerID, Type: domain.EnvelopeLeave}
	if err := c.relay.Publish(context.Background(), leave); err != nil {
		log.Warn("failed to publish leave", sl.Err(err))
	}
	_ = conn.Close()
	log.Info("stream closed")
}

func (c *RelayController) pushLoop(ctx context.Context, log *slog.Logger, room, peerID string, write func(any) error) {
	ticker := time.NewTicker(c.pushInterval)
	defer ticker.Stop()

	var lastPeers []string
	first := true
	for {
		res, err := c.relay.Poll(ctx, room, peerID)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("push poll failed", sl.Err(err))
			}
			return
		}

		resp := converter.PollToApi(res)
		if first || !resp.Empty() || !converter.SamePeers(lastPeers, resp.Peers) {
			if err := write(resp); err != nil {
				return
			}
			lastPeers = resp.Peers
			first = false
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
