package relayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	api "github.com/immxrtalbeast/firext/internal/api/http"
	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/repository"
	"github.com/immxrtalbeast/firext/internal/service"
	"github.com/immxrtalbeast/firext/lib/logger/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slogdiscard.NewDiscardLogger()
	relay := service.NewRelayService(repository.NewInMemoryRoomRepository(), log, service.RelayOptions{})
	router := api.SetupRouter(api.NewRelayController(relay, log, api.RelayControllerOptions{}), api.RouterOptions{})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestPublishAndPoll(t *testing.T) {
	srv := newRelay(t)
	c := New(srv.URL+"/", nil, slogdiscard.NewDiscardLogger())
	ctx := context.Background()

	res, err := c.Poll(ctx, "abcxyz", "P1")
	require.NoError(t, err)
	assert.Empty(t, res.Peers)

	res, err = c.Poll(ctx, "abcxyz", "P2")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, res.Peers)

	signal := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, c.Publish(ctx, "abcxyz", "P2", "P1", domain.EnvelopeSignal, signal))

	res, err = c.Poll(ctx, "abcxyz", "P1")
	require.NoError(t, err)
	var got []domain.Delivery
	for _, s := range res.Signals {
		if s.Type == domain.EnvelopeSignal {
			got = append(got, s)
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, "P2", got[0].From)
	assert.Equal(t, "P1", got[0].To)
	assert.JSONEq(t, string(signal), string(got[0].Payload))
}

func TestPublishInvalidRequest(t *testing.T) {
	srv := newRelay(t)
	c := New(srv.URL, nil, nil)

	err := c.Publish(context.Background(), "abcxyz", "P1", "", domain.EnvelopeSignal, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "status 400")
}

func TestServerErrorIsRelayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, nil, nil).Poll(context.Background(), "abcxyz", "P1")
	assert.ErrorIs(t, err, domain.ErrRelayUnreachable)
}

func TestUnreachableRelay(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := New(addr, nil, nil)
	_, err := c.Poll(context.Background(), "abcxyz", "P1")
	assert.ErrorIs(t, err, domain.ErrRelayUnreachable)

	err = c.Publish(context.Background(), "abcxyz", "P1", "", domain.EnvelopeLeave, nil)
	assert.ErrorIs(t, err, domain.ErrRelayUnreachable)
}

func TestGarbageBodyIsRelayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, nil, nil).Poll(context.Background(), "abcxyz", "P1")
	assert.ErrorIs(t, err, domain.ErrRelayUnreachable)
}
