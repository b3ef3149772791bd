// Package relayclient talks to the signaling relay over HTTP.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/immxrtalbeast/firext/internal/domain"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New returns a client for the relay at baseURL. A nil httpClient gets a
// client with a ten second timeout.
func New(baseURL string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
		log:     log,
	}
}

type publishBody struct {
	Room   string              `json:"room"`
	From   string              `json:"from"`
	To     string              `json:"to,omitempty"`
	Type   domain.EnvelopeType `json:"type"`
	Signal json.RawMessage     `json:"signal,omitempty"`
}

func (c *Client) Publish(ctx context.Context, room, from, to string, typ domain.EnvelopeType, signal json.RawMessage) error {
	const op = "relayclient.publish"

	b, err := json.Marshal(publishBody{Room: room, From: from, To: to, Type: typ, Signal: signal})
	if err != nil {
		return domain.WrapError(op, domain.ErrInvalidRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signal", bytes.NewReader(b))
	if err != nil {
		return domain.WrapError(op, domain.ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.WrapError(op, domain.ErrRelayUnreachable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	return checkStatus(op, resp)
}

func (c *Client) Poll(ctx context.Context, room, peerID string) (*domain.PollResult, error) {
	const op = "relayclient.poll"

	q := url.Values{}
	q.Set("room", room)
	q.Set("peerId", peerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/signal?"+q.Encode(), nil)
	if err != nil {
		return nil, domain.WrapError(op, domain.ErrInvalidRequest, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.WrapError(op, domain.ErrRelayUnreachable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}

	var res domain.PollResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, domain.WrapError(op, domain.ErrRelayUnreachable, err)
	}
	if len(res.Signals) > 0 {
		c.log.Debug("polled signals",
			slog.String("room", room),
			slog.Int("count", len(res.Signals)),
		)
	}
	return &res, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}

	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	details := fmt.Sprintf("status %d", resp.StatusCode)
	if body.Error != "" {
		details += ": " + body.Error
	}

	if resp.StatusCode/100 == 4 {
		return domain.NewError(op, domain.ErrInvalidRequest, details)
	}
	return domain.NewError(op, domain.ErrRelayUnreachable, details)
}
