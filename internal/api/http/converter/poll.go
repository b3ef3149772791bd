package converter

import (
	"encoding/json"
	"slices"

	"github.com/immxrtalbeast/firext/internal/domain"
)

type PollResponse struct {
	Peers   []string         `json:"peers"`
	Signals []SignalResponse `json:"signals"`
}

type SignalResponse struct {
	From   string          `json:"from"`
	To     string          `json:"to,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
	Type   string          `json:"type"`
}

func PollToApi(r *domain.PollResult) *PollResponse {
	resp := &PollResponse{
		Peers:   make([]string, 0),
		Signals: make([]SignalResponse, 0),
	}
	if r == nil {
		return resp
	}

	resp.Peers = append(resp.Peers, r.Peers...)
	for _, d := range r.Signals {
		resp.Signals = append(resp.Signals, SignalResponse{
			From:   d.From,
			To:     d.To,
			Signal: d.Payload,
			Type:   string(d.Type),
		})
	}

	return resp
}

// Empty reports whether a push frame would carry nothing new.
func (p *PollResponse) Empty() bool {
	return len(p.Signals) == 0
}

func SamePeers(a, b []string) bool {
	return slices.Equal(a, b)
}
