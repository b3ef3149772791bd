package rtc

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type fragmentType string

const (
	fragmentOffer     fragmentType = "offer"
	fragmentAnswer    fragmentType = "answer"
	fragmentCandidate fragmentType = "candidate"
)

// Fragment is one negotiation step relayed between peers.
type Fragment struct {
	Type      fragmentType             `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func parseFragment(data json.RawMessage) (Fragment, error) {
	var f Fragment
	if err := json.Unmarshal(data, &f); err != nil {
		return Fragment{}, err
	}
	if err := f.validate(); err != nil {
		return Fragment{}, err
	}
	return f, nil
}

func (f Fragment) validate() error {
	switch f.Type {
	case fragmentOffer, fragmentAnswer:
		if f.SDP == "" {
			return fmt.Errorf("%s fragment missing sdp", f.Type)
		}
		if f.Candidate != nil {
			return fmt.Errorf("%s fragment has unexpected candidate", f.Type)
		}
	case fragmentCandidate:
		if f.Candidate == nil {
			return fmt.Errorf("candidate fragment missing candidate")
		}
	default:
		return fmt.Errorf("unknown fragment type %q", f.Type)
	}
	return nil
}

func (f Fragment) description() webrtc.SessionDescription {
	t := webrtc.SDPTypeOffer
	if f.Type == fragmentAnswer {
		t = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: t, SDP: f.SDP}
}

func descriptionFragment(desc webrtc.SessionDescription) Fragment {
	t := fragmentOffer
	if desc.Type == webrtc.SDPTypeAnswer {
		t = fragmentAnswer
	}
	return Fragment{Type: t, SDP: desc.SDP}
}

func candidateFragment(c webrtc.ICECandidateInit) Fragment {
	return Fragment{Type: fragmentCandidate, Candidate: &c}
}
