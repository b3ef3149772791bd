package rtc

import (
	"log/slog"

	"github.com/immxrtalbeast/firext/internal/config"
	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/immxrtalbeast/firext/internal/transport"
	pionnet "github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

const DefaultChannelLabel = "clipboard"

type Config struct {
	ICEServers   []webrtc.ICEServer
	ForceRelay   bool
	ChannelLabel string
}

// ConfigFromWebRTC builds the ICE setup from the application config. TURN
// servers are only used for relay-only policy when present.
func ConfigFromWebRTC(cfg config.WebRTCConfig) Config {
	var servers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	if len(cfg.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       cfg.TURNServers,
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNCredential,
		})
	}
	return Config{
		ICEServers:   servers,
		ForceRelay:   cfg.ForceRelay && len(cfg.TURNServers) > 0,
		ChannelLabel: DefaultChannelLabel,
	}
}

type Option func(*webrtc.SettingEngine)

// WithNet routes all traffic through n, for example a virtual network.
func WithNet(n pionnet.Net) Option {
	return func(se *webrtc.SettingEngine) {
		se.SetNet(n)
	}
}

// Factory creates pion peers. It implements transport.Factory.
type Factory struct {
	api *webrtc.API
	cfg Config
	log *slog.Logger
}

func NewFactory(cfg Config, log *slog.Logger, opts ...Option) *Factory {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ChannelLabel == "" {
		cfg.ChannelLabel = DefaultChannelLabel
	}

	se := webrtc.SettingEngine{
		LoggerFactory: NewLoggerFactory(log.With(slog.String("component", "pion"))),
	}
	for _, opt := range opts {
		opt(&se)
	}

	return &Factory{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		cfg: cfg,
		log: log,
	}
}

func (f *Factory) NewTransport(initiator bool, ev transport.Events) (transport.Transport, error) {
	policy := webrtc.ICETransportPolicyAll
	if f.cfg.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         f.cfg.ICEServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, domain.WrapError("rtc.new_peer_connection", domain.ErrNegotiationFailure, err)
	}

	role := domain.RoleResponder
	if initiator {
		role = domain.RoleInitiator
	}
	p, err := newPeer(pc, initiator, f.cfg.ChannelLabel, ev, f.log.With(slog.String("role", string(role))))
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	return p, nil
}
