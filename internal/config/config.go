package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/immxrtalbeast/firext/internal/protocol"
)

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP    HTTPConfig    `yaml:"http"`
	Relay   RelayConfig   `yaml:"relay"`
	WebRTC  WebRTCConfig  `yaml:"webrtc"`
	Client  ClientConfig  `yaml:"client"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type HTTPConfig struct {
	Address      string   `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowOrigins []string `yaml:"allow_origins" env:"HTTP_ALLOW_ORIGINS" env-separator:","`
}

type RelayConfig struct {
	PeerTimeout  time.Duration `yaml:"peer_timeout" env:"RELAY_PEER_TIMEOUT" env-default:"30s"`
	RoomTTL      time.Duration `yaml:"room_ttl" env:"RELAY_ROOM_TTL" env-default:"5m"`
	GCInterval   time.Duration `yaml:"gc_interval" env:"RELAY_GC_INTERVAL" env-default:"10s"`
	PushInterval time.Duration `yaml:"push_interval" env:"RELAY_PUSH_INTERVAL" env-default:"1s"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"RELAY_MAX_BODY_BYTES" env-default:"65536"`
}

type WebRTCConfig struct {
	STUNServers    []string `yaml:"stun_servers" env:"WEBRTC_STUN_SERVERS" env-separator:","`
	TURNServers    []string `yaml:"turn_servers" env:"WEBRTC_TURN_SERVERS" env-separator:","`
	TURNUsername   string   `yaml:"turn_username" env:"WEBRTC_TURN_USERNAME"`
	TURNCredential string   `yaml:"turn_credential" env:"WEBRTC_TURN_CREDENTIAL"`
	ForceRelay     bool     `yaml:"force_relay" env:"WEBRTC_FORCE_RELAY"`
}

type ClientConfig struct {
	RelayURL        string        `yaml:"relay_url" env:"FIREXT_RELAY_URL" env-default:"http://localhost:8080"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"FIREXT_POLL_INTERVAL" env-default:"2s"`
	ChunkSize       int           `yaml:"chunk_size" env:"FIREXT_CHUNK_SIZE" env-default:"16384"`
	InlineThreshold int           `yaml:"inline_threshold" env:"FIREXT_INLINE_THRESHOLD" env-default:"16384"`
	HighWaterMark   uint64        `yaml:"high_water_mark" env:"FIREXT_HIGH_WATER_MARK" env-default:"262144"`
	PaceDelay       time.Duration `yaml:"pace_delay" env:"FIREXT_PACE_DELAY" env-default:"10ms"`
	WireFormat      string        `yaml:"wire_format" env:"FIREXT_WIRE_FORMAT" env-default:"json"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		panic("cannot read config: " + err.Error())
	}

	return cfg
}

// Load reads configPath when it exists and falls back to environment
// variables and defaults otherwise.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
				return nil, err
			}
			cfg.setDefaults()
			return &cfg, cfg.Validate()
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return &cfg, cfg.Validate()
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"http://localhost:3000"}
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Client.WireFormat == "" {
		c.Client.WireFormat = protocol.WireFormatJSON
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) Validate() error {
	if c.Relay.PeerTimeout <= 0 {
		return errors.New("relay.peer_timeout must be positive")
	}
	if c.Client.PollInterval <= 0 {
		return errors.New("client.poll_interval must be positive")
	}
	if c.Client.ChunkSize <= 0 {
		return errors.New("client.chunk_size must be positive")
	}
	if c.Client.InlineThreshold < 0 {
		return errors.New("client.inline_threshold must not be negative")
	}
	switch c.Client.WireFormat {
	case protocol.WireFormatJSON, protocol.WireFormatMsgpack:
	default:
		return fmt.Errorf("client.wire_format %q is not supported", c.Client.WireFormat)
	}
	return nil
}
