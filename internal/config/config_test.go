package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/immxrtalbeast/firext/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
env: "prod"
http:
  address: ":9090"
relay:
  peer_timeout: 45s
client:
  relay_url: "http://relay.internal:9090"
  wire_format: "msgpack"
  chunk_size: 8192
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, 45*time.Second, cfg.Relay.PeerTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Relay.RoomTTL)
	assert.Equal(t, "http://relay.internal:9090", cfg.Client.RelayURL)
	assert.Equal(t, protocol.WireFormatMsgpack, cfg.Client.WireFormat)
	assert.Equal(t, 8192, cfg.Client.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.WebRTC.STUNServers)
}

func TestLoadFallsBackToEnvironment(t *testing.T) {
	t.Setenv("FIREXT_RELAY_URL", "http://env-relay:8080")
	t.Setenv("WEBRTC_TURN_SERVERS", "turn:a.example.org,turn:b.example.org")
	t.Setenv("RELAY_ROOM_TTL", "1m")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "http://env-relay:8080", cfg.Client.RelayURL)
	assert.Equal(t, []string{"turn:a.example.org", "turn:b.example.org"}, cfg.WebRTC.TURNServers)
	assert.Equal(t, time.Minute, cfg.Relay.RoomTTL)
	assert.Equal(t, 30*time.Second, cfg.Relay.PeerTimeout)
	assert.Equal(t, uint64(262144), cfg.Client.HighWaterMark)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadRejectsUnknownWireFormat(t *testing.T) {
	path := writeConfig(t, `
client:
  wire_format: "xml"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "wire_format")
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Client.ChunkSize = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Relay.PeerTimeout = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Client.PollInterval = -time.Second
	assert.Error(t, bad.Validate())
}

func TestMustLoadPathPanicsOnMissingFile(t *testing.T) {
	assert.Panics(t, func() {
		MustLoadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
