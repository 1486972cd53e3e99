package esplink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultLinkConfig(t *testing.T) {
	c := DefaultLinkConfig()

	if c.ReconnectBaseDelay != 5*time.Second || c.ReconnectMaxDelay != 60*time.Second {
		t.Fatalf("reconnect delays: %s %s", c.ReconnectBaseDelay, c.ReconnectMaxDelay)
	}
	if c.ConnectTimeout != 10*time.Second || c.MinConnectInterval != time.Second || c.TransferTimeout != 30*time.Second {
		t.Fatalf("timeouts: %+v", c)
	}
	if !c.AutoReconnect || c.AutoConnect {
		t.Fatalf("auto flags: connect=%t reconnect=%t", c.AutoConnect, c.AutoReconnect)
	}
	if !strings.HasPrefix(c.DeviceID, "esplink-") || len(c.DeviceID) <= len("esplink-") {
		t.Fatalf("device id=%q", c.DeviceID)
	}
	if other := DefaultLinkConfig(); other.DeviceID == c.DeviceID {
		t.Fatalf("device ids should be unique per config")
	}
	if issues := c.Validate(); len(issues) != 0 {
		t.Fatalf("defaults invalid: %v", issues)
	}
}

func TestNewLinkConfig_FromEnv(t *testing.T) {
	t.Setenv("ESPLINK_URL", "ws://10.0.0.5:8080/ws")
	t.Setenv("ESPLINK_DEVICE_ID", "tablet-1")
	t.Setenv("ESPLINK_AUTO_CONNECT", "true")
	t.Setenv("ESPLINK_AUTO_RECONNECT", "false")
	t.Setenv("ESPLINK_RECONNECT_BASE_DELAY", "2s")
	t.Setenv("ESPLINK_RECONNECT_MAX_DELAY", "45000")
	t.Setenv("ESPLINK_RECONNECT_MULTIPLIER", "1.5")
	t.Setenv("ESPLINK_TRANSFER_TIMEOUT", "15s")
	t.Setenv("ESPLINK_TRANSFER_HISTORY_SIZE", "5")
	t.Setenv("ESPLINK_DEBUG_LEVEL", "DEBUG")

	c := NewLinkConfig()

	if c.URL != "ws://10.0.0.5:8080/ws" || c.DeviceID != "tablet-1" {
		t.Fatalf("url/device: %q %q", c.URL, c.DeviceID)
	}
	if !c.AutoConnect || c.AutoReconnect {
		t.Fatalf("auto flags: connect=%t reconnect=%t", c.AutoConnect, c.AutoReconnect)
	}
	if c.ReconnectBaseDelay != 2*time.Second || c.ReconnectMaxDelay != 45*time.Second {
		t.Fatalf("delays: %s %s", c.ReconnectBaseDelay, c.ReconnectMaxDelay)
	}
	if c.ReconnectMultiplier != 1.5 || c.TransferTimeout != 15*time.Second || c.TransferHistorySize != 5 {
		t.Fatalf("config=%+v", c)
	}
	if c.DebugLevel != "DEBUG" {
		t.Fatalf("debug level=%s", c.DebugLevel)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esplink.yaml")
	data := `
url: ws://192.168.4.1:8080/ws
device_id: kitchen-tablet
headers:
  X-Room: kitchen
reconnect_base_delay: 250ms
reconnect_max_delay: 4s
connect_timeout: 3s
transfer_timeout: 20s
transfer_history_size: 8
api_base_url: http://backend.local
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.URL != "ws://192.168.4.1:8080/ws" || c.DeviceID != "kitchen-tablet" {
		t.Fatalf("url/device: %q %q", c.URL, c.DeviceID)
	}
	if c.Headers["X-Room"] != "kitchen" {
		t.Fatalf("headers=%v", c.Headers)
	}
	if c.ReconnectBaseDelay != 250*time.Millisecond || c.ReconnectMaxDelay != 4*time.Second || c.ConnectTimeout != 3*time.Second {
		t.Fatalf("durations: %+v", c)
	}
	if c.TransferTimeout != 20*time.Second || c.TransferHistorySize != 8 {
		t.Fatalf("transfer settings: %+v", c)
	}
	// unset keys keep their defaults
	if c.ReconnectMultiplier != DefaultReconnectMultiplier || c.MinConnectInterval != DefaultMinConnectInterval {
		t.Fatalf("defaults lost: %+v", c)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); !IsErrorCode(err, ErrCodeConfigInvalid) {
		t.Fatalf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("reconnect_base_delay: [1, 2"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfigFile(path); !IsErrorCode(err, ErrCodeConfigInvalid) {
		t.Fatalf("bad yaml: %v", err)
	}
}

func TestLinkConfig_Validate(t *testing.T) {
	c := DefaultLinkConfig()
	c.URL = "http://not-a-websocket"
	c.ReconnectBaseDelay = 10 * time.Second
	c.ReconnectMaxDelay = time.Second
	c.ReconnectMultiplier = 0.5
	c.TransferTimeout = 0
	c.TransferHistorySize = 0
	c.DebugLevel = "LOUD"

	issues := c.Validate()
	wants := []string{
		"Invalid WebSocket URL",
		"max delay",
		"multiplier",
		"Transfer timeout",
		"history size",
		"Invalid debug level",
	}
	joined := strings.Join(issues, "\n")
	for _, w := range wants {
		if !strings.Contains(joined, w) {
			t.Fatalf("missing issue %q in:\n%s", w, joined)
		}
	}
}
