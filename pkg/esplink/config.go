package esplink

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultReconnectBaseDelay  = 5 * time.Second
	DefaultReconnectMaxDelay   = 60 * time.Second
	DefaultReconnectMultiplier = 2.0
	DefaultConnectTimeout      = 10 * time.Second
	DefaultMinConnectInterval  = time.Second
	DefaultTransferTimeout     = 30 * time.Second
	DefaultTransferHistorySize = 20
	DefaultClientVersion       = "1.0.0"
)

type LinkConfig struct {
	URL                 string            `yaml:"url"`
	DeviceID            string            `yaml:"device_id"`
	ClientVersion       string            `yaml:"client_version"`
	Headers             map[string]string `yaml:"headers"`
	AutoConnect         bool              `yaml:"auto_connect"`
	AutoReconnect       bool              `yaml:"auto_reconnect"`
	ReconnectBaseDelay  time.Duration     `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration     `yaml:"reconnect_max_delay"`
	ReconnectMultiplier float64           `yaml:"reconnect_multiplier"`
	ConnectTimeout      time.Duration     `yaml:"connect_timeout"`
	MinConnectInterval  time.Duration     `yaml:"min_connect_interval"`
	TransferTimeout     time.Duration     `yaml:"transfer_timeout"`
	TransferHistorySize int               `yaml:"transfer_history_size"`
	AuthSecret          string            `yaml:"auth_secret"`
	APIBaseURL          string            `yaml:"api_base_url"`
	APIToken            string            `yaml:"api_token"`
	DebugLevel          string            `yaml:"debug_level"`
	DebugWebsocket      bool              `yaml:"debug_websocket"`
}

// NewLinkConfig returns defaults overlaid with ESPLINK_* environment variables
// (a .env file in the working directory is loaded first if present).
func NewLinkConfig() *LinkConfig {
	c := DefaultLinkConfig()
	c.loadFromEnv()
	return c
}

// DefaultLinkConfig returns defaults only, ignoring the environment.
func DefaultLinkConfig() *LinkConfig {
	return &LinkConfig{
		DeviceID:            "esplink-" + uuid.NewString(),
		ClientVersion:       DefaultClientVersion,
		Headers:             make(map[string]string),
		AutoReconnect:       true,
		ReconnectBaseDelay:  DefaultReconnectBaseDelay,
		ReconnectMaxDelay:   DefaultReconnectMaxDelay,
		ReconnectMultiplier: DefaultReconnectMultiplier,
		ConnectTimeout:      DefaultConnectTimeout,
		MinConnectInterval:  DefaultMinConnectInterval,
		TransferTimeout:     DefaultTransferTimeout,
		TransferHistorySize: DefaultTransferHistorySize,
		DebugLevel:          "INFO",
	}
}

// LoadConfigFile reads a YAML file on top of NewLinkConfig. Durations are Go
// duration strings ("5s", "250ms").
func LoadConfigFile(path string) (*LinkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError("read " + path).Wrap(err)
	}

	c := NewLinkConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, NewConfigError("parse " + path).Wrap(err)
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	return c, nil
}

func (c *LinkConfig) loadFromEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("ESPLINK_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("ESPLINK_DEVICE_ID"); v != "" {
		c.DeviceID = v
	}
	if v := os.Getenv("ESPLINK_CLIENT_VERSION"); v != "" {
		c.ClientVersion = v
	}

	c.AutoConnect = os.Getenv("ESPLINK_AUTO_CONNECT") == "true"
	c.AutoReconnect = os.Getenv("ESPLINK_AUTO_RECONNECT") != "false"

	envDuration("ESPLINK_RECONNECT_BASE_DELAY", &c.ReconnectBaseDelay)
	envDuration("ESPLINK_RECONNECT_MAX_DELAY", &c.ReconnectMaxDelay)
	envDuration("ESPLINK_CONNECT_TIMEOUT", &c.ConnectTimeout)
	envDuration("ESPLINK_MIN_CONNECT_INTERVAL", &c.MinConnectInterval)
	envDuration("ESPLINK_TRANSFER_TIMEOUT", &c.TransferTimeout)

	if v := os.Getenv("ESPLINK_RECONNECT_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ReconnectMultiplier = f
		}
	}
	if v := os.Getenv("ESPLINK_TRANSFER_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TransferHistorySize = n
		}
	}

	if v := os.Getenv("ESPLINK_AUTH_SECRET"); v != "" {
		c.AuthSecret = v
	}
	if v := os.Getenv("ESPLINK_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("ESPLINK_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv("ESPLINK_DEBUG_LEVEL"); v != "" {
		c.DebugLevel = v
	}
	c.DebugWebsocket = os.Getenv("ESPLINK_DEBUG_WEBSOCKET") == "true"
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	// Bare integers are milliseconds.
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

// Backoff returns the reconnect policy described by c.
func (c *LinkConfig) Backoff() Backoff {
	return Backoff{
		Base:       c.ReconnectBaseDelay,
		Max:        c.ReconnectMaxDelay,
		Multiplier: c.ReconnectMultiplier,
	}
}

// Validate returns list of issues
func (c *LinkConfig) Validate() []string {
	issues := []string{}

	if c.URL != "" && !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		issues = append(issues, "Invalid WebSocket URL format (must start with ws:// or wss://)")
	}
	if c.DeviceID == "" {
		issues = append(issues, "Device ID must not be empty")
	}
	if c.ReconnectBaseDelay <= 0 {
		issues = append(issues, "Reconnect base delay must be positive")
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		issues = append(issues, "Reconnect max delay must be >= base delay")
	}
	if c.ReconnectMultiplier < 1 {
		issues = append(issues, "Reconnect multiplier must be >= 1")
	}
	if c.ConnectTimeout <= 0 {
		issues = append(issues, "Connect timeout must be positive")
	}
	if c.MinConnectInterval < 0 {
		issues = append(issues, "Min connect interval must not be negative")
	}
	if c.TransferTimeout <= 0 {
		issues = append(issues, "Transfer timeout must be positive")
	}
	if c.TransferHistorySize < 1 {
		issues = append(issues, "Transfer history size must be at least 1")
	}
	if c.APIBaseURL != "" && !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		issues = append(issues, "Invalid API base URL format")
	}

	validLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR"}
	found := false
	for _, level := range validLevels {
		if strings.EqualFold(level, c.DebugLevel) {
			found = true
			break
		}
	}
	if !found {
		issues = append(issues, fmt.Sprintf("Invalid debug level: %s", c.DebugLevel))
	}

	return issues
}

func (c *LinkConfig) PrintConfig() {
	fmt.Println("ESP32 Link Configuration")
	fmt.Println("==================================================")
	fmt.Printf("WebSocket URL: %s\n", valueOr(c.URL, "<not set>"))
	fmt.Printf("Device ID: %s\n", c.DeviceID)
	fmt.Printf("Client Version: %s\n", c.ClientVersion)
	fmt.Printf("Auto Connect: %t\n", c.AutoConnect)
	fmt.Printf("Auto Reconnect: %t\n", c.AutoReconnect)
	fmt.Printf("Reconnect Delay: %s (x%.1f, max %s)\n", c.ReconnectBaseDelay, c.ReconnectMultiplier, c.ReconnectMaxDelay)
	fmt.Printf("Connect Timeout: %s\n", c.ConnectTimeout)
	fmt.Printf("Min Connect Interval: %s\n", c.MinConnectInterval)
	fmt.Printf("Transfer Timeout: %s\n", c.TransferTimeout)
	fmt.Printf("Transfer History Size: %d\n", c.TransferHistorySize)
	if c.AuthSecret != "" {
		fmt.Println("Handshake Auth: enabled")
	} else {
		fmt.Println("Handshake Auth: disabled")
	}
	fmt.Printf("API Base URL: %s\n", valueOr(c.APIBaseURL, "<not set>"))
	fmt.Printf("Debug Level: %s\n", c.DebugLevel)
	fmt.Printf("Debug WebSocket: %t\n", c.DebugWebsocket)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
