package esplink

import (
	"time"
)

// Client wires one connection, event bus, status cache and transfer
// coordinator together. Construct one per device and pass it to consumers.
type Client struct {
	*CommandAPI

	config    *LinkConfig
	log       *Logger
	codec     *Codec
	bus       *EventBus
	conn      *WebSocketClient
	status    *StatusCache
	transfers *AudioTransferCoordinator
}

// Option customises a Client at construction.
type Option func(*clientOptions)

type clientOptions struct {
	log     *Logger
	dialer  Dialer
	fetcher AudioFetcher
}

func WithLogger(log *Logger) Option {
	return func(o *clientOptions) { o.log = log }
}

func WithDialer(d Dialer) Option {
	return func(o *clientOptions) { o.dialer = d }
}

func WithAudioFetcher(f AudioFetcher) Option {
	return func(o *clientOptions) { o.fetcher = f }
}

func NewClient(config *LinkConfig, opts ...Option) *Client {
	if config == nil {
		config = NewLinkConfig()
	}
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = NewLogger(&LogConfig{Level: config.DebugLevel, Pretty: true})
	}
	if o.fetcher == nil && config.APIBaseURL != "" {
		o.fetcher = NewBackendClientFromConfig(config)
	}

	codec := NewCodec()
	bus := NewEventBus(o.log)
	conn := NewWebSocketClient(config, bus, codec, o.log)
	if o.dialer != nil {
		conn.SetDialer(o.dialer)
	}
	transfers := NewAudioTransferCoordinator(conn, bus, config, o.log)

	c := &Client{
		CommandAPI: NewCommandAPI(conn, transfers, o.fetcher, o.log),
		config:     config,
		log:        o.log.WithComponent("client"),
		codec:      codec,
		bus:        bus,
		conn:       conn,
		status:     NewStatusCache(),
		transfers:  transfers,
	}
	conn.SetFrameHandler(c.handleFrame)
	bus.Subscribe(c.trackConnection)

	if config.AutoConnect {
		if _, err := c.Connect(); err != nil {
			c.log.WithError(err).Warn("Auto-connect failed")
		}
	}
	return c
}

// Connect connects to the configured URL.
func (c *Client) Connect() (ConnectionState, error) {
	return c.conn.Connect(c.config.URL)
}

// ConnectTo connects to url, which becomes the reconnect target.
func (c *Client) ConnectTo(url string) (ConnectionState, error) {
	return c.conn.Connect(url)
}

func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Subscribe registers a listener for every event. The returned function
// removes it.
func (c *Client) Subscribe(l Listener) func() {
	return c.bus.Subscribe(l)
}

func (c *Client) SubscribeHandlers(h Handlers) func() {
	return c.bus.SubscribeHandlers(h)
}

func (c *Client) ConnectionState() ConnectionState {
	return c.conn.GetState()
}

func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// Status returns the last-known device status.
func (c *Client) Status() DeviceStatus {
	return c.status.Snapshot()
}

// Transfer returns the state of the current or last audio transfer.
func (c *Client) Transfer() TransferState {
	return c.transfers.State()
}

// TransferHistory returns recently completed transfers, oldest first.
func (c *Client) TransferHistory() []string {
	return c.transfers.History()
}

func (c *Client) NextReconnectDelay() (time.Duration, bool) {
	return c.conn.NextReconnectDelay()
}

func (c *Client) Config() *LinkConfig {
	return c.config
}

func (c *Client) GetWebSocketClient() *WebSocketClient {
	return c.conn
}

func (c *Client) GetEventBus() *EventBus {
	return c.bus
}

// handleFrame runs on the connection's reader goroutine.
func (c *Client) handleFrame(data []byte) {
	ev := c.codec.Decode(data)
	if c.config.DebugWebsocket {
		c.log.LogFrame("in", string(ev.EventType()), len(data))
	}

	switch e := ev.(type) {
	case StatusUpdateEvent:
		e.Status = c.status.Update(e.Patch)
		c.bus.Broadcast(e)

	case HeartbeatEvent:
		c.status.Update(e.Patch())
		c.bus.Broadcast(e)

	case CategoryChangedEvent:
		if e.Category > 0 {
			c.status.Update(StatusPatch{Category: intPtr(e.Category), ReceivedAt: c.codec.now()})
		}
		c.bus.Broadcast(e)

	case TransferProgressEvent:
		c.transfers.OnProgress(e.Filename, e.Progress, e.BytesTransferred, e.TotalBytes)

	case TransferCompleteEvent:
		c.transfers.OnComplete(e.Filename, e.Success, e.Error)

	case ErrorEvent:
		c.log.WithField("code", e.Code).Warn(e.Message)
		c.bus.Broadcast(e)

	default:
		c.bus.Broadcast(ev)
	}
}

// trackConnection mirrors the link state into the cached status so Status()
// reports reachability without waiting for the next status frame.
func (c *Client) trackConnection(e Event) {
	if ev, ok := e.(ConnectionChangedEvent); ok {
		c.status.Update(StatusPatch{Connected: boolPtr(ev.Connected)})
	}
}

// Cleanup disconnects and stops reconnection.
func (c *Client) Cleanup() {
	c.conn.Disconnect()
	c.log.Info("ESP32 link client cleaned up")
}
