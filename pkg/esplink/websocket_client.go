package esplink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a WebSocket. It must give up when ctx is done.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Conn, error)
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

// NewGorillaDialer adapts a gorilla dialer; nil means websocket.DefaultDialer.
func NewGorillaDialer(d *websocket.Dialer) Dialer {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return gorillaDialer{dialer: d}
}

func (g gorillaDialer) DialContext(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := g.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (handshake status %s)", err, resp.Status)
		}
		return nil, err
	}
	return conn, nil
}

// CommandSender hands an encoded command to the current connection.
type CommandSender interface {
	Send(cmd Command) bool
}

// WebSocketClient owns the single connection to the device. Every dial,
// reader and reconnect timer is tagged with the epoch it was started under;
// Connect and Disconnect advance the epoch so superseded work is discarded.
type WebSocketClient struct {
	config  *LinkConfig
	dialer  Dialer
	codec   *Codec
	bus     *EventBus
	log     *Logger
	backoff Backoff
	now     func() time.Time

	mu                sync.Mutex
	onFrame           func([]byte)
	url               string
	state             ConnectionState
	conn              Conn
	epoch             uint64
	reconnectAttempts int
	reconnectTimer    *time.Timer
	reconnectDelay    time.Duration
	cancelDial        context.CancelFunc
	lastAttempt       time.Time
	announcements     []Event
	announcing        bool

	writeMu sync.Mutex
}

func NewWebSocketClient(config *LinkConfig, bus *EventBus, codec *Codec, log *Logger) *WebSocketClient {
	if config == nil {
		config = NewLinkConfig()
	}
	if log == nil {
		log = DefaultLogger()
	}
	if bus == nil {
		bus = NewEventBus(log)
	}
	if codec == nil {
		codec = NewCodec()
	}
	return &WebSocketClient{
		config:  config,
		dialer:  NewGorillaDialer(nil),
		codec:   codec,
		bus:     bus,
		log:     log.WithComponent("websocket"),
		backoff: config.Backoff(),
		now:     time.Now,
		url:     config.URL,
		state:   Disconnected,
	}
}

// SetDialer replaces the transport. Call before Connect.
func (wsc *WebSocketClient) SetDialer(d Dialer) {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	wsc.dialer = d
}

// SetFrameHandler installs the callback that receives every inbound frame on
// the reader goroutine.
func (wsc *WebSocketClient) SetFrameHandler(fn func([]byte)) {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	wsc.onFrame = fn
}

// Connect starts connecting to url (or the last/configured URL if empty). It
// is a no-op while connecting or connected and returns the current state.
// Attempts closer together than MinConnectInterval are rejected with
// RATE_LIMITED and deferred: a reconnect is armed for when the interval ends
// unless one is already pending.
func (wsc *WebSocketClient) Connect(url string) (ConnectionState, error) {
	wsc.mu.Lock()
	if wsc.state == Connecting || wsc.state == Connected {
		state := wsc.state
		wsc.mu.Unlock()
		return state, nil
	}
	if url == "" {
		url = wsc.url
	}
	if url == "" {
		wsc.mu.Unlock()
		return Disconnected, NewConfigError("no endpoint URL configured")
	}

	now := wsc.now()
	if !wsc.lastAttempt.IsZero() && now.Sub(wsc.lastAttempt) < wsc.config.MinConnectInterval {
		wait := wsc.config.MinConnectInterval - now.Sub(wsc.lastAttempt)
		wsc.url = url
		if wsc.reconnectTimer == nil {
			wsc.armReconnectLocked(wait)
		} else {
			wait = wsc.reconnectDelay
		}
		state := wsc.state
		wsc.mu.Unlock()
		err := NewConnectionError(ErrCodeRateLimited, "connect attempt rate limited").
			AddDetail("min_interval", wsc.config.MinConnectInterval.String()).
			AddDetail("retry_in", wait.String())
		wsc.log.WithField("url", url).Warn(err.Error())
		return state, err
	}

	wsc.lastAttempt = now
	wsc.url = url
	wsc.stopReconnectTimerLocked()
	wsc.beginAttemptLocked()
	wsc.mu.Unlock()

	wsc.log.LogConnectionEvent("connect", Connecting, map[string]interface{}{"url": url})
	return Connecting, nil
}

func (wsc *WebSocketClient) beginAttemptLocked() {
	wsc.epoch++
	wsc.state = Connecting
	ctx, cancel := context.WithTimeout(context.Background(), wsc.config.ConnectTimeout)
	wsc.cancelDial = cancel
	go wsc.dial(ctx, wsc.epoch, wsc.url, wsc.dialer)
}

func (wsc *WebSocketClient) dial(ctx context.Context, epoch uint64, url string, dialer Dialer) {
	header, err := handshakeHeader(wsc.config, wsc.now())
	var conn Conn
	if err == nil {
		conn, err = dialer.DialContext(ctx, url, header)
	}

	if err != nil {
		var linkErr *LinkError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			linkErr = NewConnectionError(ErrCodeAttemptTimeout,
				fmt.Sprintf("connection attempt timed out after %s", wsc.config.ConnectTimeout))
		} else {
			linkErr = NewConnectionError(ErrCodeConnectionRefused, "connection attempt failed").Wrap(err)
		}
		linkErr.AddDetail("url", url)

		wsc.mu.Lock()
		if epoch != wsc.epoch {
			wsc.mu.Unlock()
			return
		}
		wsc.clearDialLocked()
		wsc.state = Disconnected
		wsc.announceLocked(errorEventFrom(linkErr), ConnectionChangedEvent{Connected: false})
		wsc.mu.Unlock()

		wsc.log.LogError(linkErr)
		wsc.flushAnnouncements()
		wsc.scheduleReconnect(epoch)
		return
	}

	if !wsc.isCurrent(epoch) {
		conn.Close()
		return
	}

	// The identification frame goes out before the conn is published so no
	// command can precede it.
	ident := IdentifyCommand{Device: wsc.config.DeviceID, Version: wsc.config.ClientVersion}
	if data, err := wsc.codec.Encode(ident); err == nil {
		if err := wsc.writeFrame(conn, data); err != nil {
			wsc.log.WithError(err).Warn("Failed to send identification frame")
		}
	}

	wsc.mu.Lock()
	if epoch != wsc.epoch {
		wsc.mu.Unlock()
		conn.Close()
		return
	}
	wsc.clearDialLocked()
	wsc.conn = conn
	wsc.state = Connected
	wsc.reconnectAttempts = 0
	wsc.announceLocked(ConnectionChangedEvent{Connected: true})
	wsc.mu.Unlock()

	wsc.log.LogConnectionEvent("open", Connected, map[string]interface{}{"url": url})
	wsc.flushAnnouncements()

	if wsc.isCurrent(epoch) {
		go wsc.readLoop(epoch, conn)
	}
}

func (wsc *WebSocketClient) isCurrent(epoch uint64) bool {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return epoch == wsc.epoch
}

func (wsc *WebSocketClient) clearDialLocked() {
	if wsc.cancelDial != nil {
		wsc.cancelDial()
		wsc.cancelDial = nil
	}
}

// announceLocked queues connection-level events in the order the state
// transitions that produced them happened. Call flushAnnouncements after
// releasing mu.
func (wsc *WebSocketClient) announceLocked(events ...Event) {
	wsc.announcements = append(wsc.announcements, events...)
}

// flushAnnouncements broadcasts queued events. One goroutine drains at a time,
// so a Disconnect issued from a listener (or racing with an open) is delivered
// after the event already in flight, never before it.
func (wsc *WebSocketClient) flushAnnouncements() {
	wsc.mu.Lock()
	if wsc.announcing {
		wsc.mu.Unlock()
		return
	}
	wsc.announcing = true
	for len(wsc.announcements) > 0 {
		ev := wsc.announcements[0]
		wsc.announcements = wsc.announcements[1:]
		wsc.mu.Unlock()
		wsc.bus.Broadcast(ev)
		wsc.mu.Lock()
	}
	wsc.announcements = nil
	wsc.announcing = false
	wsc.mu.Unlock()
}

func (wsc *WebSocketClient) readLoop(epoch uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			wsc.handleClosed(epoch, conn, err)
			return
		}

		wsc.mu.Lock()
		current := epoch == wsc.epoch && wsc.conn == conn
		handler := wsc.onFrame
		wsc.mu.Unlock()
		if !current {
			return
		}

		if handler != nil {
			handler(data)
		}
	}
}

// handleClosed runs on the reader when the socket ends without Disconnect.
// Observers see the Error event (if any) before ConnectionChanged(false).
func (wsc *WebSocketClient) handleClosed(epoch uint64, conn Conn, err error) {
	var linkErr *LinkError
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		linkErr = NewConnectionError(ErrCodeConnectionLost, "connection lost").Wrap(err)
	}

	wsc.mu.Lock()
	if epoch != wsc.epoch || wsc.conn != conn {
		wsc.mu.Unlock()
		return
	}
	wsc.conn = nil
	wsc.state = Disconnected
	if linkErr != nil {
		wsc.announceLocked(errorEventFrom(linkErr))
	}
	wsc.announceLocked(ConnectionChangedEvent{Connected: false})
	wsc.mu.Unlock()
	conn.Close()

	if linkErr != nil {
		wsc.log.LogError(linkErr)
	}
	wsc.log.LogConnectionEvent("closed", Disconnected, nil)
	wsc.flushAnnouncements()
	wsc.scheduleReconnect(epoch)
}

// scheduleReconnect arms the backoff timer unless something newer (a manual
// Connect or Disconnect from a listener) already took over.
func (wsc *WebSocketClient) scheduleReconnect(epoch uint64) {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()

	if !wsc.config.AutoReconnect || epoch != wsc.epoch || wsc.state != Disconnected {
		return
	}

	delay := wsc.backoff.Delay(wsc.reconnectAttempts)
	wsc.reconnectAttempts++
	wsc.armReconnectLocked(delay)

	wsc.log.LogConnectionEvent("reconnect_scheduled", Disconnected, map[string]interface{}{
		"attempt": wsc.reconnectAttempts,
		"delay":   delay.String(),
	})
}

func (wsc *WebSocketClient) armReconnectLocked(delay time.Duration) {
	wsc.stopReconnectTimerLocked()
	epoch := wsc.epoch
	wsc.reconnectDelay = delay
	wsc.reconnectTimer = time.AfterFunc(delay, func() { wsc.reconnect(epoch) })
}

// reconnect is paced by the backoff, so it skips the user rate limit.
func (wsc *WebSocketClient) reconnect(epoch uint64) {
	wsc.mu.Lock()
	if epoch != wsc.epoch || wsc.state != Disconnected {
		wsc.mu.Unlock()
		return
	}
	wsc.reconnectTimer = nil
	wsc.reconnectDelay = 0
	wsc.lastAttempt = wsc.now()
	attempt := wsc.reconnectAttempts
	url := wsc.url
	wsc.beginAttemptLocked()
	wsc.mu.Unlock()

	wsc.log.LogConnectionEvent("reconnect", Connecting, map[string]interface{}{
		"url":     url,
		"attempt": attempt,
	})
}

func (wsc *WebSocketClient) stopReconnectTimerLocked() {
	if wsc.reconnectTimer != nil {
		wsc.reconnectTimer.Stop()
		wsc.reconnectTimer = nil
	}
	wsc.reconnectDelay = 0
}

// Disconnect closes the connection with a normal-closure code and stops all
// automatic reconnection, including a reconnect that is already scheduled.
func (wsc *WebSocketClient) Disconnect() {
	wsc.mu.Lock()
	wsc.epoch++
	wsc.stopReconnectTimerLocked()
	wsc.clearDialLocked()
	conn := wsc.conn
	wsc.conn = nil
	prev := wsc.state
	wsc.state = Disconnected
	wsc.reconnectAttempts = 0
	if prev != Disconnected {
		wsc.announceLocked(ConnectionChangedEvent{Connected: false})
	}
	wsc.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		wsc.writeMu.Lock()
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			wsc.log.WithError(err).Debug("Close frame not sent")
		}
		wsc.writeMu.Unlock()
		conn.Close()
	}

	if prev != Disconnected {
		wsc.log.LogConnectionEvent("disconnect", Disconnected, nil)
	}
	wsc.flushAnnouncements()
}

// Send encodes cmd and writes it to the open socket. It returns false (and
// logs a warning) when not connected or when the write fails. Nothing is
// queued or retried.
func (wsc *WebSocketClient) Send(cmd Command) bool {
	if cmd == nil {
		wsc.log.Warn("Refusing to send nil command")
		return false
	}
	data, err := wsc.codec.Encode(cmd)
	if err != nil {
		wsc.log.WithError(err).Warn("Failed to encode command")
		return false
	}

	wsc.mu.Lock()
	conn := wsc.conn
	state := wsc.state
	wsc.mu.Unlock()

	if state != Connected || conn == nil {
		wsc.log.WithField("type", cmd.CommandType()).Warn("Not connected, dropping command")
		return false
	}

	if err := wsc.writeFrame(conn, data); err != nil {
		wsc.log.WithField("type", cmd.CommandType()).WithError(err).Warn("Failed to send command")
		return false
	}
	if wsc.config.DebugWebsocket {
		wsc.log.LogFrame("out", cmd.CommandType(), len(data))
	}
	return true
}

func (wsc *WebSocketClient) writeFrame(conn Conn, data []byte) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (wsc *WebSocketClient) GetState() ConnectionState {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return wsc.state
}

func (wsc *WebSocketClient) IsConnected() bool {
	return wsc.GetState() == Connected
}

func (wsc *WebSocketClient) URL() string {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return wsc.url
}

// ReconnectAttempts returns the number of consecutive failed attempts since
// the last successful open.
func (wsc *WebSocketClient) ReconnectAttempts() int {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return wsc.reconnectAttempts
}

// NextReconnectDelay reports the delay of the pending reconnect, if any.
func (wsc *WebSocketClient) NextReconnectDelay() (time.Duration, bool) {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return wsc.reconnectDelay, wsc.reconnectTimer != nil
}
