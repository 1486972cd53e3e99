package esplink

import (
	"sync"
	"testing"
	"time"
)

// ---- event recorder ----

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, e := range r.all() {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// ---- fake sender ----

type fakeSender struct {
	mu   sync.Mutex
	ok   bool
	sent []Command
}

func (f *fakeSender) Send(cmd Command) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return f.ok
}

func (f *fakeSender) commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.sent))
	copy(out, f.sent)
	return out
}

// ---- helpers ----

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() *LinkConfig {
	c := DefaultLinkConfig()
	c.DeviceID = "test-client"
	c.ReconnectBaseDelay = 50 * time.Millisecond
	c.ReconnectMaxDelay = 200 * time.Millisecond
	c.ConnectTimeout = 200 * time.Millisecond
	c.MinConnectInterval = 0
	c.TransferTimeout = time.Second
	return c
}
