package esplink

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

// AudioTransferCoordinator drives one audio push at a time:
//
//	idle -> transferring -> (progress)* -> completed | failed -> transferring ...
//
// Progress frames reset an inactivity timer; if the device goes quiet for
// longer than the timeout the transfer fails. Starting a new transfer while
// one is in flight is rejected.
type AudioTransferCoordinator struct {
	sender      CommandSender
	bus         *EventBus
	log         *Logger
	timeout     time.Duration
	historySize int
	now         func() time.Time

	mu       sync.Mutex
	state    TransferState
	history  []string
	timer    *time.Timer
	timerSeq uint64
}

func NewAudioTransferCoordinator(sender CommandSender, bus *EventBus, config *LinkConfig, log *Logger) *AudioTransferCoordinator {
	if config == nil {
		config = DefaultLinkConfig()
	}
	if log == nil {
		log = DefaultLogger()
	}
	if bus == nil {
		bus = NewEventBus(log)
	}
	historySize := config.TransferHistorySize
	if historySize < 1 {
		historySize = DefaultTransferHistorySize
	}
	timeout := config.TransferTimeout
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	return &AudioTransferCoordinator{
		sender:      sender,
		bus:         bus,
		log:         log.WithComponent("audio_transfer"),
		timeout:     timeout,
		historySize: historySize,
		now:         time.Now,
		state:       TransferState{Phase: TransferIdle},
	}
}

// EstimateDecodedSize returns the byte length encoded by a base64 payload.
func EstimateDecodedSize(b64 string) int64 {
	n := len(b64)
	if n == 0 {
		return 0
	}
	padding := len(b64) - len(strings.TrimRight(b64, "="))
	size := int64(base64.StdEncoding.DecodedLen(n)) - int64(padding)
	if size < 0 {
		return 0
	}
	return size
}

// Start begins pushing filename to the device. It fails without touching the
// in-flight state when a transfer is already running, and fails the attempt
// immediately when the command cannot be handed to the socket.
func (c *AudioTransferCoordinator) Start(filename, base64Data string, meta TransferMetadata) error {
	if filename == "" {
		return NewTransferError(ErrCodeInvalidTransfer, "filename is required")
	}
	if base64Data == "" {
		return NewTransferError(ErrCodeInvalidTransfer, "audio payload is empty").AddDetail("filename", filename)
	}

	c.mu.Lock()
	if c.state.Phase == TransferTransferring {
		inFlight := c.state.Filename
		c.mu.Unlock()
		return NewTransferError(ErrCodeTransferInProgress,
			fmt.Sprintf("transfer of %s already in progress", inFlight)).
			AddDetail("in_flight", inFlight).
			AddDetail("requested", filename)
	}

	now := c.now()
	size := EstimateDecodedSize(base64Data)
	c.state = TransferState{
		Filename:   filename,
		TotalBytes: size,
		Phase:      TransferTransferring,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	c.armTimerLocked()
	started := c.state
	c.mu.Unlock()

	c.log.LogTransferEvent("start", started)
	c.bus.Broadcast(TransferProgressEvent{Filename: filename, Progress: 0, TotalBytes: size})

	cmd := TransferAudioCommand{
		Filename:     filename,
		AudioData:    base64Data,
		MessageID:    meta.MessageID,
		MessageText:  meta.MessageText,
		CategoryName: meta.CategoryName,
		AudioSize:    size,
	}
	if c.sender != nil && c.sender.Send(cmd) {
		return nil
	}

	err := NewTransferError(ErrCodeNotConnected, "could not send transfer_audio: not connected").
		AddDetail("filename", filename)
	c.finish(filename, 0, false, err.Message)
	return err
}

// OnProgress applies a progress frame. Frames for any other file than the one
// in flight are ignored. Progress and byte counts never go backwards.
func (c *AudioTransferCoordinator) OnProgress(filename string, progress int, bytesTransferred, totalBytes int64) {
	c.mu.Lock()
	if c.state.Phase != TransferTransferring || c.state.Filename != filename {
		current := c.state.Filename
		c.mu.Unlock()
		c.log.WithField("filename", filename).WithField("current", current).Debug("Ignoring stale transfer progress")
		return
	}

	if progress > 100 {
		progress = 100
	}
	if progress > c.state.Progress {
		c.state.Progress = progress
	}
	if bytesTransferred > c.state.BytesTransferred {
		c.state.BytesTransferred = bytesTransferred
	}
	if totalBytes > 0 {
		c.state.TotalBytes = totalBytes
	}
	c.state.UpdatedAt = c.now()
	c.armTimerLocked()
	ev := TransferProgressEvent{
		Filename:         c.state.Filename,
		Progress:         c.state.Progress,
		BytesTransferred: c.state.BytesTransferred,
		TotalBytes:       c.state.TotalBytes,
	}
	c.mu.Unlock()

	c.bus.Broadcast(ev)
}

// OnComplete applies a completion or error frame for filename. Only the first
// outcome for the in-flight transfer is applied.
func (c *AudioTransferCoordinator) OnComplete(filename string, success bool, errMsg string) {
	if c.finish(filename, 0, success, errMsg) && !success {
		c.log.LogError(NewTransferError(ErrCodeTransferFailed, errMsg).AddDetail("filename", filename))
	}
}

// finish moves the transfer to a terminal phase if filename is still in
// flight, then emits TransferComplete. A non-zero seq must match the current
// timer.
func (c *AudioTransferCoordinator) finish(filename string, seq uint64, success bool, errMsg string) bool {
	c.mu.Lock()
	if c.state.Phase != TransferTransferring || c.state.Filename != filename || (seq != 0 && seq != c.timerSeq) {
		c.mu.Unlock()
		c.log.WithField("filename", filename).Debug("Ignoring outcome for transfer not in flight")
		return false
	}

	c.stopTimerLocked()
	c.state.UpdatedAt = c.now()
	if success {
		c.state.Phase = TransferCompleted
		c.state.Progress = 100
		if c.state.TotalBytes > c.state.BytesTransferred {
			c.state.BytesTransferred = c.state.TotalBytes
		}
		c.state.Error = ""
		c.history = append(c.history, filename)
		if len(c.history) > c.historySize {
			c.history = append([]string(nil), c.history[len(c.history)-c.historySize:]...)
		}
	} else {
		c.state.Phase = TransferFailed
		if errMsg == "" {
			errMsg = "transfer failed"
		}
		c.state.Error = errMsg
	}
	final := c.state
	c.mu.Unlock()

	if success {
		c.log.LogTransferEvent("complete", final)
	} else {
		c.log.LogTransferEvent("failed", final)
	}
	c.bus.Broadcast(TransferCompleteEvent{Filename: filename, Success: success, Error: final.Error})
	return true
}

// armTimerLocked (re)starts the inactivity timer. Each arm gets a new
// sequence number; a timer whose number is no longer current does nothing.
func (c *AudioTransferCoordinator) armTimerLocked() {
	c.stopTimerLocked()
	c.timerSeq++
	seq := c.timerSeq
	filename := c.state.Filename
	c.timer = time.AfterFunc(c.timeout, func() { c.onTimeout(filename, seq) })
}

func (c *AudioTransferCoordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *AudioTransferCoordinator) onTimeout(filename string, seq uint64) {
	err := NewTransferError(ErrCodeTransferTimeout, fmt.Sprintf("no response from device for %s", c.timeout)).
		AddDetail("filename", filename)
	if c.finish(filename, seq, false, err.Message) {
		c.log.LogError(err)
	}
}

// State returns a copy of the current transfer state.
func (c *AudioTransferCoordinator) State() TransferState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsTransferring reports whether a transfer is in flight.
func (c *AudioTransferCoordinator) IsTransferring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == TransferTransferring
}

// History returns the filenames of completed transfers, oldest first.
func (c *AudioTransferCoordinator) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.history))
	copy(out, c.history)
	return out
}
