package esplink

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind groups error codes by the recovery policy that applies to them.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindProtocol   ErrorKind = "protocol"
	KindTransfer   ErrorKind = "transfer"
	KindConfig     ErrorKind = "config"
	KindFetch      ErrorKind = "fetch"
)

// Error codes as constants
const (
	ErrCodeAttemptTimeout     = "ATTEMPT_TIMEOUT"
	ErrCodeConnectionRefused  = "CONNECTION_REFUSED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeNotConnected       = "NOT_CONNECTED"
	ErrCodeConnectionLost     = "CONNECTION_LOST"
	ErrCodeMalformedFrame     = "MALFORMED_FRAME"
	ErrCodeMissingType        = "MISSING_TYPE"
	ErrCodeDeviceError        = "DEVICE_ERROR"
	ErrCodeTransferInProgress = "TRANSFER_IN_PROGRESS"
	ErrCodeTransferFailed     = "TRANSFER_FAILED"
	ErrCodeTransferTimeout    = "TRANSFER_TIMEOUT"
	ErrCodeInvalidTransfer    = "INVALID_TRANSFER"
	ErrCodeConfigInvalid      = "CONFIG_INVALID"
	ErrCodeAudioFetch         = "AUDIO_FETCH_FAILED"
)

// LinkError is the error type returned and broadcast by this package.
type LinkError struct {
	Kind      ErrorKind
	Code      string
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	err       error
}

func (e *LinkError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LinkError) Unwrap() error {
	return e.err
}

// Is matches another *LinkError by code so callers can compare against the
// sentinel values below with errors.Is.
func (e *LinkError) Is(target error) bool {
	t, ok := target.(*LinkError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewLinkError(kind ErrorKind, code, message string) *LinkError {
	return &LinkError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Sentinels for errors.Is.
var (
	ErrRateLimited        = &LinkError{Kind: KindConnection, Code: ErrCodeRateLimited}
	ErrNotConnected       = &LinkError{Kind: KindConnection, Code: ErrCodeNotConnected}
	ErrTransferInProgress = &LinkError{Kind: KindTransfer, Code: ErrCodeTransferInProgress}
	ErrTransferTimeout    = &LinkError{Kind: KindTransfer, Code: ErrCodeTransferTimeout}
)

// Wrap attaches a cause.
func (e *LinkError) Wrap(err error) *LinkError {
	e.err = err
	return e
}

func (e *LinkError) AddDetail(key string, value interface{}) *LinkError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *LinkError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

func NewConnectionError(code, message string) *LinkError {
	return NewLinkError(KindConnection, code, message)
}

func NewProtocolError(code, message string) *LinkError {
	return NewLinkError(KindProtocol, code, message)
}

func NewTransferError(code, message string) *LinkError {
	return NewLinkError(KindTransfer, code, message)
}

func NewConfigError(message string) *LinkError {
	return NewLinkError(KindConfig, ErrCodeConfigInvalid, message)
}

func NewFetchError(message string) *LinkError {
	return NewLinkError(KindFetch, ErrCodeAudioFetch, message)
}

// AsLinkError unwraps err into a *LinkError if it holds one.
func AsLinkError(err error) (*LinkError, bool) {
	var le *LinkError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func IsErrorCode(err error, code string) bool {
	le, ok := AsLinkError(err)
	return ok && le.Code == code
}

// IsRetryableError reports whether the connection layer retries this failure
// on its own. Transfer failures are never retried automatically.
func IsRetryableError(err error) bool {
	le, ok := AsLinkError(err)
	if !ok {
		return false
	}
	return le.Kind == KindConnection && le.Code != ErrCodeNotConnected
}
