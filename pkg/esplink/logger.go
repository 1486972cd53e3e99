package esplink

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging
type Logger struct {
	logger zerolog.Logger
}

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level     string
	Pretty    bool
	Output    io.Writer
	AddSource bool
	Fields    map[string]interface{}
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  "INFO",
		Pretty: true,
		Output: os.Stderr,
		Fields: make(map[string]interface{}),
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *LogConfig) *Logger {
	if config == nil {
		config = DefaultLogConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(out)
	}

	logger = logger.Level(parseLevel(config.Level)).With().Timestamp().Logger()

	if config.AddSource {
		logger = logger.With().Caller().Logger()
	}
	if len(config.Fields) > 0 {
		logger = logger.With().Fields(config.Fields).Logger()
	}

	return &Logger{logger: logger}
}

// NopLogger discards everything. Handy in tests.
func NopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.logger.Debug().Msgf(format, args...) }

func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.logger.Info().Msgf(format, args...) }

func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.logger.Warn().Msgf(format, args...) }

func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }

// Fatal logs a fatal level message and exits
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

// LogConnectionEvent logs connection-related events
func (l *Logger) LogConnectionEvent(event string, state ConnectionState, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "connection").
		Str("event", event).
		Str("state", string(state)).
		Fields(fields).
		Msg("Connection event")
}

// LogTransferEvent logs audio transfer lifecycle steps
func (l *Logger) LogTransferEvent(event string, state TransferState) {
	l.logger.Info().
		Str("event_type", "transfer").
		Str("event", event).
		Str("filename", state.Filename).
		Str("phase", string(state.Phase)).
		Int("progress", state.Progress).
		Int64("bytes_transferred", state.BytesTransferred).
		Int64("total_bytes", state.TotalBytes).
		Str("error", state.Error).
		Msg("Transfer event")
}

// LogFrame logs an inbound or outbound frame at debug level
func (l *Logger) LogFrame(direction, frameType string, size int) {
	l.logger.Debug().
		Str("event_type", "frame").
		Str("direction", direction).
		Str("frame_type", frameType).
		Int("size", size).
		Msg("Frame")
}

// LogError logs a LinkError with structured fields
func (l *Logger) LogError(err *LinkError) {
	event := l.logger.Error().
		Str("error_kind", string(err.Kind)).
		Str("error_code", err.Code).
		Fields(err.Details)
	if err.err != nil {
		event = event.Err(err.err)
	}
	event.Msg(err.Message)
}

var defaultLogger = NewLogger(DefaultLogConfig())

// DefaultLogger returns the package-level logger used when none is injected.
func DefaultLogger() *Logger {
	return defaultLogger
}
