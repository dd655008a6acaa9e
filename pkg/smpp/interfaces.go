package smpp

import (
	"context"
	"encoding/json"
	"time"
)

// Duration wraps time.Duration to allow JSON unmarshaling
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ToDuration converts to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// Session modes
const (
	ModeSync       = "sync"
	ModeConcurrent = "concurrent"
)

// Bind types
const (
	BindTypeTransmitter = "transmitter"
	BindTypeReceiver    = "receiver"
	BindTypeTransceiver = "transceiver"
)

// ClientConfig represents client configuration
type ClientConfig struct {
	Host                 string        `json:"host"`
	Port                 int           `json:"port"`
	SystemID             string        `json:"system_id"`
	Password             string        `json:"password"`
	SystemType           string        `json:"system_type"`
	BindType             string        `json:"bind_type"`
	Mode                 string        `json:"mode"`
	ConnectTimeout       time.Duration `json:"connect_timeout"`
	ResponseTimeout      time.Duration `json:"response_timeout"`
	WriteTimeout         time.Duration `json:"write_timeout"`
	EnquireLinkInterval  time.Duration `json:"enquire_link_interval"`
	ReconnectInterval    time.Duration `json:"reconnect_interval"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	MaxOutstanding       int           `json:"max_outstanding"`
	SubmitRate           float64       `json:"submit_rate"`
	SubmitBurst          int           `json:"submit_burst"`
	TLSEnabled           bool          `json:"tls_enabled"`
	TLSSkipVerify        bool          `json:"tls_skip_verify"`
	LogLevel             string        `json:"log_level"`
}

// BindCommand maps BindType to the bind request command id.
func (c *ClientConfig) BindCommand() uint32 {
	switch c.BindType {
	case BindTypeTransmitter:
		return CommandBindTransmitter
	case BindTypeReceiver:
		return CommandBindReceiver
	default:
		return CommandBindTransceiver
	}
}

// Logger interface defines logging operations
type Logger interface {
	// Debug logs a debug message
	Debug(msg string, fields ...interface{})

	// Info logs an info message
	Info(msg string, fields ...interface{})

	// Warn logs a warning message
	Warn(msg string, fields ...interface{})

	// Error logs an error message
	Error(msg string, fields ...interface{})

	// Fatal logs a fatal message and exits
	Fatal(msg string, fields ...interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger
}

// CriticalLogger is implemented by loggers with a severity above error.
type CriticalLogger interface {
	Critical(msg string, fields ...interface{})
}

// MetricsCollector interface defines metrics collection operations
type MetricsCollector interface {
	// IncCounter increments a counter metric
	IncCounter(name string, labels map[string]string)

	// SetGauge sets a gauge metric
	SetGauge(name string, value float64, labels map[string]string)

	// ObserveHistogram observes a value for a histogram metric
	ObserveHistogram(name string, value float64, labels map[string]string)

	// RecordDuration records a duration metric
	RecordDuration(name string, duration time.Duration, labels map[string]string)
}

// Metric names reported by sessions
const (
	MetricPDUsSent          = "pdus_sent"
	MetricPDUsReceived      = "pdus_received"
	MetricStateTransitions  = "state_transitions"
	MetricPendingRequests   = "pending_requests"
	MetricResponseLatency   = "response_latency"
	MetricRequestsRejected  = "requests_rejected"
	MetricMalformedPDUs     = "malformed_pdus"
	MetricUnhandledCommands = "unhandled_commands"
)

// Throttler paces outbound submissions.
type Throttler interface {
	Wait(ctx context.Context) error
}

// Window bounds the number of requests awaiting a response.
type Window interface {
	Acquire(ctx context.Context) error
	Release()
}

// EventPublisher interface defines event publishing operations
type EventPublisher interface {
	// PublishSessionEvent publishes a session lifecycle event
	PublishSessionEvent(ctx context.Context, event *SessionEvent) error

	// Subscribe subscribes to events of a specific type
	Subscribe(ctx context.Context, eventType EventType, handler EventHandler) error

	// Unsubscribe unsubscribes from events
	Unsubscribe(ctx context.Context, eventType EventType, handler EventHandler) error
}

// EventHandler interface defines event handling operations
type EventHandler interface {
	// HandleEvent handles an event
	HandleEvent(ctx context.Context, event Event) error

	// GetHandlerID returns a unique identifier for this handler
	GetHandlerID() string
}

// Event represents a system event
type Event interface {
	GetEventType() EventType
	GetTimestamp() time.Time
	GetData() map[string]interface{}
}

// EventType represents the type of event
type EventType string

const (
	EventTypeConnected       EventType = "session.connected"
	EventTypeBound           EventType = "session.bound"
	EventTypeUnbound         EventType = "session.unbound"
	EventTypeDisconnected    EventType = "session.disconnected"
	EventTypeMessageReceived EventType = "message.received"
)

// SessionEvent represents a session lifecycle event
type SessionEvent struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	State     SessionState
	Error     error
	Data      map[string]interface{}
}

func (e *SessionEvent) GetEventType() EventType {
	return e.Type
}

func (e *SessionEvent) GetTimestamp() time.Time {
	return e.Timestamp
}

func (e *SessionEvent) GetData() map[string]interface{} {
	return e.Data
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
func (l nopLogger) WithFields(map[string]interface{}) Logger { return l }

type nopMetrics struct{}

func (nopMetrics) IncCounter(string, map[string]string) {}
func (nopMetrics) SetGauge(string, float64, map[string]string) {}
func (nopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (nopMetrics) RecordDuration(string, time.Duration, map[string]string) {}
