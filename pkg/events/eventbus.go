package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

// EventBus implements a thread-safe event bus with pub/sub pattern
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[smpp.EventType][]smpp.EventHandler
	logger      smpp.Logger
	async       bool
}

// NewEventBus creates a new event bus. With async set, every handler runs on
// its own goroutine.
func NewEventBus(logger smpp.Logger, async bool) *EventBus {
	return &EventBus{
		subscribers: make(map[smpp.EventType][]smpp.EventHandler),
		logger:      logger,
		async:       async,
	}
}

// Subscribe subscribes to events of a specific type
func (eb *EventBus) Subscribe(ctx context.Context, eventType smpp.EventType, handler smpp.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, h := range eb.subscribers[eventType] {
		if h.GetHandlerID() == handler.GetHandlerID() {
			return fmt.Errorf("handler %s already subscribed to event type %s", handler.GetHandlerID(), eventType)
		}
	}

	eb.subscribers[eventType] = append(eb.subscribers[eventType], handler)

	if eb.logger != nil {
		eb.logger.Debug("Handler subscribed to event",
			"handler_id", handler.GetHandlerID(),
			"event_type", eventType)
	}

	return nil
}

// Unsubscribe unsubscribes from events
func (eb *EventBus) Unsubscribe(ctx context.Context, eventType smpp.EventType, handler smpp.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	handlers := eb.subscribers[eventType]
	for i, h := range handlers {
		if h.GetHandlerID() == handler.GetHandlerID() {
			eb.subscribers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("handler %s not found for event type %s", handler.GetHandlerID(), eventType)
}

// PublishSessionEvent publishes a session lifecycle event
func (eb *EventBus) PublishSessionEvent(ctx context.Context, event *smpp.SessionEvent) error {
	return eb.Publish(ctx, event)
}

// Publish delivers event to every subscriber of its type.
func (eb *EventBus) Publish(ctx context.Context, event smpp.Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	eb.mu.RLock()
	handlers := make([]smpp.EventHandler, len(eb.subscribers[event.GetEventType()]))
	copy(handlers, eb.subscribers[event.GetEventType()])
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	for _, handler := range handlers {
		if eb.async {
			go eb.handleEventSafely(ctx, handler, event)
			continue
		}
		if err := eb.handleEventSafely(ctx, handler, event); err != nil && eb.logger != nil {
			eb.logger.Error("Error handling event",
				"handler_id", handler.GetHandlerID(),
				"event_type", event.GetEventType(),
				"error", err)
		}
	}

	return nil
}

// handleEventSafely handles an event with panic recovery
func (eb *EventBus) handleEventSafely(ctx context.Context, handler smpp.EventHandler, event smpp.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in event handler %s: %v", handler.GetHandlerID(), r)
		}
	}()

	return handler.HandleEvent(ctx, event)
}

// GetSubscriberCount returns the number of subscribers for an event type
func (eb *EventBus) GetSubscriberCount(eventType smpp.EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[eventType])
}

// EventHandlerFunc adapts a function to smpp.EventHandler
type EventHandlerFunc struct {
	id      string
	handler func(ctx context.Context, event smpp.Event) error
}

// NewEventHandlerFunc creates a new EventHandlerFunc
func NewEventHandlerFunc(id string, handler func(ctx context.Context, event smpp.Event) error) *EventHandlerFunc {
	return &EventHandlerFunc{
		id:      id,
		handler: handler,
	}
}

// HandleEvent implements the EventHandler interface
func (ehf *EventHandlerFunc) HandleEvent(ctx context.Context, event smpp.Event) error {
	return ehf.handler(ctx, event)
}

// GetHandlerID implements the EventHandler interface
func (ehf *EventHandlerFunc) GetHandlerID() string {
	return ehf.id
}

// LoggingEventHandler logs all events
type LoggingEventHandler struct {
	id     string
	logger smpp.Logger
}

// NewLoggingEventHandler creates a new logging event handler
func NewLoggingEventHandler(id string, logger smpp.Logger) *LoggingEventHandler {
	return &LoggingEventHandler{
		id:     id,
		logger: logger,
	}
}

// HandleEvent logs the event
func (leh *LoggingEventHandler) HandleEvent(ctx context.Context, event smpp.Event) error {
	leh.logger.Info("Event received",
		"event_type", event.GetEventType(),
		"timestamp", event.GetTimestamp(),
		"data", event.GetData())
	return nil
}

// GetHandlerID returns the handler ID
func (leh *LoggingEventHandler) GetHandlerID() string {
	return leh.id
}

// MetricsEventHandler counts events by type
type MetricsEventHandler struct {
	id      string
	metrics smpp.MetricsCollector
}

// NewMetricsEventHandler creates a new metrics event handler
func NewMetricsEventHandler(id string, metrics smpp.MetricsCollector) *MetricsEventHandler {
	return &MetricsEventHandler{
		id:      id,
		metrics: metrics,
	}
}

// HandleEvent collects metrics for the event
func (meh *MetricsEventHandler) HandleEvent(ctx context.Context, event smpp.Event) error {
	meh.metrics.IncCounter("events_total", map[string]string{
		"event_type": string(event.GetEventType()),
	})
	if e, ok := event.(*smpp.SessionEvent); ok {
		meh.metrics.SetGauge("session_state", float64(e.State), nil)
	}
	return nil
}

// GetHandlerID returns the handler ID
func (meh *MetricsEventHandler) GetHandlerID() string {
	return meh.id
}

// MessageEvent reports an inbound message accepted by the message hook.
type MessageEvent struct {
	Timestamp  time.Time
	MessageID  string
	SourceAddr string
	DestAddr   string
	Receipt    bool
}

func (e *MessageEvent) GetEventType() smpp.EventType {
	return smpp.EventTypeMessageReceived
}

func (e *MessageEvent) GetTimestamp() time.Time {
	return e.Timestamp
}

func (e *MessageEvent) GetData() map[string]interface{} {
	return map[string]interface{}{
		"message_id":       e.MessageID,
		"source_addr":      e.SourceAddr,
		"dest_addr":        e.DestAddr,
		"delivery_receipt": e.Receipt,
	}
}
