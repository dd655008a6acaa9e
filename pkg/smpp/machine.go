package smpp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Option configures a session at construction.
type Option func(*machine)

// WithConfig applies timeouts, keepalive and the TCP/TLS dialer from cfg.
func WithConfig(cfg *ClientConfig) Option {
	return func(m *machine) {
		if cfg == nil {
			return
		}
		m.dialer = NetDialer(cfg)
		m.writeTimeout = cfg.WriteTimeout
		m.responseTimeout = cfg.ResponseTimeout
		m.enquireLinkInterval = cfg.EnquireLinkInterval
	}
}

// WithDialer replaces the transport dialer.
func WithDialer(d Dialer) Option {
	return func(m *machine) { m.dialer = d }
}

func WithLogger(l Logger) Option {
	return func(m *machine) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(mc MetricsCollector) Option {
	return func(m *machine) {
		if mc != nil {
			m.metrics = mc
		}
	}
}

func WithEvents(ep EventPublisher) Option {
	return func(m *machine) { m.events = ep }
}

// WithMessageHook sets the hook receiving inbound deliver_sm PDUs.
func WithMessageHook(h MessageHook) Option {
	return func(m *machine) { m.hook = h }
}

// WithThrottler paces submit_sm and submit_multi.
func WithThrottler(t Throttler) Option {
	return func(m *machine) { m.throttle = t }
}

// WithWindow bounds the number of requests awaiting a response.
func WithWindow(w Window) Option {
	return func(m *machine) { m.window = w }
}

// WithResponseTimeout bounds each wait for a response. Zero waits for the caller's context only.
func WithResponseTimeout(d time.Duration) Option {
	return func(m *machine) { m.responseTimeout = d }
}

// WithEnquireLinkInterval enables the periodic keepalive of the concurrent session.
func WithEnquireLinkInterval(d time.Duration) Option {
	return func(m *machine) { m.enquireLinkInterval = d }
}

// link is one connect cycle: the transport plus what lives and dies with it.
type link struct {
	id       string
	conn     Transport
	pending  *pendingTable
	handlers map[uint32]HandlerFunc
	ctx      context.Context
	cancel   context.CancelFunc
}

// closed reports whether l has been detached.
func (l *link) closed() bool {
	return l.ctx != nil && l.ctx.Err() != nil
}

func (l *link) close() error {
	if l.cancel != nil {
		l.cancel()
	}
	err := l.conn.Close()
	if l.pending != nil {
		l.pending.failAll(ErrSessionClosed)
	}
	return err
}

// machine holds what both session variants share: state, sequence numbers,
// defaults, the current link and the write path.
type machine struct {
	mu    sync.Mutex
	state SessionState
	link  *link

	// connectMu serializes connect attempts so the dial runs without mu.
	connectMu sync.Mutex

	seq      atomic.Uint32
	defaults Params

	writeMu sync.Mutex
	encoder *PDUEncoder
	decoder *PDUDecoder

	dialer   Dialer
	logger   Logger
	metrics  MetricsCollector
	events   EventPublisher
	hook     MessageHook
	throttle Throttler
	window   Window

	writeTimeout        time.Duration
	responseTimeout     time.Duration
	enquireLinkInterval time.Duration
}

func newMachine(defaults Params, opts []Option) *machine {
	m := &machine{
		state:    StateClosed,
		defaults: DefaultParams().Merge(defaults),
		encoder:  NewPDUEncoder(),
		decoder:  NewPDUDecoder(),
		dialer:   NetDialer(nil),
		logger:   nopLogger{},
		metrics:  nopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hook == nil {
		m.hook = LogMessageHook(m.logger)
	}
	return m
}

// State returns the current session state.
func (m *machine) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ID returns the identifier of the current connect cycle, or "" when closed.
func (m *machine) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link == nil {
		return ""
	}
	return m.link.id
}

// Defaults returns a copy of the session defaults.
func (m *machine) Defaults() Params {
	return Params{}.Merge(m.defaults)
}

func (m *machine) currentLink() *link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link
}

// nextSequence allocates the next sequence number. Numbers run from 1 to
// MaxSequenceNum and wrap back to 1; numbers for which inUse reports true
// are skipped.
func (m *machine) nextSequence(inUse func(uint32) bool) uint32 {
	for {
		cur := m.seq.Load()
		next := cur + 1
		if next > MaxSequenceNum || next == 0 {
			next = 1
		}
		if !m.seq.CompareAndSwap(cur, next) {
			continue
		}
		if inUse != nil && inUse(next) {
			continue
		}
		return next
	}
}

// connect dials a new link and installs it as OPEN. It returns a nil link
// when the session is not CLOSED. The dial runs without holding mu, so
// State and the submit checks keep answering CLOSED meanwhile. prepare runs
// under mu just before the link becomes current.
func (m *machine) connect(ctx context.Context, prepare func(*link)) (*link, error) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	if m.State() != StateClosed {
		return nil, nil
	}

	addr := m.defaults.Addr()
	m.logger.Info("Connecting to SMSC", "address", addr)

	conn, err := m.dialer(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	l := &link{
		id:   uuid.New().String(),
		conn: conn,
	}

	m.mu.Lock()
	if prepare != nil {
		prepare(l)
	}
	m.link = l
	m.state = StateOpen
	m.mu.Unlock()

	m.logger.Info("Connected to SMSC", "address", addr, "session_id", l.id)
	m.announce(l.id, StateClosed, StateOpen, nil)
	return l, nil
}

// stateOf returns the session state while l is the current link, and
// CLOSED once it is not.
func (m *machine) stateOf(l *link) SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l == nil || m.link != l {
		return StateClosed
	}
	return m.state
}

// transition moves a live link from one state to another. It is a no-op when
// l is no longer current or the state is not from.
func (m *machine) transition(l *link, from, to SessionState) bool {
	m.mu.Lock()
	if m.link != l || m.state != from {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()
	m.announce(l.id, from, to, nil)
	return true
}

// degrade drops a bound link back to OPEN.
func (m *machine) degrade(l *link) {
	m.mu.Lock()
	from := m.state
	if m.link != l || !from.Bound() {
		m.mu.Unlock()
		return
	}
	m.state = StateOpen
	m.mu.Unlock()
	m.announce(l.id, from, StateOpen, nil)
}

// detach ends l if it is still the current link: the session goes to
// CLOSED, the transport is closed and every pending waiter fails. Only the
// first caller for a given link does any work.
//
// State reports CLOSED as soon as detach starts. The Unbound and
// Disconnected events are published afterwards, once the transport is
// closed, so subscribers never see a Disconnected event for a session that
// still reports a live state.
func (m *machine) detach(l *link, cause error) bool {
	m.mu.Lock()
	if l == nil || m.link != l {
		m.mu.Unlock()
		return false
	}
	from := m.state
	m.link = nil
	m.state = StateClosed
	m.mu.Unlock()

	if err := l.close(); err != nil {
		m.logger.Debug("Transport close failed", "session_id", l.id, "error", err)
	}
	if from.Bound() {
		m.announce(l.id, from, StateOpen, cause)
		from = StateOpen
	}
	m.announce(l.id, from, StateClosed, cause)
	return true
}

func (m *machine) announce(sessionID string, from, to SessionState, cause error) {
	fields := []interface{}{"session_id", sessionID, "from", from.String(), "to", to.String()}
	if cause != nil {
		fields = append(fields, "cause", cause)
	}
	m.logger.Info("Session state changed", fields...)
	m.metrics.IncCounter(MetricStateTransitions, map[string]string{"from": from.String(), "to": to.String()})

	if m.events == nil {
		return
	}
	var eventType EventType
	switch {
	case from == StateClosed:
		eventType = EventTypeConnected
	case to == StateClosed:
		eventType = EventTypeDisconnected
	case to.Bound():
		eventType = EventTypeBound
	default:
		eventType = EventTypeUnbound
	}
	event := &SessionEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		State:     to,
		Error:     cause,
		Data:      map[string]interface{}{"from": from.String()},
	}
	if err := m.events.PublishSessionEvent(context.Background(), event); err != nil {
		m.logger.Warn("Failed to publish session event", "event_type", eventType, "error", err)
	}
}

// write encodes pdu and writes it to l in a single call.
func (m *machine) write(l *link, pdu *PDU) error {
	data, err := m.encoder.Encode(pdu)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", CommandName(pdu.Body.CommandID()), err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if l.closed() {
		return fmt.Errorf("failed to write %s: %w", CommandName(pdu.Body.CommandID()), ErrSessionClosed)
	}

	if d, ok := l.conn.(deadliner); ok && m.writeTimeout > 0 {
		d.SetWriteDeadline(time.Now().Add(m.writeTimeout))
		defer d.SetWriteDeadline(time.Time{})
	}

	if _, err := l.conn.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", CommandName(pdu.Header.CommandID), err)
	}

	m.metrics.IncCounter(MetricPDUsSent, map[string]string{"command": CommandName(pdu.Header.CommandID)})
	m.logger.Debug("PDU sent",
		"command", CommandName(pdu.Header.CommandID),
		"sequence", pdu.Header.SequenceNum,
		"length", pdu.Header.CommandLength)
	return nil
}

func (m *machine) received(pdu *PDU) {
	m.metrics.IncCounter(MetricPDUsReceived, map[string]string{"command": CommandName(pdu.Header.CommandID)})
	m.logger.Debug("PDU received",
		"command", CommandName(pdu.Header.CommandID),
		"status", StatusName(pdu.Header.CommandStatus),
		"sequence", pdu.Header.SequenceNum)
}

func (m *machine) critical(msg string, fields ...interface{}) {
	if cl, ok := m.logger.(CriticalLogger); ok {
		cl.Critical(msg, fields...)
		return
	}
	m.logger.Error(msg, fields...)
}

// submitPDU builds and sends a submit_sm or submit_multi through exchange.
func (m *machine) submitPDU(ctx context.Context, op string, expected uint32, build func(Params) (*PDU, error), params Params, exchange func(context.Context, *PDU) (*PDU, error)) (*PDU, error) {
	if state := m.State(); !state.CanSubmit() {
		return nil, &StateError{Op: op, State: state}
	}
	if m.throttle != nil {
		if err := m.throttle.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: throttle: %w", op, err)
		}
	}

	req, err := build(m.defaults.Merge(params))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	if !IsOK(resp, expected) {
		m.metrics.IncCounter(MetricRequestsRejected, map[string]string{"command": op})
		return resp, rejection(resp, expected)
	}
	return resp, nil
}

func (m *machine) responseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.responseTimeout > 0 {
		return context.WithTimeout(ctx, m.responseTimeout)
	}
	return context.WithCancel(ctx)
}
