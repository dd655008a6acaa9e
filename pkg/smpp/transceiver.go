package smpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"
)

// TransceiverSession owns a background receive loop that is the only reader
// of the transport. Callers write a request and wait for the loop to hand
// them the response with the same sequence number; server-initiated PDUs go
// to the handler registered for their command id.
type TransceiverSession struct {
	*machine
	handlers map[uint32]HandlerFunc
}

// defaultUnbindTimeout bounds the unbind sent while tearing down after a
// failed keepalive when no response timeout is configured.
const defaultUnbindTimeout = 5 * time.Second

type loopKey struct{}

// loopLink returns the link whose receive loop is running the handler that
// owns ctx, or nil outside the loop.
func loopLink(ctx context.Context) *link {
	l, _ := ctx.Value(loopKey{}).(*link)
	return l
}

// onReceiveLoop reports whether ctx belongs to a handler running on the loop.
func onReceiveLoop(ctx context.Context) bool {
	return loopLink(ctx) != nil
}

// NewTransceiverSession creates a concurrent session over defaults.
func NewTransceiverSession(defaults Params, opts ...Option) *TransceiverSession {
	s := &TransceiverSession{machine: newMachine(defaults, opts)}
	s.handlers = s.defaultHandlers()
	return s
}

// Connect opens the transport and starts the receive loop, plus the
// enquire_link keepalive when an interval is configured. It does nothing
// unless the session is CLOSED.
func (s *TransceiverSession) Connect(ctx context.Context) error {
	l, err := s.connect(ctx, func(l *link) {
		l.pending = newPendingTable()
		l.handlers = maps.Clone(s.handlers)
		l.ctx, l.cancel = context.WithCancel(context.WithValue(context.Background(), loopKey{}, l))
	})
	if err != nil || l == nil {
		return err
	}

	go s.receiveLoop(l)
	if s.enquireLinkInterval > 0 {
		go s.keepAlive(l)
	}
	return nil
}

// Disconnect unbinds when bound, then closes the transport and fails every
// pending request with ErrSessionClosed. It never waits for the receive loop
// to exit and is safe to call from a handler.
func (s *TransceiverSession) Disconnect(ctx context.Context) error {
	return s.disconnect(ctx, s.currentLink())
}

// disconnect ends l only. It does nothing once l is no longer current.
func (s *TransceiverSession) disconnect(ctx context.Context, l *link) error {
	if l == nil {
		return nil
	}
	if s.stateOf(l).Bound() {
		s.unbind(ctx, l)
	}
	s.detach(l, nil)
	return nil
}

// unbind sends unbind and degrades to OPEN whatever the answer. From inside
// a handler the loop cannot deliver the response, so the request is sent
// without waiting.
func (s *TransceiverSession) unbind(ctx context.Context, l *link) {
	var err error
	if onReceiveLoop(ctx) {
		req := &PDU{Body: &Unbind{}}
		req.Header.SequenceNum = s.nextSequence(l.pending.has)
		err = s.write(l, req)
	} else {
		var resp *PDU
		resp, err = s.request(ctx, &PDU{Body: &Unbind{}})
		if err == nil && !IsOK(resp, CommandUnbindResp) {
			err = rejection(resp, CommandUnbindResp)
		}
	}
	if err != nil {
		s.logger.Warn("Unbind not acknowledged, degrading to OPEN", "session_id", l.id, "error", err)
	}
	s.degrade(l)
}

func (s *TransceiverSession) BindTransmitter(ctx context.Context, params Params) (*PDU, error) {
	return s.bind(ctx, CommandBindTransmitter, params)
}

func (s *TransceiverSession) BindReceiver(ctx context.Context, params Params) (*PDU, error) {
	return s.bind(ctx, CommandBindReceiver, params)
}

func (s *TransceiverSession) BindTransceiver(ctx context.Context, params Params) (*PDU, error) {
	return s.bind(ctx, CommandBindTransceiver, params)
}

// bind returns a *StateError wrapping the *RejectedError when the SMSC
// refuses the bind. The session stays OPEN.
func (s *TransceiverSession) bind(ctx context.Context, command uint32, params Params) (*PDU, error) {
	op := CommandName(command)
	state := s.State()
	if state.Bound() {
		return nil, nil
	}
	if state == StateClosed {
		if err := s.Connect(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	l := s.currentLink()
	if l == nil || s.State() != StateOpen {
		return nil, &StateError{Op: op, State: s.State()}
	}

	resp, err := s.request(ctx, BuildBind(command, s.defaults.Merge(params)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	expected := ResponseID(command)
	if !IsOK(resp, expected) {
		rejected := rejection(resp, expected)
		s.logger.Warn("Bind rejected", "session_id", l.id, "command", op, "error", rejected)
		return resp, &StateError{Op: op, State: s.State(), Err: rejected}
	}
	s.transition(l, StateOpen, boundStateFor(command))
	return resp, nil
}

func (s *TransceiverSession) SubmitSM(ctx context.Context, params Params) (*PDU, error) {
	return s.submitPDU(ctx, "submit_sm", CommandSubmitSMResp, BuildSubmitSM, params, s.request)
}

func (s *TransceiverSession) SubmitMulti(ctx context.Context, destinations []Destination, params Params) (*PDU, error) {
	build := func(p Params) (*PDU, error) {
		return BuildSubmitMulti(destinations, p)
	}
	return s.submitPDU(ctx, "submit_multi", CommandSubmitMultiResp, build, params, s.request)
}

// EnquireLink probes the SMSC. A failed or rejected probe disconnects the
// session. enquire_link has no body, so params is accepted for symmetry
// with the other operations and otherwise unused.
func (s *TransceiverSession) EnquireLink(ctx context.Context, params Params) (*PDU, error) {
	state := s.State()
	if !state.Bound() {
		return nil, &StateError{Op: "enquire_link", State: state}
	}

	resp, err := s.request(ctx, &PDU{Body: &EnquireLink{}})
	if err == nil && !IsOK(resp, CommandEnquireLinkResp) {
		err = rejection(resp, CommandEnquireLinkResp)
	}
	if err != nil {
		s.logger.Warn("enquire_link failed, disconnecting", "error", err)
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.unbindTimeout())
		s.Disconnect(dctx)
		cancel()
		return resp, err
	}
	return resp, nil
}

func (s *TransceiverSession) unbindTimeout() time.Duration {
	if s.responseTimeout > 0 {
		return s.responseTimeout
	}
	return defaultUnbindTimeout
}

// Reply writes a response PDU as-is, keeping its sequence number. From a
// handler the response goes to the connection the request arrived on, and
// fails with ErrSessionClosed once that connection is gone.
func (s *TransceiverSession) Reply(ctx context.Context, resp *PDU) error {
	l := loopLink(ctx)
	if l == nil {
		l = s.currentLink()
	}
	if l == nil {
		return ErrSessionClosed
	}
	return s.write(l, resp)
}

// request sends req and waits for its response. The waiter is registered
// before the request is written.
func (s *TransceiverSession) request(ctx context.Context, req *PDU) (*PDU, error) {
	op := CommandName(req.Body.CommandID())
	l := s.currentLink()
	if l == nil {
		return nil, &StateError{Op: op, State: StateClosed}
	}

	if s.window != nil {
		if err := s.window.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		defer s.window.Release()
	}

	seq := s.nextSequence(l.pending.has)
	req.Header.SequenceNum = seq
	wait, err := l.pending.register(seq)
	if err != nil {
		return nil, err
	}
	s.metrics.SetGauge(MetricPendingRequests, float64(l.pending.len()), nil)

	start := time.Now()
	if err := s.write(l, req); err != nil {
		l.pending.remove(seq)
		return nil, err
	}

	ctx, cancel := s.responseContext(ctx)
	defer cancel()

	select {
	case res := <-wait:
		if res.err != nil {
			return nil, res.err
		}
		s.metrics.RecordDuration(MetricResponseLatency, time.Since(start), map[string]string{"command": op})
		return res.pdu, nil
	case <-ctx.Done():
		l.pending.remove(seq)
		s.metrics.SetGauge(MetricPendingRequests, float64(l.pending.len()), nil)
		return nil, fmt.Errorf("%s (seq %d): %w", op, seq, ctx.Err())
	}
}

// receiveLoop reads l until the stream ends or the link is closed.
func (s *TransceiverSession) receiveLoop(l *link) {
	for {
		frame, err := ReadFrame(l.conn)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info("SMSC closed the connection", "session_id", l.id)
			} else {
				s.logger.Error("Failed to read PDU", "session_id", l.id, "error", err)
			}
			s.detach(l, err)
			return
		}

		pdu, err := s.decoder.Decode(frame)
		if err != nil {
			s.metrics.IncCounter(MetricMalformedPDUs, nil)
			s.logger.Warn("Dropping malformed PDU", "session_id", l.id, "error", err)
			continue
		}
		s.received(pdu)
		s.dispatch(l.ctx, l, pdu)
	}
}

// keepAlive sends enquire_link on every tick while the session is bound.
func (s *TransceiverSession) keepAlive(l *link) {
	ticker := time.NewTicker(s.enquireLinkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if !s.State().Bound() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.enquireLinkInterval)
			_, err := s.EnquireLink(ctx, nil)
			cancel()
			if err != nil {
				return
			}
			s.logger.Debug("Enquire link acknowledged", "session_id", l.id)
		}
	}
}
