package smpp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// SyncSession runs every exchange on the caller's goroutine: write the
// request, then read the very next frame as its response. It is only correct
// when the SMSC never sends unsolicited PDUs between a request and its
// response. Use TransceiverSession otherwise.
type SyncSession struct {
	*machine
	exchangeMu sync.Mutex
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// NewSyncSession creates a synchronous session over defaults.
func NewSyncSession(defaults Params, opts ...Option) *SyncSession {
	return &SyncSession{machine: newMachine(defaults, opts)}
}

// Connect opens the transport. It does nothing unless the session is CLOSED.
func (s *SyncSession) Connect(ctx context.Context) error {
	_, err := s.connect(ctx, func(l *link) {
		l.ctx, l.cancel = context.WithCancel(context.Background())
	})
	return err
}

// Disconnect unbinds when bound, then closes the transport.
func (s *SyncSession) Disconnect(ctx context.Context) error {
	l := s.currentLink()
	if l == nil {
		return nil
	}
	if s.State().Bound() {
		s.unbind(ctx, l)
	}
	s.detach(l, nil)
	return nil
}

func (s *SyncSession) BindTransmitter(ctx context.Context, params Params) (*PDU, error) {
	return s.bind(ctx, CommandBindTransmitter, params)
}

func (s *SyncSession) BindReceiver(ctx context.Context, params Params) (*PDU, error) {
	return s.bind(ctx, CommandBindReceiver, params)
}

func (s *SyncSession) BindTransceiver(ctx context.Context, params Params) (*PDU, error) {
	return s.bind(ctx, CommandBindTransceiver, params)
}

// bind leaves the session OPEN and returns *RejectedError when the SMSC
// refuses the bind.
func (s *SyncSession) bind(ctx context.Context, command uint32, params Params) (*PDU, error) {
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

	resp, err := s.exchange(ctx, BuildBind(command, s.defaults.Merge(params)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	expected := ResponseID(command)
	if !IsOK(resp, expected) {
		rejected := rejection(resp, expected)
		s.logger.Warn("Bind rejected", "session_id", l.id, "command", op, "error", rejected)
		return resp, rejected
	}
	s.transition(l, StateOpen, boundStateFor(command))
	return resp, nil
}

func (s *SyncSession) unbind(ctx context.Context, l *link) {
	resp, err := s.exchange(ctx, &PDU{Body: &Unbind{}})
	if err != nil || !IsOK(resp, CommandUnbindResp) {
		if err == nil {
			err = rejection(resp, CommandUnbindResp)
		}
		s.logger.Warn("Unbind not acknowledged, degrading to OPEN", "session_id", l.id, "error", err)
	}
	s.degrade(l)
}

func (s *SyncSession) SubmitSM(ctx context.Context, params Params) (*PDU, error) {
	return s.submitPDU(ctx, "submit_sm", CommandSubmitSMResp, BuildSubmitSM, params, s.exchange)
}

func (s *SyncSession) SubmitMulti(ctx context.Context, destinations []Destination, params Params) (*PDU, error) {
	build := func(p Params) (*PDU, error) {
		return BuildSubmitMulti(destinations, p)
	}
	return s.submitPDU(ctx, "submit_multi", CommandSubmitMultiResp, build, params, s.exchange)
}

// exchange writes req and reads the next frame as its response. A transport
// failure closes the session; a response that does not decode is returned
// as an error and leaves the session as it is.
func (s *SyncSession) exchange(ctx context.Context, req *PDU) (*PDU, error) {
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	l := s.currentLink()
	if l == nil {
		return nil, &StateError{Op: CommandName(req.Body.CommandID()), State: StateClosed}
	}

	req.Header.SequenceNum = s.nextSequence(nil)
	if err := s.write(l, req); err != nil {
		s.detach(l, err)
		return nil, err
	}

	start := time.Now()
	resp, err := s.read(ctx, l)
	if err != nil {
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			s.detach(l, err)
		}
		return nil, err
	}
	s.metrics.RecordDuration(MetricResponseLatency, time.Since(start), map[string]string{"command": CommandName(req.Header.CommandID)})
	return resp, nil
}

func (s *SyncSession) read(ctx context.Context, l *link) (*PDU, error) {
	ctx, cancel := s.responseContext(ctx)
	defer cancel()

	if rd, ok := l.conn.(readDeadliner); ok {
		if deadline, ok := ctx.Deadline(); ok {
			rd.SetReadDeadline(deadline)
		}
		stop := context.AfterFunc(ctx, func() {
			rd.SetReadDeadline(time.Now())
		})
		defer func() {
			stop()
			rd.SetReadDeadline(time.Time{})
		}()
	}

	frame, err := ReadFrame(l.conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The read deadline can fire just before ctx records its own expiry.
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("read response: %w", context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	pdu, err := s.decoder.Decode(frame)
	if err != nil {
		s.metrics.IncCounter(MetricMalformedPDUs, nil)
		return nil, err
	}
	s.received(pdu)
	return pdu, nil
}
