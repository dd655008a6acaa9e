package smpp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestTransceiver(t *testing.T, opts ...Option) (*TransceiverSession, *pipeDialer) {
	t.Helper()
	d := newPipeDialer(t)
	base := []Option{WithDialer(d.dial), WithResponseTimeout(testTimeout)}
	s := NewTransceiverSession(Params{ParamSystemID: "esme", ParamPassword: "secret"}, append(base, opts...)...)
	t.Cleanup(func() { s.detach(s.currentLink(), nil) })
	return s, d
}

// bindTRX binds s as a transceiver against a fresh fake SMSC.
func bindTRX(t *testing.T, s Session, d *pipeDialer) *fakeSMSC {
	t.Helper()
	ctx := testContext(t)
	done := make(chan error, 1)
	go func() {
		_, err := s.BindTransceiver(ctx, nil)
		done <- err
	}()

	smsc := d.next()
	req := smsc.acceptBind(CommandBindTransceiver)
	bind := req.Body.(*BindRequest)
	if bind.SystemID != "esme" || bind.Password != "secret" {
		t.Fatalf("bind carried %q/%q", bind.SystemID, bind.Password)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("BindTransceiver: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("BindTransceiver did not return")
	}
	if s.State() != StateBoundTRX {
		t.Fatalf("state = %v after bind", s.State())
	}
	return smsc
}

type submitResult struct {
	resp *PDU
	err  error
}

func submitAsync(ctx context.Context, s Session, params Params) <-chan submitResult {
	out := make(chan submitResult, 1)
	go func() {
		resp, err := s.SubmitSM(ctx, params)
		out <- submitResult{resp, err}
	}()
	return out
}

func await(t *testing.T, ch <-chan submitResult) submitResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(testTimeout):
		t.Fatal("request did not complete")
	}
	return submitResult{}
}

func submitResp(id string) *SubmitSMResp {
	resp := &SubmitSMResp{}
	resp.MessageID = id
	return resp
}

func TestTransceiverSubmit(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)

	pending := submitAsync(testContext(t), s, Params{ParamDestinationAddr: "2000", ParamShortMessage: "hi"})
	req := smsc.expect(CommandSubmitSM)
	if dest := req.Body.(*SubmitSM).Dest.Addr; dest != "2000" {
		t.Errorf("destination = %q", dest)
	}
	smsc.reply(req, StatusOK, submitResp("msg-1"))

	r := await(t, pending)
	if r.err != nil {
		t.Fatalf("SubmitSM: %v", r.err)
	}
	if id := r.resp.Body.(*SubmitSMResp).MessageID; id != "msg-1" {
		t.Errorf("message id = %q", id)
	}
}

func TestTransceiverCorrelatesOutOfOrderResponses(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)
	ctx := testContext(t)

	const n = 6
	results := make([]<-chan submitResult, n)
	for i := 0; i < n; i++ {
		results[i] = submitAsync(ctx, s, Params{ParamDestinationAddr: fmt.Sprintf("dest-%d", i), ParamShortMessage: "x"})
	}

	reqs := make([]*PDU, n)
	seen := make(map[uint32]bool)
	for i := range reqs {
		reqs[i] = smsc.expect(CommandSubmitSM)
		if seen[reqs[i].Header.SequenceNum] {
			t.Fatalf("sequence %d used twice", reqs[i].Header.SequenceNum)
		}
		seen[reqs[i].Header.SequenceNum] = true
	}
	for i := n - 1; i >= 0; i-- {
		smsc.reply(reqs[i], StatusOK, submitResp("id-for-"+reqs[i].Body.(*SubmitSM).Dest.Addr))
	}

	for i, ch := range results {
		r := await(t, ch)
		if r.err != nil {
			t.Fatalf("submit %d: %v", i, r.err)
		}
		want := fmt.Sprintf("id-for-dest-%d", i)
		if got := r.resp.Body.(*SubmitSMResp).MessageID; got != want {
			t.Errorf("submit %d got %q, want %q", i, got, want)
		}
	}
}

func TestSubmitWhileOpenWritesNothing(t *testing.T) {
	s, d := newTestTransceiver(t)
	if err := s.Connect(testContext(t)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	smsc := d.next()

	_, err := s.SubmitSM(testContext(t), Params{ParamDestinationAddr: "1"})
	var stateErr *StateError
	if !errors.As(err, &stateErr) || stateErr.State != StateOpen {
		t.Fatalf("err = %v, want *StateError in OPEN", err)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("StateError does not match ErrInvalidState")
	}
	if _, err := s.SubmitMulti(testContext(t), []Destination{Addr("1")}, nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SubmitMulti err = %v", err)
	}
	smsc.expectNothing(50 * time.Millisecond)
}

func TestSubmitWhileClosedDoesNotDial(t *testing.T) {
	s, d := newTestTransceiver(t)
	if _, err := s.SubmitSM(testContext(t), nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v", err)
	}
	if d.count() != 0 {
		t.Errorf("dialed %d times", d.count())
	}
}

func TestReceiverCannotSubmit(t *testing.T) {
	s, d := newTestTransceiver(t)
	done := make(chan error, 1)
	go func() {
		_, err := s.BindReceiver(testContext(t), nil)
		done <- err
	}()
	smsc := d.next()
	smsc.acceptBind(CommandBindReceiver)
	if err := <-done; err != nil {
		t.Fatalf("BindReceiver: %v", err)
	}
	if s.State() != StateBoundRX {
		t.Fatalf("state = %v", s.State())
	}

	if _, err := s.SubmitSM(testContext(t), Params{ParamDestinationAddr: "1"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v", err)
	}
	smsc.expectNothing(50 * time.Millisecond)
}

func TestEOFWhileBoundFailsPendingRequests(t *testing.T) {
	events := &recordingPublisher{}
	s, d := newTestTransceiver(t, WithEvents(events))
	smsc := bindTRX(t, s, d)

	pending := submitAsync(testContext(t), s, Params{ParamDestinationAddr: "1", ParamShortMessage: "x"})
	smsc.expect(CommandSubmitSM)
	smsc.close()

	r := await(t, pending)
	if !errors.Is(r.err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", r.err)
	}
	waitFor(t, "CLOSED", func() bool { return s.State() == StateClosed })
	if s.ID() != "" {
		t.Errorf("ID = %q after close", s.ID())
	}

	want := []EventType{EventTypeConnected, EventTypeBound, EventTypeUnbound, EventTypeDisconnected}
	waitFor(t, "disconnect event", func() bool { return len(events.types()) == len(want) })
	for i, got := range events.types() {
		if got != want[i] {
			t.Errorf("event %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestEnquireLinkRejectionDisconnects(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)

	done := make(chan error, 1)
	go func() {
		_, err := s.EnquireLink(testContext(t), nil)
		done <- err
	}()

	req := smsc.expect(CommandEnquireLink)
	smsc.reply(req, StatusSysErr, &EnquireLinkResp{})
	unbind := smsc.expect(CommandUnbind)
	smsc.reply(unbind, StatusOK, &UnbindResp{})
	smsc.expectClosed()

	var rejected *RejectedError
	if err := <-done; !errors.As(err, &rejected) || rejected.Status != StatusSysErr {
		t.Fatalf("err = %v, want rejection with ESME_RSYSERR", err)
	}
	waitFor(t, "CLOSED", func() bool { return s.State() == StateClosed })
}

func TestEnquireLinkRequiresBoundSession(t *testing.T) {
	s, d := newTestTransceiver(t)
	if err := s.Connect(testContext(t)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	smsc := d.next()

	if _, err := s.EnquireLink(testContext(t), nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v", err)
	}
	smsc.expectNothing(50 * time.Millisecond)
}

func TestKeepAliveSendsEnquireLink(t *testing.T) {
	s, d := newTestTransceiver(t, WithEnquireLinkInterval(20*time.Millisecond))
	smsc := bindTRX(t, s, d)

	for i := 0; i < 2; i++ {
		req := smsc.expect(CommandEnquireLink)
		smsc.reply(req, StatusOK, &EnquireLinkResp{})
	}
	if s.State() != StateBoundTRX {
		t.Errorf("state = %v", s.State())
	}
}

func TestServerEnquireLinkIsAnswered(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)

	smsc.send(&PDU{Header: PDUHeader{SequenceNum: 100}, Body: &EnquireLink{}})
	resp := smsc.expect(CommandEnquireLinkResp)
	if resp.Header.SequenceNum != 100 || resp.Header.CommandStatus != StatusOK {
		t.Errorf("response header = %+v", resp.Header)
	}
}

func deliver(seq uint32, text string) *PDU {
	return &PDU{
		Header: PDUHeader{SequenceNum: seq},
		Body: &DeliverSM{MessageFields{
			Source:       Address{Addr: "5555"},
			Dest:         Address{Addr: "esme"},
			ShortMessage: []byte(text),
			DataCoding:   DataCodingIA5,
		}},
	}
}

func TestDeliverSMHookFailureWithholdsResponse(t *testing.T) {
	var calls atomic.Int32
	hook := func(ctx context.Context, pdu *PDU) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("store unavailable")
		case 2:
			panic("hook bug")
		}
		if text, err := MessageText(pdu); err != nil || text != "third" {
			return fmt.Errorf("text %q, %v", text, err)
		}
		return nil
	}
	s, d := newTestTransceiver(t, WithMessageHook(hook))
	smsc := bindTRX(t, s, d)

	smsc.send(deliver(200, "first"))
	smsc.expectNothing(100 * time.Millisecond)
	smsc.send(deliver(201, "second"))
	smsc.expectNothing(100 * time.Millisecond)

	smsc.send(deliver(202, "third"))
	resp := smsc.expect(CommandDeliverSMResp)
	if resp.Header.SequenceNum != 202 {
		t.Errorf("deliver_sm_resp sequence = %d", resp.Header.SequenceNum)
	}
	if s.State() != StateBoundTRX {
		t.Errorf("state = %v", s.State())
	}
}

func TestServerUnbindClosesSession(t *testing.T) {
	events := &recordingPublisher{}
	s, d := newTestTransceiver(t, WithEvents(events))
	smsc := bindTRX(t, s, d)

	smsc.send(&PDU{Header: PDUHeader{SequenceNum: 300}, Body: &Unbind{}})
	resp := smsc.expect(CommandUnbindResp)
	if resp.Header.SequenceNum != 300 {
		t.Errorf("unbind_resp sequence = %d", resp.Header.SequenceNum)
	}
	smsc.expectClosed()
	waitFor(t, "CLOSED", func() bool { return s.State() == StateClosed })

	// CLOSED is visible before the disconnect event is published.
	want := []EventType{EventTypeConnected, EventTypeBound, EventTypeUnbound, EventTypeDisconnected}
	waitFor(t, "disconnect event", func() bool { return len(events.types()) >= len(want) })
	got := events.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDataSMIsNotAnswered(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)

	smsc.send(&PDU{Header: PDUHeader{SequenceNum: 400}, Body: &DataSM{Dest: Address{Addr: "esme"}}})
	smsc.expectNothing(100 * time.Millisecond)
	if s.State() != StateBoundTRX {
		t.Errorf("state = %v", s.State())
	}
}

func TestUnhandledAndStalePDUsAreDropped(t *testing.T) {
	metrics := newCountingMetrics()
	s, d := newTestTransceiver(t, WithMetrics(metrics))
	smsc := bindTRX(t, s, d)

	smsc.send(&PDU{Header: PDUHeader{SequenceNum: 500}, Body: &RawBody{ID: CommandQuerySM, Data: []byte("x\x00")}})
	smsc.send(&PDU{Header: PDUHeader{SequenceNum: 999}, Body: submitResp("late")})

	smsc.send(&PDU{Header: PDUHeader{SequenceNum: 501}, Body: &EnquireLink{}})
	smsc.expect(CommandEnquireLinkResp)

	if n := metrics.count(MetricUnhandledCommands); n != 2 {
		t.Errorf("unhandled = %d, want 2", n)
	}
	if s.State() != StateBoundTRX {
		t.Errorf("state = %v", s.State())
	}
}

func TestMalformedPDUIsSkipped(t *testing.T) {
	metrics := newCountingMetrics()
	s, d := newTestTransceiver(t, WithMetrics(metrics))
	smsc := bindTRX(t, s, d)

	var frame [HeaderLength + 3]byte
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(frame)))
	binary.BigEndian.PutUint32(frame[4:8], CommandEnquireLink)
	binary.BigEndian.PutUint32(frame[12:16], 600)
	if _, err := smsc.conn.Write(frame[:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	smsc.send(&PDU{Header: PDUHeader{SequenceNum: 601}, Body: &EnquireLink{}})
	if resp := smsc.expect(CommandEnquireLinkResp); resp.Header.SequenceNum != 601 {
		t.Errorf("answered sequence %d", resp.Header.SequenceNum)
	}
	if n := metrics.count(MetricMalformedPDUs); n != 1 {
		t.Errorf("malformed = %d, want 1", n)
	}
}

func TestRequestTimeoutKeepsSessionUsable(t *testing.T) {
	metrics := newCountingMetrics()
	s, d := newTestTransceiver(t, WithResponseTimeout(50*time.Millisecond), WithMetrics(metrics))
	smsc := bindTRX(t, s, d)

	pending := submitAsync(context.Background(), s, Params{ParamDestinationAddr: "1", ParamShortMessage: "x"})
	lost := smsc.expect(CommandSubmitSM)
	if r := await(t, pending); !errors.Is(r.err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", r.err)
	}
	if n := s.currentLink().pending.len(); n != 0 {
		t.Errorf("%d waiters left after timeout", n)
	}

	smsc.reply(lost, StatusOK, submitResp("late"))
	pending = submitAsync(context.Background(), s, Params{ParamDestinationAddr: "2", ParamShortMessage: "y"})
	req := smsc.expect(CommandSubmitSM)
	smsc.reply(req, StatusOK, submitResp("on-time"))
	r := await(t, pending)
	if r.err != nil || r.resp.Body.(*SubmitSMResp).MessageID != "on-time" {
		t.Fatalf("second submit = %+v", r)
	}
	if n := metrics.count(MetricUnhandledCommands); n != 1 {
		t.Errorf("unhandled = %d, want 1 for the late response", n)
	}
}

func TestCallerCancellationAbandonsWait(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)

	ctx, cancel := context.WithCancel(context.Background())
	pending := submitAsync(ctx, s, Params{ParamDestinationAddr: "1", ParamShortMessage: "x"})
	smsc.expect(CommandSubmitSM)
	cancel()

	if r := await(t, pending); !errors.Is(r.err, context.Canceled) {
		t.Fatalf("err = %v", r.err)
	}
	if s.State() != StateBoundTRX {
		t.Errorf("state = %v", s.State())
	}
}

func TestSubmitRejected(t *testing.T) {
	metrics := newCountingMetrics()
	s, d := newTestTransceiver(t, WithMetrics(metrics))
	smsc := bindTRX(t, s, d)

	pending := submitAsync(testContext(t), s, Params{ParamDestinationAddr: "1", ParamShortMessage: "x"})
	req := smsc.expect(CommandSubmitSM)
	smsc.reply(req, StatusThrottled, submitResp(""))

	r := await(t, pending)
	var rejected *RejectedError
	if !errors.As(r.err, &rejected) || rejected.Status != StatusThrottled {
		t.Fatalf("err = %v", r.err)
	}
	if r.resp == nil || r.resp.Header.CommandStatus != StatusThrottled {
		t.Error("rejected submit did not return the response")
	}
	if n := metrics.count(MetricRequestsRejected); n != 1 {
		t.Errorf("rejected = %d", n)
	}
}

func TestTransceiverSubmitMulti(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)

	dests, err := ParseDestinations([]any{
		"1500",
		Params{ParamDestFlag: 1, ParamDestinationAddr: "2000", ParamDestAddrTON: 5},
		Params{ParamDestFlag: 2, ParamDLName: "mylist"},
	})
	if err != nil {
		t.Fatalf("ParseDestinations: %v", err)
	}

	done := make(chan submitResult, 1)
	go func() {
		resp, err := s.SubmitMulti(testContext(t), dests, Params{ParamShortMessage: "hello all"})
		done <- submitResult{resp, err}
	}()

	req := smsc.expect(CommandSubmitMulti)
	got := req.Body.(*SubmitMulti).Destinations
	if len(got) != 3 || got[0].DestinationAddr != "1500" || got[1].DestAddrTON != 5 || got[2].DLName != "mylist" {
		t.Fatalf("destinations = %+v", got)
	}
	smsc.reply(req, StatusOK, &SubmitMultiResp{MessageID: "multi-1"})

	r := await(t, done)
	if r.err != nil || r.resp.Body.(*SubmitMultiResp).MessageID != "multi-1" {
		t.Fatalf("SubmitMulti = %+v", r)
	}
}

func TestBindRejectedStaysOpen(t *testing.T) {
	s, d := newTestTransceiver(t)
	done := make(chan error, 1)
	go func() {
		_, err := s.BindTransceiver(testContext(t), nil)
		done <- err
	}()

	smsc := d.next()
	req := smsc.expect(CommandBindTransceiver)
	smsc.reply(req, StatusBindFail, &BindResponse{Command: CommandBindTransceiverResp})

	err := <-done
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Status != StatusBindFail {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("bind rejection is not a state error")
	}
	if s.State() != StateOpen {
		t.Errorf("state = %v", s.State())
	}
}

func TestBindWhenBoundIsNoop(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)

	resp, err := s.BindTransmitter(testContext(t), nil)
	if resp != nil || err != nil {
		t.Fatalf("BindTransmitter = %v, %v", resp, err)
	}
	smsc.expectNothing(50 * time.Millisecond)
	if s.State() != StateBoundTRX {
		t.Errorf("state = %v", s.State())
	}
}

func TestDisconnectUnbindsAndAllowsRebind(t *testing.T) {
	s, d := newTestTransceiver(t)
	smsc := bindTRX(t, s, d)

	done := make(chan error, 1)
	go func() { done <- s.Disconnect(testContext(t)) }()
	unbind := smsc.expect(CommandUnbind)
	smsc.reply(unbind, StatusOK, &UnbindResp{})
	smsc.expectClosed()
	if err := <-done; err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %v", s.State())
	}

	bindTRX(t, s, d)
	if d.count() != 2 {
		t.Errorf("dialed %d times, want 2", d.count())
	}
}

func TestDisconnectWithoutUnbindResponse(t *testing.T) {
	s, d := newTestTransceiver(t, WithResponseTimeout(50*time.Millisecond))
	smsc := bindTRX(t, s, d)

	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	smsc.expect(CommandUnbind)
	smsc.expectClosed()
	if s.State() != StateClosed {
		t.Errorf("state = %v", s.State())
	}
}

func TestHandleOnlyWhileClosed(t *testing.T) {
	s, d := newTestTransceiver(t)

	alerts := make(chan *AlertNotification, 1)
	err := s.Handle(CommandAlertNotification, func(ctx context.Context, pdu *PDU) error {
		alerts <- pdu.Body.(*AlertNotification)
		return nil
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	smsc := bindTRX(t, s, d)
	if err := s.Handle(CommandDeliverSM, nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Handle while bound err = %v", err)
	}

	smsc.send(&PDU{Header: PDUHeader{SequenceNum: 700}, Body: &AlertNotification{Source: Address{Addr: "4444"}}})
	select {
	case alert := <-alerts:
		if alert.Source.Addr != "4444" {
			t.Errorf("alert source = %q", alert.Source.Addr)
		}
	case <-time.After(testTimeout):
		t.Fatal("custom handler not called")
	}
}

func TestHandlerReplyStaysOnItsConnection(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	releaseHook := sync.OnceFunc(func() { close(release) })
	defer releaseHook()

	hook := func(ctx context.Context, pdu *PDU) error {
		close(entered)
		<-release
		return nil
	}
	s, d := newTestTransceiver(t, WithMessageHook(hook))
	first := bindTRX(t, s, d)

	first.send(deliver(200, "held"))
	select {
	case <-entered:
	case <-time.After(testTimeout):
		t.Fatal("message hook not called")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Disconnect(ctx)
	first.expect(CommandUnbind)
	first.expectClosed()

	second := bindTRX(t, s, d)
	releaseHook()

	second.expectNothing(100 * time.Millisecond)
	if s.State() != StateBoundTRX {
		t.Errorf("state = %v", s.State())
	}
}

func TestStaleUnbindHandlerLeavesNewConnection(t *testing.T) {
	s, d := newTestTransceiver(t)
	first := bindTRX(t, s, d)
	oldCtx := s.currentLink().ctx

	done := make(chan error, 1)
	go func() { done <- s.Disconnect(context.Background()) }()
	first.reply(first.expect(CommandUnbind), StatusOK, &UnbindResp{})
	if err := <-done; err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	second := bindTRX(t, s, d)
	err := s.handleUnbind(oldCtx, &PDU{Header: PDUHeader{CommandID: CommandUnbind, SequenceNum: 7}, Body: &Unbind{}})
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
	second.expectNothing(100 * time.Millisecond)
	if s.State() != StateBoundTRX {
		t.Errorf("state = %v", s.State())
	}
}

func TestHandlersAreCopiedPerConnection(t *testing.T) {
	s, d := newTestTransceiver(t)
	first := bindTRX(t, s, d)
	old := s.currentLink()
	s.detach(old, nil)
	first.expectClosed()

	queries := make(chan uint32, 1)
	err := s.Handle(CommandQuerySM, func(ctx context.Context, pdu *PDU) error {
		queries <- pdu.Header.SequenceNum
		return nil
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, ok := old.handlers[CommandQuerySM]; ok {
		t.Error("ended connection sees a handler registered after it closed")
	}

	second := bindTRX(t, s, d)
	second.send(&PDU{Header: PDUHeader{SequenceNum: 800}, Body: &RawBody{ID: CommandQuerySM, Data: []byte("x\x00")}})
	select {
	case seq := <-queries:
		if seq != 800 {
			t.Errorf("handled sequence %d", seq)
		}
	case <-time.After(testTimeout):
		t.Fatal("handler registered between connections not called")
	}
}

func TestStateAnswersWhileDialing(t *testing.T) {
	dialing := make(chan struct{})
	release := make(chan struct{})
	releaseDial := sync.OnceFunc(func() { close(release) })
	defer releaseDial()

	d := newPipeDialer(t)
	slow := func(ctx context.Context, addr string) (Transport, error) {
		close(dialing)
		<-release
		return d.dial(ctx, addr)
	}
	s := NewTransceiverSession(nil, WithDialer(slow))
	t.Cleanup(func() { s.detach(s.currentLink(), nil) })

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()
	select {
	case <-dialing:
	case <-time.After(testTimeout):
		t.Fatal("dial not started")
	}

	states := make(chan SessionState, 1)
	go func() { states <- s.State() }()
	select {
	case state := <-states:
		if state != StateClosed {
			t.Errorf("state while dialing = %v", state)
		}
	case <-time.After(time.Second):
		t.Fatal("State blocked while dialing")
	}
	if _, err := s.SubmitSM(context.Background(), nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SubmitSM while dialing = %v", err)
	}

	releaseDial()
	if err := <-done; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	d.next()
	if s.State() != StateOpen {
		t.Errorf("state = %v", s.State())
	}
}
