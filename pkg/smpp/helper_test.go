package smpp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

// fakeSMSC is the server end of a net.Pipe. Every PDU the client writes is
// decoded and queued on in.
type fakeSMSC struct {
	t    *testing.T
	conn net.Conn
	in   chan *PDU
	enc  *PDUEncoder
	dec  *PDUDecoder
}

func newFakeSMSC(t *testing.T, server net.Conn) *fakeSMSC {
	t.Helper()
	f := &fakeSMSC{
		t:    t,
		conn: server,
		in:   make(chan *PDU, 64),
		enc:  NewPDUEncoder(),
		dec:  NewPDUDecoder(),
	}
	go f.readLoop()
	t.Cleanup(func() { server.Close() })
	return f
}

func (f *fakeSMSC) readLoop() {
	defer close(f.in)
	for {
		frame, err := ReadFrame(f.conn)
		if err != nil {
			return
		}
		pdu, err := f.dec.Decode(frame)
		if err != nil {
			continue
		}
		f.in <- pdu
	}
}

// expect waits for the next PDU from the client and checks its command id.
func (f *fakeSMSC) expect(commandID uint32) *PDU {
	f.t.Helper()
	select {
	case pdu, ok := <-f.in:
		if !ok {
			f.t.Fatalf("connection closed while waiting for %s", CommandName(commandID))
		}
		if pdu.Header.CommandID != commandID {
			f.t.Fatalf("got %s, want %s", CommandName(pdu.Header.CommandID), CommandName(commandID))
		}
		return pdu
	case <-time.After(testTimeout):
		f.t.Fatalf("timed out waiting for %s", CommandName(commandID))
	}
	return nil
}

// expectNothing fails if the client writes anything within d.
func (f *fakeSMSC) expectNothing(d time.Duration) {
	f.t.Helper()
	select {
	case pdu, ok := <-f.in:
		if ok {
			f.t.Fatalf("unexpected %s from client", CommandName(pdu.Header.CommandID))
		}
	case <-time.After(d):
	}
}

// expectClosed waits for the client to close its end.
func (f *fakeSMSC) expectClosed() {
	f.t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case _, ok := <-f.in:
			if !ok {
				return
			}
		case <-deadline:
			f.t.Fatal("client did not close the connection")
		}
	}
}

func (f *fakeSMSC) send(pdu *PDU) {
	f.t.Helper()
	data, err := f.enc.Encode(pdu)
	if err != nil {
		f.t.Fatalf("encode %s: %v", CommandName(pdu.Body.CommandID()), err)
	}
	f.conn.SetWriteDeadline(time.Now().Add(testTimeout))
	if _, err := f.conn.Write(data); err != nil {
		f.t.Fatalf("write %s: %v", CommandName(pdu.Body.CommandID()), err)
	}
}

// reply answers req with body and status.
func (f *fakeSMSC) reply(req *PDU, status uint32, body PDUBody) {
	f.t.Helper()
	f.send(&PDU{
		Header: PDUHeader{CommandStatus: status, SequenceNum: req.Header.SequenceNum},
		Body:   body,
	})
}

func (f *fakeSMSC) acceptBind(command uint32) *PDU {
	f.t.Helper()
	req := f.expect(command)
	f.reply(req, StatusOK, &BindResponse{Command: ResponseID(command), SystemID: "SMSC"})
	return req
}

func (f *fakeSMSC) close() {
	f.conn.Close()
}

// pipeDialer hands out the client end of a fresh pipe on every dial and
// publishes the matching fake SMSC on smscs.
type pipeDialer struct {
	t     *testing.T
	mu    sync.Mutex
	dials int
	smscs chan *fakeSMSC
}

func newPipeDialer(t *testing.T) *pipeDialer {
	return &pipeDialer{t: t, smscs: make(chan *fakeSMSC, 4)}
}

func (d *pipeDialer) dial(ctx context.Context, addr string) (Transport, error) {
	client, server := net.Pipe()
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	d.smscs <- newFakeSMSC(d.t, server)
	d.t.Cleanup(func() { client.Close() })
	return client, nil
}

func (d *pipeDialer) next() *fakeSMSC {
	d.t.Helper()
	select {
	case f := <-d.smscs:
		return f
	case <-time.After(testTimeout):
		d.t.Fatal("no connection was dialed")
	}
	return nil
}

func (d *pipeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recordingPublisher keeps every session event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*SessionEvent
}

func (r *recordingPublisher) PublishSessionEvent(ctx context.Context, event *SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Subscribe(ctx context.Context, eventType EventType, handler EventHandler) error {
	return nil
}

func (r *recordingPublisher) Unsubscribe(ctx context.Context, eventType EventType, handler EventHandler) error {
	return nil
}

func (r *recordingPublisher) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// countingMetrics counts counter increments by name.
type countingMetrics struct {
	nopMetrics
	mu       sync.Mutex
	counters map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counters: make(map[string]int)}
}

func (m *countingMetrics) IncCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

func (m *countingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}
