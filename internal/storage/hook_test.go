package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/oarkflow/smpp-esme/pkg/events"
	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

func deliverPDU(esmClass, dataCoding uint8, text []byte) *smpp.PDU {
	return &smpp.PDU{
		Header: smpp.PDUHeader{CommandID: smpp.CommandDeliverSM, SequenceNum: 9},
		Body: &smpp.DeliverSM{MessageFields: smpp.MessageFields{
			Source:       smpp.Address{Addr: "5555"},
			Dest:         smpp.Address{Addr: "ESME"},
			EsmClass:     esmClass,
			DataCoding:   dataCoding,
			ShortMessage: text,
		}},
	}
}

func TestMessageHookStoresAndPublishes(t *testing.T) {
	store := NewInMemoryMessageStore(0, nil, nil)
	bus := events.NewEventBus(nil, false)

	var published []*events.MessageEvent
	err := bus.Subscribe(context.Background(), smpp.EventTypeMessageReceived,
		events.NewEventHandlerFunc("test", func(ctx context.Context, event smpp.Event) error {
			published = append(published, event.(*events.MessageEvent))
			return nil
		}))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	hook := NewMessageHook(store, HookOptions{
		Publisher: bus,
		SessionID: func() string { return "session-1" },
	})
	if err := hook(context.Background(), deliverPDU(smpp.EsmClassDefault, smpp.DataCodingIA5, []byte("hi there"))); err != nil {
		t.Fatalf("hook: %v", err)
	}

	if len(published) != 1 {
		t.Fatalf("published %d events", len(published))
	}
	stored, err := store.Get(context.Background(), published[0].MessageID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Text != "hi there" || stored.SessionID != "session-1" || stored.Sequence != 9 {
		t.Errorf("stored %+v", stored)
	}
	if stored.IsReceipt() || published[0].Receipt {
		t.Error("plain message marked as receipt")
	}
}

func TestMessageHookParsesReceipts(t *testing.T) {
	store := NewInMemoryMessageStore(0, nil, nil)
	hook := NewMessageHook(store, HookOptions{})

	text := []byte("id:abc123 sub:001 dlvrd:001 submit date:2401011200 done date:2401011201 stat:DELIVRD err:000 text:hello")
	if err := hook(context.Background(), deliverPDU(smpp.EsmClassDeliveryReceipt, smpp.DataCodingIA5, text)); err != nil {
		t.Fatalf("hook: %v", err)
	}

	got, err := store.ReceiptFor(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ReceiptFor: %v", err)
	}
	if got.Receipt.Status != smpp.ReceiptDelivered || !got.Receipt.Final() {
		t.Errorf("receipt = %+v", got.Receipt)
	}
}

func TestMessageHookKeepsUndecodablePayload(t *testing.T) {
	store := NewInMemoryMessageStore(0, nil, nil)
	hook := NewMessageHook(store, HookOptions{})

	if err := hook(context.Background(), deliverPDU(0, smpp.DataCodingUCS2, []byte{0x00, 0x41, 0x00})); err != nil {
		t.Fatalf("hook: %v", err)
	}
	results, _ := store.Search(context.Background(), &SearchCriteria{})
	if len(results) != 1 || len(results[0].Payload) != 3 {
		t.Fatalf("stored %+v", results)
	}
}

type failingStore struct{ MessageStore }

func (failingStore) Store(ctx context.Context, message *InboundMessage) (string, error) {
	return "", errors.New("disk full")
}

func TestMessageHookReportsStoreFailure(t *testing.T) {
	hook := NewMessageHook(failingStore{}, HookOptions{})
	if err := hook(context.Background(), deliverPDU(0, smpp.DataCodingIA5, []byte("x"))); err == nil {
		t.Error("store failure was not reported")
	}
}

func TestMessageHookRejectsOtherBodies(t *testing.T) {
	hook := NewMessageHook(NewInMemoryMessageStore(0, nil, nil), HookOptions{})
	pdu := &smpp.PDU{Header: smpp.PDUHeader{CommandID: smpp.CommandEnquireLink}, Body: &smpp.EnquireLink{}}
	if err := hook(context.Background(), pdu); err == nil {
		t.Error("non deliver_sm body accepted")
	}
}
