package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/smpp-esme/pkg/events"
	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

// HookOptions configures the message hook returned by NewMessageHook
type HookOptions struct {
	Logger    smpp.Logger
	Publisher *events.EventBus
	SessionID func() string
}

// NewMessageHook returns a hook storing every deliver_sm in store and
// publishing a MessageEvent for it. A store failure withholds the
// deliver_sm_resp so the SMSC redelivers.
func NewMessageHook(store MessageStore, opts HookOptions) smpp.MessageHook {
	return func(ctx context.Context, pdu *smpp.PDU) error {
		deliver, ok := pdu.Body.(*smpp.DeliverSM)
		if !ok {
			return fmt.Errorf("unexpected body %T", pdu.Body)
		}

		message := &InboundMessage{
			ReceivedAt: time.Now(),
			Sequence:   pdu.Header.SequenceNum,
			Source:     deliver.Source,
			Dest:       deliver.Dest,
			EsmClass:   deliver.EsmClass,
			DataCoding: deliver.DataCoding,
			Payload:    append([]byte(nil), deliver.Payload()...),
		}
		if opts.SessionID != nil {
			message.SessionID = opts.SessionID()
		}

		text, err := smpp.MessageText(pdu)
		if err != nil && opts.Logger != nil {
			opts.Logger.Warn("Undecodable short message, storing raw payload",
				"source", deliver.Source.Addr,
				"data_coding", deliver.DataCoding,
				"error", err)
		}
		message.Text = text

		if deliver.IsDeliveryReceipt() {
			if receipt, ok := smpp.ParseDeliveryReceipt(text); ok {
				message.Receipt = &receipt
			} else if opts.Logger != nil {
				opts.Logger.Warn("Delivery receipt without id", "source", deliver.Source.Addr)
			}
		}

		id, err := store.Store(ctx, message)
		if err != nil {
			return fmt.Errorf("store inbound message: %w", err)
		}

		if opts.Publisher != nil {
			event := &events.MessageEvent{
				Timestamp:  message.ReceivedAt,
				MessageID:  id,
				SourceAddr: deliver.Source.Addr,
				DestAddr:   deliver.Dest.Addr,
				Receipt:    message.IsReceipt(),
			}
			if err := opts.Publisher.Publish(ctx, event); err != nil && opts.Logger != nil {
				opts.Logger.Warn("Failed to publish message event", "id", id, "error", err)
			}
		}
		return nil
	}
}
