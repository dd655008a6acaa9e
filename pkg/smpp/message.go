package smpp

import (
	"context"
	"fmt"
)

// MessageHook receives every inbound deliver_sm. Returning an error (or
// panicking) withholds the deliver_sm_resp.
type MessageHook func(ctx context.Context, pdu *PDU) error

// MessageText decodes the text of a deliver_sm or submit_sm according to its
// data_coding. message_payload takes precedence over short_message.
func MessageText(pdu *PDU) (string, error) {
	var fields *MessageFields
	switch body := pdu.Body.(type) {
	case *DeliverSM:
		fields = &body.MessageFields
	case *SubmitSM:
		fields = &body.MessageFields
	default:
		return "", fmt.Errorf("%s carries no short message", CommandName(pdu.Header.CommandID))
	}
	return textEncoder.Decode(fields.Payload(), fields.DataCoding)
}

// LogMessageHook logs the decoded short message and acknowledges it.
func LogMessageHook(logger Logger) MessageHook {
	return func(ctx context.Context, pdu *PDU) error {
		deliver, ok := pdu.Body.(*DeliverSM)
		if !ok {
			return fmt.Errorf("unexpected body %T", pdu.Body)
		}
		text, err := MessageText(pdu)
		if err != nil {
			logger.Warn("Undecodable short message",
				"source", deliver.Source.Addr,
				"data_coding", deliver.DataCoding,
				"error", err)
			text = fmt.Sprintf("%x", deliver.Payload())
		}
		logger.Info("Message received",
			"source", deliver.Source.Addr,
			"dest", deliver.Dest.Addr,
			"delivery_receipt", deliver.IsDeliveryReceipt(),
			"short_message", text)
		return nil
	}
}
