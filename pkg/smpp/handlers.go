package smpp

import (
	"context"
	"fmt"
)

// HandlerFunc handles one server-initiated PDU on the receive loop.
type HandlerFunc func(ctx context.Context, pdu *PDU) error

func (s *TransceiverSession) defaultHandlers() map[uint32]HandlerFunc {
	return map[uint32]HandlerFunc{
		CommandEnquireLink:       s.handleEnquireLink,
		CommandUnbind:            s.handleUnbind,
		CommandDeliverSM:         s.handleDeliverSM,
		CommandDataSM:            s.handleDataSM,
		CommandAlertNotification: s.handleAlertNotification,
	}
}

// Handle replaces the handler for commandID. A nil fn removes it, so the PDU
// is logged and dropped. Handlers can only change while the session is
// CLOSED; each connect takes its own copy of the table.
func (s *TransceiverSession) Handle(commandID uint32, fn HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		return &StateError{Op: "handle", State: s.state}
	}
	if fn == nil {
		delete(s.handlers, commandID)
		return nil
	}
	s.handlers[commandID] = fn
	return nil
}

// dispatch routes an inbound PDU: responses go to their waiter, everything
// else to the handler for its command id.
func (s *TransceiverSession) dispatch(ctx context.Context, l *link, pdu *PDU) {
	if IsResponse(pdu.Header.CommandID) && l.pending.resolve(pdu) {
		s.metrics.SetGauge(MetricPendingRequests, float64(l.pending.len()), nil)
		return
	}

	handler, ok := l.handlers[pdu.Header.CommandID]
	if !ok {
		handler = s.handleUnknown
	}
	if err := handler(ctx, pdu); err != nil {
		s.logger.Error("Error handling PDU",
			"session_id", l.id,
			"command", CommandName(pdu.Header.CommandID),
			"sequence", pdu.Header.SequenceNum,
			"error", err)
	}
}

func (s *TransceiverSession) handleEnquireLink(ctx context.Context, pdu *PDU) error {
	return s.Reply(ctx, BuildResponse(pdu, StatusOK))
}

// handleUnbind acknowledges a server-initiated unbind and closes the session.
func (s *TransceiverSession) handleUnbind(ctx context.Context, pdu *PDU) error {
	l := loopLink(ctx)
	if l == nil {
		l = s.currentLink()
	}
	if l == nil || l.closed() {
		return ErrSessionClosed
	}
	s.logger.Info("Unbind requested by SMSC", "session_id", l.id)

	err := s.Reply(ctx, BuildResponse(pdu, StatusOK))
	s.degrade(l)
	s.disconnect(ctx, l)
	if err != nil {
		return fmt.Errorf("failed to acknowledge unbind: %w", err)
	}
	return nil
}

func (s *TransceiverSession) handleDeliverSM(ctx context.Context, pdu *PDU) error {
	if err := s.runHook(ctx, pdu); err != nil {
		s.logger.Error("Message hook failed, withholding deliver_sm_resp",
			"sequence", pdu.Header.SequenceNum,
			"error", err)
		return nil
	}
	return s.Reply(ctx, BuildResponse(pdu, StatusOK))
}

func (s *TransceiverSession) runHook(ctx context.Context, pdu *PDU) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in message hook: %v", r)
		}
	}()
	return s.hook(ctx, pdu)
}

func (s *TransceiverSession) handleDataSM(ctx context.Context, pdu *PDU) error {
	s.critical("data_sm is not supported, PDU dropped",
		"sequence", pdu.Header.SequenceNum)
	return ErrNotImplemented
}

func (s *TransceiverSession) handleAlertNotification(ctx context.Context, pdu *PDU) error {
	if alert, ok := pdu.Body.(*AlertNotification); ok {
		s.logger.Debug("Alert notification absorbed", "source", alert.Source.Addr, "esme", alert.ESME.Addr)
	}
	return nil
}

func (s *TransceiverSession) handleUnknown(ctx context.Context, pdu *PDU) error {
	s.metrics.IncCounter(MetricUnhandledCommands, map[string]string{"command": CommandName(pdu.Header.CommandID)})
	s.logger.Warn("No handler for PDU, dropping",
		"command", CommandName(pdu.Header.CommandID),
		"status", StatusName(pdu.Header.CommandStatus),
		"sequence", pdu.Header.SequenceNum)
	return nil
}
