package smpp

import "context"

// SessionState represents the state of an ESME session
type SessionState int

const (
	StateClosed SessionState = iota
	StateOpen
	StateBoundTX
	StateBoundRX
	StateBoundTRX
)

func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateBoundTX:
		return "BOUND_TX"
	case StateBoundRX:
		return "BOUND_RX"
	case StateBoundTRX:
		return "BOUND_TRX"
	default:
		return "UNKNOWN"
	}
}

// Bound reports whether the session is bound in any direction.
func (s SessionState) Bound() bool {
	return s == StateBoundTX || s == StateBoundRX || s == StateBoundTRX
}

// CanSubmit reports whether the state allows originating messages.
func (s SessionState) CanSubmit() bool {
	return s == StateBoundTX || s == StateBoundTRX
}

func boundStateFor(bindCommand uint32) SessionState {
	switch bindCommand {
	case CommandBindTransmitter:
		return StateBoundTX
	case CommandBindReceiver:
		return StateBoundRX
	default:
		return StateBoundTRX
	}
}

// Session is implemented by SyncSession and TransceiverSession.
//
// Bind calls on an already bound session do nothing and return a nil PDU.
// Submit calls return the response PDU together with a *RejectedError when
// the SMSC refused the message.
type Session interface {
	State() SessionState
	ID() string

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	BindTransmitter(ctx context.Context, params Params) (*PDU, error)
	BindReceiver(ctx context.Context, params Params) (*PDU, error)
	BindTransceiver(ctx context.Context, params Params) (*PDU, error)

	SubmitSM(ctx context.Context, params Params) (*PDU, error)
	SubmitMulti(ctx context.Context, destinations []Destination, params Params) (*PDU, error)
}

// IsOK reports whether p is a successful response. When expected is non-zero
// the command id must match it as well.
func IsOK(p *PDU, expected uint32) bool {
	if p == nil || p.Body == nil {
		return false
	}
	if p.Header.CommandStatus != StatusOK {
		return false
	}
	return expected == 0 || p.Header.CommandID == expected
}

func rejection(p *PDU, expected uint32) *RejectedError {
	if p == nil {
		return &RejectedError{Expected: expected}
	}
	return &RejectedError{
		CommandID: p.Header.CommandID,
		Status:    p.Header.CommandStatus,
		Expected:  expected,
	}
}

// NewSession builds the session variant selected by cfg.Mode.
func NewSession(cfg *ClientConfig, defaults Params, opts ...Option) Session {
	opts = append([]Option{WithConfig(cfg)}, opts...)
	if cfg != nil && cfg.Mode == ModeSync {
		return NewSyncSession(defaults, opts...)
	}
	return NewTransceiverSession(defaults, opts...)
}

var (
	_ Session = (*SyncSession)(nil)
	_ Session = (*TransceiverSession)(nil)
)
