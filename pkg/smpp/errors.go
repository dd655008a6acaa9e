package smpp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is matched by every *StateError.
	ErrInvalidState = errors.New("smpp: operation not allowed in current state")
	// ErrSessionClosed fails requests still waiting when the session is torn down.
	ErrSessionClosed = errors.New("smpp: session closed")
	// ErrNotImplemented is returned by handlers for commands this client does not serve.
	ErrNotImplemented = errors.New("smpp: not implemented")
)

// StateError reports an operation attempted in a state that does not allow it.
type StateError struct {
	Op    string
	State SessionState
	Err   error
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smpp: %s in state %s: %v", e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("smpp: %s not allowed in state %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// RejectedError reports a response that failed the acceptance check: a non-OK
// command_status, an unexpected command id, or no response at all.
type RejectedError struct {
	CommandID uint32
	Status    uint32
	Expected  uint32
}

func (e *RejectedError) Error() string {
	if e.CommandID == 0 {
		return fmt.Sprintf("smpp: no %s received", CommandName(e.Expected))
	}
	if e.Expected != 0 && e.CommandID != e.Expected {
		return fmt.Sprintf("smpp: expected %s, got %s (%s)",
			CommandName(e.Expected), CommandName(e.CommandID), StatusName(e.Status))
	}
	return fmt.Sprintf("smpp: %s rejected with %s", CommandName(e.CommandID), StatusName(e.Status))
}

// FrameError reports a length prefix that cannot describe a valid PDU.
type FrameError struct {
	Length uint32
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("smpp: invalid frame length %d: %s", e.Length, e.Reason)
}

// DecodeError reports a well-framed PDU whose body could not be parsed.
type DecodeError struct {
	CommandID   uint32
	SequenceNum uint32
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("smpp: decode %s (seq %d): %v", CommandName(e.CommandID), e.SequenceNum, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
