package protocol

import (
	"fmt"
	"strings"
)

// Kind classifies protocol errors by how a client is expected to react.
type Kind int

const (
	// KindUnknownSlot: the device or slot cannot be resolved, or the session is full.
	KindUnknownSlot Kind = iota + 1
	// KindTurnAhead: the caller's turn is ahead of the server. Fatal for that call.
	KindTurnAhead
	// KindNotReady: the gate is closed. Re-issue the identical call later.
	KindNotReady
	// KindGameEnded: the session is over.
	KindGameEnded
	// KindWrongRole: the caller's role or status does not allow this call.
	KindWrongRole
	// KindMalformed: decode or dispatch failure, surfaced verbatim.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindUnknownSlot:
		return "unknown_slot"
	case KindTurnAhead:
		return "turn_ahead"
	case KindNotReady:
		return "not_ready"
	case KindGameEnded:
		return "game_ended"
	case KindWrongRole:
		return "wrong_role"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reasons carried on the wire after "error/".
const (
	ReasonWait           = "wait"
	ReasonWaitInit       = "wait_init"
	ReasonTimeIsSuperior = "time_is_superior"
	ReasonGameEnded      = "game_ended"
	ReasonUnknownSlot    = "unknown_slot"
	ReasonSessionFull    = "session_full"
	ReasonWrongRole      = "wrong_role"
)

const malformedPrefix = "Command contained in request not understood: "

// Error is a protocol-level failure that is turned into a reply line rather
// than a transport failure.
type Error struct {
	Kind   Kind
	Reason string
	Detail string
	// Retry is the call to re-issue for wait replies.
	Retry *Request
}

func (e *Error) Error() string {
	if e.Kind == KindMalformed {
		return "malformed request: " + e.Detail
	}
	if e.Detail != "" {
		return e.Reason + ": " + e.Detail
	}
	return e.Reason
}

// Retriable reports whether re-issuing the identical call can succeed.
func (e *Error) Retriable() bool {
	return e.Kind == KindNotReady
}

// Line encodes the error as a reply line.
func (e *Error) Line() string {
	if e.Kind == KindMalformed {
		return malformedPrefix + e.Detail
	}
	parts := []string{prefixError, e.Reason}
	if e.Retry != nil {
		parts = append(parts, e.Retry.String())
	}
	return strings.Join(parts, sep)
}

// Wait builds the sentinel for a closed gate, carrying the call to repeat.
func Wait(req Request) *Error {
	return &Error{Kind: KindNotReady, Reason: ReasonWait, Retry: &req}
}

// WaitInit is Wait for calls made before the session left initialisation.
func WaitInit(req Request) *Error {
	return &Error{Kind: KindNotReady, Reason: ReasonWaitInit, Retry: &req}
}

// TimeIsSuperior rejects a call whose turn is ahead of the server's.
func TimeIsSuperior(clientTurn, serverTurn int) *Error {
	return &Error{
		Kind:   KindTurnAhead,
		Reason: ReasonTimeIsSuperior,
		Detail: fmt.Sprintf("client turn %d, server turn %d", clientTurn, serverTurn),
	}
}

// GameEnded is the terminal reply.
func GameEnded() *Error {
	return &Error{Kind: KindGameEnded, Reason: ReasonGameEnded}
}

// UnknownSlot rejects a call from a slot that never resolved an identity.
func UnknownSlot(slot int) *Error {
	return &Error{Kind: KindUnknownSlot, Reason: ReasonUnknownSlot, Detail: fmt.Sprintf("slot %d", slot)}
}

// SessionFull rejects a new device once every slot is taken.
func SessionFull(device string) *Error {
	return &Error{Kind: KindUnknownSlot, Reason: ReasonSessionFull, Detail: device}
}

// WrongRole rejects a call the caller's role may not make.
func WrongRole(format string, args ...any) *Error {
	return &Error{Kind: KindWrongRole, Reason: ReasonWrongRole, Detail: fmt.Sprintf(format, args...)}
}

// Malformed is the catch-all for requests that could not be decoded or dispatched.
func Malformed(format string, args ...any) *Error {
	return &Error{Kind: KindMalformed, Detail: fmt.Sprintf(format, args...)}
}

func kindForReason(reason string) Kind {
	switch reason {
	case ReasonWait, ReasonWaitInit:
		return KindNotReady
	case ReasonTimeIsSuperior:
		return KindTurnAhead
	case ReasonGameEnded:
		return KindGameEnded
	case ReasonUnknownSlot, ReasonSessionFull:
		return KindUnknownSlot
	case ReasonWrongRole:
		return KindWrongRole
	default:
		return KindMalformed
	}
}
