package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected intent.
type ErrorKind int

const (
	// KindValidation is a bad intent; round state is unchanged.
	KindValidation ErrorKind = iota
	// KindExhausted is a request that cannot fit, such as joining a full round.
	KindExhausted
	// KindExternal is a gateway failure surfaced to the caller.
	KindExternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExhausted:
		return "exhausted"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Reason codes. IntentError unwraps to one of these so callers can match
// with errors.Is.
var (
	ErrWrongPhase        = errors.New("wrong_phase")
	ErrUnknownPlayer     = errors.New("unknown_player")
	ErrAlreadyJoined     = errors.New("already_joined")
	ErrCardTaken         = errors.New("card_taken")
	ErrInvalidCardNumber = errors.New("invalid_card_number")
	ErrRoundFull         = errors.New("round_full")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrNumberOutOfRange  = errors.New("number_out_of_range")
	ErrNumberNotDrawn    = errors.New("number_not_drawn")
	ErrNumberNotOnCard   = errors.New("number_not_on_card")
	ErrAlreadyMarked     = errors.New("already_marked")
	ErrNoWinToClaim      = errors.New("no_win_to_claim")
	ErrAlreadyClaimed    = errors.New("already_claimed")
	ErrGateway           = errors.New("gateway_failure")
)

var (
	// ErrEngineHalted is returned for every intent once the engine has
	// stopped, whether cleanly or because of an invariant violation.
	ErrEngineHalted = errors.New("engine halted")
	// ErrInvariantViolation marks a serialisation bug. It is fatal to the
	// engine instance.
	ErrInvariantViolation = errors.New("invariant violation")
	ErrNotStarted         = errors.New("engine not started")
	ErrAlreadyStarted     = errors.New("engine already started")
)

// IntentError is a rejected join, leave, mark or claim.
type IntentError struct {
	Kind   ErrorKind
	Code   error
	Reason string
	Err    error
}

func (e *IntentError) Error() string { return e.Reason }

// Unwrap exposes both the reason code and any underlying cause.
func (e *IntentError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Code, e.Err}
	}
	return []error{e.Code}
}

func rejectf(code error, format string, args ...any) *IntentError {
	return &IntentError{Kind: KindValidation, Code: code, Reason: fmt.Sprintf(format, args...)}
}

func exhaustedf(code error, format string, args ...any) *IntentError {
	return &IntentError{Kind: KindExhausted, Code: code, Reason: fmt.Sprintf(format, args...)}
}

func external(err error, format string, args ...any) *IntentError {
	return &IntentError{Kind: KindExternal, Code: ErrGateway, Reason: fmt.Sprintf(format, args...), Err: err}
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
