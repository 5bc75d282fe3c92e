package session

import (
	"errors"
	"fmt"
)

// Kind classifies a coordinator failure. Every kind is recoverable and safe to show to a client.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindGameNotActive   Kind = "game_not_active"
	KindTurnOrder       Kind = "turn_order"
	KindIllegalMove     Kind = "illegal_move"
	KindSelfChallenge   Kind = "self_challenge"
	KindPlayerBusy      Kind = "player_busy"
	KindChallengeState  Kind = "challenge_state"
	KindUnauthenticated Kind = "unauthenticated"
	KindInternal        Kind = "internal"
)

// Error is returned by every coordinator operation. Message is user-facing; the wrapped cause
// (if any) is for logs only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same kind, so errors.Is(err, session.ErrTurnOrder) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrGameNotActive   = &Error{Kind: KindGameNotActive}
	ErrTurnOrder       = &Error{Kind: KindTurnOrder}
	ErrIllegalMove     = &Error{Kind: KindIllegalMove}
	ErrSelfChallenge   = &Error{Kind: KindSelfChallenge}
	ErrPlayerBusy      = &Error{Kind: KindPlayerBusy}
	ErrChallengeState  = &Error{Kind: KindChallengeState}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrInternal        = &Error{Kind: KindInternal}
)

// KindOf extracts the kind of err. Errors that did not come from this package are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err, never the text of an unexpected cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
