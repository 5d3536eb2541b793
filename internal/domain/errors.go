package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to map it to a response.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func BadRequest(msg string) *Error { return &Error{Kind: KindBadRequest, Message: msg} }
func Forbidden(msg string) *Error  { return &Error{Kind: KindForbidden, Message: msg} }
func Conflict(msg string) *Error   { return &Error{Kind: KindConflict, Message: msg} }

// Internal wraps a persistence or infrastructure failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf reports the kind of err. Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// User errors
var (
	ErrUserNotFound     = NotFound("user not found")
	ErrUsernameTaken    = Conflict("username is already taken")
	ErrUsernameRequired = BadRequest("username is required")
	ErrUsernameLength   = BadRequest(fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
)

// Calendar and membership errors
var (
	ErrCalendarNotFound     = NotFound("calendar not found")
	ErrNotMember            = NotFound("you are not a member of this calendar")
	ErrMemberNotFound       = NotFound("member not found in this calendar")
	ErrNewOwnerNotMember    = NotFound("new owner must be a member of this calendar")
	ErrNotOwner             = Forbidden("only the calendar owner can perform this action")
	ErrCannotRemoveOwner    = BadRequest("cannot remove the owner, transfer ownership first")
	ErrCalendarHasMembers   = Conflict("cannot delete calendar with other members, remove all members first or transfer ownership")
	ErrShareCodeUnavailable = Internal("could not generate a unique share code", nil)
)

// Event errors
var (
	ErrEventNotFound          = NotFound("event not found")
	ErrInvalidTimestamp       = BadRequest("invalid datetime format")
	ErrEndBeforeStart         = BadRequest("end_time must not be before start_time")
	ErrNegativeReminderMinute = BadRequest("reminder_minutes must not be negative")
)
