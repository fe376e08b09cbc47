package auction

import (
	"errors"
)

var (
	ErrInvalidNickname = errors.New("invalid nickname: use 3-16 alphanumeric characters or underscore")
	ErrNameInUse       = errors.New("nickname already in use")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrNotRegistered   = errors.New("participant is not registered")
	ErrNoActiveRound   = errors.New("no active auction round at the moment")
	ErrInvalidAmount   = errors.New("invalid bid amount")
	ErrAlreadyStarted  = errors.New("auction engine already started")
	ErrEngineClosed    = errors.New("auction engine is shut down")
)

// IsValidation reports whether err is a caller input problem that leaves the
// auction untouched.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidNickname) ||
		errors.Is(err, ErrNameInUse) ||
		errors.Is(err, ErrEmptyMessage)
}
