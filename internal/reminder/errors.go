package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDateTime is returned when a date/time token matched the
	// grammar but does not name a real calendar instant.
	ErrMalformedDateTime = errors.New("malformed date/time")

	// ErrValidation marks user input the store refuses to persist.
	ErrValidation = errors.New("validation failed")
	ErrEmptyBody  = fmt.Errorf("%w: note text is empty", ErrValidation)

	// ErrStorageUnavailable wraps any failure of the backing record store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDispatch marks a failed outbound delivery of a single reminder.
	ErrDispatch = errors.New("dispatch failed")
)

// DateTimeError carries the offending token of a malformed date/time.
type DateTimeError struct {
	Token  string
	Reason string
}

func (e *DateTimeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %q", ErrMalformedDateTime, e.Token)
	}
	return fmt.Sprintf("%s: %q: %s", ErrMalformedDateTime, e.Token, e.Reason)
}

func (e *DateTimeError) Unwrap() error { return ErrMalformedDateTime }

// Storage wraps err as ErrStorageUnavailable, keeping the cause in the message.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
