package services

import (
	"errors"
	"fmt"

	"murmur/internal/store"
)

// Domain errors. Callers classify them with errors.Is; the HTTP layer maps
// each one onto a status code.
var (
	ErrNotFound           = errors.New("not found")
	ErrNotAuthor          = errors.New("you seem not to be the author of this comment")
	ErrSelfVote           = errors.New("you cannot vote for your own comments")
	ErrTokenInvalid       = errors.New("bad signature")
	ErrTokenExpired       = errors.New("signature expired")
	ErrThreadMismatch     = errors.New("thread name mismatch")
	ErrNotificationFailed = errors.New("could not notify moderators")
	ErrInvalidArgument    = errors.New("invalid argument")
	// ErrAuth wraps every author token failure, together with
	// ErrTokenInvalid or ErrTokenExpired.
	ErrAuth = errors.New("invalid author token")
)

func commentNotFound(id uint, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	return err
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
