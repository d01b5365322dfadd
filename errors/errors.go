package errors

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// Validation errors. Caller mistakes, always recoverable.
	ErrEmptyBody         = fmt.Errorf("comment body is empty")
	ErrBodyTooLong       = fmt.Errorf("comment body exceeds maximum length")
	ErrInvalidPagination = fmt.Errorf("invalid pagination parameters")

	// Structural errors. The store is unchanged on any failed call.
	ErrDuplicateThread = fmt.Errorf("page key already bound to a live thread")
	ErrThreadNotFound  = fmt.Errorf("thread not found")
	ErrThreadLocked    = fmt.Errorf("thread is locked")
	ErrParentNotFound  = fmt.Errorf("parent comment not found")
	ErrThreadTooDeep   = fmt.Errorf("maximum nesting depth exceeded")
	ErrCommentNotFound = fmt.Errorf("comment not found")

	// Concurrency errors. Transient, callers may retry with backoff.
	ErrLockTimeout = fmt.Errorf("thread write lock acquisition timed out")

	// Moderation errors.
	ErrInvalidTransition = fmt.Errorf("invalid moderation transition")

	// Auth errors.
	ErrInvalidCredentials = fmt.Errorf("invalid moderator credentials")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// InvalidTransitionError rejects a whole moderation batch and reports exactly
// which ids mapped to a forbidden transition. The store state is untouched.
type InvalidTransitionError struct {
	Offending []uuid.UUID
}

func (e *InvalidTransitionError) Error() string {
	ids := make([]string, len(e.Offending))
	for i, id := range e.Offending {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%v: %s", ErrInvalidTransition, strings.Join(ids, ", "))
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
