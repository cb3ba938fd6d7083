package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	ErrNotFound = errors.New("requested resource not found")

	// ErrNotOwner is returned when a message mutation is attempted by someone
	// other than its author.
	ErrNotOwner = errors.New("message does not belong to user")

	// ErrInvalidPayload wraps validation failures on client supplied data.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrNothingToUpdate is returned by UpdateMessage when the patch is empty.
	ErrNothingToUpdate = errors.New("no fields to update")
)
