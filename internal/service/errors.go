package service

import (
	"errors"
	"fmt"

	"sorbo/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

// ValidationError reports why an input was rejected. Lines is keyed by sale
// line index; General carries a message that is not tied to one line.
type ValidationError struct {
	Lines    map[int]string
	General  string
	MaxStock []int
}

func (e *ValidationError) Error() string {
	if e.General != "" {
		return e.General
	}
	return fmt.Sprintf("%d invalid sale line(s)", len(e.Lines))
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{General: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return store.ErrNotFound }

// notFound turns store.ErrNotFound into a NotFoundError naming the entity
// and leaves any other error untouched.
func notFound(err error, entity string, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}

// CommitError is returned when a validated sale could not be written.
// DraftID is set when the sale was kept as a recoverable draft.
type CommitError struct {
	Op      string
	DraftID string
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s sale: %v", e.Op, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
