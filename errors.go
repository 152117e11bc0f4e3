package docsession

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrConflict         = errors.New("document update conflict")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrTransportFailure = errors.New("store request failed")
	ErrRejected         = errors.New("document rejected by store")
	ErrSessionBusy      = errors.New("session is flushing")
	ErrUnknownView      = errors.New("unknown view")
	ErrNoAllocator      = errors.New("store does not allocate ids")
)

// DocError ties a failure to the document it happened on.
type DocError struct {
	ID     string
	Op     string
	Err    error
	Detail string
}

func (e *DocError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %v: %s", e.Op, e.ID, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *DocError) Unwrap() error {
	return e.Err
}

func docErr(op, id string, err error) error {
	return &DocError{ID: id, Op: op, Err: err}
}
