package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nfrund/roomchat/internal/domain"
)

// storeError marks a durable store failure with the message shown to the
// client.
type storeError struct {
	msg string
	err error
}

func (e *storeError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func storeFailure(msg string, err error) error {
	return &storeError{msg: msg, err: err}
}

// mutationFailure passes refusals from a conditional write through and
// marks anything else as a store failure.
func mutationFailure(msg string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrNotFound):
		return err
	}
	return storeFailure(msg, err)
}

// decode parses an inbound payload. A missing payload decodes as empty.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}

// reportError translates a handler error into an error event for s.
func (c *Coordinator) reportError(s *Session, event string, err error) {
	var se *storeError
	switch {
	case errors.Is(err, ErrUnknownEvent):
		c.sendError(s, event, "unknown event", nil)
	case errors.Is(err, ErrNotInRoom):
		c.sendError(s, event, "not in room", err)
	case errors.Is(err, domain.ErrInvalidPayload):
		c.sendError(s, event, "invalid payload", err)
	case errors.Is(err, domain.ErrNotOwner):
		c.sendError(s, event, "not allowed to modify this message", nil)
	case errors.Is(err, domain.ErrNotFound):
		c.sendError(s, event, "message not found", nil)
	case errors.As(err, &se):
		// The cause may carry query text; it stays in the log.
		c.logger.Error("store failure", "event", event, "conn_id", s.ID(), "error", se.err)
		c.sendError(s, event, se.msg, nil)
	default:
		c.logger.Error("event failed", "event", event, "conn_id", s.ID(), "error", err)
		c.sendError(s, event, "request failed", nil)
	}
}

func (c *Coordinator) sendError(s *Session, event, message string, err error) {
	p := ErrorPayload{Event: event, Message: message}
	if err != nil {
		p.Error = err.Error()
	}
	c.sendTo(s, EventError, p)
}
