package handlers

import (
	"github.com/nfrund/roomchat/internal/domain"
)

// CustomValidator adapts domain.Validate to Echo's Validator interface so
// c.Validate reports the same readable errors as the websocket payloads.
type CustomValidator struct{}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return domain.Validate(i)
}

// ListMessagesRequest is the query of the history endpoint.
type ListMessagesRequest struct {
	RoomID   string `query:"roomId"`
	Page     int    `query:"page" validate:"min=1"`
	PageSize int    `query:"pageSize" validate:"min=1,max=100"`
}

// RoomOnlineRequest names the room whose online users are listed.
type RoomOnlineRequest struct {
	RoomID string `param:"roomId" validate:"required"`
}
