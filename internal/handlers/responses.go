package handlers

import (
	"github.com/nfrund/roomchat/internal/domain"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Pagination echoes the page that was served.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// MessagesResponse is the body of GET /api/messages.
type MessagesResponse struct {
	Success    bool              `json:"success"`
	Messages   []*domain.Message `json:"messages"`
	Pagination Pagination        `json:"pagination"`
}

// OnlineUsersResponse is the body of GET /api/rooms/:roomId/online.
type OnlineUsersResponse struct {
	Success bool              `json:"success"`
	RoomID  string            `json:"roomId"`
	Users   []domain.RoomUser `json:"users"`
	Count   int               `json:"count"`
}

func errorResponse(message string, err error) ErrorResponse {
	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
