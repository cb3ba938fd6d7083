package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/middleware"
)

// MessageLister is the slice of the message store the history API reads.
type MessageLister interface {
	ListRoomMessages(ctx context.Context, roomID string, page, pageSize int) ([]*domain.Message, error)
}

// OnlineUserLister is the slice of the online user store the presence API reads.
type OnlineUserLister interface {
	ListOnlineUsersInRoom(ctx context.Context, roomID string, window time.Duration) ([]domain.RoomUser, error)
}

// ChatHandler serves the REST side of the chat: history and who is online.
type ChatHandler struct {
	messages     MessageLister
	online       OnlineUserLister
	defaultRoom  string
	onlineWindow time.Duration
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(messages MessageLister, online OnlineUserLister, defaultRoom string, onlineWindow time.Duration) *ChatHandler {
	return &ChatHandler{
		messages:     messages,
		online:       online,
		defaultRoom:  defaultRoom,
		onlineWindow: onlineWindow,
	}
}

// ListMessages handles GET /api/messages?roomId=&page=&pageSize=.
// Page 1 is the most recent page; messages within a page are oldest first.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	req := ListMessagesRequest{Page: domain.DefaultPage, PageSize: domain.DefaultPageSize}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse("invalid query parameters", nil))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error(), nil))
	}
	if req.RoomID == "" {
		req.RoomID = h.defaultRoom
	}

	messages, err := h.messages.ListRoomMessages(c.Request().Context(), req.RoomID, req.Page, req.PageSize)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("failed to list messages", "room_id", req.RoomID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse("failed to load messages", err))
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	return c.JSON(http.StatusOK, MessagesResponse{
		Success:  true,
		Messages: messages,
		Pagination: Pagination{
			Page:     req.Page,
			PageSize: req.PageSize,
			Total:    len(messages),
		},
	})
}

// RoomOnlineUsers handles GET /api/rooms/:roomId/online.
func (h *ChatHandler) RoomOnlineUsers(c echo.Context) error {
	req := RoomOnlineRequest{RoomID: c.Param("roomId")}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(err.Error(), nil))
	}

	users, err := h.online.ListOnlineUsersInRoom(c.Request().Context(), req.RoomID, h.onlineWindow)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("failed to list online users", "room_id", req.RoomID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse("failed to load online users", err))
	}
	if users == nil {
		users = []domain.RoomUser{}
	}

	return c.JSON(http.StatusOK, OnlineUsersResponse{
		Success: true,
		RoomID:  req.RoomID,
		Users:   users,
		Count:   len(users),
	})
}
