package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// --- Configuration Constants ---
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the pong for a heartbeat ping.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 64 << 10

	// Outbound frames buffered per client before it is considered jammed.
	sendBuffer = 256
)

// Client is one upgraded connection. It satisfies chat.Conn.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *slog.Logger
}

func newClient(conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default().With("service", "websocket", "conn_id", id, "user_id", userID),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues a frame for the write pump. It never blocks. A closed client
// reports false; a full queue means the peer stopped reading, so the
// connection is dropped.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("Client send channel full, connection dropped")
		c.Close(websocket.StatusPolicyViolation, "send queue full")
		return false
	}
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// Close shuts the connection down. Only the first call has any effect.
func (c *Client) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			// The close handshake waits on the peer; never hold up the caller.
			go c.conn.Close(code, reason)
		}
	})
}

// readPump delivers inbound frames to handle until the connection fails or
// the client is closed.
func (c *Client) readPump(handle func(frame []byte)) {
	for {
		_, message, err := c.conn.Read(c.ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.logger.Info("WebSocket closed normally by client")
			case errors.Is(err, io.EOF), errors.Is(err, context.Canceled), c.ctx.Err() != nil:
				c.logger.Debug("WebSocket read loop stopped", "error", err)
			default:
				c.logger.Error("WebSocket read error", "error", err)
			}
			return
		}
		handle(message)
	}
}

// writePump writes queued frames to the connection until the client is closed.
func (c *Client) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					c.logger.Error("WebSocket write error", "error", err)
				}
				c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// heartbeat pings the peer every period and calls alive after each pong. A
// missing pong closes the connection.
func (c *Client) heartbeat(period time.Duration, alive func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, pongWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					c.logger.Warn("WebSocket heartbeat failed", "error", err)
				}
				c.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
			alive()
		}
	}
}
