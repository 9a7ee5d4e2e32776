package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"codeberg.org/graphroom/server/internal/logger"
)

// creates a new websocket client connection
func NewClient(id, roomID, address, ipAddress string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:        id,
		RoomID:    roomID,
		Address:   address,
		IPAddress: ipAddress,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, 256),
		limiter:   rate.NewLimiter(inboundRateLimit, inboundRateBurst),
	}
}

// reads frames from the websocket connection and forwards them to the hub.
// Malformed frames and frames over the rate limit are dropped silently;
// the sender gets no acknowledgement either way.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: websocket setup
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: pong handler
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket error",
					"client_id", c.ID,
					"room_id", c.RoomID,
					"error", err,
				)
			}

			break
		}

		if !c.limiter.Allow() {
			logger.Debug("inbound frame dropped by rate limit",
				"client_id", c.ID,
				"room_id", c.RoomID,
			)
			continue
		}

		var probe struct {
			Type string `json:"type"`
		}

		if err := json.Unmarshal(frame, &probe); err != nil || probe.Type == "" {
			logger.Warn("malformed frame dropped",
				"client_id", c.ID,
				"room_id", c.RoomID,
				"error", err,
			)
			continue
		}

		c.hub.Inbound <- &Inbound{
			Type:       probe.Type,
			Raw:        frame,
			RoomID:     c.RoomID,
			ClientID:   c.ID,
			ReceivedAt: time.Now(),
		}
	}
}

// writes frames from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck,gosec // G104: close message
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket ping timing

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// queues a raw frame for delivery to the client
func (c *Client) SendRaw(frame []byte) (err error) {
	// recover from panic if channel is closed
	defer func() {
		if r := recover(); r != nil {
			err = ErrConnectionClosed
		}
	}()

	c.mu.RLock()

	if c.closed {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}

	c.mu.RUnlock()

	select {
	case c.send <- frame:
		return nil
	default:
		// channel is full; a client this far behind is not recoverable
		c.Close()
		return ErrConnectionClosed
	}
}

// closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// checks if the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}
