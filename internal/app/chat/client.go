/*
Package chat contains the real-time core of the chat server.

This file defines the Client struct, representing an active WebSocket connection. It manages the
connection lifecycle and the two message loops (ReadPump and WritePump), and hands every inbound
frame to the Hub.
*/
package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"groupchat/internal/pkg/auth/jwt"
	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// capacity of the outbound queue.
	sendBufferSize = 256

	// EventRate and EventBurst limit the inbound events of one connection.
	EventRate  = rate.Limit(10)
	EventBurst = 20
)

// Client struct represents an active WebSocket connection.
type Client struct {
	// id is the connection id assigned at upgrade.
	id string

	hub *Hub

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// session is the verified token presented at connect, nil for anonymous connections.
	session *jwt.Payload

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// limiter throttles inbound events.
	limiter *rate.Limiter

	// done is closed when the connection must go away; closeCode and closeReason
	// describe the close frame WritePump sends.
	done        chan struct{}
	closeOnce   sync.Once
	closeCode   int
	closeReason string

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection.
func NewClient(hub *Hub, wsConn *websocket.Conn, session *jwt.Payload) *Client {
	id := uuid.NewString()

	logCtx := logx.Logger().With().Str("conn_id", id)
	if session != nil {
		logCtx = logCtx.Str("user_id", session.UserID)
	}

	return &Client{
		id:      id,
		hub:     hub,
		conn:    wsConn,
		session: session,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(EventRate, EventBurst),
		done:    make(chan struct{}),
		logger:  logCtx.Logger(),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Send marshals env and queues it without blocking. A full queue drops the frame.
func (c *Client) Send(env Envelope) bool {
	frame, err := json.Marshal(env)
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(env.Type)).Msg("Error marshaling envelope for client")
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().
			Int("queue_len", len(c.send)).
			Str("event", string(env.Type)).
			Msg("Client send channel full, dropping message")
		return false
	}
}

// Kick asks WritePump to flush queued frames, send a close frame with code and
// close the connection.
func (c *Client) Kick(code int, reason string) {
	c.closeOnce.Do(func() {
		c.logger.Warn().
			Int("close_code", code).
			Str("reason", reason).
			Msg("Closing connection.")

		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// ReadPump reads frames from the WebSocket connection and dispatches them.
// It handles heartbeats (Pong) and detaches the client when the connection ends.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		if !c.limiter.Allow() {
			c.Send(NewErrorEnvelope(EventErrorMessage, "", errs.NewError(errs.ErrRateLimitExceeded)))
			continue
		}

		c.hub.Dispatch(context.Background(), c.id, c.session, frame)
	}
}

// cleanupOnDisconnect detaches the client from the hub and closes the connection.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.Detach(c.id)
	c.Kick(websocket.CloseNormalClosure, "")

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump writes queued frames to the WebSocket connection. It is the only
// goroutine that writes to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}

		case <-c.done:
			c.flushAndClose()
			return
		}
	}
}

// writeFrame writes one queued frame. Returns false if the WritePump loop should terminate.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// flushAndClose drains frames queued before Kick and then sends the close frame.
func (c *Client) flushAndClose() {
	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
			continue
		default:
		}
		break
	}

	code := c.closeCode
	if code == 0 {
		code = websocket.CloseNormalClosure
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	closeMessage := websocket.FormatCloseMessage(code, c.closeReason)
	if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Debug().Err(err).Int("close_code", code).Msg("Failed to send close message.")
	}
}
