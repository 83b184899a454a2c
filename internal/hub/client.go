package hub

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"Parley/internal/event"
)

var (
	// tuning parameters
	writeWait      = 10 * time.Second    // time allowed to write a message to the peer
	pongWait       = 20 * time.Second    // time allowed to read the next pong message from the peer
	pingInterval   = (pongWait * 9) / 10 // send pings to peer with this period
	maxMessageSize = 64 * 1024           // max inbound message size (64KB)
	sendBufSize    = 256                 // per-connection outbound buffer size
	sendTimeout    = 2 * time.Second     // timeout for enqueuing outbound frames
)

// Client is one live WebSocket connection for an identity. Inbound frames
// are dispatched synchronously inside the read pump, so envelopes from one
// connection are always handled strictly in arrival order.
type Client struct {
	ID         string
	email      string
	conn       *websocket.Conn
	hub        *Hub
	dispatcher *Dispatcher
	egress     chan []byte
	logger     *zap.Logger

	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool
	closedMu       sync.RWMutex
}

func newClient(email string, conn *websocket.Conn, h *Hub, d *Dispatcher, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:         uuid.New().String(),
		email:      email,
		conn:       conn,
		hub:        h,
		dispatcher: d,
		egress:     make(chan []byte, sendBufSize),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		connClosed: make(chan struct{}),
	}
}

// Email returns the identity that authenticated this connection.
func (c *Client) Email() string { return c.email }

func (c *Client) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, raw, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.logger.Debug("client disconnected", zap.String("client_id", c.ID))
					return
				}

				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseInternalServerErr,
					websocket.CloseProtocolError,
				) {
					c.logger.Warn("unexpected close", zap.String("client_id", c.ID), zap.Error(err))
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.logger.Debug("client timed out, closing connection", zap.String("client_id", c.ID))
					return
				}

				c.logger.Debug("read error", zap.String("client_id", c.ID), zap.Error(err))
				return
			}

			// one envelope at a time, in arrival order
			c.dispatcher.Dispatch(c.ctx, c, raw)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				c.logger.Debug("connection closed", zap.Error(err))
			}
			return
		case frame := <-c.egress:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write error", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping error", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// SendRaw enqueues a pre-serialized frame. A full egress buffer closes the
// client rather than stalling the sender.
func (c *Client) SendRaw(frame []byte) {
	if c.IsClosed() {
		return
	}

	select {
	case c.egress <- frame:
	case <-c.ctx.Done():
	case <-time.After(sendTimeout):
		c.logger.Warn("egress full, disconnecting client",
			zap.String("client_id", c.ID),
			zap.String("email", c.email),
		)
		c.hub.Unregister(c.email, c.ID)
		c.Close()
	}
}

// Send marshals and enqueues a {source, data} frame.
func (c *Client) Send(source string, data any) {
	frame, err := event.Frame(source, data)
	if err != nil {
		c.logger.Error("marshal frame", zap.String("source", source), zap.Error(err))
		return
	}
	c.SendRaw(frame)
}

// SendError enqueues an error frame with a stable type tag.
func (c *Client) SendError(errType, message string) {
	c.SendRaw(event.ErrorFrame(errType, message))
}

// Close marks the client closed and cancels its context. The egress channel
// is never closed: WritePump drains it until ctx is done and then sends the
// websocket close frame, so a sender racing a disconnect parks on ctx.Done
// instead of hitting a closed channel.
func (c *Client) Close() {
	c.once.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()

		// Wait for WritePump to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
			}
		}()
	})
}

// IsClosed returns true if the client has been closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}
