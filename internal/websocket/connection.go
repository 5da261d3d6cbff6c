package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	pingInterval    = idleTimeout * 9 / 10
	maxInboundBytes = 512
	outboundBuffer  = 64
)

var (
	// ErrClientClosed is returned when sending to a closed connection
	ErrClientClosed = errors.New("websocket client closed")
	// ErrSlowConsumer is returned when a connection's outbound buffer is full
	ErrSlowConsumer = errors.New("websocket client not keeping up")
)

// Identity is the user a connection was authenticated as
type Identity struct {
	UserID uuid.UUID
	Role   domain.Role
}

// Subscriber is what the hub delivers to. Send must not block.
type Subscriber interface {
	ID() string
	Identity() Identity
	Send(data []byte) error
	Close() error
}

// Connection is one authenticated browser socket. The server only pushes; anything the
// client sends apart from control frames is discarded.
type Connection struct {
	id        string
	identity  Identity
	conn      *ws.Conn
	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection wraps an upgraded socket
func NewConnection(conn *ws.Conn, identity Identity) *Connection {
	return &Connection{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		outbound: make(chan []byte, outboundBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Identity() Identity { return c.identity }

// Send queues a frame for the writer
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.outbound <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSlowConsumer
	}
}

// Close stops both loops and closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Serve registers the connection with the hub and blocks until the peer goes away
func (c *Connection) Serve(hub *Hub) {
	hub.Register(c)
	defer func() {
		hub.Unregister(c)
		_ = c.Close()
	}()

	go c.writeLoop()
	c.readLoop()
}

func (c *Connection) readLoop() {
	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				log.Debug().Err(err).Str("client_id", c.id).Msg("WebSocket closed unexpectedly")
			}
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.outbound:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
