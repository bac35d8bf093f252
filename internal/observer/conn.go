package observer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type ConnConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	// PingInterval of zero disables the liveness probe.
	PingInterval time.Duration
	ReadLimit    int64
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4096
	}
	return c
}

// Conn adapts a websocket connection to Observer. Frames are queued on a
// buffered channel and written by WritePump, so Send never touches the socket.
type Conn struct {
	ws   *websocket.Conn
	cfg  ConnConfig
	log  *slog.Logger
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, cfg ConnConfig, logger *slog.Logger) *Conn {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		ws:   ws,
		cfg:  cfg,
		log:  logger,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Conn) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Done is closed once the connection has been closed from either side.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// WritePump drains the send queue onto the socket until the connection closes
// or a write fails.
func (c *Conn) WritePump() {
	var pingC <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write failed", "error", err)
				return
			}
		case <-pingC:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// ReadPump blocks reading inbound frames and hands text frames to onText.
// It returns when the peer goes away; a normal close yields nil.
func (c *Conn) ReadPump(onText func([]byte)) error {
	defer c.Close()

	c.ws.SetReadLimit(c.cfg.ReadLimit)
	if c.cfg.PingInterval > 0 {
		wait := 2 * c.cfg.PingInterval
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		if kind == websocket.TextMessage && onText != nil {
			onText(data)
		}
	}
}
