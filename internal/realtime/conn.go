package realtime

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// session is the per-connection identity. It is replaced, never mutated:
// authentication sets the player, entering a room sets gameID and leaving
// clears it.
type session struct {
	PlayerID string
	Username string
	GameID   string
}

type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu   sync.Mutex
	sess session
}

func newConn(id string, ws *websocket.Conn) *conn {
	return &conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *conn) session() session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *conn) setSession(s session) {
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
}

// emit queues a frame for this connection only.
func (c *conn) emit(event string, data any) {
	select {
	case c.send <- encode(event, data):
	case <-c.done:
	default:
		// Drop if the client is not reading.
	}
}

func (c *conn) fail(code, message string) {
	c.emit(EventError, ErrorData{Code: code, Message: message})
}

// writeLoop drains the send channel until the connection is done.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.ws.CloseNow()
				return
			}
		}
	}
}
