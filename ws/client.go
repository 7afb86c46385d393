package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wanderhub/wanderhub-chat/globals"
	"github.com/wanderhub/wanderhub-chat/types"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// Client is a middleman between the websocket connection and the hub. It starts
// unauthenticated; the router flips authenticated after a successful auth event.
type Client struct {
	hub    *Hub
	router *Router

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan []byte

	user          *types.User
	authenticated bool

	doneChan chan struct{}
}

func NewClient(hub *Hub, router *Router, conn *websocket.Conn) *Client {
	return &Client{
		hub:      hub,
		router:   router,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		doneChan: make(chan struct{}),
	}
}

func (c *Client) User() *types.User { return c.user }

// Done is closed when the read loop exits, i.e. the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.doneChan }

// Enqueue marshals the envelope and queues it for the write loop.
func (c *Client) Enqueue(env *types.Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		globals.AppLogger.Error("could not marshal envelope", "type", env.Type, "error", err)
		return
	}
	c.enqueueRaw(raw)
}

// enqueueRaw never blocks; a client whose send buffer is full loses the frame and
// is expected to catch up via sync:history.
func (c *Client) enqueueRaw(raw []byte) bool {
	select {
	case c.Send <- raw:
		return true
	case <-c.doneChan:
		return false
	default:
		globals.AppLogger.Warn("send buffer full, dropping frame")
		return false
	}
}

// ReadLoop pumps envelopes from the websocket connection into the router.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Info("websocket closed unexpectedly", "error", err)
			}
			return
		}
		env := types.Envelope{}
		if err := json.Unmarshal(raw, &env); err != nil {
			// a malformed frame fails that frame only, the connection stays open
			c.Enqueue(&types.Envelope{
				Type:      types.EventTypeSystemError,
				Payload:   types.ErrorPayload{Message: "malformed event envelope"},
				Timestamp: time.Now().UnixMilli(),
			})
			continue
		}
		c.router.Dispatch(c, &env)
	}
}

// WriteLoop pumps frames from the send channel to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The application
// ensures that there is at most one writer to a connection by executing all
// writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case raw := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(raw)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
