package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cloud-connect/runtime"
	"cloud-connect/sink"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Connection wraps a websocket and drains its sink into the socket via a
// dedicated write loop. A connection is safe for concurrent use: the
// dispatcher feeds the sink while the read loop runs the protocol.
type Connection struct {
	ID   runtime.ConnID
	Sink *sink.ChannelSink

	ws    *websocket.Conn
	log   *slog.Logger
	once  sync.Once
	close chan struct{}
}

func NewConnection(ws *websocket.Conn, log *slog.Logger, bufferSize int) *Connection {
	return &Connection{
		ID:    runtime.ConnID(uuid.NewString()),
		Sink:  sink.NewChannelSink(log, bufferSize),
		ws:    ws,
		log:   log,
		close: make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once per
// connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Close terminates the connection and stops the write loop.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case e := <-c.Sink.Events:
			payload, err := Encode(e)
			if err != nil {
				c.log.Error("event encode failed", "event", e.Name(), "error", err)
				continue
			}
			if err := c.writeMessage(payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
