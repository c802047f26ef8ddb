package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kode4food/flume/internal/engine"
	"github.com/kode4food/flume/pkg/api"
	"github.com/kode4food/flume/pkg/log"
)

// Client represents a WebSocket client connection receiving execution
// lifecycle events. An optional execution_id query parameter restricts
// the stream to a single execution
type Client struct {
	server    *Server
	conn      *websocket.Conn
	consumer  engine.Consumer
	filter    api.ExecutionID
	closeOnce sync.Once
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	wsBufferSize   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		return
	}

	client := &Client{
		server:   s,
		conn:     conn,
		consumer: s.hub.NewConsumer(),
		filter:   api.ExecutionID(c.Query("execution_id")),
	}
	s.registerWebSocket(client)

	go client.run()
}

// Close terminates the connection and releases the event consumer
func (cl *Client) Close() {
	cl.closeOnce.Do(func() {
		cl.consumer.Close()
		_ = cl.conn.Close()
		cl.server.unregisterWebSocket(cl)
	})
}

func (cl *Client) run() {
	defer cl.Close()

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	closed := make(chan struct{})
	go cl.readUntilClosed(closed)

	for {
		select {
		case <-closed:
			return

		case ev, ok := <-cl.consumer.Receive():
			if !ok {
				_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !cl.sendEventIfMatched(ev) {
				return
			}

		case <-ticker.C:
			if !cl.sendPing() {
				return
			}
		}
	}
}

// readUntilClosed drains incoming frames so pongs are processed, closing
// the channel when the peer goes away
func (cl *Client) readUntilClosed(closed chan struct{}) {
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			close(closed)
			return
		}
	}
}

func (cl *Client) sendEventIfMatched(ev *engine.Event) bool {
	if cl.filter != "" && ev.Record.ID != cl.filter {
		return true
	}

	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := cl.conn.WriteJSON(ev); err != nil {
		slog.Error("WebSocket write failed",
			log.Error(err))
		return false
	}
	return true
}

func (cl *Client) sendPing() bool {
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := cl.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}
