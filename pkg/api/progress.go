package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"mediapull/pkg/logger"
)

var socketLogger = logger.Get("WebSocket")

const socketWriteWait = 10 * time.Second

// progressStreamHandler relays a download's progress as server-sent events
// until the terminal event or the client leaves.
func (s *Server) progressStreamHandler(c *gin.Context) {
	events, cancel := s.hub.Subscribe(c.Param("id"))
	defer cancel()

	ctx := c.Request.Context()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	// Headers go out only once the subscription exists, so a client that has
	// them cannot miss an event published afterwards.
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", ev)
			return !ev.Done
		case <-ctx.Done():
			return false
		}
	})
}

// progressSocketHandler is the WebSocket equivalent of progressStreamHandler:
// every event is sent as one JSON text message.
func (s *Server) progressSocketHandler(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before the handshake completes, for the same reason as above.
	events, cancel := s.hub.Subscribe(id)
	defer cancel()

	sock, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade progress request for %s to a websocket: %v\n", id, err)
		return
	}
	defer sock.Close()

	// The read loop only exists to notice the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				return
			}
		}
	}()

	socketLogger.Emit(logger.NEW, "Client subscribed to progress of %s\n", id)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				closeSocket(sock, websocket.CloseNormalClosure, "")
				return
			}

			_ = sock.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := sock.WriteJSON(ev); err != nil {
				socketLogger.Emit(logger.WARNING, "Failed to push progress of %s: %v\n", id, err)
				return
			}
			if ev.Done {
				closeSocket(sock, websocket.CloseNormalClosure, "download finished")
				return
			}
		case <-gone:
			socketLogger.Emit(logger.REMOVE, "Client left progress of %s\n", id)
			return
		}
	}
}

func closeSocket(sock *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(socketWriteWait))
}
