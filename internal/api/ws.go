package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"liminal/internal/observer"
)

func (s *Server) upgrader() websocket.Upgrader {
	origins := s.deps.Server.CORSOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll(origins) {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range origins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
}

// handleWebSocket registers the connection as an observer and echoes any
// inbound text until the peer disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	up := s.upgrader()
	ws, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}

	conn := observer.NewConn(ws, observer.ConnConfig{
		SendBuffer:   s.deps.WebSocket.SendBuffer,
		WriteTimeout: s.deps.WebSocket.WriteTimeout,
		PingInterval: s.deps.WebSocket.PingInterval,
		ReadLimit:    s.deps.WebSocket.ReadLimit,
	}, s.log)
	go conn.WritePump()

	id := s.deps.Hub.Connect(conn)
	err = conn.ReadPump(func(text []byte) {
		if err := s.deps.Hub.Echo(conn, text); err != nil {
			s.log.Debug("echo not queued", "session", id, "error", err)
		}
	})
	if err != nil {
		s.log.Debug("websocket read ended", "session", id, "error", err)
	}
	s.deps.Hub.Disconnect(id)
}
