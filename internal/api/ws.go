package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is meant to sit behind a reverse proxy or be called by
	// first-party clients, so cross-origin upgrades are accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 90 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsQuestion is one inbound websocket frame.
type wsQuestion struct {
	Message string `json:"message"`
}

// wsReply is one outbound websocket frame.
type wsReply struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// handleWebsocket upgrades the connection and answers questions over it.
// Each connection gets its own session, so a websocket conversation has
// multi-turn context without the client managing session IDs.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	logger := s.logger.With("session", sessionID, "remote", conn.RemoteAddr())
	logger.Info("websocket connected")

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(wsWriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()

	for {
		var q wsQuestion
		if err := conn.ReadJSON(&q); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			} else {
				logger.Info("websocket disconnected")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		if q.Message == "" {
			s.writeWS(conn, wsReply{SessionID: sessionID, Error: "message is required"}, logger)
			continue
		}

		reply := s.engine.Answer(r.Context(), q.Message, sessionID)
		if !s.writeWS(conn, wsReply{Reply: reply, SessionID: sessionID}, logger) {
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v wsReply, logger *slog.Logger) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		logger.Warn("websocket write failed", "error", err)
		return false
	}
	return true
}
