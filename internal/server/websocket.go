package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/crucible/internal/sandbox"
	"github.com/michaelbrown/crucible/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // deployments front this with their own auth layer
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type       string `json:"type"`
	Source     string `json:"source"`
	Privileged bool   `json:"privileged"`
	BudgetMS   int64  `json:"budget_ms"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type       string           `json:"type"`
	ID         string           `json:"id,omitempty"`
	Content    string           `json:"content,omitempty"`
	Error      *sandbox.Failure `json:"error,omitempty"`
	DurationUS int64            `json:"duration_us,omitempty"`
	ImageURL   string           `json:"image_url,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ip := clientIP(r)

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.logger.Warn("websocket read", slog.String("error", err.Error()))
			return
		}

		if msg.Type != "run" || msg.Source == "" {
			s.wsWrite(conn, wsOutgoing{Type: "error", Content: "invalid message"})
			continue
		}

		if !s.limiter.Allow(ip) {
			s.wsWrite(conn, wsOutgoing{Type: "error", Content: "too many requests"})
			continue
		}
		s.executeWebSocketRun(conn, msg)
		s.limiter.Done()
	}
}

func (s *Server) executeWebSocketRun(conn *websocket.Conn, msg wsIncoming) {
	budget := time.Duration(msg.BudgetMS) * time.Millisecond
	if budget <= 0 && msg.Privileged {
		budget = s.policy.PrivilegedBudget
	}

	id := uuid.New().String()
	s.wsWrite(conn, wsOutgoing{Type: "accepted", ID: id})

	ctx, cancel := context.WithTimeout(context.Background(), s.policy.MaxBudget+5*time.Second)
	defer cancel()

	res, err := s.pool.Run(ctx, id, sandbox.Request{Source: msg.Source, Budget: budget})
	if err != nil {
		s.wsWrite(conn, wsOutgoing{Type: "error", ID: id, Content: err.Error()})
		return
	}

	out := wsOutgoing{
		Type:       "done",
		ID:         id,
		Content:    res.Text,
		Error:      res.Err,
		DurationUS: res.Duration.Microseconds(),
	}

	run := storage.FromResult(id, msg.Source, res)
	if len(res.Image) > 0 {
		if _, err := s.artifacts.Save(id, res.Image); err != nil {
			s.logger.Warn("saving artifact", slog.String("run", id), slog.String("error", err.Error()))
			run.ImageSize = 0
		} else {
			out.ImageURL = "/api/runs/" + id + "/image"
		}
	}
	if err := s.store.CreateRun(context.Background(), run); err != nil {
		s.logger.Warn("recording run", slog.String("run", id), slog.String("error", err.Error()))
	}

	s.wsWrite(conn, out)
}

func (s *Server) wsWrite(conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("websocket marshal", slog.String("error", err.Error()))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("websocket write", slog.String("error", err.Error()))
	}
}
