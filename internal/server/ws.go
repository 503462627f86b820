package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/CanhCl92/AutoAccess/internal/engine"
	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/trace"
)

// Message is the envelope every WebSocket message carries.
type Message struct {
	Type string `json:"type"`
}

// RunMessage starts a stored macro by id or an inline macro.
type RunMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Macro   json.RawMessage `json:"macro,omitempty"`
	TraceID string          `json:"trace_id,omitempty"`
}

type StatusMessage struct {
	Type string `json:"type"`
	StatusResponse
}

type EventMessage struct {
	Type  string       `json:"type"`
	Event engine.Event `json:"event"`
}

type StartedMessage struct {
	Type  string `json:"type"`
	RunID string `json:"runId"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (s *Server) statusMessage() StatusMessage {
	return StatusMessage{Type: "status", StatusResponse: statusResponse(s.mgr.Status(), s.mgr.Ready())}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	_ = wsjson.Write(baseCtx, conn, s.statusMessage())

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "message is not valid JSON"})
			continue
		}

		switch base.Type {
		case "run":
			ctx := baseCtx
			if tc, ok := trace.FromMessage(msg); ok {
				ctx = trace.WithContext(ctx, tc)
			} else {
				ctx, _ = trace.EnsureContext(ctx)
			}
			s.handleRunMessage(ctx, conn, msg)
		case "stop":
			s.mgr.Stop()
			_ = wsjson.Write(baseCtx, conn, s.statusMessage())
		case "status":
			_ = wsjson.Write(baseCtx, conn, s.statusMessage())
		case "ping":
			_ = wsjson.Write(baseCtx, conn, Message{Type: "pong"})
		default:
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "unknown message type '" + base.Type + "'"})
		}
	}
}

func (s *Server) handleRunMessage(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) {
	var msg RunMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: "malformed run message"})
		return
	}

	body := []byte(raw)
	if len(msg.Macro) > 0 {
		body = msg.Macro
	}
	h, err := s.startRun(ctx, body)
	if err != nil {
		_ = wsjson.Write(ctx, conn, toErrorMessage(err))
		return
	}
	_ = wsjson.Write(ctx, conn, StartedMessage{Type: "started", RunID: h.RunID()})
}

func toErrorMessage(err error) ErrorMessage {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return ErrorMessage{Type: "error", Message: ae.Message, Code: ae.Code.String()}
	}
	return ErrorMessage{Type: "error", Message: err.Error()}
}

// broadcastEvents fans engine events out to every connection in order. A
// status message follows each event that ends a run.
func (s *Server) broadcastEvents() {
	events := s.mgr.History().Events()
	for {
		select {
		case <-s.done:
			return
		case ev := <-events:
			s.broadcast(EventMessage{Type: "event", Event: ev})
			switch ev.Type {
			case engine.EventRunFinished, engine.EventRunCancelled, engine.EventRunFailed:
				s.broadcast(s.statusMessage())
			}
		}
	}
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), BroadcastTimeout)
		if err := wsjson.Write(ctx, c, msg); err != nil {
			slog.Debug("websocket broadcast failed", "error", err)
		}
		cancel()
	}
}
