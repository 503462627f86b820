package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/orchestrator"
	"github.com/CanhCl92/AutoAccess/internal/trace"
)

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	mgr *orchestrator.Manager

	mu    sync.RWMutex
	conns map[*websocket.Conn]*rateLimiter

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a server and starts the event broadcaster.
func New(mgr *orchestrator.Manager) *Server {
	s := &Server{
		mgr:   mgr,
		conns: make(map[*websocket.Conn]*rateLimiter),
		done:  make(chan struct{}),
	}
	go s.broadcastEvents()
	return s
}

// Close stops the broadcaster.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /history", s.handleHistory)

	mux.HandleFunc("POST /macro", s.handleSaveMacro)
	mux.HandleFunc("GET /macro", s.handleListMacros)
	mux.HandleFunc("GET /macro/{id}", s.handleGetMacro)
	mux.HandleFunc("DELETE /macro/{id}", s.handleDeleteMacro)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /alias", s.handleSaveAlias)
	mux.HandleFunc("GET /alias", s.handleListAliases)

	mux.HandleFunc("POST /image", s.handleSaveImage)
	mux.HandleFunc("GET /image", s.handleListImages)
	mux.HandleFunc("GET /image/{id}", s.handleGetImage)
	mux.HandleFunc("DELETE /image", s.handleDeleteImage)

	mux.HandleFunc("POST /cmd", s.handleCommand)
	mux.HandleFunc("GET /capture", s.handleCapture)
	mux.HandleFunc("GET /capture/snap", s.handleSnap)
	mux.HandleFunc("GET /sizes", s.handleSizes)

	mux.HandleFunc("GET /map/params", s.handleMapParams)
	mux.HandleFunc("GET /map/convert", s.handleMapConvert)
	mux.HandleFunc("POST /map/calib3", s.handleCalibrate)
	mux.HandleFunc("POST /map/affine", s.handleUseAffine)

	mux.HandleFunc("GET /debug/last", s.handleDebugLast)
	mux.HandleFunc("GET /debug/overlay", s.handleDebugOverlay)
	mux.HandleFunc("GET /debug/crop", s.handleDebugCrop)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

type errorBody struct {
	OK       bool              `json:"ok"`
	Error    string            `json:"error"`
	Code     string            `json:"code"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperrors.AppError
	if !errors.As(err, &ae) {
		ae = apperrors.Wrap(err, apperrors.Internal, "internal error")
	}
	status := ae.HTTPStatus()
	log := trace.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		log.Info("request rejected", "path", r.URL.Path, "status", status, "error", ae.Message)
	}
	writeJSON(w, status, errorBody{Error: ae.Message, Code: ae.Code.String(), Metadata: ae.Metadata})
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidInput, "read request body")
	}
	if int64(len(data)) > limit {
		return nil, apperrors.Newf(apperrors.InvalidInput, "request body exceeds %d bytes", limit)
	}
	return data, nil
}
