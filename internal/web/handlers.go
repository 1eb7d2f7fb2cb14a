package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cjeanneret/StepGo/internal/debug"
	"github.com/cjeanneret/StepGo/internal/hw/stepper"
	"github.com/cjeanneret/StepGo/internal/logic/motion"
)

const (
	maxBodyBytes = 1 << 20
	maxDegrees   = 3600
)

// Mover executes rotation requests. *motion.Controller implements it.
type Mover interface {
	Execute(req motion.Request) (motion.Move, error)
	Status() motion.Status
}

// PositionRequest is the body of POST /position.
type PositionRequest struct {
	Direction string  `json:"direction"`
	Degrees   float64 `json:"degrees"`
}

// RateLimit configures throttling of POST /position.
type RateLimit struct {
	RequestsPerMin float64
	Burst          int
}

// ValidatePosition checks a request and returns the parsed direction.
func ValidatePosition(p PositionRequest) (stepper.Direction, error) {
	dir, err := stepper.ParseDirection(p.Direction)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p.Degrees) || math.IsInf(p.Degrees, 0) || p.Degrees < 0 || p.Degrees > maxDegrees {
		return 0, fmt.Errorf("degrees must be between 0 and %d, got %g", maxDegrees, p.Degrees)
	}
	return dir, nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Mover       Mover
	limiter     *rate.Limiter
	runningMu   sync.Mutex
	running     bool
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If mover is nil, POST /position and GET /config return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, mover Mover, limits RateLimit, staticFS fs.FS) *Handlers {
	perSec := rate.Limit(limits.RequestsPerMin / 60.0)
	if limits.RequestsPerMin <= 0 {
		perSec = rate.Inf
	}
	burst := limits.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Handlers{
		Broadcaster: broadcaster,
		Mover:       mover,
		limiter:     rate.NewLimiter(perSec, burst),
		staticFS:    staticFS,
	}
}

// HandleConfig returns the stepper status as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if h.Mover == nil {
		http.Error(w, "stepper not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Mover.Status()); err != nil {
		debug.Error(fmt.Errorf("encode /config response: %w", err))
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandlePosition handles POST /position to start a rotation.
func (h *Handlers) HandlePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PositionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	dir, err := ValidatePosition(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Mover == nil {
		http.Error(w, "stepper not configured", http.StatusServiceUnavailable)
		return
	}

	if !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "move already in progress", http.StatusConflict)
		return
	}
	h.running = true
	h.runningMu.Unlock()

	id := uuid.NewString()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		m, err := h.Mover.Execute(motion.Request{ID: id, Direction: dir, Degrees: req.Degrees})
		if err != nil {
			level := "error"
			if errors.Is(err, motion.ErrInvalidDegrees) {
				level = "warn"
			}
			h.Broadcaster.Publish(StatusEvent{Level: level, ID: id, Msg: "Move failed: " + err.Error()})
			debug.Error(err)
			return
		}
		h.Broadcaster.Publish(StatusEvent{
			Level: "info",
			ID:    id,
			Msg: fmt.Sprintf("Move complete: %.2f° %s, %d pulses in %v",
				m.Degrees, m.Dir, m.Pulses, m.Duration.Round(time.Millisecond)),
		})
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "started", "id": id}); err != nil {
		debug.Error(fmt.Errorf("encode /position response: %w", err))
	}
}

// Busy reports whether a move started over HTTP is still running.
func (h *Handlers) Busy() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
