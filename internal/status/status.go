// Package status implements the debug HTTP surface (A4): GET /healthz
// for liveness and GET /status for a JSON snapshot of per-rendition
// health. Grounded in the teacher's internal/api.New router shape
// (http.ServeMux with method-qualified patterns), repurposed from
// serving HLS playlists to serving canary health.
package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// RenditionHealth is one rendition's latest observed health, published by
// its Monitor after every tick.
type RenditionHealth struct {
	Endpoint     string    `json:"endpoint"`
	Rendition    string    `json:"rendition"`
	Stale        bool      `json:"stale"`
	LastAnchorAt time.Time `json:"last_anchor_at"`
	LastError    string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Registry is the shared, mutex-guarded table of per-rendition health
// snapshots the status server reads from.
type Registry struct {
	mu     sync.RWMutex
	health map[string]RenditionHealth
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{health: make(map[string]RenditionHealth)}
}

// Update replaces a rendition's health snapshot.
func (r *Registry) Update(h RenditionHealth) {
	h.UpdatedAt = time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[h.Rendition] = h
}

// Snapshot returns a copy of every rendition's current health.
func (r *Registry) Snapshot() []RenditionHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RenditionHealth, 0, len(r.health))
	for _, h := range r.health {
		out = append(out, h)
	}
	return out
}

// New builds the debug HTTP handler backed by reg.
func New(reg *Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		handleStatus(w, r, reg)
	})
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleStatus(w http.ResponseWriter, r *http.Request, reg *Registry) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reg.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
