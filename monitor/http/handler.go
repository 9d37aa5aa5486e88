// Package http provides a read-only HTTP handler exposing the state of a bus.
package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mobilib/event"
)

// EventInfo describes one registered event name.
type EventInfo struct {
	Name      string `json:"name"`
	Listeners int    `json:"listeners"`
}

// Handler implements http.Handler for bus status and registrations.
type Handler struct {
	bus *event.Bus
	mux *http.ServeMux
}

// New creates a new HTTP handler for bus.
func New(bus *event.Bus) *Handler {
	h := &Handler{
		bus: bus,
		mux: http.NewServeMux(),
	}

	// GET /v1/bus/status - bus and transport status
	// GET /v1/bus/events - registered event names with live listener counts
	// GET /v1/bus/events/{name} - one event name
	h.mux.HandleFunc("/v1/bus/status", h.handleStatus)
	h.mux.HandleFunc("/v1/bus/events", h.handleEvents)
	h.mux.HandleFunc("/v1/bus/events/", h.handleEvent)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := h.bus.Status(r.Context())
	code := http.StatusOK
	if status.Code == event.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	h.writeResponse(w, code, status)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	registry := h.bus.Registry()
	names := registry.Names()
	infos := make([]EventInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, EventInfo{Name: name, Listeners: len(registry.Snapshot(name))})
	}
	h.writeResponse(w, http.StatusOK, infos)
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/bus/events/")
	if name == "" {
		h.handleEvents(w, r)
		return
	}
	n := len(h.bus.Registry().Snapshot(name))
	if n == 0 {
		h.writeError(w, http.StatusNotFound, "no listeners for event")
		return
	}
	h.writeResponse(w, http.StatusOK, EventInfo{Name: name, Listeners: n})
}

func (h *Handler) writeResponse(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
