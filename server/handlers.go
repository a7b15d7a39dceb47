package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/chronicle-bot/history"
	"github.com/onnwee/chronicle-bot/telemetry"
)

type handlers struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealthz responds to liveness probe requests by checking database connectivity.
func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.Ping(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports ready only when the store answers and chat is connected.
func (h *handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.deps.Store.Ping(r.Context()) }},
		{"chat", func() error {
			if h.deps.Chat == nil || !h.deps.Chat.Connected() {
				return errors.New("chat transport not connected")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Bot.Status())
}

// handleResetChannel clears a channel's context exactly like the chat reset
// command. Memory is cleared even when the durable delete fails (502).
func (h *handlers) handleResetChannel(w http.ResponseWriter, r *http.Request) {
	channel := history.NormalizeChannel(r.PathValue("channel"))
	if channel == "" {
		http.Error(w, "channel required", http.StatusBadRequest)
		return
	}
	log := telemetry.LoggerWithCorr(r.Context())
	if err := h.deps.Bot.ResetChannel(r.Context(), channel); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status":  "memory_cleared",
			"channel": channel,
			"error":   err.Error(),
		})
		return
	}
	log.Info("channel context reset via admin api", slog.String("channel", channel), slog.String("component", "http"))
	w.WriteHeader(http.StatusNoContent)
}
