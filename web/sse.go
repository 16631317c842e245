package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

func (s *Server) sse(r *mux.Router) {
	sse := r.PathPrefix("/sse").Subrouter()
	sse.Use(AuthMiddleware(s.cfg.Issuer, s.cfg.Store))
	sse.HandleFunc("/events", s.sseHandler)
}

// sseHandler streams sync progress of the authenticated user until the
// client leaves. A keepalive comment is sent when nothing happens.
func (s *Server) sseHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	principal := principalFrom(r.Context())
	clientKey := strconv.FormatInt(principal.ID, 10)
	updates, release := s.cfg.Hub.Subscribe(clientKey)
	defer release()

	rc := http.NewResponseController(w)
	w.WriteHeader(http.StatusOK)
	rc.Flush()
	clientGone := r.Context().Done()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	slog.Info("Client connected to progress stream", "user_id", principal.ID)
	start := time.Now()
	for {
		select {
		case <-clientGone:
			slog.Info("Client disconnected from progress stream", "user_id", principal.ID, "duration", time.Since(start))
			return
		case progress, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(progress)
			if err != nil {
				slog.Error("Failed to encode progress", "error", err)
				continue
			}
			id := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
			if _, err := fmt.Fprintf(w, "event:progress\nretry: 10000\nid:%s\ndata:%s\n\n", id, data); err != nil {
				slog.Warn("Unable to write progress event", "user_id", principal.ID, "error", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				slog.Warn("Unable to write keepalive", "user_id", principal.ID, "error", err)
				return
			}
		}
		rc.SetWriteDeadline(time.Time{})
		rc.Flush()
	}
}
