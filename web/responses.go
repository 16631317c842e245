package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ErrorResponse is the body of every non-domain error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

func writeError(w http.ResponseWriter, code string, message string, details map[string]interface{}, status int) {
	body := ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}}
	writeJSONResponse(w, body, status)
}

func writeJSONResponse(w http.ResponseWriter, data interface{}, status int) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal response", "type", fmt.Sprintf("%T", data), "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// handleMaxBytesError answers 413 when err came from an exhausted
// MaxBytesReader and reports whether it did.
func handleMaxBytesError(w http.ResponseWriter, r *http.Request, err error, limit int64) bool {
	var maxBytesErr *http.MaxBytesError
	if !errors.As(err, &maxBytesErr) {
		return false
	}
	tooLarge(w, r, limit)
	return true
}

func tooLarge(w http.ResponseWriter, r *http.Request, limit int64) {
	slog.Warn("Request body over limit",
		"request_id", requestID(r.Context()),
		"path", r.URL.Path,
		"content_length", r.ContentLength,
		"limit", humanBytes(limit))
	writeError(w, "PAYLOAD_TOO_LARGE", "Request body exceeds maximum allowed size", map[string]interface{}{
		"max_size_bytes": limit,
		"max_size_human": humanBytes(limit),
	}, http.StatusRequestEntityTooLarge)
}

func humanBytes(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 || unit == "GB" {
			if unit == "B" {
				return fmt.Sprintf("%d B", n)
			}
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%d B", n)
}
