package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/askanium/gcleaner-backend/archive"
	"github.com/askanium/gcleaner-backend/collect"
	"github.com/askanium/gcleaner-backend/inbox"
	"github.com/gorilla/mux"
)

func (s *Server) api(r *mux.Router) {
	r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, map[string]bool{"ok": true}, http.StatusOK)
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(AuthMiddleware(s.cfg.Issuer, s.cfg.Store))
	api.Use(s.limiter.RateLimitMiddleware)
	api.Use(RequestSizeLimitMiddleware(ModifyRequestMaxBodySize))
	api.HandleFunc("/messages/", s.ListMessagesHandler).Methods("GET")
	api.HandleFunc("/messages/stats/", s.MessageStatsHandler).Methods("GET")
	api.HandleFunc("/messages/modify/", s.ModifyMessagesHandler).Methods("PUT")
	api.HandleFunc("/messages/lock/", s.LockMessageHandler).Methods("POST")
	api.HandleFunc("/messages/modifications/", s.ListModificationsHandler).Methods("GET")
	api.HandleFunc("/messages/modifications/archive/", s.ListArchiveHandler).Methods("GET")
	api.HandleFunc("/labels/", s.ListLabelsHandler).Methods("GET")
	api.HandleFunc("/labels/refresh/", s.RefreshLabelsHandler).Methods("POST")
}

func (s *Server) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	messages, err := svc.RetrieveUnreadEmails(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, messages, http.StatusOK)
}

type StatsResponse struct {
	Unread int  `json:"unread"`
	Local  *int `json:"local,omitempty"`
}

func (s *Server) MessageStatsHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	count, err := svc.RetrieveNrOfUnreadEmails(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, StatsResponse{Unread: count.Gmail, Local: count.Local}, http.StatusOK)
}

func (s *Server) ModifyMessagesHandler(w http.ResponseWriter, r *http.Request) {
	var req collect.ModifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, "INVALID_REQUEST", "ids must not be empty", nil, http.StatusBadRequest)
		return
	}
	svc, err := s.service(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := svc.ModifyEmails(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, req.IDs, http.StatusOK)
}

func (s *Server) LockMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req inbox.LockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GoogleID == "" {
		writeError(w, "INVALID_REQUEST", "google_id is required", nil, http.StatusBadRequest)
		return
	}
	svc, err := s.service(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := svc.LockEmail(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, req, http.StatusOK)
}

func (s *Server) ListModificationsHandler(w http.ResponseWriter, r *http.Request) {
	batches, err := s.cfg.Store.ListModifications(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, batches, http.StatusOK)
}

type archiveLister interface {
	List(ctx context.Context, userID int64) ([]archive.ObjectInfo, error)
}

// ListArchiveHandler lists the ledger objects exported for the user.
func (s *Server) ListArchiveHandler(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.cfg.Archiver.(archiveLister)
	if !ok {
		writeError(w, "ARCHIVE_DISABLED", "Ledger archive is not configured", nil, http.StatusNotFound)
		return
	}
	objects, err := lister.List(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, objects, http.StatusOK)
}

func (s *Server) ListLabelsHandler(w http.ResponseWriter, r *http.Request) {
	labels, err := s.cfg.Store.ListLabels(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, labels, http.StatusOK)
}

func (s *Server) RefreshLabelsHandler(w http.ResponseWriter, r *http.Request) {
	svc, err := s.service(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := svc.UpdateLabels(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.ListLabelsHandler(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if handleMaxBytesError(w, r, err, ModifyRequestMaxBodySize) {
		return false
	}
	if err != nil {
		writeError(w, "INVALID_REQUEST", "Invalid request body", nil, http.StatusBadRequest)
		return false
	}
	return true
}
