package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askanium/gcleaner-backend/collect"
	"github.com/gorilla/mux"
	"google.golang.org/api/gmail/v1"
)

func (s *Server) oauth(r *mux.Router) {
	oauthRouter := r.PathPrefix("/api-token-auth").Subrouter()
	oauthRouter.Use(RequestSizeLimitMiddleware(OAuthCallbackMaxBodySize))
	oauthRouter.HandleFunc("/", s.ObtainTokenHandler).Methods("POST")
}

type ObtainTokenRequest struct {
	AuthorizationCode string `json:"authorization_code"`
}

type ObtainTokenResponse struct {
	Token    string `json:"token"`
	User     string `json:"user"`
	ShowTour bool   `json:"show_tour"`
}

// ObtainTokenHandler exchanges a Google authorization code for a session
// token that embeds the OAuth credential.
func (s *Server) ObtainTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req ObtainTokenRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if handleMaxBytesError(w, r, err, OAuthCallbackMaxBodySize) {
		return
	}
	if err != nil || req.AuthorizationCode == "" {
		writeError(w, "INVALID_REQUEST", "authorization_code is required", nil, http.StatusBadRequest)
		return
	}

	token, err := s.exchange(r.Context(), req.AuthorizationCode)
	if err != nil {
		slog.Warn("Failed to exchange authorization code", "request_id", requestID(r.Context()), "error", err)
		writeJSONResponse(w, map[string]string{"message": "Could not authenticate"}, http.StatusBadRequest)
		return
	}
	if token.AccessToken == "" {
		writeJSONResponse(w, map[string]string{"message": "Could not authenticate"}, http.StatusBadRequest)
		return
	}
	if !grantsModify(token) {
		writeJSONResponse(w, map[string]string{
			"message": "It seems you did not give GCleaner permission to modify emails. Please try again.",
		}, http.StatusBadRequest)
		return
	}

	gateway, err := s.cfg.Gateways(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	email, err := gateway.Profile(r.Context())
	if err != nil {
		slog.Error("Failed to get user identity", "error", err)
		writeServiceError(w, r, err)
		return
	}

	user, created, err := s.cfg.Store.GetOrCreateUser(r.Context(), email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	signed, err := s.cfg.Issuer.Issue(collect.Principal{ID: user.ID, Email: user.Email}, token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("User logged in", "user_id", user.ID, "created", created)
	writeJSONResponse(w, ObtainTokenResponse{Token: signed, User: user.Email, ShowTour: created}, http.StatusOK)
}

// grantsModify reports whether the granted scopes allow modifying messages.
// Tokens that do not report scopes are accepted.
func grantsModify(token interface{ Extra(string) interface{} }) bool {
	scope, _ := token.Extra("scope").(string)
	if scope == "" {
		return true
	}
	for _, s := range strings.Fields(scope) {
		if s == gmail.GmailModifyScope || s == gmail.MailGoogleComScope {
			return true
		}
	}
	return false
}
