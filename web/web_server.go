package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/askanium/gcleaner-backend/collect"
	"github.com/askanium/gcleaner-backend/db"
	"github.com/askanium/gcleaner-backend/inbox"
	"github.com/askanium/gcleaner-backend/notification"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/oauth2"
)

// Store is everything the HTTP layer persists through. *db.Store implements it.
type Store interface {
	inbox.Store
	inbox.MessageStore
	UserLookup
	GetOrCreateUser(ctx context.Context, email string) (db.User, bool, error)
	ListModifications(ctx context.Context, userID int64) ([]db.ModificationBatch, error)
}

// GatewayFactory builds a mailbox gateway acting with the given credential.
type GatewayFactory func(ctx context.Context, token *oauth2.Token) (collect.Gateway, error)

type Config struct {
	Store           Store
	OAuth           *oauth2.Config
	Issuer          *TokenIssuer
	Gateways        GatewayFactory
	Pending         inbox.PendingQueue
	Hub             *notification.Hub
	Archiver        inbox.Archiver
	Backoff         inbox.Backoff
	PersistMessages bool
	RequestsPerSec  float64
	RequestBurst    int
	FrontendUrl     string
}

type Server struct {
	cfg      Config
	limiter  *clientLimiter
	exchange func(ctx context.Context, code string) (*oauth2.Token, error)
}

func NewServer(cfg Config) *Server {
	if cfg.Pending == nil {
		cfg.Pending = inbox.NewMemoryQueue()
	}
	if cfg.Hub == nil {
		cfg.Hub = notification.Default()
	}
	if cfg.Gateways == nil {
		cfg.Gateways = func(ctx context.Context, token *oauth2.Token) (collect.Gateway, error) {
			return collect.NewGmailGateway(ctx, cfg.OAuth.TokenSource(ctx, token))
		}
	}
	s := &Server{cfg: cfg, limiter: newClientLimiter(cfg.RequestsPerSec, cfg.RequestBurst)}
	s.exchange = func(ctx context.Context, code string) (*oauth2.Token, error) {
		return cfg.OAuth.Exchange(ctx, code)
	}
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestIDMiddleware)
	s.oauth(r)
	s.api(r)
	s.sse(r)
	return r
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	slog.Info("Starting web server.", "addr", addr)
	cors := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.FrontendUrl},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Reason", "X-Request-Id"},
		AllowCredentials: true,
	})
	srv := &http.Server{
		Handler: cors.Handler(s.Router()),
		Addr:    addr,
		// fetch retries can back off for up to 15s before answering
		WriteTimeout: 2 * time.Minute,
		ReadTimeout:  10 * time.Second,
	}
	return srv.ListenAndServe()
}

// service builds the engine for the authenticated request.
func (s *Server) service(r *http.Request) (*inbox.Service, error) {
	principal := principalFrom(r.Context())
	gateway, err := s.cfg.Gateways(r.Context(), oauthTokenFrom(r.Context()))
	if err != nil {
		return nil, err
	}
	opts := []inbox.Option{
		inbox.WithPendingQueue(s.cfg.Pending),
		inbox.WithPublisher(s.cfg.Hub),
	}
	if s.cfg.Backoff.Initial > 0 {
		opts = append(opts, inbox.WithBackoff(s.cfg.Backoff))
	}
	if s.cfg.PersistMessages {
		opts = append(opts, inbox.WithMessageStore(s.cfg.Store))
	}
	if s.cfg.Archiver != nil {
		opts = append(opts, inbox.WithArchiver(s.cfg.Archiver))
	}
	return inbox.NewService(principal, gateway, s.cfg.Store, opts...), nil
}
