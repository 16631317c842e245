package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/askanium/gcleaner-backend/archive"
	"github.com/askanium/gcleaner-backend/collect"
	"github.com/askanium/gcleaner-backend/constants"
	"github.com/askanium/gcleaner-backend/db"
	"github.com/askanium/gcleaner-backend/inbox"
	"github.com/askanium/gcleaner-backend/web"
)

func init() {
	options := &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.999"))
			}
			return a
		},
		Level: slog.LevelDebug,
	}

	handler := slog.NewTextHandler(os.Stdout, options)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func main() {
	constants.Parse()
	if err := run(context.Background()); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	store, err := db.SetupDatabase()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer store.Close()

	cfg := web.Config{
		Store:           store,
		OAuth:           collect.OAuthConfig(constants.OauthClientId, constants.OauthClientSecret),
		Issuer:          web.NewTokenIssuer(constants.JwtSecret, constants.JwtTTL),
		Pending:         inbox.NewMemoryQueue(),
		Backoff:         inbox.NewBackoff(constants.BackoffUnit, constants.BackoffMaxUnits),
		PersistMessages: constants.PersistMessages,
		RequestsPerSec:  constants.RequestsPerSecond,
		RequestBurst:    constants.RequestBurst,
		FrontendUrl:     constants.FrontendUrl,
	}
	if constants.AuditBucket != "" {
		exporter, err := archive.NewExporter(ctx, constants.AuditBucket)
		if err != nil {
			return fmt.Errorf("failed to set up ledger archive in %s: %w", constants.AuditBucket, err)
		}
		defer exporter.Close()
		cfg.Archiver = exporter
	}

	return web.NewServer(cfg).ListenAndServe(constants.ListenAddr)
}
