package constants

import (
	"flag"
	"time"
)

var (
	OauthClientId     string
	OauthClientSecret string
	FrontendUrl       string
	ListenAddr        string

	DbHost     string
	DbPort     int
	DbUser     string
	DbPassword string
	DbName     string

	JwtSecret string
	JwtTTL    time.Duration

	// BackoffUnit is the first retry delay; the delay doubles on every retry
	// and retries stop once it reaches BackoffMaxUnits units.
	BackoffUnit     time.Duration
	BackoffMaxUnits int

	PersistMessages   bool
	AuditBucket       string
	RequestsPerSecond float64
	RequestBurst      int
)

func init() {
	flag.StringVar(&OauthClientId, "oauth_client_id", "dummy", "oauth client id")
	flag.StringVar(&OauthClientSecret, "oauth_client_secret", "dummy", "oauth client secret")
	flag.StringVar(&FrontendUrl, "frontend_url", "http://localhost:4200", "URLs allowlisted by UI for CORS.")
	flag.StringVar(&ListenAddr, "listen_addr", ":8090", "address the http server listens on")

	flag.StringVar(&DbHost, "db_host", "gcleaner_db", "postgres host")
	flag.IntVar(&DbPort, "db_port", 5432, "postgres port")
	flag.StringVar(&DbUser, "db_user", "gcleaner", "postgres user")
	flag.StringVar(&DbPassword, "db_password", "gcleaner", "postgres password")
	flag.StringVar(&DbName, "db_name", "gcleaner", "postgres database name")

	flag.StringVar(&JwtSecret, "jwt_secret", "dummy", "secret used to sign session tokens")
	flag.DurationVar(&JwtTTL, "jwt_ttl", 7*24*time.Hour, "lifetime of issued session tokens")

	flag.DurationVar(&BackoffUnit, "backoff_unit", time.Second, "initial delay before retrying rate limited fetches")
	flag.IntVar(&BackoffMaxUnits, "backoff_max_units", 16, "retry stops once the delay reaches this many units")

	flag.BoolVar(&PersistMessages, "persist_messages", false, "store normalized message metadata locally")
	flag.StringVar(&AuditBucket, "audit_bucket", "", "GCS bucket receiving modification ledger records. Empty disables export.")
	flag.Float64Var(&RequestsPerSecond, "requests_per_second", 5, "per user api request rate")
	flag.IntVar(&RequestBurst, "request_burst", 10, "per user api request burst")
}

// Parse reads command line flags. Called from main so test binaries keep
// their own flag handling.
func Parse() {
	flag.Parse()
}
