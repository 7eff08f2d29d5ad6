package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Chain gateway deadlines. Every relay round trip is bounded so a hung
// bundler can never wedge the message loop; a deadline hit is reported as an
// ordinary failed collection.
const (
	ChainReadTimeout   = 10 * time.Second
	ChainSubmitTimeout = 90 * time.Second
	ChainPollInterval  = 2 * time.Second
)

// How long a create receipt stays replayable for retries with the same
// signature.
const CreateReceiptTTL = 10 * time.Minute

// Background job intervals
const RevalidateJobInterval = 15 * time.Minute

// Default rate limiting
const DefaultRateLimitPerMin = 60
