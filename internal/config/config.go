// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package config

import (
	"time"
)

// StructuredConfig is the top-level configuration container for cloudmirror.
// It aggregates all sub-configurations and is populated by merging values
// from environment variables, command-line flags, and an optional JSON file.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
type StructuredConfig struct {
	// Auth holds token settings for the reference record-store server.
	Auth Auth `envPrefix:"AUTH_"`

	// Storage holds configuration for all persistence backends: the local
	// SQLite mirror store, the server-side Postgres record store, and the
	// asset blob backends.
	Storage Storage `envPrefix:"STORAGE_"`

	// Server holds network address and timeout settings for the reference
	// record-store HTTP server.
	Server Server `envPrefix:"SERVER_"`

	// Remote holds settings for the daemon's connection to the record store.
	Remote Remote `envPrefix:"REMOTE_"`

	// Workers holds configuration for background worker processes.
	Workers Workers `envPrefix:"WORKERS_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from environment variables and flags.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// Auth holds token-issuance settings for the record-store server.
type Auth struct {
	// TokenSignKey is the secret key used to sign and verify device session
	// tokens. Must be kept confidential.
	// Env: AUTH_TOKEN_SIGN_KEY
	TokenSignKey string `env:"TOKEN_SIGN_KEY"`

	// TokenIssuer is the "iss" claim embedded in every issued token.
	// Env: AUTH_TOKEN_ISSUER
	TokenIssuer string `env:"TOKEN_ISSUER"`

	// TokenDuration specifies how long a session token remains valid
	// (e.g. "12h", "30m").
	// Env: AUTH_TOKEN_DURATION
	TokenDuration time.Duration `env:"TOKEN_DURATION"`
}

// Storage groups the configuration for all storage backends.
type Storage struct {
	// DB holds the record-store server's Postgres connection settings.
	DB DB `envPrefix:"DB_"`

	// Local holds the daemon's SQLite mirror-store settings.
	Local LocalDB `envPrefix:"LOCAL_"`

	// Assets holds settings for binary payload storage.
	Assets Assets `envPrefix:"ASSETS_"`
}

// DB contains the server-side relational database connection settings.
type DB struct {
	// DSN is the Postgres connection string of the record store.
	// Env: STORAGE_DB_DSN
	DSN string `env:"DSN"`
}

// LocalDB contains the daemon's local object-store settings.
type LocalDB struct {
	// DSN is the SQLite database path of the local mirror store.
	// Env: STORAGE_LOCAL_DSN
	DSN string `env:"DSN"`
}

// Assets configures where binary payloads live.
type Assets struct {
	// Dir is the local directory holding cached binary payloads on the
	// daemon side and, for the server's "fs" backend, stored blobs.
	// Env: STORAGE_ASSETS_DIR
	Dir string `env:"DIR"`

	// Backend selects the server blob backend: "fs" (default) or "minio".
	// Env: STORAGE_ASSETS_BACKEND
	Backend string `env:"BACKEND"`

	// Endpoint, Bucket, AccessKey and SecretKey configure the MinIO backend.
	Endpoint  string `env:"ENDPOINT"`
	Bucket    string `env:"BUCKET"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
}

// Server holds network settings for the reference record-store server.
type Server struct {
	// HTTPAddress is the listen address in host:port form.
	// Env: SERVER_ADDRESS
	HTTPAddress string `env:"ADDRESS"`

	// RequestTimeout bounds request handling time.
	// Env: SERVER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// RateLimitPerMinute caps mutating requests per device per minute;
	// excess requests receive a rate-limited outcome with a retry delay.
	// Zero disables server-side rate limiting.
	// Env: SERVER_RATE_LIMIT_PER_MINUTE
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE"`
}

// Remote holds the daemon's record-store connection settings.
type Remote struct {
	// BaseURL is the record-store endpoint, e.g. "http://localhost:8080".
	// Env: REMOTE_BASE_URL
	BaseURL string `env:"BASE_URL"`

	// Device identifies this device to the record store.
	// Env: REMOTE_DEVICE
	Device string `env:"DEVICE"`

	// AccessKey authenticates the device when requesting a session token.
	// Env: REMOTE_ACCESS_KEY
	AccessKey string `env:"ACCESS_KEY"`

	// RequestTimeout is the default timeout for outbound requests.
	// Env: REMOTE_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// ZoneName is the remote zone all private records of this device are
	// parented under.
	// Env: REMOTE_ZONE
	ZoneName string `env:"ZONE"`

	// BatchLimit caps how many operations one submit batch may carry.
	// Env: REMOTE_BATCH_LIMIT
	BatchLimit int `env:"BATCH_LIMIT"`
}

// Workers contains background worker settings for the daemon.
type Workers struct {
	// SyncInterval defines how often the periodic history-processing worker
	// runs even without a local save trigger.
	// Env: WORKERS_SYNC_INTERVAL
	SyncInterval time.Duration `env:"SYNC_INTERVAL"`

	// SaveDebounce is the quiet period after a local save before
	// history processing starts, coalescing bursts of saves into one run.
	// Env: WORKERS_SAVE_DEBOUNCE
	SaveDebounce time.Duration `env:"SAVE_DEBOUNCE"`
}
