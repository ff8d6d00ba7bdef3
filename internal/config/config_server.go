package config

import (
	"fmt"
	"time"
)

// ServerConfig is the record-store server configuration view assembled from
// [StructuredConfig].
type ServerConfig struct {
	// HTTPAddress is the listen address in host:port form.
	HTTPAddress string
	// RequestTimeout bounds request handling time.
	RequestTimeout time.Duration
	// RateLimitPerMinute caps mutating requests per device per minute.
	RateLimitPerMinute int
	// DB contains the Postgres connection settings.
	DB DB
	// Assets contains blob backend settings.
	Assets Assets
	// Auth contains session-token settings.
	Auth Auth
}

// GetServerConfig builds and validates the record-store server config view
// from the merged structured configuration, applying server defaults for
// values no source provided.
func GetServerConfig() (*ServerConfig, error) {
	cfg, err := GetStructuredConfig()
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	serverCfg := &ServerConfig{
		HTTPAddress:        cfg.Server.HTTPAddress,
		RequestTimeout:     cfg.Server.RequestTimeout,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		DB:                 cfg.Storage.DB,
		Assets:             cfg.Storage.Assets,
		Auth:               cfg.Auth,
	}

	if serverCfg.HTTPAddress == "" {
		serverCfg.HTTPAddress = "localhost:8080"
	}
	if serverCfg.RequestTimeout == 0 {
		serverCfg.RequestTimeout = 30 * time.Second
	}
	if serverCfg.Auth.TokenDuration == 0 {
		serverCfg.Auth.TokenDuration = 12 * time.Hour
	}
	if serverCfg.Assets.Backend == "" {
		serverCfg.Assets.Backend = "fs"
	}

	return serverCfg, serverCfg.validate()
}
