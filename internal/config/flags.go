package config

import (
	"flag"
	"time"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-a server listen address in format [host]:[port]
//	-d record-store database DSN (Postgres)
//	-local-db local mirror store path (SQLite)
//	-assets-dir binary payload directory
//	-remote-url record-store base URL
//	-remote-device device name for session tokens
//	-remote-zone remote zone name
//	-c/-config json file path with configs
//	-token-sign-key token signing key
//	-token-issuer token issuer name
//	-token-duration token duration (e.g., "12h", "30m")
//	-sync-interval periodic history-processing interval
//	-save-debounce quiet period after a local save before processing
func ParseFlags() *StructuredConfig {
	var serverAddress string
	var databaseDSN string
	var localDSN string
	var assetsDir string
	var remoteURL string
	var remoteDevice string
	var remoteZone string
	var jsonConfigPath string
	var tokenSignKey string
	var tokenIssuer string
	var tokenDuration time.Duration
	var requestTimeout time.Duration
	var syncInterval time.Duration
	var saveDebounce time.Duration

	flag.StringVar(&serverAddress, "a", "", "Net address host:port")
	flag.StringVar(&databaseDSN, "d", "", "Record-store database DSN")
	flag.StringVar(&localDSN, "local-db", "", "Local mirror store path")
	flag.StringVar(&assetsDir, "assets-dir", "", "Binary payload directory")
	flag.StringVar(&remoteURL, "remote-url", "", "Record-store base URL")
	flag.StringVar(&remoteDevice, "remote-device", "", "Device name")
	flag.StringVar(&remoteZone, "remote-zone", "", "Remote zone name")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	flag.StringVar(&tokenSignKey, "token-sign-key", "", "Token signing key")
	flag.StringVar(&tokenIssuer, "token-issuer", "", "Token issuer")
	flag.DurationVar(&tokenDuration, "token-duration", 0, "Token duration (e.g., 12h, 30m)")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")
	flag.DurationVar(&syncInterval, "sync-interval", 0, "Periodic sync interval")
	flag.DurationVar(&saveDebounce, "save-debounce", 0, "Save debounce period")

	flag.Parse()

	return &StructuredConfig{
		Auth: Auth{
			TokenSignKey:  tokenSignKey,
			TokenIssuer:   tokenIssuer,
			TokenDuration: tokenDuration,
		},
		Storage: Storage{
			DB:     DB{DSN: databaseDSN},
			Local:  LocalDB{DSN: localDSN},
			Assets: Assets{Dir: assetsDir},
		},
		Server: Server{
			HTTPAddress:    serverAddress,
			RequestTimeout: requestTimeout,
		},
		Remote: Remote{
			BaseURL:        remoteURL,
			Device:         remoteDevice,
			ZoneName:       remoteZone,
			RequestTimeout: requestTimeout,
		},
		Workers: Workers{
			SyncInterval: syncInterval,
			SaveDebounce: saveDebounce,
		},
		JSONFilePath: jsonConfigPath,
	}
}
