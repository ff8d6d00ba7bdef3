package config

import (
	"fmt"
	"time"
)

// MirrorStorage contains local store settings for the mirror daemon.
type MirrorStorage struct {
	// DSN is the SQLite database path of the local mirror store.
	DSN string
	// AssetsDir is where cached binary payloads live.
	AssetsDir string
}

// MirrorConfig is the daemon-specific configuration view assembled from
// [StructuredConfig].
type MirrorConfig struct {
	// Storage contains local persistence settings.
	Storage MirrorStorage
	// Remote contains the record-store connection settings.
	Remote Remote
	// Workers contains background job settings.
	Workers Workers
}

// GetMirrorConfig builds and validates the daemon-specific config view from
// the merged structured configuration, applying daemon defaults for values
// no source provided.
func GetMirrorConfig() (*MirrorConfig, error) {
	cfg, err := GetStructuredConfig()
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	mirrorCfg := &MirrorConfig{
		Storage: MirrorStorage{
			DSN:       cfg.Storage.Local.DSN,
			AssetsDir: cfg.Storage.Assets.Dir,
		},
		Remote:  cfg.Remote,
		Workers: cfg.Workers,
	}

	if mirrorCfg.Remote.RequestTimeout == 0 {
		mirrorCfg.Remote.RequestTimeout = 15 * time.Second
	}
	if mirrorCfg.Remote.BatchLimit == 0 {
		mirrorCfg.Remote.BatchLimit = 400
	}
	if mirrorCfg.Remote.ZoneName == "" {
		mirrorCfg.Remote.ZoneName = "cloudmirror"
	}
	if mirrorCfg.Workers.SyncInterval == 0 {
		mirrorCfg.Workers.SyncInterval = 5 * time.Minute
	}
	if mirrorCfg.Workers.SaveDebounce == 0 {
		mirrorCfg.Workers.SaveDebounce = 2 * time.Second
	}

	return mirrorCfg, mirrorCfg.validate()
}
