// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package config

// validate checks that the final merged [StructuredConfig] satisfies all
// application invariants before it is used at startup.
//
// Daemon- and server-specific invariants are checked by the respective
// config views ([MirrorConfig.validate], [ServerConfig.validate]); the
// shared structured config only needs to be internally consistent.
func (cfg *StructuredConfig) validate() error {
	return nil
}

func (cfg *MirrorConfig) validate() error {
	if cfg.Storage.DSN == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Remote.BaseURL == "" || cfg.Remote.RequestTimeout == 0 {
		return ErrInvalidRemoteConfigs
	}

	if cfg.Workers.SyncInterval == 0 {
		return ErrInvalidWorkerConfigs
	}

	return nil
}

func (cfg *ServerConfig) validate() error {
	if cfg.HTTPAddress == "" || cfg.DB.DSN == "" {
		return ErrInvalidServerConfigs
	}

	return nil
}
