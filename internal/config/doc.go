// Package config loads and merges cloudmirror configuration from three
// sources in precedence order: environment variables, command-line flags,
// and an optional JSON file. The merged [StructuredConfig] is then projected
// into process-specific views: [MirrorConfig] for the sync daemon and
// [ServerConfig] for the reference record-store server.
package config
