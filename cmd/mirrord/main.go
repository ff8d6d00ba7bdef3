package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cloudmirror/cloudmirror/internal/config"
	"github.com/cloudmirror/cloudmirror/internal/engine"
	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/remote"
	"github.com/cloudmirror/cloudmirror/internal/schema"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/internal/workers"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("mirrord")
	cfg, err := config.GetMirrorConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewConnectSQLite(ctx, cfg.Storage.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error opening local store")
	}

	meta := defaultMetadata()
	st := store.NewStore(db, meta, log)
	defer st.Close()

	rs := remote.NewHTTPRecordStore(remote.HTTPClientConfig{
		BaseURL:   cfg.Remote.BaseURL,
		Device:    cfg.Remote.Device,
		AccessKey: cfg.Remote.AccessKey,
		Timeout:   cfg.Remote.RequestTimeout,
	}, log)

	eng := engine.New(st, rs, meta, log, engine.Options{
		Remote:       cfg.Remote,
		AssetsDir:    cfg.Storage.AssetsDir,
		SaveDebounce: cfg.Workers.SaveDebounce,
		DeletesFirst: true,
	})
	if err = eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("error starting sync engine")
	}
	defer eng.Stop()

	workers.NewWorkers(
		workers.NewSyncWorker(ctx, eng, cfg.Workers.SyncInterval, log),
	).Run()

	log.Info().Msg("mirror daemon started")
	<-ctx.Done()
	log.Info().Msg("mirror daemon stopping")
}

// defaultMetadata declares the data model the reference daemon mirrors: a
// note-taking schema with cacheable binary attachments.
func defaultMetadata() schema.Metadata {
	return schema.NewMetadata(
		schema.Entity{
			Name: "note",
			Fields: []schema.Field{
				{Name: "title", Type: schema.FieldString},
				{Name: "body", Type: schema.FieldString},
				{Name: "pinned", Type: schema.FieldBool},
				{Name: "updated_at", Type: schema.FieldTime},
			},
			Relationships: []schema.Relationship{
				{Name: "attachments", TargetEntity: "attachment", ToMany: true},
			},
		},
		schema.Entity{
			Name: "attachment",
			Fields: []schema.Field{
				{Name: "filename", Type: schema.FieldString},
				{Name: "content_type", Type: schema.FieldString},
			},
			Relationships: []schema.Relationship{
				{Name: "note", TargetEntity: "note"},
			},
			Cacheable:  true,
			AssetField: "payload",
		},
	)
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}

	if buildDate == "" {
		buildDate = "N/A"
	}

	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
