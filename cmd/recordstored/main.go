package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cloudmirror/cloudmirror/internal/config"
	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/recordstore"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("recordstored")
	cfg, err := config.GetServerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	ctx := context.Background()

	db, err := recordstore.NewConnectPostgres(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting database")
	}
	defer db.Close()

	blobs, err := recordstore.NewBlobStore(ctx, cfg.Assets)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating blob store")
	}

	repo := recordstore.NewRepository(db, log)
	transfers, err := recordstore.NewTransfers(repo, blobs, filepath.Join(cfg.Assets.Dir, "staging"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating transfer registry")
	}

	tokens := recordstore.NewTokenService(cfg.Auth, repo, log)
	handler := recordstore.NewHandler(repo, transfers, tokens, cfg.RateLimitPerMinute, log)

	if err = recordstore.NewServer(handler, cfg, log).Run(); err != nil {
		log.Fatal().Err(err).Msg("record-store server error")
	}
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
