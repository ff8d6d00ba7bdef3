// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudmirror/cloudmirror/internal/config"
	"github.com/cloudmirror/cloudmirror/internal/logger"
)

// Server runs the record-store HTTP transport until a termination signal
// arrives, then shuts down gracefully.
type Server struct {
	server *http.Server
	logger *logger.Logger
}

func NewServer(handler *Handler, cfg *config.ServerConfig, log *logger.Logger) *Server {
	log.Info().Str("address", cfg.HTTPAddress).Msg("creating record-store server")
	return &Server{
		server: &http.Server{
			Addr:         cfg.HTTPAddress,
			Handler:      handler.Init(),
			ReadTimeout:  cfg.RequestTimeout,
			WriteTimeout: cfg.RequestTimeout,
		},
		logger: log,
	}
}

// Run serves requests and blocks until SIGINT or SIGTERM.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down record-store server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
