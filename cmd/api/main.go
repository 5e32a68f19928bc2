package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/priorauth-notify/config"
	"github.com/marcelsud/priorauth-notify/internal/app"
	"github.com/marcelsud/priorauth-notify/internal/http/chi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const TIMEOUT = 30 * time.Second

/* The api binary is the only place where the components are wired together.
 * Imports flow one way: the binary imports the business packages,
 * which import the storage layer
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Println(err)
		return
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start")
		return
	}
	defer func() {
		ctxClose, cancel := context.WithTimeout(context.Background(), TIMEOUT)
		defer cancel()
		if err := a.Close(ctxClose); err != nil {
			log.Error().Err(err).Msg("Closing components")
		}
	}()
	if err := a.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to migrate store")
		return
	}

	r := chi.Handlers(ctx, chi.Services{
		Triggers:  a.Hooks,
		Registry:  a.Registry,
		Decisions: a.Decisions,
		Metrics:   a.Metrics.ServeHTTP(),
		TopicURL:  cfg.TopicURL,
	})
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	log.Info().Str("port", cfg.Port).Msg("Listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Server failed")
		return
	}
	err = <-errShutdown
	if err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		return
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		log.Info().Msg("Shutting down server")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("forcing closing the server: %w", err)
	}
}
