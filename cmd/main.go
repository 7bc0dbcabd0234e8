/**
 * @description
 * This is the main entry point for the clearing-service, the central
 * coordinator for interbank transfers. It initializes configuration, the
 * presence hub, the account-verification client, the saga engine, the event
 * dispatcher, the stale-transfer reaper and the HTTP server, wires them
 * together, and runs until a shutdown signal arrives.
 *
 * The coordinator's state (transfer table, presence set) is constructed
 * here, once, and torn down with the process. Nothing persists across
 * restarts by design.
 *
 * @dependencies
 * - log/slog, net/http, os/signal: Standard Go libraries.
 * - internal/api, internal/app, internal/bank, internal/config,
 *   internal/hub: Internal packages for the service.
 * - pkg/bankclient: Client for the per-bank verification APIs.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bancentral/clearing-service/internal/api"
	"github.com/bancentral/clearing-service/internal/app"
	"github.com/bancentral/clearing-service/internal/bank"
	"github.com/bancentral/clearing-service/internal/config"
	"github.com/bancentral/clearing-service/internal/hub"
	"github.com/bancentral/clearing-service/pkg/bankclient"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger.Info("starting clearing-service", "port", cfg.ServerPort)

	// Presence registry and outbound transport.
	registry := hub.NewHub(logger, bank.MockBankCode)

	// Client for the per-bank account-verification APIs, over the static
	// catalog. One bounded-timeout attempt per call, no retries.
	verifier := bankclient.NewClient(bank.Catalog(), bank.MockBankCode, cfg.VerifyTimeout())

	// The saga engine and the inbound event router.
	saga := app.NewService(logger, registry, verifier)
	dispatcher := app.NewDispatcher(logger, saga, registry)

	// Evict transfers that stop progressing.
	reaper := app.NewReaper(logger, saga, cfg.ReaperSchedule, cfg.TransferRetention())
	if err := reaper.Start(); err != nil {
		logger.Error("reaper start failed", "err", err)
		os.Exit(1)
	}

	handlers := api.NewHandlers(logger, registry, dispatcher, cfg.APIToken)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: api.Routes(handlers),
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	<-reaper.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}

	logger.Info("shutdown complete")
}
