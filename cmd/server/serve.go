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
	"time"

	"github.com/kiranshivaraju/tickettriage/internal/api"
	"github.com/kiranshivaraju/tickettriage/internal/api/handler"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/config"
	"github.com/kiranshivaraju/tickettriage/internal/render"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the in-process worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, !noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Serve the API only; run workers with the worker command")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the triage and embedding worker pool without the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			slog.Info("worker pool started", "concurrency", cfg.Worker.Concurrency)
			if err := a.worker.Run(ctx); err != nil {
				return fmt.Errorf("worker: %w", err)
			}
			slog.Info("worker pool stopped")
			return nil
		},
	}
}

func serve(parent context.Context, cfg *config.Config, withWorker bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router := api.NewRouter(newDependencies(a))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if withWorker {
		g.Go(func() error {
			slog.Info("worker pool started", "concurrency", cfg.Worker.Concurrency)
			return a.worker.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

// newDependencies binds every route to its handler.
func newDependencies(a *app) api.Dependencies {
	md := render.New()
	return api.Dependencies{
		Auth:      mw.NewAuth(a.store),
		RateLimit: mw.NewRateLimit(a.cache, a.cfg.Server.RequestsPerMinute),

		HealthHandler: healthHandler(a.store, a.cache),

		CreateTicket: handler.NewCreateTicketHandler(a.store),
		GetTicket:    handler.NewGetTicketHandler(a.store),
		UpdateTicket: handler.NewUpdateTicketHandler(a.store),
		ListEvents:   handler.NewListEventsHandler(a.store),

		TriggerTriage:     handler.NewTriggerTriageHandler(a.triage),
		GetJob:            handler.NewGetJobHandler(a.triage),
		ListSuggestions:   handler.NewListSuggestionsHandler(a.store, md),
		ApproveSuggestion: handler.NewReviewSuggestionHandler(a.store, md, models.SuggestionStatusAccepted),
		RejectSuggestion:  handler.NewReviewSuggestionHandler(a.store, md, models.SuggestionStatusRejected),

		IngestDocument: handler.NewIngestDocumentHandler(a.kb),
		GetDocument:    handler.NewGetDocumentHandler(a.store),
		Retrieve:       handler.NewRetrieveHandler(a.kb, a.store),

		CreateKeyHandler: handler.NewCreateKeyHandler(a.store),
		ListKeysHandler:  handler.NewListKeysHandler(a.store),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(a.store),
	}
}
