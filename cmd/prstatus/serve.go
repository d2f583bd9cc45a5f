package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	sqliteadapter "github.com/ericfisherdev/prstatus/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/prstatus/internal/adapter/driving/http"
	"github.com/ericfisherdev/prstatus/internal/application"
	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

const shutdownTimeout = 10 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the build event API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.RequireRepository(); err != nil {
		return err
	}
	slog.Info("config loaded",
		"variant", cfg.Variant,
		"owner", cfg.Owner,
		"repository", cfg.Repository,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"approve_if_success", cfg.ApproveIfSuccess,
	)

	// 1. Open database and bring the schema up to date.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database ready", "path", db.Path())

	// 2. Wire stores.
	credentialStore, err := sqliteadapter.NewCredentialRepo(db, cfg.EncryptionKey())
	if err != nil {
		return err
	}
	causeStore := sqliteadapter.NewCauseRepo(db)

	// 3. Create the Bitbucket client. Stored credentials win over env vars.
	var client driven.HostingClient
	if cfg.HasCredentials() {
		client, err = a.newClient(cfg.Username, cfg.Password)
		if err != nil {
			return err
		}
	}
	provider := application.NewHostingClientProvider(client)

	credentialSvc := application.NewCredentialService(credentialStore, provider, a.newClient)
	restored, err := credentialSvc.Restore(ctx)
	if err != nil {
		slog.Warn("stored credentials not restored", "error", err)
	}
	if !restored && !provider.HasClient() {
		slog.Info("no bitbucket credentials configured, build events are not reported until credentials are provided")
	}

	// 4. Application services and HTTP surface.
	buildSvc, err := application.NewBuildService(provider, httphandler.StaticHost(cfg.RootURL), cfg.ApproveIfSuccess)
	if err != nil {
		return err
	}
	handler := httphandler.NewHandler(causeStore, buildSvc, provider, credentialSvc)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("prstatus stopped")
	return nil
}
