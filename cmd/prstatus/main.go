package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/prstatus/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

// app carries the loaded configuration from the root command to its
// subcommands.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "prstatus",
		Short:         "Report build status to Bitbucket pull requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			a.cfg = cfg

			logger := newLogger(cfg)
			slog.SetDefault(logger)
			cmd.SetContext(clog.WithLogger(cmd.Context(), clog.New(logger.Handler())))
			return nil
		},
	}

	cmd.AddCommand(
		a.newServeCmd(),
		a.newKeyCmd(),
		a.newPullRequestsCmd(),
		a.newCommentsCmd(),
		a.newCommentCmd(),
		a.newApproveCmd(),
		a.newUnapproveCmd(),
		a.newStatusCmd(),
	)
	return cmd
}

// newLogger builds the process logger from the configured level and format.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
