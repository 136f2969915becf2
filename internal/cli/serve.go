package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atvault/lexhost/internal/config"
	"github.com/atvault/lexhost/internal/engine"
	"github.com/atvault/lexhost/internal/resolve"
	"github.com/atvault/lexhost/internal/server"
	"github.com/atvault/lexhost/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the lexhost HTTP server.

Serves lexicon-defined XRPC methods under /xrpc/ and the admin API
under /admin/. Configuration comes from the --config file with
LEXHOST_* environment overrides.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts)
		},
	}
	return cmd
}

func runServe(opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.New(ctx, st, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "start engine", err)
	}

	resolverOpts := []resolve.Option{}
	if cfg.PLCURL != "" {
		resolverOpts = append(resolverOpts, resolve.WithPLCURL(cfg.PLCURL))
	}
	if cfg.AppviewURL != "" {
		resolverOpts = append(resolverOpts, resolve.WithAppviewURL(cfg.AppviewURL))
	}
	resolver := resolve.New(logger, resolverOpts...)
	relay := resolve.NewRelayClient(cfg.RelayURL, logger)

	srv := server.New(cfg, e, resolver, relay, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return WrapExitError(ExitFailure, "server", err)
	}
	return nil
}
