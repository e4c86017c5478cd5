package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/partd/internal/cluster"
	"github.com/roach88/partd/internal/config"
	"github.com/roach88/partd/internal/network"
	"github.com/roach88/partd/internal/node"
	"github.com/roach88/partd/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Listen   string

	// Started, if set, is called with the node once all partitions are
	// built (for testing).
	Started func(*node.Node)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the partitions led by this node",
		Long: `Start the partition processors, outbox routers and timer services
of every partition the cluster layout assigns to this node.

The layout spreads the configured number of partitions round-robin over
the node and its peers. With a listen address the node accepts envelopes
from peers over HTTP; without one it runs as a single process cluster.

Examples:
  partd run
  partd run --config ./node.yaml
  partd run --db /tmp/partd.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address for peer envelopes (overrides config)")

	return cmd
}

func runNode(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Level(), opts.Verbose)
	slog.SetDefault(logger)

	compressor, err := cfg.Compressor()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid payload compression", err)
	}

	dbPath := cfg.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create data directory", err)
	}
	slog.Info("opening database", "path", dbPath, "compression", compressor.Algorithm)
	st, err := store.Open(dbPath, store.WithCompressor(compressor))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build partition layout", err)
	}

	var transport network.Transport
	local := network.NewLocal()
	if len(cfg.Nodes) > 0 {
		transport = network.NewHTTPTransport(cfg.Nodes, 0)
	} else {
		transport = local
	}

	n, err := node.New(node.Options{
		Name:          cfg.NodeName,
		ClusterName:   cfg.ClusterName,
		Store:         st,
		Registry:      registry,
		Transport:     transport,
		Ingress:       network.NewHub(),
		RetryInterval: cfg.OutboxRetryInterval,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build node", err)
	}
	local.Register(cfg.NodeName, n)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(gctx) })

	if cfg.Listen != "" {
		srv := &http.Server{Addr: cfg.Listen, Handler: network.NewHTTPHandler(n)}
		g.Go(func() error {
			slog.Info("accepting peer envelopes", "addr", cfg.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", cfg.Listen, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Node %s started with partitions %v.\n", cfg.NodeName, n.Partitions())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Started != nil {
		opts.Started(n)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "node error", err)
	}

	slog.Info("node stopped gracefully")
	return nil
}

// buildRegistry lays out cfg.Partitions partitions over the cluster nodes.
func buildRegistry(cfg config.Config) (*cluster.Registry, error) {
	table, err := cluster.NewPartitionTable(cfg.Partitions)
	if err != nil {
		return nil, err
	}
	registry := cluster.NewRegistry(table)
	if err := registry.Rebalance(cfg.ClusterNodes()); err != nil {
		return nil, err
	}
	return registry, nil
}
