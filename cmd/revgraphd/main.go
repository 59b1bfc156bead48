// Command revgraphd serves the repository mutation engine over HTTP for a
// single workspace.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kurobon/revgraph/internal/config"
	"github.com/kurobon/revgraph/internal/engine"
	"github.com/kurobon/revgraph/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	var debug bool

	cmd := &cobra.Command{
		Use:   "revgraphd",
		Short: "Serve the commit graph mutation engine over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return run(cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "", "address to serve on")
	flags.String("workspace", "", "workspace directory to open")
	flags.String("immutable-revset", "", "revset of commits refusing rewrites")
	flags.Int("page-size", 0, "rows per log page")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	for _, name := range []string{"listen", "workspace", "immutable-revset", "page-size"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	session := engine.NewSession(cfg, logger)
	worker := engine.NewWorker(session, logger)
	defer worker.Stop()

	if cfg.Workspace != "" {
		if err := worker.Open(context.Background(), osfs.New(cfg.Workspace), cfg.Workspace); err != nil {
			// the session stays closed; a client can open a workspace later
			logger.Warn("initial workspace open failed",
				zap.String("workspace", cfg.Workspace), zap.Error(err))
		}
	}

	srv := server.NewServer(worker, logger)
	logger.Info("revgraphd listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("workspace", cfg.Workspace))
	return http.ListenAndServe(cfg.ListenAddr, srv)
}
