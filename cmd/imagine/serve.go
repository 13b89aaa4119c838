package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/pario-ai/imagine/pkg/config"
	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/provider"
	"github.com/pario-ai/imagine/pkg/proxy"
	"github.com/pario-ai/imagine/pkg/session"
	"github.com/pario-ai/imagine/pkg/storage/memory"
	"github.com/pario-ai/imagine/pkg/storage/sqlite"
	"github.com/pario-ai/imagine/pkg/web"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and the generation proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			logging.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.With(ctx, logger)

			var namespaces session.Namespaces
			if cfg.DBPath == "" {
				logger.Warn("db_path is empty, session history is kept in memory only")
				namespaces = memory.New()
			} else {
				db, err := sqlite.Open(cfg.DBPath)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				namespaces = db
			}

			p, err := provider.New(ctx, cfg)
			if err != nil {
				return goerr.Wrap(err, "init provider", goerr.V("type", cfg.Provider.Type))
			}
			px := proxy.New(p)

			sessions := session.NewManager(px, namespaces, cfg.Session.IdleTimeout)
			defer func() {
				shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := sessions.Shutdown(logging.With(shutCtx, logger)); err != nil {
					logger.Warn("session shutdown", "error", err)
				}
			}()

			srv, err := web.New(cfg, sessions, px)
			if err != nil {
				return err
			}

			logger.Info("starting imagine",
				"config", configPath,
				"provider", cfg.Provider.Type,
				"db", cfg.DBPath,
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "imagine.yaml", "path to config file")
	return cmd
}
