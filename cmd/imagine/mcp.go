package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/imagine/pkg/client"
	"github.com/pario-ai/imagine/pkg/config"
	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/mcp"
	"github.com/pario-ai/imagine/pkg/storage/sqlite"
)

func newMCPCmd() *cobra.Command {
	var (
		configPath string
		server     string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve imagine tools to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			logger := logging.New(os.Stderr, "info", "text")
			logging.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.With(ctx, logger)

			var history mcp.History
			if cfg, err := config.Load(configPath); err != nil {
				logger.Warn("history tools disabled", "error", err)
			} else if cfg.DBPath != "" {
				db, err := sqlite.Open(cfg.DBPath)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				history = db
			}

			srv := mcp.New(client.New(server), history, version)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "imagine.yaml", "path to config file")
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "imagine server URL")
	return cmd
}
