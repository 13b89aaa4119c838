package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/pario-ai/imagine/pkg/config"
	"github.com/pario-ai/imagine/pkg/logstore"
	"github.com/pario-ai/imagine/pkg/storage/sqlite"
)

func newLogsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect and manage persisted session history",
	}

	openDB := func() (*sqlite.DB, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if cfg.DBPath == "" {
			return nil, goerr.New("db_path is not configured")
		}
		return sqlite.Open(cfg.DBPath)
	}

	var sessionID string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions with persisted history, or one session's entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			ctx := context.Background()

			if sessionID != "" {
				entries := logstore.New(ctx, db.Namespace(sessionID)).Logs()
				if len(entries) == 0 {
					fmt.Println("No logs available.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "#\tSTATUS\tTIME (ms)\tPROMPT\tRESULT")
				for i, e := range entries {
					result := e.ImageURL
					if e.Error != "" {
						result = e.Error
					}
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", i+1, e.Status, e.GenerationTime, e.Prompt, truncate(result, 80))
				}
				return w.Flush()
			}

			infos, err := db.List(ctx)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION ID\tKEYS\tUPDATED")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\t%s\n", info.Name, info.Keys, info.UpdatedAt.Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&sessionID, "session", "", "show the entries of one session")

	var clearID string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear one session's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearID == "" {
				return goerr.New("--session is required")
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			ctx := context.Background()
			if err := logstore.New(ctx, db.Namespace(clearID)).ClearLogs(ctx); err != nil {
				return err
			}
			fmt.Println("Session history cleared.")
			return nil
		},
	}
	clearCmd.Flags().StringVar(&clearID, "session", "", "session ID")

	var olderThan time.Duration
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove history left behind by sessions that never closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return goerr.New("--older-than must be positive")
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			n, err := db.Purge(context.Background(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d entries older than %s.\n", n, olderThan)
			return nil
		},
	}
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "age threshold")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "imagine.yaml", "path to config file")
	cmd.AddCommand(listCmd, clearCmd, purgeCmd)
	return cmd
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
