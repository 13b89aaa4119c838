package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/imagine/pkg/client"
)

func newUsageCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show the provider's daily quota usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := client.New(server).Usage(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Used:      %d\nQuota:     %d\nRemaining: %d\n", u.Used, u.DailyQuota, u.Remaining())
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "imagine server URL")
	return cmd
}
