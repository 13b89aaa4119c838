package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/pario-ai/imagine/pkg/client"
	"github.com/pario-ai/imagine/pkg/session"
)

func newGenerateCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "generate PROMPT",
		Short: "Generate an image through a running imagine server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if strings.TrimSpace(prompt) == "" {
				return goerr.New(session.EmptyPromptMessage)
			}

			start := time.Now()
			url, err := client.New(server).Generate(context.Background(), prompt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			fmt.Fprintf(cmd.ErrOrStderr(), "Generation Time: %d ms\n", time.Since(start).Milliseconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "imagine server URL")
	return cmd
}
