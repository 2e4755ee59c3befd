/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command bugfixer turns a task description into a pull request.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose, jsonLogs bool
	root := &cobra.Command{
		Use:   "bugfixer",
		Short: "Generate, test, and publish fixes as pull requests",
		Long: `bugfixer downloads a repository snapshot, asks a language model for a
minimal fix to the described task, runs the project's tests, and opens a pull
request with the result. Every hosting API call goes through an allow-list
that only permits creating branches, commits, and pull requests.

Credentials and limits are read from the environment (GITHUB_TOKEN,
ANTHROPIC_API_KEY, CLAUDE_MODEL, WORKSPACE_DIR, ...).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			opts := &slog.HandlerOptions{Level: level}
			var h slog.Handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
			if jsonLogs {
				h = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
			}
			cmd.SetContext(clog.WithLogger(cmd.Context(), clog.New(h)))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON")

	root.AddCommand(newRunCmd(), newServeCmd())
	return root
}
