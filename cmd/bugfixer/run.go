/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"chainguard.dev/bugfixer/pipeline"
	"chainguard.dev/bugfixer/tickets/jira"
	"github.com/chainguard-dev/clog"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		owner, repo, description, jiraURL string
		asJSON                            bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fix one task and open a pull request",
		Example: `  bugfixer run --owner octo --repo widgets --description "fix null pointer in parser"
  bugfixer run --owner octo --repo widgets --jira-url https://acme.atlassian.net/browse/PROJ-123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, nil)
			if err != nil {
				return err
			}

			if jiraURL != "" {
				ref, ok := jira.ParseTicketURL(jiraURL)
				if !ok {
					return fmt.Errorf("could not parse Jira URL %q", jiraURL)
				}
				jc := cfg.jiraClient()
				if !jc.Enabled() {
					return errors.New("JIRA_EMAIL and JIRA_API_TOKEN are required to read tickets")
				}
				ticket, err := jc.Fetch(ctx, ref)
				if err != nil {
					return fmt.Errorf("fetching %s: %w", ref.Key, err)
				}
				description = ticket.TaskDescription()
			}

			o, err := newOrchestrator(ctx, cfg)
			if err != nil {
				return err
			}

			log := clog.FromContext(ctx)
			res, err := o.Run(ctx, owner, repo, description, pipeline.Callbacks{
				OnProgress: func(label string) { log.Info(label) },
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return writeSummary(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "free-text description of the bug or task")
	cmd.Flags().StringVar(&jiraURL, "jira-url", "", "Jira ticket link to take the description from")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("repo")
	cmd.MarkFlagsMutuallyExclusive("description", "jira-url")
	cmd.MarkFlagsOneRequired("description", "jira-url")
	return cmd
}

// writeSummary renders a run result as a two-column table.
func writeSummary(w io.Writer, res *pipeline.Result) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Field", "Value"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)

	tests := "failed"
	switch {
	case res.TestResult.Skipped:
		tests = "skipped"
	case res.TestResult.Passed:
		tests = "passed"
	}
	pr := "-"
	if res.PR != nil {
		pr = "#" + strconv.Itoa(res.PR.Number) + " " + res.PR.URL
	}

	rows := [][]string{
		{"Branch", res.Branch},
		{"Patched files", strings.Join(res.PatchedFiles, ", ")},
		{"Tests", tests},
		{"Pull request", pr},
		{"Elapsed", strconv.FormatFloat(float64(res.Elapsed), 'f', 1, 64) + "s"},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
