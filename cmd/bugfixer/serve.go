/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"chainguard.dev/bugfixer/pipeline"
	"chainguard.dev/bugfixer/tickets/jira"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fix pipeline over HTTP with server-sent progress events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, nil)
			if err != nil {
				return err
			}
			o, err := newOrchestrator(ctx, cfg)
			if err != nil {
				return err
			}

			s := &server{fixes: o}
			if jc := cfg.jiraClient(); jc.Enabled() {
				s.tickets = jc
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           s.routes(),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(_ net.Listener) context.Context { return ctx },
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			clog.InfoContextf(ctx, "Serving on %s (workspace %s, sandboxed=%v)", addr, cfg.WorkspaceDir, cfg.Sandboxed)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

type fixStreamer interface {
	Stream(ctx context.Context, owner, repo, description string) <-chan pipeline.Event
}

type ticketFetcher interface {
	Fetch(ctx context.Context, ref jira.Ref) (*jira.Ticket, error)
}

type server struct {
	fixes fixStreamer
	// tickets is nil when Jira credentials are not configured.
	tickets ticketFetcher
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/fix", s.handleFix)
	mux.HandleFunc("POST /api/jira", s.handleJira)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

type fixRequest struct {
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	Description string `json:"description"`
}

func (s *server) handleFix(w http.ResponseWriter, r *http.Request) {
	var req fixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" || req.Repo == "" || req.Description == "" {
		http.Error(w, "Missing owner, repo, or description", http.StatusBadRequest)
		return
	}

	// A disconnected client stops reading; the run itself carries on.
	ctx := context.WithoutCancel(r.Context())
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("owner", req.Owner).With("repo", req.Repo))

	pipeline.SetSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	if err := pipeline.WriteSSE(w, s.fixes.Stream(ctx, req.Owner, req.Repo, req.Description)); err != nil {
		clog.FromContext(ctx).Warnf("Progress stream ended early: %v", err)
	}
}

type jiraRequest struct {
	TicketURL string `json:"ticketUrl"`
}

type jiraResponse struct {
	Ticket      *jira.Ticket `json:"ticket"`
	Description string       `json:"description"`
}

func (s *server) handleJira(w http.ResponseWriter, r *http.Request) {
	var req jiraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TicketURL == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing ticketUrl")
		return
	}
	ref, ok := jira.ParseTicketURL(req.TicketURL)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Could not parse that Jira URL. Paste a full ticket link like https://company.atlassian.net/browse/PROJ-123.")
		return
	}
	if s.tickets == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "Jira is not configured. Set JIRA_EMAIL and JIRA_API_TOKEN.")
		return
	}

	ticket, err := s.tickets.Fetch(r.Context(), ref)
	if err != nil {
		clog.FromContext(r.Context()).With("ticket", ref.Key).Warnf("Failed to fetch ticket: %v", err)
		var se *jira.StatusError
		switch {
		case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Ticket not found or access denied. Check that JIRA_EMAIL and JIRA_API_TOKEN have read access to this project. (%v)", err))
		case errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden):
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Jira authentication failed. Verify JIRA_EMAIL and JIRA_API_TOKEN. (%v)", err))
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, jiraResponse{Ticket: ticket, Description: ticket.TaskDescription()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
