/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"chainguard.dev/bugfixer/pipeline"
	"chainguard.dev/bugfixer/tickets/jira"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/sethvargo/go-envconfig"
)

// serverlessWorkspace is the only writable location on serverless hosts.
const serverlessWorkspace = "/tmp/workspace"

type config struct {
	// Hosting API credentials: a token, or a GitHub App installation.
	GitHubToken          string `env:"GITHUB_TOKEN"`
	GitHubAPIURL         string `env:"GITHUB_API_URL"`
	GitHubAppID          int64  `env:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `env:"GITHUB_INSTALLATION_ID"`
	GitHubAppPrivateKey  string `env:"GITHUB_APP_PRIVATE_KEY"`

	// Model selection.
	ModelAPIKey     string `env:"MODEL_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	Model           string `env:"CLAUDE_MODEL,default=claude-sonnet-4-20250514"`
	GCPProjectID    string `env:"GCP_PROJECT_ID"`
	GCPRegion       string `env:"GCP_REGION"`

	WorkspaceDir    string        `env:"WORKSPACE_DIR,default=./workspace"`
	KeepWorkspace   bool          `env:"KEEP_WORKSPACE,default=false"`
	Sandboxed       bool          `env:"SANDBOXED,default=false"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT,default=5m"`
	TestTimeout     time.Duration `env:"TEST_TIMEOUT,default=300s"`
	InstallTimeout  time.Duration `env:"INSTALL_TIMEOUT,default=120s"`
	Labels          []string      `env:"PR_LABELS"`

	JiraEmail    string `env:"JIRA_EMAIL"`
	JiraAPIToken string `env:"JIRA_API_TOKEN"`

	// Serverless markers.
	Vercel         string `env:"VERCEL"`
	LambdaFunction string `env:"AWS_LAMBDA_FUNCTION_NAME"`
	LambdaTaskRoot string `env:"LAMBDA_TASK_ROOT"`
}

// loadConfig reads the environment through l; nil uses the process
// environment.
func loadConfig(ctx context.Context, l envconfig.Lookuper) (*config, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var cfg config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if cfg.serverless() {
		cfg.WorkspaceDir = serverlessWorkspace
		cfg.Sandboxed = true
	} else {
		abs, err := filepath.Abs(cfg.WorkspaceDir)
		if err != nil {
			return nil, fmt.Errorf("resolving workspace directory: %w", err)
		}
		cfg.WorkspaceDir = abs
	}
	return &cfg, nil
}

func (c *config) serverless() bool {
	return c.Vercel != "" || c.LambdaFunction != "" || c.LambdaTaskRoot != ""
}

func (c *config) usesApp() bool {
	return c.GitHubAppID != 0 && c.GitHubInstallationID != 0 && c.GitHubAppPrivateKey != ""
}

func (c *config) pipelineConfig() pipeline.Config {
	apiKey := c.ModelAPIKey
	if apiKey == "" {
		apiKey = c.AnthropicAPIKey
	}
	baseURL := c.GitHubAPIURL
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return pipeline.Config{
		HostToken:       c.GitHubToken,
		GitHubBaseURL:   baseURL,
		ModelAPIKey:     apiKey,
		ModelName:       c.Model,
		VertexProject:   c.GCPProjectID,
		VertexRegion:    c.GCPRegion,
		WorkspaceDir:    c.WorkspaceDir,
		KeepWorkspace:   c.KeepWorkspace,
		Sandboxed:       c.Sandboxed,
		DownloadTimeout: c.DownloadTimeout,
		TestTimeout:     c.TestTimeout,
		InstallTimeout:  c.InstallTimeout,
		Labels:          c.Labels,
	}
}

// newOrchestrator wires the pipeline, authenticating as a GitHub App
// installation when one is configured and with GITHUB_TOKEN otherwise.
func newOrchestrator(ctx context.Context, c *config) (*pipeline.Orchestrator, error) {
	var opts []pipeline.Option
	switch {
	case c.usesApp():
		itr, err := ghinstallation.New(http.DefaultTransport, c.GitHubAppID, c.GitHubInstallationID, []byte(c.GitHubAppPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("creating installation transport: %w", err)
		}
		if c.GitHubAPIURL != "" {
			itr.BaseURL = strings.TrimSuffix(c.GitHubAPIURL, "/")
		}
		opts = append(opts, pipeline.WithHTTPClient(&http.Client{Transport: itr}))
	case c.GitHubToken == "":
		return nil, errors.New("GITHUB_TOKEN or a GitHub App installation is required")
	}
	return pipeline.New(ctx, c.pipelineConfig(), opts...)
}

func (c *config) jiraClient() *jira.Client {
	return jira.New(c.JiraEmail, c.JiraAPIToken)
}
