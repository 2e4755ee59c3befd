/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"slices"
	"time"

	"chainguard.dev/bugfixer/hosting/publisher"
	"chainguard.dev/bugfixer/hosting/snapshot"
	"chainguard.dev/bugfixer/workspace/testrunner"
)

// Config is the fully resolved configuration for an Orchestrator. Nothing
// in this package reads the environment.
type Config struct {
	// HostToken authenticates against the hosting API when no HTTP client
	// is supplied with WithHTTPClient.
	HostToken string
	// GitHubBaseURL points at a GitHub Enterprise API root.
	GitHubBaseURL string

	// ModelAPIKey authenticates against the model provider.
	ModelAPIKey string
	// ModelName picks the model and, through its prefix, the provider.
	ModelName string
	// VertexProject and VertexRegion route the model through Vertex AI.
	VertexProject string
	VertexRegion  string

	// WorkspaceDir is the root for per-run snapshot directories.
	WorkspaceDir string
	// KeepWorkspace leaves the snapshot on disk after the run.
	KeepWorkspace bool

	// Sandboxed disables spawning test processes.
	Sandboxed       bool
	DownloadTimeout time.Duration
	TestTimeout     time.Duration
	InstallTimeout  time.Duration

	// Labels are attached to the pull request. Nil means the default set.
	Labels []string
}

// withDefaults fills zero durations and labels.
func (c Config) withDefaults() Config {
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = snapshot.DefaultDownloadTimeout
	}
	if c.TestTimeout <= 0 {
		c.TestTimeout = testrunner.DefaultTestTimeout
	}
	if c.InstallTimeout <= 0 {
		c.InstallTimeout = testrunner.DefaultInstallTimeout
	}
	if c.Labels == nil {
		c.Labels = publisher.DefaultLabels()
	} else {
		c.Labels = slices.Clone(c.Labels)
	}
	return c
}

