/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package model puts the supported language-model providers behind one
// single-turn completion interface.
package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/bugfixer/agents/metrics"
	"chainguard.dev/bugfixer/agents/retry"
)

// DefaultModel is used when Config.Name is empty.
const DefaultModel = "claude-sonnet-4-20250514"

// ErrUnknownModel is returned by New for a name no backend serves.
var ErrUnknownModel = errors.New("unknown model family")

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Response is the text a model returned and the tokens it used.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Interface is a language model.
type Interface interface {
	// Name returns the configured model name.
	Name() string
	// Complete sends req and returns the model's text. Transient provider
	// failures are retried before an error is returned.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Config selects and authenticates a backend.
type Config struct {
	// Name is the model name; its prefix picks the provider.
	Name string
	// APIKey authenticates against the provider's public API.
	APIKey string
	// VertexProject and VertexRegion route Claude and Gemini through
	// Vertex AI with Google application default credentials instead of an
	// API key.
	VertexProject string
	VertexRegion  string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Retry controls backoff for transient errors.
	Retry retry.Config
	// Metrics receives token usage. Defaults to the global meter provider.
	Metrics *metrics.GenAI
}

// Provider names a model family.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// ProviderFor maps a model name to its provider.
func ProviderFor(name string) (Provider, error) {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "claude"):
		return ProviderAnthropic, nil
	case strings.HasPrefix(n, "gpt"), strings.HasPrefix(n, "chatgpt"),
		strings.HasPrefix(n, "o1"), strings.HasPrefix(n, "o3"), strings.HasPrefix(n, "o4"):
		return ProviderOpenAI, nil
	case strings.HasPrefix(n, "gemini"):
		return ProviderGemini, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// New returns the backend for cfg.Name.
func New(ctx context.Context, cfg Config) (Interface, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultModel
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewGenAI("chainguard.bugfixer")
	}

	p, err := ProviderFor(cfg.Name)
	if err != nil {
		return nil, err
	}
	switch p {
	case ProviderAnthropic:
		return newAnthropic(ctx, cfg)
	case ProviderOpenAI:
		return newOpenAI(cfg)
	default:
		return newGemini(ctx, cfg)
	}
}

// complete wraps one provider call with retries and metrics.
func complete(ctx context.Context, cfg Config, isRetryable func(error) bool, call func() (*Response, error)) (*Response, error) {
	start := time.Now()
	resp, err := retry.Do(ctx, cfg.Retry, "complete", isRetryable, call)
	cfg.Metrics.RecordRequest(ctx, cfg.Name, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if resp.InputTokens > 0 || resp.OutputTokens > 0 {
		cfg.Metrics.RecordTokens(ctx, cfg.Name, resp.InputTokens, resp.OutputTokens)
	}
	return resp, nil
}
