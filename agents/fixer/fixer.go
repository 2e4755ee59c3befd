/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fixer

import (
	"context"
	"errors"
	"strings"

	"chainguard.dev/bugfixer/agents/metrics"
	"chainguard.dev/bugfixer/agents/model"
	"chainguard.dev/bugfixer/faults"
	"chainguard.dev/bugfixer/workspace/contextbuilder"
	"chainguard.dev/bugfixer/workspace/patch"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultMaxTokens bounds the model's answer.
	DefaultMaxTokens = 16000
	// DefaultTemperature keeps sampling close to deterministic.
	DefaultTemperature = 0.2
)

// ErrEmptyResponse is wrapped when the model returns no text at all.
var ErrEmptyResponse = errors.New("model returned an empty response")

// FixResult is the parsed model answer.
type FixResult struct {
	Patches     []patch.Patch `json:"patches"`
	Explanation string        `json:"explanation"`
	RawResponse string        `json:"rawResponse"`
}

// Generator produces fixes with a language model.
type Generator struct {
	model       model.Interface
	maxTokens   int64
	temperature float64
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int64) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// New returns a Generator backed by m.
func New(m model.Interface, opts ...Option) *Generator {
	g := &Generator{model: m, maxTokens: DefaultMaxTokens, temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks the model for a fix of tc given the formatted repository
// tree and the relevant files. An empty Patches slice is not an error here.
func (g *Generator) Generate(ctx context.Context, tc contextbuilder.TaskContext, tree string, files []contextbuilder.RelevantFile) (*FixResult, error) {
	prompt, err := buildUserPrompt(tc, tree, files)
	if err != nil {
		return nil, faults.New(faults.Generation, "building prompt", err)
	}

	log := clog.FromContext(ctx).With("model", g.model.Name())
	log.With("files", len(files)).Infof("Requesting fix for %q", tc.Title)

	ctx = metrics.WithAttributes(ctx, attribute.String("stage", "generate"))
	resp, err := g.model.Complete(ctx, model.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, faults.New(faults.Generation, "calling model", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, faults.New(faults.Generation, "", ErrEmptyResponse)
	}

	patches, explanation := ParseResponse(resp.Text)
	log.With("patches", len(patches)).
		With("input_tokens", resp.InputTokens).
		With("output_tokens", resp.OutputTokens).
		Info("Parsed model response")

	return &FixResult{
		Patches:     patches,
		Explanation: explanation,
		RawResponse: resp.Text,
	}, nil
}
