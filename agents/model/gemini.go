/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type gemini struct {
	client *genai.Client
	cfg    Config
}

func newGemini(ctx context.Context, cfg Config) (*gemini, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.VertexProject != "":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.VertexProject
		cc.Location = cfg.VertexRegion
		if cc.Location == "" {
			cc.Location = "us-central1"
		}
	case cfg.APIKey != "":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, errors.New("gemini: an API key or a Vertex project is required")
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Google AI client: %w", err)
	}
	return &gemini{client: client, cfg: cfg}, nil
}

func (g *gemini) Name() string { return g.cfg.Name }

func (g *gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	return complete(ctx, g.cfg, isRetryableVertexError, func() (*Response, error) {
		out, err := g.client.Models.GenerateContent(ctx, g.cfg.Name, genai.Text(req.Prompt), config)
		if err != nil {
			return nil, err
		}
		resp := &Response{Text: out.Text()}
		if u := out.UsageMetadata; u != nil {
			resp.InputTokens = int64(u.PromptTokenCount)
			resp.OutputTokens = int64(u.CandidatesTokenCount)
		}
		return resp, nil
	})
}

// isRetryableVertexError matches on the message text; the SDK does not
// expose a stable status type for every transport.
func isRetryableVertexError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"Resource exhausted", "RESOURCE_EXHAUSTED", "429", "rate limit", "Overloaded", "503", "UNAVAILABLE", "quota exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
