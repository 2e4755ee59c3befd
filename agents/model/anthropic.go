/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
)

type claude struct {
	client anthropic.Client
	cfg    Config
}

func newAnthropic(ctx context.Context, cfg Config) (*claude, error) {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	switch {
	case cfg.VertexProject != "":
		region := cfg.VertexRegion
		if region == "" {
			region = "us-east5"
		}
		opts = append(opts, vertex.WithGoogleAuth(ctx, region, cfg.VertexProject))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	default:
		return nil, errors.New("anthropic: an API key or a Vertex project is required")
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &claude{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

func (c *claude) Name() string { return c.cfg.Name }

func (c *claude) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Name),
		MaxTokens: req.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	return complete(ctx, c.cfg, isRetryableClaudeError, func() (*Response, error) {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, err
		}
		var parts []string
		for _, block := range msg.Content {
			if block.Type == "text" {
				parts = append(parts, block.Text)
			}
		}
		return &Response{
			Text:         strings.Join(parts, "\n"),
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		}, nil
	})
}

func isRetryableClaudeError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	return false
}
