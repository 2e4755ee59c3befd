/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"context"
	"errors"

	"chainguard.dev/bugfixer/agents/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type gpt struct {
	client openai.Client
	cfg    Config
}

func newOpenAI(cfg Config) (*gpt, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: an API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &gpt{client: openai.NewClient(opts...), cfg: cfg}, nil
}

func (g *gpt) Name() string { return g.cfg.Name }

func (g *gpt) Complete(ctx context.Context, req Request) (*Response, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(g.cfg.Name),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(req.MaxTokens),
		Temperature:         openai.Float(req.Temperature),
	}

	return complete(ctx, g.cfg, isRetryableOpenAIError, func() (*Response, error) {
		cc, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}
		resp := &Response{
			InputTokens:  cc.Usage.PromptTokens,
			OutputTokens: cc.Usage.CompletionTokens,
		}
		if len(cc.Choices) > 0 {
			resp.Text = cc.Choices[0].Message.Content
		}
		return resp, nil
	})
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return retry.TransientStatus(code)
}
