/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry retries model API calls that fail with transient errors.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config controls the backoff schedule.
type Config struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retrying.
	MaxRetries int
	// BaseBackoff is the wait before the first retry; it doubles each time.
	BaseBackoff time.Duration
	// MaxBackoff caps the doubled wait.
	MaxBackoff time.Duration
	// MaxJitter bounds the random delay added to every wait.
	MaxJitter time.Duration
}

// Validate rejects negative values.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	if c.MaxBackoff < 0 {
		return errors.New("max backoff cannot be negative")
	}
	if c.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultConfig suits provider rate limits, which tend to need seconds
// rather than milliseconds to clear.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  5,
		BaseBackoff: time.Second,
		MaxBackoff:  60 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// TransientStatus reports whether an HTTP status from a model provider is
// worth retrying: rate limited, unavailable, gateway timeout, or overloaded.
func TransientStatus(code int) bool {
	switch code {
	case 429, 503, 504, 529:
		return true
	}
	return false
}

// Do calls fn until it succeeds, returns an error isRetryable rejects, or
// the retries run out.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return result, err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		wait := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff) + jitter(cfg.MaxJitter)
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", wait).
			With("error", err.Error()).
			Warn("Transient model API error, retrying")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return result, ctx.Err()
		case <-t.C:
		}
	}
	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, err)
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
