/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testrunner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

const (
	// DefaultTestTimeout bounds the test command.
	DefaultTestTimeout = 300 * time.Second
	// DefaultInstallTimeout bounds dependency installation.
	DefaultInstallTimeout = 120 * time.Second
)

// Outcome is the result of a test run. Skipped runs always pass.
type Outcome struct {
	Passed   bool   `json:"passed"`
	Skipped  bool   `json:"skipped"`
	Output   string `json:"output,omitempty"`
	Strategy string `json:"strategy,omitempty"`
}

// Runner runs a project's tests.
type Runner struct {
	exec           Executor
	sandboxed      bool
	testTimeout    time.Duration
	installTimeout time.Duration
	strategies     []Strategy
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor replaces the subprocess executor.
func WithExecutor(e Executor) Option {
	return func(r *Runner) { r.exec = e }
}

// WithSandbox marks the environment as unable to spawn processes; every run
// is skipped.
func WithSandbox(sandboxed bool) Option {
	return func(r *Runner) { r.sandboxed = sandboxed }
}

// WithTestTimeout overrides DefaultTestTimeout.
func WithTestTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.testTimeout = d
		}
	}
}

// WithInstallTimeout overrides DefaultInstallTimeout.
func WithInstallTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.installTimeout = d
		}
	}
}

// WithStrategies replaces DefaultStrategies.
func WithStrategies(s ...Strategy) Option {
	return func(r *Runner) { r.strategies = s }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		exec:           ExecExecutor{},
		testTimeout:    DefaultTestTimeout,
		installTimeout: DefaultInstallTimeout,
		strategies:     DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run detects and runs the tests in dir.
func (r *Runner) Run(ctx context.Context, dir string) Outcome {
	log := clog.FromContext(ctx)
	if r.sandboxed {
		log.Info("Sandboxed environment, skipping tests")
		return Outcome{Passed: true, Skipped: true, Output: "skipped: sandboxed environment"}
	}

	s, ok := r.detect(dir)
	if !ok {
		log.Info("No test ecosystem detected")
		return Outcome{Passed: true, Skipped: true}
	}
	log = log.With("strategy", s.Name)

	argv := s.Command(dir)
	if len(argv) == 0 {
		log.Info("Project declares no test command")
		return Outcome{Passed: true, Skipped: true, Strategy: s.Name}
	}

	if s.Install != nil {
		if install := s.Install(dir); len(install) > 0 {
			r.install(ctx, dir, install)
		}
	}

	log.Infof("Running %s", strings.Join(argv, " "))
	tctx, cancel := context.WithTimeout(ctx, r.testTimeout)
	defer cancel()
	res, err := r.exec.Run(tctx, dir, argv)
	out := combine(res.Stdout, res.Stderr)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded):
		out = combine(out, fmt.Sprintf("(timed out after %s)", r.testTimeout))
		log.Warnf("Tests timed out after %s", r.testTimeout)
		return Outcome{Output: out, Strategy: s.Name}
	case err != nil:
		log.Warnf("Tests could not run: %v", err)
		return Outcome{Output: combine(out, err.Error()), Strategy: s.Name}
	case res.ExitCode != 0:
		log.Infof("Tests failed with exit code %d", res.ExitCode)
		return Outcome{Output: out, Strategy: s.Name}
	}
	log.Info("Tests passed")
	return Outcome{Passed: true, Output: out, Strategy: s.Name}
}

func (r *Runner) detect(dir string) (Strategy, bool) {
	for _, s := range r.strategies {
		if s.Detect(dir) {
			return s, true
		}
	}
	return Strategy{}, false
}

// install is best-effort; failures are logged and ignored.
func (r *Runner) install(ctx context.Context, dir string, argv []string) {
	ctx, cancel := context.WithTimeout(ctx, r.installTimeout)
	defer cancel()
	res, err := r.exec.Run(ctx, dir, argv)
	switch {
	case err != nil:
		clog.FromContext(ctx).Warnf("Dependency install failed, continuing: %v", err)
	case res.ExitCode != 0:
		clog.FromContext(ctx).Warnf("Dependency install exited %d, continuing", res.ExitCode)
	}
}

func combine(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimRight(p, "\n"); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
