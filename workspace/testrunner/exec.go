/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// credentialVars are never passed to test processes, which run code the
// model may have written.
var credentialVars = map[string]struct{}{
	"GITHUB_TOKEN":                   {},
	"GH_TOKEN":                       {},
	"GITHUB_APP_ID":                  {},
	"GITHUB_INSTALLATION_ID":         {},
	"GITHUB_APP_PRIVATE_KEY":         {},
	"MODEL_API_KEY":                  {},
	"ANTHROPIC_API_KEY":              {},
	"OPENAI_API_KEY":                 {},
	"GEMINI_API_KEY":                 {},
	"GOOGLE_API_KEY":                 {},
	"GOOGLE_APPLICATION_CREDENTIALS": {},
	"JIRA_EMAIL":                     {},
	"JIRA_API_TOKEN":                 {},
	"AWS_ACCESS_KEY_ID":              {},
	"AWS_SECRET_ACCESS_KEY":          {},
	"AWS_SESSION_TOKEN":              {},
}

var credentialSuffixes = []string{"_TOKEN", "_SECRET", "_PASSWORD", "_API_KEY", "_PRIVATE_KEY"}

// Environ returns environ without credentials and with CI=true, for use as
// a test process's environment.
func Environ(environ []string) []string {
	env := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		if name == "CI" || isCredential(name) {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "CI=true")
}

func isCredential(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := credentialVars[upper]; ok {
		return true
	}
	for _, suffix := range credentialSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// Result is the outcome of one process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs a command in a directory. A non-zero exit is reported in
// Result, not as an error; errors mean the process could not run or was
// stopped by ctx.
type Executor interface {
	Run(ctx context.Context, dir string, argv []string) (Result, error)
}

// ExecExecutor runs commands as local subprocesses.
type ExecExecutor struct{}

var _ Executor = ExecExecutor{}

// Run implements Executor.
func (ExecExecutor) Run(ctx context.Context, dir string, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = Environ(os.Environ())
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		return res, fmt.Errorf("running %s: %w", argv[0], err)
	}
	return res, nil
}
