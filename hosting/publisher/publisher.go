/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package publisher opens the pull request for a pushed fix branch.
package publisher

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"chainguard.dev/bugfixer/faults"
	"chainguard.dev/bugfixer/hosting/guard"
	"chainguard.dev/bugfixer/workspace/testrunner"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

const (
	// MaxTitleRunes bounds the part of the description used in the title.
	MaxTitleRunes = 100
	// MaxTestOutputRunes bounds the failing test output quoted in the body.
	MaxTestOutputRunes = 3000
)

// DefaultLabels are attached to every pull request when they exist in the
// target repository.
func DefaultLabels() []string {
	return []string{"ai-generated", "bug-fix"}
}

var bodyTemplate = template.Must(template.New("body").Funcs(template.FuncMap{
	"code":  func(s string) string { return "`" + s + "`" },
	"fence": func() string { return "```" },
	"tail":  tail,
}).Parse(`## AI-Generated Bug Fix

### Task
{{.Description}}

### What was changed

{{.Explanation}}

### Modified files

{{range .PatchedFiles}}- {{code .}}
{{end}}
### Test results

{{if .TestResult.Skipped -}}
⚠️ Tests were skipped (no test framework detected).
{{- else if .TestResult.Passed -}}
✅ All tests passed.
{{- else -}}
❌ Some tests failed. Please review the changes carefully.

<details><summary>Test output</summary>

{{fence}}
{{tail .TestResult.Output}}
{{fence}}
</details>
{{- end}}

---
*This PR was created automatically by AI Bug Fixer Agent.*
`))

// Request describes the pull request to open.
type Request struct {
	Owner        string
	Repo         string
	Branch       string
	BaseBranch   string
	Description  string
	Explanation  string
	PatchedFiles []string
	TestResult   testrunner.Outcome
}

// PullRequest identifies an opened pull request.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// Publisher opens pull requests through a guarded client.
type Publisher struct {
	gc     *guard.Client
	labels []string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLabels replaces DefaultLabels. No labels disables labelling.
func WithLabels(labels ...string) Option {
	return func(p *Publisher) { p.labels = slices.Clone(labels) }
}

// New returns a Publisher.
func New(gc *guard.Client, opts ...Option) *Publisher {
	p := &Publisher{gc: gc, labels: DefaultLabels()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create opens a pull request from req.Branch onto req.BaseBranch. Labels
// are attached afterwards; a labelling failure is logged and ignored.
func (p *Publisher) Create(ctx context.Context, req Request) (*PullRequest, error) {
	body, err := Body(req)
	if err != nil {
		return nil, faults.New(faults.Publish, "rendering pull request body", err)
	}

	log := clog.FromContext(ctx).With("owner", req.Owner).With("repo", req.Repo)
	log.Infof("Creating PR with head %s and base %s", req.Branch, req.BaseBranch)

	pr, err := p.gc.CreatePullRequest(ctx, req.Owner, req.Repo, &github.NewPullRequest{
		Title: github.Ptr(Title(req.Description)),
		Body:  github.Ptr(body),
		Head:  github.Ptr(req.Branch),
		Base:  github.Ptr(req.BaseBranch),
	})
	if err != nil {
		return nil, faults.New(faults.Publish, "creating pull request", err)
	}

	if len(p.labels) > 0 {
		if _, err := p.gc.AddLabels(ctx, req.Owner, req.Repo, pr.GetNumber(), p.labels); err != nil {
			log.With("labels", strings.Join(p.labels, ",")).Warnf("Failed to label PR #%d: %v", pr.GetNumber(), err)
		}
	}

	log.Infof("Created PR #%d: %s", pr.GetNumber(), pr.GetHTMLURL())
	return &PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL()}, nil
}

// Title returns the pull request title for a task description.
func Title(description string) string {
	r := []rune(description)
	if len(r) > MaxTitleRunes {
		r = r[:MaxTitleRunes]
	}
	return "fix: " + string(r)
}

// Body renders the pull request description.
func Body(req Request) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("executing body template: %w", err)
	}
	return buf.String(), nil
}

func tail(s string) string {
	r := []rune(s)
	if len(r) > MaxTestOutputRunes {
		r = r[len(r)-MaxTestOutputRunes:]
	}
	return string(r)
}
