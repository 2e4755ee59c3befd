/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"

	"chainguard.dev/bugfixer/agents/fixer"
	"chainguard.dev/bugfixer/hosting/publisher"
	"chainguard.dev/bugfixer/hosting/snapshot"
	"chainguard.dev/bugfixer/workspace/contextbuilder"
	"chainguard.dev/bugfixer/workspace/patch"
	"chainguard.dev/bugfixer/workspace/testrunner"
)

// Workspace is an acquired repository snapshot.
type Workspace interface {
	Dir() string
	BaseBranch() string
	CreateBranch(ctx context.Context, description string) (string, error)
	CommitAndPush(ctx context.Context, branch, message string, paths []string) (bool, error)
	Cleanup() error
}

// Acquirer produces a Workspace for a repository.
type Acquirer interface {
	Acquire(ctx context.Context, owner, repo string) (Workspace, error)
}

// ContextBuilder selects what the model gets to see.
type ContextBuilder interface {
	Build(ctx context.Context, dir string, tc contextbuilder.TaskContext) (tree string, files []contextbuilder.RelevantFile, err error)
}

// Generator produces a fix.
type Generator interface {
	Generate(ctx context.Context, tc contextbuilder.TaskContext, tree string, files []contextbuilder.RelevantFile) (*fixer.FixResult, error)
}

// Applier writes patches under a root directory.
type Applier interface {
	Apply(root string, patches []patch.Patch) ([]string, error)
}

// TestRunner runs a project's tests.
type TestRunner interface {
	Run(ctx context.Context, dir string) testrunner.Outcome
}

// Publisher opens the pull request.
type Publisher interface {
	Create(ctx context.Context, req publisher.Request) (*publisher.PullRequest, error)
}

type snapshotAcquirer struct {
	acq *snapshot.Acquirer
}

func (s snapshotAcquirer) Acquire(ctx context.Context, owner, repo string) (Workspace, error) {
	snap, err := s.acq.Acquire(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

type treeContextBuilder struct {
	maxDepth int
}

func (b treeContextBuilder) Build(ctx context.Context, dir string, tc contextbuilder.TaskContext) (string, []contextbuilder.RelevantFile, error) {
	tree := contextbuilder.FormatTree(contextbuilder.BuildTree(dir, b.maxDepth))
	files, err := contextbuilder.SelectRelevantFiles(ctx, dir, tc)
	if err != nil {
		return "", nil, err
	}
	return tree, files, nil
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(root string, patches []patch.Patch) ([]string, error)

func (f ApplierFunc) Apply(root string, patches []patch.Patch) ([]string, error) {
	return f(root, patches)
}
