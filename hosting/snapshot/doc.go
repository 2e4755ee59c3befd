/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package snapshot acquires repository contents without a git working copy
// and publishes changes back through the hosting API's object endpoints.
//
// An Acquirer resolves a repository's default branch, captures its head
// commit and root tree, and extracts the commit's tarball into a per-run
// workspace directory:
//
//	acq, err := snapshot.New(gc, "/tmp/workspaces")
//	...
//	snap, err := acq.Acquire(ctx, "octo", "widgets")
//	...
//	defer snap.Cleanup()
//
// The captured commit is the parent of everything the Snapshot publishes.
// CreateBranch points a new ref at it, and CommitAndPush builds a single
// commit from blobs and a tree layered over the captured root tree, then
// fast-forwards the branch to it. Files whose content still matches the
// extracted blob are left out of the commit.
package snapshot
