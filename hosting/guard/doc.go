/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package guard provides a capability-restricted GitHub client for automation
// that acts on a real account.
//
// A Client exposes only the operations the fix pipeline needs: reading the
// repository, reading and creating refs, creating blobs, trees, and commits,
// fast-forwarding refs, opening pull requests, and labelling them. Each method
// checks its Operation against the client's allow-list before any request is
// built, so a refused call never reaches the network:
//
//	gc, err := guard.New(httpClient)
//	...
//	pr, err := gc.CreatePullRequest(ctx, owner, repo, &github.NewPullRequest{...})
//
// Destructive operations (deleting refs, force pushes, settings changes) have
// no method at all, and the underlying *github.Client is never handed out.
// Callers that need a name-based check, for example to validate an
// instruction before acting on it, can use Authorize, which fails closed for
// any operation name it does not recognise.
//
// The allow-list can be narrowed with WithAllowedOperations but never
// widened beyond DefaultAllowList.
package guard
