/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package guard

import "fmt"

// Operation names a class of hosting API calls.
type Operation string

const (
	OpRepositoryRead    Operation = "repository-read"
	OpRefRead           Operation = "ref-read"
	OpRefCreate         Operation = "ref-create"
	OpRefUpdate         Operation = "ref-update"
	OpBlobCreate        Operation = "blob-create"
	OpTreeCreate        Operation = "tree-create"
	OpCommitCreate      Operation = "commit-create"
	OpPullRequestCreate Operation = "pull-request-create"
	OpLabelAdd          Operation = "label-add"
)

// DefaultAllowList returns every operation a Client may ever perform.
func DefaultAllowList() []Operation {
	return []Operation{
		OpRepositoryRead,
		OpRefRead,
		OpRefCreate,
		OpRefUpdate,
		OpBlobCreate,
		OpTreeCreate,
		OpCommitCreate,
		OpPullRequestCreate,
		OpLabelAdd,
	}
}

// PermissionDeniedError is returned when an operation is not allow-listed.
type PermissionDeniedError struct {
	Operation Operation
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("guard: operation %q is blocked; the agent may only create pull requests and the git objects that back them", e.Operation)
}
