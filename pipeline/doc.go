/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package pipeline sequences the fix stages for one task.

An Orchestrator acquires a repository snapshot, creates the fix branch,
selects context, asks the model for patches, applies them, runs the tests,
commits through the hosting API, and opens a pull request. Stages run
strictly in order and the first failure ends the run:

	o, err := pipeline.New(ctx, cfg)
	...
	res, err := o.Run(ctx, "octo", "widgets", "fix null pointer in parser", pipeline.Callbacks{
		OnProgress: func(label string) { ... },
		OnStepDone: func() { ... },
	})

Stream runs the same sequence and reports it as Events on a channel, and
WriteSSE encodes such a channel as server-sent events terminated by
"data: [DONE]".

Every stage can be replaced through an Option, which is how tests drive the
orchestrator without a network.
*/
package pipeline
