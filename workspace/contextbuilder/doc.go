/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package contextbuilder selects the part of a repository a model gets to
// see for a task: a pruned directory tree and a relevance-ranked set of
// source files.
//
// Relevance is a term-matching heuristic. Terms are the task's back-tick
// code spans and its words longer than three characters. A file earns five
// points for every term found in its path and one point for every other
// term found in its content. Zero-score files are dropped and at most
// MaxRelevantFiles survive.
package contextbuilder
