/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package testrunner detects a project's test ecosystem and runs its test
// suite under a timeout.
//
// Strategies are tried in order (npm, pytest, go, cargo, maven) and the
// first whose marker file exists wins. A project with no recognised marker,
// or whose manifest declares no test command, is reported as skipped and
// passing. Commands run through an Executor so tests can observe them.
package testrunner
