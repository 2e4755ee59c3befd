/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package faults defines the failure taxonomy shared by the fix pipeline
// stages. Every stage reports failures as a *Error tagged with the Kind of
// stage that failed, so callers can classify an error without knowing which
// package produced it.
package faults

import (
	"errors"
	"fmt"
)

// Kind identifies the pipeline stage a failure belongs to.
type Kind int

const (
	// Acquisition covers snapshot download and extraction failures.
	Acquisition Kind = iota + 1
	// Ref covers branch and reference API rejections.
	Ref
	// Generation covers model call failures and empty model responses.
	Generation
	// NoPatches is reported when the model produced nothing parseable.
	NoPatches
	// Apply covers filesystem write failures while applying patches.
	Apply
	// Publish covers commit and pull request creation failures.
	Publish
)

func (k Kind) String() string {
	switch k {
	case Acquisition:
		return "acquisition"
	case Ref:
		return "ref"
	case Generation:
		return "generation"
	case NoPatches:
		return "no patches"
	case Apply:
		return "apply"
	case Publish:
		return "publish"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrNoPatches is wrapped by NoPatches failures.
var ErrNoPatches = errors.New("no patches to apply: the model did not produce any file changes")

// Error is a stage failure. Op describes what the stage was doing.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New returns a *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String() + " failed"
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the outermost *Error in err's chain, or zero
// when err carries no stage classification.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Is reports whether any *Error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}
