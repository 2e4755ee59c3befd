/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package snapshot

import (
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// MaxSlugLength bounds the description-derived part of a branch name.
const MaxSlugLength = 40

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a branch-safe token from a task description: lowercased,
// runs of anything but [a-z0-9] collapsed to one hyphen, no leading or
// trailing hyphen, at most MaxSlugLength characters.
func Slug(description string) string {
	s := nonAlphanumeric.ReplaceAllString(strings.ToLower(description), "-")
	s = strings.TrimLeft(s, "-")
	if len(s) > MaxSlugLength {
		s = s[:MaxSlugLength]
	}
	s = strings.TrimRight(s, "-")
	if s == "" {
		return "task"
	}
	return s
}

// stamper hands out millisecond timestamps that never repeat, even when
// called twice within the same millisecond.
type stamper struct {
	now  func() time.Time
	last atomic.Int64
}

func (s *stamper) next() int64 {
	for {
		n := s.now().UnixMilli()
		prev := s.last.Load()
		if n <= prev {
			n = prev + 1
		}
		if s.last.CompareAndSwap(prev, n) {
			return n
		}
	}
}

// BranchName returns prefix + slug + "-" + a base-36 timestamp.
func (a *Acquirer) BranchName(description string) string {
	return a.branchPrefix + Slug(description) + "-" + strconv.FormatInt(a.stamps.next(), 36)
}
