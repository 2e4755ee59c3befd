/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package snapshot

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"chainguard.dev/bugfixer/hosting/guard"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "fix null pointer", want: "fix-null-pointer"},
		{in: "  Fix: the `parseConfig()` crash!! ", want: "fix-the-parseconfig-crash"},
		{in: "---leading and trailing---", want: "leading-and-trailing"},
		{in: "Ünïcödé letters", want: "n-c-d-letters"},
		{in: "!!!", want: "task"},
		{in: "", want: "task"},
		{in: strings.Repeat("a", 39) + " b", want: strings.Repeat("a", 39)},
		{in: strings.Repeat("word ", 20), want: "word-word-word-word-word-word-word-word"},
	}

	valid := regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Slug(tt.in)
			if got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if len(got) > MaxSlugLength {
				t.Errorf("Slug(%q) has length %d, want <= %d", tt.in, len(got), MaxSlugLength)
			}
			if !valid.MatchString(got) {
				t.Errorf("Slug(%q) = %q contains invalid characters", tt.in, got)
			}
		})
	}
}

func TestBranchNameUnique(t *testing.T) {
	gc, err := guard.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.UnixMilli(1_700_000_000_000)
	a, err := New(gc, t.TempDir(), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for range 50 {
		name := a.BranchName("fix null pointer")
		if !strings.HasPrefix(name, DefaultBranchPrefix+"fix-null-pointer-") {
			t.Fatalf("BranchName() = %q, unexpected shape", name)
		}
		if seen[name] {
			t.Fatalf("BranchName() returned duplicate %q", name)
		}
		seen[name] = true
	}
}

func TestCommitMessage(t *testing.T) {
	if got, want := CommitMessage("fix null pointer", "Added optional chaining."), "fix: fix null pointer\n\nAdded optional chaining."; got != want {
		t.Errorf("CommitMessage() = %q, want %q", got, want)
	}
	if got, want := CommitMessage("fix it", "  "), "fix: fix it"; got != want {
		t.Errorf("CommitMessage() = %q, want %q", got, want)
	}
	long := strings.Repeat("x", 200)
	if got := CommitMessage(long, ""); len(got) != len("fix: ")+120 {
		t.Errorf("CommitMessage() title length = %d, want %d", len(got), len("fix: ")+120)
	}
}
