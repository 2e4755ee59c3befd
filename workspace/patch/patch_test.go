/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package patch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"chainguard.dev/bugfixer/faults"
	"github.com/google/go-cmp/cmp"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "src/a.js", want: "src/a.js"},
		{in: "./src/a.js", want: "src/a.js"},
		{in: `src\win\b.go`, want: "src/win/b.go"},
		{in: "src//c.py", want: "src/c.py"},
		{in: "  lib/d.rb  ", want: "lib/d.rb"},
		{in: "", wantErr: true},
		{in: ".", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "../outside.txt", wantErr: true},
		{in: "src/../../outside.txt", wantErr: true},
		{in: "src/..", wantErr: true},
		{in: ".git/config", wantErr: true},
		{in: ".github/workflows/ci.yml", want: ".github/workflows/ci.yml"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrPathEscapes) {
					t.Fatalf("CleanPath(%q) error = %v, want ErrPathEscapes", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanPath(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyEmpty(t *testing.T) {
	_, err := Apply(t.TempDir(), nil)
	if !faults.Is(err, faults.NoPatches) {
		t.Fatalf("Apply(nil) error = %v, want NoPatches fault", err)
	}
	if !errors.Is(err, faults.ErrNoPatches) {
		t.Errorf("Apply(nil) error = %v, want ErrNoPatches", err)
	}
}

func TestApplyWritesEveryPatch(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "existing.sh"), []byte("old"), 0o755); err != nil {
		t.Fatal(err)
	}

	patches := []Patch{
		{FilePath: "src/a.js", Content: "module.exports = x?.y;"},
		{FilePath: "deep/nested/dir/b.go", Content: "package dir\n"},
		{FilePath: "existing.sh", Content: "#!/bin/sh\necho new\n"},
	}
	got, err := Apply(root, patches)
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	want := []string{"src/a.js", "deep/nested/dir/b.go", "existing.sh"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Apply() paths (-want +got):\n%s", diff)
	}

	for _, p := range patches {
		b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p.FilePath)))
		if err != nil {
			t.Fatalf("reading %s: %v", p.FilePath, err)
		}
		if string(b) != p.Content {
			t.Errorf("%s = %q, want %q", p.FilePath, b, p.Content)
		}
	}

	fi, err := os.Stat(filepath.Join(root, "existing.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm()&0o100 == 0 {
		t.Errorf("existing.sh lost its executable bit: %v", fi.Mode())
	}
}

func TestApplyDuplicatePathLastWins(t *testing.T) {
	root := t.TempDir()
	got, err := Apply(root, []Patch{
		{FilePath: "a.txt", Content: "first"},
		{FilePath: "./a.txt", Content: "second"},
	})
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if diff := cmp.Diff([]string{"a.txt"}, got); diff != "" {
		t.Errorf("Apply() paths (-want +got):\n%s", diff)
	}
	b, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(b) != "second" {
		t.Errorf("a.txt = %q, want %q", b, "second")
	}
}

func TestApplyRejectsEscapingPathBeforeWriting(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "repo")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := Apply(root, []Patch{
		{FilePath: "ok.txt", Content: "fine"},
		{FilePath: "../escaped.txt", Content: "nope"},
	})
	if !faults.Is(err, faults.Apply) {
		t.Fatalf("Apply() error = %v, want Apply fault", err)
	}
	if !errors.Is(err, ErrPathEscapes) {
		t.Errorf("Apply() error = %v, want ErrPathEscapes", err)
	}
	for _, p := range []string{filepath.Join(root, "ok.txt"), filepath.Join(parent, "escaped.txt")} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist, stat err = %v", p, err)
		}
	}
}

func TestApplyRefusesSymlinkChainOutOfRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "repo")
	if err := os.MkdirAll(filepath.Join(root, "p", "q"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Each link looks contained on its own; together z names root's parent.
	if err := os.Symlink("..", filepath.Join(root, "p", "q", "x")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink("p/q/x/../..", filepath.Join(root, "z")); err != nil {
		t.Fatal(err)
	}

	_, err := Apply(root, []Patch{
		{FilePath: "ok.txt", Content: "fine"},
		{FilePath: "z/pwned.txt", Content: "nope"},
	})
	if !faults.Is(err, faults.Apply) {
		t.Fatalf("Apply() error = %v, want Apply fault", err)
	}
	for _, p := range []string{filepath.Join(parent, "pwned.txt"), filepath.Join(root, "ok.txt")} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist, stat err = %v", p, err)
		}
	}
}

func TestApplyRefusesSymlinkedTarget(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "real.txt"), []byte("real"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("real.txt", filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := Apply(root, []Patch{{FilePath: "link.txt", Content: "changed"}}); !faults.Is(err, faults.Apply) {
		t.Fatalf("Apply() error = %v, want Apply fault", err)
	}
	if b, _ := os.ReadFile(filepath.Join(root, "real.txt")); string(b) != "real" {
		t.Errorf("real.txt = %q, want it untouched", b)
	}
}
