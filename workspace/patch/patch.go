/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package patch applies full-file replacements produced by the fix
// generator to an extracted repository snapshot.
package patch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"chainguard.dev/bugfixer/faults"
)

// ErrPathEscapes is wrapped by every error for a path that is absolute,
// contains a parent-directory segment, or otherwise resolves outside the
// repository root.
var ErrPathEscapes = errors.New("path escapes the repository root")

// Patch replaces the whole content of one file. FilePath is relative to the
// repository root and uses forward slashes.
type Patch struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// CleanPath normalises a repository-relative path and rejects anything that
// could land outside the root.
func CleanPath(p string) (string, error) {
	raw := strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if raw == "" {
		return "", fmt.Errorf("empty path: %w", ErrPathEscapes)
	}
	if strings.HasPrefix(raw, "/") || filepath.IsAbs(raw) || filepath.VolumeName(raw) != "" {
		return "", fmt.Errorf("path %q is absolute: %w", p, ErrPathEscapes)
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path %q: %w", p, ErrPathEscapes)
		}
	}
	cleaned := path.Clean(raw)
	if cleaned == "." {
		return "", fmt.Errorf("path %q names the root: %w", p, ErrPathEscapes)
	}
	if cleaned == ".git" || strings.HasPrefix(cleaned, ".git/") {
		return "", fmt.Errorf("path %q is inside git metadata: %w", p, ErrPathEscapes)
	}
	return cleaned, nil
}

// Resolve joins a cleaned relative path onto root and confirms the result is
// still inside root.
func Resolve(root, rel string) (string, error) {
	cleaned, err := CleanPath(rel)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(cleaned))
	r, err := filepath.Rel(root, full)
	if err != nil {
		return "", fmt.Errorf("path %q: %w", rel, err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q: %w", rel, ErrPathEscapes)
	}
	return full, nil
}

// Apply writes every patch under root and returns the patched paths in the
// order they first appear. All paths are validated before anything is
// written, so a single bad path leaves the tree untouched. When a path
// appears more than once the last patch wins. Every access goes through an
// os.Root, so a symlink anywhere along a path cannot lead outside root.
func Apply(root string, patches []Patch) ([]string, error) {
	if len(patches) == 0 {
		return nil, faults.New(faults.NoPatches, "", faults.ErrNoPatches)
	}

	type target struct {
		name, content string
		mode          fs.FileMode
	}
	var order []string
	byPath := make(map[string]*target, len(patches))
	for _, p := range patches {
		rel, err := CleanPath(p.FilePath)
		if err != nil {
			return nil, faults.New(faults.Apply, "validating patch paths", err)
		}
		if _, err := Resolve(root, rel); err != nil {
			return nil, faults.New(faults.Apply, "validating patch paths", err)
		}
		if t, ok := byPath[rel]; ok {
			t.content = p.Content
			continue
		}
		byPath[rel] = &target{name: filepath.FromSlash(rel), content: p.Content}
		order = append(order, rel)
	}

	r, err := os.OpenRoot(root)
	if err != nil {
		return nil, faults.New(faults.Apply, "opening workspace", err)
	}
	defer r.Close()

	for _, rel := range order {
		t := byPath[rel]
		mode, err := existingMode(r, t.name)
		if err != nil {
			return nil, faults.New(faults.Apply, "validating patch paths", fmt.Errorf("path %q: %w", rel, err))
		}
		t.mode = mode
	}

	for _, rel := range order {
		t := byPath[rel]
		if err := write(r, t.name, t.content, t.mode); err != nil {
			return nil, faults.New(faults.Apply, "writing "+rel, err)
		}
	}
	return order, nil
}

// existingMode returns the permissions to write name with: those of the
// regular file already there, or 0644 for a new file. Anything else at
// name, or a path that leaves the root, is an error.
func existingMode(r *os.Root, name string) (fs.FileMode, error) {
	fi, err := r.Lstat(name)
	switch {
	case err == nil && fi.Mode().IsRegular():
		return fi.Mode().Perm(), nil
	case err == nil:
		return 0, errors.New("not a regular file")
	case errors.Is(err, fs.ErrNotExist):
		return 0o644, nil
	}
	return 0, err
}

func write(r *os.Root, name, content string, mode fs.FileMode) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := r.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return r.WriteFile(name, []byte(content), mode)
}
