/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package snapshot

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"chainguard.dev/bugfixer/faults"
	"chainguard.dev/bugfixer/hosting/guard"
	"chainguard.dev/bugfixer/workspace/patch"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/go-github/v75/github"
	"golang.org/x/sync/errgroup"
)

const (
	modeFile       = "100644"
	modeExecutable = "100755"
)

// CreateBranch creates a new branch named after description, pointing at
// the captured base commit.
func (s *Snapshot) CreateBranch(ctx context.Context, description string) (string, error) {
	name := s.acq.BranchName(description)
	log := clog.FromContext(ctx).With("owner", s.owner, "repo", s.repo, "branch", name)

	if _, err := s.acq.gc.CreateRef(ctx, s.owner, s.repo, "refs/heads/"+name, s.baseCommit); err != nil {
		if guard.StatusCode(err) == http.StatusUnprocessableEntity {
			err = fmt.Errorf("%w: %w", ErrRefExists, err)
		}
		return "", faults.New(faults.Ref, "creating branch "+name, err)
	}
	log.Infof("Created branch at %s", s.baseCommit)
	return name, nil
}

type change struct {
	path    string
	mode    string
	content []byte
	hash    plumbing.Hash
}

// CommitAndPush publishes the listed paths as one commit on branch whose
// sole parent is the base commit. It reports false, without calling the
// hosting API, when there is nothing to publish: an empty list, or files
// that all still match the snapshot.
func (s *Snapshot) CommitAndPush(ctx context.Context, branch, message string, paths []string) (bool, error) {
	if len(paths) == 0 {
		return false, nil
	}
	log := clog.FromContext(ctx).With("owner", s.owner, "repo", s.repo, "branch", branch)

	changes, err := s.collect(paths)
	if err != nil {
		return false, err
	}
	if len(changes) == 0 {
		log.Info("All files match the base commit, nothing to commit")
		return false, nil
	}

	shas := make([]string, len(changes))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.acq.uploadConcurrency)
	for i, c := range changes {
		eg.Go(func() error {
			blob, err := s.acq.gc.CreateBlob(egctx, s.owner, s.repo, c.content)
			if err != nil {
				return fmt.Errorf("uploading %s: %w", c.path, err)
			}
			shas[i] = blob.GetSHA()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return false, faults.New(faults.Publish, "creating blobs", err)
	}

	entries := make([]*github.TreeEntry, 0, len(changes))
	for i, c := range changes {
		entries = append(entries, &github.TreeEntry{
			Path: github.Ptr(c.path),
			Mode: github.Ptr(c.mode),
			Type: github.Ptr("blob"),
			SHA:  github.Ptr(shas[i]),
		})
	}
	tree, err := s.acq.gc.CreateTree(ctx, s.owner, s.repo, s.baseTree, entries)
	if err != nil {
		return false, faults.New(faults.Publish, "creating tree", err)
	}

	commit, err := s.acq.gc.CreateCommit(ctx, s.owner, s.repo, message, tree.GetSHA(), []string{s.baseCommit})
	if err != nil {
		return false, faults.New(faults.Publish, "creating commit", err)
	}

	ref, err := s.acq.gc.GetRef(ctx, s.owner, s.repo, "heads/"+branch)
	if err != nil {
		return false, faults.New(faults.Ref, "reading branch "+branch, err)
	}
	if got := ref.GetObject().GetSHA(); got != s.baseCommit {
		return false, faults.New(faults.Ref, "reading branch "+branch, fmt.Errorf("branch moved to %s, expected %s", got, s.baseCommit))
	}
	if _, err := s.acq.gc.UpdateRef(ctx, s.owner, s.repo, "heads/"+branch, commit.GetSHA()); err != nil {
		return false, faults.New(faults.Ref, "updating branch "+branch, err)
	}

	for _, c := range changes {
		s.hashes[c.path] = c.hash
	}
	log.With("commit", commit.GetSHA()).Infof("Pushed %d files", len(changes))
	return true, nil
}

// collect reads each path from the workspace and keeps those whose content
// differs from the extracted snapshot.
func (s *Snapshot) collect(paths []string) ([]change, error) {
	r, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, faults.New(faults.Publish, "opening workspace", err)
	}
	defer r.Close()

	seen := make(map[string]struct{}, len(paths))
	var changes []change
	for _, p := range paths {
		rel, err := patch.CleanPath(p)
		if err != nil {
			return nil, faults.New(faults.Publish, "validating paths", err)
		}
		if _, ok := seen[rel]; ok {
			continue
		}
		seen[rel] = struct{}{}

		if _, err := patch.Resolve(s.dir, rel); err != nil {
			return nil, faults.New(faults.Publish, "validating paths", err)
		}
		name := filepath.FromSlash(rel)
		fi, err := r.Lstat(name)
		if err != nil {
			return nil, faults.New(faults.Publish, "reading "+rel, err)
		}
		if !fi.Mode().IsRegular() {
			return nil, faults.New(faults.Publish, "reading "+rel, fmt.Errorf("%s is not a regular file", rel))
		}
		content, err := r.ReadFile(name)
		if err != nil {
			return nil, faults.New(faults.Publish, "reading "+rel, err)
		}

		h := plumbing.ComputeHash(plumbing.BlobObject, content)
		if prev, ok := s.hashes[rel]; ok && prev == h {
			continue
		}
		mode := modeFile
		if fi.Mode().Perm()&0o111 != 0 {
			mode = modeExecutable
		}
		changes = append(changes, change{path: rel, mode: mode, content: content, hash: h})
	}
	return changes, nil
}

// CommitMessage formats the commit message for a fix.
func CommitMessage(description, explanation string) string {
	title := []rune(strings.TrimSpace(description))
	if len(title) > 120 {
		title = title[:120]
	}
	msg := "fix: " + string(title)
	if e := strings.TrimSpace(explanation); e != "" {
		msg += "\n\n" + e
	}
	return msg
}
