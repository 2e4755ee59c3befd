/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package snapshot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"chainguard.dev/bugfixer/faults"
	"chainguard.dev/bugfixer/hosting/guard"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDownloadTimeout bounds a single archive download.
	DefaultDownloadTimeout = 5 * time.Minute
	// DefaultBranchPrefix is prepended to every fix branch.
	DefaultBranchPrefix = "ai-fix/"
	// DefaultUploadConcurrency bounds parallel blob uploads.
	DefaultUploadConcurrency = 4
)

// ErrRefExists is wrapped when the hosting provider refuses to create a
// branch because the name is taken.
var ErrRefExists = errors.New("reference already exists")

var repoName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Acquirer downloads repository snapshots into per-run workspaces.
type Acquirer struct {
	gc                *guard.Client
	root              string
	downloadTimeout   time.Duration
	branchPrefix      string
	uploadConcurrency int
	stamps            *stamper
}

// Option configures an Acquirer.
type Option func(*Acquirer) error

// WithDownloadTimeout overrides DefaultDownloadTimeout.
func WithDownloadTimeout(d time.Duration) Option {
	return func(a *Acquirer) error {
		if d <= 0 {
			return errors.New("download timeout must be positive")
		}
		a.downloadTimeout = d
		return nil
	}
}

// WithBranchPrefix overrides DefaultBranchPrefix.
func WithBranchPrefix(prefix string) Option {
	return func(a *Acquirer) error {
		a.branchPrefix = prefix
		return nil
	}
}

// WithUploadConcurrency overrides DefaultUploadConcurrency.
func WithUploadConcurrency(n int) Option {
	return func(a *Acquirer) error {
		if n < 1 {
			return errors.New("upload concurrency must be at least 1")
		}
		a.uploadConcurrency = n
		return nil
	}
}

// WithClock replaces the clock used for branch name timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Acquirer) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		a.stamps.now = now
		return nil
	}
}

// New creates an Acquirer that extracts snapshots under workspaceDir.
func New(gc *guard.Client, workspaceDir string, opts ...Option) (*Acquirer, error) {
	if gc == nil {
		return nil, errors.New("hosting client cannot be nil")
	}
	if workspaceDir == "" {
		return nil, errors.New("workspace directory cannot be empty")
	}
	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace directory: %w", err)
	}

	a := &Acquirer{
		gc:                gc,
		root:              abs,
		downloadTimeout:   DefaultDownloadTimeout,
		branchPrefix:      DefaultBranchPrefix,
		uploadConcurrency: DefaultUploadConcurrency,
		stamps:            &stamper{now: time.Now},
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	return a, nil
}

// Snapshot is an extracted repository at a captured base commit.
type Snapshot struct {
	acq        *Acquirer
	owner      string
	repo       string
	dir        string
	baseBranch string
	baseCommit string
	baseTree   string
	hashes     map[string]plumbing.Hash
}

// Acquire resolves owner/repo's default branch and extracts its head commit
// into a fresh workspace.
func (a *Acquirer) Acquire(ctx context.Context, owner, repo string) (*Snapshot, error) {
	if err := validateName(owner); err != nil {
		return nil, faults.New(faults.Acquisition, "validating owner", err)
	}
	if err := validateName(repo); err != nil {
		return nil, faults.New(faults.Acquisition, "validating repository", err)
	}
	log := clog.FromContext(ctx).With("owner", owner, "repo", repo)

	r, err := a.gc.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, faults.New(faults.Acquisition, "reading repository", err)
	}
	baseBranch := r.GetDefaultBranch()
	if baseBranch == "" {
		return nil, faults.New(faults.Acquisition, "reading repository", errors.New("repository has no default branch"))
	}

	br, err := a.gc.GetBranch(ctx, owner, repo, baseBranch)
	if err != nil {
		return nil, faults.New(faults.Acquisition, "reading branch "+baseBranch, err)
	}
	baseCommit := br.GetCommit().GetSHA()
	baseTree := br.GetCommit().GetCommit().GetTree().GetSHA()
	if baseCommit == "" || baseTree == "" {
		return nil, faults.New(faults.Acquisition, "reading branch "+baseBranch, errors.New("branch head is missing commit or tree"))
	}

	runID, err := newRunID()
	if err != nil {
		return nil, faults.New(faults.Acquisition, "allocating workspace", err)
	}
	dir := filepath.Join(a.root, fmt.Sprintf("%s--%s--%s", owner, repo, runID))
	if err := os.RemoveAll(dir); err != nil {
		return nil, faults.New(faults.Acquisition, "clearing workspace", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, faults.New(faults.Acquisition, "creating workspace", err)
	}

	log.With("branch", baseBranch, "commit", baseCommit).Infof("Downloading snapshot into %s", dir)
	hashes, err := a.download(ctx, owner, repo, baseCommit, dir)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warnf("Failed to remove workspace %s: %v", dir, rmErr)
		}
		return nil, faults.New(faults.Acquisition, "downloading snapshot", err)
	}
	log.Infof("Extracted %d files", len(hashes))

	return &Snapshot{
		acq:        a,
		owner:      owner,
		repo:       repo,
		dir:        dir,
		baseBranch: baseBranch,
		baseCommit: baseCommit,
		baseTree:   baseTree,
		hashes:     hashes,
	}, nil
}

// download streams the archive straight into the extractor.
func (a *Acquirer) download(ctx context.Context, owner, repo, sha, dir string) (map[string]plumbing.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, a.downloadTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	var hashes map[string]plumbing.Hash
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := a.gc.DownloadTarball(ctx, owner, repo, sha, pw)
		pw.CloseWithError(err)
		return err
	})
	eg.Go(func() error {
		var err error
		hashes, err = extract(ctx, pr, dir)
		pr.CloseWithError(err)
		if err == nil {
			// Drain any trailing bytes so the writer can finish.
			_, _ = io.Copy(io.Discard, pr)
		}
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// Dir is the workspace directory holding the extracted files.
func (s *Snapshot) Dir() string { return s.dir }

// Owner is the repository owner.
func (s *Snapshot) Owner() string { return s.owner }

// Repo is the repository name.
func (s *Snapshot) Repo() string { return s.repo }

// BaseBranch is the default branch captured at acquisition.
func (s *Snapshot) BaseBranch() string { return s.baseBranch }

// BaseCommit is the commit every published change descends from.
func (s *Snapshot) BaseCommit() string { return s.baseCommit }

// BaseTree is the root tree of BaseCommit.
func (s *Snapshot) BaseTree() string { return s.baseTree }

// Cleanup removes the workspace directory.
func (s *Snapshot) Cleanup() error {
	return os.RemoveAll(s.dir)
}

func validateName(name string) error {
	if name == "." || name == ".." || !repoName.MatchString(name) {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

func newRunID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
