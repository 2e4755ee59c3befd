/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package snapshot

import (
	"archive/tar"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/bugfixer/faults"
	"chainguard.dev/bugfixer/hosting/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub serves the subset of the REST API the acquirer uses.
type fakeGitHub struct {
	archive []byte

	calls atomic.Int32

	mu       sync.Mutex
	blobs    map[string]string
	refs     map[string]string
	treeBody map[string]any
	commit   map[string]any
}

func newFakeGitHub(t *testing.T, archive []byte) (*fakeGitHub, *guard.Client) {
	t.Helper()
	f := &fakeGitHub{archive: archive, blobs: map[string]string{}, refs: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/octo/widgets", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"name": "widgets", "default_branch": "main"})
	})
	mux.HandleFunc("GET /api/v3/repos/octo/widgets/branches/main", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name": "main",
			"commit": map[string]any{
				"sha":    "base-sha",
				"commit": map[string]any{"tree": map[string]any{"sha": "base-tree"}},
			},
		})
	})
	mux.HandleFunc("GET /api/v3/repos/octo/widgets/tarball/base-sha", func(w http.ResponseWriter, _ *http.Request) {
		if f.archive == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_, _ = w.Write(f.archive)
	})
	mux.HandleFunc("POST /api/v3/repos/octo/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Ref, SHA string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.refs[body.Ref]; ok {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Reference already exists"})
			return
		}
		f.refs[body.Ref] = body.SHA
		writeJSON(w, http.StatusCreated, map[string]any{"ref": body.Ref, "object": map[string]any{"sha": body.SHA}})
	})
	mux.HandleFunc("POST /api/v3/repos/octo/widgets/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Content, Encoding string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		raw, err := base64.StdEncoding.DecodeString(body.Content)
		assert.NoError(t, err)
		f.mu.Lock()
		sha := "blob-" + string(raw)
		f.blobs[sha] = string(raw)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"sha": sha})
	})
	mux.HandleFunc("POST /api/v3/repos/octo/widgets/git/trees", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.treeBody = body
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"sha": "new-tree"})
	})
	mux.HandleFunc("POST /api/v3/repos/octo/widgets/git/commits", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.commit = body
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"sha": "new-commit"})
	})
	getRef := func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		sha, ok := f.refs["refs/heads/"+strings.TrimPrefix(r.PathValue("ref"), "heads/")]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/" + r.PathValue("ref"), "object": map[string]any{"sha": sha}})
	}
	mux.HandleFunc("GET /api/v3/repos/octo/widgets/git/ref/{ref...}", getRef)
	mux.HandleFunc("GET /api/v3/repos/octo/widgets/git/refs/{ref...}", getRef)
	mux.HandleFunc("PATCH /api/v3/repos/octo/widgets/git/refs/{ref...}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SHA   string
			Force bool
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.False(t, body.Force, "ref updates must never be forced")
		f.mu.Lock()
		f.refs["refs/"+r.PathValue("ref")] = body.SHA
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/" + r.PathValue("ref"), "object": map[string]any{"sha": body.SHA}})
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	gc, err := guard.New(srv.Client(), guard.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)
	return f, gc
}

func (f *fakeGitHub) ref(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs[name]
}

func (f *fakeGitHub) setRef(name, sha string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[name] = sha
}

func (f *fakeGitHub) lastTreeAndCommit() (map[string]any, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.treeBody, f.commit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testArchive(t *testing.T) []byte {
	return makeTarball(t,
		entry{hdr: tar.Header{Name: "octo-widgets-base/", Typeflag: tar.TypeDir, Mode: 0o755}},
		file("octo-widgets-base/src/a.js", "module.exports = x.y;"),
		file("octo-widgets-base/src/b.js", "module.exports = 1;"),
		entry{hdr: tar.Header{Name: "octo-widgets-base/run.sh", Typeflag: tar.TypeReg, Mode: 0o755}, content: "#!/bin/sh\n"},
	)
}

func TestAcquire(t *testing.T) {
	_, gc := newFakeGitHub(t, testArchive(t))
	root := t.TempDir()
	a, err := New(gc, root)
	require.NoError(t, err)

	snap, err := a.Acquire(context.Background(), "octo", "widgets")
	require.NoError(t, err)

	assert.Equal(t, "main", snap.BaseBranch())
	assert.Equal(t, "base-sha", snap.BaseCommit())
	assert.Equal(t, "base-tree", snap.BaseTree())
	assert.True(t, strings.HasPrefix(filepath.Base(snap.Dir()), "octo--widgets--"))
	assert.Equal(t, root, filepath.Dir(snap.Dir()))

	b, err := os.ReadFile(filepath.Join(snap.Dir(), "src", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = x.y;", string(b))

	// A second run against the same repository gets its own workspace.
	other, err := a.Acquire(context.Background(), "octo", "widgets")
	require.NoError(t, err)
	assert.NotEqual(t, snap.Dir(), other.Dir())

	require.NoError(t, snap.Cleanup())
	_, err = os.Stat(snap.Dir())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(other.Dir())
	assert.NoError(t, err)
}

func TestAcquireFailures(t *testing.T) {
	_, gc := newFakeGitHub(t, nil)
	root := t.TempDir()
	a, err := New(gc, root)
	require.NoError(t, err)

	_, err = a.Acquire(context.Background(), "octo", "widgets")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.Acquisition), "got %v", err)
	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries, "failed acquisition should leave no workspace behind")

	for _, name := range []string{"..", "a/b", "", "x y"} {
		_, err := a.Acquire(context.Background(), name, "widgets")
		assert.True(t, faults.Is(err, faults.Acquisition), "owner %q: got %v", name, err)
	}
}

func TestCreateBranch(t *testing.T) {
	f, gc := newFakeGitHub(t, testArchive(t))
	fixed := time.UnixMilli(1_700_000_000_000)
	a, err := New(gc, t.TempDir(), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	snap, err := a.Acquire(context.Background(), "octo", "widgets")
	require.NoError(t, err)

	name, err := snap.CreateBranch(context.Background(), "fix null pointer")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "ai-fix/fix-null-pointer-"), name)
	assert.Equal(t, "base-sha", f.ref("refs/heads/"+name))

	// Predict the next name and take it first.
	last := a.stamps.last.Load()
	f.setRef("refs/heads/"+a.BranchName("taken"), "x")
	a.stamps.last.Store(last)

	_, err = snap.CreateBranch(context.Background(), "taken")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.Ref), "got %v", err)
	assert.True(t, errors.Is(err, ErrRefExists), "got %v", err)
}

func TestCommitAndPush(t *testing.T) {
	f, gc := newFakeGitHub(t, testArchive(t))
	a, err := New(gc, t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	snap, err := a.Acquire(ctx, "octo", "widgets")
	require.NoError(t, err)
	branch, err := snap.CreateBranch(ctx, "fix null pointer")
	require.NoError(t, err)

	t.Run("empty list makes no calls", func(t *testing.T) {
		before := f.calls.Load()
		ok, err := snap.CommitAndPush(ctx, branch, "msg", nil)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, before, f.calls.Load())
	})

	t.Run("unchanged files are skipped", func(t *testing.T) {
		before := f.calls.Load()
		ok, err := snap.CommitAndPush(ctx, branch, "msg", []string{"src/a.js", "run.sh"})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, before, f.calls.Load())
	})

	t.Run("escaping paths are rejected", func(t *testing.T) {
		_, err := snap.CommitAndPush(ctx, branch, "msg", []string{"../../etc/passwd"})
		assert.True(t, faults.Is(err, faults.Publish), "got %v", err)
	})

	t.Run("symlinked parents cannot reach outside the workspace", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(snap.Dir()), "secret.txt"), []byte("token"), 0o600))
		require.NoError(t, os.MkdirAll(filepath.Join(snap.Dir(), "p", "q"), 0o755))
		require.NoError(t, os.Symlink("..", filepath.Join(snap.Dir(), "p", "q", "x")))
		require.NoError(t, os.Symlink("p/q/x/../..", filepath.Join(snap.Dir(), "z")))

		before := f.calls.Load()
		_, err := snap.CommitAndPush(ctx, branch, "msg", []string{"z/secret.txt"})
		assert.True(t, faults.Is(err, faults.Publish), "got %v", err)
		assert.Equal(t, before, f.calls.Load())
	})

	t.Run("changed files are committed", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(snap.Dir(), "src", "a.js"), []byte("module.exports = x?.y;"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(snap.Dir(), "src", "new"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(snap.Dir(), "src", "new", "c.sh"), []byte("echo"), 0o755))

		ok, err := snap.CommitAndPush(ctx, branch, "fix: fix null pointer", []string{"src/a.js", "src/b.js", "src/new/c.sh"})
		require.NoError(t, err)
		assert.True(t, ok)

		treeBody, commit := f.lastTreeAndCommit()
		assert.Equal(t, "base-tree", treeBody["base_tree"])
		tree, _ := treeBody["tree"].([]any)
		require.Len(t, tree, 2)
		first, _ := tree[0].(map[string]any)
		assert.Equal(t, "src/a.js", first["path"])
		assert.Equal(t, "100644", first["mode"])
		assert.Equal(t, "blob-module.exports = x?.y;", first["sha"])
		second, _ := tree[1].(map[string]any)
		assert.Equal(t, "src/new/c.sh", second["path"])
		assert.Equal(t, "100755", second["mode"])

		assert.Equal(t, "new-tree", commit["tree"])
		assert.Equal(t, []any{"base-sha"}, commit["parents"])
		assert.Equal(t, "new-commit", f.ref("refs/heads/"+branch))
	})
}

func TestCommitAndPushBranchMoved(t *testing.T) {
	f, gc := newFakeGitHub(t, testArchive(t))
	a, err := New(gc, t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	snap, err := a.Acquire(ctx, "octo", "widgets")
	require.NoError(t, err)
	branch, err := snap.CreateBranch(ctx, "race")
	require.NoError(t, err)

	f.setRef("refs/heads/"+branch, "someone-else")
	require.NoError(t, os.WriteFile(filepath.Join(snap.Dir(), "src", "b.js"), []byte("changed"), 0o644))

	_, err = snap.CommitAndPush(ctx, branch, "msg", []string{"src/b.js"})
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.Ref), "got %v", err)
	assert.Equal(t, "someone-else", f.ref("refs/heads/"+branch))
}
