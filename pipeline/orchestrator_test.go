/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chainguard.dev/bugfixer/agents/fixer"
	"chainguard.dev/bugfixer/faults"
	"chainguard.dev/bugfixer/hosting/publisher"
	"chainguard.dev/bugfixer/workspace/contextbuilder"
	"chainguard.dev/bugfixer/workspace/patch"
	"chainguard.dev/bugfixer/workspace/testrunner"
	"github.com/google/go-cmp/cmp"
)

type fakeWorkspace struct {
	dir       string
	branchErr error
	commitErr error
	committed bool

	message string
	paths   []string
	commits int
	cleaned bool
}

func (w *fakeWorkspace) Dir() string        { return w.dir }
func (w *fakeWorkspace) BaseBranch() string { return "main" }

func (w *fakeWorkspace) CreateBranch(_ context.Context, _ string) (string, error) {
	if w.branchErr != nil {
		return "", w.branchErr
	}
	return "ai-fix/fix-null-pointer-abc", nil
}

func (w *fakeWorkspace) CommitAndPush(_ context.Context, _, message string, paths []string) (bool, error) {
	w.commits++
	w.message, w.paths = message, paths
	return w.committed, w.commitErr
}

func (w *fakeWorkspace) Cleanup() error {
	w.cleaned = true
	return nil
}

type fakeAcquirer struct {
	ws  *fakeWorkspace
	err error
}

func (a *fakeAcquirer) Acquire(context.Context, string, string) (Workspace, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.ws, nil
}

type fakeBuilder struct {
	files []contextbuilder.RelevantFile
}

func (b *fakeBuilder) Build(context.Context, string, contextbuilder.TaskContext) (string, []contextbuilder.RelevantFile, error) {
	return "src/\n  a.js", b.files, nil
}

type fakeGenerator struct {
	res *fixer.FixResult
	err error
	got contextbuilder.TaskContext
}

func (g *fakeGenerator) Generate(_ context.Context, tc contextbuilder.TaskContext, _ string, _ []contextbuilder.RelevantFile) (*fixer.FixResult, error) {
	g.got = tc
	return g.res, g.err
}

type fakeTests struct {
	outcome testrunner.Outcome
}

func (f fakeTests) Run(context.Context, string) testrunner.Outcome { return f.outcome }

type fakePublisher struct {
	req publisher.Request
	err error
}

func (p *fakePublisher) Create(_ context.Context, req publisher.Request) (*publisher.PullRequest, error) {
	p.req = req
	if p.err != nil {
		return nil, p.err
	}
	return &publisher.PullRequest{Number: 42, URL: "https://github.com/o/r/pull/42"}, nil
}

type harness struct {
	ws  *fakeWorkspace
	acq *fakeAcquirer
	gen *fakeGenerator
	pub *fakePublisher

	labels []string
	dones  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "a.js"), []byte("module.exports = x.y;"), 0o644); err != nil {
		t.Fatal(err)
	}
	ws := &fakeWorkspace{dir: dir, committed: true}
	return &harness{
		ws:  ws,
		acq: &fakeAcquirer{ws: ws},
		gen: &fakeGenerator{res: &fixer.FixResult{
			Patches:     []patch.Patch{{FilePath: "src/a.js", Content: "module.exports = x?.y;"}},
			Explanation: "Use optional chaining.",
		}},
		pub: &fakePublisher{},
	}
}

func (h *harness) orchestrator(t *testing.T, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	clock := []time.Time{time.Unix(100, 0), time.Unix(100, 0).Add(2500 * time.Millisecond)}
	opts = append([]Option{
		WithAcquirer(h.acq),
		WithContextBuilder(&fakeBuilder{files: []contextbuilder.RelevantFile{{Path: "src/a.js", Content: "module.exports = x.y;", Score: 1}}}),
		WithGenerator(h.gen),
		WithTestRunner(fakeTests{outcome: testrunner.Outcome{Passed: true}}),
		WithPublisher(h.pub),
		WithClock(func() time.Time {
			now := clock[0]
			if len(clock) > 1 {
				clock = clock[1:]
			}
			return now
		}),
	}, opts...)
	o, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return o
}

func (h *harness) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(label string) { h.labels = append(h.labels, label) },
		OnStepDone: func() { h.dones++ },
	}
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, Config{})

	res, err := o.Run(context.Background(), "o", "r", "fix null pointer", h.callbacks())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	want := &Result{
		Branch:       "ai-fix/fix-null-pointer-abc",
		PatchedFiles: []string{"src/a.js"},
		TestResult:   TestSummary{Passed: true, Skipped: false},
		PR:           &publisher.PullRequest{Number: 42, URL: "https://github.com/o/r/pull/42"},
		Elapsed:      Seconds(2.5),
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Run() (-want +got):\n%s", diff)
	}

	got, err := os.ReadFile(filepath.Join(h.ws.dir, "src", "a.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "module.exports = x?.y;" {
		t.Errorf("patched content = %q", got)
	}

	var wantLabels []string
	for _, s := range stages {
		wantLabels = append(wantLabels, s.label)
	}
	if diff := cmp.Diff(wantLabels, h.labels); diff != "" {
		t.Errorf("progress labels (-want +got):\n%s", diff)
	}
	if h.dones != len(stages) {
		t.Errorf("step done count = %d, want %d", h.dones, len(stages))
	}

	if h.gen.got != (contextbuilder.TaskContext{Title: "fix null pointer", Body: "fix null pointer"}) {
		t.Errorf("task context = %+v", h.gen.got)
	}
	if h.ws.message != "fix: fix null pointer\n\nUse optional chaining." {
		t.Errorf("commit message = %q", h.ws.message)
	}
	if diff := cmp.Diff([]string{"src/a.js"}, h.ws.paths); diff != "" {
		t.Errorf("committed paths (-want +got):\n%s", diff)
	}
	if h.pub.req.BaseBranch != "main" || h.pub.req.Branch != res.Branch || !h.pub.req.TestResult.Passed {
		t.Errorf("publisher request = %+v", h.pub.req)
	}
	if !h.ws.cleaned {
		t.Error("workspace was not cleaned up")
	}
}

func TestRunKeepWorkspace(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orchestrator(t, Config{KeepWorkspace: true}).Run(context.Background(), "o", "r", "fix null pointer", Callbacks{}); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if h.ws.cleaned {
		t.Error("workspace was cleaned up despite KeepWorkspace")
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*harness)
		kind    faults.Kind
		is      error
		labels  int
		commits int
	}{{
		name:   "acquisition",
		setup:  func(h *harness) { h.acq.err = faults.New(faults.Acquisition, "downloading", errors.New("404")) },
		kind:   faults.Acquisition,
		labels: 1,
	}, {
		name:   "branch",
		setup:  func(h *harness) { h.ws.branchErr = faults.New(faults.Ref, "creating ref", errors.New("422")) },
		kind:   faults.Ref,
		labels: 2,
	}, {
		name:   "generation",
		setup:  func(h *harness) { h.gen.err = faults.New(faults.Generation, "calling model", errors.New("500")) },
		kind:   faults.Generation,
		labels: 4,
	}, {
		name:   "no patches",
		setup:  func(h *harness) { h.gen.res = &fixer.FixResult{Explanation: "nothing"} },
		kind:   faults.NoPatches,
		is:     faults.ErrNoPatches,
		labels: 4,
	}, {
		name: "escaping patch",
		setup: func(h *harness) {
			h.gen.res = &fixer.FixResult{Patches: []patch.Patch{{FilePath: "../evil", Content: "x"}}}
		},
		kind:   faults.Apply,
		is:     patch.ErrPathEscapes,
		labels: 5,
	}, {
		name:    "nothing committed",
		setup:   func(h *harness) { h.ws.committed = false },
		kind:    faults.Publish,
		is:      ErrNothingCommitted,
		labels:  7,
		commits: 1,
	}, {
		name:    "pull request",
		setup:   func(h *harness) { h.pub.err = faults.New(faults.Publish, "creating pull request", errors.New("422")) },
		kind:    faults.Publish,
		labels:  8,
		commits: 1,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			res, err := h.orchestrator(t, Config{}).Run(context.Background(), "o", "r", "fix null pointer", h.callbacks())
			if err == nil {
				t.Fatalf("Run() = %+v, want error", res)
			}
			if !faults.Is(err, tt.kind) {
				t.Errorf("Run() = %v, want %v fault", err, tt.kind)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Run() = %v, want it to wrap %v", err, tt.is)
			}
			if len(h.labels) != tt.labels {
				t.Errorf("stages started = %d, want %d (%v)", len(h.labels), tt.labels, h.labels)
			}
			if h.dones != tt.labels-1 {
				t.Errorf("stages finished = %d, want %d", h.dones, tt.labels-1)
			}
			if h.ws.commits != tt.commits {
				t.Errorf("commits = %d, want %d", h.ws.commits, tt.commits)
			}
			if tt.kind != faults.Acquisition && !h.ws.cleaned {
				t.Error("workspace was not cleaned up after failure")
			}
		})
	}
}

type cancellingTests struct {
	cancel context.CancelFunc
}

func (c cancellingTests) Run(context.Context, string) testrunner.Outcome {
	c.cancel()
	return testrunner.Outcome{Output: "interrupted"}
}

func TestRunStopsWhenCancelledDuringTests(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := h.orchestrator(t, Config{}, WithTestRunner(cancellingTests{cancel: cancel}))

	_, err := o.Run(ctx, "o", "r", "fix null pointer", h.callbacks())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if len(h.labels) != 6 || h.dones != 5 {
		t.Errorf("stages started/finished = %d/%d, want 6/5", len(h.labels), h.dones)
	}
	if h.ws.commits != 0 {
		t.Errorf("commits = %d, want 0", h.ws.commits)
	}
	if h.pub.req.Branch != "" {
		t.Errorf("publisher was called with %+v", h.pub.req)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	gen := WithGenerator(&fakeGenerator{})

	if _, err := New(ctx, Config{WorkspaceDir: t.TempDir()}, gen); err == nil {
		t.Error("New() without a hosting token succeeded")
	}
	if _, err := New(ctx, Config{HostToken: "t"}, gen); err == nil {
		t.Error("New() without a workspace directory succeeded")
	}
	if _, err := New(ctx, Config{HostToken: "t", WorkspaceDir: t.TempDir()}); err == nil {
		t.Error("New() without model credentials succeeded")
	}

	o, err := New(ctx, Config{HostToken: "t", WorkspaceDir: t.TempDir(), ModelAPIKey: "k"})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if _, ok := o.acquirer.(snapshotAcquirer); !ok {
		t.Errorf("acquirer = %T, want snapshotAcquirer", o.acquirer)
	}
	if _, ok := o.generator.(*fixer.Generator); !ok {
		t.Errorf("generator = %T, want *fixer.Generator", o.generator)
	}
	if diff := cmp.Diff(publisher.DefaultLabels(), o.cfg.Labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
}
