/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chainguard.dev/bugfixer/agents/fixer"
	"chainguard.dev/bugfixer/agents/model"
	"chainguard.dev/bugfixer/faults"
	"chainguard.dev/bugfixer/hosting/guard"
	"chainguard.dev/bugfixer/hosting/publisher"
	"chainguard.dev/bugfixer/hosting/snapshot"
	"chainguard.dev/bugfixer/workspace/contextbuilder"
	"chainguard.dev/bugfixer/workspace/patch"
	"chainguard.dev/bugfixer/workspace/testrunner"
	"github.com/chainguard-dev/clog"
	"golang.org/x/oauth2"
)

// ErrNothingCommitted is wrapped when every patched file matched the
// snapshot, so there was nothing to push.
var ErrNothingCommitted = errors.New("nothing was committed: the fix did not change any files")

type stage string

const (
	stageAcquire stage = "acquire"
	stageBranch  stage = "branch"
	stageContext stage = "context"
	stageGen     stage = "generate"
	stageApply   stage = "apply"
	stageTest    stage = "test"
	stagePublish stage = "publish"
	stagePR      stage = "pull_request"
)

// stages lists every stage in execution order with its progress label.
var stages = []struct {
	stage stage
	label string
}{
	{stageAcquire, "Acquiring repository snapshot…"},
	{stageBranch, "Creating fix branch…"},
	{stageContext, "Analyzing codebase…"},
	{stageGen, "Generating fix…"},
	{stageApply, "Applying patches…"},
	{stageTest, "Running tests…"},
	{stagePublish, "Committing and pushing…"},
	{stagePR, "Creating pull request…"},
}

func labelFor(s stage) string {
	for _, st := range stages {
		if st.stage == s {
			return st.label
		}
	}
	return string(s)
}

// Callbacks receive progress synchronously from Run. Either may be nil.
type Callbacks struct {
	// OnProgress is called with a label before each stage starts.
	OnProgress func(label string)
	// OnStepDone is called after each stage completes.
	OnStepDone func()
}

// Seconds is a duration in seconds, encoded with one decimal place.
type Seconds float64

func (s Seconds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(s), 'f', 1, 64)), nil
}

// TestSummary is the part of a test outcome reported to callers.
type TestSummary struct {
	Passed  bool `json:"passed"`
	Skipped bool `json:"skipped"`
}

// Result is the outcome of a successful run.
type Result struct {
	Branch       string                 `json:"branch"`
	PatchedFiles []string               `json:"patchedFiles"`
	TestResult   TestSummary            `json:"testResult"`
	PR           *publisher.PullRequest `json:"pr"`
	Elapsed      Seconds                `json:"elapsed"`
}

// Orchestrator runs the fix pipeline.
type Orchestrator struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	acquirer  Acquirer
	builder   ContextBuilder
	generator Generator
	applier   Applier
	tests     TestRunner
	publisher Publisher
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAcquirer replaces the snapshot acquirer.
func WithAcquirer(a Acquirer) Option {
	return func(o *Orchestrator) { o.acquirer = a }
}

// WithContextBuilder replaces the context builder.
func WithContextBuilder(b ContextBuilder) Option {
	return func(o *Orchestrator) { o.builder = b }
}

// WithGenerator replaces the model-backed fix generator.
func WithGenerator(g Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithApplier replaces the patch applier.
func WithApplier(a Applier) Option {
	return func(o *Orchestrator) { o.applier = a }
}

// WithTestRunner replaces the test runner.
func WithTestRunner(r TestRunner) Option {
	return func(o *Orchestrator) { o.tests = r }
}

// WithPublisher replaces the pull request publisher.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithHTTPClient supplies an authenticated client for the hosting API,
// for example one backed by a GitHub App installation. Config.HostToken is
// ignored when set.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Orchestrator) { o.httpClient = hc }
}

// WithClock overrides time.Now for elapsed-time reporting.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an Orchestrator. Stages not supplied through options are
// constructed from cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	if o.acquirer == nil || o.publisher == nil {
		gc, err := o.guardClient(ctx)
		if err != nil {
			return nil, err
		}
		if o.acquirer == nil {
			if o.cfg.WorkspaceDir == "" {
				return nil, errors.New("workspace directory is required")
			}
			acq, err := snapshot.New(gc, o.cfg.WorkspaceDir, snapshot.WithDownloadTimeout(o.cfg.DownloadTimeout))
			if err != nil {
				return nil, fmt.Errorf("creating acquirer: %w", err)
			}
			o.acquirer = snapshotAcquirer{acq: acq}
		}
		if o.publisher == nil {
			o.publisher = publisher.New(gc, publisher.WithLabels(o.cfg.Labels...))
		}
	}
	if o.builder == nil {
		o.builder = treeContextBuilder{maxDepth: contextbuilder.DefaultMaxDepth}
	}
	if o.generator == nil {
		m, err := model.New(ctx, model.Config{
			Name:          o.cfg.ModelName,
			APIKey:        o.cfg.ModelAPIKey,
			VertexProject: o.cfg.VertexProject,
			VertexRegion:  o.cfg.VertexRegion,
		})
		if err != nil {
			return nil, fmt.Errorf("creating model: %w", err)
		}
		o.generator = fixer.New(m)
	}
	if o.applier == nil {
		o.applier = ApplierFunc(patch.Apply)
	}
	if o.tests == nil {
		o.tests = testrunner.New(
			testrunner.WithSandbox(o.cfg.Sandboxed),
			testrunner.WithTestTimeout(o.cfg.TestTimeout),
			testrunner.WithInstallTimeout(o.cfg.InstallTimeout),
		)
	}
	return o, nil
}

func (o *Orchestrator) guardClient(ctx context.Context) (*guard.Client, error) {
	hc := o.httpClient
	if hc == nil {
		if o.cfg.HostToken == "" {
			return nil, errors.New("a hosting API token is required")
		}
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.cfg.HostToken}))
	}
	var opts []guard.Option
	if o.cfg.GitHubBaseURL != "" {
		opts = append(opts, guard.WithBaseURL(o.cfg.GitHubBaseURL))
	}
	gc, err := guard.New(hc, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating hosting client: %w", err)
	}
	return gc, nil
}

// Run executes every stage for one task. The first failing stage ends the
// run and its error is returned; no later stage is attempted.
func (o *Orchestrator) Run(ctx context.Context, owner, repo, description string, cb Callbacks) (res *Result, err error) {
	start := o.now()
	log := clog.FromContext(ctx).With("owner", owner).With("repo", repo)
	ctx = clog.WithLogger(ctx, log)
	defer func() {
		runsCounter.WithLabelValues(runOutcome(err)).Inc()
		if err != nil {
			log.Warnf("Fix run failed: %v", err)
		}
	}()

	step := func(s stage, fn func(context.Context) error) error {
		label := labelFor(s)
		log.With("stage", string(s)).Info(label)
		if cb.OnProgress != nil {
			cb.OnProgress(label)
		}
		if err := observe(ctx, s, fn); err != nil {
			return err
		}
		if cb.OnStepDone != nil {
			cb.OnStepDone()
		}
		return nil
	}

	var ws Workspace
	if err := step(stageAcquire, func(ctx context.Context) error {
		var err error
		ws, err = o.acquirer.Acquire(ctx, owner, repo)
		return err
	}); err != nil {
		return nil, err
	}
	if !o.cfg.KeepWorkspace {
		defer func() {
			if err := ws.Cleanup(); err != nil {
				log.Warnf("Failed to remove workspace %s: %v", ws.Dir(), err)
			}
		}()
	}

	var branch string
	if err := step(stageBranch, func(ctx context.Context) error {
		var err error
		branch, err = ws.CreateBranch(ctx, description)
		return err
	}); err != nil {
		return nil, err
	}
	log = log.With("branch", branch)

	tc := contextbuilder.NewTaskContext(description)
	var (
		tree  string
		files []contextbuilder.RelevantFile
	)
	if err := step(stageContext, func(ctx context.Context) error {
		var err error
		tree, files, err = o.builder.Build(ctx, ws.Dir(), tc)
		return err
	}); err != nil {
		return nil, err
	}

	var fix *fixer.FixResult
	if err := step(stageGen, func(ctx context.Context) error {
		var err error
		if fix, err = o.generator.Generate(ctx, tc, tree, files); err != nil {
			return err
		}
		if len(fix.Patches) == 0 {
			return faults.New(faults.NoPatches, "generating fix", faults.ErrNoPatches)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var patched []string
	if err := step(stageApply, func(context.Context) error {
		var err error
		patched, err = o.applier.Apply(ws.Dir(), fix.Patches)
		return err
	}); err != nil {
		return nil, err
	}

	var outcome testrunner.Outcome
	if err := step(stageTest, func(ctx context.Context) error {
		outcome = o.tests.Run(ctx, ws.Dir())
		return ctx.Err()
	}); err != nil {
		return nil, err
	}

	if err := step(stagePublish, func(ctx context.Context) error {
		committed, err := ws.CommitAndPush(ctx, branch, snapshot.CommitMessage(description, fix.Explanation), patched)
		if err != nil {
			return err
		}
		if !committed {
			return faults.New(faults.Publish, "committing", ErrNothingCommitted)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var pr *publisher.PullRequest
	if err := step(stagePR, func(ctx context.Context) error {
		var err error
		pr, err = o.publisher.Create(ctx, publisher.Request{
			Owner:        owner,
			Repo:         repo,
			Branch:       branch,
			BaseBranch:   ws.BaseBranch(),
			Description:  description,
			Explanation:  fix.Explanation,
			PatchedFiles: patched,
			TestResult:   outcome,
		})
		return err
	}); err != nil {
		return nil, err
	}

	res = &Result{
		Branch:       branch,
		PatchedFiles: patched,
		TestResult:   TestSummary{Passed: outcome.Passed, Skipped: outcome.Skipped},
		PR:           pr,
		Elapsed:      Seconds(o.now().Sub(start).Seconds()),
	}
	log.Infof("Opened %s in %.1fs", pr.URL, float64(res.Elapsed))
	return res, nil
}

func faultKind(err error) string {
	if k := faults.KindOf(err); k != 0 {
		return k.String()
	}
	var pde *guard.PermissionDeniedError
	if errors.As(err, &pde) {
		return "permission_denied"
	}
	return ""
}
