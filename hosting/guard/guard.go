/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package guard

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// Client is a GitHub client restricted to an allow-list of operations.
type Client struct {
	gh      *github.Client
	allowed map[Operation]struct{}
}

// Option configures a Client.
type Option func(*options) error

type options struct {
	baseURL string
	allowed []Operation
}

// WithBaseURL points the client at a GitHub Enterprise (or test) API root.
func WithBaseURL(baseURL string) Option {
	return func(o *options) error {
		if baseURL == "" {
			return errors.New("base URL cannot be empty")
		}
		o.baseURL = baseURL
		return nil
	}
}

// WithAllowedOperations narrows the allow-list. Every operation must already
// be part of DefaultAllowList.
func WithAllowedOperations(ops ...Operation) Option {
	return func(o *options) error {
		defaults := DefaultAllowList()
		for _, op := range ops {
			if !slices.Contains(defaults, op) {
				return fmt.Errorf("operation %q cannot be allow-listed", op)
			}
		}
		o.allowed = slices.Clone(ops)
		return nil
	}
}

// New wraps a GitHub client built on hc. The HTTP client carries the
// credentials; a nil hc uses http.DefaultClient.
func New(hc *http.Client, opts ...Option) (*Client, error) {
	o := &options{allowed: DefaultAllowList()}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	gh := github.NewClient(hc)
	if o.baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(o.baseURL, o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring base URL: %w", err)
		}
	}

	allowed := make(map[Operation]struct{}, len(o.allowed))
	for _, op := range o.allowed {
		allowed[op] = struct{}{}
	}
	return &Client{gh: gh, allowed: allowed}, nil
}

// Authorize reports whether op may be performed. Unknown names are refused.
func (c *Client) Authorize(op Operation) error {
	if _, ok := c.allowed[op]; !ok {
		return &PermissionDeniedError{Operation: op}
	}
	return nil
}

// Allowed returns the operations this client permits, in canonical order.
func (c *Client) Allowed() []Operation {
	var ops []Operation
	for _, op := range DefaultAllowList() {
		if _, ok := c.allowed[op]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}

func (c *Client) authorize(ctx context.Context, op Operation) error {
	if err := c.Authorize(op); err != nil {
		clog.FromContext(ctx).With("operation", string(op)).Warn("Blocked hosting API call")
		return err
	}
	return nil
}

// GetRepository reads repository metadata.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	if err := c.authorize(ctx, OpRepositoryRead); err != nil {
		return nil, err
	}
	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	return r, err
}

// GetBranch reads a branch, including its head commit and root tree.
func (c *Client) GetBranch(ctx context.Context, owner, repo, branch string) (*github.Branch, error) {
	if err := c.authorize(ctx, OpRepositoryRead); err != nil {
		return nil, err
	}
	var b github.Branch
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s/branches/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch)), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DownloadTarball streams the gzipped tarball of ref into w.
func (c *Client) DownloadTarball(ctx context.Context, owner, repo, ref string, w io.Writer) error {
	if err := c.authorize(ctx, OpRepositoryRead); err != nil {
		return err
	}
	if w == nil {
		return errors.New("writer cannot be nil")
	}
	return c.do(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s/tarball/%s", url.PathEscape(owner), url.PathEscape(repo), escapeRef(ref)), nil, w)
}

// GetRef reads a reference such as "heads/main".
func (c *Client) GetRef(ctx context.Context, owner, repo, ref string) (*github.Reference, error) {
	if err := c.authorize(ctx, OpRefRead); err != nil {
		return nil, err
	}
	r, _, err := c.gh.Git.GetRef(ctx, owner, repo, ref)
	return r, err
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// CreateRef creates a fully-qualified reference (for example
// "refs/heads/fix") pointing at sha.
func (c *Client) CreateRef(ctx context.Context, owner, repo, ref, sha string) (*github.Reference, error) {
	if err := c.authorize(ctx, OpRefCreate); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(ref, "refs/") {
		ref = "refs/" + ref
	}
	var out github.Reference
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("repos/%s/%s/git/refs", url.PathEscape(owner), url.PathEscape(repo)), &createRefRequest{Ref: ref, SHA: sha}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}

// UpdateRef moves ref (for example "heads/fix") to sha. Updates are never
// forced, so the server rejects anything but a fast-forward.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, ref, sha string) (*github.Reference, error) {
	if err := c.authorize(ctx, OpRefUpdate); err != nil {
		return nil, err
	}
	ref = strings.TrimPrefix(ref, "refs/")
	var out github.Reference
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("repos/%s/%s/git/refs/%s", url.PathEscape(owner), url.PathEscape(repo), escapeRef(ref)), &updateRefRequest{SHA: sha}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type createBlobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// CreateBlob uploads content as a git blob.
func (c *Client) CreateBlob(ctx context.Context, owner, repo string, content []byte) (*github.Blob, error) {
	if err := c.authorize(ctx, OpBlobCreate); err != nil {
		return nil, err
	}
	var out github.Blob
	body := &createBlobRequest{Content: base64.StdEncoding.EncodeToString(content), Encoding: "base64"}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("repos/%s/%s/git/blobs", url.PathEscape(owner), url.PathEscape(repo)), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTree creates a tree from entries layered over baseTree.
func (c *Client) CreateTree(ctx context.Context, owner, repo, baseTree string, entries []*github.TreeEntry) (*github.Tree, error) {
	if err := c.authorize(ctx, OpTreeCreate); err != nil {
		return nil, err
	}
	t, _, err := c.gh.Git.CreateTree(ctx, owner, repo, baseTree, entries)
	return t, err
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

// CreateCommit creates a commit object for tree with the given parents.
func (c *Client) CreateCommit(ctx context.Context, owner, repo, message, tree string, parents []string) (*github.Commit, error) {
	if err := c.authorize(ctx, OpCommitCreate); err != nil {
		return nil, err
	}
	var out github.Commit
	body := &createCommitRequest{Message: message, Tree: tree, Parents: parents}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("repos/%s/%s/git/commits", url.PathEscape(owner), url.PathEscape(repo)), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePullRequest opens a pull request.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, pr *github.NewPullRequest) (*github.PullRequest, error) {
	if err := c.authorize(ctx, OpPullRequestCreate); err != nil {
		return nil, err
	}
	out, _, err := c.gh.PullRequests.Create(ctx, owner, repo, pr)
	return out, err
}

// AddLabels attaches labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) ([]*github.Label, error) {
	if err := c.authorize(ctx, OpLabelAdd); err != nil {
		return nil, err
	}
	out, _, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
	return out, err
}

// StatusCode extracts the HTTP status of a failed API call, or 0.
func StatusCode(err error) int {
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode
	}
	return 0
}

// do issues a raw request for endpoints whose payload is sent exactly as the
// REST API documents it. v may be an io.Writer to stream the body.
func (c *Client) do(ctx context.Context, method, path string, body, v any) error {
	req, err := c.gh.NewRequest(method, path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if _, err := c.gh.Do(ctx, req, v); err != nil {
		return err
	}
	return nil
}

func escapeRef(ref string) string {
	parts := strings.Split(ref, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
