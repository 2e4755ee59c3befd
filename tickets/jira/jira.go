/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package jira turns a Jira Cloud ticket into a task description.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

// MaxComments is how many of the most recent comments are kept.
const MaxComments = 5

var (
	browseKey = regexp.MustCompile(`(?i)/browse/([A-Z][A-Z0-9]+-\d+)`)
	paramKey  = regexp.MustCompile(`(?i)selectedIssue=([A-Z][A-Z0-9]+-\d+)`)
)

// Ref locates a ticket.
type Ref struct {
	Key     string `json:"key"`
	BaseURL string `json:"baseUrl"`
}

// ParseTicketURL extracts the ticket key and site root from a browse link
// or a board link carrying selectedIssue.
func ParseTicketURL(raw string) (Ref, bool) {
	raw = strings.TrimSpace(raw)
	m := browseKey.FindStringSubmatch(raw)
	if m == nil {
		m = paramKey.FindStringSubmatch(raw)
	}
	if m == nil {
		return Ref{}, false
	}
	ref := Ref{Key: strings.ToUpper(m[1])}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		ref.BaseURL = u.Scheme + "://" + u.Host
	}
	return ref, true
}

// Comment is a ticket comment rendered as text.
type Comment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// Ticket is the subset of an issue used to describe a task.
type Ticket struct {
	Key         string    `json:"key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Type        string    `json:"type"`
	Labels      []string  `json:"labels"`
	Comments    []Comment `json:"comments"`
}

// TaskDescription renders the ticket as a free-text task for the pipeline.
func (t *Ticket) TaskDescription() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n\n", t.Key, t.Summary)
	if t.Description != "" {
		sb.WriteString(t.Description)
	} else {
		sb.WriteString("(no description)")
	}
	if len(t.Labels) > 0 {
		fmt.Fprintf(&sb, "\n\nLabels: %s", strings.Join(t.Labels, ", "))
	}
	if len(t.Comments) > 0 {
		sb.WriteString("\n\nRecent comments:\n")
		for _, c := range t.Comments {
			fmt.Fprintf(&sb, "- %s: %s\n", c.Author, c.Body)
		}
	}
	return sb.String()
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira API error (%d): %s", e.StatusCode, e.Body)
}

// ErrNoBaseURL is returned when a Ref has no site root.
var ErrNoBaseURL = errors.New("could not determine the Jira base URL from the ticket link")

// Client reads issues with basic authentication.
type Client struct {
	email      string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a Client authenticating as email with an API token.
func New(email, token string, opts ...Option) *Client {
	c := &Client{email: email, token: token, httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c.email != "" && c.token != ""
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Status      *named          `json:"status"`
		Priority    *named          `json:"priority"`
		IssueType   *named          `json:"issuetype"`
		Labels      []string        `json:"labels"`
		Comment     *struct {
			Comments []struct {
				Author *struct {
					DisplayName string `json:"displayName"`
				} `json:"author"`
				Body json.RawMessage `json:"body"`
			} `json:"comments"`
		} `json:"comment"`
	} `json:"fields"`
}

type named struct {
	Name string `json:"name"`
}

func (n *named) name() string {
	if n == nil {
		return ""
	}
	return n.Name
}

// Fetch reads the ticket ref points at.
func (c *Client) Fetch(ctx context.Context, ref Ref) (*Ticket, error) {
	if ref.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	endpoint := strings.TrimSuffix(ref.BaseURL, "/") + "/rest/api/3/issue/" + url.PathEscape(ref.Key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")

	clog.FromContext(ctx).With("ticket", ref.Key).Infof("Fetching Jira ticket from %s", ref.BaseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching ticket: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var issue issueResponse
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("decoding ticket: %w", err)
	}

	t := &Ticket{
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: richText(issue.Fields.Description),
		Status:      issue.Fields.Status.name(),
		Priority:    issue.Fields.Priority.name(),
		Type:        issue.Fields.IssueType.name(),
		Labels:      issue.Fields.Labels,
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	t.Comments = []Comment{}
	if cm := issue.Fields.Comment; cm != nil {
		comments := cm.Comments
		if len(comments) > MaxComments {
			comments = comments[len(comments)-MaxComments:]
		}
		for _, c := range comments {
			author := "Unknown"
			if c.Author != nil && c.Author.DisplayName != "" {
				author = c.Author.DisplayName
			}
			t.Comments = append(t.Comments, Comment{Author: author, Body: richText(c.Body)})
		}
	}
	return t, nil
}
