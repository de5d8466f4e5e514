// Package github is a small REST client for the GitHub endpoints the
// assistant's repository tools need.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/soyeahso/taskpilot/internal/logging"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

const (
	defaultPerPage = 30
	maxPerPage     = 100
	maxBody        = 4 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// RequestsPerMinute caps outgoing calls; 0 disables limiting.
	RequestsPerMinute int
}

// Client talks to the GitHub REST API with a single token.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	limiter *rate.Limiter
	log     *logging.Logger
}

// New creates a client. An empty BaseURL means the public API.
func New(opts Options, log *logging.Logger) *Client {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = DefaultAPIURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: base,
		token:   opts.Token,
		hc:      &http.Client{Timeout: timeout},
		log:     log.Sub("github"),
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// APIError is a non-2xx answer from GitHub.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: HTTP %d", e.Status)
	}
	return fmt.Sprintf("github: %s (HTTP %d)", e.Message, e.Status)
}

// Page selects one page of a listing. Zero values use GitHub's defaults.
type Page struct {
	PerPage int
	Page    int
}

func (p Page) apply(q url.Values) {
	per := p.PerPage
	if per <= 0 {
		per = defaultPerPage
	}
	q.Set("per_page", strconv.Itoa(min(per, maxPerPage)))
	page := p.Page
	if page <= 0 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
}

// Listing narrows and orders a repository, issue or pull request listing.
type Listing struct {
	Page
	Type      string // repositories only: owner, member, public
	State     string // issues and pull requests: open, closed, all
	Sort      string
	Direction string
}

// CommitFilter narrows a commit listing.
type CommitFilter struct {
	Page
	SHA    string
	Path   string
	Author string
}

// NewIssue is the body of an issue to open.
type NewIssue struct {
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

// Search is a repository search query.
type Search struct {
	Page
	Query string
	Sort  string
	Order string
}

func setIf(q url.Values, key, value, def string) {
	if value == "" {
		value = def
	}
	if value != "" {
		q.Set(key, value)
	}
}

// ListRepositories lists repositories of the authenticated user.
func (c *Client) ListRepositories(ctx context.Context, l Listing) ([]map[string]any, error) {
	q := url.Values{}
	setIf(q, "type", l.Type, "owner")
	setIf(q, "sort", l.Sort, "updated")
	setIf(q, "direction", l.Direction, "desc")
	l.apply(q)

	var out []map[string]any
	if err := c.get(ctx, "/user/repos", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRepository returns one repository.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, repoPath(owner, repo), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListIssues lists issues of a repository.
func (c *Client) ListIssues(ctx context.Context, owner, repo string, l Listing) ([]map[string]any, error) {
	q := url.Values{}
	setIf(q, "state", l.State, "open")
	setIf(q, "sort", l.Sort, "created")
	setIf(q, "direction", l.Direction, "desc")
	l.apply(q)

	var out []map[string]any
	if err := c.get(ctx, repoPath(owner, repo)+"/issues", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateIssue opens an issue and returns it as GitHub reports it.
func (c *Client) CreateIssue(ctx context.Context, owner, repo string, in NewIssue) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, repoPath(owner, repo)+"/issues", nil, in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPullRequests lists pull requests of a repository.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string, l Listing) ([]map[string]any, error) {
	q := url.Values{}
	setIf(q, "state", l.State, "open")
	setIf(q, "sort", l.Sort, "created")
	setIf(q, "direction", l.Direction, "desc")
	l.apply(q)

	var out []map[string]any
	if err := c.get(ctx, repoPath(owner, repo)+"/pulls", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFileContent returns the contents entry for path. For files the
// base64 body is also decoded into "decoded_content".
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (map[string]any, error) {
	q := url.Values{}
	setIf(q, "ref", ref, "")

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	var out map[string]any
	if err := c.get(ctx, repoPath(owner, repo)+"/contents/"+strings.Join(segments, "/"), q, &out); err != nil {
		return nil, err
	}
	if out["type"] == "file" {
		if enc, ok := out["content"].(string); ok {
			raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(enc), ""))
			if err != nil {
				return nil, fmt.Errorf("github: decoding %s: %w", path, err)
			}
			out["decoded_content"] = string(raw)
		}
	}
	return out, nil
}

// ListCommits lists commits of a repository.
func (c *Client) ListCommits(ctx context.Context, owner, repo string, f CommitFilter) ([]map[string]any, error) {
	q := url.Values{}
	setIf(q, "sha", f.SHA, "")
	setIf(q, "path", f.Path, "")
	setIf(q, "author", f.Author, "")
	f.apply(q)

	var out []map[string]any
	if err := c.get(ctx, repoPath(owner, repo)+"/commits", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchRepositories runs a repository search and returns GitHub's
// result object (total_count, items).
func (c *Client) SearchRepositories(ctx context.Context, s Search) (map[string]any, error) {
	q := url.Values{}
	q.Set("q", s.Query)
	setIf(q, "sort", s.Sort, "stars")
	setIf(q, "order", s.Order, "desc")
	s.apply(q)

	var out map[string]any
	if err := c.get(ctx, "/search/repositories", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, target any) error {
	return c.do(ctx, http.MethodGet, path, q, nil, target)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, target any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: encoding request: %w", err)
		}
		rd = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("github: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("github: reading response: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("github request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("github: decoding response: %w", err)
	}
	return nil
}
