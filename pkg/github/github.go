package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v60/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ErrInvalidRepository is returned when a repository URL does not name a
// GitHub owner and repository.
var ErrInvalidRepository = errors.New("invalid github repository url")

// Client defines the interface for GitHub API operations.
type Client interface {
	Start(ctx context.Context) error
	Stop() error

	// Contents.
	GetFile(ctx context.Context, owner, repo, path, ref string) (*File, error)
	PutFile(ctx context.Context, req PutFileRequest) (*Commit, error)

	// Rate limiting.
	RateLimitRemaining() int
	RateLimitReset() time.Time
}

// Metrics is the set of measurements the client records.
type Metrics interface {
	RecordGitHubAPIRequest(endpoint string)
	RecordGitHubAPIError(endpoint string)
	SetGitHubRateLimit(remaining float64)
}

// Options configures a client.
type Options struct {
	Token string
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	BaseURL string
}

// File is a file read from a repository.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// PutFileRequest creates or updates a single file. SHA must be the blob SHA
// of the existing file when updating.
type PutFileRequest struct {
	Owner   string
	Repo    string
	Path    string
	Branch  string
	Message string
	Content []byte
	SHA     string
}

// Commit identifies the commit created by PutFile.
type Commit struct {
	SHA     string
	HTMLURL string
}

// client implements Client.
type client struct {
	log           logrus.FieldLogger
	opts          Options
	metrics       Metrics
	gh            *github.Client
	mu            sync.RWMutex
	rateRemaining int
	rateReset     time.Time
}

// Ensure client implements Client.
var _ Client = (*client)(nil)

// NewClient creates a new GitHub client.
func NewClient(log logrus.FieldLogger, opts Options, m Metrics) Client {
	return &client{
		log:     log.WithField("component", "github"),
		opts:    opts,
		metrics: m,
	}
}

// Start initializes the GitHub client.
func (c *client) Start(ctx context.Context) error {
	c.log.Info("Initializing GitHub client")

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.opts.Token})
	tc := oauth2.NewClient(ctx, ts)

	c.gh = github.NewClient(tc)

	if c.opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(c.opts.BaseURL, "/") + "/")
		if err != nil {
			return fmt.Errorf("parsing GitHub base url: %w", err)
		}

		c.gh.BaseURL = base
	}

	// Test authentication by getting rate limit.
	c.metrics.RecordGitHubAPIRequest("rate_limit")

	rate, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		c.metrics.RecordGitHubAPIError("rate_limit")

		return fmt.Errorf("testing GitHub authentication: %w", err)
	}

	c.mu.Lock()
	c.rateRemaining = rate.Core.Remaining
	c.rateReset = rate.Core.Reset.Time
	c.mu.Unlock()

	c.metrics.SetGitHubRateLimit(float64(rate.Core.Remaining))

	c.log.WithFields(logrus.Fields{
		"rate_remaining": rate.Core.Remaining,
		"rate_limit":     rate.Core.Limit,
		"rate_reset":     rate.Core.Reset.Time,
	}).Info("GitHub client initialized")

	return nil
}

// Stop shuts down the GitHub client.
func (c *client) Stop() error {
	c.log.Info("Stopping GitHub client")

	return nil
}

// updateRateLimit updates rate limit info from response headers.
func (c *client) updateRateLimit(resp *github.Response) {
	if resp == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rateRemaining = resp.Rate.Remaining
	c.rateReset = resp.Rate.Reset.Time

	c.metrics.SetGitHubRateLimit(float64(resp.Rate.Remaining))
}

// RateLimitRemaining returns the remaining API calls.
func (c *client) RateLimitRemaining() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rateRemaining
}

// RateLimitReset returns when the rate limit resets.
func (c *client) RateLimitReset() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rateReset
}

// GetFile reads a file from a repository. A missing file yields nil, nil.
func (c *client) GetFile(ctx context.Context, owner, repo, path, ref string) (*File, error) {
	c.log.WithFields(logrus.Fields{
		"owner": owner,
		"repo":  repo,
		"path":  path,
		"ref":   ref,
	}).Debug("Getting repository file")

	c.metrics.RecordGitHubAPIRequest("get_contents")

	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	content, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, opts)
	c.updateRateLimit(resp)

	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}

		c.metrics.RecordGitHubAPIError("get_contents")

		return nil, fmt.Errorf("getting contents of %s: %w", path, err)
	}

	if content == nil {
		return nil, fmt.Errorf("getting contents of %s: path is a directory", path)
	}

	decoded, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding contents of %s: %w", path, err)
	}

	return &File{
		Path:    content.GetPath(),
		SHA:     content.GetSHA(),
		Content: []byte(decoded),
	}, nil
}

// PutFile creates the file when req.SHA is empty and updates it otherwise.
func (c *client) PutFile(ctx context.Context, req PutFileRequest) (*Commit, error) {
	log := c.log.WithFields(logrus.Fields{
		"owner":  req.Owner,
		"repo":   req.Repo,
		"path":   req.Path,
		"branch": req.Branch,
	})

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(req.Message),
		Content: req.Content,
	}

	if req.Branch != "" {
		opts.Branch = github.String(req.Branch)
	}

	var (
		result   *github.RepositoryContentResponse
		resp     *github.Response
		err      error
		endpoint = "create_file"
	)

	if req.SHA == "" {
		c.metrics.RecordGitHubAPIRequest(endpoint)
		result, resp, err = c.gh.Repositories.CreateFile(ctx, req.Owner, req.Repo, req.Path, opts)
	} else {
		endpoint = "update_file"
		opts.SHA = github.String(req.SHA)

		c.metrics.RecordGitHubAPIRequest(endpoint)
		result, resp, err = c.gh.Repositories.UpdateFile(ctx, req.Owner, req.Repo, req.Path, opts)
	}

	c.updateRateLimit(resp)

	if err != nil {
		c.metrics.RecordGitHubAPIError(endpoint)

		return nil, fmt.Errorf("writing %s: %w", req.Path, err)
	}

	commit := &Commit{
		SHA:     result.Commit.GetSHA(),
		HTMLURL: result.Commit.GetHTMLURL(),
	}

	log.WithField("commit", commit.SHA).Info("Repository file written")

	return commit, nil
}

// ParseRepository extracts owner and repository name from an HTTPS or SSH
// GitHub URL.
func ParseRepository(raw string) (owner, repo string, err error) {
	s := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(s, "git@"):
		_, rest, ok := strings.Cut(s, ":")
		if !ok {
			return "", "", fmt.Errorf("%w: %s", ErrInvalidRepository, raw)
		}

		s = rest
	default:
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", "", fmt.Errorf("%w: %s", ErrInvalidRepository, raw)
		}

		s = u.Path
	}

	s = strings.TrimSuffix(strings.Trim(s, "/"), ".git")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidRepository, raw)
	}

	return parts[0], parts[1], nil
}
