// Package coderag talks to the code-aware retrieval service that indexes a
// project's source repository and answers annotation queries against it.
package coderag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethpandaops/specsync/pkg/spec"
	"github.com/sirupsen/logrus"
)

const (
	maxErrorBody = 500

	queryPrefix = "The following is an OpenAPI 3.0 document in JSON: "
)

// IndexState is the indexing state reported by the service.
type IndexState string

const (
	IndexStatePending   IndexState = "pending"
	IndexStateCompleted IndexState = "completed"
	IndexStateFailed    IndexState = "failed"
)

// SetupRequest asks the service to clone and index a repository.
type SetupRequest struct {
	RepoID       string `json:"repo_id"`
	RepoURL      string `json:"repo_url_or_path"`
	ForceReclone bool   `json:"force_reclone"`
	ForceReindex bool   `json:"force_reindex"`
	AccessToken  string `json:"access_token,omitempty"`
}

// IndexStatus is the response of a status query.
type IndexStatus struct {
	RepoID         string     `json:"repo_id"`
	Status         IndexState `json:"status"`
	Message        string     `json:"message"`
	IndexStatus    string     `json:"index_status,omitempty"`
	RepositoryPath string     `json:"repository_path,omitempty"`
}

// AnnotateRequest is one annotation query for a document fragment.
type AnnotateRequest struct {
	RepoID              string
	Fragment            spec.Document
	SystemInstructions  string
	RewriteInstructions string
}

type queryPayload struct {
	RepoID        string `json:"repo_id"`
	SysPrompt     string `json:"sys_prompt"`
	QueryText     string `json:"query_text"`
	RewritePrompt string `json:"rewrite_prompt"`
}

// StatusError is returned when the service answers with an unexpected HTTP
// status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	URL           string
	APIKey        string
	SetupTimeout  time.Duration
	StatusTimeout time.Duration
	QueryTimeout  time.Duration
}

// Client is an HTTP client for the retrieval service.
type Client struct {
	log     logrus.FieldLogger
	baseURL string
	apiKey  string
	setup   *http.Client
	status  *http.Client
	query   *http.Client
}

// NewClient creates a Client.
func NewClient(log logrus.FieldLogger, opts Options) *Client {
	return &Client{
		log:     log.WithField("component", "coderag"),
		baseURL: strings.TrimRight(opts.URL, "/"),
		apiKey:  opts.APIKey,
		setup:   &http.Client{Timeout: opts.SetupTimeout},
		status:  &http.Client{Timeout: opts.StatusTimeout},
		query:   &http.Client{Timeout: opts.QueryTimeout},
	}
}

// Setup starts cloning and indexing a repository. Any of 200, 201 and 202
// counts as accepted.
func (c *Client) Setup(ctx context.Context, req SetupRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling setup request: %w", err)
	}

	resp, err := c.do(ctx, c.setup, http.MethodPost, c.baseURL+"/repository/setup", body)
	if err != nil {
		return fmt.Errorf("repository setup: %w", err)
	}

	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return newStatusError("repository setup", resp)
	}

	c.log.WithFields(logrus.Fields{
		"repo_id": req.RepoID,
		"status":  resp.StatusCode,
	}).Info("Repository setup accepted")

	return nil
}

// Status returns the indexing status of a repository.
func (c *Client) Status(ctx context.Context, repoID string) (*IndexStatus, error) {
	resp, err := c.do(ctx, c.status, http.MethodGet,
		c.baseURL+"/repository/status/"+url.PathEscape(repoID), nil)
	if err != nil {
		return nil, fmt.Errorf("repository status: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("repository status", resp)
	}

	var status IndexStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding repository status: %w", err)
	}

	return &status, nil
}

// Annotate sends a fragment for annotation and returns the annotated
// fragment. The service may wrap its JSON answer in a markdown code fence.
func (c *Client) Annotate(ctx context.Context, req AnnotateRequest) (spec.Document, error) {
	fragment, err := req.Fragment.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshaling fragment: %w", err)
	}

	body, err := json.Marshal(queryPayload{
		RepoID:        req.RepoID,
		SysPrompt:     req.SystemInstructions,
		QueryText:     queryPrefix + string(fragment),
		RewritePrompt: req.RewriteInstructions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling query: %w", err)
	}

	resp, err := c.do(ctx, c.query, http.MethodPost, c.baseURL+"/query/stream", body)
	if err != nil {
		return nil, fmt.Errorf("annotation query: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("annotation query", resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading annotation response: %w", err)
	}

	doc, err := spec.ParseAnnotated(raw)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return hc.Do(req)
}

func newStatusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
}
