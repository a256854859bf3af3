// Package fetcher retrieves authoritative OpenAPI documents over HTTP.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethpandaops/specsync/pkg/spec"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"
)

const (
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 20 * time.Second

	// DefaultMaxBytes is the largest accepted document.
	DefaultMaxBytes = 32 << 20

	userAgent = "specsync/1.0"
)

// HTTPError is returned when the source answers with a non-200 status.
type HTTPError struct {
	StatusCode int
	URL        string
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status fetching %s: %s", e.URL, e.Status)
}

// Options configures a Fetcher.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	// Validate runs a full OpenAPI 3 validation on every fetched document.
	Validate bool
}

// Fetcher downloads and decodes OpenAPI documents. JSON and YAML sources are
// both accepted.
type Fetcher struct {
	log    logrus.FieldLogger
	client *http.Client
	opts   Options
}

// New creates a Fetcher.
func New(log logrus.FieldLogger, opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.MaxBytes == 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	return &Fetcher{
		log:    log.WithField("component", "fetcher"),
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Fetch retrieves the document at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (spec.Document, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := Decode(ctx, body, f.opts.Validate)
	if err != nil {
		return nil, err
	}

	f.log.WithFields(logrus.Fields{
		"url":     url,
		"bytes":   len(body),
		"paths":   len(doc.Paths()),
		"schemas": len(doc.Schemas()),
	}).Debug("Fetched source document")

	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url, Status: resp.Status}
	}

	if resp.ContentLength > f.opts.MaxBytes {
		return nil, fmt.Errorf("document size %d bytes exceeds limit of %d bytes", resp.ContentLength, f.opts.MaxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if int64(len(body)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("document exceeds limit of %d bytes", f.opts.MaxBytes)
	}

	return body, nil
}

// Decode parses a JSON or YAML document. With validateDoc set the document must
// also pass OpenAPI 3 validation.
func Decode(ctx context.Context, body []byte, validateDoc bool) (spec.Document, error) {
	data, err := toJSON(body)
	if err != nil {
		return nil, err
	}

	doc, err := spec.Parse(data)
	if err != nil {
		return nil, err
	}

	if validateDoc {
		if err := validate(ctx, data); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// toJSON returns body unchanged when it already looks like JSON and converts
// it from YAML otherwise.
func toJSON(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	if trimmed[0] == '{' {
		return trimmed, nil
	}

	data, err := yaml.YAMLToJSON(trimmed)
	if err != nil {
		return nil, fmt.Errorf("converting YAML document: %w", err)
	}

	return data, nil
}

func validate(ctx context.Context, data []byte) error {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return fmt.Errorf("loading OpenAPI document: %w", err)
	}

	if err := doc.Validate(ctx); err != nil {
		return fmt.Errorf("validating OpenAPI document: %w", err)
	}

	return nil
}
