package apispec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultURL is the published Venice.ai specification.
const DefaultURL = "https://api.venice.ai/doc/api/swagger.yaml"

// FetchError reports a failed retrieval of the upstream specification.
// StatusCode is zero for transport and decode failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves the live specification over HTTP.
type Fetcher struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a Fetcher. A nil client uses a client with the given timeout.
func NewFetcher(url string, timeout time.Duration, client *http.Client, logger *zap.Logger) *Fetcher {
	if url == "" {
		url = DefaultURL
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{url: url, client: client, logger: logger}
}

// URL returns the configured specification URL.
func (f *Fetcher) URL() string { return f.url }

// Fetch downloads and parses the specification. It returns the parsed
// document and the raw bytes, which are what gets persisted as the snapshot.
// Fetch does not retry.
func (f *Fetcher) Fetch(ctx context.Context) (*Document, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, nil, &FetchError{URL: f.url, Err: err}
	}
	req.Header.Set("Accept", "application/yaml, application/json;q=0.9, */*;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, &FetchError{URL: f.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &FetchError{URL: f.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &FetchError{URL: f.url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	doc, err := Parse(raw)
	if err != nil {
		return nil, nil, &FetchError{URL: f.url, StatusCode: resp.StatusCode, Err: err}
	}

	f.logger.Info("fetched api spec",
		zap.String("url", f.url),
		zap.String("version", doc.Version),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return doc, raw, nil
}
