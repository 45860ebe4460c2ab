package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultSourceURL is the CelesTrak feed of all active satellites.
const DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"

// maxBodyBytes caps a single upstream response.
const maxBodyBytes = 50 << 20

// UpstreamError reports a non-success response from a catalog source.
type UpstreamError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Fetcher retrieves raw TLE data from a primary source and optional extras.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL. Extra URLs are
// appended to the primary body; a failing extra is logged and skipped.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		logger:    logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SourceURL returns the configured primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch downloads the primary source and every extra source. Only a failure
// of the primary source is returned as an error.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	primary, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	extras := make([][]byte, len(f.extraURLs))
	var g errgroup.Group
	g.SetLimit(4)
	for i, u := range f.extraURLs {
		g.Go(func() error {
			body, err := f.get(ctx, u)
			if err != nil {
				f.logger.Warn("extra TLE source failed", "url", u, "error", err)
				return nil
			}
			extras[i] = body
			return nil
		})
	}
	_ = g.Wait()

	var buf bytes.Buffer
	appendBody(&buf, primary)
	for _, b := range extras {
		appendBody(&buf, b)
	}
	return buf.Bytes(), nil
}

// appendBody keeps the three-line grouping aligned across concatenated sources.
func appendBody(buf *bytes.Buffer, body []byte) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return
	}
	buf.Write(body)
	buf.WriteByte('\n')
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}
	return body, nil
}
