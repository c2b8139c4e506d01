package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/models"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; irevents/1.0; +investor-relations-events)"
	maxBodyBytes     = 20 << 20
)

// Fetcher retrieves page content for a URL. An empty URL yields an empty
// document without any network activity.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (models.Document, error)
}

// FetchError is a retrieval failure for one URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPFetcher performs a single plain GET.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewHTTPFetcher creates a new plain fetcher.
func NewHTTPFetcher(timeout time.Duration, userAgent string, logger *zap.Logger) *HTTPFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch returns the response body verbatim, whatever the status code.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	if rawURL == "" {
		return emptyDocument(), nil
	}
	if err := checkURL(rawURL); err != nil {
		return models.Document{}, &FetchError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.Document{}, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return models.Document{}, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Document{}, &FetchError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode >= 400 {
		f.logger.Warn("page returned error status, passing body through",
			zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
	}
	f.logger.Debug("fetched page",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)))

	return models.Document{
		URL:       rawURL,
		Content:   string(body),
		Method:    models.FetchHTTP,
		FetchedAt: time.Now(),
	}, nil
}

func emptyDocument() models.Document {
	return models.Document{Method: models.FetchNone, FetchedAt: time.Now()}
}

func checkURL(rawURL string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("malformed URL: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("malformed URL: missing host")
	}
	return nil
}
