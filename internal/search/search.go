package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultSerpAPIBaseURL = "https://serpapi.com"
	defaultQueryTemplate  = "%s investor relations events"
)

// Result is one organic search result.
type Result struct {
	Link  string `json:"link" validate:"required,url"`
	Title string `json:"title"`
}

type serpResponse struct {
	Error          string   `json:"error"`
	OrganicResults []Result `json:"organic_results" validate:"dive"`
}

// LookupError is a search collaborator failure for one ticker.
type LookupError struct {
	Ticker string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("IR page lookup for %s: %v", e.Ticker, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// SerpAPI queries Google through serpapi.com.
type SerpAPI struct {
	apiKey   string
	baseURL  string
	engine   string
	client   *http.Client
	validate *validator.Validate
}

// NewSerpAPI creates a client reading its key from apiKeyEnv.
func NewSerpAPI(apiKeyEnv, engine string, timeout time.Duration) *SerpAPI {
	if engine == "" {
		engine = "google"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SerpAPI{
		apiKey:   os.Getenv(apiKeyEnv),
		baseURL:  defaultSerpAPIBaseURL,
		engine:   engine,
		client:   &http.Client{Timeout: timeout},
		validate: validator.New(),
	}
}

// WithBaseURL points the client at a different host.
func (s *SerpAPI) WithBaseURL(baseURL string) *SerpAPI {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// IsConfigured returns whether the API key is available.
func (s *SerpAPI) IsConfigured() bool {
	return s.apiKey != ""
}

// Search runs query and returns organic results in rank order. An empty
// result list is not an error.
func (s *SerpAPI) Search(ctx context.Context, query string) ([]Result, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("SerpAPI key not configured")
	}

	params := url.Values{
		"engine":  {s.engine},
		"q":       {query},
		"api_key": {s.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SerpAPI error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("SerpAPI HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("SerpAPI decode error: %w", err)
	}

	if result.Error != "" && len(result.OrganicResults) == 0 {
		if isNoResults(result.Error) {
			return nil, nil
		}
		return nil, fmt.Errorf("SerpAPI: %s", result.Error)
	}

	if err := s.validate.Struct(result); err != nil {
		return nil, fmt.Errorf("SerpAPI response failed validation: %w", err)
	}
	return result.OrganicResults, nil
}

func isNoResults(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "hasn't returned any results") ||
		strings.Contains(msg, "no results")
}

// Searcher runs a web search query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Locator resolves a ticker to its investor-relations page.
type Locator struct {
	searcher      Searcher
	queryTemplate string
	logger        *zap.Logger
}

// NewLocator creates a locator. queryTemplate takes the ticker as its only
// %s verb; empty uses "<ticker> investor relations events".
func NewLocator(searcher Searcher, queryTemplate string, logger *zap.Logger) *Locator {
	if queryTemplate == "" {
		queryTemplate = defaultQueryTemplate
	}
	return &Locator{searcher: searcher, queryTemplate: queryTemplate, logger: logger}
}

// Locate returns the top result's link, or "" when the search found nothing.
// Collaborator failures are returned as *LookupError.
func (l *Locator) Locate(ctx context.Context, ticker string) (string, error) {
	query := fmt.Sprintf(l.queryTemplate, ticker)
	results, err := l.searcher.Search(ctx, query)
	if err != nil {
		return "", &LookupError{Ticker: ticker, Err: err}
	}

	if len(results) == 0 {
		l.logger.Info("no IR page found", zap.String("ticker", ticker), zap.String("query", query))
		return "", nil
	}

	link := results[0].Link
	l.logger.Debug("resolved IR page", zap.String("ticker", ticker), zap.String("url", link))
	return link, nil
}
