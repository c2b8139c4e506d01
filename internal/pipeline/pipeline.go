package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/condense"
	"github.com/TobiSchelling/irevents/internal/config"
	"github.com/TobiSchelling/irevents/internal/extract"
	"github.com/TobiSchelling/irevents/internal/fetch"
	"github.com/TobiSchelling/irevents/internal/llm"
	"github.com/TobiSchelling/irevents/internal/models"
	"github.com/TobiSchelling/irevents/internal/search"
	"github.com/TobiSchelling/irevents/internal/ticker"
)

// Normalizer parses raw input into tickers.
type Normalizer interface {
	Normalize(ctx context.Context, text string) ([]string, error)
}

// Locator resolves a ticker to its IR page URL. "" means none was found.
type Locator interface {
	Locate(ctx context.Context, ticker string) (string, error)
}

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (models.Document, error)
}

// Extractor pulls validated events out of a page.
type Extractor interface {
	Extract(ctx context.Context, doc models.Document, ticker string) ([]models.Event, error)
}

// Components are the collaborators a pipeline runs on.
type Components struct {
	Normalizer Normalizer
	Locator    Locator
	Fetcher    Fetcher
	Extractor  Extractor
}

// State is a step of the per-ticker state machine.
type State string

const (
	StatePending       State = "pending"
	StateResolvingPage State = "resolving_page"
	StateFetching      State = "fetching"
	StateExtracting    State = "extracting"
	StateDone          State = "done"
)

// Pipeline runs event extraction for every ticker in a query.
type Pipeline struct {
	c      Components
	logger *zap.Logger
}

// NewWith creates a pipeline on the given components.
func NewWith(c Components, logger *zap.Logger) *Pipeline {
	return &Pipeline{c: c, logger: logger}
}

// New wires the concrete components described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	provider, err := llm.CreateProvider(ctx, providerSettings(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("creating extraction provider: %w", err)
	}

	mode, err := condense.ParseMode(cfg.Extraction.Content)
	if err != nil {
		return nil, err
	}

	serp := search.NewSerpAPI(cfg.Search.APIKeyEnv, cfg.Search.Engine, cfg.Search.Timeout)
	if !serp.IsConfigured() {
		logger.Warn("search API key not set, every lookup will fail", zap.String("env", cfg.Search.APIKeyEnv))
	}

	fetcher, err := newFetcher(cfg.Fetch, logger)
	if err != nil {
		return nil, err
	}

	return NewWith(Components{
		Normalizer: ticker.NewNormalizer(ticker.Strategy(strings.ToLower(cfg.Tickers.Strategy)), ticker.NewLLMInterpreter(provider), logger),
		Locator:    search.NewLocator(serp, cfg.Search.QueryTemplate, logger),
		Fetcher:    fetcher,
		Extractor:  extract.NewExtractor(provider, mode, cfg.Extraction.MaxTokens, cfg.Extraction.MaxInputChars, logger),
	}, logger), nil
}

// NewNormalizer builds only the ticker normalizer. Without a usable provider
// natural-language input falls back to local token extraction.
func NewNormalizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) *ticker.Normalizer {
	strategy := ticker.Strategy(strings.ToLower(cfg.Tickers.Strategy))
	if strategy == ticker.StrategySplit {
		return ticker.NewNormalizer(strategy, nil, logger)
	}
	provider, err := llm.CreateProvider(ctx, providerSettings(cfg), logger)
	if err != nil {
		logger.Warn("no provider for ticker interpretation", zap.Error(err))
		return ticker.NewNormalizer(strategy, nil, logger)
	}
	return ticker.NewNormalizer(strategy, ticker.NewLLMInterpreter(provider), logger)
}

func providerSettings(cfg *config.Config) llm.Settings {
	return llm.Settings{
		Provider:  cfg.Extraction.Provider,
		Model:     cfg.Extraction.ModelName(),
		APIKeyEnv: cfg.Extraction.KeyEnv(),
		OllamaURL: cfg.Extraction.OllamaURL,
		Timeout:   cfg.Extraction.Timeout,
	}
}

func newFetcher(cfg config.Fetch, logger *zap.Logger) (Fetcher, error) {
	plain := fetch.NewHTTPFetcher(cfg.Timeout, cfg.UserAgent, logger)
	render := func() *fetch.RenderedFetcher {
		return fetch.NewRenderedFetcher(fetch.RenderConfig{
			Headless:     cfg.Render.Headless,
			UserAgent:    cfg.UserAgent,
			Timeout:      cfg.Render.Timeout,
			IdleTimeout:  cfg.Render.IdleTimeout,
			Settle:       cfg.Render.Settle,
			ScrollSettle: cfg.Render.ScrollSettle,
		}, logger)
	}

	switch strings.ToLower(cfg.Mode) {
	case "", "plain":
		return plain, nil
	case "rendered":
		return render(), nil
	case "auto":
		return fetch.NewFallbackFetcher(plain, render(), logger), nil
	}
	return nil, fmt.Errorf("unknown fetch mode %q", cfg.Mode)
}

// Run normalizes query and processes every ticker concurrently. Outcomes are
// returned in ticker order. The only error is ticker.ErrEmptyInput (or
// another normalization failure), in which case nothing is processed.
func (p *Pipeline) Run(ctx context.Context, query string) ([]models.Outcome, error) {
	tickers, err := p.c.Normalizer.Normalize(ctx, query)
	if err != nil {
		return nil, err
	}
	return p.RunTickers(ctx, tickers), nil
}

// RunTickers processes already normalized tickers. Every task runs to
// completion; a failing ticker never cancels the others.
func (p *Pipeline) RunTickers(ctx context.Context, tickers []string) []models.Outcome {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))
	logger.Info("starting run", zap.Strings("tickers", tickers))
	start := time.Now()

	outcomes := make([]models.Outcome, len(tickers))
	var wg sync.WaitGroup
	for i, t := range tickers {
		wg.Add(1)
		go func(i int, t string) {
			defer wg.Done()
			outcomes[i] = p.runTicker(ctx, t, logger.With(zap.String("ticker", t)))
		}(i, t)
	}
	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}
	logger.Info("run complete",
		zap.Int("tickers", len(tickers)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return outcomes
}

// RunTicker takes one ticker through lookup, fetch and extraction. It always
// returns an outcome; failures are classified, never propagated.
func (p *Pipeline) RunTicker(ctx context.Context, t string) models.Outcome {
	return p.runTicker(ctx, t, p.logger.With(zap.String("ticker", t)))
}

func (p *Pipeline) runTicker(ctx context.Context, t string, logger *zap.Logger) (out models.Outcome) {
	state := StatePending
	irURL := ""
	enter := func(next State) {
		logger.Debug("state transition", zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("ticker task panicked", zap.String("state", string(state)), zap.Any("panic", r))
			out = models.Failed(t, irURL, models.ErrorGeneric, fmt.Sprintf("internal error while %s: %v", state, r))
		}
		enter(StateDone)
	}()

	enter(StateResolvingPage)
	irURL, err := p.c.Locator.Locate(ctx, t)
	if err != nil {
		logger.Warn("IR page lookup failed", zap.Error(err))
		return models.Failed(t, "", models.ErrorGeneric, err.Error())
	}

	enter(StateFetching)
	doc, err := p.c.Fetcher.Fetch(ctx, irURL)
	if err != nil {
		logger.Warn("fetch failed", zap.String("url", irURL), zap.Error(err))
		return models.Failed(t, irURL, models.ErrorGeneric, err.Error())
	}

	enter(StateExtracting)
	events, err := p.c.Extractor.Extract(ctx, doc, t)
	if err != nil {
		return p.extractionFailure(t, irURL, err, logger)
	}

	logger.Info("ticker complete", zap.String("url", irURL), zap.Int("events", len(events)))
	return models.Succeeded(t, irURL, events)
}

func (p *Pipeline) extractionFailure(t, irURL string, err error, logger *zap.Logger) models.Outcome {
	var schemaErr *extract.SchemaError
	switch {
	case errors.Is(err, extract.ErrTokenLimitExceeded):
		logger.Warn("page too large for extraction", zap.String("url", irURL), zap.Error(err))
		return models.Failed(t, irURL, models.ErrorTokenLimit, err.Error())
	case errors.As(err, &schemaErr):
		logger.Warn("extraction output rejected", zap.String("url", irURL), zap.Error(err))
		return models.Failed(t, irURL, models.ErrorInvalidFormat, err.Error())
	default:
		logger.Warn("extraction failed", zap.String("url", irURL), zap.Error(err))
		return models.Failed(t, irURL, models.ErrorGeneric, err.Error())
	}
}
