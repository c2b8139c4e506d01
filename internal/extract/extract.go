// Package extract turns page content into validated event records using an
// LLM constrained to a fixed schema.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/condense"
	"github.com/TobiSchelling/irevents/internal/llm"
	"github.com/TobiSchelling/irevents/internal/models"
)

// ErrTokenLimitExceeded means the page was too large for the model.
var ErrTokenLimitExceeded = errors.New("token limit exceeded")

// SchemaError means the model output did not decode or failed validation.
// The whole batch for the ticker is rejected.
type SchemaError struct {
	Ticker string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid extraction output for %s: %v", e.Ticker, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ServiceError is any other failure of the model call.
type ServiceError struct {
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s extraction failed: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

const systemPrompt = `You extract scheduled corporate events from investor relations web pages.

Return every event listed on the page that has a date: earnings calls and results webcasts, investor and industry conferences, annual or special shareholder meetings, and other scheduled investor events.

Rules:
- eventName: the event title as shown on the page.
- link: absolute URL of the event detail, webcast or registration page. Use an empty string if the page has none.
- date: the event date as YYYY-MM-DD.
- time: the start time including its time zone abbreviation, e.g. "5:30 PM ET". Use an empty string if not shown.
- eventType: exactly one of "Earnings Calls", "Conference", "Shareholder Meeting", "Other".
- ticker: the ticker symbol given in the request.

Do not invent events. If the page lists no events, return {"events": []}.`

var eventSchema = &llm.Schema{
	Type: "object",
	Properties: map[string]*llm.Schema{
		"events": {
			Type: "array",
			Items: &llm.Schema{
				Type:  "object",
				Order: []string{"eventName", "link", "date", "time", "eventType", "ticker"},
				Properties: map[string]*llm.Schema{
					"eventName": {Type: "string", Description: "event title"},
					"link":      {Type: "string", Description: "absolute URL of the event page"},
					"date":      {Type: "string", Description: "event date, YYYY-MM-DD", Pattern: `^\d{4}-\d{2}-\d{2}$`},
					"time":      {Type: "string", Description: "start time with time zone"},
					"eventType": {Type: "string", Enum: eventTypeNames()},
					"ticker":    {Type: "string", Description: "ticker symbol"},
				},
			},
		},
	},
}

func eventTypeNames() []string {
	names := make([]string, len(models.EventTypes))
	for i, t := range models.EventTypes {
		names[i] = string(t)
	}
	return names
}

// Extractor calls the model and validates what comes back.
type Extractor struct {
	provider      llm.Provider
	mode          condense.Mode
	maxTokens     int
	maxInputChars int
	logger        *zap.Logger
}

// NewExtractor creates a new extractor. maxInputChars of zero disables the
// local size guard.
func NewExtractor(provider llm.Provider, mode condense.Mode, maxTokens, maxInputChars int, logger *zap.Logger) *Extractor {
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &Extractor{
		provider:      provider,
		mode:          mode,
		maxTokens:     maxTokens,
		maxInputChars: maxInputChars,
		logger:        logger,
	}
}

// Extract returns the events listed in doc, each stamped with ticker. An
// empty document yields no events without calling the model.
func (e *Extractor) Extract(ctx context.Context, doc models.Document, ticker string) ([]models.Event, error) {
	if doc.Empty() {
		return []models.Event{}, nil
	}

	content, err := condense.Prepare(doc, e.mode)
	if err != nil {
		e.logger.Warn("condensing failed, sending raw content", zap.String("ticker", ticker), zap.Error(err))
		content = doc.Content
	}
	if strings.TrimSpace(content) == "" {
		return []models.Event{}, nil
	}
	if e.maxInputChars > 0 && len(content) > e.maxInputChars {
		return nil, fmt.Errorf("%w: %d characters, limit %d", ErrTokenLimitExceeded, len(content), e.maxInputChars)
	}

	start := time.Now()
	raw, err := e.provider.Generate(ctx, llm.Request{
		System:     systemPrompt,
		Prompt:     buildPrompt(ticker, doc.URL, content),
		SchemaName: "ir_events",
		Schema:     eventSchema,
		MaxTokens:  e.maxTokens,
	})
	if err != nil {
		if llm.IsInputTooLarge(err) {
			return nil, fmt.Errorf("%w: %v", ErrTokenLimitExceeded, err)
		}
		return nil, &ServiceError{Provider: e.provider.Name(), Err: err}
	}

	var resp response
	if err := llm.DecodeJSON(raw, &resp); err != nil {
		return nil, &SchemaError{Ticker: ticker, Err: err}
	}
	events, err := resp.events(ticker, doc.URL)
	if err != nil {
		return nil, &SchemaError{Ticker: ticker, Err: err}
	}

	e.logger.Debug("extracted events",
		zap.String("ticker", ticker),
		zap.Int("events", len(events)),
		zap.Int("input_chars", len(content)),
		zap.Duration("duration", time.Since(start)))
	return events, nil
}

func buildPrompt(ticker, sourceURL, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticker: %s\n", ticker)
	if sourceURL != "" {
		fmt.Fprintf(&b, "Page URL: %s\n", sourceURL)
	}
	b.WriteString("\nPage content:\n")
	b.WriteString(content)
	return b.String()
}
