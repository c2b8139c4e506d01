package fetch

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/models"
)

// minVisibleText is the body text length below which a page carrying
// scripts is assumed to be rendered client-side.
const minVisibleText = 500

// FallbackFetcher tries a plain fetch first and switches to the rendered
// fetch when the plain one fails or returns a script-only shell.
type FallbackFetcher struct {
	plain    Fetcher
	rendered Fetcher
	logger   *zap.Logger
}

// NewFallbackFetcher creates a fetcher that prefers plain over rendered.
func NewFallbackFetcher(plain, rendered Fetcher, logger *zap.Logger) *FallbackFetcher {
	return &FallbackFetcher{plain: plain, rendered: rendered, logger: logger}
}

// Fetch implements Fetcher. When both strategies fail the plain error is
// returned.
func (f *FallbackFetcher) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	if rawURL == "" {
		return emptyDocument(), nil
	}

	doc, plainErr := f.plain.Fetch(ctx, rawURL)
	if plainErr == nil && !NeedsRendering(doc.Content) {
		return doc, nil
	}

	if plainErr != nil {
		f.logger.Info("plain fetch failed, rendering", zap.String("url", rawURL), zap.Error(plainErr))
	} else {
		f.logger.Info("page looks script-rendered, rendering", zap.String("url", rawURL))
	}

	rendered, err := f.rendered.Fetch(ctx, rawURL)
	if err != nil {
		if plainErr != nil {
			return models.Document{}, plainErr
		}
		f.logger.Warn("rendered fetch failed, keeping plain content", zap.String("url", rawURL), zap.Error(err))
		return doc, nil
	}
	return rendered, nil
}

// NeedsRendering reports whether markup looks like an empty shell that
// scripts fill in: little visible body text and at least one script tag.
func NeedsRendering(html string) bool {
	if strings.TrimSpace(html) == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	if doc.Find("script").Length() == 0 {
		return false
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	text := strings.Join(strings.Fields(body.Text()), " ")
	return len(text) < minVisibleText
}
