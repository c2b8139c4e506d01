// Package condense turns fetched page markup into the text handed to the
// extraction model.
package condense

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/irevents/internal/models"
)

// Mode selects how page content is prepared.
type Mode string

const (
	// ModeHTML passes the markup through untouched.
	ModeHTML Mode = "html"
	// ModeMarkdown strips non-content elements and converts to markdown.
	ModeMarkdown Mode = "markdown"
	// ModeText keeps only the readable text of the page.
	ModeText Mode = "text"
)

// ParseMode maps a config value to a Mode. Empty means html.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHTML:
		return ModeHTML, nil
	case ModeMarkdown:
		return ModeMarkdown, nil
	case ModeText:
		return ModeText, nil
	}
	return "", fmt.Errorf("unknown content mode %q (want html, markdown or text)", s)
}

// noise lists elements that never carry event listings.
const noise = "script, style, noscript, svg, iframe, template, link, meta"

// Prepare returns the content to send for extraction. An empty document
// stays empty. Feeds (RSS, Atom, JSON Feed) are rendered as one line per
// item in the markdown and text modes.
func Prepare(doc models.Document, mode Mode) (string, error) {
	if doc.Empty() {
		return "", nil
	}
	switch mode {
	case "", ModeHTML:
		return doc.Content, nil
	case ModeMarkdown:
		if out, ok := renderFeed(doc.Content); ok {
			return out, nil
		}
		return toMarkdown(doc)
	case ModeText:
		if out, ok := renderFeed(doc.Content); ok {
			return out, nil
		}
		return toText(doc)
	}
	return "", fmt.Errorf("unknown content mode %q", mode)
}

func toMarkdown(doc models.Document) (string, error) {
	cleaned, err := stripNoise(doc.Content)
	if err != nil {
		return "", err
	}
	converter := md.NewConverter(domain(doc.URL), true, nil)
	out, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("converting to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func toText(doc models.Document) (string, error) {
	parsed, _ := url.Parse(doc.URL)
	article, err := readability.FromReader(strings.NewReader(doc.Content), parsed)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); len(text) > 100 {
			return text, nil
		}
	}

	// Readability drops short listings; use the whole body text instead.
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Content))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	gq.Find(noise).Remove()
	return strings.Join(strings.Fields(gq.Find("body").Text()), " "), nil
}

func stripNoise(html string) (string, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	gq.Find(noise).Remove()
	out, err := gq.Html()
	if err != nil {
		return "", fmt.Errorf("rendering html: %w", err)
	}
	return out, nil
}

func renderFeed(content string) (string, bool) {
	if gofeed.DetectFeedType(strings.NewReader(content)) == gofeed.FeedTypeUnknown {
		return "", false
	}
	feed, err := gofeed.NewParser().ParseString(content)
	if err != nil || len(feed.Items) == 0 {
		return "", false
	}

	var b strings.Builder
	if feed.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", feed.Title)
	}
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(title)
		if item.PublishedParsed != nil {
			b.WriteString(" (" + item.PublishedParsed.Format("2006-01-02") + ")")
		}
		if item.Link != "" {
			b.WriteString(" " + item.Link)
		}
		b.WriteString("\n")
	}
	return b.String(), true
}

func domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
