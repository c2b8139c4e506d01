package condense

import (
	"strings"
	"testing"

	"github.com/TobiSchelling/irevents/internal/models"
)

const irPage = `<html><head><style>.x{color:red}</style><script>track()</script></head>
<body><h1>Events</h1><ul><li><a href="/ir/q4">Q4 2024 Earnings Call</a> January 28, 2025</li></ul>
<noscript>enable js</noscript></body></html>`

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeHTML, false},
		{"HTML", ModeHTML, false},
		{" markdown ", ModeMarkdown, false},
		{"text", ModeText, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestPrepareHTMLIsVerbatim(t *testing.T) {
	doc := models.Document{URL: "https://example.com/ir", Content: irPage}
	got, err := Prepare(doc, ModeHTML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != irPage {
		t.Error("html mode must not alter content")
	}
}

func TestPrepareEmptyDocument(t *testing.T) {
	for _, mode := range []Mode{ModeHTML, ModeMarkdown, ModeText} {
		got, err := Prepare(models.Document{}, mode)
		if err != nil || got != "" {
			t.Errorf("mode %s: expected empty output, got %q, %v", mode, got, err)
		}
	}
}

func TestPrepareMarkdown(t *testing.T) {
	doc := models.Document{URL: "https://example.com/ir", Content: irPage}
	got, err := Prepare(doc, ModeMarkdown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "track()") || strings.Contains(got, "color:red") || strings.Contains(got, "enable js") {
		t.Errorf("expected noise removed, got %q", got)
	}
	if !strings.Contains(got, "Q4 2024 Earnings Call") {
		t.Errorf("expected event title kept, got %q", got)
	}
	if !strings.Contains(got, "https://example.com/ir/q4") {
		t.Errorf("expected link made absolute, got %q", got)
	}
}

func TestPrepareTextFallsBackToBody(t *testing.T) {
	doc := models.Document{URL: "https://example.com/ir", Content: irPage}
	got, err := Prepare(doc, ModeText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Q4 2024 Earnings Call January 28, 2025") {
		t.Errorf("expected listing text, got %q", got)
	}
	if strings.Contains(got, "track()") {
		t.Errorf("expected scripts removed, got %q", got)
	}
}

func TestPrepareRendersFeed(t *testing.T) {
	feed := `<?xml version="1.0"?><rss version="2.0"><channel><title>Acme IR</title>
<item><title>Annual Shareholder Meeting</title><link>https://acme.com/agm</link><pubDate>Tue, 06 May 2025 14:00:00 GMT</pubDate></item>
</channel></rss>`
	got, err := Prepare(models.Document{URL: "https://acme.com/rss", Content: feed}, ModeMarkdown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "- Annual Shareholder Meeting (2025-05-06) https://acme.com/agm"
	if !strings.Contains(got, want) {
		t.Errorf("expected %q in %q", want, got)
	}
}
