package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/TobiSchelling/irevents/internal/models"
)

func sampleOutcomes() []models.Outcome {
	return []models.Outcome{
		models.Succeeded("MSFT", "https://microsoft.com/ir", []models.Event{
			{EventName: "Q2 FY25 Earnings Call", Link: "https://example.com/q2", Date: "2025-04-24", Time: "5:30 PM ET", EventType: models.EventEarningsCall, Ticker: "MSFT"},
			{EventName: "Q1 FY25 Earnings Call", Link: "https://example.com/q1", Date: "2025-01-28", Time: "5:30 PM ET", EventType: models.EventEarningsCall, Ticker: "MSFT"},
		}),
		models.Succeeded("AAPL", "https://investor.apple.com", []models.Event{
			{EventName: "Q1 2025 Call", Link: "https://example.com/aapl", Date: "2025-01-28", Time: "2:00 PM PT", EventType: models.EventEarningsCall, Ticker: "AAPL"},
		}),
		models.Failed("GOOGL", "https://abc.xyz/investor", models.ErrorTokenLimit, "token limit exceeded"),
		models.Failed("XOM", "", models.ErrorGeneric, "search lookup for XOM failed: status 401"),
		models.Succeeded("ZZZZ", "", nil),
	}
}

func TestCalendarSortsByDateThenTicker(t *testing.T) {
	cal := Calendar(sampleOutcomes())
	if len(cal) != 3 {
		t.Fatalf("expected 3 events, got %d", len(cal))
	}
	got := []string{cal[0].Ticker + " " + cal[0].Date, cal[1].Ticker + " " + cal[1].Date, cal[2].Ticker + " " + cal[2].Date}
	want := []string{"AAPL 2025-01-28", "MSFT 2025-01-28", "MSFT 2025-04-24"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCalendarStampsMissingTicker(t *testing.T) {
	cal := Calendar([]models.Outcome{models.Succeeded("IBM", "", []models.Event{{EventName: "AGM", Date: "2025-04-29"}})})
	if cal[0].Ticker != "IBM" {
		t.Errorf("expected ticker stamped, got %q", cal[0].Ticker)
	}
}

func TestMarkdownSections(t *testing.T) {
	md := Markdown(sampleOutcomes())
	for _, want := range []string{
		"## MSFT",
		"| 2025-04-24 | 5:30 PM ET | [Q2 FY25 Earnings Call](https://example.com/q2) | Earnings Calls |",
		"[GOOGL investor relations](https://abc.xyz/investor)",
		"**Error:** search lookup for XOM failed: status 401",
		"No events found for ZZZZ.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in markdown:\n%s", want, md)
		}
	}
}

func TestJSONShape(t *testing.T) {
	data, err := JSON(sampleOutcomes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded struct {
		Outcomes []map[string]any `json:"outcomes"`
		Calendar []models.Event   `json:"calendar"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Outcomes) != 5 || len(decoded.Calendar) != 3 {
		t.Fatalf("unexpected sizes: %d outcomes, %d calendar", len(decoded.Outcomes), len(decoded.Calendar))
	}
	if decoded.Outcomes[2]["error"] != "TOKEN_LIMIT_EXCEEDED" {
		t.Errorf("expected token limit label, got %v", decoded.Outcomes[2]["error"])
	}
	if _, ok := decoded.Outcomes[2]["events"]; ok {
		t.Error("failed outcome must not carry events")
	}
}

func TestJSONEmpty(t *testing.T) {
	data, err := JSON(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"outcomes":[],"calendar":[]}` {
		t.Errorf("unexpected encoding %s", data)
	}
}

func TestPrettyJSONIsIndented(t *testing.T) {
	data, err := PrettyJSON(sampleOutcomes()[:1])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(data, []byte("\n  \"outcomes\"")) {
		t.Errorf("expected indented output, got %s", data)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	Table(&buf, sampleOutcomes())
	out := buf.String()
	if !strings.Contains(out, "error: TOKEN_LIMIT_EXCEEDED") || !strings.Contains(out, "no events found") {
		t.Errorf("unexpected table:\n%s", out)
	}
}
