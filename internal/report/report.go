// Package report renders pipeline outcomes for people and programs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/TobiSchelling/irevents/internal/models"
)

// Response is the JSON document returned by the API and the CLI.
type Response struct {
	Outcomes []models.Outcome `json:"outcomes"`
	Calendar []models.Event   `json:"calendar"`
}

// NewResponse bundles outcomes with their merged calendar.
func NewResponse(outcomes []models.Outcome) Response {
	if outcomes == nil {
		outcomes = []models.Outcome{}
	}
	return Response{Outcomes: outcomes, Calendar: Calendar(outcomes)}
}

// Calendar flattens the events of every successful outcome, sorted by date
// then ticker. Events keep their input order within a day and ticker.
func Calendar(outcomes []models.Outcome) []models.Event {
	events := []models.Event{}
	for _, o := range outcomes {
		if o.Failed() {
			continue
		}
		for _, e := range o.Events {
			if e.Ticker == "" {
				e.Ticker = o.Ticker
			}
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].Ticker < events[j].Ticker
	})
	return events
}

// JSON encodes outcomes and calendar compactly.
func JSON(outcomes []models.Outcome) ([]byte, error) {
	return json.Marshal(NewResponse(outcomes))
}

// PrettyJSON encodes outcomes and calendar for terminals.
func PrettyJSON(outcomes []models.Outcome) ([]byte, error) {
	data, err := JSON(outcomes)
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(data), nil
}

// Markdown renders one section per ticker.
func Markdown(outcomes []models.Outcome) string {
	var b strings.Builder
	for i, o := range outcomes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", o.Ticker)
		writeOutcome(&b, o)
	}
	return b.String()
}

func writeOutcome(b *strings.Builder, o models.Outcome) {
	switch {
	case o.Failed() && o.Err.Kind == models.ErrorTokenLimit:
		fmt.Fprintf(b, "**Token limit exceeded.** The investor relations page for %s holds more content than the extraction model accepts.\n", o.Ticker)
		if o.IRPageURL != "" {
			fmt.Fprintf(b, "Visit it directly to find the events: [%s investor relations](%s)\n", o.Ticker, o.IRPageURL)
		}
	case o.Failed() && o.Err.Kind == models.ErrorInvalidFormat:
		b.WriteString("**Invalid format.** The extracted events did not match the expected structure.\n")
		writeSource(b, o)
	case o.Failed():
		fmt.Fprintf(b, "**Error:** %s\n", o.Err.Message)
		writeSource(b, o)
	case len(o.Events) == 0:
		fmt.Fprintf(b, "No events found for %s.\n", o.Ticker)
		writeSource(b, o)
	default:
		writeSource(b, o)
		b.WriteString("\n| Date | Time | Event | Type |\n|---|---|---|---|\n")
		for _, e := range o.Events {
			fmt.Fprintf(b, "| %s | %s | [%s](%s) | %s |\n",
				e.Date, cell(e.Time), cell(e.EventName), e.Link, e.EventType)
		}
	}
}

func writeSource(b *strings.Builder, o models.Outcome) {
	if o.IRPageURL != "" {
		fmt.Fprintf(b, "\nSource: [%s](%s)\n", o.IRPageURL, o.IRPageURL)
	}
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

// Table writes a plain-text summary, one block per ticker.
func Table(w io.Writer, outcomes []models.Outcome) {
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s", o.Ticker)
		if o.IRPageURL != "" {
			fmt.Fprintf(w, "  %s", o.IRPageURL)
		}
		fmt.Fprintln(w)

		if o.Failed() {
			fmt.Fprintf(w, "  error: %s\n\n", o.ErrorLabel())
			continue
		}
		if len(o.Events) == 0 {
			fmt.Fprintf(w, "  no events found\n\n")
			continue
		}
		for _, e := range o.Events {
			fmt.Fprintf(w, "  %s  %-12s  %-20s  %s\n", e.Date, e.Time, e.EventType, e.EventName)
		}
		fmt.Fprintln(w)
	}
}
