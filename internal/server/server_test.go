package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/models"
	"github.com/TobiSchelling/irevents/internal/ticker"
)

type fakeRunner struct {
	outcomes    []models.Outcome
	err         error
	gotQuery    string
	gotDeadline bool
}

func (f *fakeRunner) Run(ctx context.Context, query string) ([]models.Outcome, error) {
	f.gotQuery = query
	_, f.gotDeadline = ctx.Deadline()
	return f.outcomes, f.err
}

func sampleRunner() *fakeRunner {
	return &fakeRunner{outcomes: []models.Outcome{
		models.Succeeded("MSFT", "https://microsoft.com/ir", []models.Event{{
			EventName: "Q1 FY25 Earnings Call",
			Link:      "https://example.com/webcast",
			Date:      "2025-01-28",
			Time:      "5:30 PM ET",
			EventType: models.EventEarningsCall,
			Ticker:    "MSFT",
		}}),
		models.Failed("GOOGL", "https://abc.xyz/investor", models.ErrorTokenLimit, "token limit exceeded"),
	}}
}

func newTestServer(t *testing.T, runner Runner) *Server {
	t.Helper()
	srv, err := New(runner, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func TestIndexRouteShowsForm(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, runner)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `name="tickers"`) {
		t.Error("expected ticker form in response body")
	}
	if runner.gotQuery != "" {
		t.Error("pipeline should not run without a query")
	}
}

func TestIndexRouteRendersResults(t *testing.T) {
	runner := sampleRunner()
	srv := newTestServer(t, runner)

	req := httptest.NewRequest("GET", "/?tickers=MSFT,+GOOGL", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Q1 FY25 Earnings Call",
		"<table>",
		"Token limit exceeded",
		`href="https://abc.xyz/investor"`,
		"2025-01-28",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in response body", want)
		}
	}
	if runner.gotQuery != "MSFT, GOOGL" {
		t.Errorf("unexpected query %q", runner.gotQuery)
	}
	if !runner.gotDeadline {
		t.Error("expected the run to carry a deadline")
	}
}

func TestIndexRouteEmptyInput(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{err: ticker.ErrEmptyInput})

	req := httptest.NewRequest("GET", "/?tickers=%3F%3F", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No ticker symbols found") {
		t.Error("expected empty input message")
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{})

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestEventsAPI(t *testing.T) {
	srv := newTestServer(t, sampleRunner())

	req := httptest.NewRequest("GET", "/api/events?tickers=MSFT,GOOGL", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var resp struct {
		Outcomes []map[string]any `json:"outcomes"`
		Calendar []models.Event   `json:"calendar"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Outcomes) != 2 || len(resp.Calendar) != 1 {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}
	if resp.Outcomes[1]["error"] != "TOKEN_LIMIT_EXCEEDED" || resp.Outcomes[1]["irPageUrl"] != "https://abc.xyz/investor" {
		t.Errorf("unexpected failed outcome %v", resp.Outcomes[1])
	}
}

func TestEventsAPIEmptyQuery(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, runner)

	req := httptest.NewRequest("GET", "/api/events", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestEventsAPIRunnerEmptyInput(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{err: ticker.ErrEmptyInput})

	req := httptest.NewRequest("GET", "/api/events?tickers=and+also", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestEventsAPIInternalError(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{err: errors.New("boom")})

	req := httptest.NewRequest("GET", "/api/events?tickers=MSFT", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("internal error details should not leak")
	}
}

func TestEventsAPIRejectsPost(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{})

	req := httptest.NewRequest("POST", "/api/events", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{})

	req := httptest.NewRequest("GET", "/static/style.css", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for static file, got %d", rec.Code)
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("**bold** <script>alert(1)</script>"))
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("expected bold rendering, got %q", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML must not pass through, got %q", got)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, &fakeRunner{}, 0, time.Minute, zap.NewNop())
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, &fakeRunner{}, 0, time.Minute, zap.NewNop())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return for a cancelled context")
	}
}
