package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/models"
	"github.com/TobiSchelling/irevents/internal/report"
	"github.com/TobiSchelling/irevents/internal/ticker"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const shutdownGrace = 5 * time.Second

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Runner executes the event pipeline for a raw ticker query.
type Runner interface {
	Run(ctx context.Context, query string) ([]models.Outcome, error)
}

// Server is the HTTP server for the event finder.
type Server struct {
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger
	pages   map[string]*template.Template
	mux     *http.ServeMux
}

// New creates a new Server. Every pipeline run is bounded by timeout.
func New(runner Runner, timeout time.Duration, logger *zap.Logger) (*Server, error) {
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"report": func(o models.Outcome) string {
			return report.Markdown([]models.Outcome{o})
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{runner: runner, timeout: timeout, logger: logger, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("tickers"))
	data := map[string]any{"Query": query}
	if query == "" {
		s.render(w, "index.html", data)
		return
	}

	outcomes, err := s.run(r, query)
	switch {
	case errors.Is(err, ticker.ErrEmptyInput):
		data["Error"] = "No ticker symbols found in the input."
	case err != nil:
		s.logger.Error("run failed", zap.String("query", query), zap.Error(err))
		data["Error"] = "Something went wrong while looking up events."
	default:
		data["Outcomes"] = outcomes
		data["Calendar"] = report.Calendar(outcomes)
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("tickers"))
	outcomes, err := s.run(r, query)
	switch {
	case errors.Is(err, ticker.ErrEmptyInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		s.logger.Error("run failed", zap.String("query", query), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	default:
		writeJSON(w, http.StatusOK, report.NewResponse(outcomes))
	}
}

// run executes the pipeline under the request deadline. Tickers still
// working at the deadline come back as failed outcomes.
func (s *Server) run(r *http.Request, query string) ([]models.Outcome, error) {
	if query == "" {
		return nil, ticker.ErrEmptyInput
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	outcomes, err := s.runner.Run(ctx, query)
	s.logger.Info("handled query",
		zap.String("path", r.URL.Path),
		zap.String("query", query),
		zap.Int("outcomes", len(outcomes)),
		zap.Duration("duration", time.Since(start)))
	return outcomes, err
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Error("rendering template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port and blocks until ctx is
// cancelled, then shuts down gracefully. Requests still running when ctx
// ends see their context cancelled.
func Serve(ctx context.Context, runner Runner, port int, timeout time.Duration, logger *zap.Logger) error {
	srv, err := New(runner, timeout, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      srv.timeout + 30*time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("url", "http://"+addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed, closing", zap.Error(err))
		httpServer.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
