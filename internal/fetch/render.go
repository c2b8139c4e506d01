package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/TobiSchelling/irevents/internal/models"
)

// RenderConfig controls the headless browser fetch.
type RenderConfig struct {
	Headless     bool
	UserAgent    string
	Timeout      time.Duration // whole fetch
	IdleTimeout  time.Duration // max wait for network idle
	Settle       time.Duration // wait after network idle
	ScrollSettle time.Duration // wait after scrolling to the bottom
}

// DefaultRenderConfig mirrors what IR pages built on client-side widgets need.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Headless:     true,
		UserAgent:    defaultUserAgent,
		Timeout:      90 * time.Second,
		IdleTimeout:  30 * time.Second,
		Settle:       5 * time.Second,
		ScrollSettle: 2 * time.Second,
	}
}

// RenderedFetcher loads pages in a headless Chrome so script-built content is
// present in the captured markup. Each call owns its own browser.
type RenderedFetcher struct {
	config RenderConfig
	logger *zap.Logger
}

// NewRenderedFetcher creates a new rendering fetcher.
func NewRenderedFetcher(config RenderConfig, logger *zap.Logger) *RenderedFetcher {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = 90 * time.Second
	}
	return &RenderedFetcher{config: config, logger: logger}
}

// Fetch navigates to rawURL, waits for the network to go idle, scrolls to the
// bottom to trigger lazy content and returns the rendered markup. The browser
// is shut down before returning on every path.
func (f *RenderedFetcher) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	if rawURL == "" {
		return emptyDocument(), nil
	}
	if err := checkURL(rawURL); err != nil {
		return models.Document{}, &FetchError{URL: rawURL, Err: err}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(f.config.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, f.config.Timeout)
	defer cancel()

	watcher := newIdleWatcher()
	chromedp.ListenTarget(runCtx, func(ev any) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			watcher.observe(e.FrameID, e.LoaderID)
		}
	})

	start := time.Now()
	var html string
	err := chromedp.Run(runCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameID, loaderID, errorText, _, err := page.Navigate(rawURL).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("page load error %s", errorText)
			}
			watcher.arm(frameID, loaderID)
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitIdle(ctx, watcher.idle, f.config.IdleTimeout)
		}),
		chromedp.Sleep(f.config.Settle),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(f.config.ScrollSettle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return models.Document{}, &FetchError{URL: rawURL, Err: err}
	}

	f.logger.Debug("rendered page",
		zap.String("url", rawURL),
		zap.Int("bytes", len(html)),
		zap.Duration("duration", time.Since(start)))

	return models.Document{
		URL:       rawURL,
		Content:   html,
		Method:    models.FetchRendered,
		FetchedAt: time.Now(),
	}, nil
}

// idleWatcher closes idle once the main frame's navigation reaches network
// idle. Events from iframes or the initial blank document are ignored. Idle
// events seen before the navigation ids are known are kept so a fast page
// is not missed.
type idleWatcher struct {
	mu     sync.Mutex
	armed  bool
	frame  cdp.FrameID
	loader cdp.LoaderID
	early  map[cdp.LoaderID]cdp.FrameID
	idle   chan struct{}
	once   sync.Once
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{early: make(map[cdp.LoaderID]cdp.FrameID), idle: make(chan struct{})}
}

// observe records a networkIdle lifecycle event.
func (w *idleWatcher) observe(frame cdp.FrameID, loader cdp.LoaderID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		w.early[loader] = frame
		return
	}
	if w.matches(frame, loader) {
		w.once.Do(func() { close(w.idle) })
	}
}

// arm sets the navigation to wait for. An empty loader matches any loader
// in the frame, as for same-document navigations.
func (w *idleWatcher) arm(frame cdp.FrameID, loader cdp.LoaderID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed, w.frame, w.loader = true, frame, loader
	for l, f := range w.early {
		if w.matches(f, l) {
			w.once.Do(func() { close(w.idle) })
			break
		}
	}
	w.early = nil
}

func (w *idleWatcher) matches(frame cdp.FrameID, loader cdp.LoaderID) bool {
	return frame == w.frame && (w.loader == "" || loader == w.loader)
}

// waitIdle blocks until idle closes, the timeout passes or ctx ends. Hitting
// the timeout is not an error; some pages never go idle.
func waitIdle(ctx context.Context, idle <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
