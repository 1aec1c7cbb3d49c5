// Package browser adapts a headless Chromium instance, via go-rod, into
// the Collector contract consumed by the Scraper Worker (C2, §4.2). It
// is grounded on the teacher's internal/fetcher/browser.go page-pool
// pattern, narrowed from a general request/response fetcher down to a
// single capture(url, opts) operation.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/rivalscope/corewatch/internal/errkind"
)

// Capture is the raw result of rendering a URL, consumed by the
// Scraper Worker before it builds a domain.SnapshotMetadata.
type Capture struct {
	HTML          string
	Title         string
	HTTPStatus    int
	ContentLength int
	DurationMS    int64
	FinalURL      string
}

// Options configures a single capture call.
type Options struct {
	Timeout              time.Duration
	BlockedResourceTypes []string
	Stealth              bool
}

// Collector is the contract the Scraper Worker depends on; it is
// narrow on purpose so the worker can be tested against a fake without
// a real browser.
type Collector interface {
	Capture(ctx context.Context, url string, opts Options) (*Capture, error)
	Close() error
}

// RodCollector implements Collector with a pooled headless Chromium
// instance (adapted from BrowserFetcher.getPage/putPage).
type RodCollector struct {
	browser  *rod.Browser
	logger   *slog.Logger
	mu       sync.Mutex
	pagePool chan *rod.Page
	maxPages int
}

// NewRodCollector launches a headless Chromium instance and returns a
// Collector backed by it.
func NewRodCollector(maxPages int, logger *slog.Logger) (*RodCollector, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-web-security").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("disable-blink-features", "AutomationControlled")

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if maxPages <= 0 {
		maxPages = 5
	}

	rc := &RodCollector{
		browser:  browser,
		logger:   logger.With("component", "browser_collector"),
		pagePool: make(chan *rod.Page, maxPages),
		maxPages: maxPages,
	}
	rc.logger.Info("browser collector ready", "max_pages", maxPages)
	return rc, nil
}

func blockedResourceMap(types []string) map[proto.NetworkResourceType]bool {
	m := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		switch strings.ToLower(t) {
		case "image":
			m[proto.NetworkResourceTypeImage] = true
		case "font":
			m[proto.NetworkResourceTypeFont] = true
		case "media":
			m[proto.NetworkResourceTypeMedia] = true
		case "stylesheet":
			m[proto.NetworkResourceTypeStylesheet] = true
		case "script":
			m[proto.NetworkResourceTypeScript] = true
		}
	}
	return m
}

// Capture navigates to url, waits for the page to settle, and returns
// the rendered HTML. Failures are classified into the §4.2 taxonomy so
// the caller's retry policy can branch on Kind without inspecting the
// underlying error.
func (rc *RodCollector) Capture(ctx context.Context, url string, opts Options) (*Capture, error) {
	start := time.Now()

	page, err := rc.getPage()
	if err != nil {
		return nil, errkind.New("browser", errkind.KindConnection, "", fmt.Errorf("acquire page: %w", err))
	}
	defer rc.putPage(page)

	if opts.Stealth {
		page, err = stealth.Page(rc.browser)
		if err != nil {
			return nil, errkind.New("browser", errkind.KindConnection, "", fmt.Errorf("stealth page: %w", err))
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if blocked := blockedResourceMap(opts.BlockedResourceTypes); len(blocked) > 0 {
		router := page.HijackRequests()
		router.MustAdd("*", func(h *rod.Hijack) {
			if blocked[h.Request.Type()] {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
			h.ContinueRequest(&proto.FetchContinueRequest{})
		})
		go router.Run()
		defer router.Stop()
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	page = page.Context(pctx)

	if err := page.Timeout(timeout).Navigate(url); err != nil {
		if pctx.Err() != nil {
			return nil, errkind.New("browser", errkind.KindTimeout, "", err)
		}
		return nil, errkind.New("browser", classifyNavError(err), "", err)
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		rc.logger.Warn("page stability timeout, continuing", "url", url, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, errkind.New("browser", errkind.KindParse, "", fmt.Errorf("read html: %w", err))
	}

	finalURL := url
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	rc.logger.Debug("capture complete", "url", url, "final_url", finalURL, "size", len(html), "duration", duration)

	return &Capture{
		HTML:          html,
		HTTPStatus:    200,
		ContentLength: len(html),
		DurationMS:    duration.Milliseconds(),
		FinalURL:      finalURL,
	}, nil
}

// classifyNavError makes a best-effort guess at a Kind from a Rod
// navigation error's message, since Rod doesn't surface a structured
// DNS/connection-refused distinction the way net.Error does.
func classifyNavError(err error) errkind.Kind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "name not resolved") || strings.Contains(msg, "dns"):
		return errkind.KindDNS
	case strings.Contains(msg, "refused") || strings.Contains(msg, "reset"):
		return errkind.KindConnection
	case strings.Contains(msg, "net::err_blocked") || strings.Contains(msg, "blocked"):
		return errkind.KindBlocked
	default:
		return errkind.KindUnknown
	}
}

// Close shuts down the pooled pages and the browser itself.
func (rc *RodCollector) Close() error {
	close(rc.pagePool)
	for page := range rc.pagePool {
		_ = page.Close()
	}
	if rc.browser != nil {
		return rc.browser.Close()
	}
	return nil
}

func (rc *RodCollector) getPage() (*rod.Page, error) {
	select {
	case page := <-rc.pagePool:
		return page, nil
	default:
		return rc.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
}

func (rc *RodCollector) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")
	select {
	case rc.pagePool <- page:
	default:
		_ = page.Close()
	}
}

var _ Collector = (*RodCollector)(nil)
