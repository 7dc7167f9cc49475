// File: internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tokgrab/internal/config"
	"tokgrab/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const launchProbeTimeout = 30 * time.Second

// Session is the chromedp-backed Automation. One Session is one browser
// process with one tab, created per crawl run and closed afterwards.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	capture *captureLog
	sleep   session.SleepFunc
}

// NewSession launches the browser process, applies the stealth persona, and
// starts the network capture listener. A launch failure comes back wrapped
// in ErrUnavailable so callers can degrade instead of aborting.
func NewSession(ctx context.Context, cfg config.BrowserConfig, userAgent string, logger *zap.Logger) (*Session, error) {
	s := &Session{
		cfg:     cfg,
		logger:  logger.Named("browser"),
		capture: newCaptureLog(logger),
		sleep:   session.Sleep,
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg, userAgent)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.allocCtx, s.allocCancel = allocCtx, allocCancel
	s.tabCtx, s.tabCancel = tabCtx, tabCancel

	probeCtx, cancel := context.WithTimeout(tabCtx, launchProbeTimeout)
	defer cancel()

	if err := chromedp.Run(probeCtx, stealthTasks(userAgent)); err != nil {
		s.teardown()
		return nil, fmt.Errorf("%w: launch failed: %v", ErrUnavailable, err)
	}
	if err := s.capture.attach(tabCtx); err != nil {
		s.teardown()
		return nil, fmt.Errorf("%w: network capture: %v", ErrUnavailable, err)
	}

	s.logger.Info("Browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height))
	return s, nil
}

// allocatorOptions assembles the launch flags. The default enable-automation
// flag is switched off, since pages can detect it.
func allocatorOptions(cfg config.BrowserConfig, userAgent string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(cfg.Width, cfg.Height),
		chromedp.UserAgent(userAgent),
	)

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// Navigate implements Automation. The post-load wait gives the client-side
// renderer and its XHR burst time to settle before anything inspects the
// page or the capture log.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating", zap.String("url", url))

	navCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.PageLoadTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return s.sleep(ctx, s.cfg.PostLoadWait)
}

// Cookies implements Automation.
func (s *Session) Cookies(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		cookies, err := storage.GetCookies().Do(c)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			out[ck.Name] = ck.Value
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read browser cookies: %w", err)
	}
	return out, nil
}

// CapturedEntries implements Automation.
func (s *Session) CapturedEntries() []CaptureEntry {
	return s.capture.snapshot()
}

// ResponseBody implements Automation.
func (s *Session) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	var body []byte
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		body, err = network.GetResponseBody(network.RequestID(requestID)).Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch body for request %s: %w", requestID, err)
	}
	return body, nil
}

// QueryElements implements Automation: the query runs entirely inside the
// page and returns plain object literals that unmarshal into ElementRecord.
func (s *Session) QueryElements(ctx context.Context, opts ElementQueryOptions) ([]ElementRecord, error) {
	optsJSON, err := json.MarshalToString(opts2js(opts))
	if err != nil {
		return nil, err
	}

	var records []ElementRecord
	script := fmt.Sprintf(elementQueryScript, optsJSON)
	if err := s.run(ctx, chromedp.Evaluate(script, &records)); err != nil {
		return nil, fmt.Errorf("element query failed: %w", err)
	}
	return records, nil
}

// Info implements Automation.
func (s *Session) Info(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	script := `({
		url: window.location.href,
		title: document.title,
		body_text: document.body ? document.body.innerText.substring(0, 1000) : "",
	})`
	if err := s.run(ctx, chromedp.Evaluate(script, &info)); err != nil {
		return PageInfo{}, fmt.Errorf("failed to read page info: %w", err)
	}
	return info, nil
}

// PageSource implements Automation.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	return html, nil
}

// Screenshot implements Automation.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var png []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&png)); err != nil {
		return fmt.Errorf("screenshot capture failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

// Close implements Automation.
func (s *Session) Close(ctx context.Context) error {
	s.logger.Debug("Closing browser")
	s.teardown()
	return nil
}

func (s *Session) teardown() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// run executes actions on the tab while honoring the caller's deadline.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.tabCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(s.tabCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// opts2js lowers ElementQueryOptions to the shape the query script expects.
func opts2js(opts ElementQueryOptions) map[string]any {
	return map[string]any{
		"selectors":       opts.Selectors,
		"title_selectors": opts.TitleSelectors,
		"limit":           opts.Limit,
		"max_text_length": opts.MaxTextLength,
		"link_host":       opts.LinkHost,
	}
}

// elementQueryScript runs the selector cascade in the page. The cascade
// stops at the first selector with matches; when none match it falls back
// to anchors that look like content links. Elements are kept only when they
// carry a link, text, or a probed title.
const elementQueryScript = `(() => {
	const opts = %s;

	let elements = [];
	for (const sel of opts.selectors) {
		try {
			const found = document.querySelectorAll(sel);
			if (found.length > 0) {
				elements = Array.from(found);
				break;
			}
		} catch (e) { /* invalid selector, keep going */ }
	}
	if (elements.length === 0) {
		elements = Array.from(document.querySelectorAll('a[href]'))
			.filter(a => !opts.link_host || a.href.includes(opts.link_host));
	}

	const records = [];
	for (let i = 0; i < elements.length && records.length < opts.limit; i++) {
		const el = elements[i];
		const record = {
			index: records.length,
			tag: el.tagName.toLowerCase(),
		};

		if (el.className && typeof el.className === 'string') {
			record.class = el.className;
		}
		const testId = el.getAttribute('data-e2e');
		if (testId) record.test_id = testId;
		if (el.id) record.id = el.id;

		const text = (el.innerText || '').trim();
		if (text) record.text = text.substring(0, opts.max_text_length);

		const anchor = el.tagName === 'A' ? el : el.querySelector('a[href]');
		if (anchor && anchor.href &&
			(!opts.link_host || anchor.href.includes(opts.link_host))) {
			record.link = anchor.href;
		}

		const img = el.querySelector('img[src]');
		if (img) record.image = img.src;

		for (const sel of opts.title_selectors) {
			const t = el.querySelector(sel);
			if (t && t.innerText && t.innerText.trim()) {
				record.title = t.innerText.trim();
				break;
			}
		}

		if (record.link || record.text || record.title) {
			records.push(record);
		}
	}
	return records;
})()`
