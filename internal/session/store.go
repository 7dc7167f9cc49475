// File: internal/session/store.go
//
// Package session owns the cookie state shared by the direct API path and
// the browser fallback. A Store is created per crawl run and is either fully
// uninitialized or has at least attempted the home-page + search-page
// warm-up sequence before any API call goes out.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"tokgrab/internal/config"
)

// ErrWarmup indicates the warm-up sequence did not complete.
var ErrWarmup = errors.New("session warm-up failed")

// SleepFunc is a context-aware pause. Injected so tests can observe pacing
// and backoff without waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc: a blocking wait that aborts when the
// context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Store holds the cookie mapping and initialization state for one crawl run.
// Cookies arrive from two channels: Set-Cookie headers harvested during the
// warm-up requests, and cookies read out of the browser after navigation.
type Store struct {
	cfg    config.SessionConfig
	client *resty.Client
	logger *zap.Logger
	sleep  SleepFunc

	mu          sync.Mutex
	cookies     map[string]string
	initialized bool
	lastInit    time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithSleep replaces the pacing sleep, used by tests.
func WithSleep(fn SleepFunc) Option {
	return func(s *Store) { s.sleep = fn }
}

// NewStore creates a Store seeded with the statically configured cookies.
func NewStore(cfg config.SessionConfig, client *resty.Client, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		cfg:     cfg,
		client:  client,
		logger:  logger.Named("session"),
		sleep:   Sleep,
		cookies: make(map[string]string, len(cfg.SeedCookies)),
	}
	for name, value := range cfg.SeedCookies {
		s.cookies[name] = value
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureInitialized performs the warm-up sequence once: fetch the landing
// page, pace, then fetch the search page with the landing page as referer.
// Idempotent; returns immediately when the session is already warm.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("Initializing session", zap.String("home_url", s.cfg.HomeURL))

	if err := s.warmupRequest(ctx, s.cfg.HomeURL, ""); err != nil {
		return fmt.Errorf("%w: landing page: %v", ErrWarmup, err)
	}

	if err := s.sleep(ctx, s.cfg.WarmupDelay); err != nil {
		return fmt.Errorf("%w: %v", ErrWarmup, err)
	}

	if err := s.warmupRequest(ctx, s.cfg.SearchURL, s.cfg.HomeURL); err != nil {
		return fmt.Errorf("%w: search page: %v", ErrWarmup, err)
	}

	s.mu.Lock()
	s.initialized = true
	s.lastInit = time.Now()
	cookieCount := len(s.cookies)
	s.mu.Unlock()

	s.logger.Info("Session initialized", zap.Int("cookies", cookieCount))
	return nil
}

// warmupRequest issues one warm-up GET and harvests any Set-Cookie values
// from the response.
func (s *Store) warmupRequest(ctx context.Context, url, referer string) error {
	req := s.client.R().
		SetContext(ctx).
		SetCookies(s.Cookies())
	if referer != "" {
		req.SetHeader("referer", referer)
	}

	resp, err := req.Get(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	harvested := make(map[string]string)
	for _, c := range resp.Cookies() {
		if c.Name != "" {
			harvested[c.Name] = c.Value
		}
	}
	if len(harvested) > 0 {
		s.MergeCookies(harvested)
	}

	s.logger.Debug("Warm-up request complete",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode()),
		zap.Int("set_cookies", len(harvested)))
	return nil
}

// Invalidate resets the initialized flag so that the next call to
// EnsureInitialized repeats the warm-up. Cookies are kept; fresher values
// simply overlay them on the next merge.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		s.logger.Warn("Session invalidated")
	}
	s.initialized = false
}

// Initialized reports whether the warm-up sequence has completed.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// LastInit returns the time of the most recent successful warm-up.
func (s *Store) LastInit() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInit
}

// MergeCookies overlays new name/value pairs onto the existing mapping.
// Later sources win on collision: browser-harvested cookies are fresher than
// statically seeded ones.
func (s *Store) MergeCookies(cookies map[string]string) {
	if len(cookies) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range cookies {
		s.cookies[name] = value
	}
}

// Cookies returns a snapshot of the current cookie set, scoped to the
// configured domain, ready to attach to an outgoing request.
func (s *Store) Cookies() []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*http.Cookie, 0, len(s.cookies))
	for name, value := range s.cookies {
		out = append(out, &http.Cookie{
			Name:   name,
			Value:  value,
			Domain: s.cfg.CookieDomain,
		})
	}
	return out
}

// CookieMap returns a copy of the raw name to value mapping.
func (s *Store) CookieMap() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.cookies))
	for name, value := range s.cookies {
		out[name] = value
	}
	return out
}
