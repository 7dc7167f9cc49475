// File: internal/apiclient/executor.go
//
// Package apiclient issues direct API requests against the target site. It
// owns the retry/backoff loop and the response classification that decides
// whether an attempt failed transiently, or in a way that requires the
// session to be rebuilt first.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tokgrab/internal/config"
	"tokgrab/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Executor performs one logical API call with retries. It never returns
// partial data: either a decoded JSON document or the last error seen.
type Executor struct {
	cfg        config.HTTPConfig
	searchURL  string
	client     *resty.Client
	store      *session.Store
	classifier Classifier
	sleep      session.SleepFunc
	now        func() time.Time
	logger     *zap.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithSleep replaces the backoff sleep, used by tests.
func WithSleep(fn session.SleepFunc) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// WithClassifier replaces the response classification policy.
func WithClassifier(c Classifier) ExecutorOption {
	return func(e *Executor) { e.classifier = c }
}

// WithNow replaces the clock used for referer timestamps, used by tests.
func WithNow(fn func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = fn }
}

// NewExecutor creates an Executor bound to a session store.
func NewExecutor(cfg *config.Config, client *resty.Client, store *session.Store, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		cfg:        cfg.HTTP,
		searchURL:  cfg.Session.SearchURL,
		client:     client,
		store:      store,
		classifier: NewHeuristicClassifier(),
		sleep:      session.Sleep,
		now:        time.Now,
		logger:     logger.Named("apiclient"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute resolves the spec's parameter template, guarantees the session is
// warm, and issues the request with up to cfg.MaxAttempts tries. Backoff
// between attempts grows as base * 2^attempt. Anti-bot and malformed-JSON
// classifications force a session re-initialization before the next try.
func (e *Executor) Execute(ctx context.Context, spec *RequestSpec, dynamic map[string]string) (any, error) {
	// Template resolution happens before anything touches the network so
	// that a caller bug fails fast.
	params, err := spec.BuildParams(dynamic)
	if err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(e.cfg.BaseURL, spec.Path)
	if err != nil {
		return nil, fmt.Errorf("bad endpoint path %q: %w", spec.Path, err)
	}

	keyword := dynamic["keyword"]
	log := e.logger.With(zap.String("api", spec.Name), zap.String("keyword", keyword))

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.cfg.RetryBaseDelay * (1 << (attempt - 1))
			log.Warn("Retrying request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			if err := e.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		// A reset verdict on the previous attempt cleared the flag; this
		// re-runs the warm-up in that case and is a no-op otherwise.
		if err := e.store.EnsureInitialized(ctx); err != nil {
			return nil, err
		}

		doc, outcome := e.attempt(ctx, log, spec.Method, endpoint, params, keyword)
		if outcome.Verdict == VerdictAccept {
			return doc, nil
		}

		lastErr = outcome.Err
		if outcome.Verdict == VerdictRetryReset {
			e.store.Invalidate()
		}
	}

	log.Error("Request attempts exhausted", zap.Error(lastErr))
	return nil, lastErr
}

// attempt issues a single HTTP call and classifies the result.
func (e *Executor) attempt(ctx context.Context, log *zap.Logger, method, endpoint string, params url.Values, keyword string) (any, Outcome) {
	req := e.client.R().
		SetContext(ctx).
		SetHeaders(e.cfg.Headers).
		SetHeader("referer", e.refererFor(keyword)).
		SetCookies(e.store.Cookies())

	switch strings.ToUpper(method) {
	case http.MethodGet:
		req.SetQueryParamsFromValues(params)
	case http.MethodPost:
		req.SetFormDataFromValues(params)
	default:
		return nil, Outcome{Verdict: VerdictRetry, Err: fmt.Errorf("unsupported HTTP method %q", method)}
	}

	resp, err := req.Execute(strings.ToUpper(method), endpoint)
	if err != nil {
		return nil, Outcome{Verdict: VerdictRetry, Err: fmt.Errorf("request failed: %w", err)}
	}

	body := resp.Body()
	contentType := resp.Header().Get("Content-Type")
	log.Debug("Response received",
		zap.Int("status", resp.StatusCode()),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(body)))

	outcome := e.classifier.Classify(resp.StatusCode(), contentType, body)
	if outcome.Verdict != VerdictAccept {
		return nil, outcome
	}

	doc, err := decodeLenient(body)
	if err != nil {
		return nil, Outcome{
			Verdict: VerdictRetryReset,
			Err:     fmt.Errorf("%w: %v", ErrMalformedJSON, err),
		}
	}
	return doc, Outcome{Verdict: VerdictAccept}
}

// refererFor synthesizes the referer header the site expects: the search URL
// with the URL-encoded keyword and a millisecond timestamp.
func (e *Executor) refererFor(keyword string) string {
	return fmt.Sprintf("%s?q=%s&t=%d", e.searchURL, url.QueryEscape(keyword), e.now().UnixMilli())
}

// decodeLenient parses the body as JSON; when that fails it salvages the
// largest brace-delimited substring and tries again. Some blocked responses
// wrap the real payload in HTML noise.
func decodeLenient(body []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err == nil {
		return doc, nil
	}

	start := bytes.IndexByte(body, '{')
	end := bytes.LastIndexByte(body, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal(body[start:end+1], &doc); err == nil {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("no parseable JSON in %d byte body", len(body))
}
