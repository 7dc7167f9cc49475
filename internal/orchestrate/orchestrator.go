// File: internal/orchestrate/orchestrator.go
//
// Package orchestrate walks the acquisition fallback chain for one keyword:
// direct API call, then network interception, then DOM scraping, then a
// bare page-info capture. Stage failures escalate; they never propagate out
// of Acquire.
package orchestrate

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"tokgrab/internal/apiclient"
	"tokgrab/internal/browser"
	"tokgrab/internal/config"
	"tokgrab/internal/domscrape"
	"tokgrab/internal/intercept"
)

// ErrBrowserUnavailable marks a browser that is disabled by config or failed
// to launch; the chain then ends after the direct API stage.
var ErrBrowserUnavailable = errors.New("browser stages unavailable")

// Result is the tagged output of an acquisition. Exactly one payload field
// is populated, indicated by Stage.
type Result struct {
	Keyword string
	Stage   Stage

	API         any
	Intercepted *intercept.Captured
	DOM         *domscrape.Extraction
	Info        *browser.PageInfo
}

// APIExecutor is the direct-request capability the orchestrator needs.
type APIExecutor interface {
	Execute(ctx context.Context, spec *apiclient.RequestSpec, dynamic map[string]string) (any, error)
}

// CookieSink receives cookies harvested from the browser.
type CookieSink interface {
	MergeCookies(cookies map[string]string)
}

// BrowserFactory opens a browser session. Wrapping the constructor lets
// tests substitute a fake and lets the orchestrator defer the launch cost
// until a browser stage is actually reached.
type BrowserFactory func(ctx context.Context) (browser.Automation, error)

// Orchestrator drives the fallback chain.
type Orchestrator struct {
	cfg         *config.Config
	spec        *apiclient.RequestSpec
	executor    APIExecutor
	cookies     CookieSink
	interceptor *intercept.Interceptor
	extractor   *domscrape.Extractor
	newBrowser  BrowserFactory
	logger      *zap.Logger
}

// New creates an Orchestrator. newBrowser may be nil when browser automation
// is disabled outright.
func New(
	cfg *config.Config,
	spec *apiclient.RequestSpec,
	executor APIExecutor,
	cookies CookieSink,
	interceptor *intercept.Interceptor,
	extractor *domscrape.Extractor,
	newBrowser BrowserFactory,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		spec:        spec,
		executor:    executor,
		cookies:     cookies,
		interceptor: interceptor,
		extractor:   extractor,
		newBrowser:  newBrowser,
		logger:      logger.Named("orchestrate"),
	}
}

// Acquire runs the chain for one keyword. It returns nil only on total
// failure; a page-info capture still counts as a (degraded) result. Errors
// are logged at each stage and converted into escalation, never returned.
func (o *Orchestrator) Acquire(ctx context.Context, keyword string) *Result {
	log := o.logger.With(zap.String("keyword", keyword))

	var auto browser.Automation
	browserOK := o.cfg.Browser.Enabled && o.newBrowser != nil
	defer func() {
		if auto != nil {
			if err := auto.Close(context.WithoutCancel(ctx)); err != nil {
				log.Debug("Browser close failed", zap.Error(err))
			}
		}
	}()

	var result *Result
	for stage := StageAPIDirect; stage != StageDone; {
		log.Info("Entering acquisition stage", zap.Stringer("stage", stage))

		// Browser stages need a live page; open and prime it on first entry.
		if stage != StageAPIDirect && auto == nil {
			var err error
			auto, err = o.openAndPrime(ctx, keyword, log)
			if err != nil {
				log.Warn("Skipping browser stages", zap.Error(err))
				browserOK = false
				auto = nil
			}
		}
		if stage != StageAPIDirect && !browserOK {
			break
		}

		result = o.runStage(ctx, stage, keyword, auto, log)
		stage = Next(stage, result != nil, browserOK)
	}

	if result == nil {
		log.Error("All acquisition stages exhausted")
		return nil
	}
	log.Info("Acquisition complete", zap.Stringer("stage", result.Stage))
	return result
}

// runStage attempts one stage and returns its result, or nil on failure.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, keyword string, auto browser.Automation, log *zap.Logger) *Result {
	switch stage {
	case StageAPIDirect:
		doc, err := o.executor.Execute(ctx, o.spec, map[string]string{"keyword": keyword})
		if err != nil {
			log.Warn("Direct API stage failed", zap.Error(err))
			return nil
		}
		return &Result{Keyword: keyword, Stage: stage, API: doc}

	case StageNetworkIntercept:
		captured := o.interceptor.Collect(ctx, auto, o.cfg.Intercept.Patterns)
		pick := choose(captured, o.cfg.Intercept.PrimaryEndpoint)
		if pick == nil {
			log.Warn("No matching traffic intercepted", zap.Int("captured", len(captured)))
			return nil
		}
		return &Result{Keyword: keyword, Stage: stage, Intercepted: pick}

	case StageDOMScrape:
		extraction, err := o.extractor.Extract(ctx, auto)
		if err != nil {
			log.Warn("DOM scrape stage failed", zap.Error(err))
			return nil
		}
		return &Result{Keyword: keyword, Stage: stage, DOM: extraction}

	case StagePageInfo:
		info, err := o.extractor.PageInfo(ctx, auto)
		if err != nil {
			log.Error("Page info stage failed", zap.Error(err))
			return nil
		}
		return &Result{Keyword: keyword, Stage: stage, Info: &info}
	}
	return nil
}

// openAndPrime launches the browser, loads the search page for the keyword,
// and feeds the harvested cookies back into the session store. The rendered
// page and its capture log serve all subsequent stages.
func (o *Orchestrator) openAndPrime(ctx context.Context, keyword string, log *zap.Logger) (browser.Automation, error) {
	auto, err := o.newBrowser(ctx)
	if err != nil {
		return nil, errors.Join(ErrBrowserUnavailable, err)
	}

	searchURL := o.cfg.Session.SearchURL + "?q=" + url.QueryEscape(keyword)
	if err := auto.Navigate(ctx, searchURL); err != nil {
		_ = auto.Close(context.WithoutCancel(ctx))
		return nil, errors.Join(ErrBrowserUnavailable, err)
	}

	if cookies, err := auto.Cookies(ctx); err != nil {
		log.Debug("Browser cookie harvest failed", zap.Error(err))
	} else if len(cookies) > 0 {
		o.cookies.MergeCookies(cookies)
		log.Debug("Merged browser cookies", zap.Int("count", len(cookies)))
	}
	return auto, nil
}

// choose picks the intercepted payload to use: an exact hit on the primary
// endpoint wins, otherwise the earliest capture.
func choose(captured []intercept.Captured, primary string) *intercept.Captured {
	if primary != "" {
		for i := range captured {
			if strings.Contains(captured[i].URL, primary) {
				return &captured[i]
			}
		}
	}
	if len(captured) > 0 {
		return &captured[0]
	}
	return nil
}
