// File: internal/domscrape/extract.go
//
// Package domscrape pulls best-effort structured records out of the rendered
// page once the API and interception routes have failed. The output is
// loosely typed on purpose: at this depth of the fallback chain, anything
// beats nothing.
package domscrape

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tokgrab/internal/browser"
	"tokgrab/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoContent means neither the DOM nor the page source yielded anything
// usable; the caller should fall back to the page-info stage.
var ErrNoContent = errors.New("no extractable content on page")

// jsonFragmentPattern matches small brace-delimited objects that carry an
// "id" field. Nested braces are excluded; the goal is embedded item stubs,
// not whole hydration blobs.
var jsonFragmentPattern = regexp.MustCompile(`\{[^{}]*"id"[^{}]*\}`)

// Method records which extraction route produced the result.
type Method string

const (
	MethodElements      Method = "dom_elements"
	MethodJSONFragments Method = "json_fragments"
)

// Extraction is the output of one DOM scrape.
type Extraction struct {
	Method    Method
	Records   []browser.ElementRecord
	Fragments []any
}

// Extractor runs the element query and its page-source fallback.
type Extractor struct {
	cfg    config.ExtractConfig
	logger *zap.Logger
	now    func() time.Time
}

// New creates an Extractor.
func New(cfg config.ExtractConfig, logger *zap.Logger) *Extractor {
	return &Extractor{cfg: cfg, logger: logger.Named("domscrape"), now: time.Now}
}

// Extract queries the rendered DOM through the configured selector cascade
// and, when that produces nothing, scans the raw page source for JSON-like
// fragments. Returns ErrNoContent when both routes come up empty.
func (e *Extractor) Extract(ctx context.Context, auto browser.Automation) (*Extraction, error) {
	e.screenshot(ctx, auto)

	records, err := auto.QueryElements(ctx, browser.ElementQueryOptions{
		Selectors:      e.cfg.Selectors,
		TitleSelectors: e.cfg.TitleSelectors,
		Limit:          e.cfg.Limit,
		MaxTextLength:  e.cfg.MaxTextLength,
		LinkHost:       e.cfg.LinkHost,
	})
	if err != nil {
		e.logger.Warn("Element query failed, falling back to page source", zap.Error(err))
	}
	if len(records) > 0 {
		e.logger.Info("Extracted DOM records", zap.Int("count", len(records)))
		return &Extraction{Method: MethodElements, Records: records}, nil
	}

	fragments := e.scanPageSource(ctx, auto)
	if len(fragments) > 0 {
		e.logger.Info("Recovered JSON fragments from page source", zap.Int("count", len(fragments)))
		return &Extraction{Method: MethodJSONFragments, Fragments: fragments}, nil
	}

	return nil, ErrNoContent
}

// PageInfo is the last-resort deliverable: url, title, and a text snippet.
func (e *Extractor) PageInfo(ctx context.Context, auto browser.Automation) (browser.PageInfo, error) {
	info, err := auto.Info(ctx)
	if err != nil {
		return browser.PageInfo{}, fmt.Errorf("page info unavailable: %w", err)
	}
	return info, nil
}

// scanPageSource regex-scans the raw markup for small JSON objects that
// mention an "id" field, keeping at most MaxJSONFragments parseable ones.
func (e *Extractor) scanPageSource(ctx context.Context, auto browser.Automation) []any {
	source, err := auto.PageSource(ctx)
	if err != nil {
		e.logger.Warn("Page source unavailable", zap.Error(err))
		return nil
	}

	matches := jsonFragmentPattern.FindAllString(source, -1)
	var fragments []any
	for _, m := range matches {
		if len(fragments) >= e.cfg.MaxJSONFragments {
			break
		}
		var frag any
		if err := json.Unmarshal([]byte(m), &frag); err != nil {
			continue
		}
		fragments = append(fragments, frag)
	}
	return fragments
}

// screenshot saves a debug capture of the page under the configured
// directory. Failures are logged and ignored.
func (e *Extractor) screenshot(ctx context.Context, auto browser.Automation) {
	if e.cfg.ScreenshotDir == "" {
		return
	}
	path := filepath.Join(e.cfg.ScreenshotDir,
		fmt.Sprintf("page_%s.png", e.now().Format("20060102_150405")))
	if err := auto.Screenshot(ctx, path); err != nil {
		e.logger.Debug("Debug screenshot failed", zap.Error(err))
		return
	}
	e.logger.Debug("Saved debug screenshot", zap.String("path", path))
}
