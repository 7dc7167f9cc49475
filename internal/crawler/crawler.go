// File: internal/crawler/crawler.go
//
// Package crawler is the run loop: acquire a payload for each keyword,
// flatten it, and export it. One keyword at a time, with pacing in between.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tokgrab/internal/export"
	"tokgrab/internal/flatten"
	"tokgrab/internal/orchestrate"
	"tokgrab/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// keywordPacing separates consecutive keyword crawls.
const keywordPacing = time.Second

// ErrNoResult means every acquisition stage failed for a keyword.
var ErrNoResult = errors.New("acquisition produced no result")

// Acquirer is the orchestrator capability the crawler needs.
type Acquirer interface {
	Acquire(ctx context.Context, keyword string) *orchestrate.Result
}

// Sink persists flattened rows.
type Sink interface {
	SaveWorkbook(rows []flatten.Row, meta export.Metadata, rawJSON []string) (string, error)
}

// Crawler runs keywords through the acquisition pipeline.
type Crawler struct {
	apiName  string
	acquirer Acquirer
	sink     Sink
	logger   *zap.Logger
	sleep    session.SleepFunc
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithSleep replaces the pacing sleep, used by tests.
func WithSleep(fn session.SleepFunc) Option {
	return func(c *Crawler) { c.sleep = fn }
}

// New creates a Crawler.
func New(apiName string, acquirer Acquirer, sink Sink, logger *zap.Logger, opts ...Option) *Crawler {
	c := &Crawler{
		apiName:  apiName,
		acquirer: acquirer,
		sink:     sink,
		logger:   logger.Named("crawler"),
		sleep:    session.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl acquires, flattens, and exports one keyword. A page-info result is a
// degraded success: it is exported and logged with a warning, not failed.
func (c *Crawler) Crawl(ctx context.Context, keyword string) (string, error) {
	log := c.logger.With(zap.String("keyword", keyword))
	log.Info("Crawl started")

	result := c.acquirer.Acquire(ctx, keyword)
	if result == nil {
		return "", fmt.Errorf("%w: keyword %q", ErrNoResult, keyword)
	}
	if result.Stage == orchestrate.StagePageInfo {
		log.Warn("Degraded result: only page info could be captured")
	}

	payload, meta, rawJSON := c.materialize(result)
	meta.Keyword = keyword
	meta.APIName = c.apiName
	meta.RecordCount = countRecords(payload)

	rows := flatten.FlattenOrRaw(payload)
	log.Info("Payload flattened",
		zap.String("method", result.Stage.String()),
		zap.Int("records", meta.RecordCount),
		zap.Int("rows", len(rows)))

	path, err := c.sink.SaveWorkbook(rows, meta, rawJSON)
	if err != nil {
		return "", fmt.Errorf("export failed for keyword %q: %w", keyword, err)
	}
	log.Info("Crawl finished", zap.String("path", path))
	return path, nil
}

// CrawlAll processes keywords sequentially with fixed pacing. Failures are
// collected per keyword; one bad keyword does not stop the run.
func (c *Crawler) CrawlAll(ctx context.Context, keywords []string) ([]string, error) {
	log := c.logger.With(zap.String("run_id", uuid.NewString()))
	log.Info("Run started", zap.Int("keywords", len(keywords)))

	var paths []string
	var errs []error
	for i, keyword := range keywords {
		if i > 0 {
			if err := c.sleep(ctx, keywordPacing); err != nil {
				errs = append(errs, err)
				break
			}
		}
		path, err := c.Crawl(ctx, keyword)
		if err != nil {
			log.Error("Keyword failed", zap.String("keyword", keyword), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		paths = append(paths, path)
	}

	log.Info("Run finished",
		zap.Int("exported", len(paths)),
		zap.Int("failed", len(errs)))
	return paths, errors.Join(errs...)
}

// materialize lowers the tagged acquisition result into a flattenable value,
// export metadata, and the raw JSON documents worth preserving.
func (c *Crawler) materialize(result *orchestrate.Result) (any, export.Metadata, []string) {
	meta := export.Metadata{Method: result.Stage.String()}

	switch result.Stage {
	case orchestrate.StageAPIDirect:
		return result.API, meta, rawDocs(result.API)

	case orchestrate.StageNetworkIntercept:
		meta.PageURL = result.Intercepted.URL
		return result.Intercepted.Data, meta, rawDocs(result.Intercepted.Data)

	case orchestrate.StageDOMScrape:
		// The DOM route carries its own method tag (element query vs
		// page-source fragments); the stage name alone loses that.
		meta.Method = string(result.DOM.Method)
		if len(result.DOM.Records) > 0 {
			meta.TotalCount = len(result.DOM.Records)
			return toPlain(result.DOM.Records), meta, nil
		}
		meta.TotalCount = len(result.DOM.Fragments)
		return result.DOM.Fragments, meta, rawDocs(result.DOM.Fragments)

	case orchestrate.StagePageInfo:
		meta.PageURL = result.Info.URL
		meta.PageTitle = result.Info.Title
		return toPlain(result.Info), meta, nil
	}
	return nil, meta, nil
}

// countRecords estimates how many content records a payload carries, looking
// for the list keys the search APIs use before falling back to raw shape.
func countRecords(payload any) int {
	switch v := payload.(type) {
	case map[string]any:
		for _, key := range []string{"sug_list", "search_results", "data"} {
			if list, ok := v[key].([]any); ok {
				return len(list)
			}
		}
		return 1
	case []any:
		return len(v)
	case nil:
		return 0
	default:
		return 1
	}
}

// toPlain lowers typed structs to the generic JSON shape the flattener
// understands.
func toPlain(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

// rawDocs serializes the payload for the raw-JSON sheet.
func rawDocs(v any) []string {
	if v == nil {
		return nil
	}
	raw, err := json.MarshalToString(v)
	if err != nil {
		return nil
	}
	return []string{raw}
}
