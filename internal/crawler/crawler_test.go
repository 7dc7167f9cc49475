// File: internal/crawler/crawler_test.go
package crawler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokgrab/internal/browser"
	"tokgrab/internal/crawler"
	"tokgrab/internal/domscrape"
	"tokgrab/internal/export"
	"tokgrab/internal/flatten"
	"tokgrab/internal/orchestrate"
)

// stubAcquirer returns a scripted result per keyword.
type stubAcquirer struct {
	results map[string]*orchestrate.Result
	calls   []string
}

func (s *stubAcquirer) Acquire(ctx context.Context, keyword string) *orchestrate.Result {
	s.calls = append(s.calls, keyword)
	return s.results[keyword]
}

// stubSink records what was exported.
type stubSink struct {
	rows    []flatten.Row
	meta    export.Metadata
	rawJSON []string
	err     error
	saves   int
}

func (s *stubSink) SaveWorkbook(rows []flatten.Row, meta export.Metadata, rawJSON []string) (string, error) {
	s.saves++
	s.rows, s.meta, s.rawJSON = rows, meta, rawJSON
	if s.err != nil {
		return "", s.err
	}
	return "/tmp/out.xlsx", nil
}

func TestCrawl_APIResult(t *testing.T) {
	acq := &stubAcquirer{results: map[string]*orchestrate.Result{
		"golang": {
			Keyword: "golang",
			Stage:   orchestrate.StageAPIDirect,
			API: map[string]any{
				"sug_list": []any{
					map[string]any{"content": "golang tutorial"},
					map[string]any{"content": "golang vs rust"},
				},
			},
		},
	}}
	sink := &stubSink{}
	c := crawler.New("search_general_preview", acq, sink, zap.NewNop())

	path, err := c.Crawl(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.xlsx", path)

	assert.Equal(t, "golang", sink.meta.Keyword)
	assert.Equal(t, "api_direct", sink.meta.Method)
	assert.Equal(t, 2, sink.meta.RecordCount)
	require.Len(t, sink.rows, 2)
	assert.Equal(t, "golang tutorial", sink.rows[0]["sug_list_content"])
	require.Len(t, sink.rawJSON, 1)
	assert.Contains(t, sink.rawJSON[0], "golang vs rust")
}

func domExtraction() *domscrape.Extraction {
	return &domscrape.Extraction{
		Method: domscrape.MethodElements,
		Records: []browser.ElementRecord{
			{Index: 0, Tag: "div", Text: "first video", Link: "https://www.tiktok.com/video/1"},
			{Index: 1, Tag: "div", Text: "second video"},
		},
	}
}

func TestCrawl_DOMRecords(t *testing.T) {
	acq := &stubAcquirer{results: map[string]*orchestrate.Result{
		"golang": {
			Keyword: "golang",
			Stage:   orchestrate.StageDOMScrape,
			DOM:     domExtraction(),
		},
	}}
	sink := &stubSink{}
	c := crawler.New("search_general_preview", acq, sink, zap.NewNop())

	_, err := c.Crawl(context.Background(), "golang")
	require.NoError(t, err)

	assert.Equal(t, "dom_elements", sink.meta.Method)
	assert.Equal(t, 2, sink.meta.RecordCount)
	assert.Equal(t, 2, sink.meta.TotalCount)
	require.Len(t, sink.rows, 2)
	assert.Equal(t, "first video", sink.rows[0]["text"])
}

func TestCrawl_DOMFragments(t *testing.T) {
	acq := &stubAcquirer{results: map[string]*orchestrate.Result{
		"golang": {
			Keyword: "golang",
			Stage:   orchestrate.StageDOMScrape,
			DOM: &domscrape.Extraction{
				Method: domscrape.MethodJSONFragments,
				Fragments: []any{
					map[string]any{"id": "v1"},
					map[string]any{"id": "v2"},
					map[string]any{"id": "v3"},
				},
			},
		},
	}}
	sink := &stubSink{}
	c := crawler.New("search_general_preview", acq, sink, zap.NewNop())

	_, err := c.Crawl(context.Background(), "golang")
	require.NoError(t, err)

	assert.Equal(t, "json_fragments", sink.meta.Method)
	assert.Equal(t, 3, sink.meta.TotalCount)
	require.Len(t, sink.rows, 3)
	assert.Equal(t, "v2", sink.rows[1]["id"])
}

func TestCrawl_PageInfoIsDegradedSuccess(t *testing.T) {
	acq := &stubAcquirer{results: map[string]*orchestrate.Result{
		"golang": {
			Keyword: "golang",
			Stage:   orchestrate.StagePageInfo,
			Info: &browser.PageInfo{
				URL:      "https://www.tiktok.com/search?q=golang",
				Title:    "verify to continue",
				BodyText: "checking your browser",
			},
		},
	}}
	sink := &stubSink{}
	c := crawler.New("search_general_preview", acq, sink, zap.NewNop())

	path, err := c.Crawl(context.Background(), "golang")
	require.NoError(t, err, "page info is a success, not an error")
	assert.NotEmpty(t, path)
	assert.Equal(t, "page_info", sink.meta.Method)
	assert.Equal(t, "verify to continue", sink.meta.PageTitle)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, "verify to continue", sink.rows[0]["title"])
}

func TestCrawl_NoResult(t *testing.T) {
	acq := &stubAcquirer{results: map[string]*orchestrate.Result{}}
	sink := &stubSink{}
	c := crawler.New("search_general_preview", acq, sink, zap.NewNop())

	_, err := c.Crawl(context.Background(), "golang")
	assert.ErrorIs(t, err, crawler.ErrNoResult)
	assert.Zero(t, sink.saves)
}

func TestCrawlAll_PacesAndCollectsFailures(t *testing.T) {
	acq := &stubAcquirer{results: map[string]*orchestrate.Result{
		"a": {Keyword: "a", Stage: orchestrate.StageAPIDirect, API: map[string]any{"data": []any{map[string]any{"id": "1"}}}},
		// "b" is missing: total failure.
		"c": {Keyword: "c", Stage: orchestrate.StageAPIDirect, API: map[string]any{"data": []any{map[string]any{"id": "2"}}}},
	}}
	sink := &stubSink{}

	var sleeps []time.Duration
	c := crawler.New("search_general_preview", acq, sink, zap.NewNop(),
		crawler.WithSleep(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}))

	paths, err := c.CrawlAll(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, crawler.ErrNoResult)
	assert.Len(t, paths, 2, "the other keywords still export")
	assert.Equal(t, []string{"a", "b", "c"}, acq.calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps)
}

func TestCrawl_ExportFailureSurfaces(t *testing.T) {
	acq := &stubAcquirer{results: map[string]*orchestrate.Result{
		"golang": {Keyword: "golang", Stage: orchestrate.StageAPIDirect, API: map[string]any{"ok": true}},
	}}
	sink := &stubSink{err: errors.New("disk full")}
	c := crawler.New("search_general_preview", acq, sink, zap.NewNop())

	_, err := c.Crawl(context.Background(), "golang")
	assert.ErrorContains(t, err, "disk full")
}
