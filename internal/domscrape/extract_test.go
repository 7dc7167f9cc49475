// File: internal/domscrape/extract_test.go
package domscrape_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokgrab/internal/browser"
	"tokgrab/internal/browser/browsertest"
	"tokgrab/internal/config"
	"tokgrab/internal/domscrape"
)

func testConfig() config.ExtractConfig {
	return config.ExtractConfig{
		Selectors:        []string{"[data-e2e='search-card-item']"},
		TitleSelectors:   []string{"h3"},
		Limit:            20,
		MaxTextLength:    500,
		MaxJSONFragments: 3,
		LinkHost:         "tiktok.com",
		ScreenshotDir:    "debug",
	}
}

func TestExtract_ReturnsElementRecords(t *testing.T) {
	fake := &browsertest.Fake{
		Elements: []browser.ElementRecord{
			{Index: 0, Tag: "div", Text: "first video", Link: "https://www.tiktok.com/video/1"},
			{Index: 1, Tag: "div", Text: "second video"},
		},
	}

	got, err := domscrape.New(testConfig(), zap.NewNop()).Extract(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, domscrape.MethodElements, got.Method)
	assert.Len(t, got.Records, 2)
	assert.Len(t, fake.ScreenshotPaths, 1)
}

func TestExtract_FallsBackToJSONFragments(t *testing.T) {
	fake := &browsertest.Fake{
		Source: `<html><script>window.items = [{"id":"111","desc":"a"},{"id":"222","desc":"b"}];</script></html>`,
	}

	got, err := domscrape.New(testConfig(), zap.NewNop()).Extract(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, domscrape.MethodJSONFragments, got.Method)
	require.Len(t, got.Fragments, 2)

	first, ok := got.Fragments[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "111", first["id"])
}

func TestExtract_FragmentCountIsCapped(t *testing.T) {
	fake := &browsertest.Fake{
		Source: `{"id":"1"} {"id":"2"} {"id":"3"} {"id":"4"} {"id":"5"}`,
	}

	got, err := domscrape.New(testConfig(), zap.NewNop()).Extract(context.Background(), fake)
	require.NoError(t, err)
	assert.Len(t, got.Fragments, 3)
}

func TestExtract_SkipsUnparseableFragments(t *testing.T) {
	fake := &browsertest.Fake{
		// The first match has a bare word where a value should be.
		Source: `{"id": oops} {"id":"ok"}`,
	}

	got, err := domscrape.New(testConfig(), zap.NewNop()).Extract(context.Background(), fake)
	require.NoError(t, err)
	require.Len(t, got.Fragments, 1)
}

func TestExtract_NothingFound(t *testing.T) {
	fake := &browsertest.Fake{Source: "<html><body>blocked</body></html>"}

	_, err := domscrape.New(testConfig(), zap.NewNop()).Extract(context.Background(), fake)
	assert.ErrorIs(t, err, domscrape.ErrNoContent)
}

func TestPageInfo(t *testing.T) {
	fake := &browsertest.Fake{
		PageInfo: browser.PageInfo{
			URL:      "https://www.tiktok.com/search?q=golang",
			Title:    "golang | search",
			BodyText: "some visible text",
		},
	}

	info, err := domscrape.New(testConfig(), zap.NewNop()).PageInfo(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, "golang | search", info.Title)
}
