// File: internal/browser/browsertest/fake.go
//
// Package browsertest provides a scripted Automation implementation for
// unit tests. Every response is set up front; calls are recorded.
package browsertest

import (
	"context"
	"fmt"

	"tokgrab/internal/browser"
)

// Fake implements browser.Automation with canned data.
type Fake struct {
	NavigateErr error
	CookieMap   map[string]string
	Entries     []browser.CaptureEntry
	// Bodies maps request id to body; a missing id is an error, mirroring
	// Chrome evicting a response buffer.
	Bodies   map[string][]byte
	Elements []browser.ElementRecord
	QueryErr error
	PageInfo browser.PageInfo
	InfoErr  error
	Source   string

	// Call log.
	NavigatedURLs   []string
	ScreenshotPaths []string
	Closed          bool
}

var _ browser.Automation = (*Fake)(nil)

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.NavigatedURLs = append(f.NavigatedURLs, url)
	return f.NavigateErr
}

func (f *Fake) Cookies(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.CookieMap))
	for k, v := range f.CookieMap {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) CapturedEntries() []browser.CaptureEntry {
	out := make([]browser.CaptureEntry, len(f.Entries))
	copy(out, f.Entries)
	return out
}

func (f *Fake) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	body, ok := f.Bodies[requestID]
	if !ok {
		return nil, fmt.Errorf("no body recorded for request %s", requestID)
	}
	return body, nil
}

func (f *Fake) QueryElements(ctx context.Context, opts browser.ElementQueryOptions) ([]browser.ElementRecord, error) {
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	records := f.Elements
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	out := make([]browser.ElementRecord, len(records))
	copy(out, records)
	return out, nil
}

func (f *Fake) Info(ctx context.Context) (browser.PageInfo, error) {
	if f.InfoErr != nil {
		return browser.PageInfo{}, f.InfoErr
	}
	return f.PageInfo, nil
}

func (f *Fake) PageSource(ctx context.Context) (string, error) {
	return f.Source, nil
}

func (f *Fake) Screenshot(ctx context.Context, path string) error {
	f.ScreenshotPaths = append(f.ScreenshotPaths, path)
	return nil
}

func (f *Fake) Close(ctx context.Context) error {
	f.Closed = true
	return nil
}
