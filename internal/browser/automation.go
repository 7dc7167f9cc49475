// File: internal/browser/automation.go
//
// Package browser drives a headless Chrome instance over the DevTools
// protocol. The rest of the pipeline talks to it through the Automation
// interface so that tests can substitute a scripted fake.
package browser

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the browser could not be launched or has died.
var ErrUnavailable = errors.New("browser unavailable")

// CaptureEntry is one response observed on the wire while a page loaded.
// The body is fetched separately via ResponseBody; at capture time only the
// metadata is known.
type CaptureEntry struct {
	RequestID string
	URL       string
	MimeType  string
	Status    int64
}

// ElementQueryOptions bounds an element query.
type ElementQueryOptions struct {
	// Selectors is the cascade, tried in order; the first selector that
	// matches anything wins.
	Selectors []string
	// TitleSelectors are probed inside each matched element for a title.
	TitleSelectors []string
	// Limit caps the number of returned records.
	Limit int
	// MaxTextLength truncates each record's text field.
	MaxTextLength int
	// LinkHost restricts harvested links to a site; empty keeps all.
	LinkHost string
}

// ElementRecord is the scraped shape of one DOM element. Field tags match
// the object literals produced by the injected query script.
type ElementRecord struct {
	Index  int    `json:"index"`
	Tag    string `json:"tag"`
	Class  string `json:"class,omitempty"`
	TestID string `json:"test_id,omitempty"`
	ID     string `json:"id,omitempty"`
	Text   string `json:"text,omitempty"`
	Link   string `json:"link,omitempty"`
	Image  string `json:"image,omitempty"`
	Title  string `json:"title,omitempty"`
}

// PageInfo is the minimal description of the rendered page, used as the
// last-resort acquisition result.
type PageInfo struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	BodyText string `json:"body_text"`
}

// Automation is the capability surface the acquisition pipeline needs from
// a rendered page. Implementations: Session (chromedp) and the scripted
// fake in browsertest.
type Automation interface {
	// Navigate loads the URL and waits out the configured post-load delay so
	// client-side rendering and the XHR burst can settle.
	Navigate(ctx context.Context, url string) error

	// Cookies returns the browser's current cookie jar as name to value.
	Cookies(ctx context.Context) (map[string]string, error)

	// CapturedEntries returns a snapshot of the response log, in the order
	// responses were observed.
	CapturedEntries() []CaptureEntry

	// ResponseBody fetches the body of a captured response by request id.
	ResponseBody(ctx context.Context, requestID string) ([]byte, error)

	// QueryElements runs the element query against the rendered DOM.
	QueryElements(ctx context.Context, opts ElementQueryOptions) ([]ElementRecord, error)

	// Info describes the current page.
	Info(ctx context.Context) (PageInfo, error)

	// PageSource returns the rendered document's outer HTML.
	PageSource(ctx context.Context) (string, error)

	// Screenshot writes a full-viewport PNG to path. Best effort.
	Screenshot(ctx context.Context, path string) error

	// Close tears down the tab and the browser process.
	Close(ctx context.Context) error
}
