// File: internal/browser/capture.go
package browser

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// captureLog accumulates response metadata from CDP network events. Events
// arrive on chromedp's event goroutine, so all state is mutex-guarded.
// Bodies are not fetched here; the caller pulls them on demand after the
// page settles, which avoids racing Chrome's buffer eviction during load.
type captureLog struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries []CaptureEntry
	seen    map[network.RequestID]bool
}

func newCaptureLog(logger *zap.Logger) *captureLog {
	return &captureLog{
		logger: logger.Named("capture"),
		seen:   make(map[network.RequestID]bool),
	}
}

// attach registers the CDP listener on the tab context and enables the
// network domain. Must be called before the first navigation.
func (c *captureLog) attach(tabCtx context.Context) error {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok {
			c.handleResponseReceived(e)
		}
	})
	return chromedp.Run(tabCtx, network.Enable())
}

func (c *captureLog) handleResponseReceived(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Redirect legs reuse the request id; keep the first observation so the
	// log order reflects when the exchange started.
	if c.seen[e.RequestID] {
		return
	}
	c.seen[e.RequestID] = true
	c.entries = append(c.entries, CaptureEntry{
		RequestID: string(e.RequestID),
		URL:       e.Response.URL,
		MimeType:  e.Response.MimeType,
		Status:    e.Response.Status,
	})
}

// snapshot returns a copy of the log in observation order.
func (c *captureLog) snapshot() []CaptureEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CaptureEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
