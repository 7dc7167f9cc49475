// File: internal/intercept/intercept.go
//
// Package intercept turns the browser's network capture log into parsed API
// payloads. It only filters and decodes; choosing which payload to use is
// the orchestrator's call.
package intercept

import (
	"context"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tokgrab/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Captured is one decoded API response pulled out of the capture log.
type Captured struct {
	URL  string
	Data any
}

// Interceptor filters captured traffic against configured URL patterns.
type Interceptor struct {
	logger *zap.Logger
}

// New creates an Interceptor.
func New(logger *zap.Logger) *Interceptor {
	return &Interceptor{logger: logger.Named("intercept")}
}

// Collect walks the capture log in observation order, keeps entries whose
// URL contains any of the patterns, fetches and JSON-decodes their bodies.
// Entries whose body cannot be fetched or parsed are logged and skipped;
// a partial harvest beats none.
func (i *Interceptor) Collect(ctx context.Context, auto browser.Automation, patterns []string) []Captured {
	entries := auto.CapturedEntries()
	i.logger.Debug("Scanning capture log",
		zap.Int("entries", len(entries)),
		zap.Int("patterns", len(patterns)))

	var out []Captured
	for _, entry := range entries {
		if !matchesAny(entry.URL, patterns) {
			continue
		}

		body, err := auto.ResponseBody(ctx, entry.RequestID)
		if err != nil {
			i.logger.Debug("Skipping captured response, body unavailable",
				zap.String("url", entry.URL), zap.Error(err))
			continue
		}

		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			i.logger.Debug("Skipping captured response, not JSON",
				zap.String("url", entry.URL), zap.Error(err))
			continue
		}

		i.logger.Info("Intercepted API response",
			zap.String("url", entry.URL),
			zap.Int("bytes", len(body)))
		out = append(out, Captured{URL: entry.URL, Data: data})
	}
	return out
}

func matchesAny(url string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(url, p) {
			return true
		}
	}
	return false
}
