// File: internal/browser/stealth.go
package browser

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

//go:embed stealth.js
var stealthScript string

// stealthTasks builds the CDP actions that make the headless browser look
// like a user-operated one. The script is registered for every new document
// so it survives navigations.
func stealthTasks(userAgent string) chromedp.Tasks {
	return chromedp.Tasks{
		emulation.SetUserAgentOverride(userAgent),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to inject stealth script: %w", err)
			}
			return nil
		}),
	}
}
