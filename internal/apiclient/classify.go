// File: internal/apiclient/classify.go
package apiclient

import (
	"bytes"
	"strings"
)

// Verdict is the classifier's judgement of a response.
type Verdict int

const (
	// VerdictAccept means the body should be handed to the JSON decoder.
	VerdictAccept Verdict = iota
	// VerdictRetry means the attempt failed but the session is still good.
	VerdictRetry
	// VerdictRetryReset means the attempt failed in a way that poisons the
	// session; re-initialize before the next attempt.
	VerdictRetryReset
)

// Outcome pairs a verdict with the error that should surface if retries run
// out on this classification.
type Outcome struct {
	Verdict Verdict
	Err     error
}

// Classifier decides what a response means. The target site's anti-bot
// behavior drifts over time, so the heuristics live behind this interface
// rather than being baked into the executor.
type Classifier interface {
	Classify(status int, contentType string, body []byte) Outcome
}

// HeuristicClassifier is the default policy: status and emptiness checks,
// then a best-effort sniff of non-JSON bodies for login/captcha markers.
type HeuristicClassifier struct {
	// BlockMarkers are matched case-insensitively against non-JSON bodies.
	BlockMarkers []string
}

// NewHeuristicClassifier returns the default classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{BlockMarkers: []string{"login", "captcha"}}
}

// Classify implements Classifier.
func (c *HeuristicClassifier) Classify(status int, contentType string, body []byte) Outcome {
	if status < 200 || status >= 300 {
		return Outcome{Verdict: VerdictRetry, Err: &StatusError{Status: status}}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Outcome{Verdict: VerdictRetry, Err: ErrEmptyResponse}
	}
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		lower := bytes.ToLower(body)
		for _, marker := range c.BlockMarkers {
			if bytes.Contains(lower, []byte(marker)) {
				return Outcome{Verdict: VerdictRetryReset, Err: ErrAntiBotBlock}
			}
		}
		// Content-type lies sometimes; let the decoder have a go at it.
	}
	return Outcome{Verdict: VerdictAccept}
}
