// File: internal/apiclient/errors.go
package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDynamicParam means the caller omitted a value the request
	// spec declares as required. Caller bug; never retried.
	ErrMissingDynamicParam = errors.New("missing dynamic parameter")

	// ErrEmptyResponse means the server answered with an empty body.
	// Retryable without touching the session.
	ErrEmptyResponse = errors.New("empty response body")

	// ErrAntiBotBlock means the response looks like a login or captcha
	// interstitial. Retryable, but the session must be re-initialized first.
	ErrAntiBotBlock = errors.New("anti-bot block detected")

	// ErrMalformedJSON means the body could not be parsed as JSON even after
	// the salvage attempt. Retryable with session re-initialization.
	ErrMalformedJSON = errors.New("malformed JSON response")
)

// StatusError reports a non-2xx HTTP status. Retryable.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Status)
}
