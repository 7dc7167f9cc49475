// File: internal/apiclient/spec_test.go
package apiclient_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokgrab/internal/apiclient"
	"tokgrab/internal/config"
)

func TestNewRequestSpec_Valid(t *testing.T) {
	spec, err := apiclient.NewRequestSpec("search", config.APIConfig{
		Path:          "/api/search/",
		Method:        "GET",
		Params:        map[string]string{"aid": "1988", "keyword": "{keyword}"},
		DynamicParams: []string{"keyword"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"keyword"}, spec.DynamicParams())

	values, err := spec.BuildParams(map[string]string{"keyword": "golang"})
	require.NoError(t, err)
	assert.Equal(t, "golang", values.Get("keyword"))
	assert.Equal(t, "1988", values.Get("aid"))
}

func TestNewRequestSpec_UndeclaredPlaceholder(t *testing.T) {
	_, err := apiclient.NewRequestSpec("search", config.APIConfig{
		Path:   "/api/search/",
		Method: "GET",
		// "keywrod" is a typo that should fail at construction, not at
		// request time.
		Params:        map[string]string{"keyword": "{keywrod}"},
		DynamicParams: []string{"keyword"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keywrod")
}

func TestNewRequestSpec_UnreferencedDynamicParam(t *testing.T) {
	_, err := apiclient.NewRequestSpec("search", config.APIConfig{
		Path:          "/api/search/",
		Method:        "GET",
		Params:        map[string]string{"aid": "1988"},
		DynamicParams: []string{"keyword"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never referenced")
}

func TestBuildParams_MissingDynamicValue(t *testing.T) {
	spec, err := apiclient.NewRequestSpec("search", config.APIConfig{
		Path:          "/api/search/",
		Method:        "GET",
		Params:        map[string]string{"keyword": "{keyword}"},
		DynamicParams: []string{"keyword"},
	})
	require.NoError(t, err)

	_, err = spec.BuildParams(map[string]string{})
	assert.ErrorIs(t, err, apiclient.ErrMissingDynamicParam)
}

func TestHeuristicClassifier(t *testing.T) {
	c := apiclient.NewHeuristicClassifier()

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		verdict     apiclient.Verdict
		wantErr     error
	}{
		{"ok json", 200, "application/json", `{"a":1}`, apiclient.VerdictAccept, nil},
		{"server error", 500, "text/html", "boom", apiclient.VerdictRetry, nil},
		{"empty body", 200, "application/json", "  \n", apiclient.VerdictRetry, apiclient.ErrEmptyResponse},
		{"captcha page", 200, "text/html", "<html>Please solve this CAPTCHA</html>", apiclient.VerdictRetryReset, apiclient.ErrAntiBotBlock},
		{"login page", 200, "text/html", "<html>log in to continue</html>", apiclient.VerdictRetryReset, apiclient.ErrAntiBotBlock},
		{"json with wrong content type", 200, "text/html", `{"a":1}`, apiclient.VerdictAccept, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.Classify(tt.status, tt.contentType, []byte(tt.body))
			assert.Equal(t, tt.verdict, out.Verdict)
			if tt.wantErr != nil {
				assert.ErrorIs(t, out.Err, tt.wantErr)
			}
		})
	}
}
