// File: internal/session/store_test.go
package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokgrab/internal/config"
	"tokgrab/internal/session"
)

func noSleep(recorded *[]time.Duration) session.SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		if recorded != nil {
			*recorded = append(*recorded, d)
		}
		return ctx.Err()
	}
}

func newWarmupServer(t *testing.T) (*httptest.Server, *int, *string) {
	t.Helper()
	hits := 0
	searchReferer := ""
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "tok-123"})
		w.Write([]byte("<html>home</html>"))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		hits++
		searchReferer = r.Header.Get("referer")
		http.SetCookie(w, &http.Cookie{Name: "msToken", Value: "ms-456"})
		w.Write([]byte("<html>search</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits, &searchReferer
}

func storeConfig(srv *httptest.Server) config.SessionConfig {
	return config.SessionConfig{
		HomeURL:      srv.URL + "/",
		SearchURL:    srv.URL + "/search",
		WarmupDelay:  2 * time.Second,
		CookieDomain: "example.com",
		SeedCookies:  map[string]string{"theme": "light"},
	}
}

func TestEnsureInitialized_WarmupSequence(t *testing.T) {
	srv, hits, searchReferer := newWarmupServer(t)

	var slept []time.Duration
	store := session.NewStore(storeConfig(srv), resty.New(), zap.NewNop(),
		session.WithSleep(noSleep(&slept)))

	require.NoError(t, store.EnsureInitialized(context.Background()))
	assert.True(t, store.Initialized())
	assert.False(t, store.LastInit().IsZero())
	assert.Equal(t, 2, *hits, "warm-up visits home and search pages")
	assert.Equal(t, srv.URL+"/", *searchReferer, "search request carries home page referer")
	require.Len(t, slept, 1, "pacing delay between warm-up requests")
	assert.Equal(t, 2*time.Second, slept[0])

	// Set-Cookie values from both responses were harvested.
	cookies := store.CookieMap()
	assert.Equal(t, "tok-123", cookies["ttwid"])
	assert.Equal(t, "ms-456", cookies["msToken"])
	assert.Equal(t, "light", cookies["theme"], "seed cookies survive")
}

func TestEnsureInitialized_Idempotent(t *testing.T) {
	srv, hits, _ := newWarmupServer(t)
	store := session.NewStore(storeConfig(srv), resty.New(), zap.NewNop(),
		session.WithSleep(noSleep(nil)))

	require.NoError(t, store.EnsureInitialized(context.Background()))
	require.NoError(t, store.EnsureInitialized(context.Background()))
	assert.Equal(t, 2, *hits, "second call must not re-run the warm-up")
}

func TestEnsureInitialized_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.SessionConfig{HomeURL: srv.URL + "/", SearchURL: srv.URL + "/search"}
	store := session.NewStore(cfg, resty.New(), zap.NewNop(), session.WithSleep(noSleep(nil)))

	err := store.EnsureInitialized(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrWarmup)
	assert.False(t, store.Initialized())
}

func TestInvalidate_ForcesReinitialization(t *testing.T) {
	srv, hits, _ := newWarmupServer(t)
	store := session.NewStore(storeConfig(srv), resty.New(), zap.NewNop(),
		session.WithSleep(noSleep(nil)))

	require.NoError(t, store.EnsureInitialized(context.Background()))
	store.Invalidate()
	assert.False(t, store.Initialized())

	require.NoError(t, store.EnsureInitialized(context.Background()))
	assert.Equal(t, 4, *hits, "warm-up repeats after invalidation")
}

func TestMergeCookies_LaterSourceWins(t *testing.T) {
	cfg := config.SessionConfig{
		SeedCookies: map[string]string{"a": "1", "b": "2"},
	}
	store := session.NewStore(cfg, resty.New(), zap.NewNop())

	store.MergeCookies(map[string]string{"b": "3", "c": "4"})

	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, store.CookieMap())
}

func TestCookies_DomainScoped(t *testing.T) {
	cfg := config.SessionConfig{
		CookieDomain: ".tiktok.com",
		SeedCookies:  map[string]string{"ttwid": "v"},
	}
	store := session.NewStore(cfg, resty.New(), zap.NewNop())

	cookies := store.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "ttwid", cookies[0].Name)
	assert.Equal(t, ".tiktok.com", cookies[0].Domain)
}
