package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"scraper-gateway/pkg/apperr"
	"scraper-gateway/pkg/models"
	"scraper-gateway/pkg/proxy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newProxyServer answers every proxied request with the proxy username it
// was authenticated with, followed by the requested URL.
func newProxyServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := strings.TrimPrefix(r.Header.Get("Proxy-Authorization"), "Basic ")
		raw, err := base64.StdEncoding.DecodeString(auth)
		if err != nil {
			http.Error(w, "bad proxy auth", http.StatusProxyAuthRequired)
			return
		}
		user, _, _ := strings.Cut(string(raw), ":")
		w.Header().Set("X-Seen-UA", r.Header.Get("User-Agent"))
		w.Header().Set("X-Seen-Custom", r.Header.Get("X-Custom"))
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, "%s %s", user, r.URL.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGateway(t *testing.T, srv *httptest.Server, cfg Config) *Gateway {
	t.Helper()
	if cfg.Provider == nil {
		provider, err := proxy.NewProvider(proxy.Config{
			System:      proxy.SystemGeonode,
			Credentials: proxy.Credentials{Username: "geo", Password: "secret"},
		}, discardLogger())
		require.NoError(t, err)
		cfg.Provider = provider
	}
	cfg.DialAddress = strings.TrimPrefix(srv.URL, "http://")
	g, err := New(cfg, discardLogger())
	require.NoError(t, err)
	return g
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(Config{}, discardLogger())
	var cerr *apperr.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestNewRejectsUnknownBrowser(t *testing.T) {
	_, err := New(Config{Provider: &proxy.NoneProvider{}, Browser: "netscape"}, discardLogger())
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDefaultOptionsIdentity(t *testing.T) {
	srv := newProxyServer(t, http.StatusOK)
	g := newTestGateway(t, srv, Config{Browser: "firefox"})

	res, err := g.Get(context.Background(), "http://upstream.test/a", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "geo-type-residential-country-us-lifetime-3 http://upstream.test/a", string(res.Body))
	assert.Contains(t, res.Header.Get("X-Seen-UA"), "Firefox")
	assert.Equal(t, "firefox", g.Browser())
}

func TestPerCallIdentityUnderConcurrency(t *testing.T) {
	srv := newProxyServer(t, http.StatusOK)
	g := newTestGateway(t, srv, Config{Browser: "chrome"})

	const calls = 24
	countries := []string{"US", "GB", "DE", "FR", "CA", "AU", "JP", "SG"}

	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opts := proxy.DefaultOptions()
			opts.Country = countries[i%len(countries)]
			opts.Lifetime = i + 1

			res, err := g.Get(context.Background(), fmt.Sprintf("http://upstream.test/%d", i), CallOptions{Options: &opts})
			if err != nil {
				errs <- err
				return
			}
			want := fmt.Sprintf("geo-type-residential-country-%s-lifetime-%d http://upstream.test/%d",
				strings.ToLower(opts.Country), opts.Lifetime, i)
			if string(res.Body) != want {
				errs <- fmt.Errorf("call %d: got %q, want %q", i, res.Body, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestRandomOptionsPerCall(t *testing.T) {
	srv := newProxyServer(t, http.StatusOK)
	g := newTestGateway(t, srv, Config{})

	res, err := g.Get(context.Background(), "http://upstream.test/r", CallOptions{RandomOptions: true})
	require.NoError(t, err)
	assert.Regexp(t, `^geo-type-(residential|mobile|datacenter)-country-(us|gb|de|fr|ca|au|jp)-lifetime-([1-9]|10) `, string(res.Body))
}

func TestHeaderOverridesStayPerCall(t *testing.T) {
	srv := newProxyServer(t, http.StatusOK)
	g := newTestGateway(t, srv, Config{Browser: "chrome"})

	res, err := g.Get(context.Background(), "http://upstream.test/h", CallOptions{
		Header: http.Header{"user-agent": {"custom-agent/1.0"}, "X-Custom": {"one"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-agent/1.0", res.Header.Get("X-Seen-UA"))
	assert.Equal(t, "one", res.Header.Get("X-Seen-Custom"))

	res, err = g.Get(context.Background(), "http://upstream.test/h", CallOptions{})
	require.NoError(t, err)
	assert.Contains(t, res.Header.Get("X-Seen-UA"), "Chrome/")
	assert.Empty(t, res.Header.Get("X-Seen-Custom"))
}

func TestPerCallBrowser(t *testing.T) {
	srv := newProxyServer(t, http.StatusOK)
	g := newTestGateway(t, srv, Config{Browser: "chrome"})

	res, err := g.Get(context.Background(), "http://upstream.test/b", CallOptions{Browser: "curl"})
	require.NoError(t, err)
	assert.Equal(t, "curl/8.4.0", res.Header.Get("X-Seen-UA"))

	_, err = g.Get(context.Background(), "http://upstream.test/b", CallOptions{Browser: "lynx"})
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestNon2xxIsUpstreamHTTPError(t *testing.T) {
	srv := newProxyServer(t, http.StatusTooManyRequests)
	g := newTestGateway(t, srv, Config{})

	_, err := g.Post(context.Background(), "http://upstream.test/p", []byte(`{}`), CallOptions{})
	var uerr *apperr.UpstreamHTTPError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusTooManyRequests, uerr.Status)
	assert.Contains(t, uerr.Body, "http://upstream.test/p")
	assert.True(t, IsUpstreamStatus(err, http.StatusTooManyRequests))
	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
}

func TestInvalidOptionsFailBeforeDispatch(t *testing.T) {
	srv := newProxyServer(t, http.StatusOK)
	g := newTestGateway(t, srv, Config{})

	opts := proxy.DefaultOptions()
	opts.Country = "usa"
	_, err := g.Get(context.Background(), "http://upstream.test/x", CallOptions{Options: &opts})
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []*models.RequestLog
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, entry *models.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func TestRecorderReceivesEntries(t *testing.T) {
	srv := newProxyServer(t, http.StatusNotFound)
	rec := &memoryRecorder{err: fmt.Errorf("database unavailable")}
	g := newTestGateway(t, srv, Config{Recorder: rec, Browser: "safari"})

	_, err := g.Delete(context.Background(), "http://upstream.test/gone", CallOptions{})
	require.Error(t, err)

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, http.MethodDelete, entry.Method)
	assert.Equal(t, http.StatusNotFound, entry.StatusCode)
	assert.Equal(t, "geonode", entry.Provider)
	assert.Equal(t, "geo-type-residential-country-us-lifetime-3", entry.ProxyUser)
	assert.Equal(t, "safari", entry.Browser)
}

// newCookieServer sets sid on /login and echoes the sid it receives elsewhere.
func newCookieServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "caller-a", Path: "/"})
			return
		}
		c, err := r.Cookie("sid")
		if err != nil {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(c.Value))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCallsDoNotShareCookies(t *testing.T) {
	g := newTestGateway(t, newCookieServer(t), Config{})

	_, err := g.Get(context.Background(), "http://upstream.test/login", CallOptions{})
	require.NoError(t, err)

	jp := proxy.Options{Country: "JP", IPSourceType: proxy.Mobile, SessionType: proxy.Sticky, Lifetime: 3, Gateway: proxy.GatewaySingapore}
	res, err := g.Get(context.Background(), "http://upstream.test/me", CallOptions{Options: &jp, Browser: "firefox"})
	require.NoError(t, err)
	assert.Equal(t, "anonymous", string(res.Body))
}

func TestCallerJarKeepsItsSession(t *testing.T) {
	g := newTestGateway(t, newCookieServer(t), Config{})
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	_, err = g.Get(context.Background(), "http://upstream.test/login", CallOptions{Jar: jar})
	require.NoError(t, err)

	res, err := g.Get(context.Background(), "http://upstream.test/me", CallOptions{Jar: jar})
	require.NoError(t, err)
	assert.Equal(t, "caller-a", string(res.Body))

	res, err = g.Get(context.Background(), "http://upstream.test/me", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "anonymous", string(res.Body))
}

func TestBrowserProfiles(t *testing.T) {
	for _, name := range BrowserNames() {
		p, err := LookupBrowser(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, p.Header.Get("User-Agent"), name)
		assert.NotEmpty(t, p.Header.Get("Accept"), name)
	}
	assert.Equal(t, []string{"chrome", "curl", "edge", "firefox", "opera", "safari"}, BrowserNames())

	p, err := LookupBrowser("  Chrome ")
	require.NoError(t, err)
	assert.Equal(t, "chrome", p.Name)

	r := RandomBrowser()
	assert.Contains(t, modernBrowsers, r.Name)
}
