// Package gateway sends outbound HTTP calls through a rotating residential
// proxy. Each call carries its own proxy identity and cookie jar; only the
// immutable browser profile is shared across calls.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"scraper-gateway/pkg/apperr"
	"scraper-gateway/pkg/fetch"
	"scraper-gateway/pkg/models"
	"scraper-gateway/pkg/proxy"
)

// Recorder receives an audit entry for every outbound call.
type Recorder interface {
	Record(ctx context.Context, entry *models.RequestLog) error
}

// Getter is the part of a Gateway the read-only upstream clients depend on.
type Getter interface {
	Get(ctx context.Context, rawURL string, call CallOptions) (*Response, error)
}

// Config holds the construction-time settings of a Gateway.
type Config struct {
	// Provider builds the proxy URL of each call. Required.
	Provider proxy.Provider
	// DefaultOptions applies to calls that carry neither explicit nor random
	// options. The zero value means proxy.DefaultOptions().
	DefaultOptions *proxy.Options
	// Browser names the session profile. Empty picks a random modern one.
	Browser string
	// DialAddress, when set, replaces the host:port actually dialed.
	DialAddress string
	Timeout     time.Duration
	Recorder    Recorder
}

// CallOptions are the per-call knobs. They never leak into other calls.
type CallOptions struct {
	Header        http.Header
	Options       *proxy.Options
	RandomOptions bool
	Browser       string
	// Jar is the caller's cookie session. Nil sends and keeps no cookies.
	Jar http.CookieJar
	// Accept reports whether a 2xx body is a usable payload. Caching
	// getters only store accepted bodies; nil accepts everything.
	Accept func(body []byte) bool
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Gateway struct {
	provider    proxy.Provider
	defaults    proxy.Options
	browser     BrowserProfile
	dialAddress string
	timeout     time.Duration
	recorder    Recorder
	logger      *slog.Logger
}

// New creates a gateway. It fails with a ConfigurationError when no proxy
// provider is configured.
func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.Provider == nil {
		return nil, apperr.Configuration("proxy credentials are not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := proxy.DefaultOptions()
	if cfg.DefaultOptions != nil {
		defaults = *cfg.DefaultOptions
		if err := defaults.Validate(); err != nil {
			return nil, err
		}
	}

	browser := RandomBrowser()
	if cfg.Browser != "" {
		var err error
		if browser, err = LookupBrowser(cfg.Browser); err != nil {
			return nil, err
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = fetch.DefaultTimeout
	}

	return &Gateway{
		provider:    cfg.Provider,
		defaults:    defaults,
		browser:     browser,
		dialAddress: cfg.DialAddress,
		timeout:     timeout,
		recorder:    cfg.Recorder,
		logger:      logger.With("component", "gateway", "provider", cfg.Provider.Name()),
	}, nil
}

// Browser returns the name of the session profile.
func (g *Gateway) Browser() string {
	return g.browser.Name
}

func (g *Gateway) Get(ctx context.Context, rawURL string, call CallOptions) (*Response, error) {
	return g.Do(ctx, http.MethodGet, rawURL, nil, call)
}

func (g *Gateway) Post(ctx context.Context, rawURL string, body []byte, call CallOptions) (*Response, error) {
	return g.Do(ctx, http.MethodPost, rawURL, body, call)
}

func (g *Gateway) Put(ctx context.Context, rawURL string, body []byte, call CallOptions) (*Response, error) {
	return g.Do(ctx, http.MethodPut, rawURL, body, call)
}

func (g *Gateway) Delete(ctx context.Context, rawURL string, call CallOptions) (*Response, error) {
	return g.Do(ctx, http.MethodDelete, rawURL, nil, call)
}

// Do performs one call. A non-2xx upstream status yields an
// UpstreamHTTPError carrying the status and body.
func (g *Gateway) Do(ctx context.Context, method, rawURL string, body []byte, call CallOptions) (*Response, error) {
	opts := g.resolveOptions(call)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	profile := g.browser
	if call.Browser != "" {
		var err error
		if profile, err = LookupBrowser(call.Browser); err != nil {
			return nil, err
		}
	}

	proxyURL, err := g.provider.BuildURL(opts)
	if err != nil {
		return nil, err
	}

	header := profile.Header.Clone()
	for name, values := range call.Header {
		header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}

	g.logger.Debug("dispatching request",
		"method", method,
		"url", rawURL,
		"proxy", redact(proxyURL),
		"country", opts.Country,
		"session", string(opts.SessionType),
		"browser", profile.Name,
	)

	start := time.Now()
	res, err := fetch.Fetch(ctx, rawURL, fetch.Options{
		ProxyURL: proxyURL,
		Address:  g.dialAddress,
		Method:   method,
		Header:   header,
		Body:     body,
		Timeout:  g.timeout,
		Jar:      call.Jar,
	})
	elapsed := time.Since(start)

	entry := &models.RequestLog{
		ID:         uuid.New(),
		Time:       start.UTC(),
		Method:     method,
		URL:        rawURL,
		Provider:   g.provider.Name(),
		ProxyUser:  proxyUser(proxyURL),
		Country:    opts.Country,
		IPSource:   string(opts.IPSourceType),
		Session:    string(opts.SessionType),
		Browser:    profile.Name,
		DurationMS: elapsed.Milliseconds(),
	}

	if err != nil {
		entry.ErrorMsg = err.Error()
		g.record(ctx, entry)
		g.logger.Warn("request failed", "method", method, "url", rawURL, "error", err)
		return nil, err
	}

	entry.StatusCode = res.Response.StatusCode
	g.record(ctx, entry)

	g.logger.Debug("request completed", "url", rawURL, "status", entry.StatusCode, "duration", elapsed)

	if entry.StatusCode < 200 || entry.StatusCode > 299 {
		return nil, &apperr.UpstreamHTTPError{Status: entry.StatusCode, Body: string(res.Body)}
	}

	return &Response{
		StatusCode: res.Response.StatusCode,
		Header:     res.Response.Header,
		Body:       res.Body,
	}, nil
}

func (g *Gateway) resolveOptions(call CallOptions) proxy.Options {
	switch {
	case call.RandomOptions:
		return proxy.RandomOptions()
	case call.Options != nil:
		opts := *call.Options
		if opts.Protocol == "" {
			opts.Protocol = proxy.ProtocolHTTP
		}
		return opts
	default:
		return g.defaults
	}
}

func (g *Gateway) record(ctx context.Context, entry *models.RequestLog) {
	if g.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.recorder.Record(ctx, entry); err != nil {
		g.logger.Warn("failed to record request", "url", entry.URL, "error", err)
	}
}

// IsUpstreamStatus reports whether err is an upstream non-2xx with the given
// status.
func IsUpstreamStatus(err error, status int) bool {
	var upstream *apperr.UpstreamHTTPError
	return errors.As(err, &upstream) && upstream.Status == status
}

func redact(rawURL string) string {
	if rawURL == "" {
		return "direct"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}

func proxyUser(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return ""
	}
	return u.User.Username()
}
