// Package fetch provides functionality to make HTTP requests through various transports
package fetch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps both the wire body and its decoded form.
var maxBodyBytes int64 = 32 << 20

// Options fully describes one outbound call. Nothing is shared between calls
// unless the caller passes the same Jar twice.
type Options struct {
	// Proxy URL (http, https or socks5). If empty, dial directly
	ProxyURL string
	// Override address to connect to. With a proxy it replaces the proxy
	// authority, otherwise the URL authority
	Address string
	// HTTP method to use (default: "GET")
	Method string
	// Headers sent with the request
	Header http.Header
	// Request body, sent as is
	Body []byte
	// Timeout for the whole exchange (default: 30s)
	Timeout time.Duration
	// Optional cookie jar
	Jar http.CookieJar
}

// Result contains the response from a fetch request
type Result struct {
	// HTTP response, its body is already consumed
	Response *http.Response
	// Response body as bytes, decoded according to Content-Encoding
	Body []byte
}

// Fetch makes an HTTP request with the given options
func Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	tr, err := newTransport(opts)
	if err != nil {
		return nil, err
	}
	defer tr.CloseIdleConnections()

	httpClient := &http.Client{
		Transport: tr,
		Timeout:   opts.Timeout,
		Jar:       opts.Jar,
	}

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range opts.Header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read of page body failed: %w", err)
	}

	decoded, err := DecodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("decode of page body failed: %w", err)
	}
	if resp.Header.Get("Content-Encoding") != "" {
		resp.Header.Del("Content-Encoding")
		resp.Header.Set("Content-Length", strconv.Itoa(len(decoded)))
	}

	return &Result{
		Response: resp,
		Body:     decoded,
	}, nil
}

func newTransport(opts Options) (*http.Transport, error) {
	tr := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if opts.ProxyURL == "" {
		dialContext, err := streamDialContext("", opts.Address)
		if err != nil {
			return nil, err
		}
		tr.DialContext = dialContext
		return tr, nil
	}

	proxyURL, err := url.Parse(opts.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if opts.Address != "" {
		proxyURL.Host = opts.Address
	}

	switch proxyURL.Scheme {
	case "http", "https":
		tr.Proxy = http.ProxyURL(proxyURL)
		tr.DialContext = (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	case "socks5":
		dialContext, err := streamDialContext(proxyURL.String(), "")
		if err != nil {
			return nil, err
		}
		tr.DialContext = dialContext
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %q", proxyURL.Scheme)
	}
	return tr, nil
}

// streamDialContext adapts a configurl transport config to a DialContext
// function. An empty config dials directly.
func streamDialContext(transportConfig, address string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	var overrideHost, overridePort string
	if address != "" {
		var err error
		overrideHost, overridePort, err = net.SplitHostPort(address)
		if err != nil {
			// Fail to parse. Assume the address is host only.
			overrideHost = address
			overridePort = ""
		}
	}

	dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(transportConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}
		if overrideHost != "" {
			host = overrideHost
		}
		if overridePort != "" {
			port = overridePort
		}
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialStream(ctx, net.JoinHostPort(host, port))
	}, nil
}

// ParseHeaderLines parses raw "Name: value" lines (without \r\n) into a header.
func ParseHeaderLines(lines []string) (http.Header, error) {
	if len(lines) == 0 {
		return http.Header{}, nil
	}
	headerText := strings.Join(lines, "\r\n") + "\r\n\r\n"
	h, err := textproto.NewReader(bufio.NewReader(strings.NewReader(headerText))).ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("invalid header line: %w", err)
	}
	return http.Header(h), nil
}
