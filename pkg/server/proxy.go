package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"scraper-gateway/pkg/apperr"
	"scraper-gateway/pkg/database"
	"scraper-gateway/pkg/gateway"
	"scraper-gateway/pkg/proxy"
)

// proxyRequest accepts both the snake_case and the camelCase spelling of
// the option fields.
type proxyRequest struct {
	URL               string            `json:"url"`
	Method            string            `json:"method"`
	Headers           map[string]string `json:"headers"`
	Data              json.RawMessage   `json:"data"`
	ProxyOptions      json.RawMessage   `json:"proxy_options"`
	ProxyOptionsCamel json.RawMessage   `json:"proxyOptions"`
	BrowserType       string            `json:"browser_type"`
	BrowserTypeCamel  string            `json:"browserType"`
}

type proxyResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Content    any               `json:"content"`
}

var proxyMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if s.deps.Proxy == nil {
		s.writeError(w, r, missing("proxy gateway"))
		return
	}

	var req proxyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	method, call, body, err := req.build()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Proxy.Do(r.Context(), method, req.URL, body, call)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, proxyResponse{
		StatusCode: res.StatusCode,
		Headers:    flattenHeader(res.Header),
		Content:    content(res.Body),
	})
}

func (req *proxyRequest) build() (string, gateway.CallOptions, []byte, error) {
	var call gateway.CallOptions

	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", call, nil, apperr.Validation("url", "an absolute http(s) URL is required")
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !proxyMethods[method] {
		return "", call, nil, apperr.Validation("method", "unsupported HTTP method %q", req.Method)
	}

	if len(req.Headers) > 0 {
		call.Header = make(http.Header, len(req.Headers))
		for k, v := range req.Headers {
			call.Header.Set(k, v)
		}
	}

	raw := req.ProxyOptions
	if isNull(raw) {
		raw = req.ProxyOptionsCamel
	}
	if !isNull(raw) {
		opts, err := proxy.DecodeOptions(raw)
		if err != nil {
			return "", call, nil, err
		}
		call.Options = &opts
	}

	call.Browser = req.BrowserType
	if call.Browser == "" {
		call.Browser = req.BrowserTypeCamel
	}

	var body []byte
	if (method == http.MethodPost || method == http.MethodPut) && !isNull(req.Data) {
		body = req.Data
		if call.Header == nil {
			call.Header = http.Header{}
		}
		if call.Header.Get("Content-Type") == "" {
			call.Header.Set("Content-Type", "application/json")
		}
	}
	return method, call, body, nil
}

func (s *Server) handleIPInfo(w http.ResponseWriter, r *http.Request) {
	if s.deps.IPInfo == nil {
		s.writeError(w, r, missing("ipinfo client"))
		return
	}
	opts, err := optionsFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.deps.IPInfo.ExitIP(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	if s.deps.Requests == nil {
		s.writeError(w, r, missing("database"))
		return
	}
	limit := database.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, apperr.Validation("limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	logs, err := s.deps.Requests.RecentRequestLogs(r.Context(), r.URL.Query().Get("provider"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": logs, "count": len(logs)})
}

// optionsFromQuery merges the option query parameters over the defaults. It
// returns nil when none is present so the gateway applies its own defaults.
func optionsFromQuery(q url.Values) (*proxy.Options, error) {
	if b, _ := strconv.ParseBool(q.Get("random")); b {
		opts := proxy.RandomOptions()
		return &opts, nil
	}

	keys := []string{"country", "ip_source_type", "session_type", "lifetime", "gateway", "protocol"}
	present := false
	for _, k := range keys {
		if q.Has(k) {
			present = true
			break
		}
	}
	if !present {
		return nil, nil
	}

	opts := proxy.DefaultOptions()
	var err error
	if v := q.Get("country"); v != "" {
		opts.Country = v
	}
	if v := q.Get("ip_source_type"); v != "" {
		if opts.IPSourceType, err = proxy.ParseIPSourceType(v); err != nil {
			return nil, err
		}
	}
	if v := q.Get("session_type"); v != "" {
		if opts.SessionType, err = proxy.ParseSessionType(v); err != nil {
			return nil, err
		}
	}
	if v := q.Get("lifetime"); v != "" {
		if opts.Lifetime, err = strconv.Atoi(v); err != nil {
			return nil, apperr.Validation("lifetime", "must be an integer")
		}
	}
	if v := q.Get("gateway"); v != "" {
		if opts.Gateway, err = proxy.ParseGateway(v); err != nil {
			return nil, err
		}
	}
	if v := q.Get("protocol"); v != "" {
		if opts.Protocol, err = proxy.ParseProtocol(v); err != nil {
			return nil, err
		}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// content embeds JSON bodies as-is and everything else as text.
func content(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	return string(body)
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
