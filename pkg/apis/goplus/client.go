// Package goplus reads token and address security reports from GoPlus Labs.
//
// Unlike gmgn, a missing or unparseable result is not an error: every method
// degrades to an empty map and leaves the decision to the caller.
package goplus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"scraper-gateway/pkg/gateway"
)

const DefaultBaseURL = "https://api.gopluslabs.io/api/v1"

type Client struct {
	getter  gateway.Getter
	baseURL string
	logger  *slog.Logger
}

func New(getter gateway.Getter, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("client", "goplus"),
	}
}

// EVMTokenSecurity returns the report for token on an EVM chain. GoPlus keys
// EVM results by the lower-cased contract address.
func (c *Client) EVMTokenSecurity(ctx context.Context, chainID, token string) (map[string]any, error) {
	result, err := c.result(ctx, fmt.Sprintf("/token_security/%s?contract_addresses=%s", url.PathEscape(chainID), url.QueryEscape(token)))
	if err != nil {
		return nil, err
	}
	return entry(result, strings.ToLower(token)), nil
}

// SolanaTokenSecurity returns the report for a mint. Solana addresses are
// case sensitive, so the key is used as given.
func (c *Client) SolanaTokenSecurity(ctx context.Context, token string) (map[string]any, error) {
	result, err := c.result(ctx, "/token_security/solana?contract_addresses="+url.QueryEscape(token))
	if err != nil {
		return nil, err
	}
	return entry(result, token), nil
}

func (c *Client) AddressSecurity(ctx context.Context, address string) (map[string]any, error) {
	return c.result(ctx, "/address_security/"+url.PathEscape(address))
}

func (c *Client) RugpullDetection(ctx context.Context, chainID, token string) (map[string]any, error) {
	return c.result(ctx, fmt.Sprintf("/rugpull_detecting/%s?contract_addresses=%s", url.PathEscape(chainID), url.QueryEscape(token)))
}

// result fetches path and returns the "result" object of the envelope.
func (c *Client) result(ctx context.Context, path string) (map[string]any, error) {
	res, err := c.getter.Get(ctx, c.baseURL+path, gateway.CallOptions{
		Header:        headers(),
		RandomOptions: true,
		Accept: func(body []byte) bool {
			env, err := decode(body)
			return err == nil && len(env.Result) > 0
		},
	})
	if err != nil {
		return nil, err
	}

	env, err := decode(res.Body)
	if err != nil {
		c.logger.Debug("unparseable response", "path", path, "error", err)
		return map[string]any{}, nil
	}
	if env.Result == nil {
		c.logger.Debug("empty result", "path", path, "code", env.Code, "message", env.Message)
		return map[string]any{}, nil
	}
	return env.Result, nil
}

type envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Result  map[string]any `json:"result"`
}

func decode(body []byte) (envelope, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	err := dec.Decode(&env)
	return env, err
}

func entry(result map[string]any, key string) map[string]any {
	if m, ok := result[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	return h
}
