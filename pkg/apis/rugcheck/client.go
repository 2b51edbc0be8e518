// Package rugcheck fetches Solana token risk reports from api.rugcheck.xyz.
package rugcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"scraper-gateway/pkg/apperr"
	"scraper-gateway/pkg/gateway"
)

const DefaultBaseURL = "https://api.rugcheck.xyz/v1"

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
		logger:  logger.With("client", "rugcheck"),
	}
}

// TokenReport returns the report document exactly as RugCheck serves it.
func (c *Client) TokenReport(ctx context.Context, token string) (json.RawMessage, error) {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")

	res, err := c.getter.Get(ctx, c.baseURL+"/tokens/"+url.PathEscape(token)+"/report", gateway.CallOptions{
		Header:        h,
		RandomOptions: true,
		Accept:        json.Valid,
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(res.Body) {
		c.logger.Debug("report is not json", "token", token, "size", len(res.Body))
		return nil, &apperr.UpstreamLogicalError{Message: "invalid JSON response from RugCheck"}
	}
	return json.RawMessage(res.Body), nil
}
