// Package gmgn reads token analytics from the gmgn.ai web API.
package gmgn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"scraper-gateway/pkg/apperr"
	"scraper-gateway/pkg/gateway"
)

const DefaultBaseURL = "https://gmgn.ai"

// Timeframes accepted by TrendingTokens.
var Timeframes = []string{"1h", "24h"}

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
		logger:  logger.With("client", "gmgn"),
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) SmartMoneyWallet(ctx context.Context, chain, wallet string) (json.RawMessage, error) {
	return c.get(ctx,
		fmt.Sprintf("/defi/quotation/v1/smartmoney/%s/walletNew/%s?period=7d", seg(chain), seg(wallet)),
		fmt.Sprintf("/%s/address/%s", seg(chain), seg(wallet)))
}

func (c *Client) TopTraders(ctx context.Context, chain, token string) (json.RawMessage, error) {
	return c.get(ctx,
		fmt.Sprintf("/defi/quotation/v1/tokens/top_traders/%s/%s", seg(chain), seg(token)),
		tokenPage(chain, token))
}

func (c *Client) TokenSecurity(ctx context.Context, chain, token string) (json.RawMessage, error) {
	return c.get(ctx,
		fmt.Sprintf("/api/v1/mutil_window_token_security_launchpad/%s/%s", seg(chain), seg(token)),
		tokenPage(chain, token))
}

func (c *Client) WalletHoldings(ctx context.Context, chain, wallet string) (json.RawMessage, error) {
	return c.get(ctx,
		fmt.Sprintf("/api/v1/wallet_holdings/%s/%s", seg(chain), seg(wallet)),
		fmt.Sprintf("/%s/address/%s", seg(chain), seg(wallet)))
}

// TrendingTokens fails with a ValidationError before any network call when
// timeframe is not one of Timeframes. Empty means "1h".
func (c *Client) TrendingTokens(ctx context.Context, chain, timeframe string) (json.RawMessage, error) {
	if timeframe == "" {
		timeframe = Timeframes[0]
	}
	if !validTimeframe(timeframe) {
		return nil, apperr.Validation("timeframe", "must be either '1h' or '24h', got %q", timeframe)
	}
	return c.get(ctx,
		fmt.Sprintf("/defi/quotation/v1/rank/%s/swaps/%s", seg(chain), timeframe),
		fmt.Sprintf("/%s/trending", seg(chain)))
}

func (c *Client) TopBuyers(ctx context.Context, chain, token string) (json.RawMessage, error) {
	return c.get(ctx,
		fmt.Sprintf("/defi/quotation/v1/tokens/top_buyers/%s/%s", seg(chain), seg(token)),
		tokenPage(chain, token))
}

func (c *Client) TopHolders(ctx context.Context, chain, token string) (json.RawMessage, error) {
	return c.get(ctx,
		fmt.Sprintf("/defi/quotation/v1/tokens/top_holders/%s/%s", seg(chain), seg(token)),
		tokenPage(chain, token))
}

func (c *Client) get(ctx context.Context, path, refererPath string) (json.RawMessage, error) {
	header := headers()
	header.Set("Referer", c.baseURL+refererPath)

	res, err := c.getter.Get(ctx, c.baseURL+path, gateway.CallOptions{
		Header:        header,
		RandomOptions: true,
		Accept: func(body []byte) bool {
			_, ok := unwrap(body)
			return ok
		},
	})
	if err != nil {
		return nil, err
	}

	env, ok := unwrap(res.Body)
	if !ok {
		msg := env.Msg
		if msg == "" {
			msg = "Invalid response from GMGN"
		}
		c.logger.Debug("envelope rejected", "path", path, "code", env.Code, "msg", env.Msg)
		return nil, &apperr.UpstreamLogicalError{Message: msg}
	}
	return env.Data, nil
}

// unwrap parses the envelope and reports whether it carries data.
func unwrap(body []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, false
	}
	return env, env.Code == 0 && !isEmpty(env.Data)
}

func headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-GB,en;q=0.6")
	h.Set("Priority", "u=1, i")
	h.Set("Sec-Ch-Ua", `"Not A(Brand";v="8", "Chromium";v="132", "Brave";v="132"`)
	h.Set("Sec-Ch-Ua-Arch", `"arm"`)
	h.Set("Sec-Ch-Ua-Bitness", `"64"`)
	h.Set("Sec-Ch-Ua-Full-Version-List", `"Not A(Brand";v="8.0.0.0", "Chromium";v="132.0.0.0", "Brave";v="132.0.0.0"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Model", `""`)
	h.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	h.Set("Sec-Ch-Ua-Platform-Version", `"14.6.1"`)
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-Gpc", "1")
	h.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36")
	return h
}

func tokenPage(chain, token string) string {
	return fmt.Sprintf("/%s/token/%s", seg(chain), seg(token))
}

func seg(s string) string {
	return url.PathEscape(s)
}

func validTimeframe(tf string) bool {
	for _, t := range Timeframes {
		if t == tf {
			return true
		}
	}
	return false
}

// isEmpty treats null, false, 0, "" and empty containers as no data.
func isEmpty(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`, "{}", "[]":
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch t := v.(type) {
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case float64:
		return t == 0
	}
	return false
}
