// Package ipinfo reports which exit IP a set of proxy options lands on.
package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"scraper-gateway/pkg/gateway"
	"scraper-gateway/pkg/proxy"
)

const DefaultBaseURL = "https://ipinfo.io"

type IPInfoResponse struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	Anycast  bool   `json:"anycast,omitempty"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc,omitempty"`
	Org      string `json:"org"`
	Postal   string `json:"postal,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	ASNumber string `json:"as_number"`
	ASOrg    string `json:"as_org"`
}

type Client struct {
	getter  gateway.Getter
	baseURL string
	token   string
}

// New builds a client. getter must not cache: every lookup has to go out
// through the proxy.
func New(getter gateway.Getter, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{getter: getter, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// ExitIP asks ipinfo about the address the call egressed from. Nil opts uses
// the gateway defaults.
func (c *Client) ExitIP(ctx context.Context, opts *proxy.Options) (IPInfoResponse, error) {
	u := c.baseURL + "/json"
	if c.token != "" {
		u += "?token=" + url.QueryEscape(c.token)
	}

	res, err := c.getter.Get(ctx, u, gateway.CallOptions{Options: opts})
	if err != nil {
		return IPInfoResponse{}, err
	}

	var ipInfo IPInfoResponse
	if err := json.Unmarshal(res.Body, &ipInfo); err != nil {
		return IPInfoResponse{}, fmt.Errorf("decode ipinfo response: %w", err)
	}
	ipInfo.ASNumber, ipInfo.ASOrg = ParseOrg(ipInfo.Org)
	return ipInfo, nil
}

// ParseOrg splits ipinfo's "AS15169 Google LLC" org field.
func ParseOrg(org string) (asNumber, asOrg string) {
	orgParts := strings.SplitN(org, " ", 2)
	if len(orgParts) == 2 && strings.HasPrefix(orgParts[0], "AS") {
		return strings.TrimPrefix(orgParts[0], "AS"), orgParts[1]
	}
	// If we can't parse it properly, keep the whole string as the org
	return "", org
}
