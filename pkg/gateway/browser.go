package gateway

import (
	"math/rand"
	"net/http"
	"sort"
	"strings"

	"scraper-gateway/pkg/apperr"
)

// BrowserProfile is the header set a gateway presents on every call.
type BrowserProfile struct {
	Name   string
	Header http.Header
}

var userAgents = map[string]string{
	"chrome":  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"firefox": "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"safari":  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"edge":    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
	"opera":   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 OPR/115.0.0.0",
	"curl":    "curl/8.4.0",
}

// modernBrowsers is the pool a gateway draws from when no profile is named.
var modernBrowsers = []string{"chrome", "firefox", "safari", "edge"}

// BrowserNames lists every profile accepted by LookupBrowser.
func BrowserNames() []string {
	names := make([]string, 0, len(userAgents))
	for name := range userAgents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupBrowser returns the named profile.
func LookupBrowser(name string) (BrowserProfile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	ua, ok := userAgents[name]
	if !ok {
		return BrowserProfile{}, apperr.Validation("browser", "unknown browser %q, expected one of %s", name, strings.Join(BrowserNames(), ", "))
	}

	h := http.Header{}
	h.Set("User-Agent", ua)
	if name == "curl" {
		h.Set("Accept", "*/*")
		return BrowserProfile{Name: name, Header: h}, nil
	}

	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Upgrade-Insecure-Requests", "1")
	return BrowserProfile{Name: name, Header: h}, nil
}

// RandomBrowser picks one of the modern desktop profiles.
func RandomBrowser() BrowserProfile {
	p, _ := LookupBrowser(modernBrowsers[rand.Intn(len(modernBrowsers))])
	return p
}
