package proxy

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"scraper-gateway/pkg/apperr"
)

const (
	StickyPort   = 9000
	RotatingPort = 10000
)

var gatewayIPs = map[Gateway]string{
	GatewayFrance:       "92.204.164.15",
	GatewayUnitedStates: "192.155.103.209",
	GatewaySingapore:    "172.104.161.166",
}

// GatewayIP returns the ingress IP of g. Unknown gateways fall back to France.
func GatewayIP(g Gateway) string {
	if ip, ok := gatewayIPs[g]; ok {
		return ip
	}
	return gatewayIPs[GatewayFrance]
}

// SessionPort returns the gateway port serving the given session type.
func SessionPort(s SessionType) int {
	if s == Sticky {
		return StickyPort
	}
	return RotatingPort
}

// GeonodeUsername composes the synthetic username carrying the session parameters.
func GeonodeUsername(base string, opts Options) (string, error) {
	if err := ValidateCountry(opts.Country); err != nil {
		return "", err
	}
	sourceType := opts.IPSourceType
	if !contains(ipSourceTypes, sourceType) {
		sourceType = Residential
	}
	return fmt.Sprintf("%s-type-%s-country-%s-lifetime-%d",
		base, sourceType, strings.ToLower(opts.Country), opts.Lifetime), nil
}

// BuildGeonodeURL maps credentials and options to a proxy connection URL.
// It has no side effects and is deterministic given its inputs.
func BuildGeonodeURL(creds Credentials, opts Options) (string, error) {
	if creds.Username == "" || creds.Password == "" {
		return "", apperr.Configuration("geonode username and password are required")
	}
	user, err := GeonodeUsername(creds.Username, opts)
	if err != nil {
		return "", err
	}

	u := &url.URL{
		Scheme: schemeFor(opts.Protocol),
		User:   url.UserPassword(user, creds.Password),
		Host:   net.JoinHostPort(GatewayIP(opts.Gateway), strconv.Itoa(SessionPort(opts.SessionType))),
	}
	return u.String(), nil
}

func schemeFor(p Protocol) string {
	if p == ProtocolSOCKS5 {
		return string(ProtocolSOCKS5)
	}
	return string(ProtocolHTTP)
}

type GeonodeProvider struct {
	config Config
	logger *slog.Logger
}

func newGeonodeProvider(config Config, logger *slog.Logger) (*GeonodeProvider, error) {
	if config.Credentials.Username == "" || config.Credentials.Password == "" {
		return nil, apperr.Configuration("geonode username and password are required")
	}
	return &GeonodeProvider{
		config: config,
		logger: logger,
	}, nil
}

func (p *GeonodeProvider) Name() string {
	return string(SystemGeonode)
}

func (p *GeonodeProvider) BuildURL(opts Options) (string, error) {
	return BuildGeonodeURL(p.config.Credentials, opts)
}
