package proxy

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"

	"scraper-gateway/pkg/apperr"
)

type ProxyRackProvider struct {
	config    Config
	logger    *slog.Logger
	sessionID func() int
}

func newProxyRackProvider(config Config, logger *slog.Logger) (*ProxyRackProvider, error) {
	// Validate required ProxyRack configuration
	if config.Credentials.Username == "" {
		return nil, apperr.Configuration("ProxyRack username is required")
	}
	if config.Credentials.Password == "" {
		return nil, apperr.Configuration("ProxyRack API key is required")
	}
	if config.Endpoint == "" {
		return nil, apperr.Configuration("ProxyRack endpoint is required")
	}

	return &ProxyRackProvider{
		config:    config,
		logger:    logger,
		sessionID: func() int { return rand.Intn(1000000) },
	}, nil
}

func (p *ProxyRackProvider) Name() string {
	return string(SystemProxyRack)
}

// BuildURL returns a transport URL for the ProxyRack provider
func (p *ProxyRackProvider) BuildURL(opts Options) (string, error) {
	if err := ValidateCountry(opts.Country); err != nil {
		return "", err
	}

	user := fmt.Sprintf("%s-country-%s", p.config.Credentials.Username, strings.ToUpper(opts.Country))
	if opts.SessionType == Sticky {
		id := p.sessionID()
		user += fmt.Sprintf("-session-%d-refreshMinutes-%d", id, opts.Lifetime)
		p.logger.Debug("sticky session assigned", "provider", p.Name(), "session_id", id)
	}

	u := &url.URL{
		Scheme: schemeFor(opts.Protocol),
		User:   url.UserPassword(user, p.config.Credentials.Password),
		Host:   p.config.Endpoint,
	}
	return u.String(), nil
}
