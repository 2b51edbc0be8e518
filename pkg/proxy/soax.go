package proxy

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"

	"scraper-gateway/pkg/apperr"
)

type SoaxProvider struct {
	config    Config
	logger    *slog.Logger
	sessionID func() int
}

func newSoaxProvider(config Config, logger *slog.Logger) (*SoaxProvider, error) {
	if config.Credentials.Username == "" {
		return nil, apperr.Configuration("SOAX package ID is required")
	}
	if config.Credentials.Password == "" {
		return nil, apperr.Configuration("SOAX package key is required")
	}
	if config.Endpoint == "" {
		return nil, apperr.Configuration("SOAX endpoint is required")
	}

	return &SoaxProvider{
		config:    config,
		logger:    logger,
		sessionID: func() int { return rand.Intn(1000000) },
	}, nil
}

func (p *SoaxProvider) Name() string {
	return string(SystemSOAX)
}

// BuildURL returns a SOAX URL; sticky sessions carry a session id and a
// session length in seconds, rotating ones only target the country.
func (p *SoaxProvider) BuildURL(opts Options) (string, error) {
	if err := ValidateCountry(opts.Country); err != nil {
		return "", err
	}

	user := fmt.Sprintf("package-%s-country-%s", p.config.Credentials.Username, strings.ToLower(opts.Country))
	if opts.SessionType == Sticky {
		id := p.sessionID()
		user += fmt.Sprintf("-sessionid-%d-sessionlength-%d", id, opts.Lifetime*60)
		p.logger.Debug("sticky session assigned", "provider", p.Name(), "session_id", id)
	}

	u := &url.URL{
		Scheme: schemeFor(opts.Protocol),
		User:   url.UserPassword(user, p.config.Credentials.Password),
		Host:   p.config.Endpoint,
	}
	return u.String(), nil
}
