package proxy

import (
	"log/slog"
	"strings"

	"scraper-gateway/pkg/apperr"
)

// NewProvider creates a new proxy provider based on the config
func NewProvider(config Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	system := System(strings.ToLower(strings.TrimSpace(string(config.System))))
	var (
		provider Provider
		err      error
	)
	switch system {
	case "", SystemGeonode:
		config.System = SystemGeonode
		provider, err = newGeonodeProvider(config, logger)
	case SystemSOAX:
		provider, err = newSoaxProvider(config, logger)
	case SystemProxyRack:
		provider, err = newProxyRackProvider(config, logger)
	case SystemNone:
		provider = newNoneProvider(config, logger)
	default:
		return nil, apperr.Configuration("unsupported proxy system: %s", config.System)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("proxy provider created", "system", provider.Name())
	return provider, nil
}
