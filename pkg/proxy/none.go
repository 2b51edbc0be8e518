package proxy

import (
	"log/slog"
)

// NoneProvider connects directly, without any proxy. It is meant for local
// development against upstreams that do not block datacenter traffic.
type NoneProvider struct {
	config Config
	logger *slog.Logger
}

func newNoneProvider(config Config, logger *slog.Logger) *NoneProvider {
	return &NoneProvider{
		config: config,
		logger: logger,
	}
}

func (p *NoneProvider) Name() string {
	return string(SystemNone)
}

// BuildURL still validates opts so callers get the same errors with or without a proxy.
func (p *NoneProvider) BuildURL(opts Options) (string, error) {
	if err := ValidateCountry(opts.Country); err != nil {
		return "", err
	}
	return "", nil
}
