// Package config loads the gateway settings from an optional yaml file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"scraper-gateway/pkg/proxy"
)

const EnvPrefix = "SCRAPER"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Twitter  TwitterConfig  `mapstructure:"twitter"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

type ProxyConfig struct {
	System         string        `mapstructure:"system"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Endpoint       string        `mapstructure:"endpoint"`
	DialAddress    string        `mapstructure:"dial_address"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	Browser        string        `mapstructure:"browser"`
	Defaults       OptionsConfig `mapstructure:"defaults"`
}

// OptionsConfig is the textual form of proxy.Options.
type OptionsConfig struct {
	Country      string `mapstructure:"country"`
	IPSourceType string `mapstructure:"ip_source_type"`
	SessionType  string `mapstructure:"session_type"`
	Lifetime     int    `mapstructure:"lifetime"`
	Gateway      string `mapstructure:"gateway"`
	Protocol     string `mapstructure:"protocol"`
}

type UpstreamConfig struct {
	GmgnBaseURL     string `mapstructure:"gmgn_base_url"`
	GoPlusBaseURL   string `mapstructure:"goplus_base_url"`
	RugCheckBaseURL string `mapstructure:"rugcheck_base_url"`
	IPInfoBaseURL   string `mapstructure:"ipinfo_base_url"`
	IPInfoToken     string `mapstructure:"ipinfo_token"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	CacheSize       int    `mapstructure:"cache_size"`
}

type TwitterConfig struct {
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	AuthToken   string `mapstructure:"auth_token"`
	CT0         string `mapstructure:"ct0"`
	SessionName string `mapstructure:"session_name"`
	SessionDB   string `mapstructure:"session_db"`
	GraphQLURL  string `mapstructure:"graphql_url"`
	APIURL      string `mapstructure:"api_url"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// legacyEnv lists the historical variable names still honoured next to the
// SCRAPER_ prefixed ones.
var legacyEnv = map[string]string{
	"proxy.username":     "GEO_NODE_API_USERNAME",
	"proxy.password":     "GEO_NODE_API_PASSWORD",
	"twitter.username":   "TWITTER_USERNAME",
	"twitter.password":   "TWITTER_PASSWORD",
	"twitter.auth_token": "TWITTER_AUTH_TOKEN",
	"twitter.ct0":        "TWITTER_CT0",
	"database.dsn":       "DATABASE_URL",
}

func setDefaults(v *viper.Viper) {
	def := proxy.DefaultOptions()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_header_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.add_source", false)

	v.SetDefault("proxy.system", string(proxy.SystemGeonode))
	v.SetDefault("proxy.username", "")
	v.SetDefault("proxy.password", "")
	v.SetDefault("proxy.endpoint", "")
	v.SetDefault("proxy.dial_address", "")
	v.SetDefault("proxy.timeout_seconds", 30)
	v.SetDefault("proxy.browser", "")
	v.SetDefault("proxy.defaults.country", def.Country)
	v.SetDefault("proxy.defaults.ip_source_type", string(def.IPSourceType))
	v.SetDefault("proxy.defaults.session_type", string(def.SessionType))
	v.SetDefault("proxy.defaults.lifetime", def.Lifetime)
	v.SetDefault("proxy.defaults.gateway", string(def.Gateway))
	v.SetDefault("proxy.defaults.protocol", string(def.Protocol))

	v.SetDefault("upstream.gmgn_base_url", "")
	v.SetDefault("upstream.goplus_base_url", "")
	v.SetDefault("upstream.rugcheck_base_url", "")
	v.SetDefault("upstream.ipinfo_base_url", "")
	v.SetDefault("upstream.ipinfo_token", "")
	v.SetDefault("upstream.cache_ttl_seconds", 0)
	v.SetDefault("upstream.cache_size", 512)

	v.SetDefault("twitter.username", "")
	v.SetDefault("twitter.password", "")
	v.SetDefault("twitter.auth_token", "")
	v.SetDefault("twitter.ct0", "")
	v.SetDefault("twitter.session_name", "default")
	v.SetDefault("twitter.session_db", "twitter_sessions.db")
	v.SetDefault("twitter.graphql_url", "")
	v.SetDefault("twitter.api_url", "")

	v.SetDefault("database.dsn", "")
}

// Load reads path when given, otherwise looks for config.yaml in the working
// directory, $HOME/.scraper-gateway and /etc/scraper-gateway. A missing file
// is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.scraper-gateway")
		v.AddConfigPath("/etc/scraper-gateway/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &cfg, nil
}

func (p ProxyConfig) ProviderConfig() proxy.Config {
	return proxy.Config{
		System: proxy.System(p.System),
		Credentials: proxy.Credentials{
			Username: p.Username,
			Password: p.Password,
		},
		Endpoint: p.Endpoint,
	}
}

func (p ProxyConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Options parses the configured defaults into validated proxy options.
func (o OptionsConfig) Options() (proxy.Options, error) {
	opts := proxy.DefaultOptions()
	var err error
	if o.Country != "" {
		opts.Country = o.Country
	}
	if o.IPSourceType != "" {
		if opts.IPSourceType, err = proxy.ParseIPSourceType(o.IPSourceType); err != nil {
			return proxy.Options{}, err
		}
	}
	if o.SessionType != "" {
		if opts.SessionType, err = proxy.ParseSessionType(o.SessionType); err != nil {
			return proxy.Options{}, err
		}
	}
	if o.Lifetime != 0 {
		opts.Lifetime = o.Lifetime
	}
	if o.Gateway != "" {
		if opts.Gateway, err = proxy.ParseGateway(o.Gateway); err != nil {
			return proxy.Options{}, err
		}
	}
	if o.Protocol != "" {
		if opts.Protocol, err = proxy.ParseProtocol(o.Protocol); err != nil {
			return proxy.Options{}, err
		}
	}
	if err := opts.Validate(); err != nil {
		return proxy.Options{}, err
	}
	return opts, nil
}

func (u UpstreamConfig) CacheTTL() time.Duration {
	return time.Duration(u.CacheTTLSeconds) * time.Second
}
