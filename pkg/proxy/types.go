package proxy

// System represents the type of proxy system
type System string

const (
	SystemGeonode   System = "geonode"
	SystemSOAX      System = "soax"
	SystemProxyRack System = "proxyrack"
	SystemNone      System = "none"
)

// Credentials is the username/password pair issued by the proxy vendor.
type Credentials struct {
	Username string
	Password string
}

// Config represents the configuration for a proxy provider
type Config struct {
	System      System
	Credentials Credentials
	Endpoint    string // host:port, only used by SOAX and ProxyRack
}

// Provider defines the interface for different proxy providers
type Provider interface {
	Name() string
	// BuildURL returns the proxy URL for opts. An empty URL means dial directly.
	BuildURL(opts Options) (string, error)
}
