package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"scraper-gateway/pkg/apperr"
)

type IPSourceType string

const (
	Residential IPSourceType = "residential"
	Mobile      IPSourceType = "mobile"
	DataCenter  IPSourceType = "datacenter"
)

var ipSourceTypes = []IPSourceType{Residential, Mobile, DataCenter}

type SessionType string

const (
	Sticky   SessionType = "sticky"
	Rotating SessionType = "rotating"
)

var sessionTypes = []SessionType{Sticky, Rotating}

type Gateway string

const (
	GatewayFrance       Gateway = "france"
	GatewayUnitedStates Gateway = "united_states"
	GatewaySingapore    Gateway = "singapore"
)

var gateways = []Gateway{GatewayFrance, GatewayUnitedStates, GatewaySingapore}

// Protocol selects the scheme of the built proxy URL.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolSOCKS5 Protocol = "socks5"
)

var protocols = []Protocol{ProtocolHTTP, ProtocolSOCKS5}

// SupportedCountries is the universe random options draw their country from.
var SupportedCountries = []string{"US", "GB", "DE", "FR", "CA", "AU", "JP"}

const (
	DefaultCountry  = "US"
	DefaultLifetime = 3

	minRandomLifetime = 1
	maxRandomLifetime = 10
)

var countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)

// Options describes the desired characteristics of one proxied call.
type Options struct {
	Country      string       `json:"country"`
	IPSourceType IPSourceType `json:"ip_source_type"`
	SessionType  SessionType  `json:"session_type"`
	Lifetime     int          `json:"lifetime"` // minutes a sticky session keeps its exit IP
	Gateway      Gateway      `json:"gateway"`
	Protocol     Protocol     `json:"protocol,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		Country:      DefaultCountry,
		IPSourceType: Residential,
		SessionType:  Sticky,
		Lifetime:     DefaultLifetime,
		Gateway:      GatewayFrance,
		Protocol:     ProtocolHTTP,
	}
}

// RandomOptions picks every enum uniformly from its universe and a lifetime in [1,10].
func RandomOptions() Options {
	return randomOptions(rand.Intn)
}

// RandomOptionsFrom is RandomOptions driven by r, for reproducible sequences.
func RandomOptionsFrom(r *rand.Rand) Options {
	return randomOptions(r.Intn)
}

func randomOptions(intn func(int) int) Options {
	return Options{
		Country:      SupportedCountries[intn(len(SupportedCountries))],
		IPSourceType: ipSourceTypes[intn(len(ipSourceTypes))],
		SessionType:  sessionTypes[intn(len(sessionTypes))],
		Lifetime:     minRandomLifetime + intn(maxRandomLifetime-minRandomLifetime+1),
		Gateway:      gateways[intn(len(gateways))],
		Protocol:     ProtocolHTTP,
	}
}

// DecodeOptions merges a JSON object over the defaults and validates the result.
func DecodeOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if len(data) == 0 || string(data) == "null" {
		return opts, nil
	}
	if err := json.Unmarshal(data, &opts); err != nil {
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			return Options{}, verr
		}
		return Options{}, apperr.Validation("proxy options", "%v", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks the country pattern, the lifetime and every enum field.
func (o Options) Validate() error {
	if err := ValidateCountry(o.Country); err != nil {
		return err
	}
	if o.Lifetime <= 0 {
		return apperr.Validation("lifetime", "must be a positive number of minutes, got %d", o.Lifetime)
	}
	if !contains(ipSourceTypes, o.IPSourceType) {
		return apperr.Validation("ip_source_type", "unknown value %q", o.IPSourceType)
	}
	if !contains(sessionTypes, o.SessionType) {
		return apperr.Validation("session_type", "unknown value %q", o.SessionType)
	}
	if !contains(gateways, o.Gateway) {
		return apperr.Validation("gateway", "unknown value %q", o.Gateway)
	}
	if o.Protocol != "" && !contains(protocols, o.Protocol) {
		return apperr.Validation("protocol", "unknown value %q", o.Protocol)
	}
	return nil
}

// ValidateCountry enforces an ISO 3166-1 alpha-2 code in upper case.
func ValidateCountry(country string) error {
	if !countryPattern.MatchString(country) {
		return apperr.Validation("country", "%q is not an ISO 3166-1 code, must be 2 uppercase letters", country)
	}
	return nil
}

func (o Options) String() string {
	return fmt.Sprintf("country=%s type=%s session=%s lifetime=%d gateway=%s",
		o.Country, o.IPSourceType, o.SessionType, o.Lifetime, o.Gateway)
}

func (t *IPSourceType) UnmarshalText(b []byte) error {
	v, err := parseEnum("ip_source_type", string(b), ipSourceTypes)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t *SessionType) UnmarshalText(b []byte) error {
	v, err := parseEnum("session_type", string(b), sessionTypes)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (g *Gateway) UnmarshalText(b []byte) error {
	v, err := parseEnum("gateway", string(b), gateways)
	if err != nil {
		return err
	}
	*g = v
	return nil
}

func (p *Protocol) UnmarshalText(b []byte) error {
	v, err := parseEnum("protocol", string(b), protocols)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseIPSourceType, ParseSessionType and ParseGateway accept the wire names
// case-insensitively; they back CLI flags and query parameters.
func ParseIPSourceType(s string) (IPSourceType, error) {
	return parseEnum("ip_source_type", s, ipSourceTypes)
}

func ParseSessionType(s string) (SessionType, error) {
	return parseEnum("session_type", s, sessionTypes)
}

func ParseGateway(s string) (Gateway, error) {
	return parseEnum("gateway", s, gateways)
}

func ParseProtocol(s string) (Protocol, error) {
	return parseEnum("protocol", s, protocols)
}

func parseEnum[T ~string](field, raw string, universe []T) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if !contains(universe, v) {
		var zero T
		return zero, apperr.Validation(field, "unknown value %q", raw)
	}
	return v, nil
}

func contains[T comparable](universe []T, v T) bool {
	for _, u := range universe {
		if u == v {
			return true
		}
	}
	return false
}
