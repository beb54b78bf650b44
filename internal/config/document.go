// Package config parses and validates the multi-section configuration
// document: an array of JSON objects that are each a comment, the local
// process configuration, or a remote tenant.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	errs "github.com/jrsteele09/go-oauth-redirector/internal/errors"
)

// LocalConfig holds process-wide settings.
type LocalConfig struct {
	HTTPPort           int
	ConfigSamplePeriod int
}

// DefaultLocalConfig returns the defaults applied when no local-config
// object is present in the document.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{HTTPPort: 3000, ConfigSamplePeriod: 2}
}

// RedirectBackHost is one entry of a tenant's redirect-back allow-list.
type RedirectBackHost struct {
	Host string
	SSL  bool
}

// TenantConfig describes one remote tenant. OidcIssuer is an optional
// extension (see SPEC_FULL.md §3.2): when non-empty, a successful token
// exchange that returns an id_token is sanity-checked against this
// issuer, purely as a diagnostic that never affects the redirect.
type TenantConfig struct {
	TokenURI          string
	ClientID          string
	ClientSecret      string
	RedirectBackHosts []RedirectBackHost
	OidcIssuer        string
}

// Document is the decoded, comment-free result of parsing a configuration
// file: one local config (defaulted if absent) plus zero or more tenants.
type Document struct {
	Local  LocalConfig
	Remote []TenantConfig
}

// rawElement is used to sniff which of the three variants a JSON object is
// before decoding it strictly into that variant.
type rawElement struct {
	Comment *string `json:"comment"`

	Port               *int `json:"port"`
	ConfigSamplePeriod *int `json:"configSamplePeriod"`

	TokenURI          *string  `json:"tokenUri"`
	ClientID          *string  `json:"clientId"`
	ClientSecret      *string  `json:"clientSecret"`
	RedirectBackHosts []string `json:"redirectBackHosts"`
	OidcIssuer        *string  `json:"oidcIssuer"`
}

func (r rawElement) isComment() bool {
	return r.Comment != nil
}

func (r rawElement) isTenant() bool {
	return r.TokenURI != nil || r.ClientID != nil || r.ClientSecret != nil || r.RedirectBackHosts != nil
}

func (r rawElement) isLocal() bool {
	return r.Port != nil || r.ConfigSamplePeriod != nil
}

// Parse decodes a configuration document from raw JSON bytes.
func Parse(raw []byte) (Document, error) {
	var elements []rawElement
	if err := json.Unmarshal(raw, &elements); err != nil {
		return Document{}, fmt.Errorf("config: decode document: %w", err)
	}

	doc := Document{Local: DefaultLocalConfig()}
	haveLocal := false

	for i, el := range elements {
		switch {
		case el.isComment():
			continue
		case el.isTenant():
			tenant, err := decodeTenant(el)
			if err != nil {
				return Document{}, fmt.Errorf("config: element %d: %w", i, err)
			}
			doc.Remote = append(doc.Remote, tenant)
		case el.isLocal():
			if haveLocal {
				return Document{}, errs.WithSentinel(errs.ErrMultipleLocalConfig, "Multiple local configurations")
			}
			haveLocal = true
			doc.Local = decodeLocal(el)
		default:
			return Document{}, fmt.Errorf("config: element %d: unrecognised configuration object", i)
		}
	}

	return doc, nil
}

func decodeLocal(el rawElement) LocalConfig {
	local := DefaultLocalConfig()
	if el.Port != nil {
		local.HTTPPort = *el.Port
	}
	if el.ConfigSamplePeriod != nil {
		local.ConfigSamplePeriod = *el.ConfigSamplePeriod
	}
	return local
}

func decodeTenant(el rawElement) (TenantConfig, error) {
	if el.TokenURI == nil || el.ClientID == nil || el.ClientSecret == nil || el.RedirectBackHosts == nil {
		return TenantConfig{}, fmt.Errorf("tenant missing one of tokenUri/clientId/clientSecret/redirectBackHosts")
	}

	hosts := make([]RedirectBackHost, 0, len(el.RedirectBackHosts))
	for _, raw := range el.RedirectBackHosts {
		host, err := parseRedirectBackHost(raw)
		if err != nil {
			return TenantConfig{}, err
		}
		hosts = append(hosts, host)
	}

	tenant := TenantConfig{
		TokenURI:          *el.TokenURI,
		ClientID:          *el.ClientID,
		ClientSecret:      *el.ClientSecret,
		RedirectBackHosts: hosts,
	}
	if el.OidcIssuer != nil {
		tenant.OidcIssuer = *el.OidcIssuer
	}
	return tenant, nil
}

// parseRedirectBackHost turns one redirectBackHosts string into a
// {host, ssl} pair. "https://host[:port]/..." sets ssl=true, "http://..."
// sets ssl=false, and a bare "host[:port]" also sets ssl=false.
func parseRedirectBackHost(raw string) (RedirectBackHost, error) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		host, err := hostFromAuthority(raw)
		if err != nil {
			return RedirectBackHost{}, err
		}
		return RedirectBackHost{Host: host, SSL: true}, nil
	case strings.HasPrefix(raw, "http://"):
		host, err := hostFromAuthority(raw)
		if err != nil {
			return RedirectBackHost{}, err
		}
		return RedirectBackHost{Host: host, SSL: false}, nil
	default:
		if raw == "" {
			return RedirectBackHost{}, fmt.Errorf("empty redirectBackHosts entry")
		}
		return RedirectBackHost{Host: raw, SSL: false}, nil
	}
}

func hostFromAuthority(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("config: invalid redirectBackHosts entry %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("config: invalid redirectBackHosts entry %q: no host", raw)
	}
	return u.Host, nil
}
