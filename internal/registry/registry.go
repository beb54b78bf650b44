// Package registry builds and queries the in-memory tenant lookup table:
// an immutable, wholesale-replaced map keyed by (clientId, tokenUri), plus
// the redirect-back host/TLS policy check.
package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oauth-redirector/internal/config"
	errs "github.com/jrsteele09/go-oauth-redirector/internal/errors"
)

type tenantKey struct {
	clientID string
	tokenURI string
}

// Registry is an immutable, read-mostly snapshot of tenant configuration.
// It is never mutated after Build returns; a reload produces a new one.
type Registry struct {
	tenants map[tenantKey]config.TenantConfig
}

// Build folds a list of tenants into a Registry. When (clientId, tokenUri)
// collides, the later entry in document order wins.
func Build(remote []config.TenantConfig) *Registry {
	tenants := make(map[tenantKey]config.TenantConfig, len(remote))
	for _, t := range remote {
		tenants[tenantKey{clientID: t.ClientID, tokenURI: t.TokenURI}] = t
	}
	return &Registry{tenants: tenants}
}

// Lookup returns the tenant for (clientId, tokenUri), or false if none.
func (r *Registry) Lookup(clientID, tokenURI string) (config.TenantConfig, bool) {
	t, ok := r.tenants[tenantKey{clientID: clientID, tokenURI: tokenURI}]
	return t, ok
}

// Len reports how many tenants the registry holds, for logging only.
func (r *Registry) Len() int {
	return len(r.tenants)
}

// AuthorizeBackHost checks redirectBackURL against a tenant's allow-list.
// It extracts host[:port] from the URL and finds a matching entry,
// case-insensitive on host; if the matching entry requires SSL, the URL's
// scheme must be https.
func AuthorizeBackHost(tenant config.TenantConfig, redirectBackURL *url.URL) error {
	host := redirectBackURL.Host
	for _, allowed := range tenant.RedirectBackHosts {
		if !strings.EqualFold(allowed.Host, host) {
			continue
		}
		if allowed.SSL && redirectBackURL.Scheme != "https" {
			return errs.WithSentinel(errs.ErrHostPolicyViolation, fmt.Sprintf("https protocol required for redirect host: %s", host))
		}
		return nil
	}
	return errs.WithSentinel(errs.ErrHostPolicyViolation, fmt.Sprintf("Unknown redirectBack host: %s", host))
}
