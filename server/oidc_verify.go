package server

import (
	"context"
	"sync"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
)

// oidcVerifier is the optional provider id_token sanity check described in
// SPEC_FULL.md §5.3. It is purely diagnostic: a failure is logged at warn
// and never affects the redirect already in flight, so every call site
// invokes it via verifyAsync and discards the result.
type oidcVerifier struct {
	log zerolog.Logger

	mu        sync.RWMutex
	providers map[string]*cachedProvider
}

type cachedProvider struct {
	provider *oidc.Provider
	failed   bool
}

func newOIDCVerifier(log zerolog.Logger) *oidcVerifier {
	return &oidcVerifier{log: log, providers: make(map[string]*cachedProvider)}
}

// verifyAsync fires the sanity check in its own goroutine so it can never
// add latency to the redirect response, which is written without waiting
// for the check to finish.
func (v *oidcVerifier) verifyAsync(issuer, clientID, rawIDToken string) {
	go v.verify(issuer, clientID, rawIDToken)
}

func (v *oidcVerifier) verify(issuer, clientID, rawIDToken string) {
	provider, ok := v.providerFor(issuer)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	if _, err := verifier.Verify(ctx, rawIDToken); err != nil {
		v.log.Warn().Str("issuer", issuer).Str("client_id", clientID).Err(err).
			Msg("provider id_token failed sanity check, redirect already sent")
	}
}

// providerFor returns a cached *oidc.Provider for issuer, fetching it at
// most once; a fetch failure is remembered for the process lifetime so a
// dead issuer can't add per-request latency to every subsequent exchange.
func (v *oidcVerifier) providerFor(issuer string) (*oidc.Provider, bool) {
	v.mu.RLock()
	cached, ok := v.providers[issuer]
	v.mu.RUnlock()
	if ok {
		if cached.failed {
			return nil, false
		}
		return cached.provider, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, issuer)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.log.Warn().Str("issuer", issuer).Err(err).Msg("failed to fetch OIDC provider metadata, disabling sanity check for this issuer")
		v.providers[issuer] = &cachedProvider{failed: true}
		return nil, false
	}
	v.providers[issuer] = &cachedProvider{provider: provider}
	return provider, true
}
