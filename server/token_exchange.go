package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oauth-redirector/internal/config"
	"github.com/jrsteele09/go-oauth-redirector/internal/envelope"
	errs "github.com/jrsteele09/go-oauth-redirector/internal/errors"
	"github.com/jrsteele09/go-oauth-redirector/internal/registry"
	"github.com/jrsteele09/go-oauth-redirector/internal/utils"
	"golang.org/x/oauth2"
)

// handleTokenExchange implements component F: validate the caller's state,
// authorize the redirect-back host, exchange the code for a token with the
// tenant's provider, and redirect the browser with the result in the
// fragment. It never writes a non-302 body on the success path.
func (s *Server) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")

	env, err := envelope.Decode(state)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	redirectBackURL, err := url.Parse(env.RedirectBackURI)
	if err != nil {
		writeGatewayError(w, errs.WithSentinel(errs.ErrMalformedEnvelope, fmt.Sprintf("Can't parse redirectBackUri: %s", env.RedirectBackURI)))
		return
	}

	snap := s.snapshots.Snapshot()
	tenant, ok := snap.Registry.Lookup(env.ClientID, env.TokenURI)
	if !ok {
		s.log.Warn().Str("client_id", env.ClientID).Str("token_uri", env.TokenURI).
			Msg("unknown (clientId, tokenUri)")
		writeGatewayError(w, errs.WithSentinel(errs.ErrUnknownTenant, fmt.Sprintf("Unknown (clientId, tokenUri): (%s, %s)", env.ClientID, env.TokenURI)))
		return
	}

	if err := registry.AuthorizeBackHost(tenant, redirectBackURL); err != nil {
		s.log.Warn().Str("client_id", env.ClientID).Err(err).Msg("redirect back host rejected")
		writeGatewayError(w, err)
		return
	}

	redirectURI, err1 := url.Parse(env.RedirectURI)
	tokenURI, err2 := url.Parse(env.TokenURI)
	if err1 != nil || err2 != nil {
		http.Error(w, "Can't parse redirectUri or tokenUri", http.StatusNotFound)
		return
	}

	payload := s.exchangeCode(r, tenant, code, redirectURI.String(), tokenURI.String(), env)

	fragment, err := encodeFragment(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode fragment payload")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	redirectBackURL.Fragment = ""
	location := redirectBackURL.String() + "#" + fragment
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// exchangeCode performs the outbound POST and translates the outcome into
// either a ResponseToken or a ResponseTokenError. It never returns a Go
// error itself: every failure mode is represented in the returned value,
// since the SPA must always receive a fragment-encoded result once a
// valid envelope has been decoded.
func (s *Server) exchangeCode(r *http.Request, tenant config.TenantConfig, code, redirectURI, tokenURI string, env envelope.RedirectEnvelope) any {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	if tenant.ClientSecret == "" {
		form.Set("client_id", tenant.ClientID)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return errorPayload(fmt.Sprintf("BadUrl: %s", err.Error()), env.State)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if tenant.ClientSecret != "" {
		req.SetBasicAuth(tenant.ClientID, tenant.ClientSecret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errs.Is(err, context.Canceled) {
			return errorPayload("NetworkError", env.State)
		}
		if isTimeout(err) {
			return errorPayload("Timeout", env.State)
		}
		return errorPayload("NetworkError", env.State)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorPayload(fmt.Sprintf("Decoder error: %s", err.Error()), env.State)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		token, err := envelope.ProviderTokenFromJSON(body)
		if err != nil {
			return errorPayload(fmt.Sprintf("Decoder error: %s", err.Error()), env.State)
		}
		return s.buildResponseToken(token, env, tenant)
	}

	if retrieveErr, decErr := envelope.ProviderErrorFromJSON(resp.StatusCode, body); decErr == nil && retrieveErr.ErrorCode != "" {
		msg := retrieveErr.ErrorDescription
		if msg == "" {
			msg = retrieveErr.ErrorCode
		}
		return errorPayload(msg, env.State)
	}

	return errorPayload(fmt.Sprintf("BadStatus, code: %d", resp.StatusCode), env.State)
}

func (s *Server) buildResponseToken(token *oauth2.Token, env envelope.RedirectEnvelope, tenant config.TenantConfig) envelope.ResponseToken {
	scope := envelope.ScopeExtra(token)
	if len(scope) == 0 {
		scope = env.Scope
	}

	resp := envelope.ResponseToken{
		Token: token.AccessToken,
		Scope: scope,
		State: env.State,
	}
	if token.RefreshToken != "" {
		resp.RefreshToken = utils.Ptr(token.RefreshToken)
	}
	if secs, ok := envelope.ExpiresInSeconds(token); ok {
		resp.ExpiresIn = utils.Ptr(secs)
	}

	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" && tenant.OidcIssuer != "" {
		s.oidc.verifyAsync(tenant.OidcIssuer, tenant.ClientID, idToken)
	}

	return resp
}

func errorPayload(errMsg string, state *string) envelope.ResponseTokenError {
	return envelope.ResponseTokenError{Err: errMsg, State: state}
}

// encodeFragment dispatches to the right encoder for whichever payload
// type exchangeCode produced.
func encodeFragment(payload any) (string, error) {
	switch v := payload.(type) {
	case envelope.ResponseToken:
		return envelope.EncodeResponse(v)
	case envelope.ResponseTokenError:
		return envelope.EncodeError(v)
	default:
		return "", fmt.Errorf("server: unexpected payload type %T", payload)
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errs.As(err, &t) {
		return t.Timeout()
	}
	return false
}

// writeGatewayError maps a gateway error to the HTTP status spec.md §7's
// error table assigns its sentinel, writing err.Error() verbatim as the
// body. Anything not chained to a known sentinel defaults to 400, matching
// handleTokenExchange's pre-lookup failures (decode, host parse).
func writeGatewayError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errs.Is(err, errs.ErrUnknownTenant) || errs.Is(err, errs.ErrHostPolicyViolation) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
