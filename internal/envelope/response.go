package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ResponseToken is the success payload delivered back to the SPA in the
// URL fragment after a successful code-for-token exchange.
type ResponseToken struct {
	Token        string
	RefreshToken *string
	ExpiresIn    *int
	Scope        []string
	State        *string
}

// ResponseTokenError is the failure payload delivered back to the SPA.
type ResponseTokenError struct {
	Err   string
	State *string
}

// wireResponseToken is the OAuth 2.0 token-response shape used on the wire.
type wireResponseToken struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	RefreshToken *string  `json:"refresh_token,omitempty"`
	ExpiresIn    *int     `json:"expires_in,omitempty"`
	Scope        any      `json:"scope,omitempty"`
	State        *string  `json:"state,omitempty"`
}

type wireResponseError struct {
	Err   string  `json:"err"`
	State *string `json:"state,omitempty"`
}

// EncodeResponse renders a ResponseToken as a base64(JSON) fragment payload.
// token_type is always serialized as the lowercase "bearer".
func EncodeResponse(r ResponseToken) (string, error) {
	scope := r.Scope
	if scope == nil {
		scope = []string{}
	}
	w := wireResponseToken{
		AccessToken:  r.Token,
		TokenType:    "bearer",
		RefreshToken: r.RefreshToken,
		ExpiresIn:    r.ExpiresIn,
		Scope:        scope,
		State:        r.State,
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("envelope: marshal response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncodeError renders a ResponseTokenError as a base64(JSON) fragment payload.
func EncodeError(e ResponseTokenError) (string, error) {
	raw, err := json.Marshal(wireResponseError{Err: e.Err, State: e.State})
	if err != nil {
		return "", fmt.Errorf("envelope: marshal error: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeResponseToken is the inverse of EncodeResponse. It is lenient on
// two points real providers disagree on: token_type is matched
// case-insensitively against "bearer", and scope accepts either a JSON
// array of strings or a single comma-separated string (the GitHub
// non-conformance).
func DecodeResponseToken(s string) (ResponseToken, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ResponseToken{}, fmt.Errorf("envelope: response not base64 encoded: %w", err)
	}

	var w wireResponseToken
	if err := json.Unmarshal(raw, &w); err != nil {
		return ResponseToken{}, fmt.Errorf("envelope: malformed response: %w", err)
	}
	if !strings.EqualFold(w.TokenType, "bearer") {
		return ResponseToken{}, fmt.Errorf("envelope: unsupported token_type %q", w.TokenType)
	}

	return ResponseToken{
		Token:        w.AccessToken,
		RefreshToken: w.RefreshToken,
		ExpiresIn:    w.ExpiresIn,
		Scope:        scopeFromAny(w.Scope),
		State:        w.State,
	}, nil
}

// DecodeResponseError is the inverse of EncodeError.
func DecodeResponseError(s string) (ResponseTokenError, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ResponseTokenError{}, fmt.Errorf("envelope: error payload not base64 encoded: %w", err)
	}
	var w wireResponseError
	if err := json.Unmarshal(raw, &w); err != nil {
		return ResponseTokenError{}, fmt.Errorf("envelope: malformed error payload: %w", err)
	}
	return ResponseTokenError{Err: w.Err, State: w.State}, nil
}

// scopeFromAny canonicalises a decoded "scope" field, which may be a JSON
// array of strings or a comma-separated string, into an ordered slice.
func scopeFromAny(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case string:
		if t == "" {
			return []string{}
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// ProviderTokenFromJSON decodes a provider's 2xx token-endpoint response
// body into the oauth2 package's own Token type via WithExtra, so that
// callers can recover loosely-typed fields like "scope" and "id_token"
// through the standard Token.Extra accessor instead of a second bespoke
// decode step.
func ProviderTokenFromJSON(body []byte) (*oauth2.Token, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("envelope: decode provider token: %w", err)
	}

	t := &oauth2.Token{
		AccessToken:  stringField(raw, "access_token"),
		TokenType:    stringField(raw, "token_type"),
		RefreshToken: stringField(raw, "refresh_token"),
	}
	return t.WithExtra(raw), nil
}

// ProviderErrorFromJSON decodes a provider's non-2xx error body (RFC 6749
// §5.2: "error" and "error_description") into the oauth2 package's
// RetrieveError shape.
func ProviderErrorFromJSON(status int, body []byte) (*oauth2.RetrieveError, error) {
	var wire struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorURI         string `json:"error_uri"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("envelope: decode provider error: %w", err)
	}
	return &oauth2.RetrieveError{
		Response:         &http.Response{StatusCode: status},
		Body:             body,
		ErrorCode:        wire.Error,
		ErrorDescription: wire.ErrorDescription,
		ErrorURI:         wire.ErrorURI,
	}, nil
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// ExpiresInSeconds reads the "expires_in" extra field a provider token may
// carry, tolerating it arriving as either a JSON number or a numeric
// string (real providers disagree on this).
func ExpiresInSeconds(t *oauth2.Token) (int, bool) {
	switch v := t.Extra("expires_in").(type) {
	case float64:
		return int(v), true
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// ScopeExtra reads the "scope" extra field a provider token may carry,
// canonicalising it the same way DecodeResponseToken does.
func ScopeExtra(t *oauth2.Token) []string {
	return scopeFromAny(t.Extra("scope"))
}
