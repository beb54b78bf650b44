// Package envelope implements the state-parameter codec: the JSON+base64
// envelope that round-trips caller context through the authorization
// server, and the symmetric fragment payloads delivered back to the SPA.
package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	errs "github.com/jrsteele09/go-oauth-redirector/internal/errors"
)

// RedirectEnvelope is the caller-round-trip payload embedded in the OAuth
// "state" parameter. Every field except State is required on the wire.
type RedirectEnvelope struct {
	ClientID        string   `json:"clientId"`
	TokenURI        string   `json:"tokenUri"`
	RedirectURI     string   `json:"redirectUri"`
	Scope           []string `json:"scope"`
	RedirectBackURI string   `json:"redirectBackUri"`
	State           *string  `json:"state"`
}

// wireEnvelope mirrors RedirectEnvelope but rejects unknown fields and lets
// us tell "absent" apart from "present but zero value" for required fields.
type wireEnvelope struct {
	ClientID        *string  `json:"clientId"`
	TokenURI        *string  `json:"tokenUri"`
	RedirectURI     *string  `json:"redirectUri"`
	Scope           []string `json:"scope"`
	RedirectBackURI *string  `json:"redirectBackUri"`
	State           *string  `json:"state"`
}

// Encode emits compact JSON then base64-encodes it (standard alphabet, '='
// padding). The result is safe to place in a URL query parameter once
// percent-encoded by the caller.
func Encode(e RedirectEnvelope) (string, error) {
	scope := e.Scope
	if scope == nil {
		scope = []string{}
	}
	payload := wireEnvelope{
		ClientID:        &e.ClientID,
		TokenURI:        &e.TokenURI,
		RedirectURI:     &e.RedirectURI,
		Scope:           scope,
		RedirectBackURI: &e.RedirectBackURI,
		State:           e.State,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("envelope: marshal: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode is the inverse of Encode. It rejects unknown JSON fields and
// missing required fields, both reported as "Malformed state: <json>".
func Decode(s string) (RedirectEnvelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return RedirectEnvelope{}, errs.WithSentinel(errs.ErrMalformedEnvelope, fmt.Sprintf("State not base64 encoded: %s", s))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var w wireEnvelope
	if err := dec.Decode(&w); err != nil {
		return RedirectEnvelope{}, errs.WithSentinel(errs.ErrMalformedEnvelope, fmt.Sprintf("Malformed state: %s", raw))
	}

	if w.ClientID == nil || w.TokenURI == nil || w.RedirectURI == nil || w.Scope == nil || w.RedirectBackURI == nil {
		return RedirectEnvelope{}, errs.WithSentinel(errs.ErrMalformedEnvelope, fmt.Sprintf("Malformed state: %s", raw))
	}

	scope := w.Scope
	if scope == nil {
		scope = []string{}
	}

	return RedirectEnvelope{
		ClientID:        *w.ClientID,
		TokenURI:        *w.TokenURI,
		RedirectURI:     *w.RedirectURI,
		Scope:           scope,
		RedirectBackURI: *w.RedirectBackURI,
		State:           w.State,
	}, nil
}
