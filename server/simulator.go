package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// verifiedSimClientID is the one simulator client id whose secret is
// actually checked (via bcrypt) rather than accepted unconditionally.
// Every other non-"fail" client id succeeds regardless of its secret,
// per the simulator's contract of approving everything by default.
const verifiedSimClientID = "verified"

// verifiedSimSecret is the plaintext secret verifiedSimClientID must
// present; it exists only so the simulator has a real credential check
// to exercise in integration tests.
const verifiedSimSecret = "sim-secret"

// Simulator is a self-contained fake OAuth provider reachable on the same
// listener as the gateway, used by integration tests (spec.md §4.H).
type Simulator struct {
	log          zerolog.Logger
	secretHash   []byte
	signingKey   *rsa.PrivateKey
	issuerPrefix string
}

func newSimulator(log zerolog.Logger) *Simulator {
	hash, err := bcrypt.GenerateFromPassword([]byte(verifiedSimSecret), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("simulator: failed to hash verified secret, falling back to rejecting it always")
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Error().Err(err).Msg("simulator: failed to generate signing key, id_token issuance disabled")
	}
	return &Simulator{log: log, secretHash: hash, signingKey: key}
}

// handleAuthorize always approves: it redirects straight back with a
// fixed authorization code.
func (sim *Simulator) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")

	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "Bad request, missing code/state", http.StatusBadRequest)
		return
	}
	values := target.Query()
	values.Set("code", "xyzzy")
	values.Set("state", state)
	target.RawQuery = values.Encode()

	w.Header().Set("Location", target.String())
	w.WriteHeader(http.StatusFound)
}

type simulatorError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (sim *Simulator) writeJSONError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(simulatorError{Error: code, ErrorDescription: description})
}

// handleToken implements the fake token endpoint: it accepts credentials
// either in the form body or as HTTP Basic, requires grant_type and a
// non-empty code, and fails a fixed "fail" client id or a mismatched
// secret for the one client id the simulator actually checks.
func (sim *Simulator) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		sim.writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		clientID = basicID
		clientSecret = basicSecret
	}

	grantType := r.PostFormValue("grant_type")
	code := r.PostFormValue("code")

	if grantType != "authorization_code" {
		sim.writeJSONError(w, http.StatusBadRequest, "invalid_request", "grant_type must be authorization_code")
		return
	}
	if code == "" {
		sim.writeJSONError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	if clientID == "fail" {
		sim.writeJSONError(w, http.StatusUnauthorized, "invalid_client", "Client authentication failed.")
		return
	}

	if clientID == verifiedSimClientID {
		if err := bcrypt.CompareHashAndPassword(sim.secretHash, []byte(clientSecret)); err != nil {
			sim.writeJSONError(w, http.StatusUnauthorized, "invalid_client", "Client authentication failed.")
			return
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")

	resp := map[string]any{
		"access_token":  "yourTokenSir",
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "aRefreshToken",
	}
	if idToken, err := sim.signIDToken(clientID); err == nil {
		resp["id_token"] = idToken
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// signIDToken issues a fake id_token signed RS256 with the simulator's
// in-memory key. The simulator publishes no discovery document or JWKS, so
// the OIDC sanity check (server/oidc_verify.go) cannot verify these tokens.
func (sim *Simulator) signIDToken(clientID string) (string, error) {
	if sim.signingKey == nil {
		return "", errNoSigningKey
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    sim.issuerPrefix,
		Subject:   "sim-user",
		Audience:  jwt.ClaimStrings{clientID},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(sim.signingKey)
}

// SetIssuer sets the issuer string the simulator embeds in id_tokens.
// Nothing in this repository calls it, so the issuer claim is empty by
// default.
func (sim *Simulator) SetIssuer(issuer string) {
	sim.issuerPrefix = issuer
}

var errNoSigningKey = &simulatorConfigError{"no signing key available"}

type simulatorConfigError struct{ msg string }

func (e *simulatorConfigError) Error() string { return e.msg }
