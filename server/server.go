// Package server implements the HTTP-facing half of the gateway: request
// classification and dispatch, the token-exchange and error-redirect
// handlers, the authorization-server simulator, and the listener
// lifecycle state machine.
package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-oauth-redirector/internal/loader"
	"github.com/rs/zerolog"
)

// SnapshotSource is the read side of the config loader: the current
// (registry, port) pair, consistent for the lifetime of one request.
type SnapshotSource interface {
	Snapshot() loader.Snapshot
}

// Server holds everything the HTTP handlers need that isn't per-request:
// the loader's snapshot accessor, an outbound HTTP client for the token
// POST, the simulator, and the optional OIDC sanity checker.
type Server struct {
	log       zerolog.Logger
	snapshots SnapshotSource
	client    *http.Client
	sim       *Simulator
	oidc      *oidcVerifier
}

// New constructs a Server. httpClient may be nil, in which case a client
// with the 30 second outbound timeout from SPEC_FULL.md §11(b) is used.
func New(log zerolog.Logger, snapshots SnapshotSource, httpClient *http.Client) *Server {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Server{
		log:       log,
		snapshots: snapshots,
		client:    httpClient,
		sim:       newSimulator(log),
		oidc:      newOIDCVerifier(log),
	}
}

// Handler returns the single root handler this service exposes, wrapped
// in the standard middleware chain.
func (s *Server) Handler() http.HandlerFunc {
	return ChainMiddleware(s.dispatch,
		CorrelationMiddleware,
		RecoverMiddleware(s.log),
		LoggingMiddleware(s.log),
	)
}

// requestClass is the discriminated union spec.md §9 asks for: exactly
// one of these applies to any incoming request.
type requestClass int

const (
	classBadRequest requestClass = iota
	classSimulatorToken
	classTokenExchange
	classSimulatorAuthorize
	classErrorRedirect
)

func classify(r *http.Request) requestClass {
	if r.Method == http.MethodPost {
		return classSimulatorToken
	}
	if r.Method != http.MethodGet {
		return classBadRequest
	}

	q := r.URL.Query()
	hasCode := q.Has("code")
	hasState := q.Has("state")
	hasError := q.Has("error")
	hasClientID := q.Has("client_id")
	hasRedirectURI := q.Has("redirect_uri")

	switch {
	case hasCode && hasState:
		return classTokenExchange
	case hasClientID && hasRedirectURI && hasState:
		return classSimulatorAuthorize
	case hasError && hasState:
		return classErrorRedirect
	default:
		return classBadRequest
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	switch classify(r) {
	case classTokenExchange:
		s.handleTokenExchange(w, r)
	case classSimulatorAuthorize:
		s.sim.handleAuthorize(w, r)
	case classSimulatorToken:
		s.sim.handleToken(w, r)
	case classErrorRedirect:
		s.handleErrorRedirect(w, r)
	default:
		http.Error(w, "Bad request, missing code/state", http.StatusBadRequest)
	}
}
