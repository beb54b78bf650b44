package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-oauth-redirector/internal/envelope"
)

// handleErrorRedirect implements component G: a provider error callback
// must still deliver a usable error to the SPA whenever the envelope
// decodes, and a plain 400 otherwise.
func (s *Server) handleErrorRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	errParam := q.Get("error")
	state := q.Get("state")

	env, err := envelope.Decode(state)
	if err != nil {
		http.Error(w, "Bad request, missing code/state", http.StatusBadRequest)
		return
	}

	redirectBackURL, err := url.Parse(env.RedirectBackURI)
	if err != nil {
		http.Error(w, "Bad request, missing code/state", http.StatusBadRequest)
		return
	}

	errMsg := errParam
	if errMsg == "" {
		errMsg = "Missing code/state"
	}

	fragment, err := envelope.EncodeError(envelope.ResponseTokenError{Err: errMsg, State: env.State})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode error fragment payload")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	redirectBackURL.Fragment = ""
	w.Header().Set("Location", redirectBackURL.String()+"#"+fragment)
	w.WriteHeader(http.StatusFound)
}
