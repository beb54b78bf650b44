package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// S6: simulator fail.
func TestSimulator_Token_Fail(t *testing.T) {
	sim := newSimulator(zerolog.Nop())
	form := url.Values{
		"client_id": {"fail"}, "client_secret": {"s"},
		"grant_type": {"authorization_code"}, "code": {"xyzzy"},
	}
	rec := httptest.NewRecorder()
	sim.handleToken(rec, formRequest(http.MethodPost, "/", form))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_client", body["error"])
}

func TestSimulator_Token_Success(t *testing.T) {
	sim := newSimulator(zerolog.Nop())
	form := url.Values{
		"client_id": {"anything"}, "client_secret": {"whatever"},
		"grant_type": {"authorization_code"}, "code": {"xyzzy"},
	}
	rec := httptest.NewRecorder()
	sim.handleToken(rec, formRequest(http.MethodPost, "/", form))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "yourTokenSir", body["access_token"])
	require.Equal(t, "bearer", body["token_type"])
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestSimulator_Token_VerifiedClientRequiresCorrectSecret(t *testing.T) {
	sim := newSimulator(zerolog.Nop())

	badForm := url.Values{
		"client_id": {verifiedSimClientID}, "client_secret": {"wrong"},
		"grant_type": {"authorization_code"}, "code": {"xyzzy"},
	}
	rec := httptest.NewRecorder()
	sim.handleToken(rec, formRequest(http.MethodPost, "/", badForm))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	goodForm := url.Values{
		"client_id": {verifiedSimClientID}, "client_secret": {verifiedSimSecret},
		"grant_type": {"authorization_code"}, "code": {"xyzzy"},
	}
	rec2 := httptest.NewRecorder()
	sim.handleToken(rec2, formRequest(http.MethodPost, "/", goodForm))
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestSimulator_Token_MalformedRequest(t *testing.T) {
	sim := newSimulator(zerolog.Nop())
	form := url.Values{"client_id": {"cid"}, "grant_type": {"authorization_code"}}
	rec := httptest.NewRecorder()
	sim.handleToken(rec, formRequest(http.MethodPost, "/", form))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_request", body["error"])
}

func TestSimulator_Token_CredentialsViaBasicAuth(t *testing.T) {
	sim := newSimulator(zerolog.Nop())
	form := url.Values{"grant_type": {"authorization_code"}, "code": {"xyzzy"}}
	req := formRequest(http.MethodPost, "/", form)
	req.SetBasicAuth("fail", "s")

	rec := httptest.NewRecorder()
	sim.handleToken(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSimulator_Authorize_AlwaysApproves(t *testing.T) {
	sim := newSimulator(zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/?client_id=a&redirect_uri="+url.QueryEscape("https://s/cb")+"&state=S", nil)
	rec := httptest.NewRecorder()
	sim.handleAuthorize(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	require.Contains(t, location, "code=xyzzy")
	require.Contains(t, location, "state=S")
}
