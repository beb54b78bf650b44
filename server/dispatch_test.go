package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		method string
		query  string
		want   requestClass
	}{
		{"simulator token", http.MethodPost, "", classSimulatorToken},
		{"token exchange", http.MethodGet, "code=C&state=S", classTokenExchange},
		{"simulator authorize", http.MethodGet, "client_id=a&redirect_uri=b&state=S", classSimulatorAuthorize},
		{"error redirect", http.MethodGet, "error=denied&state=S", classErrorRedirect},
		{"bad request no query", http.MethodGet, "", classBadRequest},
		{"put rejected", http.MethodPut, "code=C&state=S", classBadRequest},
		{"code without state", http.MethodGet, "code=C", classBadRequest},
		{"prefers code+state over authorize shape", http.MethodGet, "code=C&state=S&client_id=a&redirect_uri=b", classTokenExchange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/?"+tc.query, nil)
			require.Equal(t, tc.want, classify(req))
		})
	}
}
