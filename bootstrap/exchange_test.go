package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTokenExchanger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body := tokenRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c1", body.Code)

		_, _ = w.Write([]byte(`{"access_token":"tok1"}`))
	}))
	defer srv.Close()

	tok, err := NewHTTPTokenExchanger(srv.URL+"/", srv.Client()).Exchange(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
}

func TestHTTPTokenExchangerSendsRedirectURI(t *testing.T) {
	bodies := make(chan tokenRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := tokenRequest{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		_, _ = w.Write([]byte(`{"access_token":"tok1"}`))
	}))
	defer srv.Close()

	ex := NewHTTPTokenExchanger(srv.URL, srv.Client())
	ex.RedirectURI = "http://127.0.0.1:9001/oauth/callback"

	_, err := ex.Exchange(context.Background(), "c1")
	require.NoError(t, err)

	body := <-bodies
	assert.Equal(t, "c1", body.Code)
	assert.Equal(t, "http://127.0.0.1:9001/oauth/callback", body.RedirectURI)
}

func TestHTTPTokenExchangerFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "upstream error",
			status: http.StatusBadGateway,
			body:   `{"error":"invalid_grant"}`,
			want:   "token exchange failed with status 502: invalid_grant",
		},
		{
			name:   "non json error",
			status: http.StatusInternalServerError,
			body:   `oops`,
			want:   "token exchange failed with status 500",
		},
		{
			name:   "missing token",
			status: http.StatusOK,
			body:   `{}`,
			want:   ErrNoAccessToken.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tok, err := NewHTTPTokenExchanger(srv.URL, srv.Client()).Exchange(context.Background(), "c1")
			assert.EqualError(t, err, tt.want)
			assert.Empty(t, tok)
		})
	}
}
