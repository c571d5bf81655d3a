package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"activity/bootstrap"
	"activity/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"
)

func newServer(t *testing.T, opts Options) (*Server, *http.ServeMux) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := NewServer(ctx, zaptest.NewLogger(t), opts)
	mux := http.NewServeMux()
	s.Routes(mux)
	return s, mux
}

func newTestServer(t *testing.T, authenticate bool) (*Server, *http.ServeMux) {
	return newServer(t, Options{
		ClientID:     "app",
		Authenticate: authenticate,
		Scope:        []string{"identify", "guilds"},
		PublicURL:    "http://localhost:9000",
	})
}

func get(mux http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func tabCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == TabCookie {
			return c
		}
	}
	t.Fatal("no tab cookie set")
	return nil
}

func waitReady(t *testing.T, s *Server, id string) bootstrap.State {
	s.mu.Lock()
	tab := s.tabs[id]
	s.mu.Unlock()
	require.NotNil(t, tab)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := tab.Provider().Bootstrapper().Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestPageMountsMockTab(t *testing.T) {
	s, mux := newTestServer(t, true)

	rec := get(mux, "/?user_id=abc&guild_id=g1&channel_id=c1")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := tabCookie(t, rec)

	st := waitReady(t, s, cookie.Value)
	assert.Equal(t, bootstrap.StatusReady, st.Status)
	assert.Equal(t, "mock_token", st.AccessToken)
	require.NotNil(t, st.Session)
	assert.Equal(t, "abc", st.Session.User.ID)

	rec = get(mux, "/", cookie)
	assert.Contains(t, rec.Body.String(), "Hello, World")
	assert.Contains(t, rec.Body.String(), "#mock-channel-c1")
	assert.Contains(t, rec.Body.String(), "Signed in as abc")
}

func TestPageKeepsTabAcrossRenders(t *testing.T) {
	s, mux := newTestServer(t, false)

	rec := get(mux, "/")
	cookie := tabCookie(t, rec)
	waitReady(t, s, cookie.Value)

	s.mu.Lock()
	first := s.tabs[cookie.Value]
	s.mu.Unlock()

	rec = get(mux, "/", cookie)
	assert.Contains(t, rec.Body.String(), "<h3>ready</h3>")

	s.mu.Lock()
	second := s.tabs[cookie.Value]
	s.mu.Unlock()
	assert.Same(t, first, second)
	assert.Len(t, first.overrides.UserID, 8)
}

func TestPageRemountsOnNewIdentity(t *testing.T) {
	s, mux := newTestServer(t, false)

	cookie := tabCookie(t, get(mux, "/?user_id=one"))
	waitReady(t, s, cookie.Value)

	get(mux, "/?user_id=two", cookie)

	s.mu.Lock()
	tab := s.tabs[cookie.Value]
	s.mu.Unlock()
	assert.Equal(t, "two", tab.overrides.UserID)
}

func TestSweep(t *testing.T) {
	s, mux := newTestServer(t, false)

	cookie := tabCookie(t, get(mux, "/"))
	waitReady(t, s, cookie.Value)

	assert.Zero(t, s.Sweep(time.Now()))
	assert.Equal(t, 1, s.Sweep(time.Now().Add(2*time.Hour)))

	s.mu.Lock()
	assert.Empty(t, s.tabs)
	s.mu.Unlock()
}

func TestStaticAndNotFound(t *testing.T) {
	_, mux := newTestServer(t, false)

	rec := get(mux, "/static/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(mux, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// rewriteTransport sends every request to target regardless of host.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

// newDiscordStub answers the Discord API and the token backend for code c1.
func newDiscordStub(t *testing.T) (*httptest.Server, *http.Client) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == bootstrap.TokenPath:
			body := struct {
				Code        string `json:"code"`
				RedirectURI string `json:"redirect_uri"`
			}{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Code != "c1" || body.RedirectURI != "http://localhost:9000/oauth/callback" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok1"}`))
		case strings.HasSuffix(r.URL.Path, "/gateway"):
			_, _ = w.Write([]byte(`{"url":"wss://gateway.discord.gg"}`))
		case r.Header.Get("Authorization") != "Bearer tok1":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
		case strings.HasSuffix(r.URL.Path, "/oauth2/@me"):
			_, _ = w.Write([]byte(`{
				"application": {"id": "app", "name": "Activity", "description": ""},
				"scopes": ["identify", "guilds"],
				"expires": "2030-01-01T00:00:00+00:00",
				"user": {"id": "42", "username": "wumpus", "discriminator": "0"}
			}`))
		case strings.HasSuffix(r.URL.Path, "/channels/c"):
			_, _ = w.Write([]byte(`{"id": "c", "guild_id": "g", "name": "general"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return srv, &http.Client{Transport: rewriteTransport{target: target}}
}

func TestPageMountsEmbeddedTab(t *testing.T) {
	stub, httpClient := newDiscordStub(t)
	s, mux := newServer(t, Options{
		ClientID:     "app",
		Authenticate: true,
		Scope:        []string{"identify", "guilds"},
		PublicURL:    stub.URL,
		OAuth: &oauth2.Config{
			ClientID:    "app",
			RedirectURL: "http://localhost:9000/oauth/callback",
			Endpoint:    oauth2.Endpoint{AuthURL: "https://discord.test/oauth2/authorize"},
		},
		HTTPClient: httpClient,
	})

	const page = "/?frame_id=f&guild_id=g&channel_id=c"
	cookie := tabCookie(t, get(mux, page))

	s.mu.Lock()
	tab := s.tabs[cookie.Value]
	s.mu.Unlock()
	require.NotNil(t, tab)
	assert.True(t, tab.embedded)
	assert.Equal(t, identity.Overrides{}, tab.overrides)
	for _, key := range []identity.Key{identity.KeyUserID, identity.KeyGuildID, identity.KeyChannelID} {
		_, ok := tab.store.Get(key)
		assert.False(t, ok, key)
	}

	require.Eventually(t, func() bool {
		return tab.authorizeURL() != ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, bootstrap.StatusAuthenticating, tab.Provider().State().Status)

	body := get(mux, page, cookie).Body.String()
	assert.Contains(t, body, "Authorize with Discord")
	assert.Contains(t, body, "https://discord.test/oauth2/authorize")

	authURL, err := url.Parse(tab.authorizeURL())
	require.NoError(t, err)
	assert.Equal(t, "none", authURL.Query().Get("prompt"))
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	rec := get(mux, CallbackPath+"?state="+url.QueryEscape(state)+"&code=c1")
	assert.Equal(t, http.StatusOK, rec.Code)

	st := waitReady(t, s, cookie.Value)
	require.Equal(t, bootstrap.StatusReady, st.Status, st.Error)
	assert.Equal(t, "tok1", st.AccessToken)
	require.NotNil(t, st.Session)
	assert.Equal(t, "42", st.Session.User.ID)

	s.mu.Lock()
	same := s.tabs[cookie.Value] == tab
	s.mu.Unlock()
	assert.True(t, same)

	body = get(mux, page, cookie).Body.String()
	assert.Contains(t, body, "#general")
	assert.Contains(t, body, "Signed in as wumpus")
}
