package tokenexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"activity/repositories/links"
	"activity/tracer"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type codeExchanger interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

type userLookup interface {
	CurrentUserID(ctx context.Context, tok *oauth2.Token) (string, error)
}

type linkStore interface {
	GetLinkByDiscordID(ctx context.Context, discordID string) (*links.Link, error)
	UpsertLink(ctx context.Context, link links.Link) error
}

type request struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

type response struct {
	AccessToken string `json:"access_token,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Handler serves POST /api/token: it trades an authorization code for an
// access token and, when a store is configured, remembers the token for the
// user it belongs to.
type Handler struct {
	log   *zap.Logger
	oauth codeExchanger
	users userLookup
	store linkStore
}

// NewHandler builds the handler. users and store may both be nil, in which
// case tokens are not persisted.
func NewHandler(log *zap.Logger, oauth codeExchanger, users userLookup, store linkStore) *Handler {
	return &Handler{
		log:   log,
		oauth: oauth,
		users: users,
		store: store,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "tokenexchange.exchange")
	defer span.End()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, response{Error: "method not allowed"})
		return
	}

	body := request{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		h.log.Warn("invalid token request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request body"})
		return
	}
	if body.Code == "" {
		writeJSON(w, http.StatusBadRequest, response{Error: "missing code"})
		return
	}

	// Discord only accepts the redirect the authorization request was made with.
	opts := []oauth2.AuthCodeOption{}
	if body.RedirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", body.RedirectURI))
	}

	tok, err := h.oauth.Exchange(ctx, body.Code, opts...)
	if err != nil {
		h.log.Error("failed to exchange token", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, response{Error: "failed to exchange code"})
		return
	}

	h.persist(ctx, tok)

	writeJSON(w, http.StatusOK, response{AccessToken: tok.AccessToken})
}

// persist stores tok for its user. Failures are logged only; the caller
// still gets its token.
func (h *Handler) persist(ctx context.Context, tok *oauth2.Token) {
	if h.users == nil || h.store == nil {
		return
	}

	discordID, err := h.users.CurrentUserID(ctx, tok)
	if err != nil {
		h.log.Error("failed to look up token owner", zap.Error(err))
		return
	}

	if tok.RefreshToken == "" {
		prev, err := h.store.GetLinkByDiscordID(ctx, discordID)
		switch {
		case err == nil:
			tok.RefreshToken = prev.Token.RefreshToken
		case !errors.Is(err, links.ErrUserNotRegistered):
			h.log.Warn("failed to read previous link", zap.String("discord_id", discordID), zap.Error(err))
		}
	}

	err = h.store.UpsertLink(ctx, links.Link{DiscordID: discordID, Token: tok})
	if err != nil {
		h.log.Error("failed to create record", zap.Error(err))
		return
	}
	h.log.Info("stored token link", zap.String("discord_id", discordID))
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DiscordUsers resolves token owners through Discord's API.
type DiscordUsers struct {
	HTTPClient *http.Client
}

func (d DiscordUsers) CurrentUserID(ctx context.Context, tok *oauth2.Token) (string, error) {
	_, span := tracer.Start(ctx, "tokenexchange.current_user")
	defer span.End()

	s, err := discordgo.New("Bearer " + tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to instantiate discord session: %w", err)
	}
	if d.HTTPClient != nil {
		s.Client = d.HTTPClient
	}

	usr, err := s.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return usr.ID, nil
}
