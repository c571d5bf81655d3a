package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"activity/tracer"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Prompter shows the authorization URL to the user.
type Prompter interface {
	Prompt(ctx context.Context, authURL string) error
}

type PrompterFunc func(ctx context.Context, authURL string) error

func (f PrompterFunc) Prompt(ctx context.Context, authURL string) error {
	return f(ctx, authURL)
}

type RESTConfig struct {
	OAuth     *oauth2.Config
	Callbacks *CallbackServer
	Prompter  Prompter

	ChannelID string
	GuildID   string

	ReadyTimeout  time.Duration
	ReadyInterval time.Duration

	// HTTPClient is used for every Discord request when set.
	HTTPClient *http.Client
}

// RESTClient implements Client against Discord's HTTP API.
type RESTClient struct {
	log *zap.Logger
	cfg RESTConfig

	mu     sync.Mutex
	bearer *discordgo.Session
}

func NewRESTClient(log *zap.Logger, cfg RESTConfig) *RESTClient {
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	if cfg.ReadyInterval == 0 {
		cfg.ReadyInterval = 500 * time.Millisecond
	}
	return &RESTClient{
		log: log,
		cfg: cfg,
	}
}

func (c *RESTClient) ChannelID() string { return c.cfg.ChannelID }
func (c *RESTClient) GuildID() string   { return c.cfg.GuildID }

func (c *RESTClient) newSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate discord session: %w", err)
	}
	if c.cfg.HTTPClient != nil {
		s.Client = c.cfg.HTTPClient
	}
	return s, nil
}

// Ready polls the gateway endpoint until Discord answers.
func (c *RESTClient) Ready(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sdk.rest.ready")
	defer span.End()

	s, err := c.newSession("")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.ReadyInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if _, lastErr = s.Gateway(); lastErr == nil {
			return nil
		}
		c.log.Debug("discord not reachable yet", zap.Error(lastErr))

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %v", ErrNotReady, lastErr)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Authorize prompts the user with the authorization URL and waits for the
// redirect to arrive at the callback server.
func (c *RESTClient) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	ctx, span := tracer.Start(ctx, "sdk.rest.authorize")
	defer span.End()

	if c.cfg.OAuth == nil || c.cfg.Callbacks == nil || c.cfg.Prompter == nil {
		return nil, errors.New("rest client is not configured for authorization")
	}

	cfg := *c.cfg.OAuth
	if req.ClientID != "" {
		cfg.ClientID = req.ClientID
	}
	if len(req.Scope) > 0 {
		cfg.Scopes = req.Scope
	}

	// The state sent to Discord must be unique per attempt so the callback can
	// be routed; the caller supplied state is carried through as a prefix.
	state := uuid.NewString()
	if req.State != "" {
		state = req.State + "." + state
	}

	opts := []oauth2.AuthCodeOption{}
	if req.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", req.Prompt))
	}
	if req.ResponseType != "" && req.ResponseType != "code" {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", req.ResponseType))
	}

	results, done := c.cfg.Callbacks.Expect(state)
	defer done()

	authURL := cfg.AuthCodeURL(state, opts...)
	if err := c.cfg.Prompter.Prompt(ctx, authURL); err != nil {
		return nil, fmt.Errorf("failed to prompt for authorization: %w", err)
	}
	c.log.Info("waiting for authorization", zap.String("state", state))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return &AuthorizeResponse{Code: res.Code}, nil
	}
}

// Authenticate resolves the current authorization of the bearer token. A
// token Discord refuses yields a nil session.
func (c *RESTClient) Authenticate(ctx context.Context, req AuthenticateRequest) (*Session, error) {
	_, span := tracer.Start(ctx, "sdk.rest.authenticate")
	defer span.End()

	s, err := c.newSession("Bearer " + req.AccessToken)
	if err != nil {
		return nil, err
	}

	endpoint := discordgo.EndpointOAuth2 + "@me"
	body, err := s.RequestWithBucketID(http.MethodGet, endpoint, nil, endpoint)
	if err != nil {
		if isUnauthorized(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch authorization info: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal(body, session); err != nil {
		return nil, fmt.Errorf("failed to decode authorization info: %w", err)
	}
	session.AccessToken = req.AccessToken

	c.mu.Lock()
	c.bearer = s
	c.mu.Unlock()

	return session, nil
}

func (c *RESTClient) GetChannel(ctx context.Context, req GetChannelRequest) (*Channel, error) {
	_, span := tracer.Start(ctx, "sdk.rest.get_channel")
	defer span.End()

	c.mu.Lock()
	s := c.bearer
	c.mu.Unlock()
	if s == nil {
		return nil, errors.New("get channel requires an authenticated client")
	}

	ch, err := s.Channel(req.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

func isUnauthorized(err error) bool {
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return true
	}
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusUnauthorized
}
