// Package sdk describes the embedded-app capability the activity consumes and
// provides two implementations of it: RESTClient talks to Discord, MockClient
// answers in memory for local development and tests.
package sdk

import (
	"context"
	"errors"
)

var (
	ErrNotReady = errors.New("sdk not ready")
	// ErrAuthorizeRejected is returned when the user or Discord declines the
	// authorization request.
	ErrAuthorizeRejected = errors.New("authorization rejected")
)

// AuthorizeRequest mirrors the parameters of the authorize command.
type AuthorizeRequest struct {
	ClientID     string
	ResponseType string
	State        string
	Prompt       string
	Scope        []string
}

// AuthorizeResponse carries the authorization code Discord issued.
type AuthorizeResponse struct {
	Code string
}

// AuthenticateRequest carries the access token to authenticate with.
type AuthenticateRequest struct {
	AccessToken string
}

type User struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Discriminator string  `json:"discriminator"`
	Avatar        *string `json:"avatar"`
	PublicFlags   int     `json:"public_flags"`
}

type Application struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        *string  `json:"icon"`
	Description string   `json:"description"`
	RPCOrigins  []string `json:"rpc_origins,omitempty"`
}

// Session is the result of a successful authenticate command.
type Session struct {
	AccessToken string      `json:"access_token"`
	User        User        `json:"user"`
	Scopes      []string    `json:"scopes"`
	Expires     string      `json:"expires"`
	Application Application `json:"application"`
}

type GetChannelRequest struct {
	ChannelID string
}

// Channel is the subset of a Discord channel the activity displays.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Client is the capability surface of the host bridge.
type Client interface {
	// Ready blocks until the bridge is usable.
	Ready(ctx context.Context) error
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error)
	// Authenticate may return a nil session without an error when the host
	// declines to authenticate.
	Authenticate(ctx context.Context, req AuthenticateRequest) (*Session, error)
	GetChannel(ctx context.Context, req GetChannelRequest) (*Channel, error)
	ChannelID() string
	GuildID() string
}
