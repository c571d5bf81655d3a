package sdk

import (
	"context"
	"strconv"
	"time"
)

// MockCommands replaces individual commands of a MockClient. Nil fields fall
// back to the canned behaviour.
type MockCommands struct {
	Ready        func(ctx context.Context) error
	Authorize    func(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error)
	Authenticate func(ctx context.Context, req AuthenticateRequest) (*Session, error)
	GetChannel   func(ctx context.Context, req GetChannelRequest) (*Channel, error)
}

// MockClient answers every command in memory using the identity it was
// created with.
type MockClient struct {
	clientID  string
	userID    string
	guildID   string
	channelID string
	commands  MockCommands
}

func NewMockClient(clientID, userID, guildID, channelID string) *MockClient {
	return &MockClient{
		clientID:  clientID,
		userID:    userID,
		guildID:   guildID,
		channelID: channelID,
	}
}

// UpdateCommands swaps in the non-nil commands of c.
func (m *MockClient) UpdateCommands(c MockCommands) {
	if c.Ready != nil {
		m.commands.Ready = c.Ready
	}
	if c.Authorize != nil {
		m.commands.Authorize = c.Authorize
	}
	if c.Authenticate != nil {
		m.commands.Authenticate = c.Authenticate
	}
	if c.GetChannel != nil {
		m.commands.GetChannel = c.GetChannel
	}
}

func (m *MockClient) ChannelID() string { return m.channelID }
func (m *MockClient) GuildID() string   { return m.guildID }

func (m *MockClient) Ready(ctx context.Context) error {
	if m.commands.Ready != nil {
		return m.commands.Ready(ctx)
	}
	return ctx.Err()
}

func (m *MockClient) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	if m.commands.Authorize != nil {
		return m.commands.Authorize(ctx, req)
	}
	return &AuthorizeResponse{Code: "mock_code"}, nil
}

func (m *MockClient) Authenticate(ctx context.Context, req AuthenticateRequest) (*Session, error) {
	if m.commands.Authenticate != nil {
		return m.commands.Authenticate(ctx, req)
	}
	return MockSession(m.userID), nil
}

func (m *MockClient) GetChannel(ctx context.Context, req GetChannelRequest) (*Channel, error) {
	if m.commands.GetChannel != nil {
		return m.commands.GetChannel(ctx, req)
	}
	return &Channel{
		ID:      req.ChannelID,
		GuildID: m.guildID,
		Name:    "mock-channel-" + req.ChannelID,
	}, nil
}

// MockSession is the session a MockClient hands out for userID.
func MockSession(userID string) *Session {
	discriminator := "0"
	if userID != "" {
		discriminator = strconv.Itoa(int(userID[0]) % 5)
	}
	icon := "mock_app_icon"
	return &Session{
		AccessToken: "mock_token",
		User: User{
			ID:            userID,
			Username:      userID,
			Discriminator: discriminator,
			PublicFlags:   1,
		},
		Scopes:  []string{},
		Expires: time.Date(2112, time.February, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC1123),
		Application: Application{
			ID:          "mock_app_id",
			Name:        "mock_app_name",
			Icon:        &icon,
			Description: "mock_app_description",
		},
	}
}
