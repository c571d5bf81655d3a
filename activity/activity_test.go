package activity

import (
	"bytes"
	"context"
	"testing"

	"activity/bootstrap"
	"activity/sdk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func countingClient(guildID, channelID string, calls *int) *sdk.MockClient {
	client := sdk.NewMockClient("app", "u", guildID, channelID)
	client.UpdateCommands(sdk.MockCommands{
		GetChannel: func(ctx context.Context, req sdk.GetChannelRequest) (*sdk.Channel, error) {
			*calls++
			return &sdk.Channel{ID: req.ChannelID, Name: "general"}, nil
		},
	})
	return client
}

func TestLoadShowsStatusWhenNotAuthenticated(t *testing.T) {
	calls := 0
	a := New(zaptest.NewLogger(t), countingClient("g", "c", &calls))

	m := a.Load(context.Background(), bootstrap.State{Status: bootstrap.StatusReady})

	assert.Equal(t, Greeting, m.Greeting)
	assert.Equal(t, bootstrap.StatusReady, m.Status)
	assert.Empty(t, m.ChannelName)
	assert.Zero(t, calls)
}

func TestLoadFetchesChannelOnce(t *testing.T) {
	calls := 0
	a := New(zaptest.NewLogger(t), countingClient("g", "c", &calls))
	st := bootstrap.State{
		Status:      bootstrap.StatusReady,
		AccessToken: "tok",
		Session:     sdk.MockSession("u"),
	}

	for i := 0; i < 3; i++ {
		m := a.Load(context.Background(), st)
		assert.Equal(t, "general", m.ChannelName)
		assert.Equal(t, "u", m.Username)
	}
	assert.Equal(t, 1, calls)
}

func TestLoadSkipsChannelOutsideGuild(t *testing.T) {
	calls := 0
	a := New(zaptest.NewLogger(t), countingClient("", "c", &calls))

	m := a.Load(context.Background(), bootstrap.State{Status: bootstrap.StatusReady, AccessToken: "tok"})

	assert.Empty(t, m.ChannelName)
	assert.Zero(t, calls)
}

func TestRender(t *testing.T) {
	calls := 0
	a := New(zaptest.NewLogger(t), countingClient("g", "c", &calls))
	ctx := context.Background()

	buf := &bytes.Buffer{}
	require.NoError(t, a.Render(ctx, buf, bootstrap.State{Status: bootstrap.StatusError, Error: "boom"}))
	assert.Contains(t, buf.String(), "<h1>Hello, World</h1>")
	assert.Contains(t, buf.String(), "<h3>error</h3>")
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	require.NoError(t, a.RenderText(ctx, buf, bootstrap.State{Status: bootstrap.StatusReady, AccessToken: "tok"}))
	assert.Equal(t, "Hello, World\n#general\nPowered by Robo.js\n", buf.String())
}

func TestLoadingScreen(t *testing.T) {
	l := LoadingScreen{AuthorizeURL: func() string { return "https://discord.test/authorize?x=1" }}

	buf := &bytes.Buffer{}
	require.NoError(t, l.Render(context.Background(), buf, bootstrap.State{Status: bootstrap.StatusLoading}))
	assert.Contains(t, buf.String(), `http-equiv="refresh"`)
	assert.NotContains(t, buf.String(), "Authorize with Discord")

	buf.Reset()
	require.NoError(t, l.Render(context.Background(), buf, bootstrap.State{Status: bootstrap.StatusAuthenticating}))
	assert.Contains(t, buf.String(), "Authorize with Discord")
	assert.Contains(t, buf.String(), "https://discord.test/authorize?x=1")
}
