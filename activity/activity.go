package activity

import (
	"context"
	"html/template"
	"io"
	"sync"
	textTemplate "text/template"

	"activity/bootstrap"
	"activity/sdk"

	"go.uber.org/zap"
)

const (
	Greeting = "Hello, World"
	Footer   = "Powered by Robo.js"
)

type Model struct {
	Greeting    string
	ChannelName string
	Status      bootstrap.Status
	Error       string
	Username    string
	Footer      string
}

// Activity is the page shown inside Discord.
type Activity struct {
	log    *zap.Logger
	client sdk.Client

	mu          sync.Mutex
	fetched     bool
	channelName string
}

func New(log *zap.Logger, client sdk.Client) *Activity {
	return &Activity{log: log, client: client}
}

// Load builds the view model. The channel is fetched once, and only when
// the session is authenticated inside a guild channel; reading channels
// outside guilds needs a scope Discord has to approve.
func (a *Activity) Load(ctx context.Context, st bootstrap.State) Model {
	m := Model{
		Greeting: Greeting,
		Status:   st.Status,
		Error:    st.Error,
		Footer:   Footer,
	}
	if st.Session != nil {
		m.Username = st.Session.User.Username
	}
	m.ChannelName = a.channel(ctx, st)
	return m
}

func (a *Activity) channel(ctx context.Context, st bootstrap.State) string {
	if !st.Authenticated() || a.client.ChannelID() == "" || a.client.GuildID() == "" {
		return ""
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetched {
		return a.channelName
	}
	a.fetched = true

	ch, err := a.client.GetChannel(ctx, sdk.GetChannelRequest{ChannelID: a.client.ChannelID()})
	if err != nil {
		a.log.Warn("failed to get channel", zap.Error(err))
		return ""
	}
	a.channelName = ch.Name
	return a.channelName
}

var pageTemplate = template.Must(template.New("activity").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Activity</title>
<link rel="stylesheet" href="/static/style.css">
</head>
<body>
<div>
<img src="/static/rocket.svg" class="logo" alt="Discord">
<h1>{{.Greeting}}</h1>
{{if .ChannelName}}<h3>#{{.ChannelName}}</h3>{{else}}<h3>{{.Status}}</h3>{{end}}
{{if .Username}}<p>Signed in as {{.Username}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<small>Powered by <strong>Robo.js</strong></small>
</div>
</body>
</html>
`))

var textPage = textTemplate.Must(textTemplate.New("activity").Parse(`{{.Greeting}}
{{if .ChannelName}}#{{.ChannelName}}{{else}}{{.Status}}{{end}}
{{if .Error}}error: {{.Error}}
{{end}}{{.Footer}}
`))

// Render writes the HTML page.
func (a *Activity) Render(ctx context.Context, w io.Writer, st bootstrap.State) error {
	return pageTemplate.Execute(w, a.Load(ctx, st))
}

func (a *Activity) RenderText(ctx context.Context, w io.Writer, st bootstrap.State) error {
	return textPage.Execute(w, a.Load(ctx, st))
}
