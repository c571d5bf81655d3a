package activity

import (
	"context"
	"fmt"
	"html/template"
	"io"

	"activity/bootstrap"
)

var loadingTemplate = template.Must(template.New("loading").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
{{if not .AuthorizeURL}}<meta http-equiv="refresh" content="1">{{end}}
<title>Activity</title>
<link rel="stylesheet" href="/static/style.css">
</head>
<body>
<div class="loading">
<h3>{{.Status}}…</h3>
{{if .AuthorizeURL}}<p><a href="{{.AuthorizeURL}}" target="_blank" rel="noopener">Authorize with Discord</a>, then reload this page.</p>{{end}}
</div>
</body>
</html>
`))

// LoadingScreen is shown while setup is still running.
type LoadingScreen struct {
	AuthorizeURL func() string
}

func (l LoadingScreen) Render(ctx context.Context, w io.Writer, st bootstrap.State) error {
	data := struct {
		Status       bootstrap.Status
		AuthorizeURL string
	}{Status: st.Status}
	if l.AuthorizeURL != nil && st.Status == bootstrap.StatusAuthenticating {
		data.AuthorizeURL = l.AuthorizeURL()
	}
	return loadingTemplate.Execute(w, data)
}

// TextLoadingScreen prints one line per render.
type TextLoadingScreen struct{}

func (TextLoadingScreen) Render(ctx context.Context, w io.Writer, st bootstrap.State) error {
	_, err := fmt.Fprintf(w, "%s...\n", st.Status)
	return err
}
