package discordoauth

import (
	"strings"

	"golang.org/x/oauth2"
)

const (
	ScopeIdentify = "identify"
	ScopeGuilds   = "guilds"
)

// DefaultScopes are requested when the caller names none.
var DefaultScopes = []string{ScopeIdentify, ScopeGuilds}

var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

func New(clientID, clientSecret, redirectURL string, scopes ...string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
		Scopes:       scopes,
	}
}

// ParseScopes splits a space or comma separated scope list, dropping blanks
// and duplicates.
func ParseScopes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
	seen := map[string]bool{}
	scopes := []string{}
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		scopes = append(scopes, f)
	}
	return scopes
}
