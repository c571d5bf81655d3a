package refresher

import (
	"context"
	"time"

	"activity/repositories/links"
	"activity/tracer"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type linkRepository interface {
	GetLinks(ctx context.Context) ([]links.Link, error)
	UpsertLink(ctx context.Context, link links.Link) error
}

type tokenSourcer interface {
	TokenSource(ctx context.Context, t *oauth2.Token) oauth2.TokenSource
}

// Refresher keeps stored tokens alive by refreshing the ones about to expire.
type Refresher struct {
	Log   *zap.Logger
	Links linkRepository
	OAuth tokenSourcer

	// Interval between passes.
	Interval time.Duration

	// Window is how close to expiry a token must be to get refreshed.
	Window time.Duration
}

func (rf *Refresher) Run(ctx context.Context) {
	interval := rf.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		if err := rf.RunOnce(ctx); err != nil {
			rf.Log.Error("failed to run token refresher", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (rf *Refresher) RunOnce(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "refresher.run_once")
	defer span.End()

	all, err := rf.Links.GetLinks(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(rf.Window)
	for _, link := range all {
		if link.Token.Expiry.IsZero() || link.Token.Expiry.After(deadline) {
			continue
		}
		if err := rf.RefreshLink(ctx, link); err != nil {
			rf.Log.Warn("failed to refresh token",
				zap.String("discord_id", link.DiscordID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (rf *Refresher) RefreshLink(ctx context.Context, link links.Link) error {
	// Expire the copy handed to the token source so it always refreshes.
	stale := *link.Token
	stale.Expiry = time.Unix(1, 0)

	tok, err := rf.OAuth.TokenSource(ctx, &stale).Token()
	if err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = link.Token.RefreshToken
	}

	rf.Log.Info("token refreshed", zap.String("user", link.DiscordID), zap.Time("expiry", tok.Expiry))
	return rf.Links.UpsertLink(ctx, links.Link{DiscordID: link.DiscordID, Token: tok})
}
