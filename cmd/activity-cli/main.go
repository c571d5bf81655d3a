package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"

	"activity/activity"
	"activity/bootstrap"
	"activity/config"
	"activity/discordoauth"
	"activity/identity"
	"activity/provider"
	"activity/sdk"
	"activity/web"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}

	root := newRootCommand(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Fatal("failed to execute command", zap.Error(err))
	}
}

func newRootCommand(logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "activity-cli",
		SilenceUsage: true,
	}
	root.AddCommand(RunActivity(logger))
	root.AddCommand(ShowIdentity(logger))
	return root
}

type runOptions struct {
	embedded     bool
	authenticate bool
	scopes       []string
	clientID     string
	backend      string
	callbackAddr string
	userID       string
	guildID      string
	channelID    string
}

func (o runOptions) query() url.Values {
	q := url.Values{}
	if o.userID != "" {
		q.Set(string(identity.KeyUserID), o.userID)
	}
	if o.guildID != "" {
		q.Set(string(identity.KeyGuildID), o.guildID)
	}
	if o.channelID != "" {
		q.Set(string(identity.KeyChannelID), o.channelID)
	}
	return q
}

func RunActivity(logger *zap.Logger) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bootstrap the activity and print what it renders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			client, exchanger, cleanup, err := buildClient(ctx, logger, &opts, out)
			if err != nil {
				return err
			}
			defer cleanup()

			loading := activity.TextLoadingScreen{}
			p := provider.New(logger, client, exchanger, provider.Config{
				ClientID:      opts.clientID,
				Authenticate:  opts.authenticate,
				Scope:         opts.scopes,
				LoadingScreen: loading,
				OnChange: func(st bootstrap.State) {
					if !st.Status.Terminal() {
						_ = loading.Render(ctx, out, st)
					}
				},
			}, provider.RendererFunc(activity.New(logger.Named("activity"), client).RenderText))

			p.Start(ctx)
			st, err := p.Bootstrapper().Wait(ctx)
			if err != nil {
				return err
			}
			if err := p.Render(ctx, out); err != nil {
				return err
			}
			if st.Status == bootstrap.StatusError {
				return fmt.Errorf("setup failed: %s", st.Error)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.embedded, "embedded", false, "talk to Discord instead of the in-memory client")
	flags.BoolVar(&opts.authenticate, "authenticate", true, "run the OAuth handshake after the client is ready")
	flags.StringSliceVar(&opts.scopes, "scope", discordoauth.DefaultScopes, "OAuth scopes to request")
	flags.StringVar(&opts.clientID, "client-id", "", "Discord application id (defaults to DISCORD_CLIENT_ID)")
	flags.StringVar(&opts.backend, "backend", "", "base URL of the token exchange backend")
	flags.StringVar(&opts.callbackAddr, "callback-addr", "127.0.0.1:9001", "address the OAuth callback listens on")
	flags.StringVar(&opts.userID, "user-id", "", "mock user id override")
	flags.StringVar(&opts.guildID, "guild-id", "", "guild id (mock override, or the guild the activity runs in)")
	flags.StringVar(&opts.channelID, "channel-id", "", "channel id (mock override, or the channel the activity runs in)")

	return cmd
}

// buildClient is the composition root of the CLI: it picks the client and
// the exchanger matching the flags.
func buildClient(
	ctx context.Context,
	logger *zap.Logger,
	opts *runOptions,
	out io.Writer,
) (sdk.Client, bootstrap.TokenExchanger, func(), error) {
	if !opts.embedded {
		o := identity.Resolve(opts.query(), identity.NewMemoryStore())
		if opts.clientID == "" {
			opts.clientID = "mock_client_id"
		}
		logger.Info("using mock client",
			zap.String("user_id", o.UserID),
			zap.String("guild_id", o.GuildID),
			zap.String("channel_id", o.ChannelID),
		)
		client := sdk.NewMockClient(opts.clientID, o.UserID, o.GuildID, o.ChannelID)

		var exchanger bootstrap.TokenExchanger = bootstrap.StaticTokenExchanger("mock_token")
		if opts.backend != "" {
			exchanger = bootstrap.NewHTTPTokenExchanger(opts.backend, nil)
		}
		return client, exchanger, func() {}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.clientID == "" {
		opts.clientID = cfg.ClientID
	}
	backend := opts.backend
	if backend == "" {
		backend = cfg.PublicURL
	}

	callbacks := sdk.NewCallbackServer(logger.Named("callback"))
	mux := http.NewServeMux()
	mux.Handle(web.CallbackPath, callbacks)

	ln, err := net.Listen("tcp", opts.callbackAddr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to listen for callback: %w", err)
	}
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("callback server stopped", zap.Error(err))
		}
	}()

	redirect := "http://" + ln.Addr().String() + web.CallbackPath
	client := sdk.NewRESTClient(logger.Named("sdk"), sdk.RESTConfig{
		OAuth:     discordoauth.New(opts.clientID, "", redirect, opts.scopes...),
		Callbacks: callbacks,
		Prompter: sdk.PrompterFunc(func(ctx context.Context, authURL string) error {
			_, err := fmt.Fprintf(out, "Open this URL to authorize the activity:\n%s\n", authURL)
			return err
		}),
		ChannelID:    opts.channelID,
		GuildID:      opts.guildID,
		ReadyTimeout: cfg.ReadyTimeout,
	})

	// The backend has to redeem the code against the redirect it was issued for.
	exchanger := bootstrap.NewHTTPTokenExchanger(backend, nil)
	exchanger.RedirectURI = redirect

	cleanup := func() {
		_ = srv.Shutdown(context.Background())
	}
	return client, exchanger, cleanup, nil
}

func ShowIdentity(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "identity [query]",
		Short: "Resolve the development identity for a query string such as user_id=abc",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			query, err := url.ParseQuery(raw)
			if err != nil {
				return fmt.Errorf("failed to parse query: %w", err)
			}

			o := identity.Resolve(query, identity.NewMemoryStore())
			logger.Debug("resolved identity", zap.Any("overrides", o))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user_id=%s\n", o.UserID)
			fmt.Fprintf(out, "guild_id=%s\n", o.GuildID)
			fmt.Fprintf(out, "channel_id=%s\n", o.ChannelID)
			return nil
		},
	}
}
