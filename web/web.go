package web

import (
	"bytes"
	"context"
	"embed"
	"io/fs"
	"net/http"
	"net/url"
	"sync"
	"time"

	"activity/activity"
	"activity/bootstrap"
	"activity/identity"
	"activity/provider"
	"activity/sdk"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

//go:embed static/*
var staticFiles embed.FS

const (
	TabCookie    = "activity_tab"
	CallbackPath = "/oauth/callback"
)

type Options struct {
	ClientID     string
	Authenticate bool
	Scope        []string

	// PublicURL is the base the embedded client posts codes to.
	PublicURL    string
	OAuth        *oauth2.Config
	ReadyTimeout time.Duration

	// HTTPClient carries Discord and backend requests of embedded tabs.
	HTTPClient *http.Client

	// TabIdleTimeout evicts tabs not seen for this long.
	TabIdleTimeout time.Duration
}

// Server hosts the activity page. Every browser tab gets its own provider,
// started once when the tab is first seen.
type Server struct {
	log       *zap.Logger
	opts      Options
	callbacks *sdk.CallbackServer

	baseCtx context.Context

	mu   sync.Mutex
	tabs map[string]*Tab
}

func NewServer(ctx context.Context, log *zap.Logger, opts Options) *Server {
	if opts.TabIdleTimeout == 0 {
		opts.TabIdleTimeout = time.Hour
	}
	return &Server{
		log:       log,
		opts:      opts,
		callbacks: sdk.NewCallbackServer(log.Named("callback")),
		baseCtx:   ctx,
		tabs:      map[string]*Tab{},
	}
}

// Routes registers the page, the OAuth callback and static assets on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("failed to create static filesystem: " + err.Error())
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.Handle(CallbackPath, s.callbacks)
	mux.HandleFunc("/", s.handlePage)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	tabID := ""
	if c, err := r.Cookie(TabCookie); err == nil {
		tabID = c.Value
	}
	if _, err := uuid.Parse(tabID); err != nil {
		tabID = uuid.NewString()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     TabCookie,
		Value:    tabID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	tab := s.tab(tabID, r.URL.Query())

	buf := &bytes.Buffer{}
	if err := tab.provider.Render(r.Context(), buf); err != nil {
		s.log.Error("failed to render activity", zap.Error(err))
		http.Error(w, "failed to render", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// tab returns the tab for id, mounting a new one the first time it is seen
// or when the identity it runs as changes.
func (s *Server) tab(id string, query url.Values) *Tab {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tabs[id]
	store := identity.NewMemoryStore()
	if ok {
		store = existing.store
	}

	embedded := query.Get("frame_id") != ""
	overrides := identity.Overrides{}
	if !embedded {
		overrides = identity.Resolve(query, store)
	}

	if ok && existing.embedded == embedded && existing.overrides == overrides {
		existing.touch()
		return existing
	}
	if ok {
		s.log.Info("remounting tab", zap.String("tab", id))
		existing.cancel()
	}

	t := s.mount(id, store, embedded, overrides, query)
	s.tabs[id] = t
	return t
}

func (s *Server) mount(
	id string,
	store *identity.MemoryStore,
	embedded bool,
	overrides identity.Overrides,
	query url.Values,
) *Tab {
	ctx, cancel := context.WithCancel(s.baseCtx)
	log := s.log.With(zap.String("tab", id))

	t := &Tab{
		id:        id,
		store:     store,
		embedded:  embedded,
		overrides: overrides,
		cancel:    cancel,
		lastSeen:  time.Now(),
	}

	var client sdk.Client
	var exchanger bootstrap.TokenExchanger
	if embedded {
		log.Info("mounting embedded tab", zap.String("frame_id", query.Get("frame_id")))
		client = sdk.NewRESTClient(log.Named("sdk"), sdk.RESTConfig{
			OAuth:        s.opts.OAuth,
			Callbacks:    s.callbacks,
			Prompter:     sdk.PrompterFunc(t.prompt),
			ChannelID:    query.Get("channel_id"),
			GuildID:      query.Get("guild_id"),
			ReadyTimeout: s.opts.ReadyTimeout,
			HTTPClient:   s.opts.HTTPClient,
		})
		ex := bootstrap.NewHTTPTokenExchanger(s.opts.PublicURL, s.opts.HTTPClient)
		if s.opts.OAuth != nil {
			ex.RedirectURI = s.opts.OAuth.RedirectURL
		}
		exchanger = ex
	} else {
		log.Info("mounting mock tab",
			zap.String("user_id", overrides.UserID),
			zap.String("guild_id", overrides.GuildID),
			zap.String("channel_id", overrides.ChannelID),
		)
		client = sdk.NewMockClient(s.opts.ClientID, overrides.UserID, overrides.GuildID, overrides.ChannelID)
		exchanger = bootstrap.StaticTokenExchanger("mock_token")
	}

	t.provider = provider.New(log, client, exchanger, provider.Config{
		ClientID:      s.opts.ClientID,
		Authenticate:  s.opts.Authenticate,
		Scope:         s.opts.Scope,
		LoadingScreen: activity.LoadingScreen{AuthorizeURL: t.authorizeURL},
	}, activity.New(log.Named("activity"), client))
	t.provider.Start(ctx)

	return t
}

// Sweep unmounts tabs idle since before now minus the idle timeout.
func (s *Server) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, t := range s.tabs {
		if now.Sub(t.seen()) < s.opts.TabIdleTimeout {
			continue
		}
		s.log.Debug("evicting idle tab", zap.String("tab", t.id))
		t.cancel()
		delete(s.tabs, id)
		evicted++
	}
	return evicted
}

// Run sweeps idle tabs until ctx ends.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TabIdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.log.Info("evicted idle tabs", zap.Int("count", n))
			}
		}
	}
}
