package bootstrap

import (
	"context"
	"errors"
	"sync"

	"activity/discordoauth"
	"activity/sdk"
	"activity/tracer"

	"go.uber.org/zap"
)

// Status is the setup stage a Bootstrapper is in.
type Status string

const (
	StatusPending        Status = "pending"
	StatusLoading        Status = "loading"
	StatusAuthenticating Status = "authenticating"
	StatusReady          Status = "ready"
	StatusError          Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

const unknownErrorMessage = "An unknown error occurred"

var ErrAuthenticateFailed = errors.New("authenticate command failed")

// State is a snapshot of setup progress.
type State struct {
	Status      Status
	AccessToken string
	Session     *sdk.Session
	Error       string
}

func (s State) Authenticated() bool {
	return s.AccessToken != ""
}

// TokenExchanger trades an authorization code for an access token.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (string, error)
}

// Options configures the setup sequence.
type Options struct {
	ClientID     string
	Authenticate bool

	// Scope defaults to discordoauth.DefaultScopes.
	Scope []string

	// OnChange is called synchronously after every transition.
	OnChange func(State)
}

// Bootstrapper drives a client through readiness and, optionally, the OAuth
// handshake. Setup runs at most once per Bootstrapper.
type Bootstrapper struct {
	log       *zap.Logger
	client    sdk.Client
	exchanger TokenExchanger
	opts      Options

	once sync.Once
	done chan struct{}

	mu    sync.RWMutex
	state State
}

// New returns a Bootstrapper in the pending state. Nothing runs until Setup or
// Start is called.
func New(log *zap.Logger, client sdk.Client, exchanger TokenExchanger, opts Options) *Bootstrapper {
	if len(opts.Scope) == 0 {
		opts.Scope = discordoauth.DefaultScopes
	}
	return &Bootstrapper{
		log:       log,
		client:    client,
		exchanger: exchanger,
		opts:      opts,
		done:      make(chan struct{}),
		state:     State{Status: StatusPending},
	}
}

func (b *Bootstrapper) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Done is closed once the state is terminal.
func (b *Bootstrapper) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until setup finishes or ctx ends.
func (b *Bootstrapper) Wait(ctx context.Context) (State, error) {
	select {
	case <-b.done:
		return b.State(), nil
	case <-ctx.Done():
		return b.State(), ctx.Err()
	}
}

// Start runs Setup in the background.
func (b *Bootstrapper) Start(ctx context.Context) {
	go b.Setup(ctx)
}

// Setup runs the setup sequence the first time it is called and returns the
// resulting state. Calls made while that run is in flight block until it
// finishes; no call runs the sequence a second time.
func (b *Bootstrapper) Setup(ctx context.Context) State {
	ran := false
	b.once.Do(func() {
		ran = true
		b.run(ctx)
	})
	if !ran {
		b.log.Debug("setup already started")
	}
	return b.State()
}

func (b *Bootstrapper) run(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "bootstrap.setup")
	defer span.End()
	defer close(b.done)

	b.transition(func(s *State) { s.Status = StatusLoading })
	if err := b.client.Ready(ctx); err != nil {
		b.fail("ready", err)
		return
	}

	if !b.opts.Authenticate {
		b.transition(func(s *State) { s.Status = StatusReady })
		return
	}

	b.transition(func(s *State) { s.Status = StatusAuthenticating })
	token, session, err := b.authenticate(ctx)
	if err != nil {
		b.fail("authenticate", err)
		return
	}

	b.transition(func(s *State) {
		s.AccessToken = token
		s.Session = session
		s.Status = StatusReady
	})
}

func (b *Bootstrapper) authenticate(ctx context.Context) (string, *sdk.Session, error) {
	ctx, span := tracer.Start(ctx, "bootstrap.authenticate")
	defer span.End()

	res, err := b.client.Authorize(ctx, sdk.AuthorizeRequest{
		ClientID:     b.opts.ClientID,
		ResponseType: "code",
		State:        "",
		Prompt:       "none",
		Scope:        b.opts.Scope,
	})
	if err != nil {
		b.log.Debug("authorize command failed", zap.Error(err))
		return "", nil, err
	}

	token, err := b.exchanger.Exchange(ctx, res.Code)
	if err != nil {
		b.log.Debug("token exchange failed", zap.Error(err))
		return "", nil, err
	}

	session, err := b.client.Authenticate(ctx, sdk.AuthenticateRequest{AccessToken: token})
	if err != nil {
		b.log.Debug("authenticate command failed", zap.Error(err))
		return "", nil, err
	}
	if session == nil {
		return "", nil, ErrAuthenticateFailed
	}

	return token, session, nil
}

// fail records err as the terminal error. The message is surfaced as is so
// callers see what the client or backend reported.
func (b *Bootstrapper) fail(stage string, err error) {
	b.log.Error("sdk setup failed", zap.String("stage", stage), zap.Error(err))
	msg := err.Error()
	if msg == "" {
		msg = unknownErrorMessage
	}
	b.transition(func(s *State) {
		s.Error = msg
		s.Status = StatusError
	})
}

func (b *Bootstrapper) transition(fn func(s *State)) {
	b.mu.Lock()
	prev := b.state.Status
	if prev.Terminal() {
		b.mu.Unlock()
		b.log.Warn("ignoring transition out of terminal status", zap.String("status", string(prev)))
		return
	}
	fn(&b.state)
	next := b.state
	b.mu.Unlock()

	b.log.Info("sdk status changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next.Status)),
	)
	if b.opts.OnChange != nil {
		b.opts.OnChange(next)
	}
}
