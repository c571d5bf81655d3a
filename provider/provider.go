package provider

import (
	"context"
	"io"

	"activity/bootstrap"
	"activity/sdk"

	"go.uber.org/zap"
)

// Renderer draws part of the activity for a given setup state.
type Renderer interface {
	Render(ctx context.Context, w io.Writer, st bootstrap.State) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, w io.Writer, st bootstrap.State) error

func (f RendererFunc) Render(ctx context.Context, w io.Writer, st bootstrap.State) error {
	return f(ctx, w, st)
}

// Config holds the bootstrap options and the loading screen.
type Config struct {
	ClientID     string
	Authenticate bool
	Scope        []string

	// LoadingScreen replaces the children until setup finishes. Nil renders
	// the children straight away.
	LoadingScreen Renderer
	OnChange      func(bootstrap.State)
}

// Provider owns the bootstrapper at the top of the activity and hands its
// state to the children it renders.
type Provider struct {
	log      *zap.Logger
	boot     *bootstrap.Bootstrapper
	loading  Renderer
	children Renderer
}

// New wires a bootstrapper for client and exchanger. Setup begins on Start.
func New(
	log *zap.Logger,
	client sdk.Client,
	exchanger bootstrap.TokenExchanger,
	cfg Config,
	children Renderer,
) *Provider {
	boot := bootstrap.New(log.Named("bootstrap"), client, exchanger, bootstrap.Options{
		ClientID:     cfg.ClientID,
		Authenticate: cfg.Authenticate,
		Scope:        cfg.Scope,
		OnChange:     cfg.OnChange,
	})
	return &Provider{
		log:      log,
		boot:     boot,
		loading:  cfg.LoadingScreen,
		children: children,
	}
}

// Start kicks off setup. Calling it again has no effect.
func (p *Provider) Start(ctx context.Context) {
	p.boot.Start(ctx)
}

func (p *Provider) Bootstrapper() *bootstrap.Bootstrapper {
	return p.boot
}

func (p *Provider) State() bootstrap.State {
	return p.boot.State()
}

// Loading reports whether Render would currently show the loading screen.
func (p *Provider) Loading() bool {
	return p.loading != nil && !p.boot.State().Status.Terminal()
}

func (p *Provider) Render(ctx context.Context, w io.Writer) error {
	st := p.boot.State()
	if p.loading != nil && !st.Status.Terminal() {
		return p.loading.Render(ctx, w, st)
	}
	return p.children.Render(ctx, w, st)
}
