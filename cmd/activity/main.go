package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"activity/bootstrap"
	"activity/config"
	"activity/discordoauth"
	"activity/refresher"
	"activity/repositories/links"
	"activity/tokenexchange"
	"activity/tracer"
	"activity/web"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func connectToDatabase(ctx context.Context, url string) (*pgxpool.Pool, error) {
	db, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.ClientSecret == "" {
		log.Fatal("DISCORD_CLIENT_SECRET must be set")
	}

	if cfg.JaegerURL != "" {
		tp, err := tracer.NewJaegerProvider(cfg.JaegerURL, cfg.Environment)
		if err != nil {
			log.Fatal(err)
		}
		otel.SetTracerProvider(tp)
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	oauth := discordoauth.New(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL(), cfg.Scopes...)

	tokens := tokenexchange.NewHandler(logger.Named("token"), oauth, nil, nil)
	if cfg.PostgresURL != "" {
		db, err := connectToDatabase(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		repo := links.NewPostgresRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			log.Fatal(err)
		}
		tokens = tokenexchange.NewHandler(logger.Named("token"), oauth, tokenexchange.DiscordUsers{}, repo)

		rf := &refresher.Refresher{
			Log:      logger.Named("refresher"),
			Links:    repo,
			OAuth:    oauth,
			Interval: cfg.RefreshInterval,
			Window:   2 * cfg.RefreshInterval,
		}
		go rf.Run(ctx)
	} else {
		logger.Info("POSTGRESQL_URL not set, exchanged tokens will not be stored")
	}

	site := web.NewServer(ctx, logger.Named("web"), web.Options{
		ClientID:     cfg.ClientID,
		Authenticate: true,
		Scope:        cfg.Scopes,
		PublicURL:    cfg.PublicURL,
		OAuth:        oauth,
		ReadyTimeout: cfg.ReadyTimeout,
	})
	go site.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle(bootstrap.TokenPath, tokens)
	site.Routes(mux)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: otelhttp.NewHandler(mux, "http.activity"),
	}
	go func() {
		logger.Info("listening for http", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	logger.Info("setup finished")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down http server", zap.Error(err))
	}
}
