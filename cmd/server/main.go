package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vedran77/hideout/internal/ai"
	"github.com/vedran77/hideout/internal/auth"
	"github.com/vedran77/hideout/internal/broker"
	"github.com/vedran77/hideout/internal/config"
	"github.com/vedran77/hideout/internal/database"
	"github.com/vedran77/hideout/internal/presence"
	"github.com/vedran77/hideout/internal/repository"
	postgresrepo "github.com/vedran77/hideout/internal/repository/postgres"
	sqliterepo "github.com/vedran77/hideout/internal/repository/sqlite"
	"github.com/vedran77/hideout/internal/service"
	"github.com/vedran77/hideout/internal/transport/http/handlers"
	"github.com/vedran77/hideout/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	userRepo, convRepo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	// Event relay
	var b broker.Broker
	if cfg.RedisURL != "" {
		rb, err := broker.NewRedis(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			log.Fatal(err)
		}
		b = rb
		log.Printf("Relaying events through redis channel %q", cfg.RedisChannel)
	} else {
		b = broker.NewLocal()
	}
	defer b.Close()

	// Realtime
	tracker := presence.NewTracker(nil)
	hub := ws.NewHub(tracker)
	b.Subscribe(hub.Deliver)
	notifier := ws.NewBrokerNotifier(b)
	tracker.SetEmitter(hub)

	// AI backend
	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// Services
	tokens := auth.NewTokens(cfg.JWTSecret)
	fanout := service.NewFanout(convRepo)
	fanout.SetNotifier(notifier)
	aiTurn := service.NewAITurnService(convRepo, fanout, provider, service.AITurnConfig{
		SystemPrompt:  cfg.AISystemPrompt,
		ContextWindow: cfg.ChatContextWindowSize,
		Timeout:       cfg.AITimeout,
	})

	router := handlers.NewRouter(handlers.RouterDeps{
		Tokens:         tokens,
		Auth:           service.NewAuthService(userRepo, tokens, cfg.SessionTTL, cfg.SocketTokenTTL),
		Conversations:  service.NewConversationService(convRepo, userRepo),
		Messages:       service.NewMessageService(convRepo, fanout, aiTurn),
		Tracker:        tracker,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (repository.UserRepository, repository.ConversationRepository, func(), error) {
	switch cfg.DBDriver {
	case "postgres":
		pool, err := database.Connect(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, nil, err
			}
		}
		log.Println("Connected to database")
		return postgresrepo.NewUserRepo(pool), postgresrepo.NewConversationRepo(pool), pool.Close, nil

	case "sqlite":
		db, err := sqliterepo.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := sqliterepo.Migrate(db); err != nil {
				return nil, nil, nil, err
			}
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		log.Printf("Opened sqlite store at %s", cfg.SQLitePath)
		return sqliterepo.NewUserRepo(db), sqliterepo.NewConversationRepo(db), closeDB, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

func newProvider(cfg *config.Config) (ai.Provider, error) {
	registry := ai.NewRegistry()
	registry.Register("ollama", func(model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	registry.Register("openrouter", func(model string) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, errors.New("OPENROUTER_API_KEY is required for the openrouter provider")
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	model := cfg.OllamaModel
	if cfg.AIProvider == "openrouter" {
		model = cfg.OpenRouterModel
	}
	return registry.Get(cfg.AIProvider, model)
}
