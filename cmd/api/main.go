package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/pac-chat/backend/internal/config"
	"github.com/zhouzirui/pac-chat/backend/internal/handler"
	"github.com/zhouzirui/pac-chat/backend/internal/model/idea"
	"github.com/zhouzirui/pac-chat/backend/internal/service/ai"
	"github.com/zhouzirui/pac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/service/identity"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
	"github.com/zhouzirui/pac-chat/backend/internal/store/memory"
	"github.com/zhouzirui/pac-chat/backend/internal/store/postgrest"
	"github.com/zhouzirui/pac-chat/backend/internal/store/sqlstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	conversations, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Printf("warning: failed to close store: %v", err)
		}
	}()
	log.Printf("%s store ready", cfg.Store.Driver)

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("failed to initialize %s chat model: %v", cfg.AI.Provider, err)
	}
	aiService, err := ai.NewService(ctx, chatModel)
	if err != nil {
		log.Fatalf("failed to initialize AI service: %v", err)
	}
	log.Printf("AI service initialized with provider=%s model=%s", cfg.AI.Provider, cfg.AI.Model)

	resolver := identity.NewResolver(conversations)
	manager, err := chat.NewManager(conversations, resolver, aiService, chat.NewNotifier())
	if err != nil {
		log.Fatalf("failed to initialize session manager: %v", err)
	}

	ideas := idea.NewMemoryStore(idea.Seed())
	router := handler.NewRouter(manager, resolver, ideas, cfg.Server.AllowedOrigins)

	startServer(ctx, cfg.Server, router)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case config.StoreMemory:
		log.Println("STORE_DRIVER=memory, chats are lost on restart")
		return memory.New(), noop, nil
	case config.StorePostgREST:
		st, err := postgrest.New(postgrest.Config{
			BaseURL: cfg.PostgRESTURL,
			APIKey:  cfg.PostgRESTAPIKey,
			Timeout: cfg.Timeout,
		}, nil)
		if err != nil {
			return nil, nil, err
		}
		return st, noop, nil
	case config.StoreSQLite, config.StorePostgres:
		driver := sqlstore.DriverSQLite
		if cfg.Driver == config.StorePostgres {
			driver = sqlstore.DriverPostgres
		}
		st, err := sqlstore.Open(sqlstore.Config{Driver: driver, DSN: cfg.DSN, SlowThreshold: cfg.SlowThreshold})
		if err != nil {
			return nil, nil, err
		}

		migrateCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := st.Migrate(migrateCtx); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
