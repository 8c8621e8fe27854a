package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/scout/internal/api/rest"
	"github.com/fortuna/scout/internal/api/websocket"
	"github.com/fortuna/scout/internal/backend"
	"github.com/fortuna/scout/internal/cache"
	"github.com/fortuna/scout/internal/config"
	"github.com/fortuna/scout/internal/profile"
	"github.com/fortuna/scout/internal/publisher"
	"github.com/fortuna/scout/internal/scheduler"
	"github.com/fortuna/scout/internal/session"
	"github.com/fortuna/scout/internal/store"
	"github.com/fortuna/scout/internal/store/repository"
	"github.com/redis/go-redis/v9"
)

const (
	serviceName    = "scout"
	serviceVersion = "1.0.0"
)

func main() {
	log.Printf("Starting %s v%s - Player Query Service", serviceName, serviceVersion)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := backend.New(cfg.Backend.URL, &http.Client{Timeout: cfg.Backend.Timeout})
	log.Printf("✓ Backend at %s (timeout %v)", api.BaseURL(), cfg.Backend.Timeout)

	hub := websocket.NewHub()
	opts := []session.Option{
		session.WithBroadcaster(hub),
		session.WithFanoutTimeout(cfg.Redis.FanoutTimeout),
	}
	checks := map[string]rest.HealthFunc{}

	// Chat history (optional)
	if cfg.Database.DSN != "" {
		db, err := store.NewDatabase(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		log.Println("✓ Connected to database")

		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}
		log.Println("✓ Database migrations applied")

		opts = append(opts, session.WithHistory(repository.NewChatRepository(db), repository.NewSessionRepository(db)))
		checks["postgres"] = db.HealthCheck
	} else {
		log.Println("⚠️  DATABASE_URL not set, chat history kept in memory only")
	}

	// Snapshots and events (optional)
	var snapshots *cache.SnapshotCache
	if cfg.Redis.URL != "" {
		client := connectRedis(ctx, cfg.Redis)
		defer client.Close()
		log.Println("✓ Connected to Redis")

		snapshots = cache.NewSnapshotCache(client, cfg.Redis.SnapshotTTL)
		opts = append(opts, session.WithSnapshots(snapshots))
		checks["redis"] = snapshots.HealthCheck

		if cfg.Redis.EnableEvents {
			opts = append(opts, session.WithEvents(publisher.NewRedisStreamPublisher(client)))
			log.Printf("✓ Publishing events to %s and %s", publisher.ChatStream, publisher.ActivityStream)
		}
	} else {
		log.Println("⚠️  REDIS_URL not set, sessions do not survive restarts")
	}

	sessions := session.NewManager(api, opts...)

	// Session sweep
	var sched *scheduler.Orchestrator
	if snapshots != nil && cfg.Session.SweepInterval > 0 {
		sched = scheduler.NewOrchestrator(sessions, &scheduler.Config{
			SweepInterval: cfg.Session.SweepInterval,
			IdleTimeout:   cfg.Session.IdleTimeout,
		})
		go sched.Start(ctx)
		log.Println("✓ Scheduler started")
	}

	// REST API
	images := profile.NewResolver(nil, cfg.Profile.Hosts)
	log.Printf("✓ Profile images from %v", cfg.Profile.Hosts)
	handler := rest.NewHandler(sessions, images, checks)
	restServer := rest.NewServer(cfg.Server.RESTPort, handler, cfg.Server.CORSOrigins)
	go func() {
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("REST server error: %v", err)
		}
	}()
	log.Printf("✓ REST API server listening on :%s", cfg.Server.RESTPort)

	// WebSocket push
	wsServer := websocket.NewServer(hub, sessions, cfg.Server.CORSOrigins)
	go func() {
		if err := wsServer.Start(cfg.Server.WSPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("WebSocket server error: %v", err)
		}
	}()
	log.Printf("✓ WebSocket server listening on :%s", cfg.Server.WSPort)

	log.Printf("✓ %s v%s started successfully", serviceName, serviceVersion)
	log.Printf("  REST API: http://0.0.0.0:%s", cfg.Server.RESTPort)
	log.Printf("  WebSocket: ws://0.0.0.0:%s/ws/sessions/{id}", cfg.Server.WSPort)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("REST API server shutdown error: %v", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("WebSocket server shutdown error: %v", err)
	}
	cancel()

	log.Printf("%s stopped", serviceName)
}

// connectRedis retries until Redis answers
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	log.Println("Connecting to Redis...")
	for i := 0; i < cfg.ConnectTries; i++ {
		client, err := cache.Connect(ctx, cfg.URL)
		if err == nil {
			return client
		}

		if i < cfg.ConnectTries-1 {
			log.Printf("Redis connection attempt %d/%d failed: %v (retrying in %v)", i+1, cfg.ConnectTries, err, cfg.ConnectDelay)
			time.Sleep(cfg.ConnectDelay)
		} else {
			log.Fatalf("Failed to connect to Redis after %d attempts: %v", cfg.ConnectTries, err)
		}
	}
	return nil
}
