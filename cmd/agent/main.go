package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tracevia/cmmsgo/internal/config"
	"github.com/tracevia/cmmsgo/internal/database"
	"github.com/tracevia/cmmsgo/internal/handlers"
	"github.com/tracevia/cmmsgo/internal/outbox"
	"github.com/tracevia/cmmsgo/internal/remote"
	"github.com/tracevia/cmmsgo/internal/store"
	"github.com/tracevia/cmmsgo/internal/sync"
	ws "github.com/tracevia/cmmsgo/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	syncCfg := config.LoadSyncConfig()

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate local store: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	st := store.New(db)
	ob := outbox.New(db, syncCfg.MaxRetries)
	client := remote.NewClient(&cfg.Remote, cfg.InstanceID)
	registry := sync.NewRegistry(db, hub)
	pusher := sync.NewPusher(st, ob, client, registry)
	puller := sync.NewPuller(db, client, registry)
	monitor := sync.NewMonitor(client, time.Duration(syncCfg.HealthCheckInterval)*time.Second)
	engine := sync.NewEngine(syncCfg, st, ob, pusher, puller, registry, monitor, hub)

	engine.Start()
	defer engine.Stop()

	syncH := handlers.NewSyncHandler(engine, registry, ob)
	entityH := handlers.NewEntityHandler(st, ob)
	router := handlers.NewRouter(cfg.APISecret, syncH, entityH, hub)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Agent %s listening on :%s", cfg.InstanceID, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}
