package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proctorhub/backend/internal/config"
	"github.com/proctorhub/backend/internal/mock"
	"github.com/proctorhub/backend/internal/registry"
	"github.com/proctorhub/backend/internal/relay"
	"github.com/proctorhub/backend/internal/store"
	"github.com/proctorhub/backend/internal/upload"
	"github.com/proctorhub/backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	mockMode := flag.Bool("mock", false, "Generate synthetic proctoring events")
	mockSession := flag.String("mock-session", "mock-exam", "Session id for generated events")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	reg := registry.New()

	// A dead or missing store is not fatal: the relay keeps running in a
	// degraded mode with persistence disabled, visible on /api/status.
	var eventStore *store.Store
	var relayStore relay.Store
	var eventLog ws.EventLog
	if cfg.Storage.Path == "" {
		log.Println("No storage path configured, persistence disabled")
	} else if eventStore, err = store.Open(cfg.Storage.Path); err != nil {
		log.Printf("Event store unavailable, starting degraded: %v", err)
		eventStore = nil
	} else {
		log.Printf("Event store open: %s", cfg.Storage.Path)
		relayStore = eventStore
		eventLog = eventStore
	}

	engine := relay.New(reg, relayStore, cfg.Relay.PersistQueue)

	var uploads *upload.DiskStore
	if cfg.Storage.UploadDir != "" {
		uploads, err = upload.NewDiskStore(cfg.Storage.UploadDir)
		if err != nil {
			log.Printf("Upload dir unavailable, uploads disabled: %v", err)
		}
	}

	server := ws.NewServer(reg, engine, uploads, eventLog, cfg.Relay.SendBuffer, cfg.Auth.AllowedOrigins, cfg.Auth.Token)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *mockMode {
		gen := mock.NewGenerator(engine, reg, *mockSession, 2*time.Second)
		go gen.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}()

	log.Printf("Server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	// Drain accepted events before closing the store.
	engine.Close()
	if err := eventStore.Close(); err != nil {
		log.Printf("Store close: %v", err)
	}
	log.Println("Server stopped")
}
