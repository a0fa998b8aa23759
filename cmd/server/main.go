package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"handleprobe/internal/app"
	"handleprobe/internal/config"
	httppkg "handleprobe/internal/http"
	"handleprobe/internal/platform/otel"
	"handleprobe/internal/registry"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	shutdownTracing, err := otel.Setup(ctx, "handleprobe-server", cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	defer shutdownTracing(context.Background())

	logger := log.Default()
	reg, err := app.LoadRegistry(cfg, logger)
	if err != nil {
		var loadErr *registry.LoadError
		if !errors.As(err, &loadErr) {
			log.Fatalf("registry: %v", err)
		}
		// Keep serving; searches will report that no sites are available.
		log.Printf("[server] registry unavailable: %v", err)
		reg = nil
	}

	a, err := app.New(cfg, reg, logger)
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	server := httppkg.NewServer(a.Service, logger)
	go server.ReapIdleSessions(ctx, cfg.Server.SessionIdle, time.Minute)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case <-ctx.Done():
		log.Println("[server] shutting down")
		if err := server.Shutdown(context.Background()); err != nil {
			log.Printf("[server] shutdown: %v", err)
		}
	}
}
