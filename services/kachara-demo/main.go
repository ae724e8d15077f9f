// Standalone demo backend: the REST envelope API and live channel over
// in-memory data, seeded with a driver and two residents.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kacharaalert/internal/config"
	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/repository"
	"github.com/kacharaalert/internal/server"
	"github.com/kacharaalert/internal/startup"
)

func main() {
	logger.SetPrefix("demo")
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	logger.Info("starting demo backend")
	cfg := config.Load(*configPath)
	logger.SetLevel(cfg.LogLevel)

	ctx := context.Background()
	store, err := startup.OpenStore(ctx, cfg.Demo.SessionStore, cfg.Redis.URL, 60*time.Second)
	if err != nil {
		logger.Errorf("session store: %v", err)
		logger.Flush(time.Second)
		os.Exit(1)
	}
	defer store.Close()

	srv, err := server.New(ctx, cfg.Demo, cfg.Live, store)
	if err != nil {
		logger.Errorf("demo backend: %v", err)
		logger.Flush(time.Second)
		os.Exit(1)
	}
	if cfg.Demo.Seed {
		logger.Infof("seeded accounts %s, %s, %s (password %q)",
			repository.SeedDriverEmail, repository.SeedResidentEmail, repository.SeedNeighborEmail, repository.DemoPassword)
	}

	ln, err := net.Listen("tcp", cfg.Demo.ServerAddr)
	if err != nil {
		logger.Errorf("listen %s: %v", cfg.Demo.ServerAddr, err)
		logger.Flush(time.Second)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Errorf("server error: %v", err)
			logger.Flush(time.Second)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped")
	logger.Flush(time.Second)
}
