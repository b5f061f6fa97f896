package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nvalerio/portalsync/internal/config"
	"github.com/nvalerio/portalsync/internal/credstore"
	"github.com/nvalerio/portalsync/internal/driver"
	"github.com/nvalerio/portalsync/internal/httpapi"
	"github.com/nvalerio/portalsync/internal/observability"
	"github.com/nvalerio/portalsync/internal/runtime"
	"github.com/nvalerio/portalsync/internal/session"
	"github.com/nvalerio/portalsync/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := credstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("credential store init failed: %v", err)
	}
	defer store.Close()

	var drv driver.Driver
	driverMode := strings.ToLower(strings.TrimSpace(cfg.DriverMode))
	if driverMode == "" {
		driverMode = "auto"
	}

	tryChrome := func() bool {
		if strings.TrimSpace(cfg.PortalBaseURL) == "" {
			return false
		}
		drv = driver.NewChromeDriver(driver.ChromeConfig{
			NavigateTimeout:  cfg.NavigateTimeout,
			UserWaitPoll:     cfg.UserWaitPoll,
			MaxUserWaitLoops: cfg.MaxUserWaitLoops,
		}, store)
		log.Printf("workflow driver: chrome (portal %s)", cfg.PortalBaseURL)
		return true
	}

	switch driverMode {
	case "chrome":
		if !tryChrome() {
			log.Fatalf("DRIVER_MODE=chrome but PORTAL_BASE_URL is not set")
		}
	case "mock":
		drv = &driver.MockDriver{StepDelay: 200 * time.Millisecond}
		log.Printf("workflow driver: mock")
	case "auto":
		if !tryChrome() {
			drv = &driver.MockDriver{StepDelay: 200 * time.Millisecond}
			log.Printf("workflow driver: mock (no portal url configured)")
		}
	default:
		log.Fatalf("invalid DRIVER_MODE: %q (expected auto|chrome|mock)", cfg.DriverMode)
	}
	cfg.DriverMode = driverMode

	events := stream.NewBroadcaster(cfg.EventBufferSize)
	metrics.RegisterDroppedEvents(cfg.MetricsNamespace, func() float64 {
		return float64(events.Dropped())
	})

	svc := runtime.New(runtime.Config{
		PortalURL:  cfg.PortalBaseURL,
		Headless:   cfg.Headless,
		RunTimeout: cfg.RunTimeout,
	}, session.NewController(), events, drv, store, metrics)

	api := httpapi.New(cfg, svc, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	// Ask a live run to stop at its next checkpoint before closing the API.
	svc.Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
