// Command broker runs the video-processing queueing/dispatch/signalling
// service: HTTP session and offer endpoints, a worker signalling socket, and
// a per-job client signalling socket, all backed by one in-memory registry.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/huziichuk/bcs-broker/internal/catalog"
	"github.com/huziichuk/bcs-broker/internal/config"
	"github.com/huziichuk/bcs-broker/internal/handlers"
	"github.com/huziichuk/bcs-broker/internal/lifecycle"
	"github.com/huziichuk/bcs-broker/internal/logger"
	"github.com/huziichuk/bcs-broker/internal/middleware"
	"github.com/huziichuk/bcs-broker/internal/notify"
	"github.com/huziichuk/bcs-broker/internal/registry"
	"github.com/huziichuk/bcs-broker/internal/scheduler"
	"github.com/huziichuk/bcs-broker/internal/websocket"
)

func main() {
	cfg := config.Load()

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()
	log.Info().Str("addr", cfg.Addr).Msg("starting bcs-broker")

	cat := catalog.New(cfg.Videos)
	reg := registry.New()
	notifier := notify.New(reg)
	sched := scheduler.New(reg, notifier)
	coord := lifecycle.New(reg, notifier)

	cronSched := startEvictionCron(reg, cfg.SessionTTL)
	if cronSched != nil {
		defer cronSched.Stop()
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(gin.Recovery())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.SecurityHeaders())

	sessionHandler := handlers.NewSessionHandler(reg, sched, cat)
	sessionHandler.RegisterRoutes(router)

	workerHandler := websocket.NewWorkerHandler(reg, notifier, sched, cfg.HelloTimeout)
	workerHandler.RegisterRoutes(router)

	clientHandler := websocket.NewClientHandler(reg, coord)
	clientHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownTimeout := 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server stopped gracefully")
	}
}

// startEvictionCron schedules a minute-by-minute sweep for expired,
// unreferenced sessions when a TTL is configured. It returns nil when TTL
// eviction is disabled.
func startEvictionCron(reg *registry.Registry, ttl time.Duration) *cron.Cron {
	if ttl <= 0 {
		logger.Registry().Info().Msg("session TTL eviction disabled")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc("@every 1m", func() {
		evicted := reg.EvictExpiredSessions(ttl, time.Now())
		if evicted > 0 {
			logger.Registry().Info().Int("count", evicted).Msg("evicted expired sessions")
		}
	})
	if err != nil {
		logger.Registry().Error().Err(err).Msg("failed to schedule session eviction, TTL eviction disabled")
		return nil
	}

	c.Start()
	logger.Registry().Info().Dur("ttl", ttl).Msg("session TTL eviction enabled")
	return c
}
