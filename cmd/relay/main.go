package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/firext/internal/api/http"
	"github.com/immxrtalbeast/firext/internal/config"
	"github.com/immxrtalbeast/firext/internal/metrics"
	"github.com/immxrtalbeast/firext/internal/repository"
	"github.com/immxrtalbeast/firext/internal/service"
	"github.com/immxrtalbeast/firext/lib/logger/sl"
	"github.com/immxrtalbeast/firext/lib/logger/slogpretty"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	var relayMetrics *metrics.Relay
	if cfg.Metrics.Enabled {
		relayMetrics = metrics.NewRelay()
	}

	roomRepo := repository.NewInMemoryRoomRepository()

	relayService := service.NewRelayService(roomRepo, log, service.RelayOptions{
		PeerTimeout: cfg.Relay.PeerTimeout,
		RoomTTL:     cfg.Relay.RoomTTL,
		Metrics:     relayMetrics,
	})

	relayController := httpapi.NewRelayController(relayService, log, httpapi.RelayControllerOptions{
		PushInterval: cfg.Relay.PushInterval,
		MaxBodyBytes: cfg.Relay.MaxBodyBytes,
	})

	routerOpts := httpapi.RouterOptions{
		AllowOrigins: cfg.HTTP.AllowOrigins,
		MetricsPath:  cfg.Metrics.Path,
	}
	if relayMetrics != nil {
		routerOpts.MetricsHandler = relayMetrics.Handler()
	}
	router := httpapi.SetupRouter(relayController, routerOpts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go relayService.RunCollector(ctx, cfg.Relay.GCInterval)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting relay", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down", sl.Err(err))
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
