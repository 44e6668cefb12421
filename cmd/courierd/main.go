package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courier-chat/courier/internal/config"
	"github.com/courier-chat/courier/internal/engine"
	"github.com/courier-chat/courier/internal/handler"
	"github.com/courier-chat/courier/internal/handler/ws"
	"github.com/courier-chat/courier/internal/queue"
	"github.com/courier-chat/courier/internal/registry"
	"github.com/courier-chat/courier/internal/router"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded, continuing with system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("queue store unreachable")
	}
	defer rdb.Close()

	store := queue.NewRedisStore(rdb, cfg.Delivery.QueuePrefix)
	reg := registry.New(log)

	eng := engine.New(store, reg, engine.Config{
		AckWindow:     cfg.Delivery.AckWindow,
		MaxAttempts:   cfg.Delivery.MaxAttempts,
		SweepInterval: cfg.Delivery.SweepInterval,
	}, log)
	defer eng.Close()
	go eng.Run(ctx)

	rtr := router.New(eng, log)
	wsHandler := ws.New(reg, eng, rtr, log, cfg.Delivery.WriteTimeout)
	mux := handler.NewRouter(reg, eng, store, wsHandler)

	startServer(ctx, cfg.Server, mux, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, mux http.Handler, log zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("courier listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
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
