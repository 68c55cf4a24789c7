package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/api"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/cache"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/config"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/db"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/notify"
	redisclient "github.com/Dharmendra-07/Hospital-Management-System-V2/internal/redis"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/scheduling"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	dispatcher := tasks.NewDispatcher(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Error().Err(err).Msg("error closing task dispatcher")
		}
	}()

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	appCache := cache.New(rdb, cfg.CacheTTL, log)
	notifier := notify.NewLogNotifier(log)
	svc := scheduling.NewService(repo, locker, appCache, notifier, cfg, log)

	router := api.NewRouter(api.Deps{
		Service:    svc,
		Cache:      appCache,
		Dispatcher: dispatcher,
		Results:    tasks.NewResultStore(rdb),
		Pool:       pgPool,
		Redis:      rdb,
		Log:        log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutting down api-server")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
