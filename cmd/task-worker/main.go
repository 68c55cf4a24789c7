package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

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
	log.Info().Str("env", cfg.Env).Int("concurrency", cfg.WorkerConcurrency).Msg("task-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}

	dispatcher := tasks.NewDispatcher(redisOpt)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Error().Err(err).Msg("error closing task dispatcher")
		}
	}()

	repo := scheduling.NewPgRepository(pgPool)
	notifier := notify.NewLogNotifier(log)
	handlers := tasks.NewHandlers(repo, notifier, rdb, dispatcher, cfg.ReminderLeadTime, log)

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      asynqLogger{log.With().Str("component", "asynq").Logger()},
		Queues:      map[string]int{"default": 1},
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{log.With().Str("component", "scheduler").Logger()},
	})
	if _, err := scheduler.Register("@every 1h", tasks.NewReminderScanTask()); err != nil {
		log.Fatal().Err(err).Msg("register reminder scan")
	}

	if err := srv.Start(mux); err != nil {
		log.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		log.Fatal().Err(err).Msg("start scheduler")
	}

	<-rootCtx.Done()
	log.Info().Msg("shutting down task-worker")

	scheduler.Shutdown()
	srv.Stop()
	srv.Shutdown()
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// asynqLogger adapts zerolog to asynq's logging interface.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
