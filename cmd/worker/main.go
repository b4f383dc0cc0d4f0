package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"study-buddy-rag/internal/app"
	"study-buddy-rag/internal/config"
	"study-buddy-rag/internal/ingest"
	"study-buddy-rag/internal/models"
	"study-buddy-rag/internal/queue"
	"study-buddy-rag/internal/telemetry"
)

// asynqLogger routes asynq's own logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...any) { log.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...any)  { log.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...any)  { log.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...any) { log.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...any) { log.Fatal().Msg(fmt.Sprint(args...)) }

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "Path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	lvl, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if cfg.Redis.Addr == "" {
		log.Fatal().Msg("redis.addr is required to run the worker")
	}

	ctx := context.Background()
	shutdown, err := telemetry.InitTracer(ctx, "study-buddy-worker", cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing tracer")
	}
	defer shutdown()

	a, err := app.New(ctx, cfg, ingest.LogSink{})
	if err != nil {
		log.Fatal().Err(err).Msg("Error building pipeline")
	}
	defer a.Close()

	server := asynq.NewServer(
		app.RedisClientOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues:      map[string]int{cfg.Queue.Name: 1},
			Logger:      asynqLogger{},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task", task.Type()).Str("kind", models.KindOf(err)).Msg("Task failed")
			}),
		},
	)

	mux := queue.NewServeMux(queue.NewTaskProcessor(a.Pipeline))

	log.Info().
		Int("concurrency", cfg.Queue.Concurrency).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Redis.Addr).
		Msg("Starting ingestion worker")

	if err := server.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker")
	}
}
