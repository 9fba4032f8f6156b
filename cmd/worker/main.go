// Package main bootstraps the background worker that runs queued demo jobs
// and writes their progress into shared job logs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/ol-logstream/config"
	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/joblog"
	"github.com/oremus-labs/ol-logstream/internal/jobs"
	"github.com/oremus-labs/ol-logstream/internal/logutil"
	"github.com/oremus-labs/ol-logstream/internal/queue"
	"github.com/oremus-labs/ol-logstream/internal/redisx"
	"github.com/oremus-labs/ol-logstream/internal/worker"
)

const workerVersion = "0.3.0-go"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting logstream worker v%s", workerVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logutil.SetDebug(cfg.Debug)
	logutil.Info("worker_bootstrap", map[string]interface{}{
		"version":        workerVersion,
		"datastore":      cfg.DataStoreDriver,
		"redisAddr":      cfg.RedisAddr,
		"redisJobStream": cfg.RedisJobStream,
		"redisJobGroup":  cfg.RedisJobGroup,
	})
	if cfg.DataStoreDriver == "memory" || cfg.DataStoreDriver == "" {
		logutil.Warn("worker_memory_store", map[string]interface{}{
			"hint": "job logs written by this worker are not visible to the server; use sqlite on a shared volume or redis",
		})
	}

	redisClient, err := redisx.NewClient(redisx.Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatalf("worker: failed to connect to redis: %v", err)
	}
	if redisClient == nil {
		log.Fatalf("worker: REDIS_ADDR is required to consume the job queue")
	}
	defer redisClient.Close()

	logStore, err := joblog.OpenStore(joblog.StoreConfig{
		Driver: cfg.DataStoreDriver,
		DSN:    cfg.DataStoreDSN,
		Redis:  redisClient,
		TTL:    cfg.JobLogTTL,
	})
	if err != nil {
		log.Fatalf("worker: failed to open job log store: %v", err)
	}

	eventBus := events.NewBus(events.Options{
		Client:  redisClient,
		Logger:  log.Default(),
		Channel: cfg.EventsChannel,
	})
	logs := joblog.NewManager(joblog.Options{
		Store:     logStore,
		Bus:       eventBus,
		StoreName: cfg.DataStoreDriver,
	})
	defer logs.Close()

	jobManager := jobs.New(jobs.Options{
		Logs:         logs,
		Steps:        cfg.DemoSteps,
		StepInterval: cfg.DemoStepInterval,
	})

	host, _ := os.Hostname()
	consumerName := fmt.Sprintf("%s-%d", host, time.Now().UnixNano())
	jobConsumer := queue.NewConsumer(redisClient, cfg.RedisJobStream, cfg.RedisJobGroup, consumerName)

	runner := worker.New(worker.Options{
		Logs:     logs,
		Jobs:     jobManager,
		Consumer: jobConsumer,
		Logger:   log.Default(),
	})

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
	log.Println("worker exited cleanly")
}
