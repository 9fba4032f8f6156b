// Package main is the entry point for the log feed server.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/ol-logstream/config"
	"github.com/oremus-labs/ol-logstream/internal/api"
	"github.com/oremus-labs/ol-logstream/internal/events"
	"github.com/oremus-labs/ol-logstream/internal/handlers"
	"github.com/oremus-labs/ol-logstream/internal/joblog"
	"github.com/oremus-labs/ol-logstream/internal/jobs"
	"github.com/oremus-labs/ol-logstream/internal/logutil"
	"github.com/oremus-labs/ol-logstream/internal/queue"
	"github.com/oremus-labs/ol-logstream/internal/redisx"
)

const (
	version         = "0.3.0-go"
	shutdownTimeout = 5 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting logstream server v%s", version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logutil.SetDebug(cfg.Debug)
	logutil.Info("server_bootstrap", map[string]interface{}{
		"version":      version,
		"port":         cfg.ServerPort,
		"datastore":    cfg.DataStoreDriver,
		"routePrefix":  cfg.LogRoutePrefix,
		"queueEnabled": cfg.QueueEnabled,
		"redisAddr":    cfg.RedisAddr,
	})

	redisClient, err := redisx.NewClient(redisx.Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	logStore, err := joblog.OpenStore(joblog.StoreConfig{
		Driver: cfg.DataStoreDriver,
		DSN:    cfg.DataStoreDSN,
		Redis:  redisClient,
		TTL:    cfg.JobLogTTL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize job log store: %v", err)
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

	jobOpts := jobs.Options{
		Logs:         logs,
		Steps:        cfg.DemoSteps,
		StepInterval: cfg.DemoStepInterval,
	}
	if cfg.QueueEnabled {
		if redisClient == nil {
			log.Fatalf("QUEUE_ENABLED requires REDIS_ADDR")
		}
		jobOpts.Queue = queue.NewProducer(redisClient, cfg.RedisJobStream)
	}
	jobManager := jobs.New(jobOpts)

	handler := handlers.New(logs, jobManager, handlers.Options{})
	server := api.NewServer(handler, api.Options{
		APIToken:    cfg.APIToken,
		RoutePrefix: cfg.LogRoutePrefix,
	})

	go pruneLoop(ctx, logs, cfg.JobLogTTL, cfg.PruneInterval)

	srv := server.Start(":" + cfg.ServerPort)
	log.Printf("Listening on :%s", cfg.ServerPort)

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}

func pruneLoop(ctx context.Context, logs *joblog.Manager, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := logs.Prune(ctx, ttl)
			if err != nil {
				logutil.Error("job_log_prune_failed", err, nil)
				continue
			}
			if n > 0 {
				logutil.Info("job_log_pruned", map[string]interface{}{"count": n})
			}
		}
	}
}
