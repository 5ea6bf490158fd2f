package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"example.com/socialgraph/cmd/server"
	"example.com/socialgraph/cmd/worker"
	appkafka "example.com/socialgraph/internal/broker"
	config "example.com/socialgraph/internal/init"
	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/realtime"
	"example.com/socialgraph/internal/social"
	"example.com/socialgraph/internal/store"
	"example.com/socialgraph/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Initialize application configuration
	cfg := config.Init()
	mode := cfg.Mode
	logger.SetLevel(cfg.LogLevel)

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "socialgraph-"+mode, cfg.OtelEndpoint)
	if err != nil {
		log.Fatalf("Tracing setup failed: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// Initialize Cassandra store connection
	st, err := store.New()
	if err != nil {
		log.Fatalf("Cassandra connection failed: %v", err)
	}
	defer st.Close()

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Run application depending on selected mode
	switch mode {
	case "server":
		kafkaWriter, err := appkafka.NewKafkaWriter(kafkaCfg)
		if err != nil {
			log.Fatalf("Kafka writer init failed: %v", err)
		}
		defer kafkaWriter.Close()

		dedup, closeDedup := dedupWindow(cfg, st)
		defer closeDedup()

		s := server.New(st, dedup, appkafka.NewNotificationPublisher(kafkaWriter), server.Options{
			DedupWindow:     cfg.DedupWindow,
			DefaultPageSize: cfg.DefaultPageSize,
			FeedPageSize:    cfg.FeedPageSize,
			MaxPageSize:     cfg.MaxPageSize,
			Locale:          cfg.Locale,
			Concurrency:     cfg.WorkerCount,
		})
		server.Run(ctx, s, cfg.ServerAddr, cfg.TLSCert, cfg.TLSKey)

	case "worker":
		kafkaReader := appkafka.NewKafkaReader(kafkaCfg)
		defer kafkaReader.Close()

		w := worker.New(st, kafkaReader, realtime.NewHub(), social.NewRenderer(cfg.Locale), cfg.WorkerCount, 0)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.ServeWS(ctx, cfg.WSAddr)
		}()
		w.Run(ctx)
		wg.Wait()

	default:
		log.Fatalf("unknown mode: %s", mode)
	}

	log.Println("Shutdown completed")
}

// dedupWindow picks the marker backend. Cassandra is the default; "redis"
// keeps markers in Redis instead.
func dedupWindow(cfg *config.Config, st *store.Store) (store.DedupWindow, func()) {
	if !strings.EqualFold(cfg.DedupBackend, "redis") {
		return st, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	return store.NewRedisDedup(client), func() { _ = client.Close() }
}
