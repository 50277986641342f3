package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/clinic-ledger/internal/adapter/auth"
	"github.com/rl1809/clinic-ledger/internal/adapter/handler"
	"github.com/rl1809/clinic-ledger/internal/adapter/metrics"
	"github.com/rl1809/clinic-ledger/internal/adapter/storage"
	"github.com/rl1809/clinic-ledger/internal/config"
	"github.com/rl1809/clinic-ledger/internal/core/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Initialize database
	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect %s: %v", cfg.DBDriver, err)
	}
	if err := store.Migrate(); err != nil {
		log.Fatalf("failed to migrate %s: %v", cfg.DBDriver, err)
	}
	log.Printf("connected to %s", cfg.DBDriver)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := metrics.NewPrometheus(registry)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	opts := service.Options{
		HorizonDays: cfg.ReapHorizonDays,
		Metrics:     promMetrics,
		Logger:      logger,
	}
	catalogOpts := service.CatalogOptions{
		TTL:        cfg.CatalogTTL,
		DentistTTL: cfg.CatalogDentistTTL,
		Logger:     logger,
	}

	// Initialize Redis when configured
	var rdb *redis.Client
	var catalog *service.CatalogService
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		log.Println("connected to redis")

		redisAdapter := storage.NewRedisAdapter(rdb)
		opts.Cache = redisAdapter
		catalog = service.NewCatalogService(store.References(), redisAdapter, catalogOpts)
	} else {
		log.Println("REDIS_ADDR not set, dispense dedupe and catalog cache disabled")
		catalog = service.NewCatalogService(store.References(), nil, catalogOpts)
	}

	// Initialize statement archive when configured
	if cfg.S3Bucket != "" {
		archive, err := storage.NewS3Archive(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		})
		if err != nil {
			log.Fatalf("failed to init s3 archive: %v", err)
		}
		opts.Archive = archive
		log.Printf("archiving paid statements to s3://%s", cfg.S3Bucket)
	}

	clinic := service.NewClinicService(store, opts)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	// Start reaper loop
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaperLoop(ctx, clinic, cfg.ReapInterval, cfg.ReapHorizonDays)
	}()
	log.Printf("started expiry reaper every %s", cfg.ReapInterval)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(clinic, verifier))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(clinic, catalog, verifier)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpHandler.Router(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	cancel()
	wg.Wait()
	log.Println("reaper stopped")

	if rdb != nil {
		rdb.Close()
	}
	store.Close()
	log.Println("connections closed")
}

// reaperLoop deactivates near-expiry batches once at start and then on every tick.
func reaperLoop(ctx context.Context, clinic *service.ClinicService, interval time.Duration, horizonDays int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runCtx, runCancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := clinic.ReapExpired(runCtx, horizonDays)
		runCancel()
		if err != nil {
			log.Printf("reaper: failed to deactivate expiring batches: %v", err)
		} else if n > 0 {
			log.Printf("reaper: deactivated %d batches", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
