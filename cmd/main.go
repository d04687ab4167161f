package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/config"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/balancer"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/handler"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/healthcheck"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/httpserver"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/metrics"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/ratelimit"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/pkg/logger"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	lb, err := buildBalancer(cfg, log, collector)
	if err != nil {
		log.Error("Failed to build load balancer", slog.Any("err", err))
		os.Exit(1)
	}

	if err := registerBackends(lb, cfg, log); err != nil {
		log.Error("Failed to register backends", slog.Any("err", err))
		os.Exit(1)
	}

	loadBalancerHandler := handler.NewLoadBalancerHandler(log, lb, collector)
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, handler.ExtractClientIP)

	mux := setupRouter(loadBalancerHandler, collector, limiter)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during server shutdown", slog.Any("err", err))
		}
		if err := lb.Shutdown(shutdownGrace); err != nil {
			log.Error("Error during balancer shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting load balancer", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildBalancer(cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (*balancer.Balancer, error) {
	healthInterval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return nil, err
	}

	probeTimeout, err := time.ParseDuration(cfg.HealthCheck.ProbeTimeout)
	if err != nil {
		return nil, err
	}

	resetTimeout, err := time.ParseDuration(cfg.CircuitBreaker.ResetTimeout)
	if err != nil {
		return nil, err
	}

	return balancer.New(balancer.Config{
		Capacity:         cfg.Balancer.Capacity,
		BaseMaxConns:     cfg.Balancer.BaseMaxConnections,
		Workers:          cfg.Balancer.Workers,
		VirtualNodes:     cfg.Balancer.VirtualNodes,
		HealthInterval:   healthInterval,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:     resetTimeout,
		Prober:           healthcheck.NewHTTPProber(probeTimeout),
		OnHealthChange:   healthEventSink(collector),
		Logger:           log,
	})
}

// healthEventSink forwards health flips from the balancer's health loop to
// the metrics collector so /metrics reflects live server status.
func healthEventSink(collector *metrics.Collector) func(string, bool) {
	if collector == nil {
		return nil
	}

	return func(serverID string, healthy bool) {
		select {
		case collector.EventChannel() <- metrics.MetricEvent{
			Type:      metrics.EventHealthChanged,
			Timestamp: time.Now(),
			ServerID:  serverID,
			Healthy:   healthy,
		}:
		default:
		}
	}
}

func registerBackends(lb *balancer.Balancer, cfg *config.Config, log *slog.Logger) error {
	for _, b := range cfg.Backends {
		id, err := lb.AddServer(b.Host, b.Port, b.Weight)
		if err != nil {
			log.Error("Failed to register backend",
				slog.String("host", b.Host),
				slog.Int("port", b.Port),
				slog.Any("err", err))
			return err
		}

		log.Info("Registered backend",
			slog.String("id", id),
			slog.String("host", b.Host),
			slog.Int("port", b.Port),
			slog.Int("weight", b.Weight))
	}

	return nil
}
