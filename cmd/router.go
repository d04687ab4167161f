package main

import (
	"net/http"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/handler"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/metrics"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/ratelimit"
)

func setupRouter(loadBalancerHandler *handler.LoadBalancerHandler, metricsCollector *metrics.Collector, limiter *ratelimit.Limiter) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", limiter.Middleware(loadBalancerHandler))
	mux.HandleFunc("/metrics", metricsCollector.Handler())

	return mux
}
