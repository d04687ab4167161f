package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/balancer"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/metrics"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/server"
)

// selectionTimeout bounds how long a request waits for the worker pool to
// deliver a selection before answering 503.
const selectionTimeout = 5 * time.Second

type LoadBalancerHandler struct {
	logger           *slog.Logger
	balancer         *balancer.Balancer
	metricsCollector *metrics.Collector

	proxyMutex sync.RWMutex
	proxies    map[string]*httputil.ReverseProxy
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (h *LoadBalancerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := ExtractClientIP(r)

	h.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	node, err := h.awaitSelection()
	if err != nil {
		h.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventSelectionFailed,
			Timestamp: time.Now(),
		})

		if errors.Is(err, balancer.ErrServiceUnavailable) {
			h.logger.Warn("Load balancer is shutting down", slog.String("client", clientIP))
		} else {
			h.logger.Warn("No healthy servers available", slog.String("client", clientIP))
		}
		http.Error(w, "No healthy server available", http.StatusServiceUnavailable)
		return
	}

	h.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		ServerID:  node.ID(),
	})

	h.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventServerSelected,
		Timestamp: time.Now(),
		ServerID:  node.ID(),
	})

	node.IncrementConnections()
	defer node.DecrementConnections()

	start := time.Now()

	h.logger.Info("Forwarding to server",
		slog.String("client", clientIP),
		slog.String("server", node.Addr()))

	w.Header().Set("X-Backend-Server", node.Addr())

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h.proxyFor(node).ServeHTTP(wrapped, r)

	duration := time.Since(start)
	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		ServerID:   node.ID(),
		Duration:   duration,
		StatusCode: wrapped.statusCode,
	})

	if err := node.RecordRequest(duration); err != nil {
		h.logger.Error("Failed to record request latency", slog.Any("err", err))
	}
}

// awaitSelection waits on the asynchronous selection handle with a bounded
// timeout so a saturated worker pool cannot pin request goroutines forever.
func (h *LoadBalancerHandler) awaitSelection() (*server.Node, error) {
	select {
	case sel := <-h.balancer.GetServer():
		return sel.Node, sel.Err
	case <-time.After(selectionTimeout):
		return nil, balancer.ErrNoHealthyServers
	}
}

// proxyFor returns the reverse proxy for a node, building and caching it on
// first use. Nodes are identified by id so a replaced server at the same
// address gets a fresh proxy.
func (h *LoadBalancerHandler) proxyFor(node *server.Node) *httputil.ReverseProxy {
	h.proxyMutex.RLock()
	proxy, ok := h.proxies[node.ID()]
	h.proxyMutex.RUnlock()

	if ok {
		return proxy
	}

	h.proxyMutex.Lock()
	defer h.proxyMutex.Unlock()

	if proxy, ok = h.proxies[node.ID()]; ok {
		return proxy
	}

	target := &url.URL{Scheme: "http", Host: node.Addr()}
	proxy = httputil.NewSingleHostReverseProxy(target)
	h.proxies[node.ID()] = proxy
	return proxy
}

// ExtractClientIP returns the originating client address, preferring the
// first X-Forwarded-For entry over the connection's remote address.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (h *LoadBalancerHandler) emitEvent(event metrics.MetricEvent) {
	if h.metricsCollector == nil {
		return
	}

	select {
	case h.metricsCollector.EventChannel() <- event:
	default:
	}
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func NewLoadBalancerHandler(logger *slog.Logger, lb *balancer.Balancer, collector *metrics.Collector) *LoadBalancerHandler {
	return &LoadBalancerHandler{
		logger:           logger,
		balancer:         lb,
		metricsCollector: collector,
		proxies:          make(map[string]*httputil.ReverseProxy),
	}
}
