package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/balancer"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/handler"
	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/metrics"
)

func newTestBalancer() *balancer.Balancer {
	lb, err := balancer.New(balancer.Config{
		Capacity:     10,
		BaseMaxConns: 100,
		Workers:      2,
		VirtualNodes: 1,
	})
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() {
		lb.Shutdown(time.Second)
	})
	return lb
}

func registerBackend(lb *balancer.Balancer, ts *httptest.Server) string {
	host, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	Expect(err).NotTo(HaveOccurred())
	port, err := strconv.Atoi(portStr)
	Expect(err).NotTo(HaveOccurred())

	id, err := lb.AddServer(host, port, 100)
	Expect(err).NotTo(HaveOccurred())
	return id
}

var _ = Describe("LoadBalancerHandler", func() {
	var (
		lb        *balancer.Balancer
		collector *metrics.Collector
		h         *handler.LoadBalancerHandler
	)

	BeforeEach(func() {
		lb = newTestBalancer()
		collector = metrics.NewCollector(100, slog.Default())
		ctx, cancel := context.WithCancel(context.Background())
		collector.Start(ctx)
		DeferCleanup(cancel)
		h = handler.NewLoadBalancerHandler(slog.Default(), lb, collector)
	})

	It("should forward requests to the selected server", func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "hello from backend")
		}))
		defer ts.Close()
		registerBackend(lb, ts)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		h.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("hello from backend"))
		Expect(rec.Header().Get("X-Backend-Server")).NotTo(BeEmpty())
	})

	It("should record the request on the node and release the connection", func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer ts.Close()
		registerBackend(lb, ts)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)

		node := lb.Servers()[0]
		Expect(node.RequestCount()).To(Equal(int64(1)))
		Expect(node.ActiveConnections()).To(BeZero())
	})

	It("should emit selection metrics", func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer ts.Close()
		id := registerBackend(lb, ts)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)

		Eventually(func() int64 {
			return collector.Snapshot().Servers[id].Selections
		}, time.Second, 10*time.Millisecond).Should(Equal(int64(1)))
	})

	It("should answer 503 with no servers registered", func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		h.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("should answer 503 after shutdown", func() {
		Expect(lb.Shutdown(time.Second)).To(Succeed())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		h.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})
})

var _ = Describe("ExtractClientIP", func() {
	It("should prefer the first X-Forwarded-For entry", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		req.RemoteAddr = "10.0.0.2:1234"
		Expect(handler.ExtractClientIP(req)).To(Equal("203.0.113.7"))
	})

	It("should fall back to the remote address host", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		Expect(handler.ExtractClientIP(req)).To(Equal("10.0.0.2"))
	})
})
