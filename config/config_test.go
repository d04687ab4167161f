package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:     ":8080",
			Environment: config.EnvDev,
		},
		Balancer: config.BalancerConfig{
			Capacity:           64,
			BaseMaxConnections: 100,
			Workers:            4,
			VirtualNodes:       1,
		},
		HealthCheck: config.HealthCheckConfig{
			Interval:     "10s",
			ProbeTimeout: "5s",
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     "30s",
		},
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
		},
		Backends: []config.BackendConfig{
			{Host: "localhost", Port: 8081, Weight: 100},
		},
		Logging: config.LoggingConfig{
			Level: config.LogLevelInfo,
		},
	}
}

var _ = Describe("Config", func() {
	Describe("Validate", func() {
		It("should accept a complete valid configuration", func() {
			Expect(validConfig().Validate()).To(Succeed())
		})

		Context("server section", func() {
			It("should reject an unknown environment", func() {
				cfg := validConfig()
				cfg.Server.Environment = "testing"
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should reject an address without a port", func() {
				cfg := validConfig()
				cfg.Server.Address = "localhost"
				Expect(cfg.Validate()).NotTo(Succeed())
			})
		})

		Context("logging section", func() {
			It("should reject an unknown level", func() {
				cfg := validConfig()
				cfg.Logging.Level = "verbose"
				Expect(cfg.Validate()).NotTo(Succeed())
			})
		})

		Context("balancer section", func() {
			It("should reject zero capacity", func() {
				cfg := validConfig()
				cfg.Balancer.Capacity = 0
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should reject zero workers", func() {
				cfg := validConfig()
				cfg.Balancer.Workers = 0
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should reject zero virtual nodes", func() {
				cfg := validConfig()
				cfg.Balancer.VirtualNodes = 0
				Expect(cfg.Validate()).NotTo(Succeed())
			})
		})

		Context("health check section", func() {
			It("should reject a malformed interval", func() {
				cfg := validConfig()
				cfg.HealthCheck.Interval = "often"
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should accept common duration formats", func() {
				for _, interval := range []string{"500ms", "2s", "1m", "1h"} {
					cfg := validConfig()
					cfg.HealthCheck.Interval = interval
					Expect(cfg.Validate()).To(Succeed())
				}
			})
		})

		Context("circuit breaker section", func() {
			It("should reject a zero failure threshold", func() {
				cfg := validConfig()
				cfg.CircuitBreaker.FailureThreshold = 0
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should reject a malformed reset timeout", func() {
				cfg := validConfig()
				cfg.CircuitBreaker.ResetTimeout = "soon"
				Expect(cfg.Validate()).NotTo(Succeed())
			})
		})

		Context("backends section", func() {
			It("should require at least one backend", func() {
				cfg := validConfig()
				cfg.Backends = nil
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should reject an empty host", func() {
				cfg := validConfig()
				cfg.Backends[0].Host = ""
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should reject an out-of-range port", func() {
				cfg := validConfig()
				cfg.Backends[0].Port = 70000
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should reject an out-of-range weight", func() {
				cfg := validConfig()
				cfg.Backends[0].Weight = 101
				Expect(cfg.Validate()).NotTo(Succeed())
			})

			It("should accept weight zero", func() {
				cfg := validConfig()
				cfg.Backends[0].Weight = 0
				Expect(cfg.Validate()).To(Succeed())
			})
		})
	})
})
