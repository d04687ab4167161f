package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(5, 30*time.Second)
	})

	Describe("GetBreaker", func() {
		It("should create a breaker on first use", func() {
			cb := registry.GetBreaker("server-1")
			Expect(cb).NotTo(BeNil())
			Expect(cb.IsOpen()).To(BeFalse())
		})

		It("should return the same breaker for the same id", func() {
			first := registry.GetBreaker("server-1")
			second := registry.GetBreaker("server-1")
			Expect(first).To(BeIdenticalTo(second))
		})

		It("should return distinct breakers for distinct ids", func() {
			first := registry.GetBreaker("server-1")
			second := registry.GetBreaker("server-2")
			Expect(first).NotTo(BeIdenticalTo(second))
		})

		It("should be safe under concurrent access", func() {
			var wg sync.WaitGroup
			breakers := make([]*circuitbreaker.CircuitBreaker, 10)

			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					breakers[i] = registry.GetBreaker("shared")
				}(i)
			}
			wg.Wait()

			for i := 1; i < 10; i++ {
				Expect(breakers[i]).To(BeIdenticalTo(breakers[0]))
			}
		})
	})

	Describe("Lookup", func() {
		It("should not create a breaker", func() {
			_, exists := registry.Lookup("absent")
			Expect(exists).To(BeFalse())
		})

		It("should find an existing breaker", func() {
			created := registry.GetBreaker("server-1")
			found, exists := registry.Lookup("server-1")
			Expect(exists).To(BeTrue())
			Expect(found).To(BeIdenticalTo(created))
		})
	})

	Describe("Remove", func() {
		It("should drop the breaker for the id", func() {
			registry.GetBreaker("server-1")
			registry.Remove("server-1")

			_, exists := registry.Lookup("server-1")
			Expect(exists).To(BeFalse())
		})

		It("should be a no-op for unknown ids", func() {
			registry.Remove("absent")
			Expect(registry.Stats()).To(BeEmpty())
		})
	})

	Describe("Stats", func() {
		It("should report the open state per server", func() {
			registry.GetBreaker("healthy")
			bad := registry.GetBreaker("failing")
			for i := 0; i < 5; i++ {
				bad.RecordFailure()
			}

			stats := registry.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats["healthy"]).To(BeFalse())
			Expect(stats["failing"]).To(BeTrue())
		})
	})

	Describe("Reset", func() {
		It("should discard every breaker", func() {
			registry.GetBreaker("server-1")
			registry.GetBreaker("server-2")
			registry.Reset()
			Expect(registry.Stats()).To(BeEmpty())
		})
	})
})
