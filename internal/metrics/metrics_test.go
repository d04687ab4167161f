package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("Snapshot", func() {
		It("should start empty", func() {
			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(BeZero())
			Expect(snap.SelectionFailures).To(BeZero())
			Expect(snap.Servers).To(BeEmpty())
		})

		It("should aggregate request counts per server", func() {
			m.IncrementRequests("s1")
			m.IncrementRequests("s1")
			m.IncrementRequests("s2")

			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(3)))
			Expect(snap.Servers["s1"].Requests).To(Equal(int64(2)))
			Expect(snap.Servers["s2"].Requests).To(Equal(int64(1)))
		})

		It("should track selections and selection failures", func() {
			m.RecordSelection("s1")
			m.RecordSelectionFailure()
			m.RecordSelectionFailure()

			snap := m.Snapshot()
			Expect(snap.Servers["s1"].Selections).To(Equal(int64(1)))
			Expect(snap.SelectionFailures).To(Equal(int64(2)))
		})

		It("should compute response percentiles", func() {
			for i := 1; i <= 100; i++ {
				m.RecordResponse("s1", time.Duration(i)*time.Millisecond, 200)
			}
			m.IncrementRequests("s1")

			snap := m.Snapshot()
			sm := snap.Servers["s1"]
			Expect(sm.P50Response).To(BeNumerically(">=", 50*time.Millisecond))
			Expect(sm.P95Response).To(BeNumerically(">=", 95*time.Millisecond))
			Expect(sm.P99Response).To(BeNumerically(">=", 99*time.Millisecond))
			Expect(sm.AvgResponse).To(BeNumerically("~", 50500*time.Microsecond, int64(time.Millisecond)))
		})

		It("should count status codes", func() {
			m.RecordResponse("s1", time.Millisecond, 200)
			m.RecordResponse("s1", time.Millisecond, 200)
			m.RecordResponse("s1", time.Millisecond, 502)
			m.IncrementRequests("s1")

			snap := m.Snapshot()
			Expect(snap.Servers["s1"].StatusCodes[200]).To(Equal(int64(2)))
			Expect(snap.Servers["s1"].StatusCodes[502]).To(Equal(int64(1)))
		})

		It("should track health status", func() {
			m.UpdateHealthStatus("s1", true)
			m.UpdateHealthStatus("s2", false)

			snap := m.Snapshot()
			Expect(snap.Servers["s1"].Healthy).To(BeTrue())
			Expect(snap.Servers["s2"].Healthy).To(BeFalse())
		})

		It("should report uptime", func() {
			snap := m.Snapshot()
			Expect(snap.Uptime).To(BeNumerically(">=", 0))
		})
	})
})
