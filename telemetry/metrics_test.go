package telemetry

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"bastionzero.com/wasync/connection/transporter"
)

func TestTelemetry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Telemetry Suite")
}

var _ = Describe("Metrics", func() {
	var registry *prometheus.Registry
	var metrics *Metrics

	BeforeEach(func() {
		var err error
		registry = prometheus.NewRegistry()
		metrics, err = NewMetrics(registry)
		Expect(err).ShouldNot(HaveOccurred())
	})

	It("counts negotiations by transport and result", func() {
		metrics.Negotiation(transporter.WebSocket, NegotiationUnsupported)
		metrics.Negotiation(transporter.SSE, NegotiationSuccess)
		metrics.Negotiation(transporter.SSE, NegotiationSuccess)

		Expect(testutil.ToFloat64(metrics.negotiations.WithLabelValues("websocket", NegotiationUnsupported))).To(Equal(1.0))
		Expect(testutil.ToFloat64(metrics.negotiations.WithLabelValues("sse", NegotiationSuccess))).To(Equal(2.0))
	})

	It("counts frames in both directions", func() {
		metrics.FrameReceived(transporter.Streaming)
		metrics.FrameReceived(transporter.Streaming)
		metrics.FrameSent(transporter.Streaming)

		Expect(testutil.ToFloat64(metrics.framesReceived.WithLabelValues("streaming"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(metrics.framesSent.WithLabelValues("streaming"))).To(Equal(1.0))
	})

	It("tracks connected sockets", func() {
		metrics.Connected()
		metrics.Connected()
		metrics.Disconnected()

		Expect(testutil.ToFloat64(metrics.openSockets)).To(Equal(1.0))
	})

	It("counts reconnect decisions", func() {
		metrics.ReconnectDecision("give-up")

		Expect(testutil.GatherAndCount(registry, "wasync_socket_reconnect_decisions_total")).To(Equal(1))
	})

	It("refuses to register twice", func() {
		_, err := NewMetrics(registry)
		Expect(err).Should(HaveOccurred())
	})

	It("does nothing when nil", func() {
		var none *Metrics
		Expect(func() {
			none.Negotiation(transporter.SSE, NegotiationFailure)
			none.ReconnectDecision("give-up")
			none.FrameReceived(transporter.SSE)
			none.FrameSent(transporter.SSE)
			none.Connected()
			none.Disconnected()
		}).ShouldNot(Panic())
	})
})
