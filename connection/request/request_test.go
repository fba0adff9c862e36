package request

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"bastionzero.com/wasync/connection/transporter"
)

func TestRequest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Request Suite")
}

var _ = Describe("Request builder", func() {
	var builder *Builder

	BeforeEach(func() {
		builder = NewBuilder().
			URI("http://localhost:8080/chat").
			Transport(transporter.WebSocket, transporter.SSE)
	})

	expectConfigError := func(field string) {
		spec, err := builder.Build()
		Expect(spec).To(BeNil())

		var configErr *ConfigError
		Expect(err).To(BeAssignableToTypeOf(configErr))
		Expect(err.(*ConfigError).Field).To(Equal(field))
	}

	Context("Building a valid request", func() {
		It("keeps transports in declared order", func() {
			spec, err := builder.Build()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(spec.Transports()).To(Equal([]transporter.Kind{transporter.WebSocket, transporter.SSE}))
		})

		It("applies defaults", func() {
			spec, err := builder.Build()
			Expect(err).ShouldNot(HaveOccurred())

			Expect(spec.Method()).To(Equal(GET))
			Expect(spec.Reconnect()).To(BeTrue())
			Expect(spec.MaxReconnectAttempts()).To(Equal(Unbounded))
			Expect(spec.ReconnectDelay()).To(Equal(DefaultReconnectDelay))
			Expect(spec.MaxReconnectDelay()).To(Equal(DefaultMaxReconnectDelay))
			Expect(spec.IdleTimeout()).To(BeZero())
			Expect(spec.HandshakeTimeout()).To(Equal(DefaultConnectTimeout))
		})

		It("cannot be changed through its accessors or its builder", func() {
			spec, err := builder.Header("Authorization", "token").Build()
			Expect(err).ShouldNot(HaveOccurred())

			spec.Transports()[0] = transporter.Streaming
			spec.Headers().Set("Authorization", "stolen")
			spec.URI().Host = "elsewhere"
			builder.Transport(transporter.LongPolling).Header("Authorization", "other")

			Expect(spec.Transports()).To(Equal([]transporter.Kind{transporter.WebSocket, transporter.SSE}))
			Expect(spec.Headers().Values("Authorization")).To(Equal([]string{"token"}))
			Expect(spec.URI().Host).To(Equal("localhost:8080"))
		})

		It("reports zero attempts when reconnect is disabled", func() {
			spec, err := builder.Reconnect(false).MaxReconnectAttempts(-42).Build()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(spec.MaxReconnectAttempts()).To(BeZero())
		})

		It("bounds the handshake by the connect timeout, then the idle timeout", func() {
			spec, err := builder.IdleTimeout(5 * time.Second).Build()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(spec.HandshakeTimeout()).To(Equal(5 * time.Second))

			spec, err = builder.ConnectTimeout(2 * time.Second).Build()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(spec.HandshakeTimeout()).To(Equal(2 * time.Second))
		})

		It("builds a dial target", func() {
			spec, err := builder.Method(POST).Header("X-Token", "abc").Build()
			Expect(err).ShouldNot(HaveOccurred())

			target := spec.Target()
			Expect(target.Url.String()).To(Equal("http://localhost:8080/chat"))
			Expect(target.Method).To(Equal("POST"))
			Expect(target.Headers.Get("X-Token")).To(Equal("abc"))
		})

		It("accepts websocket schemes", func() {
			_, err := builder.URI("wss://example.com/socket").Build()
			Expect(err).ShouldNot(HaveOccurred())
		})
	})

	Context("Rejecting invalid requests", func() {
		It("needs a transport", func() {
			builder = NewBuilder().URI("http://localhost")
			expectConfigError("transports")
		})

		It("rejects duplicate transports", func() {
			builder.Transport(transporter.WebSocket)
			expectConfigError("transports")
		})

		It("rejects unknown transports", func() {
			builder.Transport(transporter.Kind(42))
			expectConfigError("transports")
		})

		It("rejects relative uris", func() {
			builder.URI("/chat")
			expectConfigError("uri")
		})

		It("rejects unsupported schemes", func() {
			builder.URI("ftp://localhost/chat")
			expectConfigError("uri")
		})

		It("rejects unsupported methods", func() {
			builder.Method(Method("DELETE"))
			expectConfigError("method")
		})

		It("rejects negative attempts", func() {
			builder.MaxReconnectAttempts(-2)
			expectConfigError("maxReconnectAttempts")
		})

		It("rejects a max delay below the base delay", func() {
			builder.ReconnectDelay(time.Minute, time.Second)
			expectConfigError("maxReconnectDelay")
		})

		It("rejects negative timeouts", func() {
			builder.IdleTimeout(-time.Second)
			expectConfigError("idleTimeout")
		})
	})
})
