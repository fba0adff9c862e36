package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"bastionzero.com/wasync/connection/request"
	"bastionzero.com/wasync/connection/transporter"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

const testConfig = `
uri: https://example.com/push
method: post
transports: [websocket, sse, long-polling]
headers:
  Authorization: Bearer abc
reconnect: true
maxReconnectAttempts: 5
reconnectDelay: 2s
maxReconnectDelay: 1m
idleTimeout: 45s
`

var _ = Describe("Config", func() {
	var path string

	setEnv := func(key string, value string) {
		Expect(os.Setenv(key, value)).To(Succeed())
		DeferCleanup(os.Unsetenv, key)
	}

	writeConfig := func(contents string) {
		Expect(os.WriteFile(path, []byte(contents), 0600)).To(Succeed())
	}

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "wasync.yaml")
	})

	Context("Loading a file", func() {
		It("builds the request it describes", func() {
			writeConfig(testConfig)

			spec, err := Load(path)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(spec.URI().String()).To(Equal("https://example.com/push"))
			Expect(spec.Method()).To(Equal(request.POST))
			Expect(spec.Transports()).To(Equal([]transporter.Kind{transporter.WebSocket, transporter.SSE, transporter.LongPolling}))
			Expect(spec.Headers().Get("Authorization")).To(Equal("Bearer abc"))
			Expect(spec.MaxReconnectAttempts()).To(Equal(5))
			Expect(spec.ReconnectDelay()).To(Equal(2 * time.Second))
			Expect(spec.MaxReconnectDelay()).To(Equal(time.Minute))
			Expect(spec.IdleTimeout()).To(Equal(45 * time.Second))
			Expect(spec.HandshakeTimeout()).To(Equal(45 * time.Second))
		})

		It("lets the environment win", func() {
			writeConfig(testConfig)
			setEnv(UriEnvVar, "http://localhost:9000/push")
			setEnv(TransportsEnvVar, "streaming, ws")
			setEnv(ReconnectEnvVar, "false")
			setEnv(ConnectTimeoutEnvVar, "3s")

			spec, err := Load(path)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(spec.URI().Host).To(Equal("localhost:9000"))
			Expect(spec.Transports()).To(Equal([]transporter.Kind{transporter.Streaming, transporter.WebSocket}))
			Expect(spec.Reconnect()).To(BeFalse())
			Expect(spec.MaxReconnectAttempts()).To(BeZero())
			Expect(spec.HandshakeTimeout()).To(Equal(3 * time.Second))
		})

		It("works from the environment alone", func() {
			setEnv(UriEnvVar, "wss://example.com/socket")
			setEnv(TransportsEnvVar, "sse")

			spec, err := Load(path)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(spec.Transports()).To(Equal([]transporter.Kind{transporter.SSE}))
			Expect(spec.MaxReconnectAttempts()).To(Equal(request.Unbounded))
		})

		It("works from the environment when the directory does not exist", func() {
			setEnv(UriEnvVar, "wss://example.com/socket")
			setEnv(TransportsEnvVar, "sse")

			spec, err := Load(filepath.Join(filepath.Dir(path), "nodir", "wasync.yaml"))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(spec.URI().Host).To(Equal("example.com"))
		})
	})

	Context("Rejecting bad config", func() {
		It("reports malformed yaml", func() {
			writeConfig("uri: [unterminated")

			_, err := Load(path)

			var validationErr *ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
		})

		It("reports unknown transports", func() {
			writeConfig("uri: http://localhost\ntransports: [carrier-pigeon]\n")

			_, err := Load(path)

			var validationErr *ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
		})

		It("reports bad durations", func() {
			writeConfig("uri: http://localhost\ntransports: [sse]\nidleTimeout: soon\n")

			_, err := Load(path)

			var validationErr *ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
		})

		It("reports bad environment values", func() {
			writeConfig(testConfig)
			setEnv(MaxReconnectAttemptsEnvVar, "lots")

			_, err := Load(path)

			var validationErr *ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
		})

		It("surfaces builder errors", func() {
			writeConfig("uri: http://localhost\n")

			_, err := Load(path)

			var configErr *request.ConfigError
			Expect(errors.As(err, &configErr)).To(BeTrue())
			Expect(configErr.Field).To(Equal("transports"))
		})

		It("reports files it cannot lock", func() {
			// the parent is a regular file, not a directory
			writeConfig(testConfig)
			_, err := Load(filepath.Join(path, "wasync.yaml"))

			var fileErr *FileError
			Expect(errors.As(err, &fileErr)).To(BeTrue())
		})
	})
})
