package streaming

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/logger"
	"bastionzero.com/wasync/tests/mocks"
	"bastionzero.com/wasync/tests/server"
)

func TestStreaming(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Streaming Suite")
}

var _ = Describe("Streaming", func() {
	var pushServer *server.PushServer
	var channel transporter.Transporter

	logger := logger.MockLogger(GinkgoWriter)
	ctx := context.Background()

	targetFor := func(rawUrl string) transporter.Target {
		testUrl, err := url.Parse(rawUrl)
		Expect(err).ShouldNot(HaveOccurred())
		return transporter.Target{Url: testUrl, Method: http.MethodGet, Headers: http.Header{"Authorization": []string{"Bearer abc"}}}
	}

	// collects frames until they add up to want, since chunk boundaries are
	// up to the network
	receiveAll := func(want string) {
		var received string
		Eventually(func() string {
			select {
			case frame, ok := <-channel.Inbound():
				if ok {
					received += string(frame)
				}
			default:
			}
			return received
		}).Should(Equal(want))
	}

	BeforeEach(func() {
		channel = New(logger)
	})

	AfterEach(func() {
		channel.Close(errors.New("test is over"))
		if pushServer != nil {
			pushServer.Close()
			pushServer = nil
		}
	})

	Context("Talking to a server", func() {
		BeforeEach(func() {
			pushServer = server.NewPushServer(logger)
			Expect(channel.Dial(ctx, targetFor(pushServer.Url))).To(Succeed())
			Eventually(func() int { return pushServer.Connections(transporter.Streaming) }).Should(Equal(1))
		})

		It("receives whatever the server flushes", func() {
			pushServer.Push([]byte("hello "))
			pushServer.Push([]byte("world"))

			receiveAll("hello world")
		})

		It("echoes what it sends", func() {
			Expect(channel.Send([]byte("PING"))).To(Succeed())

			var message []byte
			Eventually(pushServer.Received).Should(Receive(&message))
			Expect(string(message)).To(Equal("PING"))

			receiveAll("PING")
		})

		It("closes inbound when the server ends the response", func() {
			pushServer.DropAll()

			Eventually(channel.Inbound()).Should(BeClosed())

			var closed *transporter.ClosedError
			Expect(errors.As(channel.Err(), &closed)).To(BeTrue(), "unexpected error: %s", channel.Err())
		})
	})

	When("The server rejects the handshake", func() {
		It("reports unsupported statuses as unsupported", func() {
			mockServer := mocks.NewMockServer(mocks.StatusHandler("/", http.StatusUpgradeRequired))
			defer mockServer.Close()

			var unsupported *transporter.UnsupportedError
			Expect(errors.As(channel.Dial(ctx, targetFor(mockServer.Url)), &unsupported)).To(BeTrue())
			Expect(unsupported.StatusCode).To(Equal(http.StatusUpgradeRequired))

			requests := mockServer.Requests("/")
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].Header.Get("Authorization")).To(Equal("Bearer abc"))
			Expect(requests[0].Header.Get(transporter.TransportHeader)).To(Equal("streaming"))
		})

		It("reports other failures as plain errors", func() {
			mockServer := mocks.NewMockServer(mocks.StatusHandler("/", http.StatusInternalServerError))
			defer mockServer.Close()

			err := channel.Dial(ctx, targetFor(mockServer.Url))
			Expect(err).To(HaveOccurred())

			var unsupported *transporter.UnsupportedError
			Expect(errors.As(err, &unsupported)).To(BeFalse())
		})
	})
})
