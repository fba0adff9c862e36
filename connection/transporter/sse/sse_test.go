package sse

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"bastionzero.com/wasync/connection/transporter"
	"bastionzero.com/wasync/logger"
	"bastionzero.com/wasync/tests/mocks"
	"bastionzero.com/wasync/tests/server"
)

func TestSSE(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SSE Suite")
}

var _ = Describe("SSE", func() {
	var pushServer *server.PushServer
	var channel transporter.Transporter

	logger := logger.MockLogger(GinkgoWriter)
	ctx := context.Background()

	targetFor := func(rawUrl string) transporter.Target {
		testUrl, err := url.Parse(rawUrl)
		Expect(err).ShouldNot(HaveOccurred())
		return transporter.Target{Url: testUrl, Method: http.MethodPost, Headers: http.Header{}}
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

	Context("Parsing the event stream", func() {
		It("joins data lines and skips comments and other fields", func() {
			s := channel.(*SSE)
			stream := ": keepalive\n" +
				"data: first\n" +
				"data: second\n" +
				"\n" +
				"event: ping\n" +
				"id: 7\n" +
				"\n" +
				"data:third\r\n" +
				"\r\n" +
				"data: unterminated\n"

			Expect(s.read(bufio.NewScanner(strings.NewReader(stream)))).To(Succeed())

			var frames []string
			for len(s.Inbound()) > 0 {
				frames = append(frames, string(<-s.Inbound()))
			}
			Expect(frames).To(Equal([]string{"first\nsecond", "third"}))
		})
	})

	Context("Talking to a server", func() {
		BeforeEach(func() {
			pushServer = server.NewPushServer(logger)
			Expect(channel.Dial(ctx, targetFor(pushServer.Url))).To(Succeed())
			Eventually(func() int { return pushServer.Connections(transporter.SSE) }).Should(Equal(1))
		})

		It("receives pushed events in order", func() {
			pushServer.Push([]byte("one"))
			pushServer.Push([]byte("two"))

			var frame []byte
			Eventually(channel.Inbound()).Should(Receive(&frame))
			Expect(string(frame)).To(Equal("one"))
			Eventually(channel.Inbound()).Should(Receive(&frame))
			Expect(string(frame)).To(Equal("two"))
		})

		It("sends by posting to the same uri", func() {
			Expect(channel.Send([]byte("PING"))).To(Succeed())

			var message []byte
			Eventually(pushServer.Received).Should(Receive(&message))
			Expect(string(message)).To(Equal("PING"))

			// and the server's echo comes back over the stream
			var frame []byte
			Eventually(channel.Inbound()).Should(Receive(&frame))
			Expect(string(frame)).To(Equal("PING"))
		})

		It("closes inbound when the server ends the stream", func() {
			pushServer.DropAll()

			Eventually(channel.Inbound()).Should(BeClosed())

			var closed *transporter.ClosedError
			Expect(errors.As(channel.Err(), &closed)).To(BeTrue(), "unexpected error: %s", channel.Err())
		})
	})

	Context("Servers without event streams", func() {
		It("reports a 404 as unsupported", func() {
			pushServer = server.NewPushServer(logger, transporter.SSE)

			var unsupported *transporter.UnsupportedError
			Expect(errors.As(channel.Dial(ctx, targetFor(pushServer.Url)), &unsupported)).To(BeTrue())
			Expect(unsupported.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("reports the wrong content type as unsupported", func() {
			mockServer := mocks.NewMockServer(mocks.MockHandler{
				Endpoint: "/",
				HandlerFunc: func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "text/html")
					w.Write([]byte("<html></html>"))
				},
			})
			defer mockServer.Close()

			var unsupported *transporter.UnsupportedError
			Expect(errors.As(channel.Dial(ctx, targetFor(mockServer.Url)), &unsupported)).To(BeTrue())

			requests := mockServer.Requests("/")
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].Method).To(Equal(http.MethodGet))
			Expect(requests[0].Header.Get("Accept")).To(Equal(EventStreamContentType))
			Expect(requests[0].Header.Get(transporter.TransportHeader)).To(Equal("sse"))
		})
	})
})
