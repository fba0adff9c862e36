package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"bastionzero.com/wasync/logger"
)

type HTTPOptions struct {
	Headers http.Header
	Params  url.Values

	// Zero means no timeout, which is what long lived streams need
	Timeout time.Duration
}

type HttpClient struct {
	logger *logger.Logger
	client *http.Client

	targetUrl string
	headers   http.Header
	params    url.Values
}

func New(
	logger *logger.Logger,
	serviceUrl string,
	options HTTPOptions,
) (*HttpClient, error) {
	if _, err := url.ParseRequestURI(serviceUrl); err != nil {
		return nil, fmt.Errorf("failed to parse service url %s: %w", serviceUrl, err)
	}

	if options.Headers == nil {
		options.Headers = http.Header{}
	}

	if options.Params == nil {
		options.Params = url.Values{}
	}

	return &HttpClient{
		logger:    logger,
		client:    &http.Client{Timeout: options.Timeout},
		targetUrl: serviceUrl,
		headers:   options.Headers,
		params:    options.Params,
	}, nil
}

func (h *HttpClient) Post(ctx context.Context, body io.Reader) (*http.Response, error) {
	return h.Do(ctx, http.MethodPost, body)
}

func (h *HttpClient) Get(ctx context.Context) (*http.Response, error) {
	return h.Do(ctx, http.MethodGet, nil)
}

// Open starts a request whose response body outlives ctx. ctx only bounds the
// wait for the response headers; the body stays readable until streamCtx is done.
func (h *HttpClient) Open(ctx context.Context, streamCtx context.Context, method string) (*http.Response, error) {
	requestCtx, cancel := context.WithCancel(streamCtx)

	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-handshakeDone:
		case <-streamCtx.Done():
		}
	}()

	response, err := h.Do(requestCtx, method, nil)
	close(handshakeDone)

	if err == nil && ctx.Err() != nil {
		response.Body.Close()
		err = fmt.Errorf("%s request failed: %w", method, ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, err
	}

	return response, nil
}

// Do executes a single request. Any non 2xx response is returned as a
// *StatusError with the body already drained and closed.
func (h *HttpClient) Do(ctx context.Context, method string, body io.Reader) (*http.Response, error) {
	// Build our Request
	request, err := http.NewRequestWithContext(ctx, method, h.targetUrl, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	request.Header = h.headers.Clone()

	// Add params to request URL, keeping any query the target already had
	if len(h.params) > 0 {
		query := request.URL.Query()
		for key, values := range h.params {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		request.URL.RawQuery = query.Encode()
	}

	// Make our Request
	response, err := h.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}

	// Check if request was successful
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		io.Copy(io.Discard, response.Body)
		response.Body.Close()

		h.logger.Debugf("%s %s returned %s", method, h.targetUrl, response.Status)
		return nil, &StatusError{Method: method, StatusCode: response.StatusCode, Status: response.Status}
	}

	return response, nil
}
