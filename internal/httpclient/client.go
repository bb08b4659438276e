package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
)

// Request is a transport-agnostic HTTP request.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the corresponding HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client is the outbound HTTP boundary. External gateway calls go through
// it so retry policy and timeouts live in one place.
type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

type retryableClient struct {
	client *retryablehttp.Client
}

// NewClient builds a retryable HTTP client with bounded retries and a hard
// request timeout so a slow gateway can never stall a batch run.
func NewClient(log *logger.Logger, timeout time.Duration) Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = log.GetRetryableHTTPLogger()

	return &retryableClient{client: rc}
}

func (c *retryableClient) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to build HTTP request").
			Mark(ierr.ErrValidation)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("HTTP request failed").
			WithReportableDetails(map[string]interface{}{"url": req.URL}).
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read HTTP response").
			Mark(ierr.ErrHTTPClient)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, ierr.NewErrorf("unexpected status %d", resp.StatusCode).
			WithHint("Gateway returned an error").
			WithReportableDetails(map[string]interface{}{
				"url":    req.URL,
				"status": resp.StatusCode,
				"body":   string(body),
			}).
			Mark(ierr.ErrHTTPClient)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
