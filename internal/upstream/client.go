// Package upstream holds HTTP clients for the external services the
// moderation engine depends on: the content service and the identity &
// permission service.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tangled.org/booru.social/booru/internal/metrics"
	"tangled.org/booru.social/booru/internal/tracing"
)

// DefaultTimeout bounds every single upstream call.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is kept in the error message.
const maxErrorBody = 512

// ErrNotFound is returned when the service answers 404.
var ErrNotFound = errors.New("upstream: not found")

// StatusError is a non-2xx answer from a service.
type StatusError struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Service, e.Op, e.StatusCode, e.Body)
}

// NewHTTPClient returns an HTTP client with an instrumented transport for
// OTEL tracing of upstream requests.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(&http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}),
	}
}

// caller performs JSON requests against one service.
type caller struct {
	service string
	baseURL string
	http    *http.Client
	timeout time.Duration
	token   string
}

func newCaller(service, baseURL string, httpClient *http.Client, timeout time.Duration, token string) caller {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return caller{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: timeout,
		token:   token,
	}
}

// do sends one request. in, when non-nil, is sent as the JSON body; out,
// when non-nil, receives the decoded JSON response. Each call gets its own
// timeout and span.
func (c caller) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := tracing.UpstreamSpan(ctx, c.service, op)
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			metrics.UpstreamErrorsTotal.WithLabelValues(c.service, op).Inc()
			tracing.EndWithError(span, err)
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", c.service, op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: build request: %w", c.service, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.service, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: c.service, Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", c.service, op, err)
	}
	return nil
}
