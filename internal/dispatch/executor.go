package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jira-mcp-server/internal/auth"
	"jira-mcp-server/internal/common"
)

// maxResponseSize caps the response body to prevent OOM from unexpectedly
// large responses (attachments are the legitimate big case).
const maxResponseSize = 50 << 20 // 50MB

// Executor builds and sends HTTP requests against the Jira base URL.
// The embedded http.Client's connection pool is internally synchronized,
// so one Executor serves arbitrarily many concurrent dispatches.
type Executor struct {
	baseURL    string
	client     *http.Client
	creds      auth.CredentialProvider
	logger     *common.Logger
	maxRetries int

	// sleep is injectable so retry timing is observable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	// newBackOff produces the delay schedule for one request's retry loop.
	newBackOff func() backoff.BackOff
}

// NewExecutor creates an executor with a bounded per-call timeout and a
// jittered exponential retry schedule for transient failures.
func NewExecutor(baseURL string, creds auth.CredentialProvider, logger *common.Logger, cfg common.DispatchConfig) *Executor {
	return &Executor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
		creds:      creds,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		sleep:      sleepCtx,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0 // the retry budget, not elapsed time, bounds the loop
			return b
		},
	}
}

// Execute sends a bound request and returns the raw response. Transient
// transport errors and retryable remote statuses are retried with
// exponential backoff and jitter, up to the configured budget. Retries of
// failures that may have executed remotely (timeouts, 5xx) are suppressed
// for operations that are not retry-safe; a 429 rejection never executed,
// so it is retried regardless and its Retry-After hint overrides the
// computed delay.
func (e *Executor) Execute(ctx context.Context, br *BoundRequest) (*RawResponse, error) {
	bo := e.newBackOff()

	var lastFailure *Failure
	for attempt := 0; ; attempt++ {
		raw, failure := e.attempt(ctx, br)
		if failure == nil {
			retryAfter, retry := e.shouldRetryStatus(br, raw)
			if !retry || attempt >= e.maxRetries {
				return raw, nil
			}
			if err := e.wait(ctx, bo, retryAfter, br, raw.StatusCode, attempt); err != nil {
				return raw, nil // surface the received response, not the wait abort
			}
			continue
		}

		if failure.Kind == KindCancelled || !failure.Retryable || !br.RetrySafe || attempt >= e.maxRetries {
			return nil, failure
		}
		lastFailure = failure
		if err := e.wait(ctx, bo, 0, br, 0, attempt); err != nil {
			return nil, lastFailure
		}
	}
}

// attempt performs a single HTTP round trip.
func (e *Executor) attempt(ctx context.Context, br *BoundRequest) (*RawResponse, *Failure) {
	var bodyReader io.Reader
	if br.Body != nil {
		bodyReader = bytes.NewReader(br.Body)
	}

	req, err := http.NewRequestWithContext(ctx, br.Method, br.URL(e.baseURL), bodyReader)
	if err != nil {
		return nil, &Failure{Kind: KindTransport, Message: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if br.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, vals := range br.Header {
		for _, v := range vals {
			req.Header.Set(key, v)
		}
	}

	// Credentials are fetched per request and never cached, so rotating
	// token sources always win.
	if err := e.creds.Apply(req); err != nil {
		return nil, &Failure{Kind: KindTransport, Message: fmt.Sprintf("credential provider failed: %v", err)}
	}

	e.logger.Debug().Str("tool", br.Tool).Str("method", br.Method).Str("path", br.Path).Msg("executing request")

	start := time.Now()
	resp, err := e.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		failure := classifyTransport(ctx, err)
		e.logger.Warn().Str("tool", br.Tool).Str("path", br.Path).
			Int64("duration_ms", duration.Milliseconds()).
			Str("error", failure.Message).Bool("retryable", failure.Retryable).
			Msg("request failed")
		return nil, failure
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Failure{Kind: KindTransport, Retryable: true,
			Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	e.logger.Debug().Str("tool", br.Tool).Int("status", resp.StatusCode).
		Int64("duration_ms", duration.Milliseconds()).Msg("response received")

	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// shouldRetryStatus decides whether a received response warrants a retry,
// returning the server-supplied delay hint when present. 429 is always
// retried (the request was rejected before execution); 5xx only when the
// operation is retry-safe. 4xx other than 429 is never retried.
func (e *Executor) shouldRetryStatus(br *BoundRequest, raw *RawResponse) (time.Duration, bool) {
	switch {
	case raw.StatusCode == http.StatusTooManyRequests:
		return parseRetryAfter(raw.Header.Get("Retry-After")), true
	case raw.StatusCode >= 500:
		return 0, br.RetrySafe
	default:
		return 0, false
	}
}

// wait sleeps for the next backoff interval, stretched to honor a
// Retry-After hint when the server supplied one.
func (e *Executor) wait(ctx context.Context, bo backoff.BackOff, retryAfter time.Duration, br *BoundRequest, status int, attempt int) error {
	delay := bo.NextBackOff()
	if delay == backoff.Stop {
		return errors.New("backoff exhausted")
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	e.logger.Info().Str("tool", br.Tool).Int("attempt", attempt+1).
		Int("status", status).Int64("delay_ms", delay.Milliseconds()).
		Msg("retrying request")
	return e.sleep(ctx, delay)
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// classifyTransport maps a transport-layer error to a Failure. Timeouts and
// connection resets are transient; TLS/certificate and DNS resolution
// failures are not and propagate immediately.
func classifyTransport(ctx context.Context, err error) *Failure {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Failure{Kind: KindTimeout, Retryable: true, Message: "request deadline exceeded"}
		}
		return cancelledFailure("request cancelled")
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &Failure{Kind: KindTransport, Message: fmt.Sprintf("tls verification failed: %v", err)}
	}
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return &Failure{Kind: KindTransport, Message: fmt.Sprintf("tls verification failed: %v", err)}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Failure{Kind: KindTransport, Message: fmt.Sprintf("dns resolution failed: %v", err)}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: KindTransport, Retryable: true, Message: fmt.Sprintf("request timed out: %v", err)}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Failure{Kind: KindTransport, Retryable: true, Message: fmt.Sprintf("connection failed: %v", err)}
	}

	return &Failure{Kind: KindTransport, Message: err.Error()}
}
