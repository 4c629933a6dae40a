package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxReplyBody = 1 << 20 // 1MB

// connection pooling limits shared by every check producer
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Target is the endpoint a check producer requests on every run.
type Target struct {
	// Method defaults to GET.
	Method  string
	URL     string
	Headers map[string]string
}

// Reply is what one check request returned. Latency is always set;
// StatusCode is zero when no response arrived.
type Reply struct {
	Body       []byte
	StatusCode int
	Latency    time.Duration
}

// FailureReason classifies a check request that produced no usable reply.
type FailureReason string

const (
	// ReasonInvalid means the request could not be built from the target.
	ReasonInvalid FailureReason = "invalid request"
	// ReasonCanceled means the run was cancelled, usually by shutdown.
	ReasonCanceled FailureReason = "canceled"
	// ReasonTimeout means the run's deadline passed before a full reply.
	ReasonTimeout FailureReason = "timeout"
	// ReasonUnreachable covers refused connections, DNS and TLS failures.
	ReasonUnreachable FailureReason = "unreachable"
	// ReasonIncomplete means the body broke off mid-read.
	ReasonIncomplete FailureReason = "incomplete response"
	// ReasonOversized means the body exceeded 1MB. The reply carries the
	// first 1MB.
	ReasonOversized FailureReason = "response too large"
)

// CheckError is the error [Client.Check] returns.
type CheckError struct {
	Reason FailureReason
	Err    error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// FailureOf reports the reason carried by a [CheckError] in err's chain.
func FailureOf(err error) (FailureReason, bool) {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Reason, true
	}
	return "", false
}

// Client is the pooled HTTP client check producers share.
//
// Timeouts come from the caller's context, so one client serves producers
// with different deadlines.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client] with bounded connection pooling.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Check requests target once.
//
// A non-2xx status is not an error; the producer judges it. Every error is
// a [*CheckError]. The reply is returned alongside it so callers can still
// report latency.
func (c *Client) Check(ctx context.Context, target Target) (Reply, error) {
	start := time.Now()

	method := target.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL, nil)
	if err != nil {
		return Reply{Latency: time.Since(start)}, &CheckError{Reason: ReasonInvalid, Err: err}
	}
	for key, value := range target.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{Latency: time.Since(start)}, &CheckError{Reason: transportReason(ctx, err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	// one byte past the cap tells an oversized body from one that fits exactly
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody+1))
	reply := Reply{Body: body, StatusCode: resp.StatusCode, Latency: time.Since(start)}
	switch {
	case err != nil:
		reason := transportReason(ctx, err)
		if reason == ReasonUnreachable {
			reason = ReasonIncomplete
		}
		return reply, &CheckError{Reason: reason, Err: err}
	case len(body) > maxReplyBody:
		reply.Body = body[:maxReplyBody]
		return reply, &CheckError{Reason: ReasonOversized, Err: fmt.Errorf("body exceeds %d bytes", maxReplyBody)}
	}
	return reply, nil
}

// transportReason classifies a failed round trip. The context is consulted
// first since the transport's error text varies by platform.
func transportReason(ctx context.Context, err error) FailureReason {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ReasonCanceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonUnreachable
}

// Close releases idle pooled connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
