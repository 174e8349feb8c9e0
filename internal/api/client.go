// Package api is the HTTP transport for the biztrack backend: one generic
// resource client per entity plus the user and auth endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"biztrack/internal/log"
)

const (
	DefaultBaseURL = "http://138.197.140.143:3000"
	DefaultTimeout = 30 * time.Second

	HeaderRequestID = "X-Request-ID"
)

// RequestObserver receives one observation per completed backend call.
// Status is 0 when the request never got a response.
type RequestObserver interface {
	ObserveRequest(resource, method string, status int, elapsed time.Duration)
}

// Client performs JSON requests against the backend.
type Client struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	logger    *log.Logger
	metrics   RequestObserver
	userAgent string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides the per-request timeout. Zero keeps the client's own.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent(log.ComponentAPI)
		}
	}
}

func WithMetrics(m RequestObserver) Option {
	return func(c *Client) { c.metrics = m }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &Error{Op: "new client", Kind: ErrInvalidURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, &Error{Op: "new client", Kind: ErrInvalidURL, Err: fmt.Errorf("unsupported base url %q", baseURL)}
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: DefaultTimeout},
		logger:    log.Discard().WithComponent(log.ComponentAPI),
		userAgent: "biztrack",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	resource string
	method   string
	path     string
	token    string
	body     any
	accept   string
}

func (r request) op() string { return r.method + " " + r.path }

// send performs the round trip without interpreting the status code.
func (c *Client) send(ctx context.Context, r request) (int, []byte, error) {
	u, err := url.Parse(c.baseURL + r.path)
	if err != nil {
		return 0, nil, &Error{Op: r.op(), Kind: ErrInvalidURL, Err: err}
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, &Error{Op: r.op(), Kind: ErrInvalidURL, Err: fmt.Errorf("encode body: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return 0, nil, &Error{Op: r.op(), Kind: ErrInvalidURL, Err: err}
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	if r.token != "" {
		// the backend expects the raw token, no scheme prefix
		req.Header.Set("Authorization", r.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(ctx, r, requestID, 0, elapsed, err)
		return 0, nil, &Error{Op: r.op(), Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(ctx, r, requestID, resp.StatusCode, elapsed, err)
		return resp.StatusCode, nil, &Error{Op: r.op(), Kind: ErrTransport, Status: resp.StatusCode, Err: err}
	}
	c.observe(ctx, r, requestID, resp.StatusCode, elapsed, nil)
	return resp.StatusCode, data, nil
}

func (c *Client) observe(ctx context.Context, r request, requestID string, status int, elapsed time.Duration, err error) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(r.resource, r.method, status, elapsed)
	}
	fields := log.NewFields().
		WithRequestID(requestID).
		WithRequest(r.method, r.path).
		WithResponse(status, elapsed.Milliseconds()).
		WithError(err)
	fields[log.FieldResource] = r.resource
	if err != nil || status >= http.StatusInternalServerError {
		c.logger.WarnContext(ctx, "Backend request failed", fields.ToSlice()...)
		return
	}
	c.logger.DebugContext(ctx, "Backend request completed", fields.ToSlice()...)
}

// do sends r and decodes a 200 response into out. Any other status is ErrInvalidResponse.
func (c *Client) do(ctx context.Context, r request, out any) error {
	status, data, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &Error{Op: r.op(), Kind: ErrInvalidResponse, Status: status}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: r.op(), Kind: ErrDecoding, Status: status, Err: err}
	}
	return nil
}

// pathOf joins escaped path segments.
func pathOf(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
