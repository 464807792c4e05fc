package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"streamhub/work/config"
	"streamhub/work/logger"
	"streamhub/work/utils"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/ratelimit"
)

// Kind selects which half of the error taxonomy a failed request maps to.
type Kind int

const (
	KindSource Kind = iota // catalog or live-source API call, failures degrade to "no results"
	KindMedia              // manifest, segment or key fetch on behalf of a player
)

// maxJSONBody bounds catalog responses read into memory by GetJSON.
const maxJSONBody = 16 << 20

var (
	ErrSourceTimeout           = errors.New("source timeout")
	ErrSourceUnreachable       = errors.New("source unreachable")
	ErrSourceMalformedResponse = errors.New("source malformed response")
	ErrUpstreamTimeout         = errors.New("upstream timeout")
	ErrUpstreamStatus          = errors.New("upstream error status")
)

// StatusError is returned when the upstream answered with a non-2xx status.
// It matches ErrUpstreamStatus with errors.Is.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUpstreamStatus
}

// Request describes one upstream call.
type Request struct {
	Kind      Kind
	Method    string        // defaults to GET
	URL       string
	Timeout   time.Duration // whole-request budget including body reads, zero means none
	UserAgent string        // overrides the configured default
	Origin    string
	Referer   string
	Header    http.Header // extra headers, e.g. Range
	LimitKey  string      // per-source rate limiter key, empty skips limiting
}

// Client issues upstream requests with header injection, per-call timeouts and
// per-source rate limiting.
type Client struct {
	HTTP      *http.Client
	cfg       *config.Config
	limiters  *xsync.MapOf[string, ratelimit.Limiter]
	rateLimit int
}

// New builds a Client whose transport bounds only connection setup and response
// headers; body streaming is bounded by the caller's context.
func New(cfg *config.Config) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: cfg.SegmentTimeout,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		HTTP:      &http.Client{Transport: transport},
		cfg:       cfg,
		limiters:  xsync.NewMapOf[string, ratelimit.Limiter](),
		rateLimit: cfg.SourceRateLimit,
	}
}

// limiterFor returns the limiter for key, creating it on first use.
func (c *Client) limiterFor(key string) ratelimit.Limiter {
	limiter, _ := c.limiters.LoadOrCompute(key, func() ratelimit.Limiter {
		logger.Debug("{client - limiterFor} created rate limiter for %s at %d req/s", key, c.rateLimit)
		return ratelimit.New(c.rateLimit)
	})
	return limiter
}

func (c *Client) setHeaders(httpReq *http.Request, req Request) {
	ua := req.UserAgent
	if ua == "" {
		ua = c.cfg.UserAgent
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept", "*/*")

	if req.Origin != "" {
		httpReq.Header.Set("Origin", req.Origin)
	}
	if req.Referer != "" {
		httpReq.Header.Set("Referer", req.Referer)
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
}

// Fetch performs req. A 2xx response is returned with its body open; closing the body
// releases the per-call timeout. Every failure is classified into the package's
// sentinel errors, except cancellation of ctx itself, which is returned as ctx.Err().
func (c *Client) Fetch(ctx context.Context, req Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if req.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, method, req.URL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid request url: %w", err)
	}
	c.setHeaders(httpReq, req)

	if req.LimitKey != "" && c.rateLimit > 0 {
		c.limiterFor(req.LimitKey).Take()
	}

	logger.Debug("{client - Fetch} %s %s", method, utils.LogURL(c.cfg, req.URL))

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		cancel()
		return nil, classify(ctx, req.Kind, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// classify maps a transport error onto the taxonomy.
func classify(parent context.Context, kind Kind, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}

	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}

	switch {
	case kind == KindSource && timeout:
		return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
	case kind == KindSource:
		return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	default:
		// players treat refused connections like timeouts: retry or fall back
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
}

// IsTimeout reports whether err is a timeout of either kind.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrSourceTimeout) || errors.Is(err, ErrUpstreamTimeout)
}

// cancelOnClose releases the per-call context once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// GetJSON fetches req and decodes the body into T.
func GetJSON[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var zero T

	resp, err := c.Fetch(ctx, req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return zero, classify(ctx, req.Kind, err)
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSourceMalformedResponse, err)
	}
	return out, nil
}
